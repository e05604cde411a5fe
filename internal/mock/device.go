// Package mock emulates the feature mailbox of a single-feature test
// memdev: one catalog entry, a 4-byte stateful payload, and the same
// status codes a real mailbox would return.
package mock

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/cxlproject/go-fwctl/internal/fwctl"
	"github.com/cxlproject/go-fwctl/internal/mbox"
)

// Mailbox return codes the mock emits.
const (
	retSuccess      uint32 = 0x0
	retUnsupported  uint32 = 0x1
	retInvalidInput uint32 = 0x2
)

// InitialValue is the feature payload a freshly created device reports.
const InitialValue uint32 = 0xdeadbeef

// Device implements fwctl.Exchanger in memory.
type Device struct {
	FeatureID uuid.UUID
	GetSize   uint16
	SetSize   uint16
	Effects   uint16

	// SupportedFeats overrides the advertised feature total, for probing
	// the client's single-feature policy.
	SupportedFeats uint16

	// Err, when set, fails the next Exchange and is cleared.
	Err error

	// Exchanges counts completed and attempted exchanges.
	Exchanges int

	value uint32
}

// NewDevice returns a device shaped like the test feature: identifier of
// sixteen 0xFF bytes, 4-byte get/set payloads, data-change and vendor
// effects, value InitialValue.
func NewDevice() *Device {
	var id uuid.UUID
	for i := range id {
		id[i] = 0xff
	}
	return &Device{
		FeatureID:      id,
		GetSize:        mbox.FeatureDataSize,
		SetSize:        mbox.FeatureDataSize,
		Effects:        mbox.EffectDataChange | mbox.EffectVendor,
		SupportedFeats: 1,
		value:          InitialValue,
	}
}

// Value reports the feature payload the device currently holds.
func (d *Device) Value() uint32 { return d.value }

func (d *Device) Exchange(req *fwctl.Request) error {
	d.Exchanges++
	if d.Err != nil {
		err := d.Err
		d.Err = nil
		return err
	}
	if len(req.In) < fwctl.InputHeaderSize || len(req.Out) < fwctl.OutputHeaderSize {
		return fwctl.ErrBadLength
	}
	opcode := mbox.Opcode(binary.LittleEndian.Uint32(req.In[0:4]))
	payload := req.In[fwctl.InputHeaderSize:]

	switch opcode {
	case mbox.OpGetSupportedFeatures:
		d.getSupported(payload, req.Out)
	case mbox.OpGetFeature:
		d.getFeature(payload, req.Out)
	case mbox.OpSetFeature:
		d.setFeature(payload, req.Out)
	default:
		d.finish(req.Out, retUnsupported, nil)
	}
	return nil
}

func (d *Device) getSupported(in, out []byte) {
	q, err := mbox.DecodeSupportedFeaturesInput(in)
	if err != nil {
		d.finish(out, retInvalidInput, nil)
		return
	}

	hdr := mbox.SupportedFeaturesHeader{SupportedFeats: d.SupportedFeats}
	reply := make([]byte, mbox.SupportedFeaturesHeaderSize, mbox.SupportedFeaturesHeaderSize+mbox.FeatureEntrySize)
	if q.Count >= mbox.FeatureEntrySize && q.StartIndex == 0 {
		hdr.NumEntries = 1
		entry := mbox.FeatureEntry{
			ID:          d.FeatureID,
			GetFeatSize: d.GetSize,
			SetFeatSize: d.SetSize,
			Effects:     d.Effects,
		}
		reply = reply[:mbox.SupportedFeaturesHeaderSize+mbox.FeatureEntrySize]
		entry.Put(reply[mbox.SupportedFeaturesHeaderSize:])
	}
	hdr.Put(reply)
	d.finish(out, retSuccess, reply)
}

func (d *Device) getFeature(in, out []byte) {
	q, err := mbox.DecodeGetFeatureInput(in)
	if err != nil || q.ID != d.FeatureID {
		d.finish(out, retInvalidInput, nil)
		return
	}
	if q.Count < d.GetSize || q.Selection != mbox.SelectionCurrentValue {
		d.finish(out, retInvalidInput, nil)
		return
	}
	var reply [mbox.FeatureDataSize]byte
	binary.LittleEndian.PutUint32(reply[:], d.value)
	d.finish(out, retSuccess, reply[:])
}

func (d *Device) setFeature(in, out []byte) {
	q, err := mbox.DecodeSetFeatureInput(in)
	if err != nil || q.ID != d.FeatureID {
		d.finish(out, retInvalidInput, nil)
		return
	}
	if q.Flags&mbox.SetFlagDataTransferMask != mbox.SetFlagFullDataTransfer {
		d.finish(out, retInvalidInput, nil)
		return
	}
	if len(q.Data) < int(d.SetSize) {
		d.finish(out, retInvalidInput, nil)
		return
	}
	d.value = binary.LittleEndian.Uint32(q.Data[:mbox.FeatureDataSize])
	d.finish(out, retSuccess, nil)
}

// finish writes the rpc output wrapper and as much of payload as the
// caller's buffer holds, the way the driver truncates short replies.
func (d *Device) finish(out []byte, retval uint32, payload []byte) {
	n := copy(out[fwctl.OutputHeaderSize:], payload)
	binary.LittleEndian.PutUint32(out[0:4], uint32(fwctl.OutputHeaderSize+n))
	binary.LittleEndian.PutUint32(out[4:8], retval)
}
