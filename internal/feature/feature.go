// Package feature drives the three feature operations end to end:
// two-phase discovery, verified reads, and writes with mandatory
// read-back.
package feature

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cxlproject/go-fwctl/internal/fwctl"
	"github.com/cxlproject/go-fwctl/internal/mbox"
)

// maxTestFeatures is the only catalog size this client accepts. A device
// advertising more is an unsupported device, not a resize hint.
const maxTestFeatures = 1

var (
	ErrFeatureCount = errors.New("feature: device does not report exactly one feature")
	ErrEntryCount   = errors.New("feature: discovery returned unexpected entry count")
	ErrShape        = errors.New("feature: unexpected device feature shape")
	ErrDataMismatch = errors.New("feature: data verification failed")
)

// Shape is the catalog layout a conforming device must publish: the
// feature identifier, its payload sizes, and the set-effects mask.
type Shape struct {
	ID      uuid.UUID
	GetSize uint16
	SetSize uint16
	Effects uint16
}

// Descriptor identifies a discovered feature. It is produced by Discover
// and threaded into Get and Set; nothing else is shared across calls.
type Descriptor struct {
	ID      uuid.UUID
	GetSize uint16
	SetSize uint16
}

// prep builds a request for op with the rpc wrapper filled in. The scope
// and hardware operation size are pure functions of the opcode; an
// unknown opcode aborts before any transport call.
func prep(op mbox.Opcode, inSize, outSize int) (*fwctl.Request, error) {
	opSize, err := mbox.HeaderSizeFor(op)
	if err != nil {
		return nil, err
	}
	scope, err := mbox.ScopeFor(op)
	if err != nil {
		return nil, err
	}
	req, err := fwctl.NewRequest(scope, inSize, outSize)
	if err != nil {
		return nil, err
	}
	if err := fwctl.EncodeInputHeader(req.In, uint16(op), opSize); err != nil {
		req.Release()
		return nil, err
	}
	return req, nil
}

// Discover runs the two-phase Get Supported Features sequence and checks
// the advertised catalog against want. Phase one sends a zeroed count
// with an output sized for the catalog header only, yielding the device's
// feature total. Phase two re-issues the query sized for that many
// entries and validates the first entry byte for byte. The two phases are
// independent request cycles; no buffer crosses the boundary.
func Discover(dev fwctl.Exchanger, want Shape) (Descriptor, error) {
	feats, err := queryFeatureCount(dev)
	if err != nil {
		return Descriptor{}, err
	}
	if feats != maxTestFeatures {
		return Descriptor{}, fmt.Errorf("%w: reported %d", ErrFeatureCount, feats)
	}

	entry, err := queryCatalog(dev, feats)
	if err != nil {
		return Descriptor{}, err
	}
	if entry.ID != want.ID {
		return Descriptor{}, fmt.Errorf("%w: identifier %s", ErrShape, entry.ID)
	}
	if entry.GetFeatSize != want.GetSize || entry.SetFeatSize != want.SetSize {
		return Descriptor{}, fmt.Errorf("%w: get/set size %d/%d, want %d/%d",
			ErrShape, entry.GetFeatSize, entry.SetFeatSize, want.GetSize, want.SetSize)
	}
	if entry.Effects != want.Effects {
		return Descriptor{}, fmt.Errorf("%w: effects %#04x, want %#04x",
			ErrShape, entry.Effects, want.Effects)
	}

	return Descriptor{ID: entry.ID, GetSize: entry.GetFeatSize, SetSize: entry.SetFeatSize}, nil
}

func queryFeatureCount(dev fwctl.Exchanger) (uint16, error) {
	inSize := fwctl.InputHeaderSize + mbox.SupportedFeaturesInputSize
	outSize := fwctl.OutputHeaderSize + mbox.SupportedFeaturesHeaderSize
	req, err := prep(mbox.OpGetSupportedFeatures, inSize, outSize)
	if err != nil {
		return 0, err
	}
	defer req.Release()

	// The count field stays zero on the first round: header only.
	if err := fwctl.Send(dev, req); err != nil {
		return 0, err
	}
	out, err := fwctl.DecodeOutput(req.Out)
	if err != nil {
		return 0, err
	}
	hdr, err := mbox.DecodeSupportedFeaturesHeader(out.Payload)
	if err != nil {
		return 0, err
	}
	return hdr.SupportedFeats, nil
}

func queryCatalog(dev fwctl.Exchanger, feats uint16) (mbox.FeatureEntry, error) {
	inSize := fwctl.InputHeaderSize + mbox.SupportedFeaturesInputSize
	outSize := fwctl.OutputHeaderSize + mbox.SupportedFeaturesHeaderSize + int(feats)*mbox.FeatureEntrySize
	req, err := prep(mbox.OpGetSupportedFeatures, inSize, outSize)
	if err != nil {
		return mbox.FeatureEntry{}, err
	}
	defer req.Release()

	in := mbox.SupportedFeaturesInput{Count: uint32(feats) * mbox.FeatureEntrySize}
	if err := in.Put(req.In[fwctl.InputHeaderSize:]); err != nil {
		return mbox.FeatureEntry{}, err
	}
	if err := fwctl.Send(dev, req); err != nil {
		return mbox.FeatureEntry{}, err
	}
	out, err := fwctl.DecodeOutput(req.Out)
	if err != nil {
		return mbox.FeatureEntry{}, err
	}
	hdr, err := mbox.DecodeSupportedFeaturesHeader(out.Payload)
	if err != nil {
		return mbox.FeatureEntry{}, err
	}
	if hdr.SupportedFeats != feats {
		return mbox.FeatureEntry{}, fmt.Errorf("%w: reported %d", ErrFeatureCount, hdr.SupportedFeats)
	}
	if hdr.NumEntries != feats {
		return mbox.FeatureEntry{}, fmt.Errorf("%w: %d entries", ErrEntryCount, hdr.NumEntries)
	}
	return mbox.DecodeFeatureEntry(out.Payload[mbox.SupportedFeaturesHeaderSize:])
}

// Get reads the feature's current value and compares it byte for byte
// against expected. A mismatch is a firmware correctness failure.
func Get(dev fwctl.Exchanger, desc Descriptor, expected uint32) error {
	inSize := fwctl.InputHeaderSize + mbox.GetFeatureInputSize
	outSize := fwctl.OutputHeaderSize + int(desc.GetSize)
	req, err := prep(mbox.OpGetFeature, inSize, outSize)
	if err != nil {
		return err
	}
	defer req.Release()

	in := mbox.GetFeatureInput{ID: desc.ID, Count: desc.GetSize, Selection: mbox.SelectionCurrentValue}
	if err := in.Put(req.In[fwctl.InputHeaderSize:]); err != nil {
		return err
	}
	if err := fwctl.Send(dev, req); err != nil {
		return err
	}
	out, err := fwctl.DecodeOutput(req.Out)
	if err != nil {
		return err
	}
	if len(out.Payload) < mbox.FeatureDataSize {
		return fmt.Errorf("%w: %d byte payload", ErrDataMismatch, len(out.Payload))
	}
	got := binary.LittleEndian.Uint32(out.Payload[:mbox.FeatureDataSize])
	if got != expected {
		return fmt.Errorf("%w: got %#08x, want %#08x", ErrDataMismatch, got, expected)
	}
	return nil
}

// Set writes value as a full data transfer and then reads it back with
// Get. The read-back is part of the operation: a set whose new value does
// not round-trip has failed.
func Set(dev fwctl.Exchanger, desc Descriptor, value uint32) error {
	inSize := fwctl.InputHeaderSize + mbox.SetFeatureHeaderSize + mbox.FeatureDataSize
	outSize := fwctl.OutputHeaderSize + mbox.FeatureDataSize
	req, err := prep(mbox.OpSetFeature, inSize, outSize)
	if err != nil {
		return err
	}
	defer req.Release()

	var data [mbox.FeatureDataSize]byte
	binary.LittleEndian.PutUint32(data[:], value)
	in := mbox.SetFeatureInput{ID: desc.ID, Flags: mbox.SetFlagFullDataTransfer, Data: data[:]}
	if err := in.Put(req.In[fwctl.InputHeaderSize:]); err != nil {
		return err
	}
	if err := fwctl.Send(dev, req); err != nil {
		return err
	}
	return Get(dev, desc, value)
}
