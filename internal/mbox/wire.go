// Package mbox owns the mailbox wire contract: opcode policy and the
// little-endian, packed payload layouts of the three feature commands.
package mbox

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Wire sizes of the feature command payloads.
const (
	SupportedFeaturesInputSize  = 8
	SupportedFeaturesHeaderSize = 8
	FeatureEntrySize            = 48
	GetFeatureInputSize         = 21
	SetFeatureHeaderSize        = 32
	// FeatureDataSize is the payload this client transfers on get and set.
	FeatureDataSize = 4
)

// Get Feature selection field.
const SelectionCurrentValue uint8 = 0

// Set Feature flags: the low three bits select the data transfer mode.
const (
	SetFlagFullDataTransfer uint32 = 0x0
	SetFlagDataTransferMask uint32 = 0x7
)

// Set Feature effects bits this client knows about: bit 0 reports a data
// change, bit 9 is a vendor-defined effect. Both are treated as opaque
// expectations, not interpreted.
const (
	EffectDataChange uint16 = 1 << 0
	EffectVendor     uint16 = 1 << 9
)

var ErrShortBuffer = errors.New("mbox: buffer too short")

// SupportedFeaturesInput is the Get Supported Features request payload.
// A zero Count asks only for the catalog header.
type SupportedFeaturesInput struct {
	Count      uint32
	StartIndex uint16
}

func (in SupportedFeaturesInput) Put(b []byte) error {
	if len(b) < SupportedFeaturesInputSize {
		return fmt.Errorf("%w: %d for supported-features input", ErrShortBuffer, len(b))
	}
	binary.LittleEndian.PutUint32(b[0:4], in.Count)
	binary.LittleEndian.PutUint16(b[4:6], in.StartIndex)
	b[6], b[7] = 0, 0
	return nil
}

func DecodeSupportedFeaturesInput(b []byte) (SupportedFeaturesInput, error) {
	if len(b) < SupportedFeaturesInputSize {
		return SupportedFeaturesInput{}, fmt.Errorf("%w: %d for supported-features input", ErrShortBuffer, len(b))
	}
	return SupportedFeaturesInput{
		Count:      binary.LittleEndian.Uint32(b[0:4]),
		StartIndex: binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}

// SupportedFeaturesHeader heads the Get Supported Features reply.
// NumEntries counts the catalog entries actually returned;
// SupportedFeats is the device's feature total regardless of how many
// entries fit the supplied buffer.
type SupportedFeaturesHeader struct {
	NumEntries     uint16
	SupportedFeats uint16
}

func (h SupportedFeaturesHeader) Put(b []byte) error {
	if len(b) < SupportedFeaturesHeaderSize {
		return fmt.Errorf("%w: %d for supported-features header", ErrShortBuffer, len(b))
	}
	binary.LittleEndian.PutUint16(b[0:2], h.NumEntries)
	binary.LittleEndian.PutUint16(b[2:4], h.SupportedFeats)
	for i := 4; i < SupportedFeaturesHeaderSize; i++ {
		b[i] = 0
	}
	return nil
}

func DecodeSupportedFeaturesHeader(b []byte) (SupportedFeaturesHeader, error) {
	if len(b) < SupportedFeaturesHeaderSize {
		return SupportedFeaturesHeader{}, fmt.Errorf("%w: %d for supported-features header", ErrShortBuffer, len(b))
	}
	return SupportedFeaturesHeader{
		NumEntries:     binary.LittleEndian.Uint16(b[0:2]),
		SupportedFeats: binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// FeatureEntry is one catalog entry of the discovery reply. The
// identifier is sixteen raw bytes compared byte-for-byte, never textually.
type FeatureEntry struct {
	ID          uuid.UUID
	Index       uint16
	GetFeatSize uint16
	SetFeatSize uint16
	AttrFlags   uint32
	GetVersion  uint8
	SetVersion  uint8
	Effects     uint16
}

func (e FeatureEntry) Put(b []byte) error {
	if len(b) < FeatureEntrySize {
		return fmt.Errorf("%w: %d for feature entry", ErrShortBuffer, len(b))
	}
	copy(b[0:16], e.ID[:])
	binary.LittleEndian.PutUint16(b[16:18], e.Index)
	binary.LittleEndian.PutUint16(b[18:20], e.GetFeatSize)
	binary.LittleEndian.PutUint16(b[20:22], e.SetFeatSize)
	binary.LittleEndian.PutUint32(b[22:26], e.AttrFlags)
	b[26] = e.GetVersion
	b[27] = e.SetVersion
	binary.LittleEndian.PutUint16(b[28:30], e.Effects)
	for i := 30; i < FeatureEntrySize; i++ {
		b[i] = 0
	}
	return nil
}

func DecodeFeatureEntry(b []byte) (FeatureEntry, error) {
	if len(b) < FeatureEntrySize {
		return FeatureEntry{}, fmt.Errorf("%w: %d for feature entry", ErrShortBuffer, len(b))
	}
	var e FeatureEntry
	copy(e.ID[:], b[0:16])
	e.Index = binary.LittleEndian.Uint16(b[16:18])
	e.GetFeatSize = binary.LittleEndian.Uint16(b[18:20])
	e.SetFeatSize = binary.LittleEndian.Uint16(b[20:22])
	e.AttrFlags = binary.LittleEndian.Uint32(b[22:26])
	e.GetVersion = b[26]
	e.SetVersion = b[27]
	e.Effects = binary.LittleEndian.Uint16(b[28:30])
	return e, nil
}

// GetFeatureInput is the Get Feature request payload, packed to 21 bytes.
type GetFeatureInput struct {
	ID        uuid.UUID
	Offset    uint16
	Count     uint16
	Selection uint8
}

func (in GetFeatureInput) Put(b []byte) error {
	if len(b) < GetFeatureInputSize {
		return fmt.Errorf("%w: %d for get-feature input", ErrShortBuffer, len(b))
	}
	copy(b[0:16], in.ID[:])
	binary.LittleEndian.PutUint16(b[16:18], in.Offset)
	binary.LittleEndian.PutUint16(b[18:20], in.Count)
	b[20] = in.Selection
	return nil
}

func DecodeGetFeatureInput(b []byte) (GetFeatureInput, error) {
	if len(b) < GetFeatureInputSize {
		return GetFeatureInput{}, fmt.Errorf("%w: %d for get-feature input", ErrShortBuffer, len(b))
	}
	var in GetFeatureInput
	copy(in.ID[:], b[0:16])
	in.Offset = binary.LittleEndian.Uint16(b[16:18])
	in.Count = binary.LittleEndian.Uint16(b[18:20])
	in.Selection = b[20]
	return in, nil
}

// SetFeatureInput is the Set Feature request: a 32-byte header followed
// by the feature data to transfer.
type SetFeatureInput struct {
	ID      uuid.UUID
	Flags   uint32
	Offset  uint16
	Version uint8
	Data    []byte
}

func (in SetFeatureInput) Put(b []byte) error {
	if len(b) < SetFeatureHeaderSize+len(in.Data) {
		return fmt.Errorf("%w: %d for set-feature input", ErrShortBuffer, len(b))
	}
	copy(b[0:16], in.ID[:])
	binary.LittleEndian.PutUint32(b[16:20], in.Flags)
	binary.LittleEndian.PutUint16(b[20:22], in.Offset)
	b[22] = in.Version
	for i := 23; i < SetFeatureHeaderSize; i++ {
		b[i] = 0
	}
	copy(b[SetFeatureHeaderSize:], in.Data)
	return nil
}

// DecodeSetFeatureInput decodes a set request; Data aliases the input.
func DecodeSetFeatureInput(b []byte) (SetFeatureInput, error) {
	if len(b) < SetFeatureHeaderSize {
		return SetFeatureInput{}, fmt.Errorf("%w: %d for set-feature input", ErrShortBuffer, len(b))
	}
	var in SetFeatureInput
	copy(in.ID[:], b[0:16])
	in.Flags = binary.LittleEndian.Uint32(b[16:20])
	in.Offset = binary.LittleEndian.Uint16(b[20:22])
	in.Version = b[22]
	in.Data = b[SetFeatureHeaderSize:]
	return in, nil
}
