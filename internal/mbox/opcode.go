package mbox

import (
	"errors"
	"fmt"

	"github.com/cxlproject/go-fwctl/internal/fwctl"
)

// Opcode is a device mailbox command opcode.
type Opcode uint16

// Feature management opcodes, the only mailbox commands this client
// speaks.
const (
	OpGetSupportedFeatures Opcode = 0x0500
	OpGetFeature           Opcode = 0x0501
	OpSetFeature           Opcode = 0x0502
)

var ErrUnsupportedOpcode = errors.New("mbox: unsupported opcode")

func (op Opcode) String() string {
	switch op {
	case OpGetSupportedFeatures:
		return "get-supported-features"
	case OpGetFeature:
		return "get-feature"
	case OpSetFeature:
		return "set-feature"
	}
	return fmt.Sprintf("opcode(%#04x)", uint16(op))
}

// ScopeFor maps an opcode to the privilege scope its request must
// declare. Discovery and reads stay in the configuration scope; Set
// Feature mutates device state and requires full debug write.
func ScopeFor(op Opcode) (uint32, error) {
	switch op {
	case OpGetSupportedFeatures, OpGetFeature:
		return fwctl.ScopeConfiguration, nil
	case OpSetFeature:
		return fwctl.ScopeDebugWriteFull, nil
	}
	return 0, fmt.Errorf("%w: %#04x", ErrUnsupportedOpcode, uint16(op))
}

// HeaderSizeFor returns the byte size of the fixed mailbox input for op.
// The Set Feature input additionally reserves room for the feature data
// that trails its header. An unknown opcode is a contract violation and
// must abort before any buffer is built.
func HeaderSizeFor(op Opcode) (uint32, error) {
	switch op {
	case OpGetSupportedFeatures:
		return SupportedFeaturesInputSize, nil
	case OpGetFeature:
		return GetFeatureInputSize, nil
	case OpSetFeature:
		return SetFeatureHeaderSize + FeatureDataSize, nil
	}
	return 0, fmt.Errorf("%w: %#04x", ErrUnsupportedOpcode, uint16(op))
}
