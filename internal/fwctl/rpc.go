package fwctl

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// InputHeaderSize is the fwctl_rpc_cxl wrapper at the front of every
	// input buffer: opcode, flags, op_size, reserved.
	InputHeaderSize = 16
	// OutputHeaderSize is the fwctl_rpc_cxl_out wrapper at the front of
	// every output buffer: size, retval.
	OutputHeaderSize = 8
)

var (
	ErrAllocFailed     = errors.New("fwctl: buffer allocation failed")
	ErrBadLength       = errors.New("fwctl: invalid buffer length")
	ErrShortOutput     = errors.New("fwctl: output shorter than rpc wrapper")
	ErrOperationFailed = errors.New("fwctl: device reported operation failure")
	ErrReleased        = errors.New("fwctl: request already released")
)

// Request is one prepared RPC: a privilege scope plus the two exclusively
// owned payload buffers the kernel reads from and writes into. Buffer
// addresses never leave this package; they are materialized into the wire
// envelope only for the duration of a single exchange.
type Request struct {
	Scope uint32
	In    []byte
	Out   []byte

	rawIn  []byte
	rawOut []byte
}

// NewRequest allocates a request whose buffers are exactly inSize and
// outSize bytes, zero-filled and BufferAlign-aligned. On any allocation
// failure everything already allocated is released and no request is
// returned. Both sizes must at least cover their rpc wrappers.
func NewRequest(scope uint32, inSize, outSize int) (*Request, error) {
	if inSize < InputHeaderSize || outSize < OutputHeaderSize {
		return nil, fmt.Errorf("%w: in=%d out=%d", ErrBadLength, inSize, outSize)
	}
	in, rawIn, err := alignedRegion(inSize)
	if err != nil {
		return nil, err
	}
	out, rawOut, err := alignedRegion(outSize)
	if err != nil {
		free(rawIn)
		return nil, err
	}
	return &Request{Scope: scope, In: in, Out: out, rawIn: rawIn, rawOut: rawOut}, nil
}

// Release returns both payload buffers. Call exactly once per request;
// further use of the request fails with ErrReleased.
func (r *Request) Release() {
	if r.rawIn != nil {
		free(r.rawIn)
		r.rawIn, r.In = nil, nil
	}
	if r.rawOut != nil {
		free(r.rawOut)
		r.rawOut, r.Out = nil, nil
	}
}

// EncodeInputHeader writes the rpc wrapper at the front of in: the
// mailbox opcode, zeroed flags, and the fixed hardware operation size the
// opcode policy dictates.
func EncodeInputHeader(in []byte, opcode uint16, opSize uint32) error {
	if len(in) < InputHeaderSize {
		return fmt.Errorf("%w: %d bytes for input header", ErrBadLength, len(in))
	}
	binary.LittleEndian.PutUint32(in[0:4], uint32(opcode))
	binary.LittleEndian.PutUint32(in[4:8], 0)
	binary.LittleEndian.PutUint32(in[8:12], opSize)
	binary.LittleEndian.PutUint32(in[12:16], 0)
	return nil
}

// Output is the decoded rpc wrapper of a completed exchange. A non-zero
// Retval leaves Payload undefined; callers must not interpret it.
type Output struct {
	Size    uint32
	Retval  uint32
	Payload []byte
}

func DecodeOutput(out []byte) (Output, error) {
	if len(out) < OutputHeaderSize {
		return Output{}, fmt.Errorf("%w: %d bytes", ErrShortOutput, len(out))
	}
	return Output{
		Size:    binary.LittleEndian.Uint32(out[0:4]),
		Retval:  binary.LittleEndian.Uint32(out[4:8]),
		Payload: out[OutputHeaderSize:],
	}, nil
}

// Exchanger issues one blocking request/response exchange. Implemented by
// Conn for the real character device and by test doubles.
type Exchanger interface {
	Exchange(req *Request) error
}

// Send runs the exchange and classifies the outcome. A transport error
// propagates unchanged with its errno; a completed exchange whose output
// carries a non-zero retval becomes ErrOperationFailed, since the device
// offers no further detail.
func Send(dev Exchanger, req *Request) error {
	if err := dev.Exchange(req); err != nil {
		return err
	}
	out, err := DecodeOutput(req.Out)
	if err != nil {
		return err
	}
	if out.Retval != 0 {
		return fmt.Errorf("%w: retval %#x", ErrOperationFailed, out.Retval)
	}
	return nil
}
