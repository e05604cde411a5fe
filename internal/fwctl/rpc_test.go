package fwctl

import (
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"
)

func TestNewRequestBuffersSizedZeroedAligned(t *testing.T) {
	cases := []struct {
		name    string
		in, out int
	}{
		{"header only", InputHeaderSize, OutputHeaderSize},
		{"discovery phase two", 24, 64},
		{"set feature", 52, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := NewRequest(ScopeConfiguration, tc.in, tc.out)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			defer req.Release()

			if len(req.In) != tc.in || len(req.Out) != tc.out {
				t.Fatalf("buffer sizes %d/%d, want %d/%d", len(req.In), len(req.Out), tc.in, tc.out)
			}
			for i, b := range req.In {
				if b != 0 {
					t.Fatalf("input byte %d not zeroed", i)
				}
			}
			for i, b := range req.Out {
				if b != 0 {
					t.Fatalf("output byte %d not zeroed", i)
				}
			}
			if p := uintptr(unsafe.Pointer(&req.In[0])); p%BufferAlign != 0 {
				t.Fatalf("input buffer misaligned: %#x", p)
			}
			if p := uintptr(unsafe.Pointer(&req.Out[0])); p%BufferAlign != 0 {
				t.Fatalf("output buffer misaligned: %#x", p)
			}
		})
	}
}

func TestNewRequestRejectsShortBuffers(t *testing.T) {
	if _, err := NewRequest(ScopeConfiguration, InputHeaderSize-1, OutputHeaderSize); !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
	if _, err := NewRequest(ScopeConfiguration, InputHeaderSize, OutputHeaderSize-1); !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
}

func TestAllocationFailureReleasesEverything(t *testing.T) {
	origAlloc, origFree := alloc, free
	defer func() { alloc, free = origAlloc, origFree }()

	var allocated, freed int
	alloc = func(n int) []byte {
		allocated++
		if allocated == 2 {
			return nil
		}
		return make([]byte, n)
	}
	free = func(b []byte) { freed++ }

	req, err := NewRequest(ScopeConfiguration, 24, 64)
	if !errors.Is(err, ErrAllocFailed) {
		t.Fatalf("expected ErrAllocFailed, got %v", err)
	}
	if req != nil {
		t.Fatal("no request should survive a failed build")
	}
	if freed != allocated-1 {
		t.Fatalf("allocation imbalance: %d allocated, %d freed", allocated, freed)
	}
}

func TestReleaseBalancesAllocations(t *testing.T) {
	origAlloc, origFree := alloc, free
	defer func() { alloc, free = origAlloc, origFree }()

	var allocated, freed int
	alloc = func(n int) []byte { allocated++; return make([]byte, n) }
	free = func(b []byte) { freed++ }

	req, err := NewRequest(ScopeDebugWriteFull, 24, 16)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Release()
	req.Release() // second call must be a no-op, not a double free
	if freed != allocated {
		t.Fatalf("allocation imbalance: %d allocated, %d freed", allocated, freed)
	}
	if req.In != nil || req.Out != nil {
		t.Fatal("released request still exposes buffers")
	}
}

func TestEncodeInputHeaderLayout(t *testing.T) {
	buf := make([]byte, InputHeaderSize)
	if err := EncodeInputHeader(buf, 0x0501, 21); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != 0x0501 {
		t.Errorf("opcode = %#x", got)
	}
	if got := binary.LittleEndian.Uint32(buf[4:8]); got != 0 {
		t.Errorf("flags = %#x, expected 0", got)
	}
	if got := binary.LittleEndian.Uint32(buf[8:12]); got != 21 {
		t.Errorf("op_size = %d, expected 21", got)
	}

	if err := EncodeInputHeader(buf[:InputHeaderSize-1], 0x0501, 21); !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
}

func TestDecodeOutput(t *testing.T) {
	buf := make([]byte, OutputHeaderSize+4)
	binary.LittleEndian.PutUint32(buf[0:4], 12)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint32(buf[8:12], 0xdeadbeef)

	out, err := DecodeOutput(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Size != 12 || out.Retval != 0 {
		t.Fatalf("wrapper mismatch: %+v", out)
	}
	if got := binary.LittleEndian.Uint32(out.Payload); got != 0xdeadbeef {
		t.Fatalf("payload = %#x", got)
	}

	if _, err := DecodeOutput(buf[:OutputHeaderSize-1]); !errors.Is(err, ErrShortOutput) {
		t.Fatalf("expected ErrShortOutput, got %v", err)
	}
}

type stubExchanger struct {
	err    error
	retval uint32
	calls  int
}

func (s *stubExchanger) Exchange(req *Request) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	binary.LittleEndian.PutUint32(req.Out[4:8], s.retval)
	return nil
}

func TestSendClassifiesDeviceFailure(t *testing.T) {
	req, err := NewRequest(ScopeConfiguration, InputHeaderSize, OutputHeaderSize)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	defer req.Release()

	if err := Send(&stubExchanger{retval: 0x2}, req); !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("expected ErrOperationFailed, got %v", err)
	}
	if err := Send(&stubExchanger{}, req); err != nil {
		t.Fatalf("clean exchange should succeed, got %v", err)
	}
}

func TestSendPropagatesTransportError(t *testing.T) {
	req, err := NewRequest(ScopeConfiguration, InputHeaderSize, OutputHeaderSize)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	defer req.Release()

	boom := errors.New("transport down")
	if err := Send(&stubExchanger{err: boom}, req); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
