package fwctl

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// rpcEnvelope mirrors struct fwctl_rpc: the 32-byte value handed to the
// RPC ioctl. The in/out fields hold the buffer addresses for the duration
// of the call only.
type rpcEnvelope struct {
	size   uint32
	scope  uint32
	inLen  uint32
	outLen uint32
	in     uint64
	out    uint64
}

// Conn is an open fwctl character device.
type Conn struct {
	fd   int
	path string
}

// Open opens the control-plane character node at path.
func Open(path string) (*Conn, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("fwctl: open %s: %w", path, err)
	}
	return &Conn{fd: fd, path: path}, nil
}

func (c *Conn) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

// Exchange submits req through the RPC ioctl and blocks until the driver
// completes it. The kernel writes the reply into req.Out.
func (c *Conn) Exchange(req *Request) error {
	if len(req.In) == 0 || len(req.Out) == 0 {
		return ErrReleased
	}
	env := rpcEnvelope{
		size:   uint32(unsafe.Sizeof(rpcEnvelope{})),
		scope:  req.Scope,
		inLen:  uint32(len(req.In)),
		outLen: uint32(len(req.Out)),
		in:     uint64(uintptr(unsafe.Pointer(&req.In[0]))),
		out:    uint64(uintptr(unsafe.Pointer(&req.Out[0]))),
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), uintptr(IoctlRPC), uintptr(unsafe.Pointer(&env)))
	runtime.KeepAlive(req.In)
	runtime.KeepAlive(req.Out)
	if errno != 0 {
		return fmt.Errorf("fwctl: rpc ioctl %s: %w", c.path, errno)
	}
	return nil
}
