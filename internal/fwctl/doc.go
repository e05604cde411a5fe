// Package fwctl owns the userspace side of the firmware-control RPC:
// ioctl command numbers, the request envelope with its two caller-owned
// payload buffers, and the single synchronous exchange against an open
// fwctl character device.
//
// Ownership boundary:
// - envelope and buffer lifetime
// - the fwctl_rpc_cxl input/output wrappers framing every mailbox payload
// - transport outcome classification (errno vs device retval)
package fwctl
