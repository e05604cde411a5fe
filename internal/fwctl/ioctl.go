package fwctl

// Linux ioctl number layout, as encoded by the kernel _IOC macros.
const (
	IocNrShift   = 0
	IocTypeShift = 8
	IocSizeShift = 16
	IocDirShift  = 30
)

// fwctl UAPI: all commands use the 0x9A type with direction NONE and a
// zero size field; the envelope carries its own length.
const fwctlIoctlType = 0x9A

const (
	cmdInfo = 0
	cmdRPC  = 1
)

const (
	// IoctlInfo queries device identity (unused by this client, kept for
	// completeness of the command set).
	IoctlInfo uint32 = fwctlIoctlType<<IocTypeShift | cmdInfo<<IocNrShift
	// IoctlRPC submits one request envelope and blocks for completion.
	IoctlRPC uint32 = fwctlIoctlType<<IocTypeShift | cmdRPC<<IocNrShift
)

// Privilege scopes a request may declare. Reads of device configuration
// use ScopeConfiguration; mutating operations must escalate to
// ScopeDebugWriteFull.
const (
	ScopeConfiguration  uint32 = 0
	ScopeDebugReadOnly  uint32 = 1
	ScopeDebugWrite     uint32 = 2
	ScopeDebugWriteFull uint32 = 3
)
