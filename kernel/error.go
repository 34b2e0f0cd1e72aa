package kernel

// ErrorKind classifies a kernel error. All kinds collapse to the same -1
// sentinel once they cross the syscall boundary.
type ErrorKind uint8

const (
	// InvalidArgument indicates a bad fd, pid, pointer or range.
	InvalidArgument ErrorKind = iota

	// NotFound indicates an unknown program or file.
	NotFound

	// ResourceExhausted indicates that no pid or descriptor slot is free.
	ResourceExhausted

	// NotSupported indicates an operation that the target does not
	// implement (writes to the read-only file system, signal syscalls).
	NotSupported

	// Fatal indicates an unhandled hardware exception. The machine halts
	// and no process-level recovery is attempted.
	Fatal
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case NotFound:
		return "not found"
	case ResourceExhausted:
		return "resource exhausted"
	case NotSupported:
		return "not supported"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure so callers can compare
// them by identity.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// The error class.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
