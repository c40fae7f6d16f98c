package kernel

// ErrorKind classifies an Error so that callers can branch on the failure
// without string-matching Message.
type ErrorKind uint8

const (
	// ErrUnspecified is the zero value for errors that predate ErrorKind
	// or that do not fit one of the named kinds below.
	ErrUnspecified ErrorKind = iota

	// OutOfFrames means a ContFramePool could not satisfy a GetFrames
	// request.
	OutOfFrames

	// InvalidRelease means ReleaseFrames was asked to release a frame
	// that does not belong to any pool, or that is not a head-of-sequence
	// frame, or that VMPool.Release found no region starting at the given
	// address.
	InvalidRelease

	// RegionTableFull means a VMPool's fixed-capacity descriptor array
	// has no room left for a new region.
	RegionTableFull

	// UnmappedFault means the page-fault handler found no VMPool willing
	// to vouch for the faulting address.
	UnmappedFault
)

// Error describes a kernel kerror. All kernel errors must be defined as global
// variables that are pointers to the Error structure. This requirement stems
// from the fact that the Go allocator is not available to us so we cannot use
// errors.New.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// Kind classifies the error for callers that need to branch on it.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
