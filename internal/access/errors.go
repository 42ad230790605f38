package access

// Error codes surfaced to HTTP callers. Every gate failure is a denial the
// caller maps to a response; none of them is a fault.
const (
	CodeNotFound            = "not_found"
	CodeUnauthorized        = "unauthorized"
	CodeMalformedIdentifier = "malformed_identifier"
	CodeLastOwner           = "last_owner"
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNotFound means no space contains the requested channel.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "channel not found"}
	// ErrUnauthorized means the resolved identity lacks membership or role.
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "access denied"}
	// ErrMalformedIdentifier means an id could not be normalized.
	ErrMalformedIdentifier = &Error{Code: CodeMalformedIdentifier, Message: "malformed identifier"}
	// ErrLastOwner means the mutation would leave the channel without an owner.
	ErrLastOwner = &Error{Code: CodeLastOwner, Message: "channel must keep at least one owner"}
)
