package draft

import "errors"

// ErrInvalidArgument marks a malformed request, as opposed to a request
// the draft's current state rejects.
var ErrInvalidArgument = errors.New("invalid argument")
