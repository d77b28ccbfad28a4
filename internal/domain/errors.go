package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEventNotFound   = errors.New("voting event not found")
	ErrGrantNotFound   = errors.New("grant not found")
	ErrAlreadyGranted  = errors.New("already granted")
	ErrAccountNotFound = errors.New("7tv account not found")
	ErrNoCredential    = errors.New("no stored credential")
)

// Rejection is a refusal, not a failure: bad schedule bounds, denied
// permission, missing records. Handlers surface it verbatim as
// {"success": false, "message": Reason} and never as an HTTP error.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func Reject(format string, args ...any) *Rejection {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
