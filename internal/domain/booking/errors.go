package booking

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("booking not found")
	ErrForbidden = errors.New("booking belongs to another user")
)

// InvalidTransitionError reports an illegal state machine move, carrying
// the state the booking was actually in when the request arrived.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition booking from %s to %s", e.From, e.To)
}

// AsInvalidTransition unwraps err into an InvalidTransitionError if it is one
func AsInvalidTransition(err error) (*InvalidTransitionError, bool) {
	var ite *InvalidTransitionError
	ok := errors.As(err, &ite)
	return ite, ok
}
