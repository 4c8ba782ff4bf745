package topup

import "errors"

var (
	ErrNotFound      = errors.New("topup request not found")
	ErrForbidden     = errors.New("topup request belongs to another user")
	ErrNotPending    = errors.New("topup request is not pending")
	ErrCodeExhausted = errors.New("could not generate a unique transfer code")
)
