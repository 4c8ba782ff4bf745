package ledger

import "errors"

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient wallet balance")
	ErrInsufficientEscrow = errors.New("insufficient escrow balance")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrReferenceConflict  = errors.New("related_id already used with a different amount")
)
