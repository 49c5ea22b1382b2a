package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Failure kinds shared by all engine modules. Handlers wrap these with
// fmt.Errorf("...: %w", ...) so callers can match the kind with errors.Is
// while still seeing the operation-specific message.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSaleInactive          = errors.New("sale inactive")
	ErrReserveExhausted      = errors.New("reserve exhausted")
	ErrListingNotFound       = errors.New("listing not found")
	ErrAlreadySettled        = errors.New("listing already settled")
	ErrNotSeller             = errors.New("caller is not the seller")
	ErrTransferNotApproved   = errors.New("transfer not approved")
	ErrAlreadyInitialized    = errors.New("already initialized")
	ErrNothingToWithdraw     = errors.New("nothing to withdraw")
)
