package engine

import "errors"

// Validation errors. All are rejected synchronously with no state change.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMarketNotActive     = errors.New("market is not active")
	ErrMarketClosed        = errors.New("market deadline has passed")
	ErrInvalidOutcome      = errors.New("invalid outcome for market")
	ErrAmountOutOfBounds   = errors.New("amount outside market bet bounds")

	// ErrOutcomeRequired is returned when a market cannot derive its own
	// winning outcome and none was supplied.
	ErrOutcomeRequired = errors.New("winning outcome required")

	// ErrFinalPriceRequired is returned when a price market is resolved
	// without a final price.
	ErrFinalPriceRequired = errors.New("final price required")
)
