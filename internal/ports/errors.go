package ports

import "errors"

// Standard application-level errors.
// Adapters and services wrap underlying errors with these sentinels so callers
// can branch with errors.Is. Every error here is an expected, recoverable
// outcome; nothing in the core terminates the process.
var (
	// Ledger errors
	ErrInvalidArgument    = errors.New("invalid argument: ticker must be set, shares and price must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds for purchase")
	ErrNoPosition         = errors.New("no open position for ticker")
	ErrInsufficientShares = errors.New("sell exceeds owned shares")

	// Market data errors
	ErrPriceUnavailable = errors.New("price unavailable for ticker")
	ErrBelowMarket      = errors.New("purchase price below current market price")

	// Database errors
	ErrNotFound     = errors.New("record not found")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
