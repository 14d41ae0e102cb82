package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Session Lifecycle Errors
	ErrPoolClosed           = errors.New("pool is closed")
	ErrSettlementInProgress = errors.New("settlement in progress")
	ErrPriceUnavailable     = errors.New("price unavailable")

	// Business Rule Rejections
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoTokens             = errors.New("no tokens to sell")
	ErrBelowMinimumNotional = errors.New("below minimum notional")
	ErrBelowMinTokens       = fmt.Errorf("%w: token amount below minimum", ErrBelowMinimumNotional)
	ErrProceedsTooSmall     = fmt.Errorf("%w: sale proceeds too small", ErrBelowMinimumNotional)

	// Price Source Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidRequest       = errors.New("invalid request parameters or format")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
	ErrDeleteFailed = errors.New("database delete failed")
)

// RejectionError is a business-rule rejection. It carries the attempted and
// available amounts for diagnostics and unwraps to one of the rejection sentinels.
type RejectionError struct {
	Err       error
	WalletID  string
	Attempted float64
	Available float64
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v (wallet=%s attempted=%g available=%g)", e.Err, e.WalletID, e.Attempted, e.Available)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// IsRejection reports whether err is a business-rule rejection with no side effect.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
