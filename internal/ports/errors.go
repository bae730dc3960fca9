package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown          = errors.New("unknown error occurred")
	ErrInvalidRequest   = errors.New("invalid request parameters or format")
	ErrNotFound         = errors.New("resource not found")
	ErrTimeout          = errors.New("operation timed out")
	ErrContextCanceled  = errors.New("operation canceled via context")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidConfig    = errors.New("invalid or missing configuration")

	// Engine Errors
	ErrInsufficientData = errors.New("not enough candles for calculation")
	ErrCapacityExceeded = errors.New("maximum open positions reached")
	ErrDuplicateEntry   = errors.New("symbol already has an open position")
	ErrExecution        = errors.New("execution gateway call failed")
	ErrCooldown         = errors.New("entries paused after insufficient balance")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrDuplicateOrder       = errors.New("client order id already used on the exchange")

	// Database Specific Errors
	ErrRecordExists = errors.New("database record already exists")
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)

// IsTransient reports whether err is worth retrying against the exchange.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrContextCanceled),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrInvalidAPIKeys),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrDuplicateOrder):
		return false
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrExchangeUnavailable),
		errors.Is(err, ErrUnknown):
		return true
	}
	return false
}
