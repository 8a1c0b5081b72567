package order

import (
	"errors"

	"multiaccount-trade/internal/gateway"
)

// Failures of a trading intent. None of them is fatal: the router logs the
// failure and reports an empty id for the affected leg.
var (
	ErrMissingMarketData  = errors.New("missing market data")
	ErrMissingPosition    = errors.New("missing position")
	ErrInsufficientVolume = errors.New("insufficient close volume")
	ErrInvalidVolume      = errors.New("volume must be positive")
	ErrSubmissionFailure  = errors.New("order submission failed")
	ErrGatewayNotFound    = gateway.ErrGatewayNotFound
)
