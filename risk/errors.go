package risk

import "errors"

var (
	ErrTooFrequent   = errors.New("open too frequent")
	ErrStakeExceed   = errors.New("single stake exceed")
	ErrDailyExceed   = errors.New("daily stake exceed")
	ErrStopLoss      = errors.New("session stop loss reached")
	ErrTakeProfit    = errors.New("session take profit reached")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrInvalidConfig = errors.New("invalid risk config")
)
