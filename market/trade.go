package market

import "time"

// Tick 标准化后的报价。
type Tick struct {
	Asset string
	Price float64
	Ts    time.Time
}
