package risk

import "github.com/shopspring/decimal"

// Guard 开仓前检查，返回错误即拒绝本次开仓。
type Guard interface {
	PreOpen(asset string, stake decimal.Decimal) error
}

// MultiGuard 顺序执行多个 Guard，只要有一个返回错误则中止。
type MultiGuard struct {
	Guards []Guard
}

func (m MultiGuard) PreOpen(asset string, stake decimal.Decimal) error {
	for _, g := range m.Guards {
		if g == nil {
			continue
		}
		if err := g.PreOpen(asset, stake); err != nil {
			return err
		}
	}
	return nil
}
