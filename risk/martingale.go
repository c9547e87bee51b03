package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MartingaleConfig 倍投参数
type MartingaleConfig struct {
	BaseStake  decimal.Decimal
	Multiplier decimal.Decimal
	MaxSteps   int
}

// Validate 校验参数
func (c MartingaleConfig) Validate() error {
	if !c.BaseStake.IsPositive() {
		return fmt.Errorf("%w: base stake %s must be positive", ErrInvalidConfig, c.BaseStake)
	}
	if c.Multiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: multiplier %s must be >= 1", ErrInvalidConfig, c.Multiplier)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("%w: max steps %d must be >= 0", ErrInvalidConfig, c.MaxSteps)
	}
	return nil
}

// Martingale 倍投状态：stake = base * multiplier^step。
// 亏损且未到上限时 step+1；赢或在上限处再亏则回到 0；平局不变。
type Martingale struct {
	mu   sync.RWMutex
	cfg  MartingaleConfig
	step int
}

func NewMartingale(cfg MartingaleConfig) (*Martingale, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Martingale{cfg: cfg}, nil
}

// Stake 当前下注额
func (m *Martingale) Stake() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.BaseStake.Mul(m.cfg.Multiplier.Pow(decimal.NewFromInt(int64(m.step))))
}

// Step 当前步数
func (m *Martingale) Step() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.step
}

// MaxSteps 最大步数
func (m *Martingale) MaxSteps() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.MaxSteps
}

// OnOutcome 根据结果（WIN/LOSS/DRAW）推进步数，返回新的步数。
func (m *Martingale) OnOutcome(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch outcome {
	case "WIN":
		m.step = 0
	case "LOSS":
		if m.step < m.cfg.MaxSteps {
			m.step++
		} else {
			m.step = 0
		}
	}
	return m.step
}

// Reset 回到第 0 步
func (m *Martingale) Reset() {
	m.mu.Lock()
	m.step = 0
	m.mu.Unlock()
}

// Update 热更新参数；当前步数超过新上限时截断。
func (m *Martingale) Update(cfg MartingaleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	if m.step > cfg.MaxSteps {
		m.step = cfg.MaxSteps
	}
	return nil
}
