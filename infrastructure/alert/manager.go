package alert

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 一条告警。Fields 中的 trade_id 参与去重。
type Alert struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// key 去重键：同级别同消息，若带 trade_id 则按订单区分。
func (a Alert) key() string {
	if id, ok := a.Fields["trade_id"]; ok {
		return fmt.Sprintf("%s|%s|%v", a.Level, a.Message, id)
	}
	return string(a.Level) + "|" + a.Message
}

// Channel 告警出口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 同一个键在 interval 内只放行一次，interval<=0 时不限流。
type Throttler struct {
	mu       sync.Mutex
	interval time.Duration
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		interval: interval,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow 检查并记录本次发送
func (t *Throttler) Allow(key string) bool {
	if t.interval <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Reset 清除单个键
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

// Clear 清除全部记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Stats 告警发送计数
type Stats struct {
	Sent       int64
	Suppressed int64
	Failed     int64
}

// Manager 把告警扇出到所有通道，带去重限流。
// 满足 order.Alerter，对账器的强制结算告警经由这里发出。
type Manager struct {
	channels []Channel
	throttle *Throttler

	mu    sync.Mutex
	stats Stats
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// Send 发送告警。只有全部通道都失败时才返回错误。
func (m *Manager) Send(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = m.throttle.now().UTC()
	}
	if !m.throttle.Allow(a.key()) {
		m.mu.Lock()
		m.stats.Suppressed++
		m.mu.Unlock()
		return nil
	}

	var errs error
	delivered := 0
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %s: %w", ch.Name(), err))
			continue
		}
		delivered++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if delivered == 0 && errs != nil {
		m.stats.Failed++
		return errs
	}
	m.stats.Sent++
	return nil
}

func (m *Manager) SendInfo(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelInfo, Message: message, Fields: fields})
}

func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

func (m *Manager) SendError(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelError, Message: message, Fields: fields})
}

func (m *Manager) SendCritical(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelCritical, Message: message, Fields: fields})
}

// Channels 通道名称
func (m *Manager) Channels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// GetStatistics 返回计数快照
func (m *Manager) GetStatistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ResetThrottle 清空去重记录
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
