package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memSink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *memSink) Persist(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memSink) closes(id string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.Status == StatusClose && r.TradeID == id {
			out = append(out, r)
		}
	}
	return out
}

type scriptedStep struct {
	answer Answer
	err    error
}

// scriptedVenue 按顺序返回预设结果，脚本用完后一直返回最后一项。
type scriptedVenue struct {
	mu     sync.Mutex
	steps  []scriptedStep
	calls  int
	delay  time.Duration
	byRef  map[string]Answer
	polled []string
}

func (v *scriptedVenue) next() (Answer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if len(v.steps) == 0 {
		return NoAnswer(), nil
	}
	idx := v.calls - 1
	if idx >= len(v.steps) {
		idx = len(v.steps) - 1
	}
	return v.steps[idx].answer, v.steps[idx].err
}

func (v *scriptedVenue) CheckResult(ctx context.Context, ref string) (Answer, error) {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return Answer{}, ctx.Err()
		}
	}
	return v.next()
}

func (v *scriptedVenue) PollResult(ctx context.Context, ref string) (Answer, error) {
	v.mu.Lock()
	v.polled = append(v.polled, ref)
	if a, ok := v.byRef[ref]; ok {
		v.mu.Unlock()
		return a, nil
	}
	v.mu.Unlock()
	return v.next()
}

func (v *scriptedVenue) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

var errVenueDown = errors.New("venue unavailable")

func testOrder(id string, openedAt time.Time) Order {
	return Order{
		ID:         id,
		Ref:        "ref-" + id,
		Asset:      "EURUSD",
		Direction:  DirectionLong,
		Kind:       KindPrimary,
		Stake:      decimal.NewFromInt(10),
		Payout:     decimal.RequireFromString("1.5"),
		EntryPrice: 100,
		OpenedAt:   openedAt,
		Duration:   60 * time.Second,
		Regime:     "trend",
		Reason:     "test",
	}
}

func newTestReconciler(clock *fakeClock, poller Poller, sink ResultSink) *Reconciler {
	return NewReconciler(NewPendingTable(), poller, sink, ReconcilerConfig{
		Interval: 10 * time.Millisecond,
		Now:      clock.Now,
	})
}
