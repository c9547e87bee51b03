package alert

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockChannel struct {
	name      string
	mu        sync.Mutex
	alerts    []Alert
	shouldErr bool
}

func (c *mockChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return errors.New("mock error")
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *mockChannel) Name() string { return c.name }

func (c *mockChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func TestSendErrorSetsLevelAndTimestamp(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Minute)

	require.NoError(t, mgr.SendError("hard timeout", map[string]interface{}{"trade_id": "EURUSD-1"}))
	require.Equal(t, 1, ch.count())
	a := ch.alerts[0]
	assert.Equal(t, LevelError, a.Level)
	assert.Equal(t, "EURUSD-1", a.Fields["trade_id"])
	assert.False(t, a.Timestamp.IsZero())
	assert.Equal(t, []string{"mock"}, mgr.Channels())
}

func TestThrottlePerTradeID(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Hour)

	require.NoError(t, mgr.SendError("hard timeout", map[string]interface{}{"trade_id": "A-1"}))
	require.NoError(t, mgr.SendError("hard timeout", map[string]interface{}{"trade_id": "A-1"}))
	require.NoError(t, mgr.SendError("hard timeout", map[string]interface{}{"trade_id": "A-2"}))
	require.NoError(t, mgr.SendWarning("hard timeout", nil))
	assert.Equal(t, 3, ch.count())
	assert.Equal(t, Stats{Sent: 3, Suppressed: 1}, mgr.GetStatistics())

	mgr.ResetThrottle()
	require.NoError(t, mgr.SendError("hard timeout", map[string]interface{}{"trade_id": "A-1"}))
	assert.Equal(t, 4, ch.count())
}

func TestThrottlerInterval(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewThrottler(time.Minute)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("k"))
	assert.False(t, th.Allow("k"))
	now = now.Add(time.Minute)
	assert.True(t, th.Allow("k"))
	th.Reset("k")
	assert.True(t, th.Allow("k"))
}

func TestChannelFailures(t *testing.T) {
	bad := &mockChannel{name: "bad", shouldErr: true}
	good := &mockChannel{name: "good"}

	mgr := NewManager([]Channel{bad}, 0)
	err := mgr.SendCritical("down", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel bad")
	assert.Equal(t, int64(1), mgr.GetStatistics().Failed)

	// 部分失败不返回错误
	mgr = NewManager([]Channel{bad, good}, 0)
	assert.NoError(t, mgr.SendInfo("up", nil))
	assert.NoError(t, mgr.SendInfo("up", nil))
	assert.Equal(t, 2, good.count())
	assert.Equal(t, []string{"bad", "good"}, mgr.Channels())
}

func TestZapChannelWritesLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ch := NewZapChannel("log", zap.New(core))

	require.NoError(t, ch.Send(Alert{Level: LevelWarning, Message: "stale feed", Fields: map[string]interface{}{"asset": "EURUSD"}}))
	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Message: "stream gave up"}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "EURUSD", entries[0].ContextMap()["asset"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "log", ch.Name())
}

func TestWebhookChannel(t *testing.T) {
	var got webhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got.Message == "reject" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ch := NewWebhookChannel("hook", srv.URL, time.Second)
	require.NoError(t, ch.Send(Alert{Level: LevelError, Message: "hard timeout", Timestamp: time.Unix(0, 0), Fields: map[string]interface{}{"stake": "10"}}))
	assert.Equal(t, string(LevelError), got.Level)
	assert.Equal(t, "10", got.Fields["stake"])
	assert.Equal(t, "1970-01-01T00:00:00Z", got.Time)

	assert.Error(t, ch.Send(Alert{Level: LevelError, Message: "reject"}))
}

func TestConcurrentAlerts(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.SendError("same", nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ch.count())
}
