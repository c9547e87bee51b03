package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binary-trader-go/order"
)

func TestRESTVenueOpenCheckPoll(t *testing.T) {
	timeNowMillis = func() int64 { return 1234567890000 } // deterministic
	defer func() { timeNowMillis = func() int64 { return time.Now().UnixMilli() } }()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		want := Sign("secret", r.Method, r.URL.Path, "1234567890000", body)
		if r.Header.Get("X-SIGNATURE") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/options":
			var req map[string]interface{}
			_ = json.Unmarshal(body, &req)
			if req["direction"] != "put" || req["amount"] != "10" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			io.WriteString(w, `{"id":1001,"open_time":1700000000,"payout":"1.82","price":1.0851}`)
		case strings.HasSuffix(r.URL.Path, "/check"):
			io.WriteString(w, `{"result":"win","close_time":1700000060}`)
		case strings.HasSuffix(r.URL.Path, "/result"):
			io.WriteString(w, `-10`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	v := NewRESTVenue(ts.URL, "key", "secret", nil)
	ctx := context.Background()

	o, err := v.OpenOrder(ctx, order.OpenRequest{
		Asset:     "EURUSD",
		Direction: order.DirectionShort,
		Stake:     decimal.NewFromInt(10),
		Payout:    decimal.RequireFromString("1.8"),
		Duration:  time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "1001", o.Ref)
	assert.Equal(t, "EURUSD-1001", o.ID)
	assert.Equal(t, order.KindPrimary, o.Kind)
	assert.Equal(t, "1.82", o.Payout.String())
	assert.Equal(t, int64(1700000000), o.OpenedAt.Unix())
	assert.InDelta(t, 1.0851, o.EntryPrice, 1e-12)

	a, err := v.CheckResult(ctx, o.Ref)
	require.NoError(t, err)
	assert.Equal(t, order.AnswerFlag, a.Kind)
	assert.Equal(t, "win", a.Flag)

	a, err = v.PollResult(ctx, o.Ref)
	require.NoError(t, err)
	assert.Equal(t, order.AnswerNumeric, a.Kind)
	assert.Equal(t, "-10", a.Value.String())
}

func TestRESTVenueRejectsAndNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"asset closed"}`)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/check") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	v := NewRESTVenue(ts.URL, "key", "secret", nil)
	ctx := context.Background()

	_, err := v.OpenOrder(ctx, order.OpenRequest{Asset: "EURUSD", Direction: order.DirectionLong, Stake: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrOpenRejected)

	a, err := v.CheckResult(ctx, "1")
	require.NoError(t, err)
	assert.False(t, a.Present())

	_, err = v.PollResult(ctx, "1")
	assert.Error(t, err)
}

func TestRESTVenueHonoursContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	v := NewRESTVenue(ts.URL, "key", "secret", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := v.CheckResult(ctx, "1")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

type countingVenue struct {
	opens, checks, polls int
}

func (c *countingVenue) OpenOrder(context.Context, order.OpenRequest) (*order.Order, error) {
	c.opens++
	return &order.Order{ID: "x"}, nil
}

func (c *countingVenue) CheckResult(context.Context, string) (order.Answer, error) {
	c.checks++
	return order.NoAnswer(), nil
}

func (c *countingVenue) PollResult(context.Context, string) (order.Answer, error) {
	c.polls++
	return order.NoAnswer(), nil
}

func TestLimitedVenue(t *testing.T) {
	inner := &countingVenue{}
	assert.Same(t, order.Venue(inner), NewLimitedVenue(inner, nil))

	v := NewLimitedVenue(inner, NewTokenBucketLimiter(1000, 10))
	ctx := context.Background()
	_, err := v.OpenOrder(ctx, order.OpenRequest{})
	require.NoError(t, err)
	_, err = v.CheckResult(ctx, "r")
	require.NoError(t, err)
	_, err = v.PollResult(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.opens)
	assert.Equal(t, 1, inner.checks)
	assert.Equal(t, 1, inner.polls)

	// 令牌耗尽且 ctx 已取消时不调用下游
	slow := NewLimitedVenue(inner, NewTokenBucketLimiter(0.001, 1))
	_, _ = slow.CheckResult(ctx, "r")
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = slow.CheckResult(cctx, "r")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, inner.checks)
}

func TestTokenBucketLimiterWait(t *testing.T) {
	l := NewTokenBucketLimiter(50, 2)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	// 两个令牌立即可用，另外两个按 50/s 补充
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
