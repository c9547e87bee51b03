package monitor

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordResolved("WIN", "check", 8)
	m.RecordResolved("WIN", "check", 8)
	m.RecordResolved("LOSS", "timeout", -10)
	m.RecordForced("hard")
	m.RecordDuplicate("push")
	m.RecordQueryError("check")
	m.RecordQueryLatency("check", 120*time.Millisecond)
	m.RecordPushUnmatched()
	m.RecordPushAmbiguous()
	m.SetPending(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolved.WithLabelValues("WIN", "check")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolved.WithLabelValues("LOSS", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forced.WithLabelValues("hard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicates.WithLabelValues("push")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queryErrors.WithLabelValues("check")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushUnmatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushAmbiguous))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending))
}

func TestStreamAndEngineGauges(t *testing.T) {
	m := New(DefaultConfig())

	m.SetStreamConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamConnected))
	m.SetStreamConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.streamConnected))
	m.RecordStreamFrame("quote")
	m.RecordStreamFrame("quote")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.streamFrames.WithLabelValues("quote")))

	m.RecordOpened("primary")
	m.RecordOpened("reinforcement")
	m.RecordReinforcement()
	m.RecordOpenRejected("venue")
	m.UpdateRealizedPnL(-12.5)
	m.UpdateMartingaleStep(2)
	m.RecordRiskReject("daily_limit")
	m.UpdateRiskPaused(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersOpened.WithLabelValues("primary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reinforcements))
	assert.Equal(t, -12.5, testutil.ToFloat64(m.realizedPnL))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.martingaleStep))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.riskPaused))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordOpened("primary")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `bt_trading_orders_opened_total{kind="primary"} 1`)
}
