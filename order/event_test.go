package order

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPushEventNormalize(t *testing.T) {
	o := testOrder("a", t0)
	closeAt := t0.Add(60 * time.Second)

	tests := []struct {
		name    string
		label   string
		profit  float64
		outcome Outcome
		want    string
	}{
		{"win with amount", "win", 8.5, OutcomeWin, "8.5"},
		{"win without amount", "Won", 0, OutcomeWin, "5"},
		{"success label", "success", -4, OutcomeWin, "4"},
		{"loss with amount", "lost", 10, OutcomeLoss, "-10"},
		{"loss without amount", "loose", 0, OutcomeLoss, "-10"},
		{"draw", "refund", 3, OutcomeDraw, "0"},
		{"unknown label", "pending", 12, OutcomeLoss, "-10"},
		{"nan profit", "win", math.NaN(), OutcomeWin, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := PushEvent{CloseTime: closeAt, RawOutcome: tt.label, RawProfit: tt.profit}.normalize(o, closeAt)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.want, res.Profit.String())
			assert.Equal(t, SourcePush, res.Source)
		})
	}
}

func TestPollEventSignConvention(t *testing.T) {
	o := testOrder("a", t0)
	now := t0.Add(61 * time.Second)

	res := PollEvent{Value: decimal.RequireFromString("7.2")}.normalize(o, now)
	assert.Equal(t, OutcomeWin, res.Outcome)
	assert.Equal(t, "7.2", res.Profit.String())

	res = PollEvent{Value: decimal.RequireFromString("-10")}.normalize(o, now)
	assert.Equal(t, OutcomeLoss, res.Outcome)
	assert.Equal(t, "-10", res.Profit.String())

	res = PollEvent{Value: decimal.Zero}.normalize(o, now)
	assert.Equal(t, OutcomeDraw, res.Outcome)
	assert.True(t, res.Profit.IsZero())

	res = PollEvent{Malformed: true}.normalize(o, now)
	assert.Equal(t, OutcomeLoss, res.Outcome)
	assert.Equal(t, "-10", res.Profit.String())
	assert.Equal(t, now, res.CloseTime)
}

func TestCheckEventIsPessimistic(t *testing.T) {
	o := testOrder("a", t0)
	now := t0.Add(60 * time.Second)

	for _, flag := range []string{"win", "WON", " true "} {
		res := CheckEvent{Flag: flag}.normalize(o, now)
		assert.Equal(t, OutcomeWin, res.Outcome, flag)
		assert.Equal(t, "5", res.Profit.String(), flag)
	}
	for _, flag := range []string{"", "success", "draw", "1", "yes", "loss"} {
		res := CheckEvent{Flag: flag}.normalize(o, now)
		assert.Equal(t, OutcomeLoss, res.Outcome, flag)
		assert.Equal(t, "-10", res.Profit.String(), flag)
	}
}

func TestTimeoutEventAlwaysLoss(t *testing.T) {
	o := testOrder("a", t0)
	for _, tier := range []Escalation{EscalationNormal, EscalationSoft, EscalationHard} {
		res := TimeoutEvent{Tier: tier, At: t0.Add(70 * time.Second)}.normalize(o, time.Time{})
		assert.Equal(t, OutcomeLoss, res.Outcome)
		assert.Equal(t, "-10", res.Profit.String())
		assert.Equal(t, SourceTimeout, res.Source)
	}
}

func TestEventFromAnswers(t *testing.T) {
	assert.Nil(t, EventFromCheck(NoAnswer()))
	assert.Nil(t, EventFromPoll(NoAnswer()))

	assert.Equal(t, CheckEvent{Flag: "win"}, EventFromCheck(FlagAnswer("win")))
	assert.Equal(t, CheckEvent{}, EventFromCheck(MalformedAnswer("[1,2")))
	assert.Equal(t, CheckEvent{}, EventFromCheck(NumericAnswer(decimal.NewFromInt(5))))

	ev := EventFromPoll(NumericAnswer(decimal.NewFromInt(-3)))
	assert.Equal(t, SourcePoll, ev.Source())
	assert.Equal(t, PollEvent{Malformed: true}, EventFromPoll(MalformedAnswer("?")))
	assert.Equal(t, PollEvent{Malformed: true}, EventFromPoll(FlagAnswer("maybe")))
	assert.IsType(t, PushEvent{}, EventFromPoll(FlagAnswer("draw")))
}

func TestGraceEscalate(t *testing.T) {
	g := DefaultGrace()
	d := 60 * time.Second

	assert.Equal(t, EscalationNone, g.Escalate(62*time.Second, d))
	assert.Equal(t, EscalationNormal, g.Escalate(63*time.Second, d))
	assert.Equal(t, EscalationNormal, g.Escalate(67*time.Second, d))
	assert.Equal(t, EscalationSoft, g.Escalate(68*time.Second, d))
	assert.Equal(t, EscalationHard, g.Escalate(75*time.Second, d))
	assert.Equal(t, EscalationHard, g.Escalate(time.Hour, d))

	fixed := Grace{Normal: 5 * time.Second, Soft: time.Second}.withDefaults()
	assert.Equal(t, 8*time.Second, fixed.Soft)
	assert.Equal(t, 15*time.Second, fixed.Hard)
}
