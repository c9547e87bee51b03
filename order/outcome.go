package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AnswerKind 券商查询结果的形态。
type AnswerKind int

const (
	// AnswerNone 尚无结果（订单仍在进行或券商返回 null）
	AnswerNone AnswerKind = iota
	// AnswerFlag 权威查询返回的胜负标记
	AnswerFlag
	// AnswerNumeric 轮询接口返回的带符号金额
	AnswerNumeric
	// AnswerMalformed 无法识别的返回形态
	AnswerMalformed
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerNone:
		return "none"
	case AnswerFlag:
		return "flag"
	case AnswerNumeric:
		return "numeric"
	case AnswerMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Answer 是边界解析后的统一结果。券商原始返回（tuple、map、字符串、数字）
// 必须先经过 gateway 的解析器转换为 Answer，核心逻辑不接触原始形态。
type Answer struct {
	Kind      AnswerKind
	Flag      string
	Value     decimal.Decimal
	CloseTime time.Time
	Raw       string
}

// NoAnswer 表示本轮没有结果。
func NoAnswer() Answer { return Answer{Kind: AnswerNone} }

// FlagAnswer 构造权威查询结果。
func FlagAnswer(flag string) Answer { return Answer{Kind: AnswerFlag, Flag: flag, Raw: flag} }

// NumericAnswer 构造轮询结果。
func NumericAnswer(v decimal.Decimal) Answer {
	return Answer{Kind: AnswerNumeric, Value: v, Raw: v.String()}
}

// MalformedAnswer 记录无法解析的原始内容。
func MalformedAnswer(raw string) Answer { return Answer{Kind: AnswerMalformed, Raw: raw} }

// Present 是否带有终态信息（包括无法识别的形态，按亏损处理）。
func (a Answer) Present() bool {
	return a.Kind != AnswerNone
}

// IsAffirmativeWin 仅当标记明确为 win/won/true 时判定为赢。
// 缺少明确的赢标记一律按亏损处理。
func IsAffirmativeWin(flag string) bool {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "win", "won", "true":
		return true
	default:
		return false
	}
}

// NormalizeLabel 识别推送事件里的结果文字，未识别返回空串。
func NormalizeLabel(label string) Outcome {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "win", "won", "success", "victory", "true":
		return OutcomeWin
	case "loss", "loose", "lost", "fail", "failed", "defeat", "losses", "false":
		return OutcomeLoss
	case "draw", "tie", "equal", "refund", "refunded":
		return OutcomeDraw
	default:
		return ""
	}
}

// OutcomeFromSign 轮询接口的符号约定：正为赢，负为亏，零为平。
func OutcomeFromSign(v decimal.Decimal) (Outcome, decimal.Decimal) {
	switch v.Sign() {
	case 1:
		return OutcomeWin, v.Abs()
	case -1:
		return OutcomeLoss, v.Abs().Neg()
	default:
		return OutcomeDraw, decimal.Zero
	}
}

// Escalation 超时升级等级，仅影响日志级别与告警，不影响结果。
type Escalation int

const (
	EscalationNone Escalation = iota
	EscalationNormal
	EscalationSoft
	EscalationHard
)

func (e Escalation) String() string {
	switch e {
	case EscalationNone:
		return "none"
	case EscalationNormal:
		return "normal"
	case EscalationSoft:
		return "soft"
	case EscalationHard:
		return "hard"
	default:
		return "unknown"
	}
}

// Grace 到期后的三级宽限。
type Grace struct {
	Normal time.Duration
	Soft   time.Duration
	Hard   time.Duration
}

// DefaultGrace d+3 / d+8 / d+15。
func DefaultGrace() Grace {
	return Grace{
		Normal: 3 * time.Second,
		Soft:   8 * time.Second,
		Hard:   15 * time.Second,
	}
}

func (g Grace) withDefaults() Grace {
	def := DefaultGrace()
	if g.Normal <= 0 {
		g.Normal = def.Normal
	}
	if g.Soft < g.Normal {
		g.Soft = def.Soft
		if g.Soft < g.Normal {
			g.Soft = g.Normal
		}
	}
	if g.Hard < g.Soft {
		g.Hard = def.Hard
		if g.Hard < g.Soft {
			g.Hard = g.Soft
		}
	}
	return g
}

// Escalate 根据已用时间与合约时长计算升级等级。
func (g Grace) Escalate(elapsed, duration time.Duration) Escalation {
	switch {
	case elapsed < duration+g.Normal:
		return EscalationNone
	case elapsed < duration+g.Soft:
		return EscalationNormal
	case elapsed < duration+g.Hard:
		return EscalationSoft
	default:
		return EscalationHard
	}
}
