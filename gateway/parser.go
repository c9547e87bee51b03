package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"binary-trader-go/order"
)

var (
	// ErrMalformedAnswer 无法解析的 JSON
	ErrMalformedAnswer = errors.New("malformed venue answer")
	// ErrNotCloseEvent 推送帧不是平仓事件（行情、心跳等），调用方直接忽略
	ErrNotCloseEvent = errors.New("not an option close event")
	// ErrNotQuote 推送帧不是行情
	ErrNotQuote = errors.New("not a quote frame")
)

// CloseEventName 券商推送的平仓事件名。
const CloseEventName = "option-closed"

// 尚未结算时券商常见的占位状态
var pendingStates = map[string]struct{}{
	"":        {},
	"open":    {},
	"opened":  {},
	"pending": {},
	"active":  {},
	"null":    {},
	"none":    {},
}

// ParseCheckAnswer 解析权威查询（check）的返回。
//
// 支持的形态：null、"win"、true、[true, 12.5]、{"result":"win","close_time":...}。
// 数字原样作为 Numeric 交给核心，核心不会把它当作赢标记。
func ParseCheckAnswer(raw []byte) (order.Answer, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return order.MalformedAnswer(string(raw)), err
	}
	return answerFromValue(v, string(raw), false), nil
}

// ParsePollAnswer 解析后台轮询的返回：带符号金额，正赢负亏零平。
//
// 支持的形态：null、-10、"5.5"、{"amount":5.5}、{"profit":-10,"close_time":...}。
// 轮询接口偶尔返回文字标记，保留为 Flag 交由核心按推送词表解释。
func ParsePollAnswer(raw []byte) (order.Answer, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return order.MalformedAnswer(string(raw)), err
	}
	return answerFromValue(v, string(raw), true), nil
}

func decodeAny(raw []byte) (interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	return v, nil
}

// answerFromValue numeric 为 true 时按轮询约定优先解释数字。
func answerFromValue(v interface{}, raw string, numeric bool) order.Answer {
	switch x := v.(type) {
	case nil:
		return order.NoAnswer()
	case bool:
		return order.FlagAnswer(strconv.FormatBool(x))
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return order.MalformedAnswer(raw)
		}
		return order.NumericAnswer(d)
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if _, pending := pendingStates[s]; pending {
			return order.NoAnswer()
		}
		if numeric {
			if d, err := decimal.NewFromString(s); err == nil {
				return order.NumericAnswer(d)
			}
		}
		return order.FlagAnswer(s)
	case []interface{}:
		// 元组形态只看第一个元素
		if len(x) == 0 {
			return order.NoAnswer()
		}
		return answerFromValue(x[0], raw, numeric)
	case map[string]interface{}:
		a := answerFromObject(x, raw, numeric)
		if a.Present() {
			a.CloseTime = closeTimeOf(x)
		}
		return a
	default:
		return order.MalformedAnswer(raw)
	}
}

func answerFromObject(m map[string]interface{}, raw string, numeric bool) order.Answer {
	flagKeys := []string{"result", "win", "status", "outcome", "flag"}
	amountKeys := []string{"amount", "profit", "profit_amount", "pnl", "value"}

	first, second := flagKeys, amountKeys
	if numeric {
		first, second = amountKeys, flagKeys
	}
	for _, keys := range [][]string{first, second} {
		for _, k := range keys {
			v, ok := m[k]
			if !ok || v == nil {
				continue
			}
			a := answerFromValue(v, raw, numeric)
			if a.Kind == order.AnswerNone {
				// 显式的挂起状态：整个结果视为尚未结算
				return a
			}
			if a.Kind == order.AnswerMalformed {
				continue
			}
			if !numeric && a.Kind == order.AnswerNumeric {
				continue
			}
			return a
		}
	}
	return order.MalformedAnswer(raw)
}

func closeTimeOf(m map[string]interface{}) time.Time {
	for _, k := range []string{"close_time", "actual_expire", "expiration_time"} {
		if ts, ok := unixTime(m[k]); ok {
			return ts
		}
	}
	return time.Time{}
}

// unixTime 接受秒或毫秒时间戳（数字或字符串）。
func unixTime(v interface{}) (time.Time, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		f = n
	case float64:
		f = x
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return time.Time{}, false
		}
		f = n
	default:
		return time.Time{}, false
	}
	if f <= 0 {
		return time.Time{}, false
	}
	if f > 1e12 {
		f /= 1000
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC(), true
}

// pushFrame 券商 WebSocket 帧：{"name":"option-closed","msg":{...}}
type pushFrame struct {
	Name string                 `json:"name"`
	Msg  map[string]interface{} `json:"msg"`
}

// ParsePushFrame 解析推送帧。非平仓事件返回 ErrNotCloseEvent。
// 订单号字段不可靠，Ref 仅作为优先匹配的提示。
func ParsePushFrame(raw []byte) (order.PushEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var frame pushFrame
	if err := dec.Decode(&frame); err != nil {
		return order.PushEvent{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	if frame.Name != CloseEventName {
		return order.PushEvent{}, ErrNotCloseEvent
	}
	if frame.Msg == nil {
		return order.PushEvent{}, fmt.Errorf("%w: empty close event", ErrMalformedAnswer)
	}
	m := frame.Msg

	ev := order.PushEvent{
		Ref:       firstString(m, "id", "option_id", "position_id", "external_id"),
		Asset:     firstString(m, "asset", "active", "symbol"),
		CloseTime: closeTimeOf(m),
	}
	ev.RawOutcome = firstString(m, "result", "win", "outcome")
	ev.RawProfit = firstFloat(m, "profit_amount", "profit", "pnl")
	if ev.RawOutcome == "" {
		// 没有结果文字时按金额符号推断
		switch {
		case ev.RawProfit > 0:
			ev.RawOutcome = "win"
		case ev.RawProfit < 0:
			ev.RawOutcome = "loss"
		}
	}
	return ev, nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch x := m[k].(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return s
			}
		case json.Number:
			return x.String()
		case bool:
			return strconv.FormatBool(x)
		case []interface{}:
			if len(x) > 0 {
				if n, ok := x[0].(json.Number); ok {
					return n.String()
				}
				if s, ok := x[0].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func firstFloat(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch x := m[k].(type) {
		case json.Number:
			if f, err := x.Float64(); err == nil && f != 0 {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && f != 0 {
				return f
			}
		}
	}
	return 0
}

// QuoteEventName 行情帧事件名。
const QuoteEventName = "candle-generated"

// Quote 行情帧中的最新价。
type Quote struct {
	Asset string
	Price float64
	Ts    time.Time
}

// ParseQuoteFrame 解析行情帧：{"name":"candle-generated","msg":{"active":"EURUSD","close":1.1,"at":...}}
func ParseQuoteFrame(raw []byte) (Quote, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var frame pushFrame
	if err := dec.Decode(&frame); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	if frame.Name != QuoteEventName || frame.Msg == nil {
		return Quote{}, ErrNotQuote
	}
	q := Quote{
		Asset: firstString(frame.Msg, "asset", "active", "symbol"),
		Price: firstFloat(frame.Msg, "close", "price", "value"),
	}
	if q.Asset == "" || q.Price <= 0 {
		return Quote{}, fmt.Errorf("%w: incomplete quote", ErrMalformedAnswer)
	}
	for _, k := range []string{"at", "ts", "to"} {
		if ts, ok := unixTime(frame.Msg[k]); ok {
			q.Ts = ts
			break
		}
	}
	return q, nil
}
