package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每类交易记录所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

var recordFields = []string{
	"timestamp", "status", "trade_id", "asset", "direction", "stake", "payout",
	"regime", "reason", "entry_price",
}

var schemas = map[string]Schema{
	"order_open": {
		Event:    "order_open",
		Required: recordFields,
	},
	"order_close": {
		Event:    "order_close",
		Required: append(append([]string(nil), recordFields...), "outcome", "profit", "open_time", "close_time", "duration_sec"),
	},
	"risk_event": {
		Event:    "risk_event",
		Required: []string{"asset", "reason"},
	},
	"forced_resolution": {
		Event:    "forced_resolution",
		Required: []string{"trade_id", "tier", "stake"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// EventForStatus 按记录状态（OPEN/CLOSE）选择 schema。
func EventForStatus(status string) string {
	switch strings.ToUpper(status) {
	case "OPEN":
		return "order_open"
	case "CLOSE":
		return "order_close"
	default:
		return ""
	}
}

// Validate 检查字段是否包含 schema 中要求的 key。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s missing fields: %s", event, strings.Join(missing, ","))
	}
	return nil
}
