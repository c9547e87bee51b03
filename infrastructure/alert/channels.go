package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapChannel 写入结构化日志的告警通道
type ZapChannel struct {
	logger *zap.Logger
	name   string
}

// NewZapChannel 创建日志告警通道
func NewZapChannel(name string, logger *zap.Logger) *ZapChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapChannel{
		logger: logger.Named("alert"),
		name:   name,
	}
}

// Send 按级别写日志
func (c *ZapChannel) Send(a Alert) error {
	fields := make([]zap.Field, 0, len(a.Fields)+2)
	fields = append(fields, zap.String("level_tag", string(a.Level)), zap.Time("alert_ts", a.Timestamp))
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if ce := c.logger.Check(levelOf(a.Level), a.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *ZapChannel) Name() string {
	return c.name
}

func levelOf(level Level) zapcore.Level {
	switch level {
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// WebhookChannel 以 JSON POST 推送告警（钉钉/飞书/自建网关）
type WebhookChannel struct {
	name   string
	url    string
	client *resty.Client
}

// NewWebhookChannel 创建 webhook 告警通道
func NewWebhookChannel(name, url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{
		name:   name,
		url:    url,
		client: resty.New().SetTimeout(timeout),
	}
}

type webhookBody struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Time    string                 `json:"time"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Send 推送告警，非 2xx 视为失败
func (c *WebhookChannel) Send(a Alert) error {
	resp, err := c.client.R().
		SetContext(context.Background()).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookBody{
			Level:   string(a.Level),
			Message: a.Message,
			Time:    a.Timestamp.UTC().Format(time.RFC3339),
			Fields:  a.Fields,
		}).
		Post(c.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook status %d", resp.StatusCode())
	}
	return nil
}

// Name 返回通道名称
func (c *WebhookChannel) Name() string {
	return c.name
}
