package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"binary-trader-go/order"
)

// Logger 在 zap 之上提供交易事件日志：订单记录、风控、会话、错误。
type Logger struct {
	*zap.Logger
	config Config
	now    func() time.Time
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
	MaxSize    int      `yaml:"max_size"`    // 单个日志文件最大MB
	MaxBackups int      `yaml:"max_backups"`
	MaxAge     int      `yaml:"max_age"` // 天
	Compress   bool     `yaml:"compress"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Outputs:    []string{"stdout"},
		Format:     "json",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// NewNop 不输出任何内容，测试默认使用。
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig(), now: time.Now}
}

// New 按配置组装输出：stdout、轮转文件、单独的错误文件。
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Format == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var cores []zapcore.Core
	for _, out := range cfg.Outputs {
		switch out {
		case "stdout":
			enc := zapcore.NewJSONEncoder(encCfg)
			if cfg.Format == "console" {
				enc = zapcore.NewConsoleEncoder(encCfg)
			}
			cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), level))
		case "file":
			if cfg.OutputFile == "" {
				continue
			}
			w, err := rotatingWriter(cfg, cfg.OutputFile)
			if err != nil {
				return nil, fmt.Errorf("open log file failed: %w", err)
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level))
		default:
			return nil, fmt.Errorf("unknown log output %q", out)
		}
	}
	if cfg.ErrorFile != "" {
		w, err := rotatingWriter(cfg, cfg.ErrorFile)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, zapcore.ErrorLevel))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zl, config: cfg, now: time.Now}, nil
}

// WithFields 返回带固定字段的子日志器
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(toZap(fields)...),
		config: l.config,
		now:    l.now,
	}
}

// LogRecord 写一条 OPEN/CLOSE 记录，字段与存储列一致。
func (l *Logger) LogRecord(rec order.Record) {
	event := "order_open"
	if rec.Status == order.StatusClose {
		event = "order_close"
	}
	fields := rec.Fields()
	fields["order_id"] = rec.TradeID
	l.event(zapcore.InfoLevel, "order_event", event, fields)
}

// LogTrade 交易流程事件：结算、会话汇总等。
func (l *Logger) LogTrade(event string, fields map[string]interface{}) {
	l.event(zapcore.InfoLevel, "trade_event", event, fields)
}

// LogRisk 风控事件：拒绝开仓、熔断。
func (l *Logger) LogRisk(event string, fields map[string]interface{}) {
	l.event(zapcore.WarnLevel, "risk_event", event, fields)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, ctx map[string]interface{}) {
	fields := make(map[string]interface{}, len(ctx)+1)
	for k, v := range ctx {
		fields[k] = v
	}
	fields["error"] = err.Error()
	l.event(zapcore.ErrorLevel, "error_event", "", fields)
}

func (l *Logger) event(level zapcore.Level, msg, event string, fields map[string]interface{}) {
	ce := l.Check(level, msg)
	if ce == nil {
		return
	}
	zf := toZap(fields)
	if event != "" {
		zf = append(zf, zap.String("event", event))
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	zf = append(zf, zap.String("ts", now().UTC().Format(time.RFC3339Nano)))
	ce.Write(zf...)
}

// toZap 按键名排序，输出稳定便于 grep。
func toZap(fields map[string]interface{}) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys)+2)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

// Close 刷新缓冲
func (l *Logger) Close() error {
	return l.Sync()
}

func rotatingWriter(cfg Config, path string) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}
