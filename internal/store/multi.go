package store

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"binary-trader-go/monitor/logschema"
	"binary-trader-go/order"
)

// MultiSink 先按 schema 校验记录，再写入所有下游。
// 单个下游失败不影响其他下游，错误合并返回。
type MultiSink struct {
	sinks  []order.ResultSink
	logger *zap.Logger
}

// NewMultiSink 创建扇出存储，nil 下游被忽略。
func NewMultiSink(logger *zap.Logger, sinks ...order.ResultSink) *MultiSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MultiSink{logger: logger.Named("sink")}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Persist 写入全部下游。
func (m *MultiSink) Persist(ctx context.Context, rec order.Record) error {
	fields := rec.Fields()
	if err := logschema.Validate(logschema.EventForStatus(string(rec.Status)), fields); err != nil {
		return fmt.Errorf("record %s: %w", rec.TradeID, err)
	}
	var errs error
	for _, s := range m.sinks {
		if err := s.Persist(ctx, rec); err != nil {
			m.logger.Error("persist record failed",
				zap.String("trade_id", rec.TradeID),
				zap.String("status", string(rec.Status)),
				zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	if errs == nil {
		m.logger.Info("record persisted",
			zap.String("trade_id", rec.TradeID),
			zap.String("status", string(rec.Status)),
			zap.String("outcome", string(rec.Outcome)),
			zap.String("profit", rec.Profit.String()))
	}
	return errs
}
