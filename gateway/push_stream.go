package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"binary-trader-go/order"
)

// PushHandler 接收平仓推送，Reconciler 实现该接口。
type PushHandler interface {
	HandlePush(ctx context.Context, ev order.PushEvent) (order.ResolvedResult, bool)
}

// QuoteHandler 接收行情，market.Service 实现该接口。
type QuoteHandler interface {
	OnTick(asset string, price float64, ts time.Time)
}

// StreamMetrics 连接状态指标
type StreamMetrics interface {
	SetStreamConnected(connected bool)
	RecordStreamFrame(kind string)
}

type nopStreamMetrics struct{}

func (nopStreamMetrics) SetStreamConnected(bool)  {}
func (nopStreamMetrics) RecordStreamFrame(string) {}

// PushStreamConfig 推送连接配置
type PushStreamConfig struct {
	URL          string
	Header       http.Header
	MaxRetries   int           // 连续拨号失败上限，默认 5
	RetryBackoff time.Duration // 线性退避基数，默认 3s
	ReadTimeout  time.Duration // 读超时，默认 30s
	PingInterval time.Duration // 默认 ReadTimeout/2
	Dialer       *websocket.Dialer
	Logger       *zap.Logger
	Metrics      StreamMetrics
}

// PushStream 券商 WebSocket 推送客户端，断线自动重连。
// 平仓事件交给 PushHandler，行情交给 QuoteHandler；其余帧忽略。
type PushStream struct {
	cfg    PushStreamConfig
	pushes PushHandler
	quotes QuoteHandler
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	onConnected  func()
	onFatalError func(error)
}

// NewPushStream 创建推送客户端，quotes 可为 nil。
func NewPushStream(cfg PushStreamConfig, pushes PushHandler, quotes QuoteHandler) *PushStream {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 3 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = cfg.ReadTimeout / 2
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopStreamMetrics{}
	}
	return &PushStream{
		cfg:    cfg,
		pushes: pushes,
		quotes: quotes,
		logger: cfg.Logger.Named("push_stream"),
	}
}

// SetConnectedHandler 每次（重）连成功后回调，通常用于唤醒轮询补齐断线期间的结果。
func (p *PushStream) SetConnectedHandler(fn func()) {
	p.onConnected = fn
}

// SetFatalErrorHandler 设置致命错误回调（重连耗尽时通知主程序）
func (p *PushStream) SetFatalErrorHandler(fn func(error)) {
	p.onFatalError = fn
}

// Start 启动后台连接。
func (p *PushStream) Start(ctx context.Context) error {
	if p.cfg.URL == "" {
		return errors.New("push stream url required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("push stream already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run()
	return nil
}

// Stop 关闭连接并等待后台协程退出。
func (p *PushStream) Stop() {
	p.mu.Lock()
	cancel, done, conn := p.cancel, p.done, p.conn
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

// Connected 当前是否在线
func (p *PushStream) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// run 拨号、读取，断开后重连。
func (p *PushStream) run() {
	defer close(p.done)
	retries := 0
	for {
		if p.ctx.Err() != nil {
			return
		}
		conn, _, err := p.cfg.Dialer.DialContext(p.ctx, p.cfg.URL, p.cfg.Header)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			if retries >= p.cfg.MaxRetries {
				fatalErr := fmt.Errorf("push stream reconnection failed after %d retries: %w", p.cfg.MaxRetries, err)
				p.logger.Error("push stream gave up", zap.Error(fatalErr))
				if p.onFatalError != nil {
					p.onFatalError(fatalErr)
				}
				return
			}
			retries++
			backoff := time.Duration(retries) * p.cfg.RetryBackoff
			p.logger.Warn("push stream dial failed",
				zap.Int("retry", retries),
				zap.Int("max_retries", p.cfg.MaxRetries),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			if !p.sleep(backoff) {
				return
			}
			continue
		}

		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
		p.cfg.Metrics.SetStreamConnected(true)
		p.logger.Info("push stream connected", zap.String("url", p.cfg.URL))
		if p.onConnected != nil {
			p.onConnected()
		}
		retries = 0

		p.readLoop(conn)

		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
		p.cfg.Metrics.SetStreamConnected(false)
		if p.ctx.Err() != nil {
			return
		}
		p.logger.Warn("push stream disconnected, reconnecting")
		if !p.sleep(p.cfg.RetryBackoff) {
			return
		}
	}
}

func (p *PushStream) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// readLoop 读取帧直到出错；ping 协程负责保活与退出时关闭连接。
func (p *PushStream) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	stopPing := make(chan struct{})
	defer close(stopPing)
	go p.pingLoop(conn, stopPing)

	_ = conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if p.ctx.Err() == nil {
				p.logger.Warn("push stream read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
		p.HandleFrame(msg)
	}
}

func (p *PushStream) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-p.ctx.Done():
			// 让阻塞中的 ReadMessage 立即返回
			_ = conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(p.cfg.PingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// HandleFrame 解析并分发单个帧，也供测试与纸面券商直接调用。
func (p *PushStream) HandleFrame(raw []byte) {
	ev, err := ParsePushFrame(raw)
	switch {
	case err == nil:
		p.cfg.Metrics.RecordStreamFrame("close")
		if p.pushes == nil {
			return
		}
		ctx := p.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		res, ok := p.pushes.HandlePush(ctx, ev)
		if ok {
			p.logger.Debug("push close matched",
				zap.String("order_id", res.OrderID),
				zap.String("outcome", string(res.Outcome)))
		}
		return
	case errors.Is(err, ErrNotCloseEvent):
	default:
		p.cfg.Metrics.RecordStreamFrame("malformed")
		p.logger.Warn("malformed push frame", zap.Error(err), zap.ByteString("raw", raw))
		return
	}

	q, err := ParseQuoteFrame(raw)
	switch {
	case err == nil:
		p.cfg.Metrics.RecordStreamFrame("quote")
		if p.quotes == nil {
			return
		}
		ts := q.Ts
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		p.quotes.OnTick(q.Asset, q.Price, ts)
	case errors.Is(err, ErrNotQuote):
		p.cfg.Metrics.RecordStreamFrame("ignored")
	default:
		p.cfg.Metrics.RecordStreamFrame("malformed")
		p.logger.Debug("malformed quote frame", zap.Error(err))
	}
}
