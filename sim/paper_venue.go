package sim

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"binary-trader-go/gateway"
	"binary-trader-go/order"
)

// ErrInjected 故障注入产生的查询错误
var ErrInjected = errors.New("paper venue: injected failure")

// ErrUnknownAsset 未配置的标的
var ErrUnknownAsset = errors.New("paper venue: unknown asset")

// PaperConfig 纸面券商参数
type PaperConfig struct {
	Assets         []string
	StartPrice     float64                    // 默认 1.0
	Volatility     float64                    // 每步相对波动，默认 0.0005
	Payout         decimal.Decimal            // 默认 1.8
	PayoutByAsset  map[string]decimal.Decimal // 覆盖单个标的
	Seed           int64
	PushDropRate   float64       // 推送丢失概率
	QueryErrorRate float64       // check/poll 返回错误的概率
	Latency        time.Duration // 每次调用的人为延迟
}

type paperOrder struct {
	o         order.Order
	settled   bool
	outcome   order.Outcome
	profit    decimal.Decimal
	closeTime time.Time
}

// PaperVenue 内存中的二元期权券商：随机游走报价，到期按收盘价结算，
// 通过推送帧与 check/poll 两个查询接口暴露结果。
type PaperVenue struct {
	cfg PaperConfig

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	orders map[string]*paperOrder
	order  []string // 按开仓顺序的 ref
	last   time.Time

	quotes gateway.QuoteHandler
	push   func([]byte)
}

// NewPaperVenue 创建纸面券商
func NewPaperVenue(cfg PaperConfig) *PaperVenue {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 1.0
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.0005
	}
	if cfg.Payout.LessThanOrEqual(decimal.NewFromInt(1)) {
		cfg.Payout = decimal.RequireFromString("1.8")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	v := &PaperVenue{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64),
		orders: make(map[string]*paperOrder),
	}
	for _, a := range cfg.Assets {
		v.prices[a] = cfg.StartPrice
	}
	return v
}

// SetQuoteHandler 行情输出，通常是 market.Service。
func (v *PaperVenue) SetQuoteHandler(q gateway.QuoteHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quotes = q
}

// SetPushSink 平仓推送输出，通常是 PushStream.HandleFrame。
func (v *PaperVenue) SetPushSink(fn func([]byte)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.push = fn
}

// Payout 标的当前回报倍数
func (v *PaperVenue) Payout(asset string) decimal.Decimal {
	if p, ok := v.cfg.PayoutByAsset[asset]; ok && p.GreaterThan(decimal.NewFromInt(1)) {
		return p
	}
	return v.cfg.Payout
}

// LatestPrice 标的最新价
func (v *PaperVenue) LatestPrice(asset string) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.prices[asset]
	return p, ok
}

// SetPrice 直接设定价格（测试与回放使用）。
func (v *PaperVenue) SetPrice(asset string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prices[asset] = price
}

// Open 未结算订单数
func (v *PaperVenue) Open() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, po := range v.orders {
		if !po.settled {
			n++
		}
	}
	return n
}

// Step 推进一步：各标的随机游走并推送行情，然后结算已到期订单。
func (v *PaperVenue) Step(now time.Time) {
	type quote struct {
		asset string
		price float64
	}
	v.mu.Lock()
	assets := make([]string, 0, len(v.prices))
	for a := range v.prices {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	quotes := make([]quote, 0, len(assets))
	for _, a := range assets {
		p := v.prices[a] * (1 + v.rng.NormFloat64()*v.cfg.Volatility)
		if p <= 0 || math.IsNaN(p) {
			p = v.prices[a]
		}
		v.prices[a] = p
		quotes = append(quotes, quote{a, p})
	}
	v.last = now
	frames := v.settleLocked(now)
	qh, push := v.quotes, v.push
	v.mu.Unlock()

	if qh != nil {
		for _, q := range quotes {
			qh.OnTick(q.asset, q.price, now)
		}
	}
	if push != nil {
		for _, f := range frames {
			push(f)
		}
	}
}

// settleLocked 到期订单按当前价结算，返回要推送的帧。
func (v *PaperVenue) settleLocked(now time.Time) [][]byte {
	var frames [][]byte
	for _, ref := range v.order {
		po := v.orders[ref]
		if po.settled || now.Before(po.o.ExpiresAt()) {
			continue
		}
		closePrice := v.prices[po.o.Asset]
		po.settled = true
		po.closeTime = po.o.ExpiresAt()
		switch {
		case closePrice == po.o.EntryPrice:
			po.outcome, po.profit = order.OutcomeDraw, decimal.Zero
		case (closePrice > po.o.EntryPrice) == (po.o.Direction == order.DirectionLong):
			po.outcome, po.profit = order.OutcomeWin, order.WinProfit(po.o.Stake, po.o.Payout)
		default:
			po.outcome, po.profit = order.OutcomeLoss, order.LossProfit(po.o.Stake)
		}
		if v.rng.Float64() < v.cfg.PushDropRate {
			continue
		}
		frames = append(frames, closeFrame(po))
	}
	return frames
}

func closeFrame(po *paperOrder) []byte {
	profit, _ := po.profit.Float64()
	raw, _ := json.Marshal(map[string]interface{}{
		"name": gateway.CloseEventName,
		"msg": map[string]interface{}{
			"option_id":     po.o.Ref,
			"active":        po.o.Asset,
			"result":        resultLabel(po.outcome),
			"profit_amount": profit,
			"close_time":    po.closeTime.Unix(),
		},
	})
	return raw
}

func resultLabel(o order.Outcome) string {
	switch o {
	case order.OutcomeWin:
		return "win"
	case order.OutcomeDraw:
		return "equal"
	default:
		return "loose"
	}
}

// OpenOrder 按当前价开仓
func (v *PaperVenue) OpenOrder(ctx context.Context, req order.OpenRequest) (*order.Order, error) {
	if err := v.delay(ctx); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	price, ok := v.prices[req.Asset]
	if !ok {
		return nil, ErrUnknownAsset
	}
	openedAt := v.last
	if openedAt.IsZero() {
		openedAt = time.Now().UTC()
	}
	kind := req.Kind
	if kind == "" {
		kind = order.KindPrimary
	}
	ref := uuid.NewString()
	o := order.Order{
		ID:         order.TradeID(req.Asset, ref),
		Ref:        ref,
		Asset:      req.Asset,
		Direction:  req.Direction,
		Kind:       kind,
		Stake:      req.Stake,
		Payout:     v.Payout(req.Asset),
		EntryPrice: price,
		OpenedAt:   openedAt,
		Duration:   req.Duration,
		Regime:     req.Regime,
		Reason:     req.Reason,
	}
	v.orders[ref] = &paperOrder{o: o}
	v.order = append(v.order, ref)
	return &o, nil
}

// CheckResult 权威查询，返回与真实券商相同形态的 JSON 再经解析器转换。
func (v *PaperVenue) CheckResult(ctx context.Context, ref string) (order.Answer, error) {
	po, err := v.lookup(ctx, ref)
	if err != nil || po == nil {
		return order.NoAnswer(), err
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"result":     resultLabel(po.outcome),
		"close_time": po.closeTime.Unix(),
	})
	return gateway.ParseCheckAnswer(raw)
}

// PollResult 轮询查询，返回带符号金额。
func (v *PaperVenue) PollResult(ctx context.Context, ref string) (order.Answer, error) {
	po, err := v.lookup(ctx, ref)
	if err != nil || po == nil {
		return order.NoAnswer(), err
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"amount":     po.profit.String(),
		"close_time": po.closeTime.Unix(),
	})
	return gateway.ParsePollAnswer(raw)
}

// lookup 返回已结算订单的快照；未结算或未知返回 nil。
func (v *PaperVenue) lookup(ctx context.Context, ref string) (*paperOrder, error) {
	if err := v.delay(ctx); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cfg.QueryErrorRate > 0 && v.rng.Float64() < v.cfg.QueryErrorRate {
		return nil, ErrInjected
	}
	po, ok := v.orders[ref]
	if !ok || !po.settled {
		return nil, nil
	}
	cp := *po
	return &cp, nil
}

func (v *PaperVenue) delay(ctx context.Context) error {
	if v.cfg.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(v.cfg.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
