package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"binary-trader-go/order"
)

// ErrOpenRejected 券商拒绝开仓
var ErrOpenRejected = errors.New("open rejected by venue")

var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// RESTVenue 券商 REST 接口：开仓、权威查询、轮询查询。
// 不做自动重试，查询失败由调用方当作本轮无结果；Limiter 为空时不限速。
type RESTVenue struct {
	APIKey  string
	Secret  string
	Limiter RateLimiter
	client  *resty.Client
}

// NewRESTVenue 创建 REST 券商客户端。
func NewRESTVenue(baseURL, apiKey, secret string, limiter RateLimiter) *RESTVenue {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
	return &RESTVenue{
		APIKey:  apiKey,
		Secret:  secret,
		Limiter: limiter,
		client:  client,
	}
}

type openBody struct {
	ClientID    string `json:"client_id"`
	Asset       string `json:"asset"`
	Direction   string `json:"direction"`
	Amount      string `json:"amount"`
	DurationSec int64  `json:"duration_sec"`
}

type openResp struct {
	ID       json.Number `json:"id"`
	OpenTime json.Number `json:"open_time"`
	Payout   string      `json:"payout"`
	Price    json.Number `json:"price"`
	Error    string      `json:"error"`
}

// OpenOrder 下单，返回券商确认后的订单。
func (c *RESTVenue) OpenOrder(ctx context.Context, req order.OpenRequest) (*order.Order, error) {
	dir := "call"
	if req.Direction == order.DirectionShort {
		dir = "put"
	}
	body, err := json.Marshal(openBody{
		ClientID:    uuid.NewString(),
		Asset:       req.Asset,
		Direction:   dir,
		Amount:      req.Stake.String(),
		DurationSec: int64(req.Duration / time.Second),
	})
	if err != nil {
		return nil, err
	}
	raw, status, err := c.do(ctx, http.MethodPost, "/api/v1/options", body)
	if err != nil {
		return nil, err
	}
	var resp openResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	if status >= 300 || resp.ID.String() == "" {
		return nil, fmt.Errorf("%w: status %d %s", ErrOpenRejected, status, resp.Error)
	}

	ref := resp.ID.String()
	openedAt := time.Now().UTC()
	if ts, ok := unixTime(resp.OpenTime); ok {
		openedAt = ts
	}
	payout := req.Payout
	if p, err := decimal.NewFromString(resp.Payout); err == nil && p.GreaterThan(decimal.NewFromInt(1)) {
		payout = p
	}
	entry := req.EntryPrice
	if p, err := resp.Price.Float64(); err == nil && p > 0 {
		entry = p
	}
	kind := req.Kind
	if kind == "" {
		kind = order.KindPrimary
	}
	return &order.Order{
		ID:         order.TradeID(req.Asset, ref),
		Ref:        ref,
		Asset:      req.Asset,
		Direction:  req.Direction,
		Kind:       kind,
		Stake:      req.Stake,
		Payout:     payout,
		EntryPrice: entry,
		OpenedAt:   openedAt,
		Duration:   req.Duration,
		Regime:     req.Regime,
		Reason:     req.Reason,
	}, nil
}

// CheckResult 权威查询，返回胜负标记。
func (c *RESTVenue) CheckResult(ctx context.Context, ref string) (order.Answer, error) {
	raw, status, err := c.do(ctx, http.MethodGet, "/api/v1/options/"+url.PathEscape(ref)+"/check", nil)
	if err != nil {
		return order.NoAnswer(), err
	}
	if status == http.StatusNotFound {
		return order.NoAnswer(), nil
	}
	if status >= 300 {
		return order.NoAnswer(), fmt.Errorf("check status %d", status)
	}
	return ParseCheckAnswer(raw)
}

// PollResult 轮询查询，返回带符号金额。
func (c *RESTVenue) PollResult(ctx context.Context, ref string) (order.Answer, error) {
	raw, status, err := c.do(ctx, http.MethodGet, "/api/v1/options/"+url.PathEscape(ref)+"/result", nil)
	if err != nil {
		return order.NoAnswer(), err
	}
	if status == http.StatusNotFound {
		return order.NoAnswer(), nil
	}
	if status >= 300 {
		return order.NoAnswer(), fmt.Errorf("poll status %d", status)
	}
	return ParsePollAnswer(raw)
}

func (c *RESTVenue) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	if c == nil || c.client == nil {
		return nil, 0, fmt.Errorf("rest client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}
	ts := strconv.FormatInt(timeNowMillis(), 10)
	req := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.APIKey).
		SetHeader("X-TIMESTAMP", ts).
		SetHeader("X-SIGNATURE", Sign(c.Secret, method, path, ts, body))
	if len(body) > 0 {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp.Body(), resp.StatusCode(), nil
}

// Sign 请求签名：hex(hmac_sha256(secret, method+path+timestamp+body))。
func Sign(secret, method, path, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write([]byte(ts))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// LimitedVenue 给任意券商实现加上请求限速。
type LimitedVenue struct {
	venue   order.Venue
	limiter RateLimiter
}

// NewLimitedVenue 包装券商实现；limiter 为 nil 时原样返回。
func NewLimitedVenue(v order.Venue, limiter RateLimiter) order.Venue {
	if limiter == nil {
		return v
	}
	return &LimitedVenue{venue: v, limiter: limiter}
}

func (l *LimitedVenue) OpenOrder(ctx context.Context, req order.OpenRequest) (*order.Order, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.venue.OpenOrder(ctx, req)
}

func (l *LimitedVenue) CheckResult(ctx context.Context, ref string) (order.Answer, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return order.NoAnswer(), err
	}
	return l.venue.CheckResult(ctx, ref)
}

func (l *LimitedVenue) PollResult(ctx context.Context, ref string) (order.Answer, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return order.NoAnswer(), err
	}
	return l.venue.PollResult(ctx, ref)
}
