package order

import "context"

// Checker 权威结果查询（主循环使用，返回胜负标记）。
type Checker interface {
	CheckResult(ctx context.Context, ref string) (Answer, error)
}

// Poller 轮询结果查询（后台 watcher 使用，返回带符号金额）。
type Poller interface {
	PollResult(ctx context.Context, ref string) (Answer, error)
}

// Opener 开仓接口，成功时返回券商确认后的订单。
type Opener interface {
	OpenOrder(ctx context.Context, req OpenRequest) (*Order, error)
}

// Venue 执行场所，延迟与可靠性未知，所有调用都必须视为可失败的慢操作。
type Venue interface {
	Opener
	Checker
	Poller
}
