package market

import "sync"

// Publisher 一个轻量事件分发器，慢订阅者会丢消息而不是阻塞发布方。
type Publisher struct {
	mu         sync.RWMutex
	tickSubs   []chan Tick
	candleSubs []chan Kline
}

func NewPublisher() *Publisher {
	return &Publisher{
		tickSubs:   make([]chan Tick, 0),
		candleSubs: make([]chan Kline, 0),
	}
}

func (p *Publisher) SubscribeTicks(buffer int) <-chan Tick {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Tick, buffer)
	p.mu.Lock()
	p.tickSubs = append(p.tickSubs, ch)
	p.mu.Unlock()
	return ch
}

func (p *Publisher) SubscribeCandles(buffer int) <-chan Kline {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Kline, buffer)
	p.mu.Lock()
	p.candleSubs = append(p.candleSubs, ch)
	p.mu.Unlock()
	return ch
}

func (p *Publisher) PublishTick(t Tick) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.tickSubs {
		select {
		case ch <- t:
		default:
		}
	}
}

func (p *Publisher) PublishCandle(k Kline) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.candleSubs {
		select {
		case ch <- k:
		default:
		}
	}
}
