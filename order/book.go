package order

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownOrder 表中没有该订单（从未登记或已结算）
	ErrUnknownOrder = errors.New("unknown order")
	// ErrDuplicateOrder 同一订单号重复登记
	ErrDuplicateOrder = errors.New("order already registered")
)

const defaultSettledCap = 256

// PendingBucket 待确认订单。只在表锁内修改，结算后即从表中移除。
type PendingBucket struct {
	Order    Order
	OpenTS   int64 // 开仓时间（unix 秒）
	Resolved bool
	seq      uint64
}

// PendingTable 待确认订单表。登记、结算、移除由同一把锁保护，
// 任何两次结算尝试都不可能交错，后到者得到 no-op。
type PendingTable struct {
	mu      sync.Mutex
	buckets map[string]*PendingBucket
	seq     uint64

	// 最近结算的结果，供主循环得知订单已被推送/轮询路径结算
	settled      map[string]ResolvedResult
	settledOrder []string
	settledCap   int
}

// NewPendingTable 创建空表。
func NewPendingTable() *PendingTable {
	return &PendingTable{
		buckets:    make(map[string]*PendingBucket),
		settled:    make(map[string]ResolvedResult),
		settledCap: defaultSettledCap,
	}
}

// Register 登记新订单，订单以值拷贝保存，不与调用方共享可变状态。
func (t *PendingTable) Register(o Order) error {
	if o.ID == "" {
		return fmt.Errorf("register: empty order id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.buckets[o.ID]; exists {
		return fmt.Errorf("register %s: %w", o.ID, ErrDuplicateOrder)
	}
	t.seq++
	t.buckets[o.ID] = &PendingBucket{
		Order:  o,
		OpenTS: o.OpenedAt.Unix(),
		seq:    t.seq,
	}
	return nil
}

// Len 当前未结算订单数。
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// Get 返回订单快照。
func (t *PendingTable) Get(id string) (PendingBucket, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[id]
	if !ok {
		return PendingBucket{}, false
	}
	return *b, true
}

// Snapshot 按登记顺序返回所有未结算订单的拷贝。
func (t *PendingTable) Snapshot() []PendingBucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *PendingTable) snapshotLocked() []PendingBucket {
	res := make([]PendingBucket, 0, len(t.buckets))
	for _, b := range t.buckets {
		res = append(res, *b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].seq < res[j].seq })
	return res
}

// settle 原子地检查并结算：缺失或已结算返回 false。
// 调用方必须在锁外把结果交给存储。
func (t *PendingTable) settle(id string, ev Event, now time.Time) (Order, ResolvedResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[id]
	if !ok || b.Resolved {
		return Order{}, ResolvedResult{}, false
	}
	res := t.settleLocked(b, ev, now)
	return b.Order, res, true
}

func (t *PendingTable) settleLocked(b *PendingBucket, ev Event, now time.Time) ResolvedResult {
	res := ev.normalize(b.Order, now)
	b.Resolved = true
	delete(t.buckets, b.Order.ID)
	t.rememberLocked(res)
	return res
}

// settlePush 按推送事件匹配并结算。精确的券商订单号优先，
// 否则按登记顺序取第一个开仓时间落在窗口内的订单。candidates 为窗口内候选数量。
func (t *PendingTable) settlePush(ev PushEvent, window time.Duration, now time.Time) (o Order, res ResolvedResult, candidates int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Ref != "" {
		for _, b := range t.buckets {
			if !b.Resolved && (b.Order.Ref == ev.Ref || b.Order.ID == ev.Ref) {
				res = t.settleLocked(b, ev, now)
				return b.Order, res, 1, true
			}
		}
	}

	closeTS := ev.CloseTime.Unix()
	if ev.CloseTime.IsZero() {
		closeTS = now.Unix()
	}

	var match *PendingBucket
	for _, b := range t.buckets {
		if b.Resolved {
			continue
		}
		if ev.Asset != "" && b.Order.Asset != ev.Asset {
			continue
		}
		diff := b.OpenTS - closeTS
		if diff < 0 {
			diff = -diff
		}
		if time.Duration(diff)*time.Second > window {
			continue
		}
		candidates++
		if match == nil || b.seq < match.seq {
			match = b
		}
	}
	if match == nil {
		return Order{}, ResolvedResult{}, 0, false
	}
	res = t.settleLocked(match, ev, now)
	return match.Order, res, candidates, true
}

func (t *PendingTable) rememberLocked(res ResolvedResult) {
	if t.settledCap <= 0 {
		return
	}
	if _, exists := t.settled[res.OrderID]; !exists {
		t.settledOrder = append(t.settledOrder, res.OrderID)
	}
	t.settled[res.OrderID] = res
	for len(t.settledOrder) > t.settledCap {
		oldest := t.settledOrder[0]
		t.settledOrder = t.settledOrder[1:]
		delete(t.settled, oldest)
	}
}

// TakeSettled 取出并删除某订单的结算结果（只能取一次）。
func (t *PendingTable) TakeSettled(id string) (ResolvedResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	res, ok := t.settled[id]
	if !ok {
		return ResolvedResult{}, false
	}
	delete(t.settled, id)
	for i, sid := range t.settledOrder {
		if sid == id {
			t.settledOrder = append(t.settledOrder[:i], t.settledOrder[i+1:]...)
			break
		}
	}
	return res, true
}
