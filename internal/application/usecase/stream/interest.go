package stream

import (
	"sync"

	"coinfeed/internal/domain"
)

// InterestSet 当前需要价格的币种集合
// 只增不减：包含所有曾经提供过的币种。搜索只影响展示，不修改它
// filter 每条消息都读最新的集合，所以分页加载不需要重连
type InterestSet struct {
	mu    sync.RWMutex
	order []string
	set   map[string]struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

func NewInterestSet(symbols ...string) *InterestSet {
	s := &InterestSet{
		set:   make(map[string]struct{}),
		ready: make(chan struct{}),
	}
	s.Add(symbols...)
	return s
}

// Add 加入币种，返回新增数量
func (s *InterestSet) Add(symbols ...string) int {
	s.mu.Lock()
	added := 0
	for _, sym := range symbols {
		u := domain.NormalizeSymbol(sym)
		if u == "" {
			continue
		}
		if _, ok := s.set[u]; ok {
			continue
		}
		s.set[u] = struct{}{}
		s.order = append(s.order, u)
		added++
	}
	nonEmpty := len(s.set) > 0
	s.mu.Unlock()

	if nonEmpty {
		s.readyOnce.Do(func() { close(s.ready) })
	}
	return added
}

// AddCoins is Add for catalog entries.
func (s *InterestSet) AddCoins(coins ...domain.Coin) int {
	syms := make([]string, 0, len(coins))
	for _, c := range coins {
		syms = append(syms, c.Symbol)
	}
	return s.Add(syms...)
}

func (s *InterestSet) Contains(symbol string) bool {
	u := domain.NormalizeSymbol(symbol)
	s.mu.RLock()
	_, ok := s.set[u]
	s.mu.RUnlock()
	return ok
}

// Symbols returns the symbols in insertion order.
func (s *InterestSet) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *InterestSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.set)
}

// Ready 第一次变为非空时关闭
func (s *InterestSet) Ready() <-chan struct{} {
	return s.ready
}
