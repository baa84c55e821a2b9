package domain

import (
	"sort"
	"sync"
)

// Board 对外可见的价格快照：symbol -> 最新 Tick
// 只通过 Merge/Seed 合并写入，从不整体替换；没有再收到行情的币种保留最后的值
type Board struct {
	mu      sync.RWMutex
	ticks   map[string]Tick
	version uint64 // 每次 Merge 成功 +1
}

// NewBoard creates an empty snapshot.
func NewBoard() *Board {
	return &Board{ticks: make(map[string]Tick)}
}

// Merge 把一批 tick 一次性合并进快照（逐个 symbol 覆盖）
// Returns false when the batch is empty.
func (b *Board) Merge(batch map[string]Tick) bool {
	if len(batch) == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for sym, t := range batch {
		t.Symbol = sym
		b.ticks[sym] = t
	}
	b.version++
	return true
}

// Seed 用 REST 报价填充还没有实时数据的币种，已有实时数据的不覆盖
// 返回实际写入的数量
func (b *Board) Seed(quotes map[string]Tick) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for sym, t := range quotes {
		sym = NormalizeSymbol(sym)
		if sym == "" {
			continue
		}
		if cur, ok := b.ticks[sym]; ok && cur.HasData() {
			continue
		}
		t.Symbol = sym
		b.ticks[sym] = t
		n++
	}
	return n
}

// Get returns the latest tick for symbol.
func (b *Board) Get(symbol string) (Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.ticks[NormalizeSymbol(symbol)]
	return t, ok
}

// Price 与 Get 相同，但没有数据时返回 DefaultTick
func (b *Board) Price(symbol string) Tick {
	if t, ok := b.Get(symbol); ok {
		return t
	}
	return DefaultTick(symbol)
}

// GetSnapshot returns a copy of the current state.
func (b *Board) GetSnapshot() map[string]Tick {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := make(map[string]Tick, len(b.ticks))
	for sym, t := range b.ticks {
		snap[sym] = t
	}
	return snap
}

// GetSymbols returns the symbols present in the snapshot, sorted.
func (b *Board) GetSymbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.ticks))
	for sym := range b.ticks {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Version 已完成的 Merge 次数，消费方可以用来判断快照是否变化
func (b *Board) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Len returns the number of symbols in the snapshot.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ticks)
}
