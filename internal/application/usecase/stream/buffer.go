package stream

import "coinfeed/internal/domain"

// Buffer 两次 flush 之间每个币种最新的一条 tick
// 只由 ingestion 循环访问，不加锁
type Buffer struct {
	pending map[string]domain.Tick
}

func NewBuffer() *Buffer {
	return &Buffer{pending: make(map[string]domain.Tick)}
}

// Put overwrites any pending tick for the same symbol.
func (b *Buffer) Put(t domain.Tick) {
	b.pending[t.Symbol] = t
}

func (b *Buffer) Len() int { return len(b.pending) }

// Drain 取走全部内容并清空；返回的 map 之后不再被 Buffer 使用
func (b *Buffer) Drain() map[string]domain.Tick {
	out := b.pending
	b.pending = make(map[string]domain.Tick, len(out))
	return out
}

// Reset discards everything pending.
func (b *Buffer) Reset() {
	clear(b.pending)
}
