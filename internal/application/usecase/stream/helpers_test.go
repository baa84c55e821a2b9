package stream

import (
	"fmt"
	"strings"
	"time"
)

// fakeClock 手动推进的时钟，回调在 Advance 的调用方 goroutine 上同步执行
type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	t := &fakeTimer{at: c.now + d, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = target
}

func (c *fakeClock) active() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) last() *fakeTimer {
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

type fakeTransport struct {
	opens  []uint64
	closes []uint64
}

func (f *fakeTransport) open(gen uint64)  { f.opens = append(f.opens, gen) }
func (f *fakeTransport) close(gen uint64) { f.closes = append(f.closes, gen) }

type testConverter struct{ suffix string }

func (c testConverter) Symbol2Coin(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(symbol), c.suffix)
}
func (c testConverter) Coin2Symbol(coin string) string { return strings.ToUpper(coin) + c.suffix }
func (c testConverter) SymbolSuffix() string           { return c.suffix }

var usdt = testConverter{suffix: "USDT"}

func ticker(pair, price, change, volume string) string {
	return fmt.Sprintf(`{"s":%q,"c":%q,"P":%q,"q":%q}`, pair, price, change, volume)
}

func batch(records ...string) []byte {
	return []byte("[" + strings.Join(records, ",") + "]")
}
