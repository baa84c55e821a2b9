package stream

import "time"

// Backoff 指数退避：delay = min(Base * 2^attempt, Max)
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff 1s 起步，30s 封顶
var DefaultBackoff = Backoff{Base: time.Second, Max: 30 * time.Second}

// Delay returns the wait before reconnect attempt number attempt+1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max || d <= 0 {
			return b.Max
		}
	}
	return minDur(d, b.Max)
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
