package stream

import "time"

// Clock 定时器来源，测试里替换成可手动推进的时钟
type Clock interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type Stopper interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// RealClock is backed by time.AfterFunc.
var RealClock Clock = realClock{}

type TimerState int

const (
	TimerIdle TimerState = iota
	TimerArmed
	TimerFired
)

func (s TimerState) String() string {
	switch s {
	case TimerArmed:
		return "armed"
	case TimerFired:
		return "fired"
	default:
		return "idle"
	}
}

// oneShot 单次定时器状态机 Idle/Armed/Fired
// 每次 Arm/Cancel 都会换一个 generation，过期的回调在 Fire 里被丢弃，
// 这样 Cancel 和已经在路上的回调之间没有竞争
type oneShot struct {
	clock  Clock
	state  TimerState
	gen    uint64
	handle Stopper
}

func newOneShot(clock Clock) *oneShot {
	return &oneShot{clock: clock}
}

// Arm 已经 armed 时什么也不做，返回 false
func (t *oneShot) Arm(d time.Duration, fire func(gen uint64)) bool {
	if t.state == TimerArmed {
		return false
	}
	t.gen++
	gen := t.gen
	t.state = TimerArmed
	t.handle = t.clock.AfterFunc(d, func() { fire(gen) })
	return true
}

// Fire 回调进入 owner 循环后调用；只有当前 generation 的回调才生效
func (t *oneShot) Fire(gen uint64) bool {
	if t.state != TimerArmed || gen != t.gen {
		return false
	}
	t.state = TimerFired
	t.handle = nil
	return true
}

func (t *oneShot) Cancel() {
	if t.state == TimerArmed && t.handle != nil {
		t.handle.Stop()
	}
	t.gen++
	t.state = TimerIdle
	t.handle = nil
}

func (t *oneShot) State() TimerState { return t.state }
