package stream

import (
	"time"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

// ConnState 连接状态
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Status 对外暴露的连接状态
type Status struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Retries   int    `json:"retries"`
	Exhausted bool   `json:"exhausted"` // 自动重连次数用完，需要外部 Retry
}

// transport 真正的连接由 owner 提供；结果以事件的形式回到 session
type transport interface {
	open(gen uint64)
	close(gen uint64)
}

type sessionConfig struct {
	FlushInterval time.Duration
	Backoff       Backoff
	MaxAttempts   int
}

// session 一次 Run 期间的全部可变状态：buffer、连接状态、重连计数、两个定时器
// 所有方法只在 owner 的单个循环 goroutine 上调用，不加锁
type session struct {
	cfg    sessionConfig
	filter *Filter
	buf    *Buffer
	board  *domain.Board

	tr       transport
	dispatch func(func()) // 把定时器回调投递回 owner 循环

	flushTimer     *oneShot
	reconnectTimer *oneShot

	state     ConnState
	connGen   uint64
	retries   int
	exhausted bool
	closed    bool

	listeners []port.FlushListener
	onStatus  func(Status)
	now       func() time.Time
}

func newSession(cfg sessionConfig, filter *Filter, board *domain.Board, tr transport, clock Clock, dispatch func(func())) *session {
	return &session{
		cfg:            cfg,
		filter:         filter,
		buf:            NewBuffer(),
		board:          board,
		tr:             tr,
		dispatch:       dispatch,
		flushTimer:     newOneShot(clock),
		reconnectTimer: newOneShot(clock),
		onStatus:       func(Status) {},
		now:            time.Now,
	}
}

func (s *session) status() Status {
	return Status{
		State:     s.state.String(),
		Connected: s.state == StateConnected,
		Retries:   s.retries,
		Exhausted: s.exhausted,
	}
}

func (s *session) notify() {
	s.onStatus(s.status())
}

func (s *session) start() {
	if s.closed {
		return
	}
	s.connect()
}

func (s *session) connect() {
	s.connGen++
	s.state = StateConnecting
	s.notify()
	s.tr.open(s.connGen)
}

// ---- connection events ----

func (s *session) handleOpen(gen uint64) {
	if s.closed || gen != s.connGen {
		return
	}
	s.state = StateConnected
	s.retries = 0
	s.exhausted = false
	log.Info().Msg("ws connected")
	s.notify()
}

func (s *session) handleMessage(gen uint64, payload []byte) {
	if s.closed || gen != s.connGen {
		return
	}
	records, err := decodeTickers(payload)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(payload)).Msg("ticker message dropped")
		return
	}
	s.filter.Apply(records, s.buf)
	s.requestFlush()
}

// handleError 只更新状态，重连由随后的 close 事件触发，避免重复调度
func (s *session) handleError(gen uint64, err error) {
	if s.closed || gen != s.connGen {
		return
	}
	log.Error().Err(err).Msg("ws error")
	if s.state == StateConnected || s.state == StateConnecting {
		s.state = StateDisconnected
	}
	s.notify()
}

func (s *session) handleClose(gen uint64, err error) {
	if s.closed || gen != s.connGen {
		return
	}
	s.state = StateDisconnected
	s.notify()

	if port.IsNormalClose(err) {
		log.Warn().Err(err).Msg("ws closed normally, not reconnecting")
		return
	}
	s.scheduleReconnect()
}

func (s *session) scheduleReconnect() {
	if s.retries >= s.cfg.MaxAttempts {
		s.exhausted = true
		log.Error().Int("attempts", s.retries).Msg("max reconnection attempts reached")
		s.notify()
		return
	}

	delay := s.cfg.Backoff.Delay(s.retries)
	s.retries++
	log.Warn().
		Dur("delay", delay).
		Int("attempt", s.retries).
		Msg("ws disconnected, reconnecting")

	s.reconnectTimer.Arm(delay, func(tgen uint64) {
		s.dispatch(func() { s.handleReconnectTimer(tgen) })
	})
	s.notify()
}

func (s *session) handleReconnectTimer(tgen uint64) {
	if !s.reconnectTimer.Fire(tgen) || s.closed {
		return
	}
	s.connect()
}

// retry 外部干预：清零计数后立即重连
func (s *session) retry() bool {
	if s.closed || s.state == StateConnected || s.state == StateConnecting {
		return false
	}
	s.reconnectTimer.Cancel()
	s.retries = 0
	s.exhausted = false
	log.Info().Msg("manual reconnect")
	s.connect()
	return true
}

// ---- flush scheduler ----

// requestFlush 幂等：已有定时器时不做任何事
func (s *session) requestFlush() {
	s.flushTimer.Arm(s.cfg.FlushInterval, func(tgen uint64) {
		s.dispatch(func() { s.handleFlushTimer(tgen) })
	})
}

func (s *session) handleFlushTimer(tgen uint64) {
	if !s.flushTimer.Fire(tgen) || s.closed {
		return
	}
	if s.buf.Len() == 0 {
		return
	}
	batch := s.buf.Drain()
	s.board.Merge(batch)

	ts := s.now()
	for _, l := range s.listeners {
		l.OnFlush(ts, batch)
	}
}

// ---- teardown ----

// teardown 关闭连接、取消两个定时器；缓冲里还没 flush 的 tick 直接丢弃
func (s *session) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	s.flushTimer.Cancel()
	s.reconnectTimer.Cancel()
	s.buf.Reset()

	s.state = StateClosing
	s.tr.close(s.connGen)
	s.state = StateDisconnected
	s.notify()
}
