package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

// ErrNotRunning Service.Run 还没开始或已经退出
var ErrNotRunning = errors.New("stream service not running")

type ServiceDeps struct {
	Dialer    port.Dialer
	URL       string
	Converter port.SymbolConverter
	Interest  *InterestSet
	Board     *domain.Board

	FlushInterval time.Duration // default 100ms
	Backoff       Backoff       // default DefaultBackoff
	MaxAttempts   int           // default 10
	MailboxSize   int           // default 1024

	Clock     Clock
	Listeners []port.FlushListener
	Observers []port.StatusObserver
}

// Service 持有一条行情连接的完整生命周期
// 一个循环 goroutine 独占 session；拨号/读取 goroutine 和定时器回调只往 mailbox 投递闭包
type Service struct {
	deps ServiceDeps

	mailbox chan func()
	done    chan struct{}
	started atomic.Bool
	running atomic.Bool
	status  atomic.Pointer[Status]

	sess *session // 只在循环 goroutine 上访问
}

func NewService(deps ServiceDeps) *Service {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = 100 * time.Millisecond
	}
	if deps.Backoff.Base <= 0 || deps.Backoff.Max <= 0 {
		deps.Backoff = DefaultBackoff
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = 10
	}
	if deps.MailboxSize <= 0 {
		deps.MailboxSize = 1024
	}
	if deps.Clock == nil {
		deps.Clock = RealClock
	}
	if deps.Interest == nil {
		deps.Interest = NewInterestSet()
	}
	if deps.Board == nil {
		deps.Board = domain.NewBoard()
	}

	s := &Service{
		deps:    deps,
		mailbox: make(chan func(), deps.MailboxSize),
		done:    make(chan struct{}),
	}
	s.status.Store(&Status{State: StateDisconnected.String()})
	return s
}

func (s *Service) Interest() *InterestSet { return s.deps.Interest }
func (s *Service) Board() *domain.Board    { return s.deps.Board }

// Status returns the latest connection status.
func (s *Service) Status() Status {
	return *s.status.Load()
}

func (s *Service) Connected() bool {
	return s.Status().Connected
}

// Run 等 InterestSet 非空后建立连接，阻塞到 ctx 结束
// ctx 结束时关闭连接、取消 flush/重连定时器，未 flush 的 tick 丢弃
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Dialer == nil || s.deps.Converter == nil {
		return errors.New("stream: dialer and converter are required")
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("stream: service can only be run once")
	}
	s.running.Store(true)
	defer close(s.done)
	defer s.running.Store(false)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.deps.Interest.Ready():
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr := newWSTransport(runCtx, s.deps.Dialer, s.deps.URL, s.mailbox)
	defer tr.wait()

	sess := newSession(sessionConfig{
		FlushInterval: s.deps.FlushInterval,
		Backoff:       s.deps.Backoff,
		MaxAttempts:   s.deps.MaxAttempts,
	}, NewFilter(s.deps.Converter, s.deps.Interest), s.deps.Board, tr, s.deps.Clock, func(f func()) { s.post(f) })
	sess.listeners = s.deps.Listeners
	sess.onStatus = s.publishStatus
	tr.events = sess
	s.sess = sess

	log.Info().
		Str("feed", s.deps.Dialer.Name()).
		Str("url", s.deps.URL).
		Int("symbols", s.deps.Interest.Len()).
		Msg("stream started")
	sess.start()

	for {
		select {
		case <-ctx.Done():
			sess.teardown()
			cancel()
			log.Info().Str("feed", s.deps.Dialer.Name()).Msg("stream stopped")
			return ctx.Err()
		case f := <-s.mailbox:
			f()
		}
	}
}

// Retry 自动重连次数用完后的手动重连入口
func (s *Service) Retry() error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	if !s.post(func() { s.sess.retry() }) {
		return ErrNotRunning
	}
	return nil
}

// post 投递到循环；Run 退出后直接丢弃
func (s *Service) post(f func()) bool {
	select {
	case s.mailbox <- f:
		return true
	case <-s.done:
		return false
	}
}

func (s *Service) publishStatus(st Status) {
	prev := s.status.Swap(&st)
	if prev != nil && prev.Connected == st.Connected && prev.State == st.State {
		return
	}
	for _, o := range s.deps.Observers {
		o.OnStatus(st.Connected)
	}
}

// sessionEvents transport 回调到 session 的事件
type sessionEvents interface {
	handleOpen(gen uint64)
	handleMessage(gen uint64, payload []byte)
	handleError(gen uint64, err error)
	handleClose(gen uint64, err error)
}

// wsTransport 拨号和读循环；每个连接带 generation，事件回到 session 时过期的会被丢弃
// mailbox 满时读循环阻塞，背压传给 TCP
type wsTransport struct {
	ctx     context.Context
	dialer  port.Dialer
	url     string
	mailbox chan<- func()
	events  sessionEvents

	mu   sync.Mutex
	conn port.Conn
	gen  uint64
	wg   sync.WaitGroup
}

func newWSTransport(ctx context.Context, dialer port.Dialer, url string, mailbox chan<- func()) *wsTransport {
	return &wsTransport{ctx: ctx, dialer: dialer, url: url, mailbox: mailbox}
}

func (t *wsTransport) post(f func()) bool {
	select {
	case t.mailbox <- f:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *wsTransport) open(gen uint64) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(gen)
	}()
}

func (t *wsTransport) run(gen uint64) {
	log.Warn().Str("feed", t.dialer.Name()).Str("url", t.url).Msg("ws connecting")
	conn, err := t.dialer.Dial(t.ctx, t.url)
	if err != nil {
		if t.ctx.Err() == nil {
			t.deliverError(gen, err)
		}
		return
	}

	t.mu.Lock()
	t.conn, t.gen = conn, gen
	t.mu.Unlock()

	// ctx 结束时一定关掉连接，让 ReadMessage 返回
	stop := context.AfterFunc(t.ctx, func() { _ = conn.Close() })
	defer stop()

	if !t.post(func() { t.events.handleOpen(gen) }) {
		return
	}

	for {
		b, err := conn.ReadMessage()
		if err != nil {
			t.clear(gen)
			_ = conn.Close()
			if t.ctx.Err() != nil {
				return
			}
			t.deliverError(gen, err)
			return
		}
		if !t.post(func() { t.events.handleMessage(gen, b) }) {
			return
		}
	}
}

// deliverError 关闭帧只走 close；其它错误先 error 再 close
func (t *wsTransport) deliverError(gen uint64, err error) {
	var ce *port.CloseError
	if !errors.As(err, &ce) {
		t.post(func() { t.events.handleError(gen, err) })
	}
	t.post(func() { t.events.handleClose(gen, err) })
}

func (t *wsTransport) clear(gen uint64) {
	t.mu.Lock()
	if t.gen == gen {
		t.conn = nil
	}
	t.mu.Unlock()
}

func (t *wsTransport) close(gen uint64) {
	t.mu.Lock()
	conn := t.conn
	if t.gen == gen {
		t.conn = nil
	}
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (t *wsTransport) wait() {
	t.wg.Wait()
}
