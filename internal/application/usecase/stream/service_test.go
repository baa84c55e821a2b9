package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

type chanConn struct {
	msgs   chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newChanConn() *chanConn {
	return &chanConn{
		msgs:   make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *chanConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.msgs:
		return b, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *chanConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// chanDialer 每次 Dial 返回一条新的 chanConn
type chanDialer struct {
	mu    sync.Mutex
	conns []*chanConn
	dials atomic.Int32
}

func (d *chanDialer) Name() string { return "fake" }

func (d *chanDialer) Dial(ctx context.Context, url string) (port.Conn, error) {
	d.dials.Add(1)
	c := newChanConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *chanDialer) conn(i int) *chanConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type statusRecorder struct {
	mu   sync.Mutex
	seen []bool
}

func (r *statusRecorder) OnStatus(connected bool) {
	r.mu.Lock()
	r.seen = append(r.seen, connected)
	r.mu.Unlock()
}

func (r *statusRecorder) sawConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.seen {
		if c {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startService(t *testing.T, deps ServiceDeps) (*Service, context.CancelFunc, <-chan error) {
	t.Helper()
	if deps.FlushInterval == 0 {
		deps.FlushInterval = 10 * time.Millisecond
	}
	deps.Converter = usdt
	svc := NewService(deps)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()
	t.Cleanup(cancel)
	return svc, cancel, errCh
}

func TestServiceEndToEnd(t *testing.T) {
	dialer := &chanDialer{}
	obs := &statusRecorder{}
	svc, cancel, errCh := startService(t, ServiceDeps{
		Dialer:    dialer,
		Interest:  NewInterestSet("BTC", "ETH"),
		Observers: []port.StatusObserver{obs},
	})

	waitFor(t, "connected", svc.Connected)
	if !obs.sawConnected() {
		t.Error("observer should be told about the connection")
	}

	dialer.conn(0).msgs <- batch(
		ticker("BTCUSDT", "50000", "2.5", "1000000"),
		ticker("XRPUSDT", "1.2", "-1.0", "500"),
	)
	waitFor(t, "BTC price", func() bool { return svc.Board().Price("BTC").Price == 50000 })
	if _, ok := svc.Board().Get("XRP"); ok {
		t.Error("XRP must not be in the snapshot")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !dialer.conn(0).isClosed() {
		t.Error("connection must be closed on teardown")
	}
	if svc.Connected() {
		t.Error("status must be disconnected after teardown")
	}
	if err := svc.Retry(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestServiceWaitsForInterest(t *testing.T) {
	dialer := &chanDialer{}
	interest := NewInterestSet()
	svc, _, _ := startService(t, ServiceDeps{Dialer: dialer, Interest: interest})

	time.Sleep(30 * time.Millisecond)
	if n := dialer.dials.Load(); n != 0 {
		t.Fatalf("must not dial before the interest set is populated, dials=%d", n)
	}

	interest.Add("BTC")
	waitFor(t, "connected", svc.Connected)
}

func TestServiceReconnectsAfterDrop(t *testing.T) {
	dialer := &chanDialer{}
	svc, _, _ := startService(t, ServiceDeps{
		Dialer:   dialer,
		Interest: NewInterestSet("BTC"),
		Backoff:  Backoff{Base: 5 * time.Millisecond, Max: 20 * time.Millisecond},
	})

	waitFor(t, "first connection", svc.Connected)
	dialer.conn(0).errs <- errors.New("connection reset")

	waitFor(t, "second dial", func() bool { return dialer.dials.Load() == 2 })
	waitFor(t, "reconnected", svc.Connected)

	dialer.conn(1).msgs <- batch(ticker("BTCUSDT", "42", "0", "1"))
	waitFor(t, "price on new connection", func() bool { return svc.Board().Price("BTC").Price == 42 })
}

func TestServiceNormalCloseStaysDown(t *testing.T) {
	dialer := &chanDialer{}
	svc, _, _ := startService(t, ServiceDeps{
		Dialer:   dialer,
		Interest: NewInterestSet("BTC"),
		Backoff:  Backoff{Base: 5 * time.Millisecond, Max: 20 * time.Millisecond},
	})

	waitFor(t, "connected", svc.Connected)
	dialer.conn(0).errs <- &port.CloseError{Code: port.CloseNormal}
	waitFor(t, "disconnected", func() bool { return !svc.Connected() })

	time.Sleep(50 * time.Millisecond)
	if n := dialer.dials.Load(); n != 1 {
		t.Errorf("normal close must not reconnect, dials=%d", n)
	}

	if err := svc.Retry(); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	waitFor(t, "manual reconnect", func() bool { return dialer.dials.Load() == 2 })
}

type flushCounter struct {
	n atomic.Int32
}

func (f *flushCounter) OnFlush(ts time.Time, batch map[string]domain.Tick) { f.n.Add(1) }

func TestServiceNotifiesListeners(t *testing.T) {
	dialer := &chanDialer{}
	fc := &flushCounter{}
	svc, _, _ := startService(t, ServiceDeps{
		Dialer:    dialer,
		Interest:  NewInterestSet("ETH"),
		Listeners: []port.FlushListener{fc},
	})

	waitFor(t, "connected", svc.Connected)
	dialer.conn(0).msgs <- batch(ticker("ETHUSDT", "3000", "1", "1"))
	waitFor(t, "flush", func() bool { return fc.n.Load() == 1 })
}

func TestServiceRunOnce(t *testing.T) {
	svc, _, _ := startService(t, ServiceDeps{Dialer: &chanDialer{}, Interest: NewInterestSet("BTC")})
	waitFor(t, "connected", svc.Connected)

	if err := svc.Run(context.Background()); err == nil {
		t.Error("second Run must fail")
	}
}
