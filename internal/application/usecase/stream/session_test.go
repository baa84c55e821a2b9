package stream

import (
	"errors"
	"io"
	"testing"
	"time"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

type harness struct {
	s        *session
	tr       *fakeTransport
	clock    *fakeClock
	board    *domain.Board
	interest *InterestSet
	statuses []Status
	flushes  []map[string]domain.Tick
}

func (h *harness) OnFlush(ts time.Time, batch map[string]domain.Tick) {
	h.flushes = append(h.flushes, batch)
}

func newHarness(symbols ...string) *harness {
	h := &harness{
		tr:       &fakeTransport{},
		clock:    &fakeClock{},
		board:    domain.NewBoard(),
		interest: NewInterestSet(symbols...),
	}
	h.s = newSession(sessionConfig{
		FlushInterval: 100 * time.Millisecond,
		Backoff:       DefaultBackoff,
		MaxAttempts:   10,
	}, NewFilter(usdt, h.interest), h.board, h.tr, h.clock, func(f func()) { f() })
	h.s.listeners = []port.FlushListener{h}
	h.s.onStatus = func(st Status) { h.statuses = append(h.statuses, st) }
	return h
}

// connected 启动并模拟连接成功
func (h *harness) connected() {
	h.s.start()
	h.s.handleOpen(h.s.connGen)
}

func (h *harness) send(records ...string) {
	h.s.handleMessage(h.s.connGen, batch(records...))
}

func TestSessionOpenResetsRetries(t *testing.T) {
	h := newHarness("BTC")
	h.s.start()
	if len(h.tr.opens) != 1 || h.s.state != StateConnecting {
		t.Fatalf("expected one open in connecting state, got %v / %v", h.tr.opens, h.s.state)
	}

	h.s.handleClose(h.s.connGen, io.ErrUnexpectedEOF)
	h.clock.Advance(time.Second)
	if h.s.retries != 1 {
		t.Fatalf("expected 1 retry, got %d", h.s.retries)
	}

	h.s.handleOpen(h.s.connGen)
	if h.s.retries != 0 || h.s.state != StateConnected {
		t.Errorf("open must reset retries, got %d / %v", h.s.retries, h.s.state)
	}
	last := h.statuses[len(h.statuses)-1]
	if !last.Connected {
		t.Error("observers should see connected=true")
	}
}

func TestSessionLastWriteWinsWithinWindow(t *testing.T) {
	h := newHarness("BTC")
	h.connected()

	h.send(ticker("BTCUSDT", "100", "1", "10"))
	h.send(ticker("BTCUSDT", "101", "1", "10"))
	h.send(ticker("BTCUSDT", "102", "1.5", "11"))
	h.clock.Advance(100 * time.Millisecond)

	if got := h.board.Price("BTC"); got.Price != 102 || got.Change24h != 1.5 || got.Volume != 11 {
		t.Errorf("expected last tick to win, got %+v", got)
	}
	if len(h.flushes) != 1 {
		t.Errorf("expected 1 flush, got %d", len(h.flushes))
	}
}

func TestSessionFlushCadence(t *testing.T) {
	h := newHarness("BTC", "ETH")
	h.connected()

	// three ticks inside one window -> one update
	h.send(ticker("BTCUSDT", "1", "0", "1"))
	h.clock.Advance(40 * time.Millisecond)
	h.send(ticker("ETHUSDT", "2", "0", "1"))
	h.clock.Advance(40 * time.Millisecond)
	h.send(ticker("BTCUSDT", "3", "0", "1"))
	h.clock.Advance(20 * time.Millisecond)

	if v := h.board.Version(); v != 1 {
		t.Fatalf("expected exactly one update, got %d", v)
	}
	if h.s.flushTimer.State() != TimerFired {
		t.Errorf("timer should be disarmed after firing, got %v", h.s.flushTimer.State())
	}

	// 150ms apart -> separate updates
	h.send(ticker("BTCUSDT", "4", "0", "1"))
	h.clock.Advance(150 * time.Millisecond)
	h.send(ticker("BTCUSDT", "5", "0", "1"))
	h.clock.Advance(150 * time.Millisecond)

	if v := h.board.Version(); v != 3 {
		t.Errorf("expected 3 updates in total, got %d", v)
	}
	if got := h.board.Price("BTC").Price; got != 5 {
		t.Errorf("expected BTC 5, got %v", got)
	}
}

func TestSessionIrrelevantBatchDoesNotUpdate(t *testing.T) {
	h := newHarness("BTC")
	h.connected()

	h.send(ticker("XRPUSDT", "1.2", "-1.0", "500"))
	h.clock.Advance(time.Second)

	if h.board.Version() != 0 || h.board.Len() != 0 {
		t.Error("snapshot must not change for symbols outside the interest set")
	}
	if _, ok := h.board.Get("XRP"); ok {
		t.Error("XRP must never enter the snapshot")
	}
}

func TestSessionMalformedMessageIsNotFatal(t *testing.T) {
	h := newHarness("ETH")
	h.connected()
	h.board.Seed(map[string]domain.Tick{"ETH": {Price: 3000}})

	h.s.handleMessage(h.s.connGen, []byte(`not json`))
	h.send(ticker("ETHUSDT", "not-a-number", "1", "1"))
	h.clock.Advance(time.Second)

	if got := h.board.Price("ETH").Price; got != 3000 {
		t.Errorf("ETH should keep its previous value, got %v", got)
	}
	if h.s.state != StateConnected {
		t.Errorf("malformed input must not affect the connection, got %v", h.s.state)
	}
}

func TestSessionPaginationWithoutReconnect(t *testing.T) {
	h := newHarness("BTC")
	h.connected()

	h.send(ticker("SOLUSDT", "150", "1", "1"))
	h.interest.Add("SOL")
	h.send(ticker("SOLUSDT", "151", "1", "1"))
	h.clock.Advance(100 * time.Millisecond)

	if got := h.board.Price("SOL").Price; got != 151 {
		t.Errorf("expected SOL 151 after pagination, got %v", got)
	}
	if len(h.tr.opens) != 1 {
		t.Errorf("interest change must not reconnect, opens=%v", h.tr.opens)
	}
}

func TestSessionReconnectBackoffAndCap(t *testing.T) {
	h := newHarness("BTC")
	h.s.start()

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, d := range want {
		h.s.handleClose(h.s.connGen, io.ErrUnexpectedEOF)
		timer := h.clock.last()
		if timer == nil || timer.d != d {
			t.Fatalf("attempt %d: expected delay %v, got %+v", i+1, d, timer)
		}
		h.clock.Advance(d)
		if len(h.tr.opens) != i+2 {
			t.Fatalf("attempt %d: expected %d opens, got %d", i+1, i+2, len(h.tr.opens))
		}
	}

	// 第 10 次之后不再调度
	timersBefore := len(h.clock.timers)
	h.s.handleClose(h.s.connGen, io.ErrUnexpectedEOF)
	if len(h.clock.timers) != timersBefore {
		t.Error("no reconnect may be scheduled after the 10th attempt")
	}
	if !h.s.exhausted {
		t.Error("session should be exhausted")
	}
	h.clock.Advance(time.Hour)
	if len(h.tr.opens) != 11 {
		t.Errorf("expected 11 opens in total, got %d", len(h.tr.opens))
	}
	if last := h.statuses[len(h.statuses)-1]; last.Connected || !last.Exhausted {
		t.Errorf("expected permanent disconnected status, got %+v", last)
	}
}

func TestSessionRetryAfterExhaustion(t *testing.T) {
	h := newHarness("BTC")
	h.s.cfg.MaxAttempts = 1
	h.s.start()

	h.s.handleClose(h.s.connGen, io.ErrUnexpectedEOF)
	h.clock.Advance(time.Second)
	h.s.handleClose(h.s.connGen, io.ErrUnexpectedEOF)
	if !h.s.exhausted {
		t.Fatal("expected exhausted after one attempt")
	}

	if !h.s.retry() {
		t.Fatal("retry should reconnect from the exhausted state")
	}
	if h.s.exhausted || h.s.retries != 0 || len(h.tr.opens) != 3 {
		t.Errorf("unexpected state after retry: exhausted=%v retries=%d opens=%d", h.s.exhausted, h.s.retries, len(h.tr.opens))
	}
	if h.s.retry() {
		t.Error("retry while connecting must be a no-op")
	}
}

func TestSessionErrorDoesNotReconnect(t *testing.T) {
	h := newHarness("BTC")
	h.connected()

	h.s.handleError(h.s.connGen, errors.New("boom"))
	if len(h.clock.active()) != 0 {
		t.Error("error alone must not schedule a reconnect")
	}
	if h.statuses[len(h.statuses)-1].Connected {
		t.Error("error must mark disconnected")
	}

	h.s.handleClose(h.s.connGen, errors.New("boom"))
	if len(h.clock.active()) != 1 {
		t.Errorf("close must schedule exactly one reconnect, got %d", len(h.clock.active()))
	}
}

func TestSessionNormalCloseDoesNotReconnect(t *testing.T) {
	h := newHarness("BTC")
	h.connected()

	h.s.handleClose(h.s.connGen, &port.CloseError{Code: port.CloseNormal})
	h.clock.Advance(time.Minute)

	if len(h.tr.opens) != 1 {
		t.Errorf("normal close must not reconnect, opens=%v", h.tr.opens)
	}
}

func TestSessionStaleGenerationIgnored(t *testing.T) {
	h := newHarness("BTC")
	h.s.start()
	old := h.s.connGen
	h.s.handleClose(old, io.EOF)
	h.clock.Advance(time.Second)

	h.s.handleOpen(old)
	if h.s.state == StateConnected {
		t.Error("open from a previous connection must be ignored")
	}
	h.s.handleMessage(old, batch(ticker("BTCUSDT", "1", "0", "1")))
	h.clock.Advance(time.Second)
	if h.board.Len() != 0 {
		t.Error("message from a previous connection must be ignored")
	}
}

func TestSessionTeardown(t *testing.T) {
	h := newHarness("BTC")
	h.connected()

	h.send(ticker("BTCUSDT", "1", "0", "1"))
	if h.s.flushTimer.State() != TimerArmed {
		t.Fatal("expected armed flush timer")
	}
	h.s.teardown()

	if len(h.tr.closes) != 1 {
		t.Errorf("teardown must close the connection, closes=%v", h.tr.closes)
	}
	if len(h.clock.active()) != 0 {
		t.Error("teardown must cancel every timer")
	}

	// buffered tick is discarded, later activity is ignored
	h.clock.Advance(time.Second)
	h.send(ticker("BTCUSDT", "2", "0", "1"))
	h.s.handleClose(h.s.connGen, io.ErrUnexpectedEOF)
	h.clock.Advance(time.Minute)

	if h.board.Version() != 0 {
		t.Errorf("no snapshot update may happen after teardown, version=%d", h.board.Version())
	}
	if len(h.tr.opens) != 1 {
		t.Errorf("no reconnect may happen after teardown, opens=%v", h.tr.opens)
	}
}

func TestSessionTeardownCancelsPendingReconnect(t *testing.T) {
	h := newHarness("BTC")
	h.connected()
	h.s.handleClose(h.s.connGen, io.ErrUnexpectedEOF)
	if len(h.clock.active()) != 1 {
		t.Fatal("expected a pending reconnect")
	}

	h.s.teardown()
	h.clock.Advance(time.Minute)
	if len(h.tr.opens) != 1 {
		t.Errorf("reconnect timer fired after teardown, opens=%v", h.tr.opens)
	}
}
