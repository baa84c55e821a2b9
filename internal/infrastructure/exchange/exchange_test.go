package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"coinfeed/internal/application/port"
)

func wsServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSDialerReadsFramesAndCloseCode(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"s":"BTCUSDT"}]`))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		time.Sleep(50 * time.Millisecond)
	})

	d := NewWSDialer("test", WSOptions{})
	conn, err := d.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if string(b) != `[{"s":"BTCUSDT"}]` {
		t.Errorf("unexpected payload %s", b)
	}

	_, err = conn.ReadMessage()
	var ce *port.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *port.CloseError, got %T %v", err, err)
	}
	if ce.Code != websocket.CloseNormalClosure || !port.IsNormalClose(err) {
		t.Errorf("expected normal close, got %d", ce.Code)
	}
}

func TestWSDialerAbnormalClose(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "restart")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		time.Sleep(50 * time.Millisecond)
	})

	conn, err := NewWSDialer("test", WSOptions{}).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	_, err = conn.ReadMessage()
	if port.IsNormalClose(err) {
		t.Fatal("1011 must not be treated as a normal close")
	}
	var ce *port.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.CloseInternalServerErr {
		t.Errorf("unexpected error %v", err)
	}
}

func TestWSDialerCloseUnblocksRead(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		// 不发任何数据，等客户端关闭
		_, _, _ = conn.ReadMessage()
	})

	conn, err := NewWSDialer("test", WSOptions{}).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.ReadMessage()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = conn.Close()
	_ = conn.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected an error after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMessage did not return after Close")
	}
}

func TestWSDialerDialError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewWSDialer("test", WSOptions{}).Dial(ctx, "ws://127.0.0.1:1/none"); err == nil {
		t.Error("expected dial error")
	}
}

func TestBuildQueryURL(t *testing.T) {
	got, err := BuildQueryURL("https://api.example.com/ ", "/api/v3/coins/markets", "page=2")
	if err != nil {
		t.Fatalf("BuildQueryURL failed: %v", err)
	}
	if got != "https://api.example.com/api/v3/coins/markets?page=2" {
		t.Errorf("unexpected url %s", got)
	}
	if _, err := BuildQueryURL("  ", "/x", ""); err == nil {
		t.Error("expected error for empty base")
	}
}
