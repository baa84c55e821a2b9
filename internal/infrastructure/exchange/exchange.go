package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coinfeed/internal/application/port"
)

// WSOptions 连接保活参数
type WSOptions struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration // 超过这个时间没有任何帧（含 pong）就认为连接已死
	PingInterval time.Duration
}

// DefaultWSOptions 10s 拨号超时，25s ping，60s 读超时
func DefaultWSOptions() WSOptions {
	return WSOptions{
		DialTimeout:  10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
	}
}

func (o WSOptions) withDefaults() WSOptions {
	d := DefaultWSOptions()
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	return o
}

// WSDialer 基于 gorilla/websocket 的 port.Dialer
type WSDialer struct {
	name   string
	opts   WSOptions
	dialer *websocket.Dialer
}

func NewWSDialer(name string, opts WSOptions) *WSDialer {
	opts = opts.withDefaults()
	return &WSDialer{
		name: name,
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.DialTimeout,
		},
	}
}

func (d *WSDialer) Name() string { return d.name }

// Dial 建立连接并启动 ping 保活
func (d *WSDialer) Dial(ctx context.Context, wsURL string) (port.Conn, error) {
	cctx, cancel := context.WithTimeout(ctx, d.opts.DialTimeout)
	defer cancel()

	conn, _, err := d.dialer.DialContext(cctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s ws dial: %w", d.name, err)
	}
	return newWSConn(conn, d.opts), nil
}

// wsConn 把 gorilla 的连接包装成 port.Conn
// ReadMessage 只在一个 goroutine 上调用；ping 由独立 goroutine 用 WriteControl 发送
type wsConn struct {
	conn *websocket.Conn
	opts WSOptions

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, opts WSOptions) *wsConn {
	c := &wsConn{conn: conn, opts: opts, done: make(chan struct{})}

	_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		return nil
	})

	go c.pingLoop()
	return c
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, b, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &port.CloseError{Code: ce.Code, Text: ce.Text}
		}
		return nil, err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	return b, nil
}

// Close 先尝试发关闭帧（1000），再关闭底层连接；可重复调用
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// BuildQueryURL builds a URL with query parameters
func BuildQueryURL(base, path, query string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("base url is empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = path
	u.RawQuery = query
	return u.String(), nil
}
