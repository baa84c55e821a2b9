package httpapi

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/domain"
)

const (
	MsgInitial = "INITIAL"
	MsgUpdate  = "UPDATE"
)

// Message 推给 /ws 客户端的内容
type Message struct {
	Type   string                 `json:"type"`
	Ts     int64                  `json:"ts"`
	Prices map[string]domain.Tick `json:"prices"`
}

// Hub 管理 /ws 客户端；每次 flush 的批次广播给所有客户端
// 新客户端先收到一份当前快照（INITIAL）
type Hub struct {
	board *domain.Board

	clients    map[*Client]struct{}
	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	count   atomic.Int64
	dropped atomic.Int64
}

func NewHub(board *domain.Board, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		board:      board,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan *Message, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// PublishBatch implements port.BatchPublisher. Never blocks; a full queue drops the batch.
func (h *Hub) PublishBatch(ctx context.Context, ts int64, batch map[string]domain.Tick) error {
	msg := &Message{Type: MsgUpdate, Ts: ts, Prices: batch}
	select {
	case h.broadcast <- msg:
	default:
		if n := h.dropped.Add(1); n%100 == 1 {
			log.Warn().Int64("dropped", n).Msg("ws hub queue full, batch dropped")
		}
	}
	return nil
}

// Clients 当前连接数
func (h *Hub) Clients() int { return int(h.count.Load()) }

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(0)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			c.send <- h.initial()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int64(len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 太慢的客户端直接断开，不能拖住 hub
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

func (h *Hub) initial() *Message {
	prices := make(map[string]domain.Tick)
	for sym, t := range h.board.GetSnapshot() {
		if t.HasData() {
			prices[sym] = t
		}
	}
	return &Message{Type: MsgInitial, Ts: 0, Prices: prices}
}

// join 把客户端交给 hub；hub 已退出时返回 false
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
