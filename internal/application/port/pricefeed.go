package port

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinfeed/internal/domain"
)

// CloseNormal WebSocket 正常关闭码
const CloseNormal = 1000

// RawTicker 全市场 ticker 流中的一条记录（数值都是字符串）
// encoding/json 对 key 大小写不敏感：p/P、q/Q、c/C 在 payload 里同时出现，
// 所以冲突的 key 也要显式声明，否则后出现的会覆盖我们要读的字段
type RawTicker struct {
	Symbol         string `json:"s"` // "BTCUSDT"
	LastPrice      string `json:"c"`
	PriceChangePct string `json:"P"`
	QuoteVolume    string `json:"q"`

	PriceChange string `json:"p"`
	LastQty     string `json:"Q"`
	CloseTime   int64  `json:"C"`
}

// Conn 一条已建立的流式连接
type Conn interface {
	// ReadMessage blocks until the next frame; a server close is reported as *CloseError.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer 建立到行情源的连接
type Dialer interface {
	Name() string
	Dial(ctx context.Context, url string) (Conn, error)
}

// SymbolConverter 交易对 <-> 币种
type SymbolConverter interface {
	Symbol2Coin(symbol string) string
	Coin2Symbol(coin string) string
	SymbolSuffix() string
}

// CloseError 服务端发来的关闭帧
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed: %d %s", e.Code, e.Text)
}

// IsNormalClose reports whether err is a close frame with code 1000.
func IsNormalClose(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce) && ce.Code == CloseNormal
}

// StatusObserver 连接状态变化的观察者
type StatusObserver interface {
	OnStatus(connected bool)
}

// FlushListener 每次 flush 合并进快照后被调用
// 在 ingestion 循环里同步调用，实现方不能阻塞，也不能修改 batch
type FlushListener interface {
	OnFlush(ts time.Time, batch map[string]domain.Tick)
}
