package domain

import (
	"strings"
	"time"
)

// Tick 单个币种的一次价格观测（已归一化）
// Price == 0 表示 "还没有数据"，消费方应隐藏这一行
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"` // 24h 涨跌幅，百分比，有符号
	Volume    float64 `json:"volume"`    // 24h 计价货币成交量
}

// HasData reports whether the tick carries a real price.
func (t Tick) HasData() bool {
	return t.Price > 0
}

// DefaultTick 还没有收到任何行情时的占位值
func DefaultTick(symbol string) Tick {
	return Tick{Symbol: NormalizeSymbol(symbol)}
}

// Coin 目录中的一个币种
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Listing 目录接口返回的一行：币种 + REST 报价
type Listing struct {
	Coin  Coin
	Quote Tick
}

// WatchItem 自选列表中的一项
type WatchItem struct {
	ID      string `json:"id"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	AddedAt int64  `json:"addedAt"` // unix ms
}

// ChartPoint 历史价格曲线上的一个点
type ChartPoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// NormalizeSymbol 统一币种格式：去空格、大写
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
