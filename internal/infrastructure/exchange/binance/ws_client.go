package binance

import (
	"strings"

	"coinfeed/internal/infrastructure/exchange"
	"coinfeed/internal/infrastructure/pricefeed"
)

const (
	Name = "binance"

	// DefaultWsURL 现货全市场 24h ticker 流，每条消息是一个 ticker 数组
	DefaultWsURL = "wss://stream.binance.com:9443/ws/!ticker@arr"
	DefaultQuote = "USDT"
)

// NewFeed 创建 Binance 全市场 ticker 行情源
// 订阅的是全部交易对，币种过滤在客户端完成，所以增加关注币种不需要重连
func NewFeed(opts pricefeed.Options) pricefeed.Feed {
	wsURL := strings.TrimSpace(opts.WsURL)
	if wsURL == "" {
		wsURL = DefaultWsURL
	}
	quote := strings.TrimSpace(opts.Quote)
	if quote == "" {
		quote = DefaultQuote
	}
	return pricefeed.Feed{
		Dialer:    exchange.NewWSDialer(Name, opts.WS),
		Converter: exchange.NewCommonSymbolConverter(quote),
		URL:       wsURL,
	}
}
