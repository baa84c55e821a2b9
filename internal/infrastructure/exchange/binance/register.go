package binance

import (
	"coinfeed/internal/infrastructure/pricefeed"
)

// init() automatically registers Binance WebSocket price feed factory
func init() {
	pricefeed.Register(Name, NewFeed)
}
