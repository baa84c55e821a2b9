package pricefeed

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/infrastructure/exchange"
)

// Options 创建行情源所需的配置
type Options struct {
	WsURL string // 为空时使用交易所默认地址
	Quote string // 计价货币，例如 USDT
	WS    exchange.WSOptions
}

// Feed 一个交易所的全市场 ticker 流
type Feed struct {
	Dialer    port.Dialer
	Converter port.SymbolConverter
	URL       string
}

// factory函数类型
type Factory func(opts Options) Feed

// registry maps exchange names to their respective price feed factories
var registry = make(map[string]Factory)

// Register 注册一个 price feed factory
// 这是由各个交易所包的init()函数调用来自注册的
func Register(exchangeName string, factory Factory) {
	exchangeName = strings.ToLower(exchangeName)
	if factory == nil {
		log.Warn().Str("exchange", exchangeName).Msg("invalid price feed factory")
		return
	}
	if _, exists := registry[exchangeName]; exists {
		log.Warn().Str("exchange", exchangeName).Msg("price feed factory already registered, overwriting")
	}
	registry[exchangeName] = factory
	log.Debug().Str("exchange", exchangeName).Msg("price feed factory registered")
}

// Get 获取已注册的price feed factory
func Get(exchangeName string) (Factory, bool) {
	factory, ok := registry[strings.ToLower(exchangeName)]
	return factory, ok
}

// New 按名字创建行情源
func New(exchangeName string, opts Options) (Feed, error) {
	factory, ok := Get(exchangeName)
	if !ok {
		return Feed{}, fmt.Errorf("price feed %q not registered (available: %s)", exchangeName, strings.Join(Names(), ", "))
	}
	return factory(opts), nil
}

// Names returns the registered exchange names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
