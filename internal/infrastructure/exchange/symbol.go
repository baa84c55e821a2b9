package exchange

import (
	"strings"

	"coinfeed/internal/application/port"
)

var _ port.SymbolConverter = (*CommonSymbolConverter)(nil)

// CommonSymbolConverter 通用符号转换器：交易对 = 币种 + 计价货币后缀
type CommonSymbolConverter struct {
	suffix string
}

// NewCommonSymbolConverter 创建通用符号转换器
func NewCommonSymbolConverter(suffix string) *CommonSymbolConverter {
	return &CommonSymbolConverter{suffix: strings.ToUpper(strings.TrimSpace(suffix))}
}

// SymbolSuffix 返回符号后缀
func (c *CommonSymbolConverter) SymbolSuffix() string {
	return c.suffix
}

// Symbol2Coin 将交易对转换为币种
// 例: BTCUSDT -> BTC；只去掉末尾的后缀，USDTUSDT -> USDT
// 不以后缀结尾的交易对返回空串
func (c *CommonSymbolConverter) Symbol2Coin(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" || c.suffix == "" || !strings.HasSuffix(sym, c.suffix) {
		return ""
	}
	return strings.TrimSuffix(sym, c.suffix)
}

// Coin2Symbol 将币种转换为交易对
// 例: BTC -> BTCUSDT
func (c *CommonSymbolConverter) Coin2Symbol(coin string) string {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if coin == "" {
		return ""
	}
	return coin + c.suffix
}
