package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var (
	errNotQuoted     = errors.New("pair not quoted in configured asset")
	errNotInterested = errors.New("symbol not in interest set")
	errMalformed     = errors.New("malformed ticker record")
)

// Filter 判断一条 ticker 是否相关，并归一化成 domain.Tick
type Filter struct {
	conv     port.SymbolConverter
	interest *InterestSet
}

func NewFilter(conv port.SymbolConverter, interest *InterestSet) *Filter {
	return &Filter{conv: conv, interest: interest}
}

// decodeTickers 一条 WebSocket 消息 = 一个 ticker 数组
func decodeTickers(payload []byte) ([]port.RawTicker, error) {
	var records []port.RawTicker
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Normalize 只接受以 quote 结尾、且币种在 InterestSet 里的记录
func (f *Filter) Normalize(r port.RawTicker) (domain.Tick, error) {
	pair := strings.ToUpper(strings.TrimSpace(r.Symbol))
	suffix := f.conv.SymbolSuffix()
	if pair == suffix || !strings.HasSuffix(pair, suffix) {
		return domain.Tick{}, errNotQuoted
	}

	coin := f.conv.Symbol2Coin(pair)
	if coin == "" || !f.interest.Contains(coin) {
		return domain.Tick{}, errNotInterested
	}

	price, err := parseNumber(r.LastPrice)
	if err != nil || price < 0 {
		return domain.Tick{}, fmt.Errorf("%w: %s price %q", errMalformed, coin, r.LastPrice)
	}
	change, err := parseNumber(r.PriceChangePct)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("%w: %s change %q", errMalformed, coin, r.PriceChangePct)
	}
	volume, err := parseNumber(r.QuoteVolume)
	if err != nil || volume < 0 {
		return domain.Tick{}, fmt.Errorf("%w: %s volume %q", errMalformed, coin, r.QuoteVolume)
	}

	return domain.Tick{Symbol: coin, Price: price, Change24h: change, Volume: volume}, nil
}

// Apply 把一批记录写入 buffer，返回写入条数
func (f *Filter) Apply(records []port.RawTicker, buf *Buffer) int {
	n := 0
	for _, r := range records {
		t, err := f.Normalize(r)
		if err != nil {
			if errors.Is(err, errMalformed) {
				log.Warn().Err(err).Msg("ticker record dropped")
			}
			continue
		}
		buf.Put(t)
		n++
	}
	return n
}

// strconv.ParseFloat would accept "NaN" and "Inf"; values beyond float64 range are rejected too
func parseNumber(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	v, _ := d.Float64()
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("number out of range: %q", s)
	}
	return v, nil
}
