package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/exchange"
)

const DefaultBaseURL = "https://api.coingecko.com"

var (
	_ port.CatalogSource = (*Client)(nil)
	_ port.ChartSource   = (*Client)(nil)
)

// Client CoinGecko 公共 REST 客户端（币种目录 + 历史价格）
type Client struct {
	baseURL    string
	vsCurrency string
	client     *http.Client
}

// NewClient 创建 CoinGecko 客户端；baseURL 为空时使用公共地址
func NewClient(baseURL, vsCurrency string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		vsCurrency: strings.ToLower(vsCurrency),
		client:     &http.Client{Timeout: timeout},
	}
}

// marketResp /coins/markets 的一行；报价字段可能为 null
type marketResp struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	TotalVolume              *float64 `json:"total_volume"`
}

type marketChartResp struct {
	Prices [][]float64 `json:"prices"`
}

// FetchMarkets 按市值排序分页拉取币种
func (c *Client) FetchMarkets(ctx context.Context, page, perPage int) ([]domain.Listing, error) {
	q := url.Values{}
	q.Set("vs_currency", c.vsCurrency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("sparkline", "false")

	var rows []marketResp
	if err := c.get(ctx, "/api/v3/coins/markets", q, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.Listing, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" || r.Symbol == "" {
			continue
		}
		sym := domain.NormalizeSymbol(r.Symbol)
		out = append(out, domain.Listing{
			Coin: domain.Coin{ID: r.ID, Symbol: sym, Name: r.Name},
			Quote: domain.Tick{
				Symbol:    sym,
				Price:     deref(r.CurrentPrice),
				Change24h: deref(r.PriceChangePercentage24h),
				Volume:    deref(r.TotalVolume),
			},
		})
	}
	return out, nil
}

// FetchMarketChart 单个币种最近 days 天的价格曲线
func (c *Client) FetchMarketChart(ctx context.Context, coinID string, days int) ([]domain.ChartPoint, error) {
	coinID = strings.TrimSpace(coinID)
	if coinID == "" {
		return nil, fmt.Errorf("coingecko: empty coin id")
	}
	if days <= 0 {
		days = 7
	}

	q := url.Values{}
	q.Set("vs_currency", c.vsCurrency)
	q.Set("days", strconv.Itoa(days))

	var resp marketChartResp
	if err := c.get(ctx, "/api/v3/coins/"+coinID+"/market_chart", q, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.ChartPoint, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		if len(p) < 2 {
			continue
		}
		out = append(out, domain.ChartPoint{
			Time:  time.UnixMilli(int64(p[0])).UTC(),
			Price: p[1],
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	endpoint, err := exchange.BuildQueryURL(c.baseURL, path, query.Encode())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("coingecko api error: %d %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coingecko decode %s: %w", path, err)
	}
	return nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
