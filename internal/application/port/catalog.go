package port

import (
	"context"

	"coinfeed/internal/domain"
)

// CatalogSource 分页的币种目录（REST）
type CatalogSource interface {
	FetchMarkets(ctx context.Context, page, perPage int) ([]domain.Listing, error)
}

// ChartSource 单个币种的历史价格（一次性 REST 调用）
type ChartSource interface {
	FetchMarketChart(ctx context.Context, coinID string, days int) ([]domain.ChartPoint, error)
}
