package port

import (
	"context"

	"coinfeed/internal/domain"
)

type PriceRepository interface {
	// Latest price per symbol
	UpsertLatestPrice(ctx context.Context, t domain.Tick, ts int64) error

	// Periodic full snapshot (JSON payload)
	InsertSnapshot(ctx context.Context, ts int64, payload string) error

	// Connection management
	Close() error
}

// WatchlistRepository 自选列表的 KV 存储，与行情流水线无关
type WatchlistRepository interface {
	AddWatch(ctx context.Context, item domain.WatchItem) error
	RemoveWatch(ctx context.Context, id string) error
	ListWatch(ctx context.Context) ([]domain.WatchItem, error)
}

// BatchPublisher 把每次 flush 的批量价格推给下游（pub/sub、kafka、ws 客户端）
type BatchPublisher interface {
	PublishBatch(ctx context.Context, ts int64, batch map[string]domain.Tick) error
}
