package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var (
	_ port.PriceRepository     = (*Repo)(nil)
	_ port.WatchlistRepository = (*Repo)(nil)
	_ port.BatchPublisher      = (*Repo)(nil)
)

// snapshotMaxLen 快照 stream 近似上限
const snapshotMaxLen = 10000

type Repo struct {
	rdb            *redis.Client
	prefix         string
	ttl            time.Duration
	keyLatest      string // prefix + ":latest"
	keyWatchlist   string // prefix + ":watchlist"
	snapshotStream string
	priceChan      string
}

type LatestPrice struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Volume    float64 `json:"volume"`
	Ts        int64   `json:"ts"`
}

// BatchMessage 每次 flush 推送到 pub/sub 频道的消息
type BatchMessage struct {
	Ts     int64                  `json:"ts"`
	Prices map[string]domain.Tick `json:"prices"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, snapshotStream, priceChan string) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "coinfeed"
	}
	if strings.TrimSpace(snapshotStream) == "" {
		snapshotStream = prefix + ":snapshots"
	}
	if strings.TrimSpace(priceChan) == "" {
		priceChan = prefix + ":prices"
	}
	return &Repo{
		rdb:            rdb,
		prefix:         prefix,
		ttl:            ttl,
		keyLatest:      prefix + ":latest",
		keyWatchlist:   prefix + ":watchlist",
		snapshotStream: snapshotStream,
		priceChan:      priceChan,
	}
}

// Close 连接由 container 负责关闭
func (r *Repo) Close() error { return nil }

func (r *Repo) UpsertLatestPrice(ctx context.Context, t domain.Tick, ts int64) error {
	if !t.HasData() {
		return nil
	}
	lp := LatestPrice{Symbol: t.Symbol, Price: t.Price, Change24h: t.Change24h, Volume: t.Volume, Ts: ts}
	b, _ := json.Marshal(lp)

	// Hash: field = "BTC" -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, t.Symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// LatestPrices 读取 latest hash，字段损坏的条目跳过
func (r *Repo) LatestPrices(ctx context.Context) (map[string]domain.Tick, error) {
	fields, err := r.rdb.HGetAll(ctx, r.keyLatest).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Tick, len(fields))
	for sym, raw := range fields {
		var lp LatestPrice
		if err := json.Unmarshal([]byte(raw), &lp); err != nil {
			continue
		}
		out[sym] = domain.Tick{Symbol: sym, Price: lp.Price, Change24h: lp.Change24h, Volume: lp.Volume}
	}
	return out, nil
}

// InsertSnapshot XADD <stream> MAXLEN ~ N * ts_ms payload
func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.snapshotStream,
		MaxLen: snapshotMaxLen,
		Approx: true,
		Values: map[string]any{
			"ts_ms":   ts,
			"payload": payload,
		},
	}).Err()
}

// PublishBatch PUBLISH <channel> json
func (r *Repo) PublishBatch(ctx context.Context, ts int64, batch map[string]domain.Tick) error {
	b, err := json.Marshal(BatchMessage{Ts: ts, Prices: batch})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.priceChan, b).Err()
}

// PriceChannel returns the pub/sub channel name.
func (r *Repo) PriceChannel() string { return r.priceChan }

func (r *Repo) AddWatch(ctx context.Context, item domain.WatchItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return r.rdb.HSetNX(ctx, r.keyWatchlist, item.ID, string(b)).Err()
}

func (r *Repo) RemoveWatch(ctx context.Context, id string) error {
	return r.rdb.HDel(ctx, r.keyWatchlist, id).Err()
}

func (r *Repo) ListWatch(ctx context.Context) ([]domain.WatchItem, error) {
	fields, err := r.rdb.HGetAll(ctx, r.keyWatchlist).Result()
	if err != nil {
		return nil, err
	}
	items := make([]domain.WatchItem, 0, len(fields))
	for id, raw := range fields {
		var it domain.WatchItem
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			return nil, fmt.Errorf("watchlist item %s: %w", id, err)
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].AddedAt != items[j].AddedAt {
			return items[i].AddedAt < items[j].AddedAt
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}
