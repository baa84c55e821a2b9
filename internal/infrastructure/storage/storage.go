package storage

import (
	"context"
	"sort"
	"sync"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var (
	_ port.PriceRepository     = (*InMemoryStorage)(nil)
	_ port.WatchlistRepository = (*InMemoryStorage)(nil)
)

// Snapshot represents one persisted snapshot payload
type Snapshot struct {
	Ts      int64
	Payload string
}

// InMemoryStorage 不落盘的存储；没有配置任何后端时使用，也用于测试
type InMemoryStorage struct {
	mu        sync.RWMutex
	latest    map[string]domain.Tick
	snapshots []Snapshot
	watch     map[string]domain.WatchItem

	maxSnapshots int
}

// NewInMemoryStorage creates a new in-memory storage
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		latest:       make(map[string]domain.Tick),
		watch:        make(map[string]domain.WatchItem),
		maxSnapshots: 1000,
	}
}

func (s *InMemoryStorage) UpsertLatestPrice(ctx context.Context, t domain.Tick, ts int64) error {
	s.mu.Lock()
	s.latest[t.Symbol] = t
	s.mu.Unlock()
	return nil
}

// LatestPrices returns a copy of the latest prices.
func (s *InMemoryStorage) LatestPrices(ctx context.Context) (map[string]domain.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Tick, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out, nil
}

// InsertSnapshot 只保留最近 maxSnapshots 条
func (s *InMemoryStorage) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, Snapshot{Ts: ts, Payload: payload})
	if over := len(s.snapshots) - s.maxSnapshots; over > 0 {
		s.snapshots = append(s.snapshots[:0:0], s.snapshots[over:]...)
	}
	return nil
}

func (s *InMemoryStorage) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Snapshot(nil), s.snapshots...)
}

func (s *InMemoryStorage) AddWatch(ctx context.Context, item domain.WatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watch[item.ID]; !ok {
		s.watch[item.ID] = item
	}
	return nil
}

func (s *InMemoryStorage) RemoveWatch(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.watch, id)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStorage) ListWatch(ctx context.Context) ([]domain.WatchItem, error) {
	s.mu.RLock()
	items := make([]domain.WatchItem, 0, len(s.watch))
	for _, it := range s.watch {
		items = append(items, it)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].AddedAt != items[j].AddedAt {
			return items[i].AddedAt < items[j].AddedAt
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *InMemoryStorage) Close() error {
	return nil
}
