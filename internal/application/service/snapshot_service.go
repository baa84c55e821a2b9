package service

import (
	"context"
	"encoding/json"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

type SnapshotService struct {
	repo port.PriceRepository
}

func NewSnapshotService(repo port.PriceRepository) *SnapshotService {
	return &SnapshotService{repo: repo}
}

// SaveSnapshot 把有数据的币种序列化成 JSON 存一条快照，返回写入的币种数
func (s *SnapshotService) SaveSnapshot(ctx context.Context, ts int64, snap map[string]domain.Tick) (int, error) {
	rows := make(map[string]domain.Tick, len(snap))
	for sym, t := range snap {
		if t.HasData() {
			rows[sym] = t
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	b, err := json.Marshal(rows)
	if err != nil {
		return 0, err
	}
	return len(rows), s.repo.InsertSnapshot(ctx, ts, string(b))
}
