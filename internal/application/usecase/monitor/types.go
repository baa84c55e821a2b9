package monitor

import (
	"context"

	"coinfeed/internal/domain"
)

// SnapshotSaver 周期快照落库
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, ts int64, snap map[string]domain.Tick) (int, error)
}

type noopSaver struct{}

func (noopSaver) SaveSnapshot(context.Context, int64, map[string]domain.Tick) (int, error) {
	return 0, nil
}
