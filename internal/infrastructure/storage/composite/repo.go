package composite

import (
	"context"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var _ port.PriceRepository = (*Repo)(nil)

type Repo struct {
	repos []port.PriceRepository
}

func New(repos ...port.PriceRepository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.PriceRepository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

// Len returns the number of backing repositories.
func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertLatestPrice(ctx context.Context, t domain.Tick, ts int64) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertLatestPrice(ctx, t, ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertSnapshot(ctx, ts, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close 底层连接各自由 container 关闭
func (r *Repo) Close() error { return nil }
