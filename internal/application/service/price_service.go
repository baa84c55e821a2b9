package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var _ port.FlushListener = (*PriceService)(nil)

type flushed struct {
	ts    int64
	batch map[string]domain.Tick
}

// PriceService 把每次 flush 的批量价格写入仓储并推给下游
// OnFlush 在 ingestion 循环里调用，只做非阻塞入队；队列满时丢弃并计数
type PriceService struct {
	repo       port.PriceRepository
	publishers []port.BatchPublisher
	queue      chan flushed
	timeout    time.Duration

	dropped atomic.Int64
}

func NewPriceService(repo port.PriceRepository, queueSize int, publishers ...port.BatchPublisher) *PriceService {
	if queueSize <= 0 {
		queueSize = 256
	}
	pubs := make([]port.BatchPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			pubs = append(pubs, p)
		}
	}
	return &PriceService{
		repo:       repo,
		publishers: pubs,
		queue:      make(chan flushed, queueSize),
		timeout:    5 * time.Second,
	}
}

func (s *PriceService) OnFlush(ts time.Time, batch map[string]domain.Tick) {
	select {
	case s.queue <- flushed{ts: ts.UnixMilli(), batch: batch}:
	default:
		n := s.dropped.Add(1)
		log.Warn().Int("symbols", len(batch)).Int64("dropped", n).Msg("price recorder queue full, batch dropped")
	}
}

// Dropped returns how many batches were dropped because the queue was full.
func (s *PriceService) Dropped() int64 { return s.dropped.Load() }

// Run 消费队列直到 ctx 结束
func (s *PriceService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.queue:
			s.record(ctx, f)
		}
	}
}

func (s *PriceService) record(ctx context.Context, f flushed) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.repo != nil {
		for _, t := range f.batch {
			if err := s.UpdatePrice(cctx, t, f.ts); err != nil {
				log.Error().Err(err).Str("symbol", t.Symbol).Msg("upsert latest price failed")
				continue
			}
		}
	}

	for _, p := range s.publishers {
		if err := p.PublishBatch(cctx, f.ts, f.batch); err != nil {
			log.Error().Err(err).Int("symbols", len(f.batch)).Msg("publish batch failed")
		}
	}
}

func (s *PriceService) UpdatePrice(ctx context.Context, t domain.Tick, ts int64) error {
	return s.repo.UpsertLatestPrice(ctx, t, ts)
}
