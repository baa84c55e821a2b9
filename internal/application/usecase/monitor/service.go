package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

type ServiceDeps struct {
	Board *domain.Board
	// Symbols 展示顺序，一般是 InterestSet.Symbols
	Symbols       func() []string
	Connected     func() bool
	LiveEvery     time.Duration
	SnapshotEvery time.Duration
	MaxRows       int
	Sink          port.Sink
	Snapshots     SnapshotSaver
}

// Service 控制台行情展示：有新数据时重画 live 行，定时输出快照行并落库
type Service struct {
	deps ServiceDeps
	st   *State
	fmt  *Formatter

	lastVersion uint64
	lastOnline  bool
}

func NewService(deps ServiceDeps) *Service {
	if deps.LiveEvery <= 0 {
		deps.LiveEvery = 500 * time.Millisecond
	}
	if deps.Snapshots == nil {
		deps.Snapshots = noopSaver{}
	}
	if deps.Connected == nil {
		deps.Connected = func() bool { return true }
	}
	return &Service{
		deps: deps,
		st:   NewState(),
		fmt:  NewFormatter(""),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Board == nil || s.deps.Sink == nil || s.deps.Symbols == nil {
		return errors.New("monitor: board, sink and symbols are required")
	}

	liveTicker := time.NewTicker(s.deps.LiveEvery)
	defer liveTicker.Stop()

	// SnapshotEvery <= 0 时关闭快照
	var snapC <-chan time.Time
	if s.deps.SnapshotEvery > 0 {
		snapTicker := time.NewTicker(s.deps.SnapshotEvery)
		defer snapTicker.Stop()
		snapC = snapTicker.C
	}

	s.lastOnline = s.deps.Connected()
	_ = s.deps.Sink.WriteLive(s.renderLive())

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()

		case <-liveTicker.C:
			if line, ok := s.liveLine(); ok {
				_ = s.deps.Sink.WriteLive(line)
			}

		case now := <-snapC:
			s.snapshot(ctx, now)
		}
	}
}

// liveLine 只有 Board 版本或连接状态变化时才重画
func (s *Service) liveLine() (string, bool) {
	v := s.deps.Board.Version()
	online := s.deps.Connected()
	if v == s.lastVersion && online == s.lastOnline {
		return "", false
	}
	s.lastVersion = v
	s.lastOnline = online
	return s.renderLive(), true
}

func (s *Service) renderLive() string {
	s.st.Apply(s.deps.Board.GetSnapshot())
	rows := s.st.Rows(s.deps.Symbols(), s.deps.MaxRows)
	return s.fmt.Render(rows, s.lastOnline, RenderLive)
}

func (s *Service) snapshot(ctx context.Context, now time.Time) {
	snap := s.deps.Board.GetSnapshot()
	s.st.Apply(snap)
	rows := s.st.Rows(s.deps.Symbols(), 0)
	_ = s.deps.Sink.WriteSnapshot(now, s.fmt.Render(rows, s.deps.Connected(), RenderSnapshot))

	n, err := s.deps.Snapshots.SaveSnapshot(ctx, now.UnixMilli(), snap)
	if err != nil {
		log.Error().Err(err).Msg("save snapshot failed")
		return
	}
	log.Debug().Int("symbols", n).Msg("snapshot saved")
}
