package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	appcontainer "coinfeed/internal/application/container"
	"coinfeed/internal/application/port"
	"coinfeed/internal/application/service"
	"coinfeed/internal/application/usecase/monitor"
	"coinfeed/internal/application/usecase/stream"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/config"
	"coinfeed/internal/infrastructure/container"
	"coinfeed/internal/infrastructure/exchange"
	"coinfeed/internal/infrastructure/exchange/coingecko"
	"coinfeed/internal/infrastructure/pricefeed"
	"coinfeed/internal/interfaces/console"
	httpapi "coinfeed/internal/interfaces/http"

	// 交易所在 init() 中注册自己
	_ "coinfeed/internal/infrastructure/exchange/binance"
)

type ServiceContext struct {
	Config *config.Config

	// 基础设施层（第一层初始化）
	infra *container.Container
	app   *appcontainer.Container

	// 输出端口
	Sink port.Sink

	feed    pricefeed.Feed
	stream  *stream.Service
	catalog *service.CatalogService
	gecko   *coingecko.Client
	http    *httpapi.Server
	monitor *monitor.Service
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	feed, err := pricefeed.New(cfg.Feed.Exchange, pricefeed.Options{
		WsURL: cfg.Feed.WsURL,
		Quote: cfg.Symbols.Quote,
		WS: exchange.WSOptions{
			DialTimeout:  time.Duration(cfg.Feed.DialTimeoutSec) * time.Second,
			ReadTimeout:  time.Duration(cfg.Feed.ReadTimeoutSec) * time.Second,
			PingInterval: time.Duration(cfg.Feed.PingIntervalSec) * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFeed, err)
	}

	infra, err := container.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}

	sc := &ServiceContext{
		Config: cfg,
		infra:  infra,
		Sink:   console.NewSink(),
		feed:   feed,
	}

	if err := sc.initializeComponents(ctx); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化：存储 -> 快照/兴趣集 -> 行情流 -> 消费方
func (sc *ServiceContext) initializeComponents(ctx context.Context) error {
	cfg := sc.Config
	sc.app = appcontainer.New(
		sc.infra.PriceRepository(),
		sc.infra.WatchlistRepository(),
		cfg.Recorder.QueueSize,
		sc.infra.Publishers()...,
	)

	board := sc.app.Board()
	interest := sc.app.Interest()

	interest.Add(cfg.Symbols.List...)
	if err := sc.app.WatchlistService().Restore(ctx); err != nil {
		return fmt.Errorf("watchlist restore failed: %w", err)
	}

	// 上次保存的价格先填进快照，实时数据到了会覆盖
	if prices, err := sc.infra.LatestPrices(ctx); err != nil {
		log.Warn().Err(err).Msg("load latest prices failed")
	} else if n := seedBoard(board, interest, prices); n > 0 {
		log.Info().Int("symbols", n).Msg("board seeded from storage")
	}

	if cfg.Catalog.Enabled {
		sc.gecko = coingecko.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.VsCurrency,
			time.Duration(cfg.Catalog.TimeoutSec)*time.Second)
		sc.catalog = sc.app.CatalogService(sc.gecko, cfg.Catalog.PerPage)
	}

	var hub *httpapi.Hub
	if cfg.HTTP.Enabled {
		hub = httpapi.NewHub(board, 0)
		sc.app.AddPublisher(hub)
	}

	// PriceService 要在所有 publisher 加完之后创建
	recorder := sc.app.PriceService()

	sc.stream = stream.NewService(stream.ServiceDeps{
		Dialer:        sc.feed.Dialer,
		URL:           sc.feed.URL,
		Converter:     sc.feed.Converter,
		Interest:      interest,
		Board:         board,
		FlushInterval: cfg.FlushInterval(),
		Backoff:       stream.Backoff{Base: cfg.BackoffBase(), Max: cfg.BackoffMax()},
		MaxAttempts:   cfg.Feed.MaxAttempts,
		MailboxSize:   cfg.Feed.MailboxSize,
		Listeners:     []port.FlushListener{recorder},
	})

	if hub != nil {
		deps := httpapi.Deps{
			Board:     board,
			Interest:  interest,
			Feed:      sc.stream,
			Watchlist: sc.app.WatchlistService(),
			Hub:       hub,
		}
		if sc.catalog != nil {
			deps.Catalog = sc.catalog
			deps.Charts = sc.gecko
		}
		sc.http = httpapi.NewServer(cfg.HTTP.Addr, deps)
	}

	if cfg.App.Console {
		sc.monitor = monitor.NewService(monitor.ServiceDeps{
			Board:         board,
			Symbols:       interest.Symbols,
			Connected:     sc.stream.Connected,
			LiveEvery:     cfg.LiveEvery(),
			SnapshotEvery: cfg.SnapshotEvery(),
			MaxRows:       8,
			Sink:          sc.Sink,
			Snapshots:     sc.app.SnapshotService(),
		})
	}

	log.Info().
		Str("exchange", cfg.Feed.Exchange).
		Int("symbols", interest.Len()).
		Bool("catalog", sc.catalog != nil).
		Bool("http", sc.http != nil).
		Bool("console", sc.monitor != nil).
		Msg("all components initialized")
	return nil
}

// Stream 行情流服务
func (sc *ServiceContext) Stream() *stream.Service { return sc.stream }

// Run 启动所有 goroutine，阻塞到 ctx 结束或任何一个组件出错
func (sc *ServiceContext) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(sc.app.PriceService().Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(sc.stream.Run(gctx)) })

	if sc.catalog != nil {
		g.Go(func() error {
			if err := sc.catalog.LoadPages(gctx, sc.Config.Catalog.InitialPages); err != nil {
				// 目录加载失败不影响静态币种的行情
				log.Warn().Err(err).Msg("initial catalog load failed")
			}
			return nil
		})
	}
	if sc.http != nil {
		g.Go(func() error { return ignoreCanceled(sc.http.Run(gctx)) })
	}
	if sc.monitor != nil {
		g.Go(func() error { return ignoreCanceled(sc.monitor.Run(gctx)) })
	}

	err := g.Wait()
	if d := sc.app.PriceService().Dropped(); d > 0 {
		log.Warn().Int64("dropped", d).Msg("recorder dropped batches")
	}
	return err
}

// Close 关闭 ServiceContext 中的所有资源，应该在 Run 返回后调用
func (sc *ServiceContext) Close() error {
	if sc.infra == nil {
		return nil
	}
	return sc.infra.Close()
}

// seedBoard 只预填当前 InterestSet 里的币种；存储里其它币种是以前运行留下的
func seedBoard(board *domain.Board, interest *stream.InterestSet, prices map[string]domain.Tick) int {
	wanted := make(map[string]domain.Tick, len(prices))
	for sym, t := range prices {
		if interest.Contains(sym) {
			wanted[sym] = t
		}
	}
	return board.Seed(wanted)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
