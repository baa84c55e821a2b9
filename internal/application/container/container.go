package container

import (
	"coinfeed/internal/application/port"
	"coinfeed/internal/application/service"
	"coinfeed/internal/application/usecase/stream"
	"coinfeed/internal/domain"
)

// Container 应用层服务，按需创建并复用
type Container struct {
	repo       port.PriceRepository
	watchRepo  port.WatchlistRepository
	publishers []port.BatchPublisher
	queueSize  int

	board    *domain.Board
	interest *stream.InterestSet

	priceService     *service.PriceService
	snapshotService  *service.SnapshotService
	watchlistService *service.WatchlistService
	catalogService   *service.CatalogService
}

func New(repo port.PriceRepository, watchRepo port.WatchlistRepository, queueSize int, publishers ...port.BatchPublisher) *Container {
	return &Container{
		repo:       repo,
		watchRepo:  watchRepo,
		publishers: publishers,
		queueSize:  queueSize,
		board:      domain.NewBoard(),
		interest:   stream.NewInterestSet(),
	}
}

func (c *Container) Repository() port.PriceRepository {
	return c.repo
}

// Board 全局唯一的价格快照
func (c *Container) Board() *domain.Board { return c.board }

func (c *Container) Interest() *stream.InterestSet { return c.interest }

// AddPublisher 必须在第一次调用 PriceService 之前
func (c *Container) AddPublisher(p port.BatchPublisher) {
	c.publishers = append(c.publishers, p)
}

func (c *Container) PriceService() *service.PriceService {
	if c.priceService == nil {
		c.priceService = service.NewPriceService(c.repo, c.queueSize, c.publishers...)
	}
	return c.priceService
}

func (c *Container) SnapshotService() *service.SnapshotService {
	if c.snapshotService == nil {
		c.snapshotService = service.NewSnapshotService(c.repo)
	}
	return c.snapshotService
}

func (c *Container) WatchlistService() *service.WatchlistService {
	if c.watchlistService == nil {
		c.watchlistService = service.NewWatchlistService(c.watchRepo, c.interest)
	}
	return c.watchlistService
}

// CatalogService 第一次调用时绑定目录源；之后 src 被忽略
func (c *Container) CatalogService(src port.CatalogSource, perPage int) *service.CatalogService {
	if c.catalogService == nil {
		c.catalogService = service.NewCatalogService(src, c.interest, c.board, perPage)
	}
	return c.catalogService
}

func (c *Container) Close() error {
	return c.repo.Close()
}
