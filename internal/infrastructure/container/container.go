package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/config"
	kafkapub "coinfeed/internal/infrastructure/messaging/kafka"
	"coinfeed/internal/infrastructure/storage"
	"coinfeed/internal/infrastructure/storage/composite"
	pgrepo "coinfeed/internal/infrastructure/storage/postgres"
	redisrepo "coinfeed/internal/infrastructure/storage/redis"
	sqliterepo "coinfeed/internal/infrastructure/storage/sqlite"
)

// LatestPricer 能读出上次保存的最新价格的存储
type LatestPricer interface {
	LatestPrices(ctx context.Context) (map[string]domain.Tick, error)
}

// Container 包含所有存储与消息依赖
type Container struct {
	cfg         *config.Config
	redisClient *redis.Client
	redisRepo   *redisrepo.Repo
	sqliteRepo  *sqliterepo.Repo
	pgRepo      *pgrepo.Repo
	kafkaPub    *kafkapub.Publisher
	memory      *storage.InMemoryStorage

	closeOnce   sync.Once
	closerChain []func() error
}

// New 创建新的容器实例；任何一步失败都会释放已初始化的资源
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		memory:      storage.NewInMemoryStorage(),
		closerChain: make([]func() error, 0),
	}

	if err := c.initStorage(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if cfg.Kafka.Enabled {
		c.initKafka()
	}
	return c, nil
}

// initStorage 初始化存储层（Redis、SQLite、Postgres）
func (c *Container) initStorage(ctx context.Context) error {
	if c.cfg.Storage.Redis.Enabled {
		if err := c.initRedis(ctx); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
	}
	if c.cfg.Storage.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
	}
	if c.cfg.Storage.Postgres.Enabled {
		if err := c.initPostgres(ctx); err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
	}
	return nil
}

func (c *Container) initRedis(ctx context.Context) error {
	rc := c.cfg.Storage.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	c.redisRepo = redisrepo.New(rdb, rc.Prefix, c.cfg.RedisTTL(), rc.SnapshotStream, rc.PriceChannel)

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().Str("addr", rc.Addr).Int("db", rc.DB).Msg("redis initialized")
	return nil
}

func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}
	c.sqliteRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().Str("path", c.cfg.Storage.SQLite.Path).Msg("sqlite initialized")
	return nil
}

func (c *Container) initPostgres(ctx context.Context) error {
	repo, err := pgrepo.New(ctx, c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return err
	}
	c.pgRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return nil
}

func (c *Container) initKafka() {
	w := kafkapub.NewWriter(c.cfg.Kafka.Brokers, c.cfg.Kafka.Topic)
	c.kafkaPub = kafkapub.NewPublisher(w)

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing kafka writer")
		return c.kafkaPub.Close()
	})

	log.Info().Strs("brokers", c.cfg.Kafka.Brokers).Str("topic", c.cfg.Kafka.Topic).Msg("kafka publisher initialized")
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

func (c *Container) RedisClient() *redis.Client { return c.redisClient }

func (c *Container) RedisRepo() *redisrepo.Repo { return c.redisRepo }

func (c *Container) SQLiteRepo() *sqliterepo.Repo { return c.sqliteRepo }

func (c *Container) PostgresRepo() *pgrepo.Repo { return c.pgRepo }

// PriceRepository 所有启用的存储组合在一起；都没启用时落到内存
func (c *Container) PriceRepository() port.PriceRepository {
	var repos []port.PriceRepository
	if c.sqliteRepo != nil {
		repos = append(repos, c.sqliteRepo)
	}
	if c.redisRepo != nil {
		repos = append(repos, c.redisRepo)
	}
	if c.pgRepo != nil {
		repos = append(repos, c.pgRepo)
	}
	if len(repos) == 0 {
		return c.memory
	}
	return composite.New(repos...)
}

// WatchlistRepository 按 storage.watchlist 选择后端
func (c *Container) WatchlistRepository() port.WatchlistRepository {
	switch c.cfg.Storage.Watchlist {
	case "sqlite":
		if c.sqliteRepo != nil {
			return c.sqliteRepo
		}
	case "redis":
		if c.redisRepo != nil {
			return c.redisRepo
		}
	}
	return c.memory
}

// Publishers redis pub/sub 与 kafka，按启用情况
func (c *Container) Publishers() []port.BatchPublisher {
	var out []port.BatchPublisher
	if c.redisRepo != nil {
		out = append(out, c.redisRepo)
	}
	if c.kafkaPub != nil {
		out = append(out, c.kafkaPub)
	}
	return out
}

// LatestPrices 从第一个可用的持久化存储读出上次的价格，用来预热 Board
func (c *Container) LatestPrices(ctx context.Context) (map[string]domain.Tick, error) {
	for _, src := range c.pricers() {
		prices, err := src.LatestPrices(ctx)
		if err != nil {
			return nil, err
		}
		if len(prices) > 0 {
			return prices, nil
		}
	}
	return map[string]domain.Tick{}, nil
}

func (c *Container) pricers() []LatestPricer {
	var out []LatestPricer
	if c.sqliteRepo != nil {
		out = append(out, c.sqliteRepo)
	}
	if c.redisRepo != nil {
		out = append(out, c.redisRepo)
	}
	if c.pgRepo != nil {
		out = append(out, c.pgRepo)
	}
	return out
}

// Close 关闭所有资源（按后进先出顺序）
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
