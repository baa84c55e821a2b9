package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		LogLevel         string `toml:"log_level"`
		Console          bool   `toml:"console"`
		LiveEveryMs      int    `toml:"live_every_ms"`
		SnapshotEveryMin int    `toml:"snapshot_every_min"`
	} `toml:"app"`

	// 启动时就关注的币种，与目录和自选列表合并
	Symbols struct {
		List  []string `toml:"list"`
		Quote string   `toml:"quote"`
	} `toml:"symbols"`

	Feed struct {
		Exchange        string `toml:"exchange"`
		WsURL           string `toml:"ws_url"`
		FlushIntervalMs int    `toml:"flush_interval_ms"`
		BackoffBaseMs   int    `toml:"backoff_base_ms"`
		BackoffMaxMs    int    `toml:"backoff_max_ms"`
		MaxAttempts     int    `toml:"max_attempts"`
		MailboxSize     int    `toml:"mailbox_size"`
		PingIntervalSec int    `toml:"ping_interval_sec"`
		ReadTimeoutSec  int    `toml:"read_timeout_sec"`
		DialTimeoutSec  int    `toml:"dial_timeout_sec"`
	} `toml:"feed"`

	Catalog struct {
		Enabled      bool   `toml:"enabled"`
		BaseURL      string `toml:"base_url"`
		VsCurrency   string `toml:"vs_currency"`
		PerPage      int    `toml:"per_page"`
		InitialPages int    `toml:"initial_pages"`
		TimeoutSec   int    `toml:"timeout_sec"`
	} `toml:"catalog"`

	HTTP struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"http"`

	Storage StorageConfig `toml:"storage"`

	Kafka struct {
		Enabled bool     `toml:"enabled"`
		Brokers []string `toml:"brokers"`
		Topic   string   `toml:"topic"`
	} `toml:"kafka"`

	Recorder struct {
		QueueSize int `toml:"queue_size"`
	} `toml:"recorder"`
}

type StorageConfig struct {
	// 自选列表存在哪里: sqlite | redis | memory
	Watchlist string `toml:"watchlist"`

	Redis struct {
		Enabled        bool   `toml:"enabled"`
		Addr           string `toml:"addr"`
		Password       string `toml:"password"`
		DB             int    `toml:"db"`
		Prefix         string `toml:"prefix"`
		TTLSeconds     int    `toml:"ttl_seconds"`
		SnapshotStream string `toml:"snapshot_stream"`
		PriceChannel   string `toml:"price_channel"`
	} `toml:"redis"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse 从字符串加载，主要给测试用
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LiveEveryMs <= 0 {
		cfg.App.LiveEveryMs = 500
	}
	if cfg.App.SnapshotEveryMin <= 0 {
		cfg.App.SnapshotEveryMin = 5
	}
	if cfg.Symbols.Quote == "" {
		cfg.Symbols.Quote = "USDT"
	}

	if cfg.Feed.Exchange == "" {
		cfg.Feed.Exchange = "binance"
	}
	if cfg.Feed.FlushIntervalMs <= 0 {
		cfg.Feed.FlushIntervalMs = 100
	}
	if cfg.Feed.BackoffBaseMs <= 0 {
		cfg.Feed.BackoffBaseMs = 1000
	}
	if cfg.Feed.BackoffMaxMs <= 0 {
		cfg.Feed.BackoffMaxMs = 30000
	}
	if cfg.Feed.MaxAttempts <= 0 {
		cfg.Feed.MaxAttempts = 10
	}
	if cfg.Feed.MailboxSize <= 0 {
		cfg.Feed.MailboxSize = 1024
	}

	if cfg.Catalog.BaseURL == "" {
		cfg.Catalog.BaseURL = "https://api.coingecko.com"
	}
	if cfg.Catalog.VsCurrency == "" {
		cfg.Catalog.VsCurrency = "usd"
	}
	if cfg.Catalog.PerPage <= 0 {
		cfg.Catalog.PerPage = 20
	}
	if cfg.Catalog.InitialPages <= 0 {
		cfg.Catalog.InitialPages = 1
	}
	if cfg.Catalog.TimeoutSec <= 0 {
		cfg.Catalog.TimeoutSec = 10
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	if cfg.Storage.Watchlist == "" {
		cfg.Storage.Watchlist = "memory"
		if cfg.Storage.SQLite.Enabled {
			cfg.Storage.Watchlist = "sqlite"
		}
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "coinfeed"
	}
	if cfg.Storage.Redis.SnapshotStream == "" {
		cfg.Storage.Redis.SnapshotStream = cfg.Storage.Redis.Prefix + ":snapshots"
	}
	if cfg.Storage.Redis.PriceChannel == "" {
		cfg.Storage.Redis.PriceChannel = cfg.Storage.Redis.Prefix + ":prices"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/coinfeed.db"
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "coinfeed.prices"
	}
	if cfg.Recorder.QueueSize <= 0 {
		cfg.Recorder.QueueSize = 256
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	cfg.Symbols.Quote = strings.ToUpper(strings.TrimSpace(cfg.Symbols.Quote))

	// 没有静态币种时必须有目录，否则 InterestSet 永远为空，连接永远不会建立
	if len(cfg.Symbols.List) == 0 && !cfg.Catalog.Enabled {
		return errors.New("symbols.list is empty and catalog disabled")
	}
	if cfg.Feed.BackoffMaxMs < cfg.Feed.BackoffBaseMs {
		return fmt.Errorf("feed.backoff_max_ms (%d) < feed.backoff_base_ms (%d)", cfg.Feed.BackoffMaxMs, cfg.Feed.BackoffBaseMs)
	}

	switch cfg.Storage.Watchlist {
	case "memory":
	case "sqlite":
		if !cfg.Storage.SQLite.Enabled {
			return errors.New("storage.watchlist = sqlite but storage.sqlite disabled")
		}
	case "redis":
		if !cfg.Storage.Redis.Enabled {
			return errors.New("storage.watchlist = redis but storage.redis disabled")
		}
	default:
		return fmt.Errorf("storage.watchlist: unknown backend %q", cfg.Storage.Watchlist)
	}

	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Feed.FlushIntervalMs) * time.Millisecond
}

func (c *Config) LiveEvery() time.Duration {
	return time.Duration(c.App.LiveEveryMs) * time.Millisecond
}

func (c *Config) SnapshotEvery() time.Duration {
	return time.Duration(c.App.SnapshotEveryMin) * time.Minute
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Feed.BackoffBaseMs) * time.Millisecond
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Feed.BackoffMaxMs) * time.Millisecond
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Storage.Redis.TTLSeconds) * time.Second
}
