package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

type Repo struct {
	db *sql.DB
}

var (
	_ port.PriceRepository     = (*Repo)(nil)
	_ port.WatchlistRepository = (*Repo)(nil)
)

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS prices (
  symbol TEXT PRIMARY KEY,
  price REAL NOT NULL,
  change_24h REAL NOT NULL,
  volume REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_ts ON prices(ts_ms);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS watchlist (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  added_at INTEGER NOT NULL
);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, t domain.Tick, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices(symbol, price, change_24h, volume, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
		price=excluded.price, change_24h=excluded.change_24h, volume=excluded.volume, ts_ms=excluded.ts_ms
	`, t.Symbol, t.Price, t.Change24h, t.Volume, ts, ts)
	return err
}

// LatestPrices 读取上次运行留下的最新价格，启动时用来预填快照
func (r *Repo) LatestPrices(ctx context.Context) (map[string]domain.Tick, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, price, change_24h, volume FROM prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Tick)
	for rows.Next() {
		var t domain.Tick
		if err := rows.Scan(&t.Symbol, &t.Price, &t.Change24h, &t.Volume); err != nil {
			return nil, err
		}
		out[t.Symbol] = t
	}
	return out, rows.Err()
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload, created_at) VALUES(?, ?, ?)`, ts, payload, time.Now().UnixMilli())
	return err
}

// LatestSnapshot returns the most recent snapshot payload, or sql.ErrNoRows.
func (r *Repo) LatestSnapshot(ctx context.Context) (ts int64, payload string, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT ts_ms, payload FROM snapshots ORDER BY ts_ms DESC, id DESC LIMIT 1`).
		Scan(&ts, &payload)
	return
}

func (r *Repo) AddWatch(ctx context.Context, item domain.WatchItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watchlist(id, symbol, name, added_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, item.ID, item.Symbol, item.Name, item.AddedAt)
	return err
}

func (r *Repo) RemoveWatch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM watchlist WHERE id=?`, id)
	return err
}

func (r *Repo) ListWatch(ctx context.Context) ([]domain.WatchItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, symbol, name, added_at FROM watchlist ORDER BY added_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.WatchItem
	for rows.Next() {
		var it domain.WatchItem
		if err := rows.Scan(&it.ID, &it.Symbol, &it.Name, &it.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
