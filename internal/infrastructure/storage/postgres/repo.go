package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

type Repo struct {
	db *sql.DB
}

var _ port.PriceRepository = (*Repo)(nil)

func New(ctx context.Context, dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	r := &Repo{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_prices (
  symbol TEXT PRIMARY KEY,
  price DOUBLE PRECISION NOT NULL,
  change_24h DOUBLE PRECISION NOT NULL,
  volume DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, t domain.Tick, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_prices(symbol, price, change_24h, volume, ts_ms)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT(symbol) DO UPDATE SET
		price=EXCLUDED.price, change_24h=EXCLUDED.change_24h, volume=EXCLUDED.volume, ts_ms=EXCLUDED.ts_ms
	`, t.Symbol, t.Price, t.Change24h, t.Volume, ts)
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload) VALUES($1, $2)`, ts, payload)
	return err
}

// LatestPrices reads the latest_prices table.
func (r *Repo) LatestPrices(ctx context.Context) (map[string]domain.Tick, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, price, change_24h, volume FROM latest_prices`)
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
