package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"candlekeeper/internal/model"
)

// Store persists assets and hourly price points.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an existing pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the assets and price_points tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS assets (
			id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			symbol     TEXT NOT NULL UNIQUE,
			rank       INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS price_points (
			asset_id   BIGINT NOT NULL REFERENCES assets(id),
			ts         TIMESTAMPTZ NOT NULL,
			price      NUMERIC NOT NULL,
			volume     NUMERIC NOT NULL DEFAULT 0,
			market_cap NUMERIC NOT NULL DEFAULT 0,
			PRIMARY KEY (asset_id, ts)
		);

		CREATE INDEX IF NOT EXISTS idx_price_points_ts ON price_points (ts);
	`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetOrCreateAsset resolves a symbol to its asset record, creating it
// on first sighting. The no-op DO UPDATE makes RETURNING yield the row
// on conflict as well.
func (s *Store) GetOrCreateAsset(ctx context.Context, symbol string) (model.Asset, error) {
	const q = `
		INSERT INTO assets (symbol)
		VALUES ($1)
		ON CONFLICT (symbol) DO UPDATE SET symbol = EXCLUDED.symbol
		RETURNING id, symbol, rank, created_at
	`

	var a model.Asset
	err := s.db.QueryRow(ctx, q, symbol).Scan(&a.ID, &a.Symbol, &a.Rank, &a.CreatedAt)
	if err != nil {
		return model.Asset{}, fmt.Errorf("get or create asset %s: %w", symbol, err)
	}
	return a, nil
}

// SetAssetRank updates an asset's activity rank.
func (s *Store) SetAssetRank(ctx context.Context, assetID int64, rank int32) error {
	if _, err := s.db.Exec(ctx, `UPDATE assets SET rank = $2 WHERE id = $1`, assetID, rank); err != nil {
		return fmt.Errorf("set rank for asset %d: %w", assetID, err)
	}
	return nil
}

// EarliestTimestamp returns the oldest stored timestamp for an asset.
// The boolean is false when the asset has no data.
func (s *Store) EarliestTimestamp(ctx context.Context, assetID int64) (time.Time, bool, error) {
	return s.boundaryTimestamp(ctx, assetID, "ASC")
}

// LatestTimestamp returns the newest stored timestamp for an asset.
// The boolean is false when the asset has no data.
func (s *Store) LatestTimestamp(ctx context.Context, assetID int64) (time.Time, bool, error) {
	return s.boundaryTimestamp(ctx, assetID, "DESC")
}

func (s *Store) boundaryTimestamp(ctx context.Context, assetID int64, order string) (time.Time, bool, error) {
	q := `SELECT ts FROM price_points WHERE asset_id = $1 ORDER BY ts ` + order + ` LIMIT 1`

	var ts time.Time
	err := s.db.QueryRow(ctx, q, assetID).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("boundary timestamp for asset %d: %w", assetID, err)
	}
	return ts.UTC(), true, nil
}

// TimestampsInRange returns stored timestamps in [from, to] ascending.
func (s *Store) TimestampsInRange(ctx context.Context, assetID int64, from, to time.Time) ([]time.Time, error) {
	const q = `
		SELECT ts FROM price_points
		WHERE asset_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts
	`

	rows, err := s.db.Query(ctx, q, assetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("timestamps for asset %d: %w", assetID, err)
	}
	defer rows.Close()

	var stamps []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan timestamp: %w", err)
		}
		stamps = append(stamps, ts.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timestamps for asset %d: %w", assetID, err)
	}

	return stamps, nil
}

// BulkInsert writes points in one round trip with per-row conflict
// skips and reports how many rows were actually inserted. Re-inserting
// an already-stored range is a no-op, not an error; two writers racing
// on the same range leave exactly one row per (asset_id, ts).
func (s *Store) BulkInsert(ctx context.Context, points []model.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO price_points (asset_id, ts, price, volume, market_cap)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (asset_id, ts) DO NOTHING
		`, p.AssetID, p.Timestamp, p.Price, p.Volume, p.MarketCap)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range points {
		ct, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert price point: %w", err)
		}
		if ct.RowsAffected() > 0 {
			inserted++
		}
	}

	s.logger.Debug("bulk insert complete",
		"points", len(points),
		"inserted", inserted,
		"conflicts", len(points)-inserted,
	)

	return inserted, nil
}
