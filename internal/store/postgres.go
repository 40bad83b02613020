package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

// Schema creates the tables used by PostgresStore. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS locations (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	latitude         DOUBLE PRECISION NOT NULL,
	longitude        DOUBLE PRECISION NOT NULL,
	manager_email    TEXT,
	telegram_chat_id TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS weather_cache (
	location_id  BIGINT PRIMARY KEY REFERENCES locations(id) ON DELETE CASCADE,
	weather_data JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS forecast_snapshots (
	id                  BIGSERIAL PRIMARY KEY,
	location_id         BIGINT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	forecast_date       DATE NOT NULL,
	predicted_max_temp  DOUBLE PRECISION NOT NULL,
	predicted_rain_prob INTEGER NOT NULL,
	weather_code        TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS forecast_snapshots_location_date_idx
	ON forecast_snapshots (location_id, forecast_date);
`

// PostgresStore is the durable Store backed by a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore opens a pool for dsn and pings it.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %w", ErrStore, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrStore, err)
	}
	logger.Info("connected to postgres", zap.Int32("max_conns", pool.Config().MaxConns))
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// EnsureSchema applies Schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: apply schema: %w", ErrStore, err)
	}
	return nil
}

// SeedLocations inserts locs that are not present yet. Existing rows are left untouched.
func (s *PostgresStore) SeedLocations(ctx context.Context, locs []models.Location) error {
	if len(locs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range locs {
		batch.Queue(`
			INSERT INTO locations (id, name, latitude, longitude, manager_email, telegram_chat_id)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
			ON CONFLICT (id) DO NOTHING`,
			l.ID, l.Name, l.Latitude, l.Longitude, l.Email, l.TelegramChatID)
	}
	// keep BIGSERIAL ahead of explicit ids
	batch.Queue(`SELECT setval(pg_get_serial_sequence('locations', 'id'), GREATEST((SELECT MAX(id) FROM locations), 1))`)
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: seed locations: %w", ErrStore, err)
	}
	return nil
}

const locationColumns = `id, name, latitude, longitude, COALESCE(manager_email, ''), COALESCE(telegram_chat_id, '')`

// ListLocations returns all locations ordered by id.
func (s *PostgresStore) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list locations: %w", ErrStore, err)
	}
	defer rows.Close()

	var locs []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &l.Email, &l.TelegramChatID); err != nil {
			return nil, fmt.Errorf("%w: scan location: %w", ErrStore, err)
		}
		locs = append(locs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list locations: %w", ErrStore, err)
	}
	return locs, nil
}

// GetLocation returns the location or ErrLocationNotFound.
func (s *PostgresStore) GetLocation(ctx context.Context, id int64) (models.Location, error) {
	var l models.Location
	err := s.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &l.Email, &l.TelegramChatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Location{}, fmt.Errorf("%w: %d", ErrLocationNotFound, id)
	}
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: get location %d: %w", ErrStore, id, err)
	}
	return l, nil
}

// GetSnapshot reads the cached snapshot row for locationID.
func (s *PostgresStore) GetSnapshot(ctx context.Context, locationID int64) (models.ForecastSnapshot, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT weather_data FROM weather_cache WHERE location_id = $1`, locationID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ForecastSnapshot{}, false, nil
	}
	if err != nil {
		return models.ForecastSnapshot{}, false, fmt.Errorf("%w: get snapshot %d: %w", ErrStore, locationID, err)
	}
	var snap models.ForecastSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.ForecastSnapshot{}, false, fmt.Errorf("%w: decode snapshot %d: %w", ErrStore, locationID, err)
	}
	return snap, true, nil
}

// UpsertSnapshot replaces the cached snapshot row for locationID.
func (s *PostgresStore) UpsertSnapshot(ctx context.Context, locationID int64, snap models.ForecastSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot %d: %w", ErrStore, locationID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO weather_cache (location_id, weather_data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (location_id) DO UPDATE SET
			weather_data = EXCLUDED.weather_data,
			updated_at = NOW()`,
		locationID, raw)
	if err != nil {
		return fmt.Errorf("%w: upsert snapshot %d: %w", ErrStore, locationID, err)
	}
	return nil
}

// AppendForecastAudit inserts one forecast_snapshots row.
func (s *PostgresStore) AppendForecastAudit(ctx context.Context, rec models.AuditRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO forecast_snapshots (location_id, forecast_date, predicted_max_temp, predicted_rain_prob, weather_code)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.LocationID, rec.Date, rec.MaxTemp, rec.RainProb, rec.Condition)
	if err != nil {
		return fmt.Errorf("%w: append audit %d: %w", ErrStore, rec.LocationID, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStore, err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
