// Package alertconfigstore persists user-authored AlertConfig rows. The
// upsert path reuses the teacher ledger's idempotency discipline: a
// per-row advisory lock serializes concurrent writes to the same config,
// and a canonical-JSON request hash (RFC 8785 JCS + SHA-256) makes a
// resubmission of the identical config a no-op while still detecting a
// genuine edit.
package alertconfigstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turphai/boomwatch/internal/domain"
)

var (
	ErrNotFound   = errors.New("alert config not found")
	ErrValidation = errors.New("alert config validation error")
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{db: db} }

// idemShape is the canonical, deterministic shape hashed to detect whether
// an upsert actually changed anything.
type idemShape struct {
	UserID               string   `json:"user_id"`
	DataSource           string   `json:"data_source"`
	MetricName           string   `json:"metric_name"`
	ThresholdType        string   `json:"threshold_type"`
	ThresholdValue       float64  `json:"threshold_value"`
	ComparisonPeriodDays int      `json:"comparison_period_days"`
	Enabled              bool     `json:"enabled"`
	Channels             []string `json:"channels"`
	DedupWindowSeconds   int64    `json:"dedup_window_seconds"`
}

func toIdemShape(cfg domain.AlertConfig) idemShape {
	channels := make([]string, len(cfg.Channels))
	for i, c := range cfg.Channels {
		channels[i] = string(c)
	}
	return idemShape{
		UserID:               cfg.UserID,
		DataSource:           string(cfg.DataSource),
		MetricName:           cfg.MetricName,
		ThresholdType:        string(cfg.ThresholdType),
		ThresholdValue:       cfg.ThresholdValue,
		ComparisonPeriodDays: cfg.ComparisonPeriodDays,
		Enabled:              cfg.Enabled,
		Channels:             channels,
		DedupWindowSeconds:   int64(cfg.DedupWindow / time.Second),
	}
}

func requestHash(shape idemShape) (string, error) {
	raw, err := json.Marshal(shape)
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Upsert inserts cfg or, if an equal-ID row already exists, updates it in
// place only when the canonical payload actually changed. It appends a
// config_created or config_updated event on any write; a resubmission of an
// identical config is a silent no-op.
func (s *Store) Upsert(ctx context.Context, cfg domain.AlertConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if strings.TrimSpace(cfg.UserID) == "" || strings.TrimSpace(cfg.MetricName) == "" {
		return ErrValidation
	}

	shape := toIdemShape(cfg)
	hash, err := requestHash(shape)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cfg.ID.String()); err != nil {
		return err
	}

	var existingHash string
	err = tx.QueryRow(ctx, `SELECT request_hash FROM alert_configs WHERE id = $1`, cfg.ID).Scan(&existingHash)
	isCreate := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !isCreate {
		return err
	}
	if !isCreate && existingHash == hash {
		return tx.Commit(ctx)
	}

	channelsJSON, err := json.Marshal(shape.Channels)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO alert_configs (
			id, user_id, data_source, metric_name, threshold_type, threshold_value,
			comparison_period_days, enabled, channels, dedup_window_seconds, request_hash, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11, now())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			data_source = EXCLUDED.data_source,
			metric_name = EXCLUDED.metric_name,
			threshold_type = EXCLUDED.threshold_type,
			threshold_value = EXCLUDED.threshold_value,
			comparison_period_days = EXCLUDED.comparison_period_days,
			enabled = EXCLUDED.enabled,
			channels = EXCLUDED.channels,
			dedup_window_seconds = EXCLUDED.dedup_window_seconds,
			request_hash = EXCLUDED.request_hash,
			updated_at = now()`,
		cfg.ID, shape.UserID, shape.DataSource, shape.MetricName, shape.ThresholdType, shape.ThresholdValue,
		shape.ComparisonPeriodDays, shape.Enabled, channelsJSON, shape.DedupWindowSeconds, hash,
	)
	if err != nil {
		return err
	}

	eventType := "config_updated"
	if isCreate {
		eventType = "config_created"
	}
	payloadJSON, err := json.Marshal(shape)
	if err != nil {
		return err
	}
	canon, err := jcs.Transform(payloadJSON)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO alert_config_events (event_id, event_type, config_id, payload_json, payload_canonical)
		VALUES ($1,$2,$3,$4::jsonb,$5)`,
		uuid.New(), eventType, cfg.ID, payloadJSON, string(canon),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListEnabled returns every enabled AlertConfig matching key, satisfying
// alert.ConfigSource.
func (s *Store) ListEnabled(ctx context.Context, key domain.Key) ([]domain.AlertConfig, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, data_source, metric_name, threshold_type, threshold_value,
		       comparison_period_days, enabled, channels, dedup_window_seconds
		FROM alert_configs
		WHERE enabled AND data_source = $1 AND metric_name = $2`,
		string(key.DataSource), key.MetricName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AlertConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Get fetches a single config by ID, used by the dashboard-facing HTTP API.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.AlertConfig, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, data_source, metric_name, threshold_type, threshold_value,
		       comparison_period_days, enabled, channels, dedup_window_seconds
		FROM alert_configs WHERE id = $1`, id)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AlertConfig{}, ErrNotFound
	}
	return cfg, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (domain.AlertConfig, error) {
	var (
		cfg            domain.AlertConfig
		dataSource     string
		thresholdType  string
		channelsJSON   []byte
		dedupSeconds   int64
	)
	if err := row.Scan(
		&cfg.ID, &cfg.UserID, &dataSource, &cfg.MetricName, &thresholdType, &cfg.ThresholdValue,
		&cfg.ComparisonPeriodDays, &cfg.Enabled, &channelsJSON, &dedupSeconds,
	); err != nil {
		return domain.AlertConfig{}, err
	}
	cfg.DataSource = domain.DataSource(dataSource)
	cfg.ThresholdType = domain.ThresholdType(thresholdType)
	cfg.DedupWindow = time.Duration(dedupSeconds) * time.Second

	var channels []string
	if err := json.Unmarshal(channelsJSON, &channels); err != nil {
		return domain.AlertConfig{}, err
	}
	cfg.Channels = make([]domain.Channel, len(channels))
	for i, c := range channels {
		cfg.Channels[i] = domain.Channel(c)
	}
	return cfg, nil
}
