package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	pkgch "SignalForge/pkg/clickhouse"
	applogger "SignalForge/pkg/logger"
)

// CHOutcomeStore implements OutcomeStore backed by ClickHouse. Outcomes are
// append-only; RecentOutcomes is used to warm the failure predictor on boot.
type CHOutcomeStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHOutcomeStore(ch *pkgch.Client) *CHOutcomeStore {
	return &CHOutcomeStore{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHOutcomeStore) SetLogger(l *applogger.Logger) { s.l = l }

var outcomeSchema = []string{
	`CREATE DATABASE IF NOT EXISTS signalforge`,
	`CREATE TABLE IF NOT EXISTS signalforge.provider_outcomes (
        ts              DateTime64(3),
        provider        LowCardinality(String),
        asset           LowCardinality(String),
        request_id      String,
        had_error       UInt8,
        skipped         UInt8,
        error_detail    String,
        features        String,
        success_metrics String
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(ts)
    ORDER BY (provider, ts)
    TTL toDateTime(ts) + INTERVAL 90 DAY`,
}

func (s *CHOutcomeStore) Init(ctx context.Context) error {
	if err := s.ch.InitSchema(ctx, outcomeSchema); err != nil {
		return fmt.Errorf("outcome schema: %w", err)
	}
	return nil
}

func (s *CHOutcomeStore) StoreBatch(ctx context.Context, records []models.OutcomeRecord) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcome batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO signalforge.provider_outcomes
            (ts, provider, asset, request_id, had_error, skipped, error_detail, features, success_metrics)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		features, _ := json.Marshal(r.Context.Features)
		metrics := []byte("{}")
		if len(r.SuccessMetrics) > 0 {
			metrics, _ = json.Marshal(r.SuccessMetrics)
		}
		_, err := stmt.ExecContext(ctx,
			r.Timestamp,
			r.Context.Provider,
			r.Context.Asset,
			r.Context.RequestID,
			boolToUInt8(r.HadError),
			boolToUInt8(r.Skipped),
			r.ErrorDetail,
			string(features),
			string(metrics),
		)
		if err != nil {
			_ = tx.Rollback()
			if s.l != nil {
				s.l.Error("clickhouse outcome insert error",
					applogger.String("provider", r.Context.Provider),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("insert outcome: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome batch: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse outcome batch ok",
			applogger.Int("rows", len(records)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHOutcomeStore) RecentOutcomes(ctx context.Context, limit int) ([]models.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT ts, provider, asset, request_id, had_error, skipped, error_detail, features, success_metrics
        FROM signalforge.provider_outcomes
        ORDER BY ts DESC
        LIMIT ?
    `, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse recent_outcomes query error", applogger.Error(err))
		}
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.OutcomeRecord, 0, limit)
	for rows.Next() {
		var (
			r           models.OutcomeRecord
			hadErr      uint8
			skipped     uint8
			featuresRaw string
			metricsRaw  string
		)
		if err := rows.Scan(
			&r.Timestamp,
			&r.Context.Provider,
			&r.Context.Asset,
			&r.Context.RequestID,
			&hadErr,
			&skipped,
			&r.ErrorDetail,
			&featuresRaw,
			&metricsRaw,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.HadError = hadErr != 0
		r.Skipped = skipped != 0
		if featuresRaw != "" {
			_ = json.Unmarshal([]byte(featuresRaw), &r.Context.Features)
		}
		if metricsRaw != "" && metricsRaw != "{}" {
			_ = json.Unmarshal([]byte(metricsRaw), &r.SuccessMetrics)
		}
		tmp = append(tmp, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	// reverse to chronological order so replay matches original arrival
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHOutcomeStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHOutcomeStore) Close() error {
	return s.ch.Close()
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
