package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"resalewatch/models"
)

// HistoryRepository stores sweeps, per-event checks and sent alerts in
// Postgres. It is an audit log only; alert state is never read back from it.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordSweep stores a finished sweep and its event checks in one transaction
func (r *HistoryRepository) RecordSweep(ctx context.Context, report *models.SweepReport) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweeps (id, trigger, status, error, started_at, completed_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, error = EXCLUDED.error, completed_at = EXCLUDED.completed_at
	`, report.ID, report.Trigger, string(report.Status), report.Error, report.StartedAt, report.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record sweep: %w", err)
	}

	for _, e := range report.Events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_checks (sweep_id, event_url, label, outcome, attempts, offers, qualifying, total_quantity, block_reason, error, checked_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)
		`, report.ID, e.URL, e.Label, string(e.Outcome), e.Attempts, e.Offers, e.Qualifying, e.TotalQuantity, e.BlockReason, e.Error, e.CheckedAt)
		if err != nil {
			return fmt.Errorf("failed to record event check: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sweep: %w", err)
	}
	return nil
}

// RecordAlert stores a notification that was delivered
func (r *HistoryRepository) RecordAlert(ctx context.Context, n models.Notification, message string) error {
	matches := make([]string, 0, len(n.Qualifying))
	for _, o := range n.Qualifying {
		matches = append(matches, o.String())
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_history (event_url, artist, date_label, location, max_price, total_quantity, matches, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.Event.URL, n.Event.Artist, n.Event.DateLabel, n.Event.Location, n.Event.MaxPrice,
		n.TotalQuantity, strings.Join(matches, " | "), message, n.FoundAt)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// RecentAlerts returns the latest sent alerts, newest first
func (r *HistoryRepository) RecentAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_url, artist, date_label, location, max_price, total_quantity, matches, sent_at
		FROM alert_history
		ORDER BY sent_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert history: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var a models.AlertRecord
		if err := rows.Scan(
			&a.ID, &a.EventURL, &a.Artist, &a.DateLabel, &a.Location,
			&a.MaxPrice, &a.TotalQuantity, &a.Matches, &a.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
