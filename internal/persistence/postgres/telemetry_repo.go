package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frigosense/coldwatch/internal/persistence"
)

// telemetryRepo implements TelemetryRepo for PostgreSQL.
type telemetryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTelemetryRepo creates a new PostgreSQL telemetry repository.
func NewTelemetryRepo(db *sqlx.DB, timeout time.Duration) persistence.TelemetryRepo {
	return &telemetryRepo{db: db, timeout: timeout}
}

// InsertBatch writes a drained telemetry batch in a single transaction.
func (r *telemetryRepo) InsertBatch(ctx context.Context, rows []persistence.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(rows)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO telemetry_logs (gw, mac, ts, temp, hum, batt, rssi)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.ExecContext(ctx,
			row.GW, row.MAC, row.TS, row.Temp, row.Hum, row.Batt, row.RSSI)
		if err != nil {
			return fmt.Errorf("failed to insert telemetry row: %w", err)
		}
	}

	return tx.Commit()
}

// ActiveGateways returns the newest row timestamp per gateway since cutoff.
func (r *telemetryRepo) ActiveGateways(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT gw, MAX(ts) AS last_seen
		FROM telemetry_logs
		WHERE ts >= $1
		GROUP BY gw`

	rows, err := r.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query active gateways: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var gw string
		var lastSeen time.Time
		if err := rows.Scan(&gw, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan gateway row: %w", err)
		}
		out[gw] = lastSeen
	}
	return out, rows.Err()
}
