package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frigosense/coldwatch/internal/persistence"
)

// doorRepo implements DoorRepo for PostgreSQL.
type doorRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDoorRepo creates a new PostgreSQL door-event repository.
func NewDoorRepo(db *sqlx.DB, timeout time.Duration) persistence.DoorRepo {
	return &doorRepo{db: db, timeout: timeout}
}

// InsertBatch writes a drained door-event batch in a single transaction.
func (r *doorRepo) InsertBatch(ctx context.Context, events []persistence.DoorEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO door_logs (gateway_mac, sensor_mac, timestamp_read, is_open, alarm_code, battery_percent, rssi)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err = stmt.ExecContext(ctx,
			ev.GatewayMAC, ev.SensorMAC, ev.TimestampRead, ev.IsOpen,
			ev.AlarmCode, ev.BatteryPercent, ev.RSSI)
		if err != nil {
			return fmt.Errorf("failed to insert door event: %w", err)
		}
	}

	return tx.Commit()
}

// LastStates returns the latest open/closed flag per sensor.
func (r *doorRepo) LastStates(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT DISTINCT ON (sensor_mac) sensor_mac, is_open
		FROM door_logs
		ORDER BY sensor_mac, timestamp_read DESC`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query last door states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var mac string
		var open bool
		if err := rows.Scan(&mac, &open); err != nil {
			return nil, fmt.Errorf("failed to scan door state row: %w", err)
		}
		out[mac] = open
	}
	return out, rows.Err()
}
