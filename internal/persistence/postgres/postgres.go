package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/frigosense/coldwatch/internal/persistence"
)

const defaultQueryTimeout = 5 * time.Second

// Connect opens the database and wires the repository set.
func Connect(url string) (*sqlx.DB, persistence.Store, error) {
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, persistence.Store{}, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, NewStore(db), nil
}

// NewStore builds the repository set over an existing connection.
func NewStore(db *sqlx.DB) persistence.Store {
	return persistence.Store{
		Configs:   NewConfigRepo(db, defaultQueryTimeout),
		Telemetry: NewTelemetryRepo(db, defaultQueryTimeout),
		Doors:     NewDoorRepo(db, defaultQueryTimeout),
	}
}
