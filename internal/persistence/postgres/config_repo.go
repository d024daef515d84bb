package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frigosense/coldwatch/internal/persistence"
)

// configRepo implements ConfigRepo for PostgreSQL.
type configRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewConfigRepo creates a new PostgreSQL sensor-config repository.
func NewConfigRepo(db *sqlx.DB, timeout time.Duration) persistence.ConfigRepo {
	return &configRepo{db: db, timeout: timeout}
}

// ListSensorConfigs returns every configured sensor row.
func (r *configRepo) ListSensorConfigs(ctx context.Context) ([]persistence.SensorConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT mac, display_name, temp_max, temp_min, hum_max, hum_min,
		       em_manutencao, sensor_porta_vinculado
		FROM sensor_configs`

	var configs []persistence.SensorConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("failed to query sensor configs: %w", err)
	}
	return configs, nil
}
