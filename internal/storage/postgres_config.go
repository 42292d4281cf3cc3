package storage

import "time"

// PostgresConfig configures connection pooling for the Postgres-backed
// repositories, kept verbatim in shape from the teacher's
// CockroachConfig/DefaultCockroachConfig (CockroachDB speaks the Postgres
// wire protocol, so the pooling knobs transfer unchanged).
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns default connection pool settings.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}
