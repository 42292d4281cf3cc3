package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/agentic/runtime/internal/runtime/collab"
	"github.com/agentic/runtime/internal/runtime/types"
)

// Stores groups the Postgres-backed repositories plus a closer, mirroring
// the teacher's StoreSet shape.
type Stores struct {
	Canary *PostgresCanaryStateRepo
	Trace  *PostgresTraceRepo
	closer func() error
}

// Close closes the underlying database handle.
func (s Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// NewPostgresStoresFromDSN opens a *sql.DB against dsn and wires both
// repositories to it, mirroring the teacher's
// NewCockroachStoresFromDSN(dsn, config) shape (open, configure pool,
// ping, build stores).
func NewPostgresStoresFromDSN(dsn string, config *PostgresConfig) (Stores, error) {
	if strings.TrimSpace(dsn) == "" {
		return Stores{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return Stores{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return Stores{}, fmt.Errorf("ping database: %w", err)
	}

	return Stores{
		Canary: &PostgresCanaryStateRepo{db: db},
		Trace:  &PostgresTraceRepo{db: db},
		closer: db.Close,
	}, nil
}

// PostgresCanaryStateRepo persists the canary singleton row described in
// spec §6: {id:"global", outcomesJson, cooldownUntil, createdAt, updatedAt}.
type PostgresCanaryStateRepo struct {
	db *sql.DB
}

var _ collab.CanaryStateRepo = (*PostgresCanaryStateRepo)(nil)

const canaryRowID = "global"

func (r *PostgresCanaryStateRepo) ReadPersistedCanaryState(ctx context.Context) (*types.CanaryState, error) {
	var outcomesJSON []byte
	var cooldownUntil int64
	err := r.db.QueryRowContext(ctx,
		`SELECT outcomes_json, cooldown_until FROM canary_state WHERE id = $1`, canaryRowID,
	).Scan(&outcomesJSON, &cooldownUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read canary state: %w", err)
	}
	var window []types.CanaryOutcome
	if len(outcomesJSON) > 0 {
		if err := json.Unmarshal(outcomesJSON, &window); err != nil {
			return nil, fmt.Errorf("unmarshal canary outcomes: %w", err)
		}
	}
	return &types.CanaryState{Window: window, CooldownUntilMs: cooldownUntil}, nil
}

func (r *PostgresCanaryStateRepo) WritePersistedCanaryState(ctx context.Context, state types.CanaryState) error {
	outcomesJSON, err := json.Marshal(state.Window)
	if err != nil {
		return fmt.Errorf("marshal canary outcomes: %w", err)
	}
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO canary_state (id, outcomes_json, cooldown_until, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$4)
		 ON CONFLICT (id) DO UPDATE SET outcomes_json = $2, cooldown_until = $3, updated_at = $4`,
		canaryRowID, outcomesJSON, state.CooldownUntilMs, now,
	)
	if err != nil {
		return fmt.Errorf("write canary state: %w", err)
	}
	return nil
}

func (r *PostgresCanaryStateRepo) ClearPersistedCanaryState(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM canary_state WHERE id = $1`, canaryRowID)
	if err != nil {
		return fmt.Errorf("clear canary state: %w", err)
	}
	return nil
}

// PostgresTraceRepo persists append-only traces with end-updates keyed by
// traceId (spec §6 persisted state layout).
type PostgresTraceRepo struct {
	db *sql.DB
}

var _ collab.TraceRepo = (*PostgresTraceRepo)(nil)

func (r *PostgresTraceRepo) UpsertTraceStart(ctx context.Context, traceID string, fields map[string]any) error {
	startJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal trace start fields: %w", err)
	}
	guildID, _ := fields["guildId"].(string)
	channelID, _ := fields["channelId"].(string)
	route, _ := fields["route"].(string)

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO traces (trace_id, guild_id, channel_id, route, start_json)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (trace_id) DO UPDATE SET start_json = $5`,
		traceID, guildID, channelID, route, startJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert trace start: %w", err)
	}
	return nil
}

func (r *PostgresTraceRepo) ReplaceAgentRuns(ctx context.Context, traceID string, rows []map[string]any) error {
	runsJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal agent runs: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE traces SET agent_runs_json = $2 WHERE trace_id = $1`, traceID, runsJSON)
	if err != nil {
		return fmt.Errorf("replace agent runs: %w", err)
	}
	return requireRowsAffected(res)
}

func (r *PostgresTraceRepo) UpdateTraceEnd(ctx context.Context, traceID string, fields map[string]any) error {
	endJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal trace end fields: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE traces SET end_json = $2 WHERE trace_id = $1`, traceID, endJSON)
	if err != nil {
		return fmt.Errorf("update trace end: %w", err)
	}
	return requireRowsAffected(res)
}

func (r *PostgresTraceRepo) ListRecentTraces(ctx context.Context, limit int, guildID, channelID string) ([]collab.TraceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT trace_id, guild_id, channel_id, route, end_json FROM traces
		 WHERE ($1 = '' OR guild_id = $1) AND ($2 = '' OR channel_id = $2)
		 ORDER BY trace_id DESC LIMIT $3`,
		guildID, channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent traces: %w", err)
	}
	defer rows.Close()

	var out []collab.TraceRecord
	for rows.Next() {
		var rec collab.TraceRecord
		var route string
		var endJSON []byte
		if err := rows.Scan(&rec.TraceID, &rec.GuildID, &rec.ChannelID, &route, &endJSON); err != nil {
			return nil, fmt.Errorf("scan trace row: %w", err)
		}
		rec.RouteKind = types.Route(route)
		if len(endJSON) > 0 {
			var outcome map[string]any
			if err := json.Unmarshal(endJSON, &outcome); err == nil {
				rec.Outcome = outcome
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
