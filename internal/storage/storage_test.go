package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/agentic/runtime/internal/runtime/types"
)

func TestMemoryCanaryStateRepo_RoundTrip(t *testing.T) {
	repo := NewMemoryCanaryStateRepo()

	got, err := repo.ReadPersistedCanaryState(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected nil state before any write, got %+v err=%v", got, err)
	}

	state := types.CanaryState{
		Window:          []types.CanaryOutcome{{Success: true, RecordedAtMs: 1000}},
		CooldownUntilMs: 5000,
	}
	if err := repo.WritePersistedCanaryState(context.Background(), state); err != nil {
		t.Fatalf("WritePersistedCanaryState() error = %v", err)
	}

	got, err = repo.ReadPersistedCanaryState(context.Background())
	if err != nil {
		t.Fatalf("ReadPersistedCanaryState() error = %v", err)
	}
	if got.CooldownUntilMs != 5000 || len(got.Window) != 1 {
		t.Fatalf("unexpected state: %+v", got)
	}

	if err := repo.ClearPersistedCanaryState(context.Background()); err != nil {
		t.Fatalf("ClearPersistedCanaryState() error = %v", err)
	}
	got, err = repo.ReadPersistedCanaryState(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected nil state after clear, got %+v err=%v", got, err)
	}
}

func TestMemoryCanaryStateRepo_WriteIsDefensiveCopy(t *testing.T) {
	repo := NewMemoryCanaryStateRepo()
	window := []types.CanaryOutcome{{Success: true}}
	if err := repo.WritePersistedCanaryState(context.Background(), types.CanaryState{Window: window}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	window[0].Success = false // mutate caller's slice after write

	got, _ := repo.ReadPersistedCanaryState(context.Background())
	if !got.Window[0].Success {
		t.Fatalf("expected stored state to be unaffected by caller mutation")
	}
}

func TestMemoryTraceRepo_Lifecycle(t *testing.T) {
	repo := NewMemoryTraceRepo()

	if err := repo.UpsertTraceStart(context.Background(), "trace-1", map[string]any{
		"guildId": "guild-1", "channelId": "chan-1", "route": "chat",
	}); err != nil {
		t.Fatalf("UpsertTraceStart() error = %v", err)
	}

	if err := repo.ReplaceAgentRuns(context.Background(), "trace-1", []map[string]any{{"node": "ctx1"}}); err != nil {
		t.Fatalf("ReplaceAgentRuns() error = %v", err)
	}

	if err := repo.UpdateTraceEnd(context.Background(), "trace-1", map[string]any{"reasonCodes": []string{}}); err != nil {
		t.Fatalf("UpdateTraceEnd() error = %v", err)
	}

	recs, err := repo.ListRecentTraces(context.Background(), 10, "guild-1", "")
	if err != nil {
		t.Fatalf("ListRecentTraces() error = %v", err)
	}
	if len(recs) != 1 || recs[0].TraceID != "trace-1" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestMemoryTraceRepo_UpdateUnknownTraceFails(t *testing.T) {
	repo := NewMemoryTraceRepo()
	if err := repo.UpdateTraceEnd(context.Background(), "missing", map[string]any{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *PostgresCanaryStateRepo, *PostgresTraceRepo) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return mock, &PostgresCanaryStateRepo{db: db}, &PostgresTraceRepo{db: db}
}

func TestPostgresCanaryStateRepo_ReadNotFound(t *testing.T) {
	mock, canaryRepo, _ := setupMockDB(t)
	mock.ExpectQuery("SELECT outcomes_json, cooldown_until FROM canary_state").
		WithArgs(canaryRowID).
		WillReturnError(sql.ErrNoRows)

	got, err := canaryRepo.ReadPersistedCanaryState(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil on no rows, got %+v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCanaryStateRepo_Write(t *testing.T) {
	mock, canaryRepo, _ := setupMockDB(t)
	mock.ExpectExec("INSERT INTO canary_state").
		WithArgs(canaryRowID, sqlmock.AnyArg(), int64(5000), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := canaryRepo.WritePersistedCanaryState(context.Background(), types.CanaryState{CooldownUntilMs: 5000})
	if err != nil {
		t.Fatalf("WritePersistedCanaryState() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresTraceRepo_UpsertAndEnd(t *testing.T) {
	mock, _, traceRepo := setupMockDB(t)
	mock.ExpectExec("INSERT INTO traces").
		WithArgs("trace-1", "guild-1", "chan-1", "chat", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE traces SET end_json").
		WithArgs("trace-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := traceRepo.UpsertTraceStart(context.Background(), "trace-1", map[string]any{
		"guildId": "guild-1", "channelId": "chan-1", "route": "chat",
	}); err != nil {
		t.Fatalf("UpsertTraceStart() error = %v", err)
	}
	if err := traceRepo.UpdateTraceEnd(context.Background(), "trace-1", map[string]any{"ok": true}); err != nil {
		t.Fatalf("UpdateTraceEnd() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresTraceRepo_UpdateEndNoRowsIsNotFound(t *testing.T) {
	mock, _, traceRepo := setupMockDB(t)
	mock.ExpectExec("UPDATE traces SET end_json").
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := traceRepo.UpdateTraceEnd(context.Background(), "missing", map[string]any{})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
