package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "ledger.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck // Test cleanup
	return store
}

// fixedClock returns a clock advancing one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func TestStore_RecordsRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.StartRun(ctx, report.PhaseProvision, "/tmp/provision_results.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID())
	assert.Equal(t, report.PhaseProvision, run.Phase())

	outcomes := []report.Outcome{
		{DeviceName: "dev-1", Status: report.StatusSuccess, Token: "tok1", Latency: 120 * time.Millisecond},
		{DeviceName: "dev-2", Status: report.StatusTimeout, Latency: 5 * time.Second},
		{DeviceName: "dev-3", Status: report.StatusError, ErrorMsg: "duplicate"},
	}
	for _, o := range outcomes {
		require.NoError(t, run.Append(ctx, o))
	}
	require.NoError(t, run.Flush(ctx))

	got, err := store.Outcomes(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, outcomes, got)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	info := runs[0]
	assert.Equal(t, run.ID(), info.ID)
	assert.Equal(t, report.PhaseProvision, info.Phase)
	assert.Equal(t, "/tmp/provision_results.csv", info.ReportPath)
	assert.True(t, info.Finished())
	assert.False(t, info.Interrupted)
	assert.Equal(t, report.Summary{Total: 3, Success: 1, Error: 1, Timeout: 1}, info.Summary)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	store := openStore(t)
	store.now = fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := store.StartRun(ctx, report.PhaseProvision, "a.csv")
	require.NoError(t, err)
	second, err := store.StartRun(ctx, report.PhaseActivation, "a.csv")
	require.NoError(t, err)
	_, err = store.StartRun(ctx, report.PhaseProvision, "b.csv")
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID(), runs[1].ID)
	assert.NotEqual(t, first.ID(), runs[0].ID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC), runs[1].StartedAt)
	assert.False(t, runs[0].Finished())
	assert.Zero(t, runs[0].Summary.Total)
}

func TestRun_FinishInterruptedSticks(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.StartRun(ctx, report.PhaseActivation, "r.csv")
	require.NoError(t, err)
	require.NoError(t, run.Finish(ctx, true))
	require.NoError(t, run.Flush(ctx))

	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Interrupted)
	assert.True(t, runs[0].Finished())
}

func TestRun_ActivationCounts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.StartRun(ctx, report.PhaseActivation, "r.csv")
	require.NoError(t, err)
	require.NoError(t, run.Append(ctx, report.Outcome{
		DeviceName: "dev-1", Status: report.StatusSuccess, Token: "tok1", Activated: report.ActivationTrue,
	}))
	require.NoError(t, run.Append(ctx, report.Outcome{
		DeviceName: "dev-2", Status: report.StatusTimeout, Activated: report.ActivationFalse,
	}))

	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].Summary.Activated)
	assert.Equal(t, 1, runs[0].Summary.NotActivated)
}

func TestRun_ConcurrentAppend(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.StartRun(ctx, report.PhaseActivation, "r.csv")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, run.Append(ctx, report.Outcome{
				DeviceName: "dev", Status: report.StatusSkipped, Activated: report.ActivationFalse,
			}))
		}()
	}
	wg.Wait()

	got, err := store.Outcomes(ctx, run.ID())
	require.NoError(t, err)
	assert.Len(t, got, 16)
}

func TestStore_OutcomesUnknownRun(t *testing.T) {
	store := openStore(t)
	_, err := store.Outcomes(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRun_IsRecorderSink(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.StartRun(ctx, report.PhaseProvision, "r.csv")
	require.NoError(t, err)

	rec := report.NewRecorder(filepath.Join(t.TempDir(), "r.csv"), nil, report.WithSinks(run))
	require.NoError(t, rec.Append(ctx, report.Outcome{DeviceName: "dev-1", Status: report.StatusSuccess, Token: "tok1"}))
	require.NoError(t, rec.Close(ctx))

	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.True(t, runs[0].Finished())
	assert.Equal(t, 1, runs[0].Summary.Success)
}

func TestStore_HealthAndSchemaStatus(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.HealthCheck(ctx))

	applied, pending, err := store.SchemaStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.Len(t, applied, 1)
	assert.Equal(t, "20260301_100000", applied[0].Version)
}

func TestStore_RollbackSchema(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	version, err := store.RollbackSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20260301_100000", version)

	applied, pending, err := store.SchemaStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Len(t, pending, 1)

	_, err = store.ListRuns(ctx, 0)
	assert.Error(t, err, "ledger tables are gone after rollback")

	version, err = store.RollbackSchema(ctx)
	require.NoError(t, err)
	assert.Empty(t, version)
}
