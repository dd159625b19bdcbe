package statusreport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/feature"
	"github.com/drover-dev/drover/internal/ledger"
	"github.com/drover-dev/drover/internal/log"
	"github.com/drover-dev/drover/internal/state"
)

func seedState(t *testing.T, dir string) *state.Store {
	t.Helper()
	store := state.NewStore(filepath.Join(dir, "features.yaml"))
	require.NoError(t, store.Save(&feature.RunState{
		RunID: "run-1",
		Features: []feature.Feature{
			{ID: "feat-1", Title: "First", Status: feature.StatusDone, Attempts: 1, CommitHash: "abc123"},
			{ID: "feat-2", Title: "Second", Status: feature.StatusFailed, Attempts: 3, LastError: "agent gave up"},
			{ID: "feat-3", Title: "Third", Status: feature.StatusPending},
		},
	}))
	return store
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	store := seedState(t, dir)

	led := ledger.New(filepath.Join(dir, "progress.jsonl"))
	for _, e := range []ledger.Entry{
		{FeatureID: "feat-1", Outcome: ledger.OutcomeSuccess, Summary: "did the thing"},
		{FeatureID: "feat-2", Outcome: ledger.OutcomeFailure, Error: "agent gave up"},
	} {
		require.NoError(t, led.Append(e))
	}

	snap, err := New(store, led, log.Default()).Snapshot(10)
	require.NoError(t, err)

	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 3, snap.Total)
	assert.False(t, snap.Complete)
	assert.Equal(t, 1, snap.Counts[feature.StatusDone])
	assert.Equal(t, 1, snap.Counts[feature.StatusFailed])
	require.Len(t, snap.Features, 3)
	assert.Equal(t, "feat-1", snap.Features[0].ID, "rows keep backlog order")
	assert.Equal(t, "agent gave up", snap.Features[1].LastError)
	require.Len(t, snap.Recent, 2)
	assert.False(t, snap.LedgerStale)
}

func TestSnapshotRetriesOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not yaml"), 0o644))

	r := New(state.NewStore(path), ledger.New(filepath.Join(dir, "progress.jsonl")), log.Default())
	r.sleep = func(time.Duration) {
		// The writer finishes its atomic save between the two reads.
		require.NoError(t, state.NewStore(path).Save(&feature.RunState{
			Features: []feature.Feature{{ID: "feat-1", Title: "First", Status: feature.StatusPending}},
		}))
	}

	snap, err := r.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Total)
}

func TestSnapshotStaleAfterRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not yaml"), 0o644))

	r := New(state.NewStore(path), ledger.New(filepath.Join(dir, "progress.jsonl")), log.Default())
	r.sleep = func(time.Duration) {}

	_, err := r.Snapshot(0)
	require.Error(t, err)

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ErrCodeStatusStale, derr.Code)
	assert.True(t, errors.IsCorruptState(err), "underlying classification passes through")
}

func TestSnapshotMissingStateDoesNotRetry(t *testing.T) {
	dir := t.TempDir()

	r := New(state.NewStore(filepath.Join(dir, "features.yaml")),
		ledger.New(filepath.Join(dir, "progress.jsonl")), log.Default())
	r.sleep = func(time.Duration) {
		t.Fatal("a missing features file must not trigger the re-read")
	}

	_, err := r.Snapshot(0)
	require.Error(t, err)

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ErrCodeStatusStale, derr.Code)
}

func TestSnapshotPartialWhenLedgerUnreadable(t *testing.T) {
	dir := t.TempDir()
	store := seedState(t, dir)

	ledgerPath := filepath.Join(dir, "progress.jsonl")
	require.NoError(t, os.Mkdir(ledgerPath, 0o755))

	snap, err := New(store, ledger.New(ledgerPath), log.Default()).Snapshot(0)
	require.NoError(t, err)

	assert.True(t, snap.LedgerStale)
	assert.Empty(t, snap.Recent)
	assert.Equal(t, 3, snap.Total, "backlog view survives a broken ledger")
}

func TestRenderText(t *testing.T) {
	snap := &Snapshot{
		RunID:  "run-1",
		Total:  2,
		Counts: map[feature.Status]int{feature.StatusDone: 1, feature.StatusFailed: 1},
		Features: []Row{
			{ID: "feat-1", Title: "First", Status: feature.StatusDone, CommitHash: "abc123"},
			{ID: "feat-2", Title: "Second", Status: feature.StatusFailed, Attempts: 3, LastError: "agent gave up\nstack trace"},
		},
		Recent: []ledger.Entry{
			{FeatureID: "feat-1", Outcome: ledger.OutcomeSuccess, Summary: "did the thing", Timestamp: time.Now()},
		},
	}

	out := RenderText(snap)
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "1/2 done")
	assert.Contains(t, out, "feat-2")
	assert.Contains(t, out, "agent gave up")
	assert.NotContains(t, out, "stack trace", "only the first error line is shown")
	assert.Contains(t, out, "Recent progress")
}

func TestRenderFormats(t *testing.T) {
	snap := &Snapshot{Total: 1, Counts: map[feature.Status]int{feature.StatusPending: 1},
		Features: []Row{{ID: "feat-1", Title: "First", Status: feature.StatusPending}}}

	jsonOut, err := Render(snap, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, jsonOut, `"feat-1"`)

	yamlOut, err := Render(snap, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, yamlOut, "id: feat-1")

	_, err = Render(snap, "xml")
	require.Error(t, err)
}

func TestWatchFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features: []\n"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fired := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, log.Default(), []string{path}, func() { fired <- struct{}{} })
	}()

	// Initial render.
	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("watch never produced the initial render")
	}

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("features: [] # changed\n"), 0o644))

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("watch did not react to a file change")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
