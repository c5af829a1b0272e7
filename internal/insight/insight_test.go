package insight

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aether-platform/aether-lens/internal/runner"
	"github.com/aether-platform/aether-lens/internal/strategy"
)

func sampleResults(statuses ...runner.Status) []runner.Result {
	results := make([]runner.Result, len(statuses))
	for i, status := range statuses {
		results[i] = runner.Result{
			Strategy: []string{"visual:desktop", "visual:mobile", "command:build"}[i%3],
			Status:   status,
		}
	}
	return results
}

func sampleInfo(started time.Time) RunInfo {
	return RunInfo{
		RunID:      "0d9a7f4e-1111-2222-3333-444455556666",
		DiffRef:    "a1b2c3d4",
		Backend:    Backend{Kind: "docker", Endpoint: "ws://localhost:9222", SessionID: "sess-1"},
		PlanSource: strategy.SourceAI,
		StartedAt:  started,
	}
}

func TestAssemble_AllPassed(t *testing.T) {
	started := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	now := started.Add(3 * time.Second)

	in := Assemble(sampleInfo(started), sampleResults(runner.StatusPassed, runner.StatusPassed), now)
	require.Equal(t, StatusPassed, in.Status)
	require.False(t, in.Failed())
	require.Equal(t, SchemaVersion, in.SchemaVersion)
	require.Equal(t, 3*time.Second, in.Duration)
	require.Equal(t, now, in.GeneratedAt)

	passed, failed, errored := in.Counts()
	require.Equal(t, 2, passed)
	require.Zero(t, failed)
	require.Zero(t, errored)
}

func TestAssemble_AnyFailureFailsTheRun(t *testing.T) {
	started := time.Now()

	in := Assemble(sampleInfo(started), sampleResults(runner.StatusPassed, runner.StatusFailed), started)
	require.Equal(t, StatusFailed, in.Status)
	require.True(t, in.Failed())

	in = Assemble(sampleInfo(started), sampleResults(runner.StatusPassed, runner.StatusPassed, runner.StatusErrored), started)
	require.Equal(t, StatusFailed, in.Status, "an errored strategy fails the run")
}

func TestAssemble_KeepsResultOrder(t *testing.T) {
	results := sampleResults(runner.StatusPassed, runner.StatusFailed, runner.StatusPassed)

	in := Assemble(sampleInfo(time.Now()), results, time.Now())
	require.Equal(t, results, in.Results)
}

func TestAssemble_EmptyResultsPass(t *testing.T) {
	in := Assemble(sampleInfo(time.Now()), nil, time.Now())
	require.Equal(t, StatusPassed, in.Status)
}

func TestHistorySink_WriteAndReadLatest(t *testing.T) {
	root := t.TempDir()
	sink := NewHistorySink(root)

	started := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	in := Assemble(sampleInfo(started), sampleResults(runner.StatusPassed), started.Add(time.Second))

	path, err := sink.Write(in)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".aether", "history"), filepath.Dir(path))

	base := filepath.Base(path)
	require.True(t, strings.HasPrefix(base, "run_"), base)
	require.True(t, strings.HasSuffix(base, "_0d9a7f4e.json"), base)

	latest, err := sink.ReadLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, in.RunID, latest.RunID)
	require.Equal(t, in.Status, latest.Status)
	require.Len(t, latest.Results, 1)
}

func TestHistorySink_EachRunGetsItsOwnFile(t *testing.T) {
	root := t.TempDir()
	sink := NewHistorySink(root)

	first := Assemble(sampleInfo(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)), nil, time.Date(2026, 2, 10, 9, 0, 1, 0, time.UTC))
	second := first
	second.RunID = "ffffffff-aaaa-bbbb-cccc-dddddddddddd"
	second.GeneratedAt = second.GeneratedAt.Add(time.Minute)

	p1, err := sink.Write(first)
	require.NoError(t, err)
	p2, err := sink.Write(second)
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)

	latest, err := sink.ReadLatest()
	require.NoError(t, err)
	require.Equal(t, second.RunID, latest.RunID)
}

func TestHistorySink_ReadLatestWithoutHistory(t *testing.T) {
	sink := NewHistorySink(t.TempDir())

	latest, err := sink.ReadLatest()
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestHistorySink_RejectsAnonymousRuns(t *testing.T) {
	sink := NewHistorySink(t.TempDir())

	_, err := sink.Write(Insight{})
	require.Error(t, err)
}
