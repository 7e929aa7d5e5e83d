package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

// writeWorkerScript builds a fake worker binary that ignores its flags and
// either sleeps (long-lived) or exits immediately, so Supervisor's
// spawn/liveness/restart logic can be exercised against a real child
// process without a real Reddit-facing worker.
func writeWorkerScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newRunningScraper(t *testing.T, st store.Store, id string, autoRestart bool) {
	t.Helper()
	require.NoError(t, st.CreateScraper(context.Background(), &models.ScraperRecord{
		ID:          id,
		Subreddits:  []string{id},
		ScraperType: models.ScraperTypePosts,
		AutoRestart: autoRestart,
		Status:      models.StatusConfigured,
	}))
}

func TestSupervisor_StartSetsRunningStatus(t *testing.T) {
	orig := WorkerBinary
	WorkerBinary = writeWorkerScript(t, "sleep 5")
	defer func() { WorkerBinary = orig }()

	st := store.NewMemoryStore()
	newRunningScraper(t, st, "s1", false)

	sup := New(st)
	require.NoError(t, sup.Start(context.Background(), "s1"))

	rec, err := st.LoadScraper(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, rec.Status)

	require.NoError(t, sup.Stop(context.Background(), "s1"))
	rec, _ = st.LoadScraper(context.Background(), "s1")
	assert.Equal(t, models.StatusStopped, rec.Status)
}

func TestSupervisor_PollLivenessDetectsExitWithoutAutoRestart(t *testing.T) {
	orig := WorkerBinary
	WorkerBinary = writeWorkerScript(t, "exit 1")
	defer func() { WorkerBinary = orig }()

	st := store.NewMemoryStore()
	newRunningScraper(t, st, "s1", false)

	sup := New(st)
	require.NoError(t, sup.Start(context.Background(), "s1"))

	assert.Eventually(t, func() bool {
		require.NoError(t, sup.PollLiveness(context.Background()))
		rec, err := st.LoadScraper(context.Background(), "s1")
		require.NoError(t, err)
		return rec.Status == models.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	rec, _ := st.LoadScraper(context.Background(), "s1")
	assert.Equal(t, 0, rec.RestartCount, "auto_restart is false, no restart should be attempted")
}

func TestSupervisor_AutoRestartIncrementsRestartCount(t *testing.T) {
	orig := WorkerBinary
	WorkerBinary = writeWorkerScript(t, "exit 1")
	defer func() { WorkerBinary = orig }()

	st := store.NewMemoryStore()
	newRunningScraper(t, st, "s1", true)

	sup := New(st)
	require.NoError(t, sup.Start(context.Background(), "s1"))

	ctx := context.Background()
	assert.Eventually(t, func() bool {
		require.NoError(t, sup.PollLiveness(ctx))
		rec, err := st.LoadScraper(ctx, "s1")
		require.NoError(t, err)
		return rec.RestartCount >= 1
	}, 5*time.Second, 20*time.Millisecond)
}
