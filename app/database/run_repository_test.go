package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "journal", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestRunRepository_StartAndFinish(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	started := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

	id, err := repo.StartRun("schedule", started)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := repo.GetLatestRun("schedule")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.True(t, run.StartedAt.Equal(started))

	err = repo.FinishRun(id, RunOutcome{
		FinishedAt: started.Add(3 * time.Second),
		Status:     "appended",
		Existing:   10,
		Candidates: 5,
		Appended:   2,
		WindowSize: 12,
	})
	require.NoError(t, err)

	run, err = repo.GetLatestRun("schedule")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "appended", run.Status)
	assert.Equal(t, 10, run.Existing)
	assert.Equal(t, 5, run.Candidates)
	assert.Equal(t, 2, run.Appended)
	assert.Equal(t, 12, run.WindowSize)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.Equal(started.Add(3*time.Second)))
}

func TestRunRepository_FinishUnknownRun(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))

	err := repo.FinishRun("missing", RunOutcome{FinishedAt: time.Now(), Status: "failed"})
	assert.Error(t, err)
}

func TestRunRepository_GetLatestRunNone(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))

	run, err := repo.GetLatestRun("nothing")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestRunRepository_GetLatestRuns(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	base := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

	for i, source := range []string{"press", "schedule", "press", "blog", "schedule"} {
		id, err := repo.StartRun(source, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.FinishRun(id, RunOutcome{
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Status:     "unchanged",
			Existing:   i,
		}))
	}

	runs, err := repo.GetLatestRuns()
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, "blog", runs[0].Source)
	assert.Equal(t, 3, runs[0].Existing)
	assert.Equal(t, "press", runs[1].Source)
	assert.Equal(t, 2, runs[1].Existing)
	assert.Equal(t, "schedule", runs[2].Source)
	assert.Equal(t, 4, runs[2].Existing)

	count, err := repo.GetRunCount()
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestRunRepository_FailedRunKeepsError(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))

	id, err := repo.StartRun("press", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.FinishRun(id, RunOutcome{
		FinishedAt: time.Now(),
		Status:     "failed",
		Error:      "fetch https://example.com: status 503",
	}))

	run, err := repo.GetLatestRun("press")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, "fetch https://example.com: status 503", run.Error)
}
