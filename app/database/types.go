package database

import (
	"time"
)

const RunStatusRunning = "running"

// Run is one sync of one source as recorded in the journal.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // running, appended, unchanged, failed
	Existing   int    // keys in the ledger before the run
	Candidates int
	Appended   int
	WindowSize int
	Error      string
}

type RunOutcome struct {
	FinishedAt time.Time
	Status     string
	Existing   int
	Candidates int
	Appended   int
	WindowSize int
	Error      string
}

type RunRepository interface {
	StartRun(source string, startedAt time.Time) (string, error)
	FinishRun(id string, outcome RunOutcome) error

	GetLatestRun(source string) (*Run, error)
	GetLatestRuns() ([]Run, error)
	GetRunCount() (int, error)
}
