package store

import (
	"context"
	"time"
)

// Run is the persisted form of a build record.
type Run struct {
	RunID         int64
	JobName       string
	Number        int64
	Status        string
	Result        string
	KeepFlag      bool
	ArtifactStore string
	CreatedOn     time.Time
	StartedOn     *time.Time
	EndedOn       *time.Time
}

type RunStore interface {
	UpsertRun(context.Context, *Run) error
	ReadRun(context.Context, string, int64) (*Run, error)
	ListJobRuns(context.Context, string) ([]Run, error)
	ListRuns(context.Context) ([]Run, error)
	CountJobRuns(context.Context, string) (int64, error)
	DeleteRun(context.Context, string, int64) error
}
