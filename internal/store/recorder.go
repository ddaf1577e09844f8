package store

import (
	"context"
	"errors"
	"time"

	"github.com/haatos/runkeeper/internal/build"
)

// Recorder persists record state on lifecycle events.
type Recorder struct {
	runs    RunStore
	links   LinkStore
	timeout time.Duration
}

func NewRecorder(runs RunStore, links LinkStore, timeout time.Duration) *Recorder {
	return &Recorder{runs: runs, links: links, timeout: timeout}
}

func (rec *Recorder) OnSaved(r *build.Record) error {
	ctx, cancel := rec.context()
	defer cancel()
	return rec.runs.UpsertRun(ctx, RunFromRecord(r))
}

func (rec *Recorder) OnDeleted(r *build.Record, storage string) error {
	ctx, cancel := rec.context()
	defer cancel()
	return errors.Join(
		rec.runs.DeleteRun(ctx, r.Job().Name(), r.Number()),
		rec.links.DeleteRecordLinks(ctx, r.Job().Name(), r.Number()),
	)
}

func (rec *Recorder) context() (context.Context, context.CancelFunc) {
	if rec.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), rec.timeout)
}

func RunFromRecord(r *build.Record) *Run {
	return &Run{
		JobName:       r.Job().Name(),
		Number:        r.Number(),
		Status:        r.Status().String(),
		Result:        string(r.Result()),
		KeepFlag:      r.Keep(),
		ArtifactStore: build.DescribeStore(r.ArtifactStore()),
		CreatedOn:     r.CreatedOn(),
		StartedOn:     r.StartedOn(),
		EndedOn:       r.EndedOn(),
	}
}
