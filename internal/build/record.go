package build

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ExecutorHandle is a lookup-only reference to the execution context driving
// a running record. Interrupt is advisory.
type ExecutorHandle interface {
	ID() string
	Workspace() string
	Interrupt()
}

// Record is one execution of a job.
//
// The executor handle is set if and only if the record is running, and the
// artifact store is bound at most once.
type Record struct {
	job       *Job
	number    int64
	createdOn time.Time

	keep atomic.Bool

	mu        sync.Mutex
	status    Status
	result    Result
	startedOn *time.Time
	endedOn   *time.Time
	executor  ExecutorHandle
	store     ArtifactStore
	// finalizing is set from completion until archival and the saved
	// notification are done; done closes when it clears.
	finalizing bool
	deleting   bool
	deleted    bool
	done       chan struct{}
}

func newRecord(job *Job, number int64, createdOn time.Time) *Record {
	return &Record{
		job:       job,
		number:    number,
		createdOn: createdOn,
		status:    StatusNotStarted,
		done:      make(chan struct{}),
	}
}

func (r *Record) Job() *Job {
	return r.job
}

func (r *Record) Number() int64 {
	return r.number
}

func (r *Record) CreatedOn() time.Time {
	return r.createdOn
}

// String identifies the record by job name and number, e.g. "up #3".
func (r *Record) String() string {
	return fmt.Sprintf("%s #%d", r.job.Name(), r.number)
}

// FullDisplayName uses the job's current display name. The result is
// untrusted text.
func (r *Record) FullDisplayName() string {
	return fmt.Sprintf("%s #%d", r.job.DisplayName(), r.number)
}

func (r *Record) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Record) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (r *Record) StartedOn() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedOn
}

func (r *Record) EndedOn() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endedOn
}

func (r *Record) IsRunning() bool {
	return r.Status() == StatusRunning
}

// Keep reports the explicit keep flag only; dependency protection is
// evaluated by the Guard.
func (r *Record) Keep() bool {
	return r.keep.Load()
}

func (r *Record) Executor() ExecutorHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executor
}

func (r *Record) ArtifactStore() ArtifactStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store
}

func (r *Record) Deleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleted
}

// Finalizing reports whether r has completed but its artifacts are still
// being archived.
func (r *Record) Finalizing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalizing
}

func (r *Record) state() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.finalizing
}

// Done is closed once r has completed and finished archiving.
func (r *Record) Done() <-chan struct{} {
	return r.done
}

// WaitForCompletion blocks until the record completes and finishes
// archiving, or ctx is done.
func (r *Record) WaitForCompletion(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start claims the record for the executor behind h.
func (r *Record) Start(h ExecutorHandle) error {
	if h == nil {
		return ErrNilExecutor
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusNotStarted || r.deleted {
		return illegalState("start", r, r.status)
	}
	now := time.Now().UTC()
	r.status = StatusRunning
	r.startedOn = &now
	r.executor = h
	return nil
}

// complete performs the Running -> Completed transition and returns the
// handle that was driving the record. The record stays finalizing until
// finish is called.
func (r *Record) complete(result Result) (ExecutorHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return nil, illegalState("complete", r, r.status)
	}
	if result == ResultNone {
		result = ResultSuccess
	}
	now := time.Now().UTC()
	h := r.executor
	r.status = StatusCompleted
	r.result = result
	r.endedOn = &now
	r.executor = nil
	r.finalizing = true
	return h, nil
}

// finish ends finalization and releases waiters.
func (r *Record) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalizing {
		return
	}
	r.finalizing = false
	close(r.done)
}

// Interrupt signals the executor of a running record. It is a no-op once
// the record has completed.
func (r *Record) Interrupt() error {
	r.mu.Lock()
	status, h := r.status, r.executor
	r.mu.Unlock()

	switch status {
	case StatusRunning:
		h.Interrupt()
		return nil
	case StatusCompleted:
		return nil
	default:
		return illegalState("interrupt", r, status)
	}
}

// MarkKeep sets the keep flag and reports whether it changed.
func (r *Record) MarkKeep() (bool, error) {
	return r.setKeep(true)
}

// Unkeep clears the keep flag and reports whether it changed.
func (r *Record) Unkeep() (bool, error) {
	return r.setKeep(false)
}

func (r *Record) setKeep(keep bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusCompleted || r.deleted {
		op := "mark keep on"
		if !keep {
			op = "unkeep"
		}
		return false, illegalState(op, r, r.status)
	}
	return r.keep.CompareAndSwap(!keep, keep), nil
}

func (r *Record) bindStore(s ArtifactStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted || r.deleting {
		return fmt.Errorf("%s: %w", r, ErrRecordDeleted)
	}
	if r.store != nil {
		return ErrStoreBound
	}
	r.store = s
	return nil
}

// BindArtifactStore attaches a store to a restored record. It fails if a
// store is already bound.
func (r *Record) BindArtifactStore(s ArtifactStore) error {
	return r.bindStore(s)
}
