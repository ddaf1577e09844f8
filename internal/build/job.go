package build

import (
	"slices"
	"sync"
	"time"
)

type JobOptions struct {
	DisplayName      string
	KeepDependencies bool
	// Artifact patterns archived on completion, relative to the workspace.
	Artifacts []string
	// Storage is a hint read by store factories, e.g. "sftp".
	Storage string
}

// Job owns the ordered set of records produced by its executions.
type Job struct {
	name string

	mu               sync.RWMutex
	displayName      string
	keepDependencies bool
	artifacts        []string
	storage          string
	nextNumber       int64
	records          []*Record
}

func NewJob(name string, opts JobOptions) *Job {
	displayName := opts.DisplayName
	if displayName == "" {
		displayName = name
	}
	return &Job{
		name:             name,
		displayName:      displayName,
		keepDependencies: opts.KeepDependencies,
		artifacts:        slices.Clone(opts.Artifacts),
		storage:          opts.Storage,
		nextNumber:       1,
	}
}

// Name is the immutable key of the job.
func (j *Job) Name() string {
	return j.name
}

// DisplayName is externally settable and never sanitized.
func (j *Job) DisplayName() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.displayName
}

func (j *Job) SetDisplayName(displayName string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if displayName == "" {
		displayName = j.name
	}
	j.displayName = displayName
}

func (j *Job) KeepDependencies() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.keepDependencies
}

func (j *Job) SetKeepDependencies(keep bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.keepDependencies = keep
}

func (j *Job) Artifacts() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.artifacts)
}

func (j *Job) Storage() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.storage
}

// NewRecord creates a NotStarted record with the next build number.
func (j *Job) NewRecord() *Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := newRecord(j, j.nextNumber, time.Now().UTC())
	j.nextNumber++
	j.records = append(j.records, r)
	return r
}

// RestoreRecord re-creates a completed record loaded from persistence.
func (j *Job) RestoreRecord(
	number int64,
	result Result,
	keep bool,
	createdOn time.Time,
	startedOn, endedOn *time.Time,
) *Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := newRecord(j, number, createdOn)
	r.status = StatusCompleted
	r.result = result
	r.startedOn = startedOn
	r.endedOn = endedOn
	r.keep.Store(keep)
	close(r.done)

	idx, _ := slices.BinarySearchFunc(j.records, number, func(e *Record, n int64) int {
		return compareInt64(e.number, n)
	})
	j.records = slices.Insert(j.records, idx, r)
	if number >= j.nextNumber {
		j.nextNumber = number + 1
	}
	return r
}

// Records returns the job's records, newest first.
func (j *Job) Records() []*Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	records := slices.Clone(j.records)
	slices.Reverse(records)
	return records
}

func (j *Job) Record(number int64) (*Record, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, r := range j.records {
		if r.number == number {
			return r, true
		}
	}
	return nil, false
}

// LastSuccessful returns the newest completed record with result SUCCESS or
// UNSTABLE. Records still archiving are skipped.
func (j *Job) LastSuccessful() (*Record, bool) {
	for _, r := range j.Records() {
		if status, finalizing := r.state(); status != StatusCompleted || finalizing || r.Deleted() {
			continue
		}
		if res := r.Result(); res == ResultSuccess || res == ResultUnstable {
			return r, true
		}
	}
	return nil, false
}

// DiscardRecord drops a record that never started, e.g. one that could not
// be queued. Discarded records can no longer be started.
func (j *Job) DiscardRecord(r *Record) error {
	r.mu.Lock()
	if r.status != StatusNotStarted {
		defer r.mu.Unlock()
		return illegalState("discard", r, r.status)
	}
	r.deleted = true
	r.mu.Unlock()
	j.remove(r)
	return nil
}

func (j *Job) remove(r *Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = slices.DeleteFunc(j.records, func(e *Record) bool {
		return e == r
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
