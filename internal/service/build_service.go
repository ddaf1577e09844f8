package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal/artifact"
	"github.com/haatos/runkeeper/internal/build"
	"github.com/haatos/runkeeper/internal/depgraph"
	"github.com/haatos/runkeeper/internal/store"
)

const RunningBadgeIcon = "play"

type BuildServicer interface {
	ListJobs() []*build.Job
	GetJob(name string) (*build.Job, error)
	SetDisplayName(job, displayName string) error
	Trigger(job string) (*build.Record, error)
	GetRecord(job string, number int64) (*build.Record, error)
	Keep(job string, number int64) (bool, error)
	Unkeep(job string, number int64) (bool, error)
	Interrupt(job string, number int64) error
	Wait(ctx context.Context, job string, number int64) (*build.Record, error)
	Delete(ctx context.Context, job string, number int64) error
	CanDelete(r *build.Record) build.Decision
	CanToggleKeep(r *build.Record) bool
	Badges(r *build.Record) []build.Badge
	Upstream(r *build.Record) []*build.Record
	Downstream(r *build.Record) []*build.Record
	Links(r *build.Record) []depgraph.Link
	ListArtifacts(ctx context.Context, r *build.Record, dir string) ([]build.Entry, error)
	StatArtifact(ctx context.Context, r *build.Record, name string) (build.Entry, error)
	OpenArtifact(ctx context.Context, r *build.Record, name string) (io.ReadCloser, error)
	ArtifactRoot(r *build.Record) build.VirtualRoot
	OpenConsole(r *build.Record) (io.ReadCloser, error)
	StreamConsole(r *build.Record) (ConsoleSubscription, bool)
}

type BuildServiceOptions struct {
	DataDir      string
	QueueSize    int64
	StoreTimeout time.Duration
	// StepTimeout applies to script steps that do not set their own.
	StepTimeout time.Duration
}

type jobEntry struct {
	job       *build.Job
	script    *JobScript
	queue     *RunQueue
	retention Retention
}

type BuildService struct {
	manager *build.Manager
	graph   *depgraph.Graph
	runs    store.RunStore
	links   store.LinkStore
	opts    BuildServiceOptions
	console *ConsoleHub

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

func NewBuildService(
	manager *build.Manager,
	graph *depgraph.Graph,
	runs store.RunStore,
	links store.LinkStore,
	opts BuildServiceOptions,
) *BuildService {
	bs := &BuildService{
		manager: manager,
		graph:   graph,
		runs:    runs,
		links:   links,
		opts:    opts,
		console: NewConsoleHub(),
		jobs:    make(map[string]*jobEntry),
	}
	manager.BadgeRegistry().Register(build.BadgeProviderFunc(runningBadge))
	return bs
}

func runningBadge(r *build.Record) []build.Badge {
	h := r.Executor()
	if h == nil {
		return nil
	}
	return []build.Badge{{Icon: RunningBadgeIcon, Tooltip: "running on executor " + h.ID()}}
}

func (bs *BuildService) Manager() *build.Manager {
	return bs.manager
}

// AddJob registers the job described by js and starts its run queue.
func (bs *BuildService) AddJob(js *JobScript) (*build.Job, error) {
	if err := js.Validate(); err != nil {
		return nil, err
	}
	return bs.addJob(js, bs.compile(js))
}

// AddJobWithPlan registers a job whose steps are supplied directly.
func (bs *BuildService) AddJobWithPlan(js *JobScript, plan []PlannedStep) (*build.Job, error) {
	if err := js.Validate(); err != nil {
		return nil, err
	}
	return bs.addJob(js, plan)
}

func (bs *BuildService) addJob(js *JobScript, plan []PlannedStep) (*build.Job, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if _, ok := bs.jobs[js.Name]; ok {
		return nil, fmt.Errorf("%s: %w", js.Name, ErrJobExists)
	}
	j := build.NewJob(js.Name, js.Options())
	q := NewRunQueue(bs.manager, plan, bs.opts.DataDir, bs.console, bs.opts.QueueSize)
	bs.jobs[js.Name] = &jobEntry{job: j, script: js, queue: q, retention: js.Retention}
	go q.Run()
	return j, nil
}

func (bs *BuildService) compile(js *JobScript) []PlannedStep {
	plan := make([]PlannedStep, 0)
	for _, c := range js.Consumes {
		plan = append(plan, PlannedStep{
			Stage:  "dependencies",
			Name:   "copy artifacts from " + c.Job,
			Runner: NewCopyArtifactsStep(c.Job, c.Artifacts, bs, bs, bs.opts.StoreTimeout),
		})
	}
	for _, stage := range js.Stages {
		for _, step := range stage.Steps {
			timeout := time.Duration(step.TimeoutSeconds) * time.Second
			if timeout == 0 {
				timeout = bs.opts.StepTimeout
			}
			plan = append(plan, PlannedStep{
				Stage: stage.Stage,
				Name:  step.Step,
				Runner: ScriptStep{
					Name:    step.Step,
					Script:  step.Script,
					Timeout: timeout,
				},
			})
		}
	}
	return plan
}

func (bs *BuildService) entry(name string) (*jobEntry, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	e, ok := bs.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrJobNotFound)
	}
	return e, nil
}

func (bs *BuildService) GetJob(name string) (*build.Job, error) {
	e, err := bs.entry(name)
	if err != nil {
		return nil, err
	}
	return e.job, nil
}

func (bs *BuildService) ListJobs() []*build.Job {
	bs.mu.RLock()
	jobs := make([]*build.Job, 0, len(bs.jobs))
	for _, e := range bs.jobs {
		jobs = append(jobs, e.job)
	}
	bs.mu.RUnlock()
	slices.SortFunc(jobs, func(a, b *build.Job) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	return jobs
}

func (bs *BuildService) SetDisplayName(job, displayName string) error {
	j, err := bs.GetJob(job)
	if err != nil {
		return err
	}
	j.SetDisplayName(displayName)
	return nil
}

// Trigger creates a record for job and queues it for execution.
func (bs *BuildService) Trigger(job string) (*build.Record, error) {
	e, err := bs.entry(job)
	if err != nil {
		return nil, err
	}
	r := e.job.NewRecord()
	if err := e.queue.Enqueue(r); err != nil {
		if discardErr := e.job.DiscardRecord(r); discardErr != nil {
			log.WithError(discardErr).WithField("record", r.String()).Error("err discarding build")
		}
		return nil, err
	}
	return r, nil
}

func (bs *BuildService) GetRecord(job string, number int64) (*build.Record, error) {
	j, err := bs.GetJob(job)
	if err != nil {
		return nil, err
	}
	r, ok := j.Record(number)
	if !ok {
		return nil, fmt.Errorf("%s #%d: %w", job, number, ErrRecordNotFound)
	}
	return r, nil
}

func (bs *BuildService) Keep(job string, number int64) (bool, error) {
	r, err := bs.GetRecord(job, number)
	if err != nil {
		return false, err
	}
	return bs.manager.MarkKeep(r)
}

func (bs *BuildService) Unkeep(job string, number int64) (bool, error) {
	r, err := bs.GetRecord(job, number)
	if err != nil {
		return false, err
	}
	return bs.manager.Unkeep(r)
}

func (bs *BuildService) Interrupt(job string, number int64) error {
	r, err := bs.GetRecord(job, number)
	if err != nil {
		return err
	}
	return bs.manager.Interrupt(r)
}

// Wait blocks until the record completes or ctx is done.
func (bs *BuildService) Wait(ctx context.Context, job string, number int64) (*build.Record, error) {
	r, err := bs.GetRecord(job, number)
	if err != nil {
		return nil, err
	}
	if err := r.WaitForCompletion(ctx); err != nil {
		return r, err
	}
	return r, nil
}

func (bs *BuildService) Delete(ctx context.Context, job string, number int64) error {
	r, err := bs.GetRecord(job, number)
	if err != nil {
		return err
	}
	if err := bs.manager.Delete(ctx, r); err != nil {
		return err
	}
	if err := os.Remove(ConsoleLogPath(bs.opts.DataDir, job, number)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).WithField("record", r.String()).Warn("err removing console log")
	}
	return nil
}

func (bs *BuildService) CanDelete(r *build.Record) build.Decision {
	return bs.manager.CanDelete(r)
}

func (bs *BuildService) CanToggleKeep(r *build.Record) bool {
	return bs.manager.Guard().CanToggleKeep(r)
}

func (bs *BuildService) Badges(r *build.Record) []build.Badge {
	return bs.manager.Badges(r)
}

func (bs *BuildService) Upstream(r *build.Record) []*build.Record {
	return bs.graph.Producers(r)
}

func (bs *BuildService) Downstream(r *build.Record) []*build.Record {
	return bs.graph.Downstream(r)
}

// Links returns the usage facts r takes part in.
func (bs *BuildService) Links(r *build.Record) []depgraph.Link {
	return bs.graph.Links(r)
}

// RecordLink stores a usage fact in the graph and the database, together
// with the current display names of both records.
func (bs *BuildService) RecordLink(ctx context.Context, producer, consumer *build.Record, name string) error {
	l := depgraph.Link{
		Producer:     producer,
		Consumer:     consumer,
		ProducerName: producer.FullDisplayName(),
		ConsumerName: consumer.FullDisplayName(),
		Artifact:     name,
	}
	if err := bs.graph.Link(l); err != nil {
		return err
	}
	if bs.links == nil {
		return nil
	}
	if err := bs.links.CreateLink(ctx, &store.Link{
		ProducerJob:    producer.Job().Name(),
		ProducerNumber: producer.Number(),
		ConsumerJob:    consumer.Job().Name(),
		ConsumerNumber: consumer.Number(),
		ProducerName:   l.ProducerName,
		ConsumerName:   l.ConsumerName,
		Artifact:       name,
	}); err != nil {
		return err
	}

	// the row may have landed after a deletion already cleaned up
	for _, r := range []*build.Record{producer, consumer} {
		if !r.Deleted() {
			continue
		}
		if err := bs.links.DeleteRecordLinks(ctx, r.Job().Name(), r.Number()); err != nil {
			log.WithError(err).WithField("record", r.String()).Error("err dropping links of deleted build")
		}
		return fmt.Errorf("%s: %w", r, build.ErrRecordDeleted)
	}
	return nil
}

// ArtifactRoot gives timeout-bounded access to r's archived artifacts.
func (bs *BuildService) ArtifactRoot(r *build.Record) build.VirtualRoot {
	return artifact.NewIsolatedRoot(r, bs.opts.StoreTimeout)
}

func (bs *BuildService) ListArtifacts(ctx context.Context, r *build.Record, dir string) ([]build.Entry, error) {
	return bs.ArtifactRoot(r).List(ctx, dir)
}

func (bs *BuildService) StatArtifact(ctx context.Context, r *build.Record, name string) (build.Entry, error) {
	return bs.ArtifactRoot(r).Stat(ctx, name)
}

func (bs *BuildService) OpenArtifact(ctx context.Context, r *build.Record, name string) (io.ReadCloser, error) {
	return bs.ArtifactRoot(r).Open(ctx, name)
}

func (bs *BuildService) OpenConsole(r *build.Record) (io.ReadCloser, error) {
	return os.Open(ConsoleLogPath(bs.opts.DataDir, r.Job().Name(), r.Number()))
}

// StreamConsole subscribes to the output of r while it runs.
func (bs *BuildService) StreamConsole(r *build.Record) (ConsoleSubscription, bool) {
	return bs.console.Subscribe(r)
}

// Restore reloads persisted records and links. Records that were left
// running by a previous process are restored as aborted.
func (bs *BuildService) Restore(ctx context.Context) error {
	runs, err := bs.runs.ListRuns(ctx)
	if err != nil {
		return err
	}
	for _, run := range runs {
		j, err := bs.GetJob(run.JobName)
		if err != nil {
			log.WithField("job", run.JobName).Warn("skipping persisted build of unknown job")
			continue
		}
		if _, ok := j.Record(run.Number); ok {
			continue
		}

		result, _ := build.ParseResult(run.Result)
		stale := run.Status != build.StatusCompleted.String()
		if stale {
			result = build.ResultAborted
			if run.EndedOn == nil {
				now := time.Now().UTC()
				run.EndedOn = &now
			}
		}
		r := j.RestoreRecord(run.Number, result, run.KeepFlag, run.CreatedOn, run.StartedOn, run.EndedOn)
		if run.ArtifactStore != "" {
			if err := bs.rebindStore(r); err != nil {
				log.WithError(err).WithField("record", r.String()).Warn("err rebinding artifact store")
			}
		}
		if stale {
			if err := bs.runs.UpsertRun(ctx, store.RunFromRecord(r)); err != nil {
				log.WithError(err).WithField("record", r.String()).Error("err persisting aborted build")
			}
		}
	}

	if bs.links == nil {
		return nil
	}
	links, err := bs.links.ListLinks(ctx)
	if err != nil {
		return err
	}
	for _, l := range links {
		producer, perr := bs.GetRecord(l.ProducerJob, l.ProducerNumber)
		consumer, cerr := bs.GetRecord(l.ConsumerJob, l.ConsumerNumber)
		if perr != nil || cerr != nil {
			continue
		}
		if err := bs.graph.Link(depgraph.Link{
			Producer:     producer,
			Consumer:     consumer,
			ProducerName: l.ProducerName,
			ConsumerName: l.ConsumerName,
			Artifact:     l.Artifact,
		}); err != nil {
			log.WithError(err).Warn("err restoring dependency link")
		}
	}
	return nil
}

func (bs *BuildService) rebindStore(r *build.Record) error {
	if bs.manager.Stores() == nil {
		return build.ErrNoStoreFactory
	}
	s, err := bs.manager.Stores().StoreFor(r)
	if err != nil {
		return err
	}
	return r.BindArtifactStore(s)
}

// Shutdown stops every run queue and interrupts running builds.
func (bs *BuildService) Shutdown() {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	for _, e := range bs.jobs {
		e.queue.Shutdown()
	}
}

func (bs *BuildService) retentionOf(job string) Retention {
	e, err := bs.entry(job)
	if err != nil {
		return Retention{}
	}
	return e.retention
}
