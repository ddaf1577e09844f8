package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal/build"
)

// executor is the handle a running record holds on its worker.
type executor struct {
	id        string
	workspace string
	cancel    context.CancelFunc
}

func (e *executor) ID() string        { return e.id }
func (e *executor) Workspace() string { return e.workspace }
func (e *executor) Interrupt()        { e.cancel() }

// RunQueue executes the records of one job, one at a time, in the order
// they were enqueued.
type RunQueue struct {
	manager *build.Manager
	plan    []PlannedStep
	dataDir string
	hub     *ConsoleHub

	queue        chan *build.Record
	done         chan struct{}
	cancelRunMap *CancelMap[int64]
	mu           sync.Mutex
}

func NewRunQueue(manager *build.Manager, plan []PlannedStep, dataDir string, hub *ConsoleHub, maxRuns int64) *RunQueue {
	return &RunQueue{
		manager:      manager,
		plan:         plan,
		dataDir:      dataDir,
		hub:          hub,
		queue:        make(chan *build.Record, max(maxRuns, 1)),
		done:         make(chan struct{}),
		cancelRunMap: NewCancelMap[int64](),
	}
}

func (rq *RunQueue) Enqueue(r *build.Record) error {
	select {
	case <-rq.done:
		return errors.New("run queue is shut down")
	default:
	}
	select {
	case rq.queue <- r:
		return nil
	default:
		return NewErrRunQueueFull()
	}
}

// CancelRun interrupts the running record with the given number.
func (rq *RunQueue) CancelRun(number int64) bool {
	return rq.cancelRunMap.Call(number)
}

func (rq *RunQueue) Run() {
	for {
		select {
		case r := <-rq.queue:
			rq.process(r)
		case <-rq.done:
			rq.discardQueued()
			return
		}
	}
}

// Shutdown stops the worker and interrupts the running record, if any.
func (rq *RunQueue) Shutdown() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	select {
	case <-rq.done:
	default:
		close(rq.done)
		rq.cancelRunMap.CallAll()
	}
}

func (rq *RunQueue) discardQueued() {
	for {
		select {
		case r := <-rq.queue:
			if err := r.Job().DiscardRecord(r); err != nil {
				log.WithError(err).WithField("record", r.String()).Warn("err discarding queued build")
			}
		default:
			return
		}
	}
}

// WorkspaceDir and ConsoleLogPath lay out per-build directories under dataDir.
func WorkspaceDir(dataDir, job string, n int64) string {
	return filepath.Join(dataDir, "workspaces", job, strconv.FormatInt(n, 10))
}

func ConsoleLogPath(dataDir, job string, n int64) string {
	return filepath.Join(dataDir, "logs", job, strconv.FormatInt(n, 10)+".log")
}

func (rq *RunQueue) process(r *build.Record) {
	logger := log.WithField("record", r.String())
	ws := WorkspaceDir(rq.dataDir, r.Job().Name(), r.Number())
	if err := os.MkdirAll(ws, 0o755); err != nil {
		logger.WithError(err).Error("err creating workspace")
		_ = r.Job().DiscardRecord(r)
		return
	}
	defer func() {
		if err := os.RemoveAll(ws); err != nil {
			logger.WithError(err).Warn("err removing workspace")
		}
	}()

	console, err := openConsole(ConsoleLogPath(rq.dataDir, r.Job().Name(), r.Number()))
	if err != nil {
		logger.WithError(err).Error("err creating console log")
		console = nopWriteCloser{io.Discard}
	}
	defer console.Close()
	out := io.MultiWriter(console, rq.hub.Open(r))
	defer rq.hub.Close(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &executor{id: uuid.NewString(), workspace: ws, cancel: cancel}
	if err := rq.manager.Start(r, h); err != nil {
		logger.WithError(err).Error("err starting build")
		return
	}
	rq.cancelRunMap.AddCancel(r.Number(), cancel)
	defer rq.cancelRunMap.RemoveCancel(r.Number())

	result := build.ResultSuccess
	if err := rq.executePlan(ctx, &StepContext{Record: r, Workspace: ws, Output: out}); err != nil {
		result = resultOf(err)
		logger.WithError(err).WithField("result", result).Info("build did not succeed")
		fmt.Fprintf(out, `
=============================================
%s || %v
=============================================
`, result, err)
	} else {
		fmt.Fprint(out, `
=============================================
PASS || Executed build steps successfully.
=============================================
`)
	}

	if err := rq.manager.Complete(context.Background(), r, result); err != nil {
		logger.WithError(err).Error("err completing build")
	}
}

func (rq *RunQueue) executePlan(ctx context.Context, sc *StepContext) error {
	stage := ""
	for _, ps := range rq.plan {
		if err := ctx.Err(); err != nil {
			return RunCancelError{Message: "build interrupted"}
		}
		if ps.Stage != stage {
			stage = ps.Stage
			fmt.Fprintf(sc.Output, "Executing stage '%s'\n", stage)
		}
		fmt.Fprintf(sc.Output, "  |  Executing step '%s'\n", ps.Name)
		if err := runStep(ctx, ps.Runner, sc); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return RunCancelError{Message: "build interrupted"}
	}
	return nil
}

func runStep(ctx context.Context, runner StepRunner, sc *StepContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step panicked: %v", p)
		}
	}()
	return runner.Run(ctx, sc)
}

func resultOf(err error) build.Result {
	var rce RunCancelError
	if errors.As(err, &rce) {
		return build.ResultAborted
	}
	return build.ResultFailure
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func openConsole(p string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.Create(p)
}
