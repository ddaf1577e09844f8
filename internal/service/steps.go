package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/haatos/runkeeper/internal/artifact"
	"github.com/haatos/runkeeper/internal/build"
)

// StepContext is what a step sees of the build it runs in.
type StepContext struct {
	Record    *build.Record
	Workspace string
	Output    io.Writer
}

type StepRunner interface {
	Run(ctx context.Context, sc *StepContext) error
}

type StepFunc func(ctx context.Context, sc *StepContext) error

func (f StepFunc) Run(ctx context.Context, sc *StepContext) error {
	return f(ctx, sc)
}

// PlannedStep is one entry of a job's execution plan.
type PlannedStep struct {
	Stage  string
	Name   string
	Runner StepRunner
}

// ScriptStep runs a shell script in the workspace. A step interrupted by
// the caller's context reports RunCancelError; one that outlives its own
// timeout reports StepTimeoutError.
type ScriptStep struct {
	Name    string
	Script  string
	Timeout time.Duration
}

func (s ScriptStep) Run(ctx context.Context, sc *StepContext) error {
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, s.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(stepCtx, "sh", "-c", s.Script)
	cmd.Dir = sc.Workspace
	cmd.Stdout = sc.Output
	cmd.Stderr = sc.Output
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return RunCancelError{Message: "step execution cancelled by user"}
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		return StepTimeoutError{Step: s.Name, Seconds: int(s.Timeout.Seconds())}
	default:
		return fmt.Errorf("step '%s' failed: %w", s.Name, err)
	}
}

// LinkRecorder records that consumer used artifact from producer.
type LinkRecorder interface {
	RecordLink(ctx context.Context, producer, consumer *build.Record, artifact string) error
}

type JobLookup interface {
	GetJob(name string) (*build.Job, error)
}

// CopyArtifactsStep copies artifacts of the last successful build of an
// upstream job into the workspace and records the usage.
type CopyArtifactsStep struct {
	Job      string
	Patterns []string

	jobs    JobLookup
	links   LinkRecorder
	timeout time.Duration
}

func NewCopyArtifactsStep(
	job string,
	patterns []string,
	jobs JobLookup,
	links LinkRecorder,
	timeout time.Duration,
) *CopyArtifactsStep {
	return &CopyArtifactsStep{
		Job:      job,
		Patterns: patterns,
		jobs:     jobs,
		links:    links,
		timeout:  timeout,
	}
}

func (s *CopyArtifactsStep) Run(ctx context.Context, sc *StepContext) error {
	upstream, err := s.jobs.GetJob(s.Job)
	if err != nil {
		return err
	}
	producer, ok := upstream.LastSuccessful()
	if !ok {
		return fmt.Errorf("%s: %w", s.Job, ErrNoSuccessful)
	}

	root := artifact.NewIsolatedRoot(producer, s.timeout)
	names, err := s.collect(ctx, root, "")
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintf(sc.Output, "no artifacts of %s matched %v\n", producer.FullDisplayName(), s.Patterns)
		return nil
	}

	for _, name := range names {
		if err := copyArtifact(ctx, root, name, filepath.Join(sc.Workspace, filepath.FromSlash(name))); err != nil {
			return fmt.Errorf("err copying %s from %s: %w", name, producer, err)
		}
		if err := s.links.RecordLink(ctx, producer, sc.Record, name); err != nil {
			return err
		}
		fmt.Fprintf(sc.Output, "copied %s from %s\n", name, producer.FullDisplayName())
	}
	return nil
}

func (s *CopyArtifactsStep) collect(ctx context.Context, root build.VirtualRoot, dir string) ([]string, error) {
	entries, err := root.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0)
	for _, e := range entries {
		if e.Dir {
			nested, err := s.collect(ctx, root, e.Name)
			if err != nil {
				return nil, err
			}
			names = append(names, nested...)
			continue
		}
		if s.matches(e.Name) {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

func (s *CopyArtifactsStep) matches(name string) bool {
	if len(s.Patterns) == 0 {
		return true
	}
	for _, pattern := range s.Patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func copyArtifact(ctx context.Context, root build.VirtualRoot, name, dst string) error {
	rc, err := root.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
