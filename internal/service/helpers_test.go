package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haatos/runkeeper/internal/artifact"
	"github.com/haatos/runkeeper/internal/build"
	"github.com/haatos/runkeeper/internal/depgraph"
	"github.com/haatos/runkeeper/internal/store"
)

type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) UpsertRun(ctx context.Context, r *store.Run) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRunStore) ReadRun(ctx context.Context, job string, number int64) (*store.Run, error) {
	args := m.Called(ctx, job, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockRunStore) ListJobRuns(ctx context.Context, job string) ([]store.Run, error) {
	args := m.Called(ctx, job)
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockRunStore) ListRuns(ctx context.Context) ([]store.Run, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockRunStore) CountJobRuns(ctx context.Context, job string) (int64, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRunStore) DeleteRun(ctx context.Context, job string, number int64) error {
	args := m.Called(ctx, job, number)
	return args.Error(0)
}

type MockLinkStore struct {
	mock.Mock
}

func (m *MockLinkStore) CreateLink(ctx context.Context, l *store.Link) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *MockLinkStore) ListLinks(ctx context.Context) ([]store.Link, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.Link), args.Error(1)
}

func (m *MockLinkStore) DeleteRecordLinks(ctx context.Context, job string, number int64) error {
	args := m.Called(ctx, job, number)
	return args.Error(0)
}

type testEnv struct {
	svc     *BuildService
	graph   *depgraph.Graph
	dataDir string
}

func newTestEnv(t *testing.T, runs store.RunStore, links store.LinkStore) *testEnv {
	t.Helper()
	dataDir := t.TempDir()
	graph := depgraph.New()
	bus := build.NewBus()
	bus.Register(graph)
	manager := build.NewManager(
		build.NewStoreRegistry(artifact.NewLocalFactory(dataDir)),
		bus,
		build.NewGuard(graph),
	)
	svc := NewBuildService(manager, graph, runs, links, BuildServiceOptions{
		DataDir:      dataDir,
		QueueSize:    3,
		StoreTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(svc.Shutdown)
	return &testEnv{svc: svc, graph: graph, dataDir: dataDir}
}

// blockingStep runs until the build is interrupted.
func blockingStep() StepRunner {
	return StepFunc(func(ctx context.Context, sc *StepContext) error {
		<-ctx.Done()
		return RunCancelError{Message: "interrupted"}
	})
}

func waitForStatus(t *testing.T, r *build.Record, status build.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.Status() == status
	}, 5*time.Second, 5*time.Millisecond)
}

func waitDone(t *testing.T, svc *BuildService, r *build.Record) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := svc.Wait(ctx, r.Job().Name(), r.Number())
	require.NoError(t, err)
}
