package build

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_NewRecord(t *testing.T) {
	t.Run("success - numbers increase monotonically", func(t *testing.T) {
		// arrange
		j := NewJob("stuff", JobOptions{})

		// act
		first := j.NewRecord()
		second := j.NewRecord()

		// assert
		assert.Equal(t, int64(1), first.Number())
		assert.Equal(t, int64(2), second.Number())
		assert.Equal(t, "stuff #2", second.String())
		assert.Equal(t, StatusNotStarted, first.Status())
		assert.Equal(t, []*Record{second, first}, j.Records())
	})
	t.Run("success - concurrent creation yields unique numbers", func(t *testing.T) {
		// arrange
		j := NewJob("stuff", JobOptions{})
		var wg sync.WaitGroup
		numbers := make(chan int64, 50)

		// act
		for range 50 {
			wg.Go(func() {
				numbers <- j.NewRecord().Number()
			})
		}
		wg.Wait()
		close(numbers)

		// assert
		seen := make(map[int64]bool)
		for n := range numbers {
			assert.False(t, seen[n])
			seen[n] = true
		}
		assert.Len(t, seen, 50)
	})
	t.Run("success - restored records keep numbering after the highest", func(t *testing.T) {
		// arrange
		j := NewJob("stuff", JobOptions{})
		created := time.Now().UTC()

		// act
		j.RestoreRecord(7, ResultFailure, true, created, nil, nil)
		j.RestoreRecord(3, ResultSuccess, false, created, nil, nil)
		next := j.NewRecord()

		// assert
		assert.Equal(t, int64(8), next.Number())
		records := j.Records()
		require.Len(t, records, 3)
		assert.Equal(t, []int64{8, 7, 3}, []int64{
			records[0].Number(), records[1].Number(), records[2].Number(),
		})
		assert.True(t, records[1].Keep())
		assert.Equal(t, StatusCompleted, records[1].Status())
	})
}

func TestRecord_Start(t *testing.T) {
	t.Run("success - record starts", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		h := &fakeExecutor{id: "e1"}

		// act
		err := r.Start(h)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, StatusRunning, r.Status())
		assert.Equal(t, h, r.Executor())
		assert.NotNil(t, r.StartedOn())
	})
	t.Run("failure - already running", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		require.NoError(t, r.Start(&fakeExecutor{id: "e1"}))

		// act
		err := r.Start(&fakeExecutor{id: "e2"})

		// assert
		var ise *IllegalStateError
		assert.ErrorAs(t, err, &ise)
		assert.ErrorIs(t, err, ErrIllegalState)
		assert.Equal(t, StatusRunning, ise.Status)
		assert.Equal(t, "e1", r.Executor().ID())
	})
	t.Run("failure - already completed", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))

		// act
		err := r.Start(&fakeExecutor{id: "e2"})

		// assert
		assert.ErrorIs(t, err, ErrIllegalState)
		assert.Nil(t, r.Executor())
	})
	t.Run("failure - nil executor", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()

		// act
		err := r.Start(nil)

		// assert
		assert.ErrorIs(t, err, ErrNilExecutor)
		assert.Equal(t, StatusNotStarted, r.Status())
	})
	t.Run("success - only one of many concurrent starts wins", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0

		// act
		for range 20 {
			wg.Go(func() {
				if err := r.Start(&fakeExecutor{id: "e"}); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			})
		}
		wg.Wait()

		// assert
		assert.Equal(t, 1, wins)
	})
}

func TestRecord_Complete(t *testing.T) {
	t.Run("success - executor handle cleared and record finalizing", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		h := &fakeExecutor{id: "e1"}
		require.NoError(t, r.Start(h))

		// act
		got, err := r.complete(ResultUnstable)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, h, got)
		assert.Equal(t, StatusCompleted, r.Status())
		assert.Equal(t, ResultUnstable, r.Result())
		assert.Nil(t, r.Executor())
		assert.NotNil(t, r.EndedOn())
		assert.True(t, r.Finalizing())
		select {
		case <-r.Done():
			t.Fatal("done closed before finish")
		default:
		}
	})
	t.Run("success - finish releases waiters once", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		require.NoError(t, r.Start(&fakeExecutor{id: "e1"}))
		_, err := r.complete(ResultSuccess)
		require.NoError(t, err)

		// act
		r.finish()
		r.finish()

		// assert
		assert.False(t, r.Finalizing())
		assert.NoError(t, r.WaitForCompletion(context.Background()))
	})
	t.Run("failure - not running", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()

		// act
		_, err := r.complete(ResultSuccess)

		// assert
		assert.ErrorIs(t, err, ErrIllegalState)
		assert.Equal(t, StatusNotStarted, r.Status())
	})
}

func TestRecord_Interrupt(t *testing.T) {
	t.Run("success - running record signals its executor", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		h := &fakeExecutor{id: "e1"}
		require.NoError(t, r.Start(h))

		// act
		err := r.Interrupt()

		// assert
		assert.NoError(t, err)
		assert.Equal(t, int32(1), h.interrupted.Load())
		assert.Equal(t, StatusRunning, r.Status())
	})
	t.Run("success - completed record is a no-op", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))

		// act
		err := r.Interrupt()

		// assert
		assert.NoError(t, err)
	})
	t.Run("failure - not started", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()

		// act
		err := r.Interrupt()

		// assert
		assert.ErrorIs(t, err, ErrIllegalState)
	})
}

func TestRecord_WaitForCompletion(t *testing.T) {
	t.Run("failure - times out while running", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		require.NoError(t, r.Start(&fakeExecutor{id: "e1"}))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		// act
		err := r.WaitForCompletion(ctx)

		// assert
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestRecord_MarkKeep(t *testing.T) {
	t.Run("success - idempotent", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))

		// act
		first, err1 := r.MarkKeep()
		second, err2 := r.MarkKeep()

		// assert
		assert.NoError(t, err1)
		assert.NoError(t, err2)
		assert.True(t, first)
		assert.False(t, second)
		assert.True(t, r.Keep())
	})
	t.Run("success - unkeep clears the flag once", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		_, _ = r.MarkKeep()

		// act
		first, _ := r.Unkeep()
		second, _ := r.Unkeep()

		// assert
		assert.True(t, first)
		assert.False(t, second)
		assert.False(t, r.Keep())
	})
	t.Run("failure - running record", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		require.NoError(t, r.Start(&fakeExecutor{id: "e1"}))

		// act
		changed, err := r.MarkKeep()

		// assert
		assert.ErrorIs(t, err, ErrIllegalState)
		assert.False(t, changed)
		assert.False(t, r.Keep())
	})
}

func TestRecord_BindArtifactStore(t *testing.T) {
	t.Run("failure - deleted record refuses a store", func(t *testing.T) {
		// arrange
		m := NewManager(NewStoreRegistry(nil), nil, nil)
		r := completedRecord(NewJob("stuff", JobOptions{}))
		require.NoError(t, m.Delete(context.Background(), r))

		// act
		err := r.BindArtifactStore(&fakeStore{})

		// assert
		assert.ErrorIs(t, err, ErrRecordDeleted)
		assert.Nil(t, r.ArtifactStore())
	})
}

func TestRecord_FullDisplayName(t *testing.T) {
	t.Run("success - follows job renames", func(t *testing.T) {
		// arrange
		j := NewJob("down", JobOptions{})
		r := j.NewRecord()

		// act
		j.SetDisplayName("Down<b>Project")

		// assert
		assert.Equal(t, "Down<b>Project #1", r.FullDisplayName())
		assert.Equal(t, "down #1", r.String())
	})
}

func TestJob_DiscardRecord(t *testing.T) {
	t.Run("success - unstarted record dropped", func(t *testing.T) {
		// arrange
		j := NewJob("stuff", JobOptions{})
		r := j.NewRecord()

		// act
		err := j.DiscardRecord(r)

		// assert
		assert.NoError(t, err)
		assert.Empty(t, j.Records())
		assert.ErrorIs(t, r.Start(&fakeExecutor{id: "e"}), ErrIllegalState)
	})
	t.Run("failure - running record", func(t *testing.T) {
		// arrange
		j := NewJob("stuff", JobOptions{})
		r := j.NewRecord()
		require.NoError(t, r.Start(&fakeExecutor{id: "e"}))

		// act
		err := j.DiscardRecord(r)

		// assert
		assert.ErrorIs(t, err, ErrIllegalState)
		assert.Len(t, j.Records(), 1)
	})
}
