package artifact

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/haatos/runkeeper/internal/build"
)

var (
	ErrNoArtifacts = errors.New("record has no archived artifacts")
	ErrTimeout     = errors.New("artifact store did not respond in time")
)

// IsolatedRoot runs every call against a record's store in its own
// goroutine, so a backend that blocks, including inside Root(), only fails
// the request that reached it.
type IsolatedRoot struct {
	record  *build.Record
	timeout time.Duration
}

func NewIsolatedRoot(r *build.Record, timeout time.Duration) *IsolatedRoot {
	return &IsolatedRoot{record: r, timeout: timeout}
}

func (ir *IsolatedRoot) List(ctx context.Context, dir string) ([]build.Entry, error) {
	return isolate(ctx, ir, "list", func(ctx context.Context, root build.VirtualRoot) ([]build.Entry, error) {
		return root.List(ctx, dir)
	})
}

func (ir *IsolatedRoot) Stat(ctx context.Context, name string) (build.Entry, error) {
	return isolate(ctx, ir, "stat", func(ctx context.Context, root build.VirtualRoot) (build.Entry, error) {
		return root.Stat(ctx, name)
	})
}

func (ir *IsolatedRoot) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return isolate(ctx, ir, "open", func(ctx context.Context, root build.VirtualRoot) (io.ReadCloser, error) {
		return root.Open(ctx, name)
	})
}

type outcome[T any] struct {
	v   T
	err error
}

func isolate[T any](
	ctx context.Context,
	ir *IsolatedRoot,
	op string,
	fn func(context.Context, build.VirtualRoot) (T, error),
) (T, error) {
	var zero T
	s := ir.record.ArtifactStore()
	if s == nil {
		return zero, ErrNoArtifacts
	}
	if ir.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ir.timeout)
		defer cancel()
	}

	// buffered so an abandoned call can still finish and exit
	ch := make(chan outcome[T], 1)
	go func() {
		var o outcome[T]
		defer func() {
			if p := recover(); p != nil {
				o = outcome[T]{err: errors.New("artifact store panicked")}
			}
			ch <- o
		}()
		v, err := fn(ctx, s.Root())
		o = outcome[T]{v: v, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return zero, &build.StoreFailure{Op: op, Record: ir.record.String(), Err: o.err}
		}
		return o.v, nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		go closeLate(ch)
		return zero, &build.StoreFailure{Op: op, Record: ir.record.String(), Err: err}
	}
}

// closeLate releases whatever a timed out call eventually returns.
func closeLate[T any](ch <-chan outcome[T]) {
	o := <-ch
	if c, ok := any(o.v).(io.Closer); ok {
		c.Close()
	}
}
