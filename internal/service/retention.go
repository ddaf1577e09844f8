package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal/build"
)

// RetentionSweeper deletes completed builds beyond each job's keep_last.
// Kept builds, builds protected by a downstream build and the last
// successful build of a job are never deleted.
type RetentionSweeper struct {
	svc     *BuildService
	timeout time.Duration
}

func NewRetentionSweeper(svc *BuildService, timeout time.Duration) *RetentionSweeper {
	return &RetentionSweeper{svc: svc, timeout: timeout}
}

// Schedule registers the sweep on s at the given interval.
func (rs *RetentionSweeper) Schedule(s gocron.Scheduler, interval time.Duration) (gocron.Job, error) {
	return s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), rs.sweepTimeout(interval))
			defer cancel()
			rs.Sweep(ctx)
		}),
		gocron.WithName("retention"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}

func (rs *RetentionSweeper) sweepTimeout(interval time.Duration) time.Duration {
	if rs.timeout > 0 {
		return rs.timeout
	}
	return interval
}

// Sweep runs one retention pass and returns the deleted records.
func (rs *RetentionSweeper) Sweep(ctx context.Context) []*build.Record {
	deleted := make([]*build.Record, 0)
	for _, j := range rs.svc.ListJobs() {
		keepLast := rs.svc.retentionOf(j.Name()).KeepLast
		if keepLast <= 0 {
			continue
		}
		lastSuccessful, _ := j.LastSuccessful()

		completed := 0
		for _, r := range j.Records() {
			if ctx.Err() != nil {
				return deleted
			}
			if r.Status() != build.StatusCompleted {
				continue
			}
			completed++
			if completed <= keepLast || r == lastSuccessful || r.Keep() {
				continue
			}
			if d := rs.svc.CanDelete(r); !d.Allowed {
				log.WithFields(log.Fields{
					"record": r.String(),
					"reason": d.Reason,
				}).Debug("retention skipped build")
				continue
			}
			if err := rs.svc.Delete(ctx, j.Name(), r.Number()); err != nil {
				log.WithError(err).WithField("record", r.String()).Warn("err deleting build during retention")
				continue
			}
			deleted = append(deleted, r)
		}
	}
	if len(deleted) > 0 {
		log.WithField("count", len(deleted)).Info("retention deleted builds")
	}
	return deleted
}
