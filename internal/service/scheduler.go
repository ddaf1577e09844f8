package service

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
)

// NewScheduler creates the scheduler for periodic maintenance jobs. Job
// times are evaluated in UTC.
func NewScheduler() (gocron.Scheduler, error) {
	return gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(schedulerLogger{entry: log.WithField("component", "scheduler")}),
	)
}

// schedulerLogger routes gocron's key/value logging into logrus.
type schedulerLogger struct {
	entry *log.Entry
}

func (l schedulerLogger) Debug(msg string, args ...any) { l.entry.WithFields(fieldsOf(args)).Debug(msg) }
func (l schedulerLogger) Info(msg string, args ...any)  { l.entry.WithFields(fieldsOf(args)).Info(msg) }
func (l schedulerLogger) Warn(msg string, args ...any)  { l.entry.WithFields(fieldsOf(args)).Warn(msg) }
func (l schedulerLogger) Error(msg string, args ...any) { l.entry.WithFields(fieldsOf(args)).Error(msg) }

func fieldsOf(args []any) log.Fields {
	fields := make(log.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 == len(args) {
			fields["arg"] = args[i]
			break
		}
		fields[key] = args[i+1]
	}
	return fields
}
