package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow)
// and descriptors such as @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("refresh: invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// nextDelay returns the duration from now until the next fire time.
func nextDelay(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RunSchedule refreshes the status file at every fire time of sched until
// ctx is cancelled. A failed refresh is logged and the schedule continues.
func RunSchedule(ctx context.Context, sched cron.Schedule, r Refresher, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	for {
		d := nextDelay(sched, time.Now())
		log.WithField("next", time.Now().Add(d).Format(time.RFC3339)).Debug("next scheduled refresh")
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if _, err := r.Refresh(ctx); err != nil {
			log.WithError(err).Error("scheduled refresh failed")
		}
	}
}
