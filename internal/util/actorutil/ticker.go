package actorutil

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
)

// QuartzTicker sends a message to an actor on a fixed interval. Ticks are
// fire and forget: a slow receiver gets them queued in its mailbox.
type QuartzTicker struct {
	scheduler quartz.Scheduler
	cancel    context.CancelFunc
	key       *quartz.JobKey
}

// StartQuartzTicker schedules msg to be sent to pid every interval until
// Stop is called. The first tick is sent one interval after start.
func StartQuartzTicker(root *actor.RootContext, pid *actor.PID, name string, interval time.Duration, msg func() any) (*QuartzTicker, error) {
	scheduler := quartz.NewStdScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	tick := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(pid, msg())
		return true, nil
	})
	key := quartz.NewJobKey(name)
	if err := scheduler.ScheduleJob(quartz.NewJobDetail(tick, key), quartz.NewSimpleTrigger(interval)); err != nil {
		cancel()
		return nil, err
	}
	return &QuartzTicker{
		scheduler: scheduler,
		cancel:    cancel,
		key:       key,
	}, nil
}

func (t *QuartzTicker) Stop() {
	if t == nil {
		return
	}
	_ = t.scheduler.DeleteJob(t.key)
	t.scheduler.Stop()
	t.cancel()
}
