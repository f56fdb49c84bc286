package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"resalewatch/scraper"

	"github.com/sirupsen/logrus"
)

// Task is one unit of sequential work. Idle tasks do no outside work, so
// the queue runs them without a pause.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	Idle bool
}

// DelayFunc returns the pause to take between two tasks
type DelayFunc func() time.Duration

// JitteredDelay waits base plus a random amount in [0, jitter)
func JitteredDelay(base, jitter time.Duration) DelayFunc {
	return func() time.Duration {
		if jitter <= 0 {
			return base
		}
		return base + rand.N(jitter)
	}
}

// TaskQueue runs tasks strictly one after another with a pause between
// them. A failing or panicking task is logged and the queue moves on.
type TaskQueue struct {
	delay  DelayFunc
	sleep  scraper.SleepFunc
	logger *logrus.Logger
}

func NewTaskQueue(delay DelayFunc, logger *logrus.Logger) *TaskQueue {
	if delay == nil {
		delay = JitteredDelay(0, 0)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TaskQueue{delay: delay, sleep: scraper.SleepContext, logger: logger}
}

// WithSleep overrides how the queue waits (tests)
func (q *TaskQueue) WithSleep(sleep scraper.SleepFunc) *TaskQueue {
	q.sleep = sleep
	return q
}

// Run executes tasks in order, pausing between consecutive non-idle tasks.
// It returns early only when ctx is done. The returned count is the number
// of tasks that failed.
func (q *TaskQueue) Run(ctx context.Context, tasks []Task) (int, error) {
	failed := 0
	worked := false
	for _, task := range tasks {
		if !task.Idle && worked {
			d := q.delay()
			q.logger.WithField("delay", d).Debug("⏳ Waiting before next task")
			if err := q.sleep(ctx, d); err != nil {
				return failed, err
			}
		}
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if !task.Idle {
			worked = true
		}

		if err := q.runOne(ctx, task); err != nil {
			failed++
			q.logger.WithField("task", task.Name).WithError(err).Error("❌ Task failed")
		}
	}
	return failed, nil
}

func (q *TaskQueue) runOne(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task %s: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}
