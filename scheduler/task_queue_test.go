package scheduler

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestTaskQueueRunsInOrderWithDelays(t *testing.T) {
	var slept []time.Duration
	var order []string

	q := NewTaskQueue(func() time.Duration { return 2 * time.Second }, quietLogger()).
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		})

	tasks := []Task{
		{Name: "a", Run: func(context.Context) error { order = append(order, "a"); return nil }},
		{Name: "b", Run: func(context.Context) error { order = append(order, "b"); return errors.New("nope") }},
		{Name: "c", Run: func(context.Context) error { order = append(order, "c"); panic("boom") }},
		{Name: "d", Run: func(context.Context) error { order = append(order, "d"); return nil }},
	}

	failed, err := q.Run(context.Background(), tasks)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 2 {
		t.Errorf("failed = %d, expected 2", failed)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "c", "d"}) {
		t.Errorf("order = %v", order)
	}
	if len(slept) != 3 {
		t.Errorf("expected a pause between each pair of tasks, got %v", slept)
	}
}

func TestTaskQueueSkipsPauseAroundIdleTasks(t *testing.T) {
	slept := 0
	q := NewTaskQueue(JitteredDelay(time.Second, 0), quietLogger()).
		WithSleep(func(context.Context, time.Duration) error {
			slept++
			return nil
		})

	nop := func(context.Context) error { return nil }
	tasks := []Task{
		{Name: "expired-1", Run: nop, Idle: true},
		{Name: "a", Run: nop},
		{Name: "expired-2", Run: nop, Idle: true},
		{Name: "b", Run: nop},
		{Name: "expired-3", Run: nop, Idle: true},
	}
	if _, err := q.Run(context.Background(), tasks); err != nil {
		t.Fatal(err)
	}
	if slept != 1 {
		t.Errorf("expected a single pause between a and b, got %d", slept)
	}
}

func TestTaskQueueStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := 0

	q := NewTaskQueue(JitteredDelay(0, 0), quietLogger())
	tasks := []Task{
		{Name: "a", Run: func(context.Context) error { ran++; cancel(); return nil }},
		{Name: "b", Run: func(context.Context) error { ran++; return nil }},
	}

	_, err := q.Run(ctx, tasks)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ran != 1 {
		t.Errorf("ran = %d, expected 1", ran)
	}
}

func TestJitteredDelay(t *testing.T) {
	d := JitteredDelay(2*time.Second, 3*time.Second)
	for i := 0; i < 100; i++ {
		got := d()
		if got < 2*time.Second || got >= 5*time.Second {
			t.Fatalf("delay %v outside [2s, 5s)", got)
		}
	}
	if got := JitteredDelay(time.Second, 0)(); got != time.Second {
		t.Errorf("zero jitter delay = %v", got)
	}
}
