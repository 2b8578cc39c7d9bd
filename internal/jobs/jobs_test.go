package jobs

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestRegisterValidation(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	run := func(context.Context) error { return nil }

	if err := r.Register("", Job{Trigger: TriggerAppStart, Run: run}); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob for empty name, got %v", err)
	}
	if err := r.Register("seed", Job{Run: run}); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob for empty trigger, got %v", err)
	}
	if err := r.Register("seed", Job{Trigger: TriggerAppStart}); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob for nil run, got %v", err)
	}
	if err := r.Register("seed", Job{Trigger: TriggerAppStart, Run: run}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("seed", Job{Trigger: TriggerAppStart, Run: run}); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestRunJobsWithoutJobs(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	ran, err := r.RunJobs(context.Background(), TriggerAppStart)
	if err != nil || ran {
		t.Fatalf("expected (false, nil), got (%v, %v)", ran, err)
	}
}

func TestRunJobsFiltersByTriggerInNameOrder(t *testing.T) {
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	r := NewRunner(zaptest.NewLogger(t))
	_ = r.Register("b-second", Job{Trigger: TriggerAppStart, Run: record("b-second")})
	_ = r.Register("a-first", Job{Trigger: TriggerAppStart, Run: record("a-first")})
	_ = r.Register("other", Job{Trigger: "nightly", Run: record("other")})

	ran, err := r.RunJobs(context.Background(), TriggerAppStart)
	if err != nil || !ran {
		t.Fatalf("expected (true, nil), got (%v, %v)", ran, err)
	}
	if want := []string{"a-first", "b-second"}; !slices.Equal(order, want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
}

func TestRunJobsStopsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	var observed []string
	r := NewRunner(zaptest.NewLogger(t), WithObserver(func(name string, err error, _ time.Duration) {
		observed = append(observed, name)
	}))

	calledLast := false
	_ = r.Register("a", Job{Trigger: TriggerAppStart, Run: func(context.Context) error { return boom }})
	_ = r.Register("b", Job{Trigger: TriggerAppStart, Run: func(context.Context) error {
		calledLast = true
		return nil
	}})

	_, err := r.RunJobs(context.Background(), TriggerAppStart)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calledLast {
		t.Fatalf("expected run to stop after failure")
	}
	if !slices.Equal(observed, []string{"a"}) {
		t.Fatalf("unexpected observations %v", observed)
	}
}

func TestStartSchedulesCronJobs(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))

	var once sync.Once
	fired := make(chan struct{})
	_ = r.Register("tick", Job{Trigger: CronPrefix + "@every 1s", Run: func(context.Context) error {
		once.Do(func() { close(fired) })
		return nil
	}})

	if err := r.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer r.Stop(context.Background())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected cron job to fire")
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	_ = r.Register("bad", Job{Trigger: CronPrefix + "not a spec", Run: func(context.Context) error { return nil }})

	if err := r.Start(); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	r.Stop(context.Background())
}

func TestStopCancelsRunningCronJobs(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))

	var once sync.Once
	started := make(chan struct{})
	result := make(chan error, 1)
	_ = r.Register("wait", Job{Trigger: CronPrefix + "@every 1s", Run: func(ctx context.Context) error {
		first := false
		once.Do(func() {
			first = true
			close(started)
		})
		<-ctx.Done()
		if first {
			result <- ctx.Err()
		}
		return ctx.Err()
	}})

	if err := r.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		r.Stop(context.Background())
		t.Fatalf("expected cron job to start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	begin := time.Now()
	r.Stop(ctx)

	if ctx.Err() != nil || time.Since(begin) > 2*time.Second {
		t.Fatalf("expected Stop to return once the job was cancelled, took %v", time.Since(begin))
	}
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected job context to be cancelled, got %v", err)
		}
	default:
		t.Fatalf("expected job to return before Stop")
	}
}
