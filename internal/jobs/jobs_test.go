package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubmit_Completes(t *testing.T) {
	m := newTestManager()
	job := m.Submit("test", func(ctx context.Context, job *Job) (any, error) {
		job.SendEvent(Event{Type: "progress"})
		return 42, nil
	})

	result, err := job.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %v", result)
	}
	if job.Status() != StatusCompleted {
		t.Errorf("expected completed, got %s", job.Status())
	}
	info := job.Info()
	if info.CompletedAt == nil || info.Kind != "test" || info.ID == "" {
		t.Errorf("unexpected info %+v", info)
	}
	if m.Get(job.ID()) != job {
		t.Error("job not retrievable by ID")
	}
}

func TestSubmit_Fails(t *testing.T) {
	m := newTestManager()
	boom := errors.New("boom")
	job := m.Submit("test", func(ctx context.Context, job *Job) (any, error) {
		return nil, boom
	})

	if _, err := job.Wait(waitCtx(t)); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if job.Status() != StatusFailed || job.Info().Error != "boom" {
		t.Errorf("unexpected info %+v", job.Info())
	}
}

func TestCancel(t *testing.T) {
	m := newTestManager()
	started := make(chan struct{})
	job := m.Submit("capture", func(ctx context.Context, job *Job) (any, error) {
		close(started)
		<-ctx.Done()
		return "partial", ctx.Err()
	})

	<-started
	listener := job.AddListener()
	job.Cancel()

	result, err := job.Wait(waitCtx(t))
	if err != nil {
		t.Errorf("cancelled job should not report an error, got %v", err)
	}
	if result != "partial" {
		t.Errorf("expected partial result, got %v", result)
	}
	if job.Status() != StatusCancelled {
		t.Errorf("expected cancelled, got %s", job.Status())
	}

	var types []string
	for len(listener) > 0 {
		types = append(types, (<-listener).Type)
	}
	if len(types) == 0 || types[len(types)-1] != "cancelled" {
		t.Errorf("expected final cancelled event, got %v", types)
	}
}

func TestSubmitExclusive(t *testing.T) {
	m := newTestManager()
	release := make(chan struct{})
	first, err := m.SubmitExclusive("capture", func(ctx context.Context, job *Job) (any, error) {
		<-release
		return nil, nil
	})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	active, err := m.SubmitExclusive("capture", func(ctx context.Context, job *Job) (any, error) { return nil, nil })
	if !errors.Is(err, ErrJobActive) || active != first {
		t.Errorf("expected ErrJobActive with the running job, got %v, %v", active, err)
	}

	if _, err := m.SubmitExclusive("report", func(ctx context.Context, job *Job) (any, error) { return nil, nil }); err != nil {
		t.Errorf("other kinds must not be blocked: %v", err)
	}

	close(release)
	if _, err := first.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SubmitExclusive("capture", func(ctx context.Context, job *Job) (any, error) { return nil, nil }); err != nil {
		t.Errorf("expected submit after completion to succeed: %v", err)
	}
}

func TestWait_ContextExpires(t *testing.T) {
	m := newTestManager()
	job := m.Submit("slow", func(ctx context.Context, job *Job) (any, error) {
		<-ctx.Done()
		return nil, nil
	})
	defer job.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := job.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestListDeleteCancelAll(t *testing.T) {
	m := newTestManager()
	a := m.Submit("a", func(ctx context.Context, job *Job) (any, error) { return nil, nil })
	b := m.Submit("b", func(ctx context.Context, job *Job) (any, error) {
		<-ctx.Done()
		return nil, nil
	})
	if _, err := a.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if len(m.List()) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(m.List()))
	}

	m.CancelAll(waitCtx(t))
	if b.Status() != StatusCancelled {
		t.Errorf("expected b cancelled, got %s", b.Status())
	}

	m.Delete(a.ID())
	if m.Get(a.ID()) != nil || len(m.List()) != 1 {
		t.Error("expected a to be deleted")
	}
}

func TestBroadcaster(t *testing.T) {
	var b Broadcaster
	ch := b.AddListener()
	b.SendEvent(Event{Type: "x"})
	if ev := <-ch; ev.Type != "x" {
		t.Errorf("unexpected event %+v", ev)
	}
	b.RemoveListener(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel closed")
	}
	b.SendEvent(Event{Type: "dropped"})
}

func TestPruneFinishedJobs(t *testing.T) {
	m := NewManager(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetention(time.Hour, 2),
	)
	quick := func(ctx context.Context, job *Job) (any, error) { return nil, nil }

	var finished []*Job
	for range 3 {
		job := m.Submit("test", quick)
		if _, err := job.Wait(waitCtx(t)); err != nil {
			t.Fatal(err)
		}
		finished = append(finished, job)
		time.Sleep(2 * time.Millisecond)
	}

	release := make(chan struct{})
	running := m.Submit("test", func(ctx context.Context, job *Job) (any, error) {
		<-release
		return nil, nil
	})
	t.Cleanup(func() { close(release) })

	// Three finished jobs, cap two: the oldest goes.
	if m.Get(finished[0].ID()) != nil {
		t.Error("expected the oldest finished job to be pruned")
	}
	if m.Get(finished[1].ID()) == nil || m.Get(finished[2].ID()) == nil {
		t.Error("expected the newest finished jobs to be kept")
	}

	// Past the retention period every finished job goes, running ones stay.
	m.mu.Lock()
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	m.mu.Unlock()
	m.Submit("test", quick)

	if m.Get(finished[1].ID()) != nil || m.Get(finished[2].ID()) != nil {
		t.Error("expected expired jobs to be pruned")
	}
	if m.Get(running.ID()) == nil {
		t.Error("a running job must never be pruned")
	}
}
