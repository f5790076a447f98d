package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

type sliceSource struct {
	frames []string
	pos    int
	err    error // returned after frames are exhausted instead of io.EOF
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if s.pos >= len(s.frames) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return []byte(f), nil
}

func (s *sliceSource) Close() error { return nil }

// namesRecognizer treats a frame's bytes as the recognized names.
type namesRecognizer struct {
	calls int
	fail  map[string]bool
}

func (r *namesRecognizer) Recognize(ctx context.Context, frame []byte) ([]recognition.Detection, error) {
	r.calls++
	if r.fail[string(frame)] {
		return nil, errors.New("detector crashed")
	}
	if len(frame) == 0 {
		return nil, nil
	}
	return []recognition.Detection{{Name: string(frame)}}, nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, store *mock.MockLedgerStore, action attendance.Action) (*attendance.Ledger, *attendance.Session) {
	t.Helper()
	ledger := attendance.Open(context.Background(), store, attendance.WithLogger(quiet()))
	clock := func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local) }
	return ledger, attendance.NewSession(ledger, action, attendance.WithClock(clock))
}

func TestLoop_ProcessesEveryOtherFrame(t *testing.T) {
	store := mock.NewMockLedgerStore()
	ledger, sess := newSession(t, store, attendance.ActionCheckIn)
	// Odd positions are skipped, so Bob is never seen.
	src := &sliceSource{frames: []string{"Alice", "Bob", "Unknown", "Bob", "Alice", "Bob"}}
	rec := &namesRecognizer{}
	m := metrics.New(prometheus.NewRegistry())

	var decisions []attendance.Decision
	loop := NewLoop(src, rec, sess,
		WithLogger(quiet()),
		WithMetrics(m),
		WithDecisionHandler(func(d attendance.Decision, err error) { decisions = append(decisions, d) }))

	summary, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Frames != 6 || summary.Processed != 3 || rec.calls != 3 {
		t.Errorf("unexpected counts: %+v, recognizer calls %d", summary, rec.calls)
	}
	if !reflect.DeepEqual(summary.Confirmed, []string{"Alice"}) {
		t.Errorf("unexpected confirmed %v", summary.Confirmed)
	}
	if len(decisions) != 2 || decisions[1].Outcome != attendance.OutcomeIgnoredConfirmed {
		t.Errorf("unexpected decisions %+v", decisions)
	}
	if _, ok := ledger.Record("2024-05-01", "Bob"); ok {
		t.Error("Bob appeared only on skipped frames")
	}
	if got := testutil.ToFloat64(m.Frames.WithLabelValues("false")); got != 3 {
		t.Errorf("expected 3 skipped frames, got %v", got)
	}
}

func TestLoop_SourceFailureEndsSession(t *testing.T) {
	store := mock.NewMockLedgerStore()
	_, sess := newSession(t, store, attendance.ActionCheckIn)
	src := &sliceSource{frames: []string{"Alice"}, err: ErrSourceUnavailable}

	summary, err := NewLoop(src, &namesRecognizer{}, sess, WithLogger(quiet())).Run(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if !reflect.DeepEqual(summary.Confirmed, []string{"Alice"}) {
		t.Errorf("frames before the failure must still count, got %v", summary.Confirmed)
	}
}

func TestLoop_RecognizerFailureContinues(t *testing.T) {
	store := mock.NewMockLedgerStore()
	_, sess := newSession(t, store, attendance.ActionCheckIn)
	src := &sliceSource{frames: []string{"broken", "", "Carol"}}
	rec := &namesRecognizer{fail: map[string]bool{"broken": true}}

	summary, err := NewLoop(src, rec, sess, WithLogger(quiet())).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", summary.Failures)
	}
	if !reflect.DeepEqual(summary.Confirmed, []string{"Carol"}) {
		t.Errorf("unexpected confirmed %v", summary.Confirmed)
	}
}

func TestLoop_StorageFailureReported(t *testing.T) {
	store := mock.NewMockLedgerStore()
	store.SaveError = errors.New("disk full")
	_, sess := newSession(t, store, attendance.ActionCheckIn)
	src := &sliceSource{frames: []string{"Dave"}}

	var gotErr error
	summary, err := NewLoop(src, &namesRecognizer{}, sess,
		WithLogger(quiet()),
		WithDecisionHandler(func(d attendance.Decision, err error) { gotErr = err }),
	).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var writeErr *attendance.StorageWriteError
	if !errors.As(gotErr, &writeErr) {
		t.Errorf("expected StorageWriteError in callback, got %v", gotErr)
	}
	if summary.Failures != 1 || len(summary.Confirmed) != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestLoop_CancelledContext(t *testing.T) {
	store := mock.NewMockLedgerStore()
	_, sess := newSession(t, store, attendance.ActionCheckIn)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewLoop(&sliceSource{frames: []string{"Alice"}}, &namesRecognizer{}, sess, WithLogger(quiet())).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Frames != 0 {
		t.Errorf("expected no frames after cancel, got %d", summary.Frames)
	}
}

func TestOpen_SelectsSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("B"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("A"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open dir failed: %v", err)
	}
	var got []string
	for {
		frame, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, string(frame))
	}
	if !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("expected frames in name order, got %v", got)
	}

	file, err := Open(filepath.Join(dir, "b.jpg"), 0)
	if err != nil {
		t.Fatalf("Open file failed: %v", err)
	}
	if _, ok := file.(*FileSource); !ok {
		t.Errorf("expected FileSource, got %T", file)
	}
	if _, err := file.Next(context.Background()); err != nil {
		t.Errorf("first Next failed: %v", err)
	}
	if _, err := file.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}

	if _, err := Open(filepath.Join(dir, "missing.jpg"), 0); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
	empty := t.TempDir()
	if _, err := Open(empty, 0); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable for empty dir, got %v", err)
	}
}

func TestSnapshotSource(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) > 2 {
			http.Error(w, "camera offline", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer server.Close()

	src, err := Open(server.URL+"/snapshot.jpg", time.Millisecond)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	for i := 0; i < 2; i++ {
		frame, err := src.Next(context.Background())
		if err != nil || string(frame) != "jpeg" {
			t.Fatalf("frame %d: %q, %v", i, frame, err)
		}
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}
