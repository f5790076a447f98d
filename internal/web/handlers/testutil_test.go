package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/jobs"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/registry"
	"github.com/kozaktomas/face-attendance/internal/report"
)

// fixture wires the services behind the handlers on top of temp files and fakes.
type fixture struct {
	config    *config.Config
	store     *mock.MockLedgerStore
	ledger    *attendance.Ledger
	registry  *registry.Registry
	gallery   *recognition.Gallery
	index     *recognition.Index
	generator *report.Generator
	jobs      *jobs.Manager
	detector  *fakeDetector
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, seed attendance.Days) *fixture {
	t.Helper()
	dir := t.TempDir()

	store := mock.NewMockLedgerStore()
	if seed != nil {
		store.Seed(seed)
	}
	reg, err := registry.Open(filepath.Join(dir, "user_info.json"), registry.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	gen, err := report.NewGenerator(config.DefaultLabels(), filepath.Join(dir, "reports"), report.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	detector := &fakeDetector{embedding: []float32{1, 0, 0}}
	gallery := recognition.NewGallery(filepath.Join(dir, "photo"), filepath.Join(dir, "face_encodings.gob"), detector,
		recognition.WithGalleryLogger(quietLogger()))

	return &fixture{
		config: &config.Config{
			Camera: config.CameraConfig{IntervalMs: 1},
			Labels: config.DefaultLabels(),
		},
		store:     store,
		ledger:    attendance.Open(context.Background(), store, attendance.WithLogger(quietLogger())),
		registry:  reg,
		gallery:   gallery,
		index:     recognition.NewIndex(nil),
		generator: gen,
		jobs:      jobs.NewManager(jobs.WithLogger(quietLogger())),
		detector:  detector,
	}
}

func (f *fixture) roster() []string {
	return registry.Roster(f.registry.Names(), f.gallery.People())
}

// fakeDetector reports one face with a fixed embedding for any non-empty image.
type fakeDetector struct {
	mu        sync.Mutex
	embedding []float32
	noFace    bool
}

func (d *fakeDetector) DetectFaces(ctx context.Context, data []byte) (*recognition.FaceResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.noFace || len(data) == 0 {
		return &recognition.FaceResponse{}, nil
	}
	return &recognition.FaceResponse{
		FacesCount: 1,
		Faces:      []recognition.FaceDetection{{Embedding: d.embedding, Dim: len(d.embedding)}},
	}, nil
}

// fakeRecognizer sees the same people in every frame.
type fakeRecognizer struct {
	names []string
}

func (r fakeRecognizer) Recognize(ctx context.Context, frame []byte) ([]recognition.Detection, error) {
	dets := make([]recognition.Detection, 0, len(r.names))
	for _, name := range r.names {
		dets = append(dets, recognition.Detection{Name: name})
	}
	return dets, nil
}

// frameSource yields n frames, then io.EOF.
type frameSource struct {
	n      int
	closed bool
}

func (s *frameSource) Next(ctx context.Context) ([]byte, error) {
	if s.n == 0 {
		return nil, io.EOF
	}
	s.n--
	return []byte{0xff}, nil
}

func (s *frameSource) Close() error {
	s.closed = true
	return nil
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
