package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/capture"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/jobs"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// SessionsHandler runs capture sessions as background jobs
type SessionsHandler struct {
	config     *config.Config
	ledger     *attendance.Ledger
	recognizer recognition.Recognizer
	jobManager *jobs.Manager
	metrics    *metrics.Metrics
	openSource func(location string) (capture.Source, error)
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(cfg *config.Config, ledger *attendance.Ledger, recognizer recognition.Recognizer, jm *jobs.Manager, m *metrics.Metrics) *SessionsHandler {
	interval := time.Duration(cfg.Camera.IntervalMs) * time.Millisecond
	return &SessionsHandler{
		config:     cfg,
		ledger:     ledger,
		recognizer: recognizer,
		jobManager: jm,
		metrics:    m,
		openSource: func(location string) (capture.Source, error) {
			return capture.Open(location, interval)
		},
	}
}

// StartSessionRequest represents a capture session start request
type StartSessionRequest struct {
	Action string `json:"action"`
	Source string `json:"source"` // defaults to the configured camera
}

// Start opens the frame source and starts a capture session job
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	action, err := attendance.ParseAction(req.Action)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	location := req.Source
	if location == "" {
		location = h.config.Camera.URL
	}
	if location == "" {
		respondError(w, http.StatusBadRequest, "source is required when no camera is configured")
		return
	}

	source, err := h.openSource(location)
	if err != nil {
		slog.Warn("capture source unavailable", "source", sanitizeForLog(location), "error", err)
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	job, err := h.jobManager.SubmitExclusive(constants.JobKindCapture, func(ctx context.Context, job *jobs.Job) (any, error) {
		defer source.Close()
		return h.runSession(ctx, job, source, action)
	})
	if errors.Is(err, jobs.ErrJobActive) {
		_ = source.Close()
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":  "a capture session is already running",
			"job_id": job.ID(),
		})
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID(),
		"status": string(jobs.StatusRunning),
	})
}

func (h *SessionsHandler) runSession(ctx context.Context, job *jobs.Job, source capture.Source, action attendance.Action) (capture.Summary, error) {
	session := attendance.NewSession(h.ledger, action)
	loop := capture.NewLoop(source, h.recognizer, session,
		capture.WithMetrics(h.metrics),
		capture.WithLogger(slog.Default().With("job", job.ID())),
		capture.WithDecisionHandler(func(d attendance.Decision, err error) {
			event := jobs.Event{Type: "decision", Data: d}
			if err != nil {
				event.Type = "decision_error"
				event.Message = err.Error()
			}
			job.SendEvent(event)
		}),
	)
	summary, err := loop.Run(ctx)
	if h.ledger.Unsaved() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if flushErr := h.ledger.Flush(flushCtx); flushErr != nil {
			slog.Error("attendance still unsaved after session", "job", job.ID(), "error", flushErr)
			err = errors.Join(err, flushErr)
		}
	}
	return summary, err
}

// List returns all capture sessions
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := make([]jobs.Info, 0)
	for _, job := range h.jobManager.List() {
		if job.Kind() == constants.JobKindCapture {
			infos = append(infos, job.Info())
		}
	}
	respondJSON(w, http.StatusOK, infos)
}

func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) *jobs.Job {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	job := h.jobManager.Get(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// Status returns the session job state
func (h *SessionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.Info())
}

// Events streams session decisions via SSE
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.jobManager)
}

// Cancel stops a running session
func (h *SessionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
