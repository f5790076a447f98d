package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Summary describes a finished capture session.
type Summary struct {
	Action    attendance.Action `json:"action"`
	Frames    int               `json:"frames"`
	Processed int               `json:"processed"`
	Failures  int               `json:"failures"`
	Confirmed []string          `json:"confirmed"`
}

// Loop drives one capture session.
type Loop struct {
	source     Source
	recognizer recognition.Recognizer
	session    *attendance.Session
	logger     *slog.Logger
	metrics    *metrics.Metrics
	onDecision func(attendance.Decision, error)
}

// Option configures a Loop.
type Option func(l *Loop)

// WithLogger sets the logger for frame and recognition failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithMetrics counts processed and skipped frames on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// WithDecisionHandler sets a callback invoked for every decision the session
// makes, including failed ledger writes.
func WithDecisionHandler(fn func(attendance.Decision, error)) Option {
	return func(l *Loop) {
		l.onDecision = fn
	}
}

// NewLoop creates a capture loop.
func NewLoop(source Source, recognizer recognition.Recognizer, session *attendance.Session, opts ...Option) *Loop {
	l := &Loop{
		source:     source,
		recognizer: recognizer,
		session:    session,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run reads frames until the source is exhausted or ctx is cancelled.
// Recognition runs on every other frame. Cancellation is checked once per
// frame. A source failure ends the session with an error wrapping
// ErrSourceUnavailable; recognizer and ledger failures are reported and the
// loop moves on to the next frame.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Action: l.session.Action()}
	err := l.run(ctx, &summary)
	summary.Confirmed = l.session.Confirmed()
	return summary, err
}

func (l *Loop) run(ctx context.Context, summary *Summary) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := l.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		process := summary.Frames%2 == 0
		summary.Frames++
		l.metrics.ObserveFrame(process)
		if !process {
			continue
		}
		summary.Processed++

		detections, err := l.recognizer.Recognize(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			summary.Failures++
			l.logger.Warn("recognition failed", "frame", summary.Frames, "error", err)
			continue
		}

		for _, det := range detections {
			decision, err := l.session.Observe(ctx, det.Name)
			if err != nil {
				summary.Failures++
				l.logger.Error("attendance not recorded", "person", decision.Person, "action", decision.Action, "error", err)
			} else if decision.Outcome == attendance.OutcomeApplied {
				l.logger.Info("attendance decision", "person", decision.Person, "action", decision.Action,
					"result", decision.Result.String(), "time", decision.Time)
			}
			if l.onDecision != nil && decision.Outcome != attendance.OutcomeIgnoredUnknown {
				l.onDecision(decision, err)
			}
		}
	}
}
