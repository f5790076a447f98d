// Package jobs runs background work and lets callers follow it: each
// submitted function gets a Job that can be awaited, cancelled and streamed.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Status represents the lifecycle state of a job.
type Status string

// Status constants define the lifecycle states of a job.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Event is a progress notification from a job.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Broadcaster fans events out to listeners. A slow listener misses events
// rather than blocking the job.
type Broadcaster struct {
	listeners []chan Event
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *Broadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes and closes an event listener.
func (b *Broadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *Broadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
		}
	}
}

// Info is the JSON view of a job.
// Info is a serializable snapshot of a job.
type Info struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// Job is a handle on submitted work.
type Job struct {
	Broadcaster

	id          string
	kind        string
	status      Status
	err         error
	result      any
	startedAt   time.Time
	completedAt *time.Time

	stateMu sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// ID returns the job identifier.
func (j *Job) ID() string {
	return j.id
}

// Kind returns the job kind given at submission.
func (j *Job) Kind() string {
	return j.kind
}

// Status returns the current job status.
func (j *Job) Status() Status {
	j.stateMu.RLock()
	defer j.stateMu.RUnlock()
	return j.status
}

// Info returns a snapshot of the job.
func (j *Job) Info() Info {
	j.stateMu.RLock()
	defer j.stateMu.RUnlock()
	info := Info{
		ID:          j.id,
		Kind:        j.kind,
		Status:      j.status,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
		Result:      j.result,
	}
	if j.err != nil {
		info.Error = j.err.Error()
	}
	return info
}

// Cancel asks the job to stop. The job reaches StatusCancelled once its
// function returns.
func (j *Job) Cancel() {
	j.cancel()
	j.SendEvent(Event{Type: "cancelling", Message: "Job cancelled by user"})
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends and returns the job's result.
func (j *Job) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
	}
	j.stateMu.RLock()
	defer j.stateMu.RUnlock()
	return j.result, j.err
}

func (j *Job) finishedAt() (time.Time, bool) {
	j.stateMu.RLock()
	defer j.stateMu.RUnlock()
	if j.completedAt == nil {
		return time.Time{}, false
	}
	return *j.completedAt, true
}

func (j *Job) setRunning() {
	j.stateMu.Lock()
	j.status = StatusRunning
	j.stateMu.Unlock()
	j.SendEvent(Event{Type: "started"})
}

func (j *Job) finish(result any, err error, cancelled bool) {
	now := time.Now()
	j.stateMu.Lock()
	j.result = result
	j.err = err
	j.completedAt = &now
	switch {
	case cancelled:
		j.status = StatusCancelled
	case err != nil:
		j.status = StatusFailed
	default:
		j.status = StatusCompleted
	}
	status := j.status
	j.stateMu.Unlock()

	event := Event{Type: string(status), Data: result}
	if err != nil {
		event.Message = err.Error()
	}
	j.SendEvent(event)
	close(j.done)
}

// Func is the work a job runs. It should return promptly once ctx is done.
type Func func(ctx context.Context, job *Job) (any, error)

// Manager tracks submitted jobs. Finished jobs are forgotten once they are
// older than the retention period or more than MaxFinishedJobs have piled up.
type Manager struct {
	jobs        map[string]*Job
	mu          sync.RWMutex
	logger      *slog.Logger
	retention   time.Duration
	maxFinished int
	now         func() time.Time
}

// Option configures a Manager.
type Option func(m *Manager)

// WithLogger sets the logger for job lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRetention sets how long finished jobs are kept and how many of them at most.
func WithRetention(age time.Duration, maxFinished int) Option {
	return func(m *Manager) {
		m.retention = age
		m.maxFinished = maxFinished
	}
}

// NewManager creates a new job manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		jobs:        make(map[string]*Job),
		logger:      slog.Default(),
		retention:   constants.JobRetentionMinutes * time.Minute,
		maxFinished: constants.MaxFinishedJobs,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ErrJobActive is returned by SubmitExclusive when a job of the same kind is
// still running.
var ErrJobActive = errors.New("a job of this kind is already running")

// Submit starts fn in the background and returns its job.
func (m *Manager) Submit(kind string, fn Func) *Job {
	m.mu.Lock()
	job := m.create(kind)
	m.mu.Unlock()
	m.start(job, fn)
	return job
}

// SubmitExclusive starts fn unless another job of kind is unfinished.
func (m *Manager) SubmitExclusive(kind string, fn Func) (*Job, error) {
	m.mu.Lock()
	for _, j := range m.jobs {
		if j.kind == kind && !j.Status().Terminal() {
			m.mu.Unlock()
			return j, fmt.Errorf("%w: %s", ErrJobActive, j.id)
		}
	}
	job := m.create(kind)
	m.mu.Unlock()
	m.start(job, fn)
	return job, nil
}

// create must be called with m.mu held.
func (m *Manager) create(kind string) *Job {
	m.prune()
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ctx:       ctx,
		cancel:    cancel,
		id:        uuid.NewString(),
		kind:      kind,
		status:    StatusPending,
		startedAt: m.now(),
		done:      make(chan struct{}),
	}
	m.jobs[job.id] = job
	return job
}

func (m *Manager) start(job *Job, fn Func) {
	go func() {
		defer job.cancel()
		job.setRunning()
		m.logger.Info("job started", "id", job.id, "kind", job.kind)

		result, err := fn(job.ctx, job)
		cancelled := job.ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled))
		if cancelled {
			err = nil
		}
		job.finish(result, err, cancelled)
		m.logger.Info("job finished", "id", job.id, "kind", job.kind, "status", job.Status())
	}()
}

// prune drops expired finished jobs, then the oldest finished ones beyond
// maxFinished. Must be called with m.mu held.
func (m *Manager) prune() {
	cutoff := m.now().Add(-m.retention)
	var finished []*Job
	for id, job := range m.jobs {
		at, ok := job.finishedAt()
		if !ok {
			continue
		}
		if at.Before(cutoff) {
			delete(m.jobs, id)
			continue
		}
		finished = append(finished, job)
	}
	if len(finished) <= m.maxFinished {
		return
	}
	sort.Slice(finished, func(a, b int) bool {
		ta, _ := finished[a].finishedAt()
		tb, _ := finished[b].finishedAt()
		return ta.After(tb)
	})
	for _, job := range finished[m.maxFinished:] {
		delete(m.jobs, job.id)
	}
}

// Get retrieves a job by ID, or nil.
func (m *Manager) Get(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Delete forgets a job. A running job is cancelled first.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	job := m.jobs[id]
	delete(m.jobs, id)
	m.mu.Unlock()
	if job != nil && !job.Status().Terminal() {
		job.Cancel()
	}
}

// List returns all jobs, oldest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].startedAt.Before(jobs[b].startedAt) })
	return jobs
}

// CancelAll cancels every unfinished job and waits for them up to ctx.
func (m *Manager) CancelAll(ctx context.Context) {
	for _, job := range m.List() {
		if job.Status().Terminal() {
			continue
		}
		job.Cancel()
		_, _ = job.Wait(ctx)
	}
}
