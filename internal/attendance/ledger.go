package attendance

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// Store persists the whole ledger document.
type Store interface {
	// Load returns the persisted ledger, or an empty one if nothing was stored yet.
	Load(ctx context.Context) (Days, error)
	// Save replaces the persisted ledger with days.
	Save(ctx context.Context, days Days) error
}

// Ledger is the sole authority for attendance records. Every mutation is
// written through to the Store before the call returns.
type Ledger struct {
	mu      sync.RWMutex
	days    Days
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	dirty   bool // in-memory state differs from the last successful save
}

// Option configures a Ledger.
type Option func(l *Ledger)

// WithLogger sets the logger used for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics records transitions and storage failures on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// Open loads the ledger from store. A load failure is logged and the ledger
// starts empty; attendance is additive so continuing is preferred over failing.
func Open(ctx context.Context, store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}

	days, err := store.Load(ctx)
	if err != nil {
		readErr := &StorageReadError{Err: err}
		l.logger.Error("attendance ledger unreadable, starting empty", "error", readErr)
		days = nil
	}
	if days == nil {
		days = make(Days)
	}
	// Names written by other tools may be decomposed; storage is only
	// rewritten on the next real mutation.
	l.days = days.normalizeNames()
	return l
}

// RecordCheckIn creates a record for (date, person) unless one exists.
func (l *Ledger) RecordCheckIn(ctx context.Context, date, person, at string) (Result, error) {
	date, person, err := validate(date, person, at)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.days[date][person]; ok {
		result := AlreadyCheckedIn
		if rec.CheckedOut() {
			result = SessionComplete
		}
		l.metrics.ObserveTransition("check-in", result.String())
		return result, l.retrySave(ctx, date, person)
	}

	if l.days[date] == nil {
		l.days[date] = make(map[string]Record)
	}
	l.days[date][person] = Record{CheckIn: at}
	l.metrics.ObserveTransition("check-in", Created.String())

	if err := l.save(ctx, date, person); err != nil {
		return Created, err
	}
	return Created, nil
}

// RecordCheckOut adds a check-out time to an open record for (date, person).
func (l *Ledger) RecordCheckOut(ctx context.Context, date, person, at string) (Result, error) {
	date, person, err := validate(date, person, at)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.days[date][person]
	if !ok {
		l.metrics.ObserveTransition("check-out", NoCheckInRecord.String())
		return NoCheckInRecord, l.retrySave(ctx, date, person)
	}
	if rec.CheckedOut() {
		l.metrics.ObserveTransition("check-out", AlreadyCheckedOut.String())
		return AlreadyCheckedOut, l.retrySave(ctx, date, person)
	}

	rec.CheckOut = at
	l.days[date][person] = rec
	l.metrics.ObserveTransition("check-out", Completed.String())

	if err := l.save(ctx, date, person); err != nil {
		return Completed, err
	}
	return Completed, nil
}

// Records returns a copy of the records for date. Unknown dates yield an empty map.
func (l *Ledger) Records(date string) map[string]Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	people := l.days[date]
	out := make(map[string]Record, len(people))
	for name, rec := range people {
		out[name] = rec
	}
	return out
}

// Record returns the record for one person on date.
func (l *Ledger) Record(date, person string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.days[date][NormalizeName(person)]
	return rec, ok
}

// Dates returns every date with at least one record, oldest first.
func (l *Ledger) Dates() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	dates := make([]string, 0, len(l.days))
	for date, people := range l.days {
		if len(people) > 0 {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates
}

// Snapshot returns a deep copy of the whole ledger.
func (l *Ledger) Snapshot() Days {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.days.Clone()
}

// Unsaved reports whether a mutation is still waiting for a successful save.
func (l *Ledger) Unsaved() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dirty
}

// Flush writes the in-memory ledger to the store. Use it to retry after a
// StorageWriteError.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Save(ctx, l.days); err != nil {
		l.dirty = true
		l.metrics.ObserveStorageFailure()
		return &StorageWriteError{Err: err}
	}
	l.dirty = false
	return nil
}

// save must be called with l.mu held.
func (l *Ledger) save(ctx context.Context, date, person string) error {
	if err := l.store.Save(ctx, l.days); err != nil {
		l.dirty = true
		l.metrics.ObserveStorageFailure()
		l.logger.Error("attendance write failed", "date", date, "person", person, "error", err)
		return &StorageWriteError{Date: date, Person: person, Err: err}
	}
	l.dirty = false
	return nil
}

// retrySave re-saves after an earlier failed write, so a no-op transition
// only succeeds once the ledger is durable. Must be called with l.mu held.
func (l *Ledger) retrySave(ctx context.Context, date, person string) error {
	if !l.dirty {
		return nil
	}
	return l.save(ctx, date, person)
}

func validate(date, person, at string) (string, string, error) {
	date, err := ParseDate(date)
	if err != nil {
		return "", "", err
	}
	person = NormalizeName(person)
	if person == "" {
		return "", "", ErrEmptyPerson
	}
	if _, err := ParseClock(at); err != nil {
		return "", "", err
	}
	return date, person, nil
}
