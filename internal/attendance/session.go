package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Action is fixed for a whole capture session.
type Action string

const (
	ActionCheckIn  Action = "check-in"
	ActionCheckOut Action = "check-out"
)

// ParseAction accepts "check-in"/"checkin" and "check-out"/"checkout".
func ParseAction(s string) (Action, error) {
	switch s {
	case "check-in", "checkin":
		return ActionCheckIn, nil
	case "check-out", "checkout":
		return ActionCheckOut, nil
	}
	return "", fmt.Errorf("unknown action %q (expected check-in or check-out)", s)
}

// Outcome says what a session did with one recognized name.
type Outcome string

const (
	OutcomeIgnoredUnknown   Outcome = "ignored_unknown"   // recognizer had no confident match
	OutcomeIgnoredConfirmed Outcome = "ignored_confirmed" // already acted upon this session
	OutcomeSkipped          Outcome = "skipped"           // check-out already on record
	OutcomeApplied          Outcome = "applied"           // ledger transition attempted, see Result
)

// Decision is the result of feeding one recognized name into a Session.
type Decision struct {
	Person    string  `json:"person"`
	Action    Action  `json:"action"`
	Outcome   Outcome `json:"outcome"`
	Result    Result  `json:"result,omitempty"`
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	Confirmed bool    `json:"confirmed"`
}

// Session turns a stream of per-frame recognitions into at most one ledger
// transition per person. A person who has been confirmed stays ignored until
// the session ends, even if they leave the frame and come back.
type Session struct {
	ledger    *Ledger
	action    Action
	now       func() time.Time
	mu        sync.Mutex
	confirmed map[string]struct{}
}

// SessionOption configures a Session.
type SessionOption func(s *Session)

// WithClock overrides the session clock.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession starts a session with an empty confirmed set.
func NewSession(ledger *Ledger, action Action, opts ...SessionOption) *Session {
	s := &Session{
		ledger:    ledger,
		action:    action,
		now:       time.Now,
		confirmed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Action returns the session action.
func (s *Session) Action() Action {
	return s.action
}

// Observe applies the transition rule to one recognized name. The returned
// error is non-nil only when the ledger rejected or failed to persist the
// transition; such names are left unconfirmed so a later frame retries them.
func (s *Session) Observe(ctx context.Context, name string) (Decision, error) {
	now := s.now()
	name = NormalizeName(name)
	d := Decision{
		Person: name,
		Action: s.action,
		Date:   DateOf(now),
		Time:   ClockOf(now),
	}

	if name == "" || name == constants.UnknownPerson {
		d.Outcome = OutcomeIgnoredUnknown
		return d, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.confirmed[name]; ok {
		d.Outcome = OutcomeIgnoredConfirmed
		d.Confirmed = true
		return d, nil
	}

	switch s.action {
	case ActionCheckIn:
		return s.checkIn(ctx, d)
	case ActionCheckOut:
		return s.checkOut(ctx, d)
	}
	return d, fmt.Errorf("unknown action %q", s.action)
}

func (s *Session) checkIn(ctx context.Context, d Decision) (Decision, error) {
	d.Outcome = OutcomeApplied
	result, err := s.ledger.RecordCheckIn(ctx, d.Date, d.Person, d.Time)
	d.Result = result
	if err != nil {
		return d, err
	}
	s.confirm(&d)
	return d, nil
}

func (s *Session) checkOut(ctx context.Context, d Decision) (Decision, error) {
	// A completed record still goes through the ledger while a save is
	// pending, so the retry happens before the person is confirmed.
	if rec, ok := s.ledger.Record(d.Date, d.Person); ok && rec.CheckedOut() && !s.ledger.Unsaved() {
		d.Outcome = OutcomeSkipped
		return d, nil
	}

	d.Outcome = OutcomeApplied
	result, err := s.ledger.RecordCheckOut(ctx, d.Date, d.Person, d.Time)
	d.Result = result
	if err != nil {
		return d, err
	}
	if result == Completed || result == AlreadyCheckedOut {
		s.confirm(&d)
	}
	return d, nil
}

// confirm must be called with s.mu held.
func (s *Session) confirm(d *Decision) {
	s.confirmed[d.Person] = struct{}{}
	d.Confirmed = true
}

// Confirmed returns the names acted upon this session, sorted.
func (s *Session) Confirmed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.confirmed))
	for name := range s.confirmed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
