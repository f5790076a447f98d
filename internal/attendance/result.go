package attendance

import (
	"errors"
	"fmt"
)

// Result is the expected outcome of a ledger transition. Callers branch on it;
// none of these values is an error.
type Result int

const (
	// Created means a new record with a check-in time was stored.
	Created Result = iota + 1
	// AlreadyCheckedIn means the person has an open record; nothing changed.
	AlreadyCheckedIn
	// SessionComplete means the person already checked in and out today.
	SessionComplete
	// Completed means a check-out time was added to an open record.
	Completed
	// AlreadyCheckedOut means the record already had a check-out; nothing changed.
	AlreadyCheckedOut
	// NoCheckInRecord means a check-out was attempted without a check-in.
	NoCheckInRecord
)

var resultNames = map[Result]string{
	Created:           "created",
	AlreadyCheckedIn:  "already_checked_in",
	SessionComplete:   "session_complete",
	Completed:         "completed",
	AlreadyCheckedOut: "already_checked_out",
	NoCheckInRecord:   "no_checkin_record",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// MarshalText renders the result by name in JSON payloads.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Mutated reports whether the transition changed the ledger.
func (r Result) Mutated() bool {
	return r == Created || r == Completed
}

var (
	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date format")
	// ErrInvalidTime is returned for timestamps that are not HH:MM:SS.
	ErrInvalidTime = errors.New("invalid time format")
	// ErrEmptyPerson is returned when a transition names nobody.
	ErrEmptyPerson = errors.New("person name is empty")
)

// StorageWriteError reports that a mutation was applied in memory but could not
// be persisted. The mutation is not durable until a later save succeeds.
type StorageWriteError struct {
	Date   string
	Person string
	Err    error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("saving attendance for %s on %s: %v", e.Person, e.Date, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// StorageReadError reports that the persisted ledger could not be loaded.
// The ledger recovers by starting empty.
type StorageReadError struct {
	Err error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("loading attendance ledger: %v", e.Err)
}

func (e *StorageReadError) Unwrap() error {
	return e.Err
}
