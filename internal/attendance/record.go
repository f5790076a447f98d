// Package attendance owns the attendance ledger and the rules that mutate it.
//
// The ledger is partitioned by ISO date and keyed by person name. Each person
// gets at most one session per day: a check-in, optionally followed by a
// check-out, after which the record is terminal for that date.
package attendance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"golang.org/x/text/unicode/norm"
)

// Record is one person's attendance on one date.
type Record struct {
	CheckIn  string `json:"checkin,omitempty"`
	CheckOut string `json:"checkout,omitempty"`
}

// CheckedOut reports whether the record is terminal for its date.
func (r Record) CheckedOut() bool {
	return r.CheckOut != ""
}

// UnmarshalJSON accepts both the structured record and the legacy shape,
// a bare check-in time string, which is upgraded to {"checkin": <string>}.
func (r *Record) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var legacy string
		if err := json.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("decoding legacy attendance record: %w", err)
		}
		*r = Record{CheckIn: legacy}
		return nil
	}

	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding attendance record: %w", err)
	}
	*r = Record(p)
	return nil
}

// Days is the whole ledger: ISO date -> person -> record.
type Days map[string]map[string]Record

// Clone returns a deep copy safe to hand out of the ledger lock.
func (d Days) Clone() Days {
	out := make(Days, len(d))
	for date, people := range d {
		cp := make(map[string]Record, len(people))
		for name, rec := range people {
			cp[name] = rec
		}
		out[date] = cp
	}
	return out
}

// ParseDate validates an ISO 8601 calendar date (YYYY-MM-DD) and returns it
// in canonical form.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(constants.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q (expected YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return t.Format(constants.DateLayout), nil
}

// ParseClock validates a time of day in HH:MM:SS form.
func ParseClock(s string) (time.Time, error) {
	t, err := time.Parse(constants.TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (expected HH:MM:SS)", ErrInvalidTime, s)
	}
	return t, nil
}

// DateOf formats t as a ledger date key.
func DateOf(t time.Time) string {
	return t.Format(constants.DateLayout)
}

// ClockOf formats t as a ledger timestamp.
func ClockOf(t time.Time) string {
	return t.Format(constants.TimeLayout)
}

// NormalizeName trims a person name and converts it to Unicode NFC so that
// the same name typed, recognized, or read from a directory compares equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// normalizeNames rekeys every date by NormalizeName. Records whose names
// collapse onto the same key are merged: the earliest check-in and the latest
// check-out win. Empty names are dropped.
func (d Days) normalizeNames() Days {
	out := make(Days, len(d))
	for date, people := range d {
		merged := make(map[string]Record, len(people))
		for name, rec := range people {
			key := NormalizeName(name)
			if key == "" {
				continue
			}
			if prev, ok := merged[key]; ok {
				rec = mergeRecords(prev, rec)
			}
			merged[key] = rec
		}
		out[date] = merged
	}
	return out
}

func mergeRecords(a, b Record) Record {
	out := a
	if out.CheckIn == "" || (b.CheckIn != "" && b.CheckIn < out.CheckIn) {
		out.CheckIn = b.CheckIn
	}
	if b.CheckOut > out.CheckOut {
		out.CheckOut = b.CheckOut
	}
	return out
}
