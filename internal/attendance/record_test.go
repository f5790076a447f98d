package attendance

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRecord_UnmarshalLegacy(t *testing.T) {
	var days Days
	data := `{"2024-05-01": {"Alice": "09:00:00", "Bob": {"checkin": "09:10:00", "checkout": "17:00:00"}}}`
	if err := json.Unmarshal([]byte(data), &days); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got := days["2024-05-01"]["Alice"]; got != (Record{CheckIn: "09:00:00"}) {
		t.Errorf("legacy record not upgraded: %+v", got)
	}
	if got := days["2024-05-01"]["Bob"]; got != (Record{CheckIn: "09:10:00", CheckOut: "17:00:00"}) {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestRecord_MarshalOmitsMissingCheckout(t *testing.T) {
	data, err := json.Marshal(Record{CheckIn: "09:00:00"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"checkin":"09:00:00"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestRecord_UnmarshalRejectsGarbage(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`[1,2]`), &r); err == nil {
		t.Error("expected error for array record")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-05-01", "2024-05-01", false},
		{" 2024-05-01 ", "2024-05-01", false},
		{"2024-5-1", "", true},
		{"2024-13-01", "", true},
		{"2024-02-30", "", true},
		{"01.05.2024", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Errorf("expected ErrInvalidDate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	if _, err := ParseClock("23:59:59"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"24:00:00", "9:00", "09:00", "noon"} {
		if _, err := ParseClock(bad); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("ParseClock(%q): expected ErrInvalidTime, got %v", bad, err)
		}
	}
}

func TestDateOfClockOf(t *testing.T) {
	ts := time.Date(2024, 5, 1, 7, 3, 9, 0, time.Local)
	if got := DateOf(ts); got != "2024-05-01" {
		t.Errorf("DateOf = %q", got)
	}
	if got := ClockOf(ts); got != "07:03:09" {
		t.Errorf("ClockOf = %q", got)
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  José "); got != "José" {
		t.Errorf("NormalizeName = %q", got)
	}
}

func TestDaysClone(t *testing.T) {
	orig := Days{"2024-05-01": {"Alice": {CheckIn: "09:00:00"}}}
	cp := orig.Clone()
	cp["2024-05-01"]["Alice"] = Record{CheckIn: "10:00:00"}
	if orig["2024-05-01"]["Alice"].CheckIn != "09:00:00" {
		t.Error("Clone must not share inner maps")
	}
}

func TestResult(t *testing.T) {
	if Created.String() != "created" || NoCheckInRecord.String() != "no_checkin_record" {
		t.Error("unexpected result names")
	}
	if !Created.Mutated() || !Completed.Mutated() || AlreadyCheckedIn.Mutated() {
		t.Error("unexpected Mutated values")
	}
	text, _ := SessionComplete.MarshalText()
	if string(text) != "session_complete" {
		t.Errorf("MarshalText = %s", text)
	}
}
