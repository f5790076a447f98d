package attendance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

const day = "2024-05-01"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type LedgerSuite struct {
	suite.Suite
	ctx     context.Context
	store   *mock.MockLedgerStore
	metrics *metrics.Metrics
	ledger  *attendance.Ledger
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = mock.NewMockLedgerStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.ledger = attendance.Open(s.ctx, s.store,
		attendance.WithLogger(discardLogger()),
		attendance.WithMetrics(s.metrics))
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) TestCheckIn() {
	s.Run("creates record and persists it", func() {
		result, err := s.ledger.RecordCheckIn(s.ctx, day, "Alice", "09:00:00")
		s.Require().NoError(err)
		s.Equal(attendance.Created, result)
		s.Equal(attendance.Record{CheckIn: "09:00:00"}, s.store.Stored()[day]["Alice"])
		s.Equal(1, s.store.Saves())
	})

	s.Run("second check-in keeps first time", func() {
		result, err := s.ledger.RecordCheckIn(s.ctx, day, "Alice", "09:30:00")
		s.Require().NoError(err)
		s.Equal(attendance.AlreadyCheckedIn, result)
		rec, ok := s.ledger.Record(day, "Alice")
		s.True(ok)
		s.Equal("09:00:00", rec.CheckIn)
		s.Equal(1, s.store.Saves(), "unchanged ledger must not be written")
	})

	s.Run("check-in after check-out reports complete session", func() {
		_, err := s.ledger.RecordCheckOut(s.ctx, day, "Alice", "17:00:00")
		s.Require().NoError(err)

		result, err := s.ledger.RecordCheckIn(s.ctx, day, "Alice", "18:00:00")
		s.Require().NoError(err)
		s.Equal(attendance.SessionComplete, result)
		rec, _ := s.ledger.Record(day, "Alice")
		s.Equal(attendance.Record{CheckIn: "09:00:00", CheckOut: "17:00:00"}, rec)
	})
}

func (s *LedgerSuite) TestCheckOut() {
	s.Run("without check-in does nothing", func() {
		result, err := s.ledger.RecordCheckOut(s.ctx, day, "Bob", "17:00:00")
		s.Require().NoError(err)
		s.Equal(attendance.NoCheckInRecord, result)
		_, ok := s.ledger.Record(day, "Bob")
		s.False(ok)
		s.Equal(0, s.store.Saves())
	})

	s.Run("completes open record once", func() {
		_, err := s.ledger.RecordCheckIn(s.ctx, day, "Bob", "09:15:00")
		s.Require().NoError(err)

		result, err := s.ledger.RecordCheckOut(s.ctx, day, "Bob", "17:00:00")
		s.Require().NoError(err)
		s.Equal(attendance.Completed, result)

		result, err = s.ledger.RecordCheckOut(s.ctx, day, "Bob", "18:00:00")
		s.Require().NoError(err)
		s.Equal(attendance.AlreadyCheckedOut, result)

		rec, _ := s.ledger.Record(day, "Bob")
		s.Equal("17:00:00", rec.CheckOut)
	})
}

func (s *LedgerSuite) TestValidation() {
	s.Run("rejects malformed date", func() {
		_, err := s.ledger.RecordCheckIn(s.ctx, "01/05/2024", "Alice", "09:00:00")
		s.ErrorIs(err, attendance.ErrInvalidDate)
	})

	s.Run("rejects malformed time", func() {
		_, err := s.ledger.RecordCheckOut(s.ctx, day, "Alice", "9am")
		s.ErrorIs(err, attendance.ErrInvalidTime)
	})

	s.Run("rejects empty person", func() {
		_, err := s.ledger.RecordCheckIn(s.ctx, day, "   ", "09:00:00")
		s.ErrorIs(err, attendance.ErrEmptyPerson)
	})

	s.Run("normalizes names", func() {
		_, err := s.ledger.RecordCheckIn(s.ctx, day, " Zoe\u0308 ", "09:00:00")
		s.Require().NoError(err)
		_, ok := s.ledger.Record(day, "Zo\u00eb")
		s.True(ok)
	})
}

func (s *LedgerSuite) TestStorageFailure() {
	s.store.SaveError = errors.New("disk full")

	result, err := s.ledger.RecordCheckIn(s.ctx, day, "Carol", "10:00:00")
	s.Equal(attendance.Created, result)

	var writeErr *attendance.StorageWriteError
	s.Require().ErrorAs(err, &writeErr)
	s.Equal("Carol", writeErr.Person)
	s.Equal(day, writeErr.Date)

	// The mutation stays in memory and reaches the store on the next flush.
	_, ok := s.ledger.Record(day, "Carol")
	s.True(ok)
	s.InDelta(1, testutil.ToFloat64(s.metrics.StorageFailures), 0)

	s.store.SaveError = nil
	s.Require().NoError(s.ledger.Flush(s.ctx))
	s.Contains(s.store.Stored()[day], "Carol")
}

func (s *LedgerSuite) TestStorageFailureRetriedByNextCall() {
	s.store.SaveError = errors.New("disk full")
	_, err := s.ledger.RecordCheckIn(s.ctx, day, "Carol", "10:00:00")
	s.Require().Error(err)
	s.True(s.ledger.Unsaved())

	s.Run("no-op transition fails while storage is down", func() {
		result, err := s.ledger.RecordCheckIn(s.ctx, day, "Carol", "10:05:00")
		s.Equal(attendance.AlreadyCheckedIn, result)
		var writeErr *attendance.StorageWriteError
		s.ErrorAs(err, &writeErr)
		s.Equal(0, s.store.Saves())
	})

	s.Run("no-op transition persists once storage is back", func() {
		s.store.SaveError = nil
		result, err := s.ledger.RecordCheckOut(s.ctx, day, "Nobody", "10:10:00")
		s.Require().NoError(err)
		s.Equal(attendance.NoCheckInRecord, result)
		s.Equal(1, s.store.Saves())
		s.Contains(s.store.Stored()[day], "Carol")
		s.False(s.ledger.Unsaved())
	})

	s.Run("clean ledger is not rewritten", func() {
		_, err := s.ledger.RecordCheckIn(s.ctx, day, "Carol", "10:15:00")
		s.Require().NoError(err)
		s.Equal(1, s.store.Saves())
	})
}

func (s *LedgerSuite) TestConcurrentMutations() {
	people := []string{"Alice", "Bob", "Carol", "Dave", "Erin", "Frank", "Grace", "Heidi"}
	const attempts = 5

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		created   = make(map[string]int)
		completed = make(map[string]int)
		errs      []error
	)
	for _, person := range people {
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				in, err := s.ledger.RecordCheckIn(s.ctx, day, person, "09:00:00")
				out, outErr := s.ledger.RecordCheckOut(s.ctx, day, person, "17:00:00")

				mu.Lock()
				defer mu.Unlock()
				if err != nil || outErr != nil {
					errs = append(errs, errors.Join(err, outErr))
					return
				}
				if in == attendance.Created {
					created[person]++
				}
				if out == attendance.Completed {
					completed[person]++
				}
			}()
		}
	}
	wg.Wait()

	s.Require().Empty(errs)
	stored := s.store.Stored()[day]
	s.Len(stored, len(people))
	for _, person := range people {
		s.Equal(1, created[person], "check-ins created for %s", person)
		s.Equal(1, completed[person], "check-outs completed for %s", person)
		s.Equal(attendance.Record{CheckIn: "09:00:00", CheckOut: "17:00:00"}, stored[person])
	}
	s.Equal(2*len(people), s.store.Saves())
}

func (s *LedgerSuite) TestMetrics() {
	_, _ = s.ledger.RecordCheckIn(s.ctx, day, "Alice", "09:00:00")
	_, _ = s.ledger.RecordCheckIn(s.ctx, day, "Alice", "09:01:00")
	_, _ = s.ledger.RecordCheckOut(s.ctx, day, "Dave", "17:00:00")

	s.InDelta(1, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("check-in", "created")), 0)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("check-in", "already_checked_in")), 0)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("check-out", "no_checkin_record")), 0)
}

func (s *LedgerSuite) TestQueries() {
	_, _ = s.ledger.RecordCheckIn(s.ctx, "2024-05-02", "Bob", "08:00:00")
	_, _ = s.ledger.RecordCheckIn(s.ctx, day, "Alice", "09:00:00")

	s.Equal([]string{day, "2024-05-02"}, s.ledger.Dates())
	s.Empty(s.ledger.Records("2023-01-01"))

	records := s.ledger.Records(day)
	records["Mallory"] = attendance.Record{CheckIn: "00:00:00"}
	_, ok := s.ledger.Record(day, "Mallory")
	s.False(ok, "Records must return a copy")

	snap := s.ledger.Snapshot()
	delete(snap, day)
	s.Len(s.ledger.Dates(), 2)
}

func TestOpen_LoadFailureStartsEmpty(t *testing.T) {
	store := mock.NewMockLedgerStore()
	store.LoadError = errors.New("permission denied")

	ledger := attendance.Open(context.Background(), store, attendance.WithLogger(discardLogger()))
	if dates := ledger.Dates(); len(dates) != 0 {
		t.Errorf("expected empty ledger, got %v", dates)
	}

	result, err := ledger.RecordCheckIn(context.Background(), day, "Alice", "09:00:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != attendance.Created {
		t.Errorf("expected created, got %s", result)
	}
}

func TestOpen_SeededLedger(t *testing.T) {
	store := mock.NewMockLedgerStore()
	store.Seed(attendance.Days{day: {"Alice": {CheckIn: "09:00:00"}}})

	ledger := attendance.Open(context.Background(), store)
	rec, ok := ledger.Record(day, "Alice")
	if !ok || rec.CheckIn != "09:00:00" {
		t.Errorf("expected seeded record, got %+v (found=%v)", rec, ok)
	}
}

func TestOpen_NormalizesStoredNames(t *testing.T) {
	nfc := "Nguy\u1ec5n"
	nfd := norm.NFD.String(nfc)
	if nfd == nfc {
		t.Fatal("test name must have a distinct decomposed form")
	}

	store := mock.NewMockLedgerStore()
	store.Seed(attendance.Days{day: {
		nfd:   {CheckIn: "08:00:00"},
		nfc:   {CheckIn: "08:30:00", CheckOut: "16:00:00"},
		"Bob": {CheckIn: "09:00:00"},
	}})
	ledger := attendance.Open(context.Background(), store, attendance.WithLogger(discardLogger()))

	records := ledger.Records(day)
	if len(records) != 2 {
		t.Fatalf("expected decomposed and composed names to merge, got %v", records)
	}
	want := attendance.Record{CheckIn: "08:00:00", CheckOut: "16:00:00"}
	if records[nfc] != want {
		t.Errorf("expected merged record %+v, got %+v", want, records[nfc])
	}

	result, err := ledger.RecordCheckIn(context.Background(), day, nfd, "09:00:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != attendance.SessionComplete {
		t.Errorf("expected session_complete, got %s", result)
	}
	if len(ledger.Records(day)) != 2 {
		t.Errorf("check-in with a decomposed name created a second record")
	}
	if store.Saves() != 0 {
		t.Errorf("loading must not rewrite storage, got %d saves", store.Saves())
	}
}
