package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/capture"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Run a check-in session on the camera",
	Long: `Watch the camera and check in every recognized person who has no record
for today yet. Each person is handled once per session. Stop with Ctrl+C.

Examples:
  # Use the camera from CAMERA_URL
  face-attendance checkin

  # Replay a folder of frames
  face-attendance checkin --source ./frames`,
	RunE: runSessionCommand(attendance.ActionCheckIn),
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Run a check-out session on the camera",
	Long: `Watch the camera and record the check-out time of every recognized person
who checked in today and has not checked out yet. Stop with Ctrl+C.`,
	RunE: runSessionCommand(attendance.ActionCheckOut),
}

func init() {
	for _, c := range []*cobra.Command{checkinCmd, checkoutCmd} {
		rootCmd.AddCommand(c)
		c.Flags().String("source", "", "Frame source: snapshot URL, image directory or image file (default: CAMERA_URL)")
	}
}

func runSessionCommand(action attendance.Action) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		location := mustGetString(cmd, "source")
		if location == "" {
			location = a.cfg.Camera.URL
		}
		if location == "" {
			return errors.New("no frame source: pass --source or set CAMERA_URL")
		}

		out := cmd.OutOrStdout()
		printAttendanceToday(out, a.ledger, action, time.Now())

		index, err := a.loadGallery(ctx)
		if err != nil {
			return err
		}
		if index.Len() == 0 {
			fmt.Fprintln(out, "Warning: the face gallery is empty, everyone will be Unknown")
		}
		recognizer := recognition.NewGalleryRecognizer(
			recognition.NewEmbeddingClient(a.cfg.Embedding.URL), index,
			a.cfg.Recognition.DistanceThreshold, a.cfg.Recognition.FrameMaxSize)

		source, err := capture.Open(location, time.Duration(a.cfg.Camera.IntervalMs)*time.Millisecond)
		if err != nil {
			return fmt.Errorf("cannot open %s: %w", location, err)
		}
		defer source.Close()

		session := attendance.NewSession(a.ledger, action)
		loop := capture.NewLoop(source, recognizer, session,
			capture.WithMetrics(a.metrics),
			capture.WithDecisionHandler(newDecisionPrinter(out).print),
		)

		fmt.Fprintf(out, "Starting %s session on %s. Press Ctrl+C to stop.\n", action, location)
		summary, err := loop.Run(ctx)
		fmt.Fprintf(out, "\nSession finished: %d frames, %d recognized, %d failures\n",
			summary.Frames, summary.Processed, summary.Failures)
		if len(summary.Confirmed) > 0 {
			fmt.Fprintf(out, "Recorded: %s\n", strings.Join(summary.Confirmed, ", "))
		}
		if flushErr := flushLedger(a.ledger); flushErr != nil {
			fmt.Fprintf(out, "Warning: attendance could not be saved: %v\n", flushErr)
			return errors.Join(err, flushErr)
		}
		return err
	}
}

// printAttendanceToday lists who already has the session's action on record.
// flushLedger retries a failed write once the session is over. The session
// context is already cancelled at this point, so it gets its own deadline.
func flushLedger(ledger *attendance.Ledger) error {
	if !ledger.Unsaved() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ledger.Flush(ctx)
}

func printAttendanceToday(out io.Writer, ledger *attendance.Ledger, action attendance.Action, now time.Time) {
	date := attendance.DateOf(now)
	records := ledger.Records(date)

	var done []string
	for _, name := range attendance.PresentNames(records) {
		rec := records[name]
		switch action {
		case attendance.ActionCheckIn:
			done = append(done, fmt.Sprintf("%s (%s)", name, rec.CheckIn))
		case attendance.ActionCheckOut:
			if rec.CheckedOut() {
				done = append(done, fmt.Sprintf("%s (%s)", name, rec.CheckOut))
			}
		}
	}

	verb := "checked in"
	if action == attendance.ActionCheckOut {
		verb = "checked out"
	}
	if len(done) == 0 {
		fmt.Fprintf(out, "Nobody has %s on %s yet.\n", verb, date)
		return
	}
	fmt.Fprintf(out, "Already %s on %s:\n", verb, date)
	for _, line := range done {
		fmt.Fprintf(out, "  - %s\n", line)
	}
}

var resultMessages = map[attendance.Result]string{
	attendance.Created:           "checked in",
	attendance.AlreadyCheckedIn:  "already checked in",
	attendance.SessionComplete:   "already checked in and out today",
	attendance.Completed:         "checked out",
	attendance.AlreadyCheckedOut: "already checked out",
	attendance.NoCheckInRecord:   "has not checked in today",
}

// decisionPrinter writes one line per person and result, so a person who
// stays in front of the camera does not flood the console.
type decisionPrinter struct {
	out  io.Writer
	seen map[string]bool
}

func newDecisionPrinter(out io.Writer) *decisionPrinter {
	return &decisionPrinter{out: out, seen: make(map[string]bool)}
}

func (p *decisionPrinter) print(d attendance.Decision, err error) {
	if err != nil {
		fmt.Fprintf(p.out, "[%s] %s: not recorded: %v\n", d.Time, d.Person, err)
		return
	}
	if d.Outcome != attendance.OutcomeApplied {
		return
	}
	key := d.Person + "/" + d.Result.String()
	if p.seen[key] {
		return
	}
	p.seen[key] = true
	msg, ok := resultMessages[d.Result]
	if !ok {
		msg = d.Result.String()
	}
	fmt.Fprintf(p.out, "[%s] %s: %s\n", d.Time, d.Person, msg)
}
