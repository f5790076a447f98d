// Package report derives daily attendance views from the ledger: a plain
// text summary for the console and a spreadsheet export.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"text/template"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

//go:embed templates/report.txt
var templateFS embed.FS

// Row is one present person.
type Row struct {
	Name     string `json:"name"`
	CheckIn  string `json:"checkin"`
	CheckOut string `json:"checkout"`
	Duration string `json:"duration"`
}

// Report is the attendance of one date measured against the roster.
type Report struct {
	Date       string   `json:"date"`
	RosterSize int      `json:"roster_size"`
	Present    []Row    `json:"present"`
	Absent     []string `json:"absent"`
}

// Build assembles the report for date. Present rows cover everyone with a
// record, roster member or not; absentees are roster members without one.
func Build(date string, roster []string, records map[string]attendance.Record) *Report {
	r := &Report{
		Date:       date,
		RosterSize: len(attendance.UniqueNames(roster)),
		Present:    make([]Row, 0, len(records)),
		Absent:     attendance.ComputeAbsentees(roster, records),
	}
	for _, name := range attendance.PresentNames(records) {
		rec := records[name]
		r.Present = append(r.Present, Row{
			Name:     name,
			CheckIn:  orNA(rec.CheckIn),
			CheckOut: orNA(rec.CheckOut),
			Duration: ComputeDuration(rec.CheckIn, rec.CheckOut),
		})
	}
	return r
}

// ComputeDuration returns the time between check-in and check-out as HH:MM:SS.
// It returns "N/A" if either time is missing and "Error" if either is
// malformed or the check-out precedes the check-in.
func ComputeDuration(checkin, checkout string) string {
	if isMissing(checkin) || isMissing(checkout) {
		return constants.DurationNA
	}
	start, err := attendance.ParseClock(checkin)
	if err != nil {
		return constants.DurationError
	}
	end, err := attendance.ParseClock(checkout)
	if err != nil {
		return constants.DurationError
	}
	d := end.Sub(start)
	if d < 0 {
		return constants.DurationError
	}
	return formatDuration(d)
}

func formatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

func isMissing(s string) bool {
	return s == "" || s == constants.DurationNA
}

func orNA(s string) string {
	if s == "" {
		return constants.DurationNA
	}
	return s
}

// Generator renders reports with configured wording.
type Generator struct {
	labels config.Labels
	dir    string
	logger *slog.Logger
	tmpl   *template.Template
}

// Option configures a Generator.
type Option func(g *Generator)

// WithLogger sets the logger used for export failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a report generator writing exports under dir.
func NewGenerator(labels config.Labels, dir string, opts ...Option) (*Generator, error) {
	funcMap := template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}
	tmpl, err := template.New("report.txt").Funcs(funcMap).ParseFS(templateFS, "templates/report.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}

	g := &Generator{
		labels: labels,
		dir:    dir,
		logger: slog.Default(),
		tmpl:   tmpl,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RenderText renders the console report.
func (g *Generator) RenderText(r *Report) (string, error) {
	data := struct {
		Labels config.ReportLabels
		Report *Report
	}{g.labels.Report, r}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// DefaultPath returns the conventional export location for date.
func (g *Generator) DefaultPath(date string) string {
	return filepath.Join(g.dir, fmt.Sprintf(g.labels.Export.FileName, date))
}
