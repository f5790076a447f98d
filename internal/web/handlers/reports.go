package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportsHandler serves daily attendance reports
type ReportsHandler struct {
	ledger    *attendance.Ledger
	roster    RosterFunc
	generator *report.Generator
	now       func() time.Time
}

// NewReportsHandler creates a new reports handler
func NewReportsHandler(ledger *attendance.Ledger, roster RosterFunc, generator *report.Generator) *ReportsHandler {
	return &ReportsHandler{
		ledger:    ledger,
		roster:    roster,
		generator: generator,
		now:       time.Now,
	}
}

func (h *ReportsHandler) build(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	date, err := dateParam(r, h.now)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return report.Build(date, h.roster(), h.ledger.Records(date)), true
}

// Get returns the report as JSON
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.build(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// Text returns the console rendering of the report
func (h *ReportsHandler) Text(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.build(w, r)
	if !ok {
		return
	}
	text, err := h.generator.RenderText(rep)
	if err != nil {
		slog.Error("render report", "date", rep.Date, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// Export downloads the report as a spreadsheet
func (h *ReportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.build(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.generator.WriteXLSX(rep, &buf); err != nil {
		slog.Error("export report", "date", rep.Date, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to export report")
		return
	}
	name := filepath.Base(h.generator.DefaultPath(rep.Date))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Dates lists the dates with any attendance activity
func (h *ReportsHandler) Dates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"dates": h.ledger.Dates()})
}
