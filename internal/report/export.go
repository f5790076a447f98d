package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// TableRows returns the export rows: present people first, then absentees,
// each group sorted by name. Absent rows carry "N/A" in every time column.
func (g *Generator) TableRows(r *Report) [][]string {
	rows := make([][]string, 0, len(r.Present)+len(r.Absent))
	for _, p := range r.Present {
		rows = append(rows, []string{p.Name, g.labels.Export.StatusPresent, p.CheckIn, p.CheckOut, p.Duration})
	}
	for _, name := range r.Absent {
		na := constants.DurationNA
		rows = append(rows, []string{name, g.labels.Export.StatusAbsent, na, na, na})
	}
	return rows
}

// SheetTitle returns the worksheet name for date.
func (g *Generator) SheetTitle(date string) string {
	return fmt.Sprintf(g.labels.Export.SheetTitle, date)
}

// WriteXLSX writes the report as a single-sheet workbook to w.
func (g *Generator) WriteXLSX(r *Report, w io.Writer) error {
	f, err := g.workbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Export writes the workbook to dest, or to DefaultPath when dest is empty,
// creating the destination directory. It reports failure instead of
// returning it so an interactive caller can carry on.
func (g *Generator) Export(r *Report, dest string) (string, bool) {
	if dest == "" {
		dest = g.DefaultPath(r.Date)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		g.logger.Error("export failed", "path", dest, "error", err)
		return dest, false
	}

	f, err := g.workbook(r)
	if err != nil {
		g.logger.Error("export failed", "path", dest, "error", err)
		return dest, false
	}
	defer f.Close()

	if err := f.SaveAs(dest); err != nil {
		g.logger.Error("export failed", "path", dest, "error", err)
		return dest, false
	}
	g.logger.Info("report exported", "path", dest, "date", r.Date)
	return dest, true
}

func (g *Generator) workbook(r *Report) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := g.SheetTitle(r.Date)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(g.labels.Export.Columns))
	for i, col := range g.labels.Export.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil && len(header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheet, "A1", last, bold)
	}

	for i, row := range g.TableRows(r) {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "E", 14)
	return f, nil
}
