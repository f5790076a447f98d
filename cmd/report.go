package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the attendance report of a day",
	Long: `Print who was present (with check-in, check-out and time spent) and
who was absent on a day. Absentees are registered or enrolled people without
a record.

Examples:
  face-attendance report
  face-attendance report --date 2024-05-01`,
	RunE: runReport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the attendance report of a day as a spreadsheet",
	Long: `Write the attendance report of a day to an .xlsx workbook: present people
first, then absentees. An invalid --date falls back to today.

Examples:
  face-attendance export
  face-attendance export --date 2024-05-01 --output may-first.xlsx`,
	RunE: runExport,
}

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List the days with attendance records",
	RunE:  runDates,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(datesCmd)

	reportCmd.Flags().String("date", "", "Day to report, YYYY-MM-DD (default: today)")
	exportCmd.Flags().String("date", "", "Day to export, YYYY-MM-DD (default: today)")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: REPORTS_DIR/attendance_report_<date>.xlsx)")
}

func runReport(cmd *cobra.Command, args []string) error {
	date, err := resolveDate(mustGetString(cmd, "date"), time.Now())
	if err != nil {
		return err
	}

	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.reports.RenderText(report.Build(date, a.roster(), a.ledger.Records(date)))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	now := time.Now()
	date, err := resolveDate(mustGetString(cmd, "date"), now)
	if err != nil {
		date, _ = resolveDate("", now)
		fmt.Fprintf(out, "%v, exporting today (%s) instead\n", err, date)
	}

	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	rep := report.Build(date, a.roster(), a.ledger.Records(date))
	path, ok := a.reports.Export(rep, mustGetString(cmd, "output"))
	if !ok {
		return fmt.Errorf("failed to export report to %s", path)
	}
	fmt.Fprintf(out, "Report for %s exported to %s (%d present, %d absent)\n",
		date, path, len(rep.Present), len(rep.Absent))
	return nil
}

func runDates(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	dates := a.ledger.Dates()
	if len(dates) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No attendance recorded yet.")
		return nil
	}
	for _, date := range dates {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %d people\n", date, len(a.ledger.Records(date)))
	}
	return nil
}
