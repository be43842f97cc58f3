package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"housing-scraper/models"
)

// PrintRunReport formats the aggregate run report for a terminal.
func PrintRunReport(w io.Writer, report *models.RunReport) {
	border := strings.Repeat("═", 62)
	thin := strings.Repeat("─", 62)

	fmt.Fprintf(w, "\n╔%s╗\n", border)
	fmt.Fprintf(w, "║%s║\n", center("SCRAPE RUN REPORT", 62))
	fmt.Fprintf(w, "╚%s╝\n", border)

	fmt.Fprintf(w, "  Run      : %s\n", report.ID)
	fmt.Fprintf(w, "  Started  : %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Duration : %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	fmt.Fprintf(w, "\n  %-18s %-8s %5s %6s %8s %10s %7s\n", "CITY", "STATUS", "PAGES", "NEW", "SKIPPED", "MALFORMED", "STORED")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, c := range report.Cities {
		stored := "-"
		if c.StoredTotal >= 0 {
			stored = fmt.Sprintf("%d", c.StoredTotal)
		}
		fmt.Fprintf(w, "  %-18s %-8s %5d %6d %8d %10d %7s\n",
			truncate(c.City, 18), c.Status, c.Pages, c.New, c.Skipped, c.Malformed, stored)
	}
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  %-18s %-8s %5s %6d %8d %10d\n", "TOTAL", "", "", report.TotalNew(), report.TotalSkipped(), report.TotalMalformed())

	if aborted := report.AbortedCities(); len(aborted) > 0 {
		fmt.Fprintf(w, "\n  ABORTED CITIES (partial results)\n  %s\n", thin)
		for _, c := range aborted {
			fmt.Fprintf(w, "  %-18s after %d page(s): %s\n", truncate(c.City, 18), c.Pages, c.ErrText())
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", border)
}

func center(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	pad := (width - len(runes)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-len(runes)-pad)
}
