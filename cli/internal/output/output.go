// Package output formats run results and rollup tables for the terminal.
package output

import (
	"fmt"
	"strings"

	"github.com/bond/tokenash/internal/model"
	"github.com/bond/tokenash/internal/summary"
)

// FormatNumber adds thousand separators to a count.
func FormatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}

// PrintRunSummary prints the outcome of one pipeline run.
func PrintRunSummary(result *model.RunResult) {
	fmt.Printf("Run %s\n", result.RunID)
	fmt.Printf("  inserted:    %d\n", result.Report.Inserted)
	fmt.Printf("  overwritten: %d\n", result.Report.Overwritten)
	if len(result.Report.Rejected) > 0 {
		fmt.Printf("  rejected:    %d\n", len(result.Report.Rejected))
		for _, rej := range result.Report.Rejected {
			fmt.Printf("    %s %s: %s\n", rej.Sample.Provider, rej.Sample.Date, rej.Reason)
		}
	}
	for _, f := range result.Failures {
		fmt.Printf("  ⚠ %s: %s (%v)\n", f.Provider, f.Reason, f.Err)
	}
	if result.PartialFailure() {
		fmt.Println("  completed with partial failures")
	}
}

// PrintRollup prints the per-provider window totals as a table.
func PrintRollup(view summary.RollupView) {
	if len(view.Series) == 0 {
		fmt.Println("No usage data recorded yet.")
		return
	}

	fmt.Printf("%-12s %14s %14s %8s\n", "PROVIDER", "WINDOW", "ALL-TIME", "GAPS")
	for _, s := range view.Series {
		fmt.Printf("%-12s %14s %14s %8d\n",
			s.Provider,
			FormatNumber(s.WindowTokens),
			FormatNumber(s.CumulativeTokens),
			len(s.Gaps))
		if s.CumulativeCost != nil {
			fmt.Printf("%-12s %14s\n", "", "$"+s.CumulativeCost.StringFixed(2))
		}
	}
	fmt.Printf("%-12s %14s\n", "TOTAL", FormatNumber(view.CombinedTotal))
}
