package chart

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/bond/tokenash/internal/summary"
)

// AsciiPreview renders the rollup window as a terminal plot, one line per
// provider. Gap days are carried forward as the previous value so the plot
// stays continuous; the gap listing below the graph keeps them honest.
func AsciiPreview(view summary.RollupView, width int) string {
	dates := view.Dates()
	if len(dates) == 0 {
		return "no usage data in window\n"
	}
	if width <= 0 {
		width = 60
	}

	index := make(map[string]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	var plots [][]float64
	var legend []string
	for _, series := range view.Series {
		if len(series.Points) == 0 {
			continue
		}
		row := make([]float64, len(dates))
		for _, p := range series.Points {
			row[index[p.Date]] = float64(p.TotalTokens)
		}
		prev := 0.0
		for i := range row {
			if row[i] == 0 {
				row[i] = prev
			}
			prev = row[i]
		}
		plots = append(plots, row)
		legend = append(legend, fmt.Sprintf("%s: %s tokens (%dd)",
			series.Provider, FormatTokens(series.WindowTokens), view.WindowDays))
	}
	if len(plots) == 0 {
		return "no usage data in window\n"
	}

	graph := asciigraph.PlotMany(plots,
		asciigraph.Height(10),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("%s .. %s", dates[0], dates[len(dates)-1])),
	)

	var b strings.Builder
	b.WriteString(graph)
	b.WriteString("\n\n")
	for _, l := range legend {
		b.WriteString("  ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	for _, series := range view.Series {
		if len(series.Gaps) > 0 {
			b.WriteString(fmt.Sprintf("  %s: no data for %d of %d days\n",
				series.Provider, len(series.Gaps), view.WindowDays))
		}
	}
	return b.String()
}
