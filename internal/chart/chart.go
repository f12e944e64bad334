// Package chart renders the rollup view as a QuickChart.io chart URL and
// a README-ready markdown snippet.
package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bond/tokenash/internal/model"
	"github.com/bond/tokenash/internal/summary"
)

const quickChartURL = "https://quickchart.io/chart"

// Generator builds chart artifacts from a rollup view. It treats the view
// as read-only.
type Generator struct {
	Title      string
	Width      int
	Height     int
	httpClient *http.Client
}

// NewGenerator creates a chart generator with the given title and size.
func NewGenerator(title string, width, height int) *Generator {
	if title == "" {
		title = "Token Consumption"
	}
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 400
	}
	return &Generator{
		Title:  title,
		Width:  width,
		Height: height,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var providerColors = map[model.Provider][2]string{
	model.ProviderOpenAI:    {"rgba(16, 163, 127, 0.7)", "rgba(16, 163, 127, 1)"},
	model.ProviderAnthropic: {"rgba(204, 131, 75, 0.7)", "rgba(204, 131, 75, 1)"},
}

var defaultColors = [2]string{"rgba(100, 100, 100, 0.7)", "rgba(100, 100, 100, 1)"}

// FormatTokens formats large counts with K/M suffixes.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.0fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// titleCase uppercases the first letter of an ASCII provider name.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// shortDate reformats YYYY-MM-DD as MM/DD for axis labels.
func shortDate(date string) string {
	if t, err := model.ParseDate(date); err == nil {
		return t.Format("01/02")
	}
	return date
}

// BuildConfig assembles the Chart.js configuration. Each provider becomes
// a stacked bar dataset; days where a provider has a gap carry a null data
// point so the renderer shows a break, never a fabricated zero.
func (g *Generator) BuildConfig(view summary.RollupView) map[string]any {
	dates := view.Dates()

	labels := make([]any, len(dates))
	dayTotals := make([]int64, len(dates))
	index := make(map[string]int, len(dates))
	for i, d := range dates {
		labels[i] = shortDate(d)
		index[d] = i
	}

	var datasets []any
	for _, series := range view.Series {
		data := make([]any, len(dates))
		for _, p := range series.Points {
			i := index[p.Date]
			data[i] = p.TotalTokens
			dayTotals[i] += p.TotalTokens
		}
		colors, ok := providerColors[series.Provider]
		if !ok {
			colors = defaultColors
		}
		datasets = append(datasets, map[string]any{
			"label":           titleCase(string(series.Provider)),
			"data":            data,
			"backgroundColor": colors[0],
			"borderColor":     colors[1],
			"borderWidth":     1,
		})
	}

	var windowTotal, peak int64
	for _, t := range dayTotals {
		windowTotal += t
		if t > peak {
			peak = t
		}
	}
	var avg int64
	if len(dayTotals) > 0 {
		avg = windowTotal / int64(len(dayTotals))
	}

	title := fmt.Sprintf("%s\nTotal: %s | Avg: %s/day | Peak: %s",
		g.Title, FormatTokens(windowTotal), FormatTokens(avg), FormatTokens(peak))

	return map[string]any{
		"type": "bar",
		"data": map[string]any{
			"labels":   labels,
			"datasets": datasets,
		},
		"options": map[string]any{
			"title": map[string]any{
				"display":  true,
				"text":     title,
				"fontSize": 16,
			},
			"scales": map[string]any{
				"xAxes": []any{map[string]any{"stacked": true}},
				"yAxes": []any{map[string]any{
					"stacked": true,
					"ticks": map[string]any{
						"callback": "function(value) { return value >= 1000 ? (value/1000) + 'K' : value; }",
					},
					"scaleLabel": map[string]any{
						"display":     true,
						"labelString": "Tokens",
					},
				}},
			},
			"legend": map[string]any{
				"display":  len(datasets) > 1,
				"position": "bottom",
			},
			"plugins": map[string]any{
				"datalabels": map[string]any{"display": false},
			},
		},
	}
}

// URL returns the QuickChart render URL for the view.
func (g *Generator) URL(view summary.RollupView) (string, error) {
	config, err := json.Marshal(g.BuildConfig(view))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?c=%s&width=%d&height=%d",
		quickChartURL, url.QueryEscape(string(config)), g.Width, g.Height), nil
}

// Markdown renders the README snippet: chart image, window totals and an
// updated-at footer. Stale providers (those with window gaps covering the
// whole window) are listed so readers know which series lag.
func (g *Generator) Markdown(view summary.RollupView) (string, error) {
	if len(view.Series) == 0 {
		return "<!-- tokenash: no usage data available -->\n", nil
	}

	chartURL, err := g.URL(view)
	if err != nil {
		return "", err
	}

	var windowTotal int64
	var stale []string
	for _, s := range view.Series {
		windowTotal += s.WindowTokens
		if len(s.Points) == 0 {
			stale = append(stale, string(s.Provider))
		}
	}
	var avg int64
	if view.WindowDays > 0 {
		avg = windowTotal / int64(view.WindowDays)
	}

	lines := []string{
		"## 🔥 Token Consumption",
		"",
		fmt.Sprintf("![Token Usage Chart](%s)", chartURL),
		"",
		fmt.Sprintf("> **Total (%dd):** %s tokens | **Daily Avg:** %s tokens",
			view.WindowDays, FormatTokens(windowTotal), FormatTokens(avg)),
		"",
	}
	if len(stale) > 0 {
		lines = append(lines,
			fmt.Sprintf("> ⚠️ No recent data for: %s", strings.Join(stale, ", ")),
			"")
	}
	lines = append(lines,
		fmt.Sprintf("<sub>🔄 Updated: %s UTC | Generated by [tokenash](https://github.com/bond/tokenash)</sub>",
			view.GeneratedAt.UTC().Format("2006-01-02 15:04")),
		"")
	return strings.Join(lines, "\n"), nil
}

// DownloadPNG fetches the rendered chart image and writes it to path.
func (g *Generator) DownloadPNG(ctx context.Context, view summary.RollupView, path string) error {
	chartURL, err := g.URL(view)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chartURL, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chart render failed (status %d)", resp.StatusCode)
	}
	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return os.WriteFile(path, img, 0o644)
}
