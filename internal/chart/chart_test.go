package chart

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bond/tokenash/internal/model"
	"github.com/bond/tokenash/internal/summary"
)

func testView() summary.RollupView {
	return summary.RollupView{
		WindowDays:  3,
		GeneratedAt: time.Date(2026, 8, 30, 15, 4, 0, 0, time.UTC),
		Series: []summary.Series{
			{
				Provider: model.ProviderAnthropic,
				Points: []summary.Point{
					{Date: "2026-08-29", TotalTokens: 400},
				},
				Gaps:         []string{"2026-08-28", "2026-08-30"},
				WindowTokens: 400,
			},
			{
				Provider: model.ProviderOpenAI,
				Points: []summary.Point{
					{Date: "2026-08-28", TotalTokens: 150},
					{Date: "2026-08-30", TotalTokens: 1_500_000},
				},
				Gaps:         []string{"2026-08-29"},
				WindowTokens: 1_500_150,
			},
		},
	}
}

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1K"},
		{45_200, "45K"},
		{999_999, "1000K"},
		{1_000_000, "1.0M"},
		{2_450_000, "2.5M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTokens(tt.n), "n=%d", tt.n)
	}
}

func TestBuildConfigGapsStayNull(t *testing.T) {
	gen := NewGenerator("Test", 800, 400)
	cfg := gen.BuildConfig(testView())

	data := cfg["data"].(map[string]any)
	labels := data["labels"].([]any)
	assert.Equal(t, []any{"08/28", "08/29", "08/30"}, labels)

	datasets := data["datasets"].([]any)
	require.Len(t, datasets, 2)

	anthropic := datasets[0].(map[string]any)
	assert.Equal(t, "Anthropic", anthropic["label"])
	points := anthropic["data"].([]any)
	require.Len(t, points, 3)
	// Gap days are null, never zero.
	assert.Nil(t, points[0])
	assert.Equal(t, int64(400), points[1])
	assert.Nil(t, points[2])

	openai := datasets[1].(map[string]any)
	assert.Equal(t, "rgba(16, 163, 127, 0.7)", openai["backgroundColor"])
}

func TestBuildConfigTitleTotals(t *testing.T) {
	gen := NewGenerator("Token Consumption", 800, 400)
	cfg := gen.BuildConfig(testView())

	title := cfg["options"].(map[string]any)["title"].(map[string]any)["text"].(string)
	assert.Contains(t, title, "Total: 1.5M")
	assert.Contains(t, title, "Peak: 1.5M")
}

func TestURLEncodesConfig(t *testing.T) {
	gen := NewGenerator("Test", 640, 320)
	u, err := gen.URL(testView())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(u, "https://quickchart.io/chart?c="))
	assert.Contains(t, u, "width=640")
	assert.Contains(t, u, "height=320")
	assert.NotContains(t, u, `"`, "config must be url-encoded")
}

func TestMarkdown(t *testing.T) {
	gen := NewGenerator("Test", 800, 400)
	md, err := gen.Markdown(testView())
	require.NoError(t, err)

	assert.Contains(t, md, "![Token Usage Chart](https://quickchart.io/chart?")
	assert.Contains(t, md, "**Total (3d):**")
	assert.Contains(t, md, "Updated: 2026-08-30 15:04 UTC")
	assert.NotContains(t, md, "No recent data")
}

func TestMarkdownFlagsStaleProviders(t *testing.T) {
	view := testView()
	view.Series[0].Points = nil
	view.Series[0].WindowTokens = 0
	view.Series[0].Gaps = []string{"2026-08-28", "2026-08-29", "2026-08-30"}

	gen := NewGenerator("Test", 800, 400)
	md, err := gen.Markdown(view)
	require.NoError(t, err)
	assert.Contains(t, md, "No recent data for: anthropic")
}

func TestMarkdownEmptyView(t *testing.T) {
	gen := NewGenerator("Test", 800, 400)
	md, err := gen.Markdown(summary.RollupView{WindowDays: 7})
	require.NoError(t, err)
	assert.Contains(t, md, "no usage data")
}

func TestAsciiPreview(t *testing.T) {
	out := AsciiPreview(testView(), 40)
	assert.Contains(t, out, "2026-08-28 .. 2026-08-30")
	assert.Contains(t, out, "openai:")
	assert.Contains(t, out, "anthropic: no data for 2 of 3 days")
}

func TestAsciiPreviewEmpty(t *testing.T) {
	out := AsciiPreview(summary.RollupView{WindowDays: 7}, 40)
	assert.Contains(t, out, "no usage data")
}
