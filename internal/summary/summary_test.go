package summary

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bond/tokenash/internal/model"
	"github.com/bond/tokenash/internal/store"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func seededState(t *testing.T) *store.State {
	t.Helper()
	state := store.NewState()
	report := state.Merge([]model.Sample{
		{Provider: model.ProviderOpenAI, Date: "2026-08-20", PromptTokens: 1000, CompletionTokens: 500, FetchedAt: time.Now()},
		{Provider: model.ProviderOpenAI, Date: "2026-08-28", PromptTokens: 100, CompletionTokens: 50, FetchedAt: time.Now()},
		{Provider: model.ProviderOpenAI, Date: "2026-08-30", PromptTokens: 200, CompletionTokens: 100, FetchedAt: time.Now()},
		{Provider: model.ProviderAnthropic, Date: "2026-08-29", PromptTokens: 300, CompletionTokens: 100, FetchedAt: time.Now()},
	})
	require.Empty(t, report.Rejected)
	return state
}

var rollupNow = time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)

func TestRollupWindowAndGaps(t *testing.T) {
	view := Rollup(seededState(t), 3, rollupNow, time.UTC)

	assert.Equal(t, 3, view.WindowDays)
	require.Len(t, view.Series, 2)

	// Providers come out in name order.
	anthropic := view.Series[0]
	openai := view.Series[1]
	assert.Equal(t, model.ProviderAnthropic, anthropic.Provider)
	assert.Equal(t, model.ProviderOpenAI, openai.Provider)

	// Window is 2026-08-28..2026-08-30; the 2026-08-20 record is out.
	require.Len(t, openai.Points, 2)
	assert.Equal(t, "2026-08-28", openai.Points[0].Date)
	assert.Equal(t, "2026-08-30", openai.Points[1].Date)
	assert.Equal(t, []string{"2026-08-29"}, openai.Gaps)
	assert.Equal(t, int64(450), openai.WindowTokens)

	require.Len(t, anthropic.Points, 1)
	assert.Equal(t, []string{"2026-08-28", "2026-08-30"}, anthropic.Gaps)
}

func TestRollupCumulativeTotals(t *testing.T) {
	view := Rollup(seededState(t), 3, rollupNow, time.UTC)

	openai := view.Series[1]
	// Cumulative covers all records, including those outside the window.
	assert.Equal(t, int64(1950), openai.CumulativeTokens)
	assert.Equal(t, int64(400), view.Series[0].CumulativeTokens)
	assert.Equal(t, int64(2350), view.CombinedTotal)
}

func TestRollupNeverZeroFills(t *testing.T) {
	view := Rollup(seededState(t), 7, rollupNow, time.UTC)

	for _, s := range view.Series {
		for _, p := range s.Points {
			assert.Positive(t, p.TotalTokens, "%s %s", s.Provider, p.Date)
		}
		assert.Equal(t, 7, len(s.Points)+len(s.Gaps))
	}
}

func TestRollupDoesNotMutateState(t *testing.T) {
	state := seededState(t)
	before := len(state.Providers[model.ProviderOpenAI].Records)

	Rollup(state, 3, rollupNow, time.UTC)
	Rollup(state, 30, rollupNow, time.UTC)

	assert.Len(t, state.Providers[model.ProviderOpenAI].Records, before)
	assert.Len(t, state.Providers, 2)
}

func TestRollupEmptyState(t *testing.T) {
	view := Rollup(store.NewState(), 7, rollupNow, time.UTC)

	assert.Empty(t, view.Series)
	assert.Zero(t, view.CombinedTotal)
	assert.Empty(t, view.Dates())
}

func TestRollupDatesUnion(t *testing.T) {
	view := Rollup(seededState(t), 3, rollupNow, time.UTC)

	assert.Equal(t, []string{"2026-08-28", "2026-08-29", "2026-08-30"}, view.Dates())
}

func TestRollupProviderWithNoDataIsAllGaps(t *testing.T) {
	state := seededState(t)
	// A provider that was attempted but never produced data has an empty
	// history; it must surface as gaps, not disappear.
	state.Providers[model.ProviderAnthropic].Records = nil

	view := Rollup(state, 3, rollupNow, time.UTC)
	require.Len(t, view.Series, 2)

	anthropic := view.Series[0]
	assert.Equal(t, model.ProviderAnthropic, anthropic.Provider)
	assert.Empty(t, anthropic.Points)
	assert.Equal(t, []string{"2026-08-28", "2026-08-29", "2026-08-30"}, anthropic.Gaps)
	assert.Zero(t, anthropic.CumulativeTokens)
}

func TestRollupCumulativeCost(t *testing.T) {
	state := store.NewState()
	h := state.History(model.ProviderOpenAI)
	cost := decimalFromString(t, "1.25")
	h.Records = append(h.Records,
		store.Record{Date: "2026-08-29", PromptTokens: 100, CostEstimate: &cost},
		store.Record{Date: "2026-08-30", PromptTokens: 100},
	)

	view := Rollup(state, 7, rollupNow, time.UTC)
	require.Len(t, view.Series, 1)
	require.NotNil(t, view.Series[0].CumulativeCost)
	assert.Equal(t, "1.25", view.Series[0].CumulativeCost.String())
}
