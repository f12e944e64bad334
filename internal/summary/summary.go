// Package summary derives the rollup read model from the store. Rollup is
// a pure function of store state; it never invents data, so missing days
// are reported as explicit gaps instead of zero-filled points.
package summary

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bond/tokenash/internal/model"
	"github.com/bond/tokenash/internal/store"
)

// Point is one charted day for one provider.
type Point struct {
	Date         string
	PromptTokens int64
	TotalTokens  int64
}

// Series is one provider's trailing-window view plus cumulative totals.
type Series struct {
	Provider model.Provider
	// Points covers only days with data, in date order.
	Points []Point
	// Gaps lists window days with no record, in date order. A gap means
	// "no data", not "zero usage".
	Gaps []string
	// WindowTokens is the token total across Points.
	WindowTokens int64
	// CumulativeTokens is the all-time token total for the provider.
	CumulativeTokens int64
	// CumulativeCost sums the recorded cost estimates; nil when no record
	// carried one.
	CumulativeCost *decimal.Decimal
}

// RollupView is the read-only payload handed to the chart renderer and
// document publisher.
type RollupView struct {
	Series        []Series
	WindowDays    int
	CombinedTotal int64
	GeneratedAt   time.Time
}

// Dates returns the ordered union of window dates that carry data for at
// least one provider.
func (v RollupView) Dates() []string {
	seen := make(map[string]bool)
	var dates []string
	for _, s := range v.Series {
		for _, p := range s.Points {
			if !seen[p.Date] {
				seen[p.Date] = true
				dates = append(dates, p.Date)
			}
		}
	}
	sort.Strings(dates)
	return dates
}

// Rollup computes the trailing-window view ending at now's calendar day in
// loc. Safe to call repeatedly; the state is not modified.
func Rollup(state *store.State, windowDays int, now time.Time, loc *time.Location) RollupView {
	if loc == nil {
		loc = time.UTC
	}
	if windowDays <= 0 {
		windowDays = 1
	}

	end := now.In(loc)
	start := end.AddDate(0, 0, -(windowDays - 1))
	startDate := model.FormatDate(start, loc)
	endDate := model.FormatDate(end, loc)

	view := RollupView{
		WindowDays:  windowDays,
		GeneratedAt: now,
	}

	providers := make([]model.Provider, 0, len(state.Providers))
	for p := range state.Providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	for _, p := range providers {
		series := buildSeries(p, state.Providers[p], start, windowDays, startDate, endDate, loc)
		view.CombinedTotal += series.CumulativeTokens
		view.Series = append(view.Series, series)
	}
	return view
}

func buildSeries(p model.Provider, h *store.History, start time.Time, windowDays int, startDate, endDate string, loc *time.Location) Series {
	series := Series{Provider: p}

	inWindow := make(map[string]bool)
	for _, rec := range h.Records {
		total := rec.TotalTokens()
		series.CumulativeTokens += total
		if rec.CostEstimate != nil {
			if series.CumulativeCost == nil {
				zero := decimal.Zero
				series.CumulativeCost = &zero
			}
			sum := series.CumulativeCost.Add(*rec.CostEstimate)
			series.CumulativeCost = &sum
		}
		if rec.Date < startDate || rec.Date > endDate {
			continue
		}
		series.Points = append(series.Points, Point{
			Date:         rec.Date,
			PromptTokens: rec.PromptTokens,
			TotalTokens:  total,
		})
		series.WindowTokens += total
		inWindow[rec.Date] = true
	}

	for i := 0; i < windowDays; i++ {
		date := model.FormatDate(start.AddDate(0, 0, i), loc)
		if !inWindow[date] {
			series.Gaps = append(series.Gaps, date)
		}
	}
	return series
}
