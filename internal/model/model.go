package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The store serializes costEstimate as a JSON number (or null), not a
	// quoted string.
	decimal.MarshalJSONWithoutQuotes = true
}

// Provider identifies one of the supported usage APIs.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Providers lists every known provider in stable order.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic}
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic:
		return true
	}
	return false
}

// DateLayout is the calendar-day format used throughout the store.
// Lexicographic order on formatted dates matches chronological order.
const DateLayout = "2006-01-02"

// ParseDate validates a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as a calendar day in the given location.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// Sample is one normalized usage observation for a provider on one
// calendar day.
type Sample struct {
	Provider         Provider
	Date             string // YYYY-MM-DD in the reference timezone
	PromptTokens     int64
	CompletionTokens int64
	CostEstimate     *decimal.Decimal // nil when pricing is unknown
	FetchedAt        time.Time
}

// TotalTokens returns the combined token count for the sample.
func (s Sample) TotalTokens() int64 {
	return s.PromptTokens + s.CompletionTokens
}

// Validate checks the invariants a sample must satisfy before it may be
// merged into the store.
func (s Sample) Validate() error {
	if !s.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if _, err := ParseDate(s.Date); err != nil {
		return err
	}
	if s.PromptTokens < 0 || s.CompletionTokens < 0 {
		return fmt.Errorf("negative token count (%d prompt, %d completion)",
			s.PromptTokens, s.CompletionTokens)
	}
	if s.CostEstimate != nil && s.CostEstimate.IsNegative() {
		return fmt.Errorf("negative cost estimate %s", s.CostEstimate)
	}
	return nil
}

// Rejection records a sample that failed validation during a merge.
type Rejection struct {
	Sample Sample
	Reason string
}

// MergeReport summarizes the outcome of one merge call.
type MergeReport struct {
	Inserted    int
	Overwritten int
	Rejected    []Rejection
}

// Add folds another report into this one.
func (r *MergeReport) Add(other MergeReport) {
	r.Inserted += other.Inserted
	r.Overwritten += other.Overwritten
	r.Rejected = append(r.Rejected, other.Rejected...)
}

// ProviderFailure records a provider whose fetch failed during a run.
// It degrades the run to partial success instead of aborting it.
type ProviderFailure struct {
	Provider Provider
	Reason   string
	Err      error
}

func (f ProviderFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Provider, f.Reason)
}

func (f ProviderFailure) Unwrap() error { return f.Err }

// RunResult is the outcome of one aggregator run. It is always returned;
// only store load/save failures abort a run entirely.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Report     MergeReport
	Failures   []ProviderFailure
}

// PartialFailure reports whether at least one provider failed while the
// run still persisted data from the others.
func (r RunResult) PartialFailure() bool {
	return len(r.Failures) > 0
}
