package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/bond/tokenash/internal/model"
	"github.com/bond/tokenash/internal/pricing"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAI fetches daily token usage from the OpenAI usage API. The API
// aggregates per day, so a range is fetched one day at a time behind a
// rate limiter.
type OpenAI struct {
	BaseURL    string
	apiKey     string
	loc        *time.Location
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewOpenAI creates the OpenAI adapter. Day boundaries are computed in loc.
func NewOpenAI(apiKey string, loc *time.Location) *OpenAI {
	if loc == nil {
		loc = time.UTC
	}
	return &OpenAI{
		BaseURL: openAIBaseURL,
		apiKey:  apiKey,
		loc:     loc,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		now:     time.Now,
	}
}

// ID implements Adapter.
func (o *OpenAI) ID() model.Provider { return model.ProviderOpenAI }

// openAIUsageItem is one row of the usage endpoint's response, grouped by
// internal dimensions we sum over.
type openAIUsageItem struct {
	ContextTokens   int64 `json:"n_context_tokens_total"`
	GeneratedTokens int64 `json:"n_generated_tokens_total"`
}

type openAIUsageResponse struct {
	Data []openAIUsageItem `json:"data"`
}

// openAIDayUsage pairs a day's response with its date so Normalize can
// attribute the totals.
type openAIDayUsage struct {
	Date string            `json:"date"`
	Data []openAIUsageItem `json:"data"`
}

// FetchUsage implements Adapter. Any failed day fails the whole fetch;
// the aggregator decides whether to retry.
func (o *OpenAI) FetchUsage(ctx context.Context, r DateRange) (json.RawMessage, error) {
	var days []openAIDayUsage
	for _, day := range r.Days() {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		date := model.FormatDate(day, o.loc)
		resp, err := o.fetchDay(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("openai usage for %s: %w", date, err)
		}
		days = append(days, openAIDayUsage{Date: date, Data: resp.Data})
	}
	raw, err := json.Marshal(days)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (o *OpenAI) fetchDay(ctx context.Context, date string) (*openAIUsageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/usage?date="+date, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Provider: o.ID(), Code: resp.StatusCode}
	}

	var usage openAIUsageResponse
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &usage, nil
}

// Normalize implements Adapter. Days with zero usage produce no sample:
// absence in the store means "no data", which is distinct from a verified
// zero.
func (o *OpenAI) Normalize(raw json.RawMessage) ([]model.Sample, error) {
	var days []openAIDayUsage
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	fetchedAt := o.now().UTC()
	var samples []model.Sample
	for _, day := range days {
		var prompt, completion int64
		for _, item := range day.Data {
			prompt += item.ContextTokens
			completion += item.GeneratedTokens
		}
		if prompt == 0 && completion == 0 {
			continue
		}
		samples = append(samples, model.Sample{
			Provider:         o.ID(),
			Date:             day.Date,
			PromptTokens:     prompt,
			CompletionTokens: completion,
			CostEstimate:     pricing.CalculateCost(o.ID(), prompt, completion),
			FetchedAt:        fetchedAt,
		})
	}
	return samples, nil
}
