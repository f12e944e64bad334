package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bond/tokenash/internal/model"
	"github.com/bond/tokenash/internal/pricing"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// Anthropic fetches daily token usage from the Anthropic usage API. Unlike
// OpenAI, the endpoint accepts a date range directly.
type Anthropic struct {
	BaseURL    string
	apiKey     string
	loc        *time.Location
	httpClient *http.Client
	now        func() time.Time
}

// NewAnthropic creates the Anthropic adapter. Day boundaries are computed
// in loc.
func NewAnthropic(apiKey string, loc *time.Location) *Anthropic {
	if loc == nil {
		loc = time.UTC
	}
	return &Anthropic{
		BaseURL: anthropicBaseURL,
		apiKey:  apiKey,
		loc:     loc,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// ID implements Adapter.
func (a *Anthropic) ID() model.Provider { return model.ProviderAnthropic }

type anthropicDayUsage struct {
	Date         string `json:"date"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
}

type anthropicUsageResponse struct {
	Data []anthropicDayUsage `json:"data"`
}

// FetchUsage implements Adapter.
func (a *Anthropic) FetchUsage(ctx context.Context, r DateRange) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("start", model.FormatDate(r.Start, a.loc))
	params.Set("end", model.FormatDate(r.End, a.loc))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.BaseURL+"/usage?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Provider: a.ID(), Code: resp.StatusCode}
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return body, nil
}

// Normalize implements Adapter.
func (a *Anthropic) Normalize(raw json.RawMessage) ([]model.Sample, error) {
	var usage anthropicUsageResponse
	if err := json.Unmarshal(raw, &usage); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	fetchedAt := a.now().UTC()
	var samples []model.Sample
	for _, day := range usage.Data {
		if day.InputTokens == 0 && day.OutputTokens == 0 {
			continue
		}
		samples = append(samples, model.Sample{
			Provider:         a.ID(),
			Date:             day.Date,
			PromptTokens:     day.InputTokens,
			CompletionTokens: day.OutputTokens,
			CostEstimate:     pricing.CalculateCost(a.ID(), day.InputTokens, day.OutputTokens),
			FetchedAt:        fetchedAt,
		})
	}
	return samples, nil
}
