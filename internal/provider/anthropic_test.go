package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bond/tokenash/internal/model"
)

func newTestAnthropic(serverURL string) *Anthropic {
	a := NewAnthropic("sk-ant-test", time.UTC)
	a.BaseURL = serverURL
	a.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestAnthropicFetchAndNormalize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "2026-08-27", r.URL.Query().Get("start"))
		assert.Equal(t, "2026-08-29", r.URL.Query().Get("end"))
		w.Write([]byte(`{"data": [
			{"date": "2026-08-27", "input_tokens": 2000, "output_tokens": 800, "total_tokens": 2800},
			{"date": "2026-08-28", "input_tokens": 0, "output_tokens": 0, "total_tokens": 0},
			{"date": "2026-08-29", "input_tokens": 100, "output_tokens": 50, "total_tokens": 150}
		]}`))
	}))
	defer server.Close()

	a := newTestAnthropic(server.URL)
	raw, err := a.FetchUsage(context.Background(), testDateRange("2026-08-27", "2026-08-29"))
	require.NoError(t, err)

	samples, err := a.Normalize(raw)
	require.NoError(t, err)

	// The zero day is dropped; absence means no data, not zero.
	require.Len(t, samples, 2)
	assert.Equal(t, model.ProviderAnthropic, samples[0].Provider)
	assert.Equal(t, "2026-08-27", samples[0].Date)
	assert.Equal(t, int64(2000), samples[0].PromptTokens)
	assert.Equal(t, int64(800), samples[0].CompletionTokens)
	require.NotNil(t, samples[0].CostEstimate)
	assert.Equal(t, "2026-08-29", samples[1].Date)
}

func TestAnthropicFetchUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	a := newTestAnthropic(server.URL)
	_, err := a.FetchUsage(context.Background(), testDateRange("2026-08-28"))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAnthropicFetchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	a := newTestAnthropic(server.URL)
	_, err := a.FetchUsage(context.Background(), testDateRange("2026-08-28"))
	require.Error(t, err)
	assert.True(t, Retryable(err))
}

func TestAnthropicNormalizeMalformed(t *testing.T) {
	a := newTestAnthropic("http://unused")
	_, err := a.Normalize([]byte(`[1, 2, 3]`))
	require.ErrorIs(t, err, ErrMalformedResponse)
}
