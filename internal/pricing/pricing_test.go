package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bond/tokenash/internal/model"
)

func TestGetPricing(t *testing.T) {
	for _, p := range model.Providers() {
		pp, ok := GetPricing(p)
		require.True(t, ok, "no pricing for %s", p)
		assert.True(t, pp.PromptPerMillion.IsPositive())
		assert.True(t, pp.CompletionPerMillion.IsPositive())
	}

	_, ok := GetPricing("cohere")
	assert.False(t, ok)
}

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name       string
		provider   model.Provider
		prompt     int64
		completion int64
		want       string
	}{
		{"openai one million each", model.ProviderOpenAI, 1_000_000, 1_000_000, "12.5"},
		{"anthropic one million each", model.ProviderAnthropic, 1_000_000, 1_000_000, "18"},
		{"openai half million prompt", model.ProviderOpenAI, 500_000, 0, "1.25"},
		{"zero usage", model.ProviderOpenAI, 0, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := CalculateCost(tt.provider, tt.prompt, tt.completion)
			require.NotNil(t, cost)
			assert.Equal(t, tt.want, cost.String())
			assert.False(t, cost.IsNegative())
		})
	}
}

func TestCalculateCostUnknownProvider(t *testing.T) {
	assert.Nil(t, CalculateCost("cohere", 1000, 1000))
}
