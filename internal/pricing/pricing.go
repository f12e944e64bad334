// Package pricing derives cost estimates from token counts using a single
// blended pricing model per provider.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/bond/tokenash/internal/model"
)

// ProviderPricing holds USD rates per million tokens.
type ProviderPricing struct {
	PromptPerMillion     decimal.Decimal
	CompletionPerMillion decimal.Decimal
}

var million = decimal.NewFromInt(1_000_000)

// embedded holds the built-in rate table. Rates are blended across each
// provider's model lineup; per-model pricing is out of scope.
var embedded = map[model.Provider]ProviderPricing{
	model.ProviderOpenAI: {
		PromptPerMillion:     decimal.RequireFromString("2.50"),
		CompletionPerMillion: decimal.RequireFromString("10.00"),
	},
	model.ProviderAnthropic: {
		PromptPerMillion:     decimal.RequireFromString("3.00"),
		CompletionPerMillion: decimal.RequireFromString("15.00"),
	},
}

// GetPricing returns the pricing for a provider. The second return value
// is false when no pricing is known.
func GetPricing(p model.Provider) (ProviderPricing, bool) {
	pp, ok := embedded[p]
	return pp, ok
}

// CalculateCost returns the estimated USD cost for the given token counts,
// or nil when the provider has no known pricing. Costs for valid inputs
// are never negative.
func CalculateCost(p model.Provider, promptTokens, completionTokens int64) *decimal.Decimal {
	pp, ok := GetPricing(p)
	if !ok {
		return nil
	}
	cost := decimal.NewFromInt(promptTokens).Mul(pp.PromptPerMillion).Div(million).
		Add(decimal.NewFromInt(completionTokens).Mul(pp.CompletionPerMillion).Div(million))
	return &cost
}
