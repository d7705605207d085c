package enrichment

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// CountTokens returns the token count for text under the cl100k_base
// encoding, the closest widely-available proxy for the backend's own
// tokenizer. Encoding failures fall back to character-based estimation.
func CountTokens(text string) int64 {
	enc, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return estimateTokens(text)
	}
	ids, _, err := enc.Encode(text)
	if err != nil {
		return estimateTokens(text)
	}
	return int64(len(ids))
}

// estimateTokens approximates token count as characters / 4.
func estimateTokens(text string) int64 {
	n := int64(len(text)) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// estimateCallCost prices one inference call: prompt tokens at the input
// rate plus completion tokens at the output rate.
func estimateCallCost(pricing *PricingConfig, modelName, prompt, completion string) (float64, error) {
	inRate, outRate, err := pricing.Rates(modelName)
	if err != nil {
		return 0, fmt.Errorf("estimate call cost: %w", err)
	}
	cost := float64(CountTokens(prompt))*inRate + float64(CountTokens(completion))*outRate
	return cost, nil
}
