package ai

import "github.com/hearthkeep/chronicle/internal/domain"

// modelPricing is USD per million tokens.
type modelPricing struct {
	input  float64
	output float64
}

var pricingTable = map[string]modelPricing{
	"claude-3-5-haiku-20241022":  {input: 1.00, output: 5.00},
	"claude-3-haiku-20240307":    {input: 0.25, output: 1.25},
	"claude-3-5-sonnet-20241022": {input: 3.00, output: 15.00},
	"claude-3-sonnet-20240229":   {input: 3.00, output: 15.00},
}

var defaultPricing = pricingTable["claude-3-5-haiku-20241022"]

// EstimateCost returns the estimated USD cost of one request. Models
// missing from the pricing table are priced as the default model; an
// estimate is still more useful than a zero.
func EstimateCost(model string, inputTokens, outputTokens int64) float64 {
	pricing, ok := pricingTable[model]
	if !ok {
		pricing = defaultPricing
	}
	return float64(inputTokens)/1_000_000*pricing.input +
		float64(outputTokens)/1_000_000*pricing.output
}

// UsageRecord converts a completion outcome into an accounting record.
// reqErr is the error returned alongside the completion, nil on success.
func UsageRecord(c Completion, chapterID int64, purpose string, reqErr error) domain.AIRequest {
	rec := domain.AIRequest{
		ChapterID:    chapterID,
		Purpose:      purpose,
		Model:        c.Model,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		CostUSD:      EstimateCost(c.Model, c.InputTokens, c.OutputTokens),
		Success:      reqErr == nil,
	}
	if reqErr != nil {
		msg := reqErr.Error()
		rec.ErrorMessage = &msg
	}
	return rec
}
