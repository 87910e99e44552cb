// quantity.go - Reference vs portal quantity judgment

package ai

import (
	"context"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

type quantityAnswer struct {
	Result *string `json:"result"`
}

// CompareQuantities judges whether every portal attribute states the same
// quantity as the reference attribute
func (a *Analyzer) CompareQuantities(ctx context.Context, reference common.Text, portals []common.Text) common.QuantityOutcome {
	usable := make([]string, 0, len(portals))
	for _, p := range portals {
		if p.IsFailure() {
			return common.QuantityNeedsReview
		}
		if p.Usable() {
			usable = append(usable, p.Value)
		}
	}
	if len(usable) == 0 {
		return common.QuantityNotStated
	}
	if !reference.Usable() {
		return common.QuantityNeedsReview
	}

	resp, err := a.provider.Generate(ctx, Request{Prompt: QuantityPrompt(reference.Value, usable), JSONMode: true})
	if err != nil {
		a.logger.Warn().Err(err).Msg("quantity judgment failed")
		return common.QuantityNeedsReview
	}

	var answer quantityAnswer
	if err := decodeJSONObject(resp.Text, &answer); err != nil || answer.Result == nil {
		return common.QuantityNeedsReview
	}
	if *answer.Result == "ok" {
		return common.QuantityOK
	}
	return common.QuantityMismatch
}
