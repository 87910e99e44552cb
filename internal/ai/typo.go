// typo.go - Proofreading of a group's OCR texts

package ai

import (
	"context"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

type typoAnswer struct {
	Status  *string `json:"status"`
	Message string  `json:"message"`
}

// CheckTypos proofreads the usable texts of a group in one call
func (a *Analyzer) CheckTypos(ctx context.Context, texts []common.Text) common.TypoVerdict {
	usable := make([]string, 0, len(texts))
	for _, t := range texts {
		if t.Usable() {
			usable = append(usable, t.Value)
		}
	}
	if len(usable) == 0 {
		return common.TypoVerdict{Status: common.TypoOK}
	}

	resp, err := a.provider.Generate(ctx, Request{Prompt: TypoPrompt(usable), JSONMode: true})
	if err != nil {
		a.logger.Warn().Err(err).Msg("typo check failed")
		return common.TypoVerdict{Status: common.TypoFailed, Message: CategorizeError(err).Message}
	}

	var answer typoAnswer
	if err := decodeJSONObject(resp.Text, &answer); err != nil || answer.Status == nil {
		return common.TypoVerdict{Status: common.TypoUnparseable}
	}

	switch *answer.Status {
	case "ok":
		return common.TypoVerdict{Status: common.TypoOK}
	case "error":
		return common.TypoVerdict{Status: common.TypoError, Message: answer.Message}
	default:
		return common.TypoVerdict{Status: common.TypoUnknown}
	}
}
