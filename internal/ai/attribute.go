// attribute.go - Quantity/content attribute derivation

package ai

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

// Analyzer runs the text-only model calls of a group
type Analyzer struct {
	provider Provider
	logger   zerolog.Logger
}

// NewAnalyzer creates an Analyzer
func NewAnalyzer(provider Provider, logger zerolog.Logger) *Analyzer {
	return &Analyzer{provider: provider, logger: logger}
}

// DeriveAttribute extracts the quantity part of a text. Failed or empty
// input yields an empty success without calling the model.
func (a *Analyzer) DeriveAttribute(ctx context.Context, text common.Text) common.Text {
	if !text.Usable() {
		return common.Success("")
	}

	resp, err := a.provider.Generate(ctx, Request{Prompt: AttributePrompt(text.Value)})
	if err != nil {
		a.logger.Warn().Err(err).Msg("attribute derivation failed")
		return FailureText(common.FailureAIEndpoint, err)
	}
	return common.Success(cleanAttribute(resp.Text))
}

func cleanAttribute(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, `\n`, "\n")
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
