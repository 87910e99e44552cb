// textcompare.go - Cross-portal OCR text equivalence

package processor

import (
	"strings"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

// NormalizeWhitespace collapses every Unicode whitespace run (U+3000 and
// U+00A0 included) to one space and trims
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CompareTexts checks whether the usable OCR texts of a group agree
func CompareTexts(texts []common.Text) common.TextOutcome {
	distinct := make(map[string]struct{})
	usable := 0
	for _, t := range texts {
		if !t.Usable() {
			continue
		}
		usable++
		distinct[NormalizeWhitespace(t.Value)] = struct{}{}
	}

	switch {
	case usable <= 1:
		return common.TextNotApplicable
	case len(distinct) == 1:
		return common.TextOK
	default:
		return common.TextDiffers
	}
}
