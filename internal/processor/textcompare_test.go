package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a\n\tb   c \n"))
	assert.Equal(t, "", NormalizeWhitespace(" \n "))
	assert.Equal(t, "いちご 500g", NormalizeWhitespace("\u3000いちご\u3000\u00a0500g\u3000"))
}

func TestCompareTexts(t *testing.T) {
	tests := []struct {
		name  string
		texts []common.Text
		want  common.TextOutcome
	}{
		{"no texts", nil, common.TextNotApplicable},
		{"single usable", []common.Text{common.Success("500g")}, common.TextNotApplicable},
		{
			"failures and empties are ignored",
			[]common.Text{common.Success("500g"), common.Success(""), common.TransientError(common.FailureTimeout, "")},
			common.TextNotApplicable,
		},
		{
			"whitespace differences are equal",
			[]common.Text{common.Success("牛肉\n500g"), common.Success("牛肉  500g "), common.Success("牛肉\t500g")},
			common.TextOK,
		},
		{
			"ideographic and no-break spaces are equal",
			[]common.Text{common.Success("いちご\u3000500g"), common.Success("いちご 500g"), common.Success("いちご\u00a0500g")},
			common.TextOK,
		},
		{
			"content differs",
			[]common.Text{common.Success("牛肉 500g"), common.Success("牛肉 600g")},
			common.TextDiffers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareTexts(tt.texts))
		})
	}
}
