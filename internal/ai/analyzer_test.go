package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

func TestDeriveAttribute(t *testing.T) {
	ctx := context.Background()

	t.Run("unusable input makes no call", func(t *testing.T) {
		p := &fakeProvider{respond: answer("x")}
		a := NewAnalyzer(p, zerolog.Nop())

		assert.Equal(t, common.Success(""), a.DeriveAttribute(ctx, common.Success("")))
		assert.Equal(t, common.Success(""), a.DeriveAttribute(ctx, common.TransientError(common.FailureTimeout, "")))
		assert.Zero(t, p.calls())
	})

	t.Run("cleans the answer", func(t *testing.T) {
		p := &fakeProvider{respond: answer(` "90ml×6個\n箱入り" `)}
		a := NewAnalyzer(p, zerolog.Nop())

		got := a.DeriveAttribute(ctx, common.Success("いちごソルベ\n90ml×6個"))
		assert.Equal(t, common.Success("90ml×6個\n箱入り"), got)
		require.Equal(t, 1, p.calls())
		assert.Contains(t, p.requests[0].Prompt, "いちごソルベ\n90ml×6個")
		assert.False(t, p.requests[0].JSONMode)
	})

	t.Run("provider failure", func(t *testing.T) {
		a := NewAnalyzer(&fakeProvider{respond: failWith(errors.New("down"))}, zerolog.Nop())
		got := a.DeriveAttribute(ctx, common.Success("500g"))
		assert.True(t, got.IsFailure())
		assert.Equal(t, common.FailureAIEndpoint, got.Failure)
	})
}

func TestCheckTypos(t *testing.T) {
	ctx := context.Background()
	texts := []common.Text{common.Success("午肉 500g"), common.Success(""), common.PermanentError(common.FailureImageFetch, "")}

	t.Run("no usable texts is ok without a call", func(t *testing.T) {
		p := &fakeProvider{respond: answer("")}
		a := NewAnalyzer(p, zerolog.Nop())
		assert.True(t, a.CheckTypos(ctx, texts[1:]).OK())
		assert.Zero(t, p.calls())
	})

	tests := []struct {
		name    string
		respond func(Request) (*Response, error)
		want    common.TypoVerdict
	}{
		{"ok", answer(`{"status": "ok"}`), common.TypoVerdict{Status: common.TypoOK}},
		{"error", answer(`{"status": "error", "message": "「午肉」を確認"}`), common.TypoVerdict{Status: common.TypoError, Message: "「午肉」を確認"}},
		{"fenced", answer("```json\n{\"status\": \"ok\"}\n```"), common.TypoVerdict{Status: common.TypoOK}},
		{"unknown status", answer(`{"status": "maybe"}`), common.TypoVerdict{Status: common.TypoUnknown}},
		{"missing status", answer(`{"verdict": "fine"}`), common.TypoVerdict{Status: common.TypoUnparseable}},
		{"null answer", answer(`null`), common.TypoVerdict{Status: common.TypoUnparseable}},
		{"not json", answer("looks fine"), common.TypoVerdict{Status: common.TypoUnparseable}},
		{"provider failure", failWith(errors.New("down")), common.TypoVerdict{Status: common.TypoFailed, Message: "down"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{respond: tt.respond}
			a := NewAnalyzer(p, zerolog.Nop())

			assert.Equal(t, tt.want, a.CheckTypos(ctx, texts))
			require.Equal(t, 1, p.calls())
			assert.True(t, p.requests[0].JSONMode)
			assert.Contains(t, p.requests[0].Prompt, "午肉 500g")
		})
	}
}

func TestCompareQuantities(t *testing.T) {
	ctx := context.Background()
	ok := answer(`{"result": "ok"}`)

	tests := []struct {
		name      string
		reference common.Text
		portals   []common.Text
		respond   func(Request) (*Response, error)
		want      common.QuantityOutcome
		wantCalls int
	}{
		{"nothing stated", common.Success("2kg"), []common.Text{common.Success(""), common.Success("")}, ok, common.QuantityNotStated, 0},
		{"failed portal derivation", common.Success("2kg"), []common.Text{common.Success("2kg"), common.TransientError(common.FailureAIEndpoint, "")}, ok, common.QuantityNeedsReview, 0},
		{"empty reference", common.Success(""), []common.Text{common.Success("2kg")}, ok, common.QuantityNeedsReview, 0},
		{"failed reference", common.TransientError(common.FailureTimeout, ""), []common.Text{common.Success("2kg")}, ok, common.QuantityNeedsReview, 0},
		{"match", common.Success("2kg(4～6本)"), []common.Text{common.Success("2kg\n4-6本")}, ok, common.QuantityOK, 1},
		{"mismatch", common.Success("合計1.2kg"), []common.Text{common.Success("600g×2パック")}, answer(`{"result": "ng"}`), common.QuantityMismatch, 1},
		{"missing key", common.Success("2kg"), []common.Text{common.Success("2kg")}, answer(`{}`), common.QuantityNeedsReview, 1},
		{"null answer", common.Success("2kg"), []common.Text{common.Success("2kg")}, answer(`null`), common.QuantityNeedsReview, 1},
		{"garbage", common.Success("2kg"), []common.Text{common.Success("2kg")}, answer("ok!"), common.QuantityNeedsReview, 1},
		{"provider failure", common.Success("2kg"), []common.Text{common.Success("2kg")}, failWith(errors.New("down")), common.QuantityNeedsReview, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{respond: tt.respond}
			a := NewAnalyzer(p, zerolog.Nop())

			assert.Equal(t, tt.want, a.CompareQuantities(ctx, tt.reference, tt.portals))
			assert.Equal(t, tt.wantCalls, p.calls())
		})
	}
}

func TestQuantityPromptCarriesBothSides(t *testing.T) {
	prompt := QuantityPrompt("合計1.2kg", []string{"600g×2パック", "1.2kg"})
	assert.Contains(t, prompt, "### 基準テキスト\n合計1.2kg")
	assert.Contains(t, prompt, `["600g×2パック","1.2kg"]`)
}

func TestFixJSONEscaping(t *testing.T) {
	var v typoAnswer
	require.NoError(t, decodeJSONObject("{\"status\": \"error\", \"message\": \"「a\nb」を確認\"}", &v))
	assert.Equal(t, "「a\nb」を確認", v.Message)
}
