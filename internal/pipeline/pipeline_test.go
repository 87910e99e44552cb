package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosocmputer/product_ocr_reconcile/internal/ai"
	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/processor"
)

type fakeExtractor struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	panicOn  string
}

func (f *fakeExtractor) Extract(_ context.Context, entry common.ImageEntry) common.ExtractionResult {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if entry.FileName == f.panicOn {
		panic("extractor exploded")
	}
	time.Sleep(f.delay)
	return common.ExtractionResult{Portal: entry.Portal, Text: common.Success("牛肉 500g"), ImageBytes: []byte{1}}
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) DeriveAttribute(_ context.Context, t common.Text) common.Text {
	if !t.Usable() {
		return common.Success("")
	}
	return common.Success("500g")
}

func (fakeAnalyzer) CheckTypos(context.Context, []common.Text) common.TypoVerdict {
	return common.TypoVerdict{Status: common.TypoOK}
}

func (fakeAnalyzer) CompareQuantities(context.Context, common.Text, []common.Text) common.QuantityOutcome {
	return common.QuantityOK
}

func listingOf(n int, portals ...string) common.Listing {
	l := common.Listing{}
	for _, p := range portals {
		for i := 0; i < n; i++ {
			l[p] = append(l[p], common.ImageEntry{
				FileID:   fmt.Sprintf("%s-%d", p, i),
				MIMEType: "image/jpeg",
				FileName: fmt.Sprintf("AEDG%03d.jpg", i),
			})
		}
	}
	return l
}

var allAEDG = common.RunContext{BusinessCode: "AEDG", ProductCode: common.AllProducts, ReferenceCode: "f000000"}

func TestRunNoGroups(t *testing.T) {
	p := New(&fakeExtractor{}, fakeAnalyzer{}, Config{}, zerolog.Nop())
	_, err := p.Run(context.Background(), processor.GroupSet{}, allAEDG, nil, nil)
	assert.ErrorIs(t, err, common.ErrNoGroups)
}

func TestRunBoundsConcurrency(t *testing.T) {
	x := &fakeExtractor{delay: 5 * time.Millisecond}
	p := New(x, fakeAnalyzer{}, Config{}, zerolog.Nop())

	gs := processor.BuildGroups(listingOf(100, "rakuten"), allAEDG)
	require.Equal(t, 100, gs.Len())

	report, err := p.Run(context.Background(), gs, allAEDG, common.ReferenceContent{}, nil)
	require.NoError(t, err)

	assert.Len(t, report.Results, 100)
	assert.LessOrEqual(t, x.peak.Load(), int32(DefaultMaxConcurrentGroups))
	assert.Greater(t, x.peak.Load(), int32(1))
	assert.False(t, report.Incomplete)
}

func TestRunCustomLimit(t *testing.T) {
	x := &fakeExtractor{delay: 2 * time.Millisecond}
	p := New(x, fakeAnalyzer{}, Config{MaxConcurrentGroups: 3}, zerolog.Nop())

	gs := processor.BuildGroups(listingOf(20, "rakuten"), allAEDG)
	_, err := p.Run(context.Background(), gs, allAEDG, nil, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, x.peak.Load(), int32(3))
}

func TestRunProgressIsMonotonic(t *testing.T) {
	p := New(&fakeExtractor{delay: time.Millisecond}, fakeAnalyzer{}, Config{MaxConcurrentGroups: 4}, zerolog.Nop())
	gs := processor.BuildGroups(listingOf(30, "rakuten", "furunavi"), allAEDG)

	var mu sync.Mutex
	var seen []int
	_, err := p.Run(context.Background(), gs, allAEDG, nil, func(completed, total int) {
		assert.Equal(t, 30, total)
		mu.Lock()
		seen = append(seen, completed)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Len(t, seen, 30)
	for i, c := range seen {
		assert.Equal(t, i+1, c)
	}
}

func TestRunContainsPanics(t *testing.T) {
	x := &fakeExtractor{panicOn: "AEDG002.jpg"}
	p := New(x, fakeAnalyzer{}, Config{}, zerolog.Nop())
	gs := processor.BuildGroups(listingOf(4, "rakuten", "furunavi"), allAEDG)

	report, err := p.Run(context.Background(), gs, allAEDG, nil, nil)
	require.NoError(t, err)
	require.Len(t, report.Results, 4)

	summary := report.Summary()
	assert.Equal(t, 1, summary[common.StatusErrored])
	assert.Equal(t, 3, summary[common.StatusClean])

	errored := report.Results[2]
	assert.Equal(t, "AEDG002.jpg", errored.ImageName)
	assert.Contains(t, errored.Err, "extractor exploded")
	assert.Len(t, errored.Portals, 2)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	p := New(&fakeExtractor{}, fakeAnalyzer{}, Config{}, zerolog.Nop())
	gs := processor.BuildGroups(listingOf(5, "rakuten"), allAEDG)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx, gs, allAEDG, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.True(t, report.Incomplete)
}

// blockingImages waits for the download delay or gives up with ctx
type blockingImages struct {
	delay time.Duration
}

func (b blockingImages) FetchImageBytes(ctx context.Context, fileID string) ([]byte, error) {
	select {
	case <-time.After(b.delay):
		return []byte(fileID), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("download %s: %w", fileID, ctx.Err())
	}
}

func TestRunCancelledMidFlight(t *testing.T) {
	provider := &scriptedProvider{calls: map[string]int{}}
	p := New(
		ai.NewExtractor(provider, blockingImages{delay: 5 * time.Second}, ai.ExtractorOptions{}, zerolog.Nop()),
		ai.NewAnalyzer(provider, zerolog.Nop()),
		Config{}, zerolog.Nop(),
	)
	gs := processor.BuildGroups(listingOf(3, "rakuten"), allAEDG)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	report, err := p.Run(ctx, gs, allAEDG, nil, nil)
	require.NoError(t, err)
	assert.True(t, report.Incomplete)
	require.Len(t, report.Results, 3)

	for _, r := range report.Results {
		assert.Equal(t, common.StatusErrored, r.Status, r.ImageName)
		assert.True(t, strings.HasPrefix(r.Err, CancelledReason), r.Err)
		assert.NotEqual(t, processor.DetectionImageLoad, r.ErrorDetection)
	}
	assert.Zero(t, provider.calls["ocr"])
}

func TestRunFinishedBeforeCancel(t *testing.T) {
	p := New(&fakeExtractor{}, fakeAnalyzer{}, Config{}, zerolog.Nop())
	gs := processor.BuildGroups(listingOf(3, "rakuten"), allAEDG)

	ctx, cancel := context.WithCancel(context.Background())
	report, err := p.Run(ctx, gs, allAEDG, nil, nil)
	cancel()
	require.NoError(t, err)
	assert.False(t, report.Incomplete)
	assert.Equal(t, 3, report.Summary()[common.StatusClean])
}

// scriptedProvider answers by recognising which prompt it received
type scriptedProvider struct {
	mu    sync.Mutex
	calls map[string]int
}

func (s *scriptedProvider) GetProviderName() string { return "scripted" }

func (s *scriptedProvider) Generate(_ context.Context, req ai.Request) (*ai.Response, error) {
	kind := "attribute"
	text := "500g"
	switch {
	case req.Image != nil:
		kind, text = "ocr", "いちごソルベ\n500g"
	case strings.Contains(req.Prompt, "校正AI"):
		kind, text = "typo", `{"status": "ok"}`
	case strings.Contains(req.Prompt, "基準テキスト\n"):
		kind, text = "quantity", `{"result": "ok"}`
	}
	s.mu.Lock()
	s.calls[kind]++
	s.mu.Unlock()
	return &ai.Response{Text: text, InputTokens: 100, OutputTokens: 10}, nil
}

type memoryImages map[string][]byte

func (m memoryImages) FetchImageBytes(_ context.Context, fileID string) ([]byte, error) {
	return m[fileID], nil
}

func TestRunEndToEnd(t *testing.T) {
	listing := common.Listing{
		"rakuten":  {{FileID: "r1", MIMEType: "image/jpeg", FileName: "AEDG001.jpg"}},
		"furunavi": {{FileID: "f1", MIMEType: "image/jpeg", FileName: "AEDG001.jpg"}},
		"choice":   {{FileID: "c9", MIMEType: "image/png", FileName: "BCDE001.jpg"}},
	}
	rc := common.RunContext{BusinessCode: "AEDG", ProductCode: "AEDG001", ReferenceCode: "f123456"}
	gs := processor.BuildGroups(listing, rc)

	provider := &scriptedProvider{calls: map[string]int{}}
	images := memoryImages{"r1": {1}, "f1": {2}}
	p := New(
		ai.NewExtractor(provider, images, ai.ExtractorOptions{}, zerolog.Nop()),
		ai.NewAnalyzer(provider, zerolog.Nop()),
		Config{}, zerolog.Nop(),
	)

	refs := common.ReferenceContent{"AEDG001": common.Success("いちごソルベ 500g")}
	report, err := p.Run(context.Background(), gs, rc, refs, nil)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	r := report.Results[0]
	assert.Equal(t, "AEDG001.jpg", r.ImageName)
	assert.Equal(t, common.StatusClean, r.Status)
	assert.Equal(t, common.TextOK, r.TextComparison)
	assert.Equal(t, common.QuantityOK, r.QuantityComparison)
	assert.True(t, r.Typo.OK())
	assert.Equal(t, common.Success("500g"), r.ReferenceAttribute)

	assert.Equal(t, map[string]int{"ocr": 2, "attribute": 3, "typo": 1, "quantity": 1}, provider.calls)

	require.Len(t, report.Plain.Rows, 1)
	row := report.Plain.Rows[0]
	assert.Equal(t, []string{"1", "AEDG001.jpg", "異常なし"}, row[:3])
	// choice has no match but keeps its columns
	assert.Len(t, row, 3+3*3+5)
	assert.Equal(t, []string{"", "", ""}, row[3:6])
}
