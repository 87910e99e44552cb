// pipeline.go - Bounded fan-out of per-group reconciliation

package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/processor"
)

// DefaultMaxConcurrentGroups bounds the number of groups in flight
const DefaultMaxConcurrentGroups = 25

// CancelledReason prefixes the error of a group interrupted by cancellation
const CancelledReason = "キャンセル"

// Extractor transcribes one portal image
type Extractor interface {
	Extract(ctx context.Context, entry common.ImageEntry) common.ExtractionResult
}

// Analyzer runs the text-only judgments of a group
type Analyzer interface {
	DeriveAttribute(ctx context.Context, text common.Text) common.Text
	CheckTypos(ctx context.Context, texts []common.Text) common.TypoVerdict
	CompareQuantities(ctx context.Context, reference common.Text, portals []common.Text) common.QuantityOutcome
}

// ProgressFunc is called after every finished group with a monotonic count
type ProgressFunc func(completed, total int)

// Config tunes a pipeline
type Config struct {
	MaxConcurrentGroups int
}

// Pipeline reconciles a GroupSet
type Pipeline struct {
	extractor Extractor
	analyzer  Analyzer
	cfg       Config
	logger    zerolog.Logger
}

// New creates a pipeline
func New(extractor Extractor, analyzer Analyzer, cfg Config, logger zerolog.Logger) *Pipeline {
	if cfg.MaxConcurrentGroups <= 0 {
		cfg.MaxConcurrentGroups = DefaultMaxConcurrentGroups
	}
	return &Pipeline{
		extractor: extractor,
		analyzer:  analyzer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run processes every group with at most MaxConcurrentGroups in flight and
// aggregates the results. It fails only when there is nothing to process.
// When ctx is cancelled no further groups start, groups caught mid-flight
// become errored rows and the report is marked incomplete.
func (p *Pipeline) Run(ctx context.Context, gs processor.GroupSet, rc common.RunContext, refs common.ReferenceContent, onProgress ProgressFunc) (*processor.Report, error) {
	total := gs.Len()
	if total == 0 {
		return nil, common.ErrNoGroups
	}
	if onProgress == nil {
		onProgress = func(int, int) {}
	}

	results := make(chan common.GroupResult, total)
	collected := make([]common.GroupResult, 0, total)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for r := range results {
			collected = append(collected, r)
			onProgress(len(collected), total)
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxConcurrentGroups)

	started := 0
	for _, name := range gs.ImageNames() {
		if ctx.Err() != nil {
			break
		}
		group := gs.Groups[name]
		reference := refs[processor.ReferenceCodeFor(name, rc)]

		g.Go(func() error {
			results <- p.runGroupSafe(ctx, group, reference)
			return nil
		})
		started++
	}

	_ = g.Wait()
	close(results)
	<-done

	cancelled := started < total || ctx.Err() != nil
	if cancelled {
		p.logger.Warn().Int("started", started).Int("total", total).Msg("run cancelled")
	}

	report := processor.Aggregate(collected, gs.Portals)
	report.Incomplete = cancelled
	return report, nil
}

// runGroupSafe contains panics and internal errors of one group
func (p *Pipeline) runGroupSafe(ctx context.Context, group *common.ProductGroup, reference common.Text) (result common.GroupResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("image", group.ImageName).
				Str("stack", string(debug.Stack())).
				Msgf("group panicked: %v", r)
			result = erroredResult(group, reference, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := p.runGroup(ctx, group, reference)
	if err != nil {
		p.logger.Error().Err(err).Str("image", group.ImageName).Msg("group failed")
		return erroredResult(group, reference, err)
	}
	// calls made under a cancelled ctx were interrupted, not failed
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.logger.Debug().Str("image", group.ImageName).Msg("group interrupted by cancellation")
		return erroredResult(group, reference, fmt.Errorf("%s: %w", CancelledReason, ctxErr))
	}
	return result
}

func (p *Pipeline) runGroup(ctx context.Context, group *common.ProductGroup, reference common.Text) (common.GroupResult, error) {
	portals := make([]string, 0, len(group.Portals))
	for name := range group.Portals {
		portals = append(portals, name)
	}
	sort.Strings(portals)

	// Barrier 1: every portal transcription
	extractions := make([]common.ExtractionResult, len(portals))
	eg := new(errgroup.Group)
	for i, name := range portals {
		entry := group.Portals[name]
		eg.Go(guard(func() {
			extractions[i] = p.extractor.Extract(ctx, entry)
		}))
	}
	if err := eg.Wait(); err != nil {
		return common.GroupResult{}, fmt.Errorf("extraction: %w", err)
	}

	texts := make([]common.Text, len(extractions))
	for i, x := range extractions {
		texts[i] = x.Text
	}

	// Barrier 2: attributes, reference attribute and proofreading together
	attributes := make([]common.Text, len(portals))
	var (
		referenceAttribute common.Text
		typo               common.TypoVerdict
	)
	ag := new(errgroup.Group)
	for i := range portals {
		ag.Go(guard(func() {
			attributes[i] = p.analyzer.DeriveAttribute(ctx, texts[i])
		}))
	}
	ag.Go(guard(func() {
		referenceAttribute = p.analyzer.DeriveAttribute(ctx, reference)
	}))
	ag.Go(guard(func() {
		typo = p.analyzer.CheckTypos(ctx, texts)
	}))
	if err := ag.Wait(); err != nil {
		return common.GroupResult{}, fmt.Errorf("analysis: %w", err)
	}

	quantity := p.analyzer.CompareQuantities(ctx, referenceAttribute, attributes)

	result := common.GroupResult{
		ImageName:          group.ImageName,
		Portals:            make(map[string]common.PortalResult, len(portals)),
		Typo:               typo,
		Reference:          reference,
		ReferenceAttribute: referenceAttribute,
		TextComparison:     processor.CompareTexts(texts),
		QuantityComparison: quantity,
	}
	for i, name := range portals {
		result.Portals[name] = common.PortalResult{
			Portal:     name,
			FileID:     group.Portals[name].FileID,
			OCR:        extractions[i].Text,
			Attribute:  attributes[i],
			ImageBytes: extractions[i].ImageBytes,
		}
	}

	result = processor.Classify(result)
	p.logger.Debug().
		Str("image", result.ImageName).
		Str("status", string(result.Status)).
		Msg("group finished")
	return result, nil
}

func erroredResult(group *common.ProductGroup, reference common.Text, err error) common.GroupResult {
	portals := make(map[string]common.PortalResult, len(group.Portals))
	for name, entry := range group.Portals {
		portals[name] = common.PortalResult{Portal: name, FileID: entry.FileID}
	}
	return common.GroupResult{
		ImageName: group.ImageName,
		Status:    common.StatusErrored,
		Portals:   portals,
		Reference: reference,
		Err:       err.Error(),
	}
}

// guard turns a panic inside a worker goroutine into an error
func guard(fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		fn()
		return nil
	}
}
