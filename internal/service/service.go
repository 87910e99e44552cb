// service.go - Folder scans and reconciliation runs on top of the image store, the registry and the AI provider

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bosocmputer/product_ocr_reconcile/internal/ai"
	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/pipeline"
	"github.com/bosocmputer/product_ocr_reconcile/internal/processor"
	"github.com/bosocmputer/product_ocr_reconcile/internal/storage"
)

// ImageStore lists portal images and downloads them
type ImageStore interface {
	ListImages(ctx context.Context, folderID string) (common.Listing, error)
	FetchImageBytes(ctx context.Context, fileID string) ([]byte, error)
}

// ReferenceFetcher looks up authoritative content per product code
type ReferenceFetcher interface {
	FetchAll(ctx context.Context, codes []string, contextCode string) common.ReferenceContent
}

// Municipalities resolves municipality names to registry context codes
type Municipalities interface {
	List(ctx context.Context) ([]storage.Municipality, error)
	CodeFor(ctx context.Context, name string) (string, bool, error)
	Suggest(ctx context.Context, name string, limit int) ([]string, error)
}

// Options tunes runs
type Options struct {
	MaxConcurrentGroups int
	Extractor           ai.ExtractorOptions
	Pricing             common.Pricing
}

// Service wires the stores into the reconciliation pipeline
type Service struct {
	images         ImageStore
	references     ReferenceFetcher
	municipalities Municipalities
	provider       ai.Provider
	history        storage.HistoryStore
	opts           Options
	logger         zerolog.Logger
}

// New creates a service. municipalities and history may be nil.
func New(images ImageStore, references ReferenceFetcher, municipalities Municipalities, provider ai.Provider, history storage.HistoryStore, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		images:         images,
		references:     references,
		municipalities: municipalities,
		provider:       provider,
		history:        history,
		opts:           opts,
		logger:         logger,
	}
}

// ScanRequest selects what a scan counts
type ScanRequest struct {
	Folder       string `json:"folder"`
	BusinessCode string `json:"business_code"`
	ProductCode  string `json:"product_code"`
}

// ScanResult describes a folder before any AI call is made
type ScanResult struct {
	FolderID      string   `json:"folder_id"`
	Portals       []string `json:"portals"`
	BusinessCodes []string `json:"business_codes"`
	ProductCodes  []string `json:"product_codes,omitempty"`
	Records       int      `json:"records"`
	Images        int      `json:"images"`
}

// ScanFolder lists the folder and reports business codes, the product codes
// of the requested business code and how many images a run would process
func (s *Service) ScanFolder(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	folderID, err := resolveFolder(req.Folder)
	if err != nil {
		return nil, err
	}

	listing, err := s.images.ListImages(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder: %w", err)
	}

	gs := processor.BuildGroups(listing, common.RunContext{})
	result := &ScanResult{
		FolderID:      folderID,
		Portals:       gs.Portals,
		BusinessCodes: processor.BusinessCodes(listing),
	}
	if req.BusinessCode != "" {
		rc := common.RunContext{BusinessCode: req.BusinessCode, ProductCode: req.ProductCode}
		result.ProductCodes = processor.ProductCodesFor(listing, req.BusinessCode)
		result.Records, result.Images = processor.CountImages(listing, rc)
	}
	return result, nil
}

// ListMunicipalities returns the municipality directory
func (s *Service) ListMunicipalities(ctx context.Context) ([]storage.Municipality, error) {
	if s.municipalities == nil {
		return nil, errors.New("municipality directory is not configured")
	}
	return s.municipalities.List(ctx)
}

// RecentExecutions returns the newest execution logs
func (s *Service) RecentExecutions(ctx context.Context, limit int) ([]storage.ExecutionLog, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.RecentExecutions(ctx, limit)
}

// ReconcileRequest selects one run. ContextCode wins over Municipality.
type ReconcileRequest struct {
	Folder       string `json:"folder"`
	BusinessCode string `json:"business_code"`
	ProductCode  string `json:"product_code"`
	Municipality string `json:"municipality"`
	ContextCode  string `json:"context_code"`
	User         string `json:"user"`
}

// Result is a finished (or cancelled) run
type Result struct {
	RunID  string            `json:"run_id"`
	Report *processor.Report `json:"report"`
	Usage  common.TokenUsage `json:"usage"`
	Steps  []common.StepLog  `json:"steps"`
}

// Reconcile runs one reconciliation pass. Only setup failures are returned as
// errors; per-product failures end up in the report.
func (s *Service) Reconcile(ctx context.Context, req ReconcileRequest, onProgress pipeline.ProgressFunc) (*Result, error) {
	if strings.TrimSpace(req.BusinessCode) == "" {
		return nil, fmt.Errorf("%w: business_code is required", common.ErrInvalidRequest)
	}
	folderID, err := resolveFolder(req.Folder)
	if err != nil {
		return nil, err
	}
	contextCode, err := s.resolveContextCode(ctx, req)
	if err != nil {
		return nil, err
	}

	reqCtx := common.NewRequestContext(s.logger, req.User, s.opts.Pricing)
	logger := *reqCtx.Logger()

	run := common.RunContext{
		BusinessCode:  req.BusinessCode,
		ProductCode:   req.ProductCode,
		ReferenceCode: contextCode,
	}
	if run.ProductCode == "" {
		run.ProductCode = common.AllProducts
	}

	reqCtx.StartStep("list_images")
	listing, err := s.images.ListImages(ctx, folderID)
	if err != nil {
		reqCtx.EndStep("failed", err)
		return nil, fmt.Errorf("failed to list folder: %w", err)
	}
	gs := processor.BuildGroups(listing, run)
	if gs.Len() == 0 {
		reqCtx.EndStep("failed", common.ErrNoGroups)
		return nil, common.ErrNoGroups
	}
	reqCtx.EndStep("success", nil)

	reqCtx.StartStep("fetch_reference")
	refs := s.references.FetchAll(ctx, gs.ReferenceCodes, run.ReferenceCode)
	reqCtx.EndStep("success", nil)

	provider := ai.WithUsage(s.provider, reqCtx)
	extractor := ai.NewExtractor(provider, s.images, s.opts.Extractor, logger)
	analyzer := ai.NewAnalyzer(provider, logger)
	p := pipeline.New(extractor, analyzer, pipeline.Config{MaxConcurrentGroups: s.opts.MaxConcurrentGroups}, logger)

	reqCtx.StartStep("reconcile")
	report, err := p.Run(ctx, gs, run, refs, onProgress)
	if err != nil {
		reqCtx.EndStep("failed", err)
		return nil, err
	}
	status := "success"
	if report.Incomplete {
		status = "cancelled"
	}
	reqCtx.EndStep(status, nil)

	usage := reqCtx.Usage()
	summary := report.Summary()
	logger.Info().
		Int("groups", gs.Len()).
		Int("clean", summary[common.StatusClean]).
		Int("needs_review", summary[common.StatusNeedsReview]).
		Int("errored", summary[common.StatusErrored]).
		Int("ai_calls", reqCtx.AICalls()).
		Int("total_tokens", usage.TotalTokens).
		Float64("cost_jpy", usage.CostJPY).
		Bool("incomplete", report.Incomplete).
		Msg("run finished")

	s.saveExecution(ctx, reqCtx, run, gs, usage, report.Incomplete)

	return &Result{
		RunID:  reqCtx.RequestID,
		Report: report,
		Usage:  usage,
		Steps:  reqCtx.Steps,
	}, nil
}

func (s *Service) resolveContextCode(ctx context.Context, req ReconcileRequest) (string, error) {
	if req.ContextCode != "" {
		return req.ContextCode, nil
	}
	if req.Municipality == "" {
		return "", nil
	}
	if s.municipalities == nil {
		return "", fmt.Errorf("%w: municipality directory is not configured", common.ErrInvalidRequest)
	}
	code, ok, err := s.municipalities.CodeFor(ctx, req.Municipality)
	if err != nil {
		return "", fmt.Errorf("failed to load municipality directory: %w", err)
	}
	if !ok {
		if similar, _ := s.municipalities.Suggest(ctx, req.Municipality, 3); len(similar) > 0 {
			return "", fmt.Errorf("%w: unknown municipality %q (did you mean %s?)", common.ErrInvalidRequest, req.Municipality, strings.Join(similar, ", "))
		}
		return "", fmt.Errorf("%w: unknown municipality %q", common.ErrInvalidRequest, req.Municipality)
	}
	return code, nil
}

// saveExecution records the run even when ctx was cancelled
func (s *Service) saveExecution(ctx context.Context, reqCtx *common.RequestContext, run common.RunContext, gs processor.GroupSet, usage common.TokenUsage, incomplete bool) {
	if s.history == nil {
		return
	}

	images := 0
	for _, g := range gs.Groups {
		images += len(g.Portals)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := s.history.SaveExecution(ctx, storage.ExecutionLog{
		RunID:         reqCtx.RequestID,
		User:          reqCtx.User,
		Provider:      s.provider.GetProviderName(),
		BusinessCode:  run.BusinessCode,
		ProductCode:   run.ProductCode,
		ReferenceCode: run.ReferenceCode,
		ImageCount:    images,
		GroupCount:    gs.Len(),
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		TotalTokens:   usage.TotalTokens,
		CostJPY:       usage.CostJPY,
		Incomplete:    incomplete,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		reqCtx.LogWarning("failed to save execution log: %v", err)
	}
}

// resolveFolder accepts a Drive folder URL or a bare folder id
func resolveFolder(folder string) (string, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "", fmt.Errorf("%w: folder is required", common.ErrInvalidRequest)
	}
	if id, ok := storage.FolderIDFromURL(folder); ok {
		return id, nil
	}
	if strings.Contains(folder, "/") {
		return "", fmt.Errorf("%w: not a Drive folder URL: %s", common.ErrInvalidRequest, folder)
	}
	if !storage.IsDriveID(folder) {
		return "", fmt.Errorf("%w: not a Drive folder id: %q", common.ErrInvalidRequest, folder)
	}
	return folder, nil
}
