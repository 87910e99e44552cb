// build.go - Service assembly from configuration: Drive, Sheets, registry, AI provider and history

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/bosocmputer/product_ocr_reconcile/configs"
	"github.com/bosocmputer/product_ocr_reconcile/internal/ai"
	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/reference"
	"github.com/bosocmputer/product_ocr_reconcile/internal/storage"
)

// Build creates a service from configuration. history may be nil; when a
// history spreadsheet is configured, logs are also appended there. The
// returned func releases the AI backend and the history stores.
func Build(ctx context.Context, cfg *configs.Config, history storage.HistoryStore, logger zerolog.Logger) (*Service, func(context.Context) error, error) {
	var googleOpts []option.ClientOption
	if cfg.Google.CredentialsFile != "" {
		googleOpts = append(googleOpts, option.WithCredentialsFile(cfg.Google.CredentialsFile))
	}

	images, err := storage.NewDriveStore(ctx, logger, googleOpts...)
	if err != nil {
		return nil, nil, err
	}

	var municipalities Municipalities
	if cfg.Municipality.SpreadsheetID != "" {
		srv, err := storage.NewSheetsService(ctx, true, googleOpts...)
		if err != nil {
			return nil, nil, err
		}
		municipalities = storage.NewMunicipalityDirectory(srv, cfg.Municipality.SpreadsheetID, cfg.Municipality.Range, logger)
	}

	if cfg.History.SpreadsheetID != "" {
		srv, err := storage.NewSheetsService(ctx, false, googleOpts...)
		if err != nil {
			return nil, nil, err
		}
		sheet := storage.NewSheetsHistory(srv, cfg.History.SpreadsheetID, cfg.History.Sheet)
		if history == nil {
			history = sheet
		} else {
			history = storage.MultiHistory{history, sheet}
		}
	}

	refs := reference.NewClient(reference.Config{
		BaseURL:  cfg.Reference.BaseURL,
		User:     cfg.Reference.User,
		Password: cfg.Reference.Password,
		Timeout:  cfg.Reference.Timeout,
	}, logger)

	provider, closeProvider, err := ai.NewProvider(ctx, ai.ProviderConfig{
		Provider:          cfg.AI.Provider,
		GeminiAPIKey:      cfg.Gemini.APIKey,
		GeminiModel:       cfg.Gemini.Model,
		OpenAIAPIKey:      cfg.OpenAI.APIKey,
		OpenAIModel:       cfg.OpenAI.Model,
		MaxAttempts:       cfg.AI.MaxAttempts,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AI provider: %w", err)
	}

	svc := New(images, refs, municipalities, provider, history, Options{
		MaxConcurrentGroups: cfg.MaxConcurrentGroups,
		Extractor: ai.ExtractorOptions{
			Preprocess:   cfg.EnableImagePreprocessing,
			MaxDimension: cfg.MaxImageDimension,
		},
		Pricing: common.Pricing{
			InputPerMillion:  cfg.InputPricePerMillion,
			OutputPerMillion: cfg.OutputPricePerMillion,
			USDToJPY:         cfg.USDToJPY,
		},
	}, logger)

	closeFn := func(ctx context.Context) error {
		errs := []error{closeProvider()}
		if history != nil {
			errs = append(errs, history.Close(ctx))
		}
		return errors.Join(errs...)
	}
	return svc, closeFn, nil
}
