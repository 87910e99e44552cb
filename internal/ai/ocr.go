// ocr.go - Extraction worker: image bytes to normalised text

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/width"
	"google.golang.org/api/googleapi"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/processor"
)

// ocrMaxOutputTokens caps the transcription length
const ocrMaxOutputTokens = 1000

// ImageFetcher downloads the bytes of one stored image
type ImageFetcher interface {
	FetchImageBytes(ctx context.Context, fileID string) ([]byte, error)
}

// ExtractorOptions tunes the image sent to the model
type ExtractorOptions struct {
	Preprocess   bool
	MaxDimension int
}

// Extractor runs OCR on one portal image
type Extractor struct {
	provider Provider
	images   ImageFetcher
	opts     ExtractorOptions
	logger   zerolog.Logger
}

// NewExtractor creates an Extractor
func NewExtractor(provider Provider, images ImageFetcher, opts ExtractorOptions, logger zerolog.Logger) *Extractor {
	return &Extractor{provider: provider, images: images, opts: opts, logger: logger}
}

// Extract fetches the image and transcribes it. Failures are returned as
// failure variants; the raw bytes are kept whenever the download succeeded.
func (e *Extractor) Extract(ctx context.Context, entry common.ImageEntry) common.ExtractionResult {
	result := common.ExtractionResult{Portal: entry.Portal}

	data, err := e.images.FetchImageBytes(ctx, entry.FileID)
	if err != nil {
		e.logger.Warn().Err(err).Str("portal", entry.Portal).Str("file_id", entry.FileID).Msg("image download failed")
		result.Text = imageFetchFailure(err)
		return result
	}
	result.ImageBytes = data

	payload, mimeType := data, entry.MIMEType
	if e.opts.Preprocess {
		if p, m, err := processor.PrepareForOCR(data, mimeType, e.opts.MaxDimension); err == nil {
			payload, mimeType = p, m
		} else {
			e.logger.Debug().Err(err).Str("file", entry.FileName).Msg("preprocessing skipped")
		}
	}

	resp, err := e.provider.Generate(ctx, Request{
		Prompt:          OCRPrompt,
		Image:           &ImagePart{MIMEType: mimeType, Data: payload},
		MaxOutputTokens: ocrMaxOutputTokens,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("portal", entry.Portal).Str("file", entry.FileName).Msg("OCR call failed")
		result.Text = FailureText(common.FailureAIEndpoint, err)
		return result
	}

	result.Text = common.Success(CleanOCRText(resp.Text))
	return result
}

func imageFetchFailure(err error) common.Text {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("HttpError %d", apiErr.Code)
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return common.TransientError(common.FailureImageFetch, msg)
		}
		return common.PermanentError(common.FailureImageFetch, msg)
	}
	pe := CategorizeError(err)
	if pe.Retryable {
		return common.TransientError(common.FailureImageFetch, err.Error())
	}
	return common.PermanentError(common.FailureImageFetch, err.Error())
}

// CleanOCRText strips fences, trims every line, drops blank lines and
// folds full-width alphanumerics and the multiplication sign.
func CleanOCRText(raw string) string {
	cleaned := strings.TrimSpace(stripCodeFences(raw))

	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	text := strings.Join(kept, "\n")

	if text == `""` {
		return ""
	}
	return foldCharacters(text)
}

func foldCharacters(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '×':
			return 'x'
		case isFullWidthAlnum(r):
			if narrow := width.LookupRune(r).Narrow(); narrow != 0 {
				return narrow
			}
		}
		return r
	}, s)
}

func isFullWidthAlnum(r rune) bool {
	return (r >= '０' && r <= '９') || (r >= 'Ａ' && r <= 'Ｚ') || (r >= 'ａ' && r <= 'ｚ')
}
