// models.go - Data model shared by the reconciliation pipeline

package common

import "errors"

// AllProducts selects every product code of a business code
const AllProducts = "all"

var (
	// ErrNoGroups is returned when a run has nothing to process
	ErrNoGroups = errors.New("no images matched the selection")

	// ErrInvalidRequest is returned when a run request is incomplete
	ErrInvalidRequest = errors.New("invalid request parameters")
)

// ImageEntry is one image file as listed by the image store
type ImageEntry struct {
	Portal   string `json:"portal" bson:"portal"`
	FileID   string `json:"file_id" bson:"file_id"`
	MIMEType string `json:"mime_type" bson:"mime_type"`
	FileName string `json:"file_name" bson:"file_name"`
}

// Listing maps a portal name to the images found for it
type Listing map[string][]ImageEntry

// PortalNames returns the portal names of the listing (unsorted)
func (l Listing) PortalNames() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	return names
}

// RunContext selects what a run reconciles. It is passed by value and never mutated.
type RunContext struct {
	BusinessCode  string `json:"business_code"`
	ProductCode   string `json:"product_code"`
	ReferenceCode string `json:"reference_code"`
}

// AllProductsSelected reports whether the run covers every product of the business code
func (rc RunContext) AllProductsSelected() bool {
	return rc.ProductCode == "" || rc.ProductCode == AllProducts
}

// ProductGroup holds every portal variant of one image file name
type ProductGroup struct {
	ImageName string                `json:"image_name"`
	Portals   map[string]ImageEntry `json:"portals"`
}

// ReferenceContent maps a product code to its authoritative content description
type ReferenceContent map[string]Text

// ExtractionResult is the OCR output for one portal variant
type ExtractionResult struct {
	Portal     string
	Text       Text
	ImageBytes []byte
}

// AttributeResult is the quantity/content part derived from an OCR text
type AttributeResult struct {
	Portal string
	Text   Text
}

// TextOutcome is the result of comparing OCR texts across portals
type TextOutcome string

const (
	TextOK            TextOutcome = "ok"
	TextDiffers       TextOutcome = "differs"
	TextNotApplicable TextOutcome = "not_applicable"
)

// QuantityOutcome is the result of comparing portal quantities to the reference
type QuantityOutcome string

const (
	QuantityOK          QuantityOutcome = "ok"
	QuantityMismatch    QuantityOutcome = "mismatch"
	QuantityNeedsReview QuantityOutcome = "needs_review"
	QuantityNotStated   QuantityOutcome = "not_stated"
)

// Flagged reports whether the outcome requires a human to look at the product
func (q QuantityOutcome) Flagged() bool {
	return q == QuantityMismatch || q == QuantityNeedsReview
}

// TypoStatus is the state of a typo check
type TypoStatus string

const (
	TypoOK          TypoStatus = "ok"
	TypoError       TypoStatus = "error"
	TypoUnknown     TypoStatus = "unknown"
	TypoUnparseable TypoStatus = "unparseable"
	TypoFailed      TypoStatus = "failed"
)

// TypoVerdict is the proofreading result of one group
type TypoVerdict struct {
	Status  TypoStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// OK reports whether the verdict is clean
func (v TypoVerdict) OK() bool {
	return v.Status == TypoOK
}

// GroupStatus is the final verdict of a group
type GroupStatus string

const (
	StatusClean       GroupStatus = "clean"
	StatusNeedsReview GroupStatus = "needs_review"
	StatusErrored     GroupStatus = "errored"
)

// PortalResult collects everything one portal contributed to a group
type PortalResult struct {
	Portal     string `json:"portal"`
	FileID     string `json:"file_id"`
	OCR        Text   `json:"ocr"`
	Attribute  Text   `json:"attribute"`
	ImageBytes []byte `json:"-"`
}

// HasImage reports whether image bytes were obtained
func (p PortalResult) HasImage() bool {
	return len(p.ImageBytes) > 0
}

// GroupResult is the terminal record of one group
type GroupResult struct {
	ImageName          string                  `json:"image_name"`
	Status             GroupStatus             `json:"status"`
	Portals            map[string]PortalResult `json:"portals"`
	Typo               TypoVerdict             `json:"typo"`
	Reference          Text                    `json:"reference"`
	ReferenceAttribute Text                    `json:"reference_attribute"`
	TextComparison     TextOutcome             `json:"text_comparison"`
	QuantityComparison QuantityOutcome         `json:"quantity_comparison"`
	ErrorDetection     string                  `json:"error_detection"`
	Err                string                  `json:"error,omitempty"`
}
