// classifier.go - Final per-group status and the two result tables

package processor

import (
	"encoding/base64"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

// Error detection messages
const (
	DetectionImageLoad = "画像読み込み失敗あり"
	DetectionText      = "テキスト検出失敗あり"
)

// Column names of the result tables
const (
	ColumnNo             = "No"
	ColumnImageName      = "画像名"
	ColumnStatus         = "ステータス"
	ColumnTextComparison = "テキスト比較"
	ColumnTypo           = "誤字脱字"
	ColumnReference      = "NENG内容量"
	ColumnQuantity       = "内容量比較"
	ColumnErrorDetection = "エラー検出"
)

const (
	colorRed  = "red"
	colorBlue = "blue"
	colorGray = "gray"
)

// Table is a rendered result set with a fixed column order
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Report is the outcome of aggregating a run
type Report struct {
	Display Table                `json:"display"`
	Plain   Table                `json:"plain"`
	Results []common.GroupResult `json:"results"`
	// Incomplete is set when the run was cancelled before every group started
	Incomplete bool `json:"incomplete"`
}

// Summary counts groups per status
func (r *Report) Summary() map[common.GroupStatus]int {
	out := make(map[common.GroupStatus]int)
	for _, res := range r.Results {
		out[res.Status]++
	}
	return out
}

// Classify derives the error detection message and the status of a group
func Classify(r common.GroupResult) common.GroupResult {
	if r.Status == common.StatusErrored {
		return r
	}

	r.ErrorDetection = detectErrors(r.Portals)

	flagged := r.ErrorDetection != "" ||
		r.TextComparison == common.TextDiffers ||
		!r.Typo.OK() ||
		r.QuantityComparison.Flagged()

	if flagged {
		r.Status = common.StatusNeedsReview
	} else {
		r.Status = common.StatusClean
	}
	return r
}

func detectErrors(portals map[string]common.PortalResult) string {
	for _, p := range portals {
		if p.OCR.IsFailure() && p.OCR.Failure == common.FailureImageFetch {
			return DetectionImageLoad
		}
	}
	for _, p := range portals {
		if p.HasImage() && !p.OCR.Usable() {
			return DetectionText
		}
	}
	return ""
}

// PortalColumns returns the three column names of one portal
func PortalColumns(portal string) (image, ocr, attribute string) {
	return portal + "（画像）", portal + "（OCR）", portal + "（内容量）"
}

// Columns returns the full column order for the given portals
func Columns(portals []string) []string {
	sorted := append([]string(nil), portals...)
	sort.Strings(sorted)

	cols := []string{ColumnNo, ColumnImageName, ColumnStatus}
	for _, p := range sorted {
		img, ocr, attr := PortalColumns(p)
		cols = append(cols, img, ocr, attr)
	}
	return append(cols, ColumnTextComparison, ColumnTypo, ColumnReference, ColumnQuantity, ColumnErrorDetection)
}

// ImageLink is the viewer URL of an image store file
func ImageLink(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", fileID)
}

// Aggregate sorts the results by image name and renders both tables
func Aggregate(results []common.GroupResult, portals []string) *Report {
	sorted := append([]common.GroupResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ImageName < sorted[j].ImageName })

	portalOrder := append([]string(nil), portals...)
	sort.Strings(portalOrder)

	columns := Columns(portalOrder)
	report := &Report{
		Display: Table{Columns: columns, Rows: make([][]string, 0, len(sorted))},
		Plain:   Table{Columns: columns, Rows: make([][]string, 0, len(sorted))},
		Results: sorted,
	}

	for i, r := range sorted {
		display, plain := renderRow(i+1, r, portalOrder)
		report.Display.Rows = append(report.Display.Rows, display)
		report.Plain.Rows = append(report.Plain.Rows, plain)
	}
	return report
}

func renderRow(no int, r common.GroupResult, portals []string) (display, plain []string) {
	status, statusColor := statusLabel(r.Status)
	display = []string{strconv.Itoa(no), html.EscapeString(r.ImageName), colored(status, statusColor)}
	plain = []string{strconv.Itoa(no), r.ImageName, status}

	for _, name := range portals {
		p, ok := r.Portals[name]
		if !ok || p.FileID == "" {
			display = append(display, "", "", "")
			plain = append(plain, "", "", "")
			continue
		}

		link := ImageLink(p.FileID)
		ocr := p.OCR.Display()
		attr := p.Attribute.Display()

		imgCell := ""
		if p.HasImage() {
			imgCell = fmt.Sprintf(`<a href="%s" target="_blank"><img src="data:image/png;base64,%s" style="max-height: 100px; display: block; margin: auto;"></a>`,
				link, base64.StdEncoding.EncodeToString(p.ImageBytes))
		}
		display = append(display, imgCell, multiline(ocr), multiline(attr))
		plain = append(plain, link, ocr, attr)
	}

	textLabel, textColor := textComparisonLabel(r.TextComparison)
	typoLabel, typoColor := typoLabel(r.Typo)
	reference := referenceCell(r)
	qtyLabel, qtyColor := quantityLabel(r.QuantityComparison)

	detection := r.ErrorDetection
	if r.Status == common.StatusErrored {
		detection = "処理エラー: " + r.Err
	}
	detectionCell := ""
	if detection != "" {
		detectionCell = colored(detection, colorRed)
	}

	display = append(display,
		colored(textLabel, textColor),
		colored(typoLabel, typoColor),
		multiline(reference),
		colored(qtyLabel, qtyColor),
		detectionCell,
	)
	plain = append(plain, textLabel, typoLabel, reference, qtyLabel, detection)
	return display, plain
}

// referenceCell shows the derived reference attribute, or why there is none
func referenceCell(r common.GroupResult) string {
	if r.Reference.IsFailure() {
		return r.Reference.Label()
	}
	return r.ReferenceAttribute.Display()
}

func statusLabel(s common.GroupStatus) (string, string) {
	switch s {
	case common.StatusClean:
		return "異常なし", colorBlue
	case common.StatusErrored:
		return "処理エラー", colorRed
	default:
		return "要確認", colorRed
	}
}

func textComparisonLabel(o common.TextOutcome) (string, string) {
	switch o {
	case common.TextOK:
		return "OK！", colorBlue
	case common.TextDiffers:
		return "差分あり", colorRed
	case common.TextNotApplicable:
		return "比較対象なし", colorGray
	default:
		return "", colorGray
	}
}

func typoLabel(v common.TypoVerdict) (string, string) {
	switch v.Status {
	case common.TypoOK:
		return "OK！", colorBlue
	case common.TypoError:
		if v.Message == "" {
			return "エラー", colorRed
		}
		return v.Message, colorRed
	case common.TypoUnparseable:
		return "解析不能", colorRed
	case common.TypoFailed:
		return "AI APIエラー", colorRed
	case common.TypoUnknown:
		return "不明", colorRed
	default:
		return "", colorGray
	}
}

func quantityLabel(q common.QuantityOutcome) (string, string) {
	switch q {
	case common.QuantityOK:
		return "OK！", colorBlue
	case common.QuantityMismatch:
		return "不一致", colorRed
	case common.QuantityNeedsReview:
		return "要確認", colorRed
	case common.QuantityNotStated:
		return "内容量記載なし", colorGray
	default:
		return "", colorGray
	}
}

func colored(text, color string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf(`<span style="color: %s;">%s</span>`, color, multiline(text))
}

func multiline(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}
