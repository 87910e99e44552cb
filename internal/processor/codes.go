// codes.go - Product and business code derivation from image file names

package processor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

// businessCodePatterns are tried in order; the more specific shapes win.
var businessCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[0-9]{2}[A-Za-z]{4}`), // 01ABCD
	regexp.MustCompile(`^[A-Za-z]{4}`),         // ABCD
	regexp.MustCompile(`^[A-Za-z]{3}`),         // ABC
}

// ProductCode strips the extension and returns everything before the first hyphen
func ProductCode(fileName string) string {
	stem := fileName
	if i := strings.LastIndex(stem, "."); i >= 0 {
		stem = stem[:i]
	}
	if i := strings.Index(stem, "-"); i >= 0 {
		return stem[:i]
	}
	return stem
}

// BusinessCode returns the uppercased business prefix of a product code
func BusinessCode(productCode string) (string, bool) {
	if productCode == "" {
		return "", false
	}
	for _, p := range businessCodePatterns {
		if m := p.FindString(productCode); m != "" {
			return strings.ToUpper(m), true
		}
	}
	return "", false
}

// businessCodeOf derives the business code straight from a file name
func businessCodeOf(fileName string) string {
	code, _ := BusinessCode(ProductCode(fileName))
	return code
}

// Selected reports whether an image file belongs to the run selection
func Selected(fileName string, rc common.RunContext) bool {
	productCode := ProductCode(fileName)
	code, ok := BusinessCode(productCode)
	if !ok || code != rc.BusinessCode {
		return false
	}
	return rc.AllProductsSelected() || productCode == rc.ProductCode
}

// BusinessCodes lists the distinct business codes found in a listing, sorted
func BusinessCodes(listing common.Listing) []string {
	seen := make(map[string]struct{})
	for _, files := range listing {
		for _, f := range files {
			if code := businessCodeOf(f.FileName); code != "" {
				seen[code] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

// ProductCodesFor lists the distinct product codes of one business code, sorted
func ProductCodesFor(listing common.Listing, businessCode string) []string {
	if businessCode == "" {
		return []string{}
	}
	seen := make(map[string]struct{})
	for _, files := range listing {
		for _, f := range files {
			productCode := ProductCode(f.FileName)
			if code, ok := BusinessCode(productCode); ok && code == businessCode {
				seen[productCode] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

// CountImages returns the number of distinct image names and the total number of
// portal images a run would process
func CountImages(listing common.Listing, rc common.RunContext) (records int, images int) {
	names := make(map[string]struct{})
	for _, files := range listing {
		for _, f := range files {
			if Selected(f.FileName, rc) {
				names[f.FileName] = struct{}{}
				images++
			}
		}
	}
	return len(names), images
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
