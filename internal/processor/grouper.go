// grouper.go - Partition a portal listing into per-image product groups

package processor

import (
	"sort"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

// GroupSet is the input of one pipeline run
type GroupSet struct {
	Groups map[string]*common.ProductGroup
	// ReferenceCodes are the distinct product codes to look up, sorted
	ReferenceCodes []string
	// Portals are every portal of the listing, sorted, including portals with no match
	Portals []string
}

// Len returns the number of groups
func (gs GroupSet) Len() int {
	return len(gs.Groups)
}

// ImageNames returns the group keys in sorted order
func (gs GroupSet) ImageNames() []string {
	names := make([]string, 0, len(gs.Groups))
	for name := range gs.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildGroups keeps the listing entries matching rc and groups them by image file name
func BuildGroups(listing common.Listing, rc common.RunContext) GroupSet {
	groups := make(map[string]*common.ProductGroup)
	codes := make(map[string]struct{})

	for portal, files := range listing {
		for _, f := range files {
			if !Selected(f.FileName, rc) {
				continue
			}

			g, ok := groups[f.FileName]
			if !ok {
				g = &common.ProductGroup{
					ImageName: f.FileName,
					Portals:   make(map[string]common.ImageEntry),
				}
				groups[f.FileName] = g
			}
			entry := f
			entry.Portal = portal
			g.Portals[portal] = entry

			codes[ReferenceCodeFor(f.FileName, rc)] = struct{}{}
		}
	}

	portals := listing.PortalNames()
	sort.Strings(portals)

	return GroupSet{
		Groups:         groups,
		ReferenceCodes: sortedKeys(codes),
		Portals:        portals,
	}
}

// ReferenceCodeFor returns the product code a group is looked up under
func ReferenceCodeFor(imageName string, rc common.RunContext) string {
	if rc.AllProductsSelected() {
		return ProductCode(imageName)
	}
	return rc.ProductCode
}
