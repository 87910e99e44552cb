// municipality_match.go - Name normalisation and fuzzy suggestions for the municipality directory

package storage

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/width"
)

// MinSuggestionSimilarity is the lowest similarity (0-100) offered as a suggestion
const MinSuggestionSimilarity = 50.0

var nonNameChars = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// normalizeMunicipalityName folds width, drops spaces and punctuation and the
// prefecture prefix so "北海道 札幌市" and "札幌市" compare equal
func normalizeMunicipalityName(name string) string {
	name = width.Fold.String(name)
	name = strings.ToLower(name)
	name = nonNameChars.ReplaceAllString(name, "")

	for _, pref := range []string{"北海道", "東京都", "大阪府", "京都府"} {
		if rest := strings.TrimPrefix(name, pref); rest != name && rest != "" {
			return rest
		}
	}
	if i := strings.IndexRune(name, '県'); i > 0 && i+len("県") < len(name) {
		return name[i+len("県"):]
	}
	return name
}

// nameSimilarity returns 0-100 based on the rune edit distance
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 100.0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := float64(max(len(ra), len(rb)))
	if maxLen == 0 {
		return 0.0
	}
	similarity := (1.0 - float64(levenshteinDistance(ra, rb))/maxLen) * 100.0
	return math.Max(0, similarity)
}

func levenshteinDistance(s1, s2 []rune) int {
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

// matchMunicipality finds an exact name first, then a normalised one.
// A normalised name shared by several entries is ambiguous and not matched.
func matchMunicipality(list []Municipality, name string) (Municipality, bool) {
	for _, mu := range list {
		if mu.Name == name {
			return mu, true
		}
	}

	want := normalizeMunicipalityName(name)
	if want == "" {
		return Municipality{}, false
	}
	var found []Municipality
	for _, mu := range list {
		if normalizeMunicipalityName(mu.Name) == want {
			found = append(found, mu)
		}
	}
	if len(found) != 1 {
		return Municipality{}, false
	}
	return found[0], true
}

// Suggest returns up to limit directory names similar to name, best first
func (m *MunicipalityDirectory) Suggest(ctx context.Context, name string, limit int) ([]string, error) {
	list, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		name  string
		score float64
	}
	want := normalizeMunicipalityName(name)
	var candidates []scored
	for _, mu := range list {
		if s := nameSimilarity(want, normalizeMunicipalityName(mu.Name)); s >= MinSuggestionSimilarity {
			candidates = append(candidates, scored{mu.Name, s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	out := make([]string, 0, min(limit, len(candidates)))
	for i := 0; i < len(candidates) && i < limit; i++ {
		out = append(out, candidates[i].name)
	}
	return out, nil
}
