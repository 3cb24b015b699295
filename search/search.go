// Package search provides the weighted fuzzy text index over places. A
// name hit always outranks a city hit, a city hit always outranks a region
// hit, and so on down to addresses.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"

	"web/artmap/place"
)

// Field weights. Chosen so that any match on a heavier field beats every
// match on a lighter one (scoring takes the best field, not the sum).
const (
	weightName        = 10
	weightCity        = 6
	weightRegion      = 4
	weightDescription = 2
	weightAddress     = 1
)

// Scores within one field: an in-order (subsequence) match sits above any
// typo-tolerant match, and typo matches degrade with edit distance.
const (
	subsequenceBase = 1000
	typoBase        = 500
	typoPenalty     = 100
)

// Options configure an index at build time. Queries cannot override them.
type Options struct {
	MinQueryLength  int // below this, Search is a no-op
	MaxTypoDistance int // Levenshtein tolerance per token
}

// Index is the text search index over a fixed snapshot of places. Rebuilt
// wholesale when the place list changes.
type Index struct {
	places  []place.Place
	fields  [][]indexedField // per place, heaviest first
	Options Options
}

type indexedField struct {
	text   string // lowercased
	weight int
}

// NewIndex builds the index; every place is searchable, including those
// without valid coordinates.
func NewIndex(places []place.Place, options Options) *Index {
	if options.MinQueryLength <= 0 {
		options.MinQueryLength = 2
	}
	if options.MaxTypoDistance <= 0 {
		options.MaxTypoDistance = 2
	}

	idx := &Index{
		places:  places,
		fields:  make([][]indexedField, len(places)),
		Options: options,
	}
	for i, p := range places {
		idx.fields[i] = []indexedField{
			{strings.ToLower(p.Name), weightName},
			{strings.ToLower(p.City), weightCity},
			{strings.ToLower(p.Region), weightRegion},
			{strings.ToLower(p.Description), weightDescription},
			{strings.ToLower(p.Address), weightAddress},
		}
	}
	return idx
}

// Search returns places matching the query, most relevant first, ties in
// original place order. Queries shorter than MinQueryLength return an
// empty slice; so does a query with no matches. Never an error.
func (idx *Index) Search(query string) []place.Place {
	q := strings.ToLower(strings.TrimSpace(query))
	qLen := utf8.RuneCountInString(q)
	if qLen < idx.Options.MinQueryLength {
		return []place.Place{}
	}

	// Short queries tolerate fewer edits; a 4-rune query allowing 2 edits
	// matches half the dictionary.
	maxTypo := (qLen - 1) / 2
	if maxTypo > idx.Options.MaxTypoDistance {
		maxTypo = idx.Options.MaxTypoDistance
	}

	type scored struct {
		pos   int
		score int
	}
	var hits []scored

	for i, fields := range idx.fields {
		best := 0
		for _, f := range fields {
			if s := fieldScore(q, f.text, maxTypo); s > 0 {
				if w := s * f.weight; w > best {
					best = w
				}
			}
		}
		if best > 0 {
			hits = append(hits, scored{pos: i, score: best})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]place.Place, len(hits))
	for i, h := range hits {
		out[i] = idx.places[h.pos]
	}
	return out
}

// fieldScore rates q against one lowercased field. Zero means no match.
func fieldScore(q, text string, maxTypo int) int {
	if text == "" {
		return 0
	}

	if matches := fuzzy.Find(q, []string{text}); len(matches) > 0 {
		m := matches[0]
		// An in-order match only counts when it is compact: the matched
		// characters may spread over at most half the query length beyond
		// the query itself. Without this cutoff any long description
		// matches almost any query one letter at a time.
		span := m.MatchedIndexes[len(m.MatchedIndexes)-1] - m.MatchedIndexes[0] + 1
		if span <= len(q)+(len(q)+1)/2 {
			s := subsequenceBase + m.Score
			if s < typoBase+1 {
				// A gappy-but-compact match still beats the worst typo hit.
				s = typoBase + 1
			}
			return s
		}
	}

	// No in-order match; tolerate small typos per word.
	bestDist := -1
	for _, word := range strings.FieldsFunc(text, isWordSep) {
		d := levenshtein.ComputeDistance(q, word)
		if d <= maxTypo && d < utf8.RuneCountInString(q) {
			if bestDist == -1 || d < bestDist {
				bestDist = d
			}
		}
	}
	if bestDist >= 0 {
		return typoBase - typoPenalty*bestDist
	}
	return 0
}

func isWordSep(r rune) bool {
	return r == ' ' || r == '-' || r == '\'' || r == ',' || r == '.'
}
