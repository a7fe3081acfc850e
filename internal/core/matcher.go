package core

// matcher.go proposes column-to-attribute associations by fuzzy matching
// file headers against attribute labels.
//
// Similarity is 1 - levenshtein(header, label) / len(header), with length
// counted in runes. The score is normalized by the header only, so a label
// much longer than the header drives it below zero; such scores are clamped
// to 0. Both decision thresholds sit above zero so the clamp never changes
// an outcome. An exact, case-sensitive match always scores 1.0.

import (
	"sort"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

const (
	// MatchThreshold is the similarity an attribute's best header must
	// exceed to be assigned by MatchHeaders.
	MatchThreshold = 0.5

	// IgnoreSimilarity is the fixed score of the "ignore this column"
	// candidate. Attributes scoring below it rank after ignoring.
	IgnoreSimilarity = 0.6
)

// Similarity scores how well header matches label, in [0,1].
//
// An empty header only matches an empty label.
func Similarity(header, label string) float64 {
	if header == label {
		return 1.0
	}
	n := utf8.RuneCountInString(header)
	if n == 0 {
		return 0
	}
	s := 1 - float64(levenshtein.Distance(header, label, nil))/float64(n)
	if s < 0 {
		return 0
	}
	return s
}

// labelSimilarity returns the best score of header against any of the
// attribute's labels. An exact match stops the search.
func labelSimilarity(header string, attr AttributeSpec) float64 {
	best := 0.0
	for _, label := range attr.Labels {
		if header == label {
			return 1.0
		}
		if s := Similarity(header, label); s > best {
			best = s
		}
	}
	return best
}

// MatchHeaders assigns file headers to attributes greedily, in attribute
// order. Each attribute takes the header it scores best against (the first
// one on ties) if the score exceeds MatchThreshold and no earlier attribute
// has claimed that header. The result maps attribute key to header;
// attributes without a qualifying header are absent.
func MatchHeaders(attributes []AttributeSpec, fileHeaders []string) map[string]string {
	result := make(map[string]string)
	if len(attributes) == 0 || len(fileHeaders) == 0 {
		return result
	}

	claimed := make(map[string]bool, len(fileHeaders))
	for _, attr := range attributes {
		bestHeader := ""
		best := -1.0
		for _, header := range fileHeaders {
			if s := labelSimilarity(header, attr); s > best {
				best = s
				bestHeader = header
			}
		}

		// A later attribute losing its header to an earlier one gets nothing,
		// even if its score was higher.
		if best > MatchThreshold && !claimed[bestHeader] {
			result[attr.Key] = bestHeader
			claimed[bestHeader] = true
		}
	}
	return result
}

// Candidates ranks every attribute for a single header, best first, with the
// ignore sentinel included at IgnoreSimilarity. Equal scores keep attribute
// declaration order and rank attributes ahead of the sentinel.
func Candidates(header string, attributes []AttributeSpec) []HeaderCandidate {
	out := make([]HeaderCandidate, 0, len(attributes)+1)
	for _, attr := range attributes {
		out = append(out, HeaderCandidate{
			Header:     header,
			Attribute:  attr.Key,
			Similarity: labelSimilarity(header, attr),
		})
	}
	out = append(out, HeaderCandidate{
		Header:     header,
		Similarity: IgnoreSimilarity,
		Ignore:     true,
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}

// DefaultAttributeForHeader returns the attribute a MatchHeaders result
// assigned to header, or "" if the header was not claimed.
func DefaultAttributeForHeader(header string, matches map[string]string) string {
	for key, h := range matches {
		if h == header {
			return key
		}
	}
	return ""
}

// ProposeMapping builds a ColumnMapping keyed by header text with every file
// header present. Unclaimed headers map to "".
func ProposeMapping(attributes []AttributeSpec, fileHeaders []string) ColumnMapping {
	matches := MatchHeaders(attributes, fileHeaders)
	mapping := make(ColumnMapping, len(fileHeaders))
	for _, h := range fileHeaders {
		if _, done := mapping[h]; done {
			continue
		}
		mapping[h] = DefaultAttributeForHeader(h, matches)
	}
	return mapping
}

// HeaderSuggestion is the ranked candidate list for one file column.
type HeaderSuggestion struct {
	Index      int               `json:"index"`
	Header     string            `json:"header"`
	Proposed   string            `json:"proposed"` // attribute from MatchHeaders, "" if none
	Candidates []HeaderCandidate `json:"candidates"`
}

// Suggest returns one HeaderSuggestion per file header, in file order.
func Suggest(attributes []AttributeSpec, fileHeaders []string) []HeaderSuggestion {
	matches := MatchHeaders(attributes, fileHeaders)
	out := make([]HeaderSuggestion, len(fileHeaders))
	for i, h := range fileHeaders {
		out[i] = HeaderSuggestion{
			Index:      i,
			Header:     h,
			Proposed:   DefaultAttributeForHeader(h, matches),
			Candidates: Candidates(h, attributes),
		}
	}
	return out
}
