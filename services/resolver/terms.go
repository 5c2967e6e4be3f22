package resolver

import (
	"unicode/utf8"

	"mediadex/models"
)

// Confidence weights. The blind-search creation threshold in the orchestrator
// only means something if these stay stable, so treat them as part of the
// wire contract.
const (
	confidenceSubtitle    = 10 // a localized subtitle was present
	confidenceCategory    = 5  // explicit category resolved before searching
	confidenceSeason      = 10 // season metadata present
	confidenceScopedQuery = 5  // accepted search used a category-scoped query
	confidenceStrictYear  = 20
	confidenceFuzzyYear   = 10
)

// searchTerm is one (category, term) search attempt. CategoryUnknown marks an
// un-scoped multi search.
type searchTerm struct {
	Category models.Category
	Term     string
}

// buildSearchTerms produces the ordered list of search attempts for a
// release, from the cleaned subtitle, cleaned title and the secondary
// subtitle-derived key. Category signals observed here are scored onto the
// record. Empty terms are dropped and duplicate (category, term) pairs
// collapse onto their first occurrence.
func buildSearchTerms(info *models.ReleaseInfo, cleanSub, cleanTitle, secondary string) []searchTerm {
	multi := models.CategoryUnknown

	var terms []searchTerm
	switch {
	case info.Season != "":
		// Season metadata is a strong TV signal.
		info.AddConfidence(confidenceSeason)
		terms = []searchTerm{
			{models.CategoryTV, cleanSub},
			{models.CategoryTV, cleanTitle},
			{multi, cleanSub},
			{multi, secondary},
		}
	case info.Category == models.CategoryTV:
		info.AddConfidence(confidenceCategory)
		terms = []searchTerm{
			{models.CategoryTV, cleanSub},
			{multi, cleanTitle},
			{multi, secondary},
		}
	case info.Category == models.CategoryMovie:
		info.AddConfidence(confidenceCategory)
		terms = []searchTerm{
			{models.CategoryMovie, cleanSub},
			{models.CategoryMovie, cleanTitle},
			{models.CategoryMovie, secondary},
			{multi, cleanSub},
			{multi, cleanTitle},
		}
	default:
		terms = []searchTerm{
			{multi, cleanSub},
			{multi, cleanTitle},
			{multi, secondary},
			{models.CategoryTV, cleanTitle},
			{models.CategoryMovie, cleanTitle},
		}
	}

	deduped := dedupeTerms(terms)

	// A very short subtitle is an unreliable search key; when the cleaned
	// title is substantial, try it first instead.
	if utf8.RuneCountInString(cleanSub) < 3 && utf8.RuneCountInString(cleanTitle) > 5 {
		deduped = promoteTerm(deduped, cleanTitle)
	}
	return deduped
}

// dedupeTerms drops empty terms and collapses duplicate (category, term)
// pairs, keeping first occurrences in order.
func dedupeTerms(terms []searchTerm) []searchTerm {
	seen := make(map[searchTerm]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if t.Term == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// promoteTerm stably moves attempts using the given term ahead of the rest.
func promoteTerm(terms []searchTerm, term string) []searchTerm {
	out := make([]searchTerm, 0, len(terms))
	for _, t := range terms {
		if t.Term == term {
			out = append(out, t)
		}
	}
	for _, t := range terms {
		if t.Term != term {
			out = append(out, t)
		}
	}
	return out
}
