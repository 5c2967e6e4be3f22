package resolver

import (
	"context"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"mediadex/models"
)

// MetadataProvider is the external metadata source consumed by the resolver.
// Implementations return the normalized Candidate shape; a typed error means
// the provider itself failed, an empty slice means a clean miss.
type MetadataProvider interface {
	SearchMovies(ctx context.Context, term string, year int) ([]models.Candidate, error)
	SearchTV(ctx context.Context, term string, year int) ([]models.Candidate, error)
	SearchMulti(ctx context.Context, term string) ([]models.Candidate, error)
	DetailsByID(ctx context.Context, cat models.Category, id int64) (*models.Candidate, error)
	FindByIMDB(ctx context.Context, imdbID string) (movies, tv []models.Candidate, err error)
}

// matchQuality records how a candidate's year related to the release's year
// hint when it was accepted.
type matchQuality string

const (
	matchStrict matchQuality = "strict"
	matchFuzzy  matchQuality = "fuzzy"
	matchAny    matchQuality = "any"
)

// Searcher runs the blind-search pipeline: term generation, provider queries,
// year filtering and confidence scoring.
type Searcher struct {
	provider  MetadataProvider
	preferCJK bool
}

// NewSearcher builds a Searcher. The provider language decides tie-breaks:
// for Chinese output languages, candidates whose title contains CJK text are
// preferred among otherwise equal results.
func NewSearcher(provider MetadataProvider, lang string) *Searcher {
	return &Searcher{
		provider:  provider,
		preferCJK: isChinese(lang),
	}
}

func isChinese(lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	return base.String() == "zh"
}

// Search attempts to identify the release against the provider. It returns a
// copy of the record with the accepted candidate applied and the confidence
// accumulated; ok is false when no term produced a candidate. Provider
// failures on individual terms are logged and treated as misses for that
// term only.
func (s *Searcher) Search(ctx context.Context, info models.ReleaseInfo) (models.ReleaseInfo, bool) {
	cleanTitle := CleanTitle(info.Title)
	cleanSub := CleanTitle(info.Subtitle)
	secondary := SecondaryTitle(cleanSub)

	// The raw title carries the hint; cleaning strips the suffix away.
	if info.Category == models.CategoryUnknown && strings.Contains(strings.ToLower(info.Title), "the movie") {
		info.Category = models.CategoryMovie
	}

	info.AddConfidence(utf8.RuneCountInString(cleanTitle))
	if cleanSub != "" {
		info.AddConfidence(confidenceSubtitle)
	}

	year := s.yearHint(info)
	terms := buildSearchTerms(&info, cleanSub, cleanTitle, secondary)

	for _, term := range terms {
		cands, err := s.query(ctx, term, year)
		if err != nil {
			log.Printf("[searcher] provider query failed for %q [%s]: %v", term.Term, term.Category, err)
			continue
		}

		cand, quality := s.pickCandidate(cands, year)
		if cand == nil {
			continue
		}

		info.ApplyCandidate(*cand)
		if info.Category == models.CategoryUnknown && term.Category != models.CategoryUnknown {
			info.Category = term.Category
		}

		switch quality {
		case matchStrict:
			info.AddConfidence(confidenceStrictYear)
		case matchFuzzy:
			info.AddConfidence(confidenceFuzzyYear)
		}
		if term.Category != models.CategoryUnknown {
			info.AddConfidence(confidenceScopedQuery)
		}

		log.Printf("[searcher] accepted %s-%d %q for %q (year match %s, confidence %d)",
			info.Category, info.TMDBID, info.TMDBTitle, info.Torname, quality, info.Confidence)
		return info, true
	}

	log.Printf("[searcher] no candidate for %q (title %q, subtitle %q)", info.Torname, cleanTitle, cleanSub)
	return info, false
}

// yearHint validates the parsed year and suppresses it for TV releases past
// season 1: a later season's release year has nothing to do with the show's
// first-air year the provider indexes by.
func (s *Searcher) yearHint(info models.ReleaseInfo) int {
	year := info.Year
	if year <= 1900 || year >= 2100 {
		year = 0
	}
	if info.Season != "" && !strings.Contains(info.Season, "S01") {
		year = 0
	}
	return year
}

func (s *Searcher) query(ctx context.Context, term searchTerm, year int) ([]models.Candidate, error) {
	switch term.Category {
	case models.CategoryTV:
		return s.provider.SearchTV(ctx, term.Term, year)
	case models.CategoryMovie:
		return s.provider.SearchMovies(ctx, term.Term, year)
	default:
		return s.provider.SearchMulti(ctx, term.Term)
	}
}

// pickCandidate applies the three year passes, stopping at the first that
// leaves candidates: exact year, year within one, then (only when no year
// hint exists) anything.
func (s *Searcher) pickCandidate(cands []models.Candidate, year int) (*models.Candidate, matchQuality) {
	if len(cands) == 0 {
		return nil, ""
	}
	if year == 0 {
		return s.preferred(cands), matchAny
	}

	var strict, fuzzy []models.Candidate
	for _, c := range cands {
		cy := c.Year()
		if cy == year {
			strict = append(strict, c)
		}
		if cy >= year-1 && cy <= year+1 {
			fuzzy = append(fuzzy, c)
		}
	}
	if len(strict) > 0 {
		return s.preferred(strict), matchStrict
	}
	if len(fuzzy) > 0 {
		return s.preferred(fuzzy), matchFuzzy
	}
	return nil, ""
}

var cjkPattern = regexp.MustCompile(`\p{Han}`)

// preferred picks the candidate to keep from an accepted set. With a Chinese
// output language the first CJK-titled candidate among the leading three
// wins; otherwise provider order decides.
func (s *Searcher) preferred(cands []models.Candidate) *models.Candidate {
	if s.preferCJK {
		limit := min(len(cands), 3)
		for i := 0; i < limit; i++ {
			if cjkPattern.MatchString(cands[i].Title) {
				return &cands[i]
			}
		}
	}
	return &cands[0]
}
