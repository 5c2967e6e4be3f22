package resolver

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"mediadex/models"
)

// minConfidence is the inclusive lower bound a blind-search result must reach
// before the resolver will create a catalog entry from it.
const minConfidence = 30

// CatalogStore is the persistence surface the resolver needs. Entry lookups
// return (nil, nil) on a clean miss.
type CatalogStore interface {
	EntryForTorname(ctx context.Context, torname string) (*models.CatalogEntry, error)
	EntryByTMDB(ctx context.Context, cat models.Category, tmdbID int64) (*models.CatalogEntry, error)
	EntryByIMDB(ctx context.Context, imdbID string) (*models.CatalogEntry, error)
	MatchPattern(ctx context.Context, cleanedTitle string) (*models.CatalogEntry, error)
	CreateEntry(ctx context.Context, entry models.CatalogEntry, release models.ReleaseRecord) (*models.CatalogEntry, error)
	AddRelease(ctx context.Context, entryID int64, release models.ReleaseRecord) (*models.ReleaseRecord, error)
}

// Resolver is the tiered fallback chain that decides whether a release name
// matches an existing catalog entry, warrants an external lookup, or gets
// rejected. Tiers run in a fixed order and the first success wins.
type Resolver struct {
	store    CatalogStore
	provider MetadataProvider
	searcher *Searcher
}

// New builds a Resolver around a catalog store and a metadata provider.
func New(store CatalogStore, provider MetadataProvider, lang string) *Resolver {
	return &Resolver{
		store:    store,
		provider: provider,
		searcher: NewSearcher(provider, lang),
	}
}

// Resolve runs one resolution pass. It returns ErrNoTitle when the release
// name cannot be parsed; store failures propagate. Provider failures inside a
// tier are logged and demote that tier to a miss.
func (r *Resolver) Resolve(ctx context.Context, req models.ResolveRequest) (models.ResolveResult, error) {
	trace := uuid.NewString()[:8]

	info, err := ParseRelease(req.Torname)
	if err != nil {
		return models.ResolveResult{Method: models.MatchNotFound}, err
	}

	if req.Subtitle != "" {
		info.Subtitle = req.Subtitle
		info.Title = req.Subtitle
	}
	if req.IMDBID != "" {
		info.IMDBID = req.IMDBID
	}
	if req.TMDBStr != "" {
		cat, id := ParseTMDBStr(req.TMDBStr)
		if cat != models.CategoryUnknown {
			info.Category = cat
		}
		info.TMDBID = id
	}
	info.InfoLink = req.InfoLink

	log.Printf("[resolver %s] torname %q title %q year %d cat %q", trace, info.Torname, info.Title, info.Year, info.Category)

	// Tier 1: the exact release name is already in the catalog.
	if entry, err := r.store.EntryForTorname(ctx, info.Torname); err != nil {
		return models.ResolveResult{Method: models.MatchNotFound}, err
	} else if entry != nil {
		log.Printf("[resolver %s] local exact: %q => %s-%d %q", trace, info.Torname, entry.Category, entry.TMDBID, entry.Title)
		return models.ResolveResult{Method: models.MatchLocalExact, Entry: entry}, nil
	}

	// Tier 2: caller supplied the provider id outright.
	if info.TMDBID != 0 && info.Category != models.CategoryUnknown {
		if res, done, err := r.resolveByTMDBID(ctx, trace, &info); done || err != nil {
			return res, err
		}
	}

	// Tier 3: caller supplied an IMDb id for a movie.
	if info.IMDBID != "" && info.Category == models.CategoryMovie {
		if res, done, err := r.resolveByIMDBID(ctx, trace, &info); done || err != nil {
			return res, err
		}
	}

	// Tier 4: a stored pattern recognizes the cleaned title.
	cleaned := CleanTitle(info.Title)
	if cleaned != "" {
		entry, err := r.store.MatchPattern(ctx, cleaned)
		if err != nil {
			return models.ResolveResult{Method: models.MatchNotFound}, err
		}
		if entry != nil {
			if _, err := r.store.AddRelease(ctx, entry.ID, releaseRecordFrom(info)); err != nil {
				return models.ResolveResult{Method: models.MatchNotFound}, err
			}
			log.Printf("[resolver %s] local pattern: %q => %s-%d %q", trace, info.Torname, entry.Category, entry.TMDBID, entry.Title)
			return models.ResolveResult{Method: models.MatchLocalByPattern, Entry: entry}, nil
		}
	}

	// Tier 5: blind search.
	return r.resolveBlind(ctx, trace, info, cleaned)
}

// ProbePattern runs only the pattern-scan tier: parse, clean, match against
// stored patterns, and attach the release on a hit. It never talks to the
// provider.
func (r *Resolver) ProbePattern(ctx context.Context, torname string) (*models.CatalogEntry, error) {
	info, err := ParseRelease(torname)
	if err != nil {
		return nil, err
	}
	cleaned := CleanTitle(info.Title)
	if cleaned == "" {
		return nil, nil
	}
	entry, err := r.store.MatchPattern(ctx, cleaned)
	if err != nil || entry == nil {
		return nil, err
	}
	if _, err := r.store.AddRelease(ctx, entry.ID, releaseRecordFrom(info)); err != nil {
		return nil, err
	}
	return entry, nil
}

// resolveByTMDBID serves category+id requests: local first, then a provider
// details fetch. A provider failure falls through to the later tiers.
func (r *Resolver) resolveByTMDBID(ctx context.Context, trace string, info *models.ReleaseInfo) (models.ResolveResult, bool, error) {
	entry, err := r.store.EntryByTMDB(ctx, info.Category, info.TMDBID)
	if err != nil {
		return models.ResolveResult{Method: models.MatchNotFound}, false, err
	}
	if entry != nil {
		if _, err := r.store.AddRelease(ctx, entry.ID, releaseRecordFrom(*info)); err != nil {
			return models.ResolveResult{Method: models.MatchNotFound}, false, err
		}
		log.Printf("[resolver %s] local tmdb id: %q => %s-%d", trace, info.Torname, entry.Category, entry.TMDBID)
		return models.ResolveResult{Method: models.MatchLocalByID, Entry: entry}, true, nil
	}

	cand, err := r.provider.DetailsByID(ctx, info.Category, info.TMDBID)
	if err != nil || cand == nil {
		log.Printf("[resolver %s] provider details %s-%d unavailable: %v", trace, info.Category, info.TMDBID, err)
		return models.ResolveResult{}, false, nil
	}
	info.ApplyCandidate(*cand)

	created, err := r.createEntry(ctx, trace, *info)
	if err != nil {
		return models.ResolveResult{}, false, err
	}
	if created == nil {
		return models.ResolveResult{}, false, nil
	}
	return models.ResolveResult{Method: models.MatchCreatedByID, Entry: created}, true, nil
}

// resolveByIMDBID serves imdb-id movie requests the same way: local lookup,
// then the provider's find endpoint, preferring results of the known
// category.
func (r *Resolver) resolveByIMDBID(ctx context.Context, trace string, info *models.ReleaseInfo) (models.ResolveResult, bool, error) {
	entry, err := r.store.EntryByIMDB(ctx, info.IMDBID)
	if err != nil {
		return models.ResolveResult{Method: models.MatchNotFound}, false, err
	}
	if entry != nil {
		if _, err := r.store.AddRelease(ctx, entry.ID, releaseRecordFrom(*info)); err != nil {
			return models.ResolveResult{Method: models.MatchNotFound}, false, err
		}
		log.Printf("[resolver %s] local imdb id: %q => %s", trace, info.Torname, info.IMDBID)
		return models.ResolveResult{Method: models.MatchLocalByIMDB, Entry: entry}, true, nil
	}

	movies, tv, err := r.provider.FindByIMDB(ctx, info.IMDBID)
	if err != nil {
		log.Printf("[resolver %s] provider find %s failed: %v", trace, info.IMDBID, err)
		return models.ResolveResult{}, false, nil
	}

	// Preferred-category results first; an episode id resolving to its
	// parent series lands in the tv results and is still acceptable.
	preferred, other := movies, tv
	if info.Category == models.CategoryTV {
		preferred, other = tv, movies
	}
	var cand *models.Candidate
	if len(preferred) > 0 {
		cand = &preferred[0]
	} else if len(other) > 0 {
		cand = &other[0]
	}
	if cand == nil {
		return models.ResolveResult{}, false, nil
	}
	info.ApplyCandidate(*cand)

	created, err := r.createEntry(ctx, trace, *info)
	if err != nil {
		return models.ResolveResult{}, false, err
	}
	if created == nil {
		return models.ResolveResult{}, false, nil
	}
	return models.ResolveResult{Method: models.MatchCreatedByIMDB, Entry: created}, true, nil
}

// resolveBlind runs the full search pipeline and gates creation on the
// accumulated confidence.
func (r *Resolver) resolveBlind(ctx context.Context, trace string, info models.ReleaseInfo, cleaned string) (models.ResolveResult, error) {
	matched, ok := r.searcher.Search(ctx, info)
	if !ok {
		return models.ResolveResult{Method: models.MatchNotFound, Confidence: matched.Confidence}, nil
	}

	// A previous pass may have created this identity under a different
	// release name; attach instead of racing a duplicate.
	if entry, err := r.store.EntryByTMDB(ctx, matched.Category, matched.TMDBID); err != nil {
		return models.ResolveResult{Method: models.MatchNotFound}, err
	} else if entry != nil {
		if _, err := r.store.AddRelease(ctx, entry.ID, releaseRecordFrom(matched)); err != nil {
			return models.ResolveResult{Method: models.MatchNotFound}, err
		}
		log.Printf("[resolver %s] blind hit existing entry: %q => %s-%d (confidence %d)", trace, matched.Torname, entry.Category, entry.TMDBID, matched.Confidence)
		return models.ResolveResult{Method: models.MatchLocalByID, Entry: entry, Confidence: matched.Confidence}, nil
	}

	if matched.Confidence < minConfidence {
		log.Printf("[resolver %s] blind confidence too low: %d < %d for %q => %s-%d", trace, matched.Confidence, minConfidence, matched.Torname, matched.Category, matched.TMDBID)
		return models.ResolveResult{Method: models.MatchRejectedLowConfidence, Confidence: matched.Confidence}, nil
	}

	created, err := r.createEntry(ctx, trace, matched)
	if err != nil {
		return models.ResolveResult{Method: models.MatchNotFound, Confidence: matched.Confidence}, err
	}
	if created == nil {
		return models.ResolveResult{Method: models.MatchRejectedLowConfidence, Confidence: matched.Confidence}, nil
	}
	return models.ResolveResult{Method: models.MatchCreatedBySearch, Entry: created, Confidence: matched.Confidence}, nil
}

// createEntry persists a new catalog entry together with its triggering
// release. It returns (nil, nil) when the creation guard trips on a duplicate
// pattern, which callers surface as a rejection rather than a partial write.
func (r *Resolver) createEntry(ctx context.Context, trace string, info models.ReleaseInfo) (*models.CatalogEntry, error) {
	title := CleanTitle(info.Title)
	if title == "" {
		log.Printf("[resolver %s] refusing to create entry with empty title for %q", trace, info.Torname)
		return nil, nil
	}

	entry := models.CatalogEntry{
		Pattern:             NormalizePattern(title),
		Title:               info.TMDBTitle,
		Category:            info.Category,
		TMDBID:              info.TMDBID,
		IMDBID:              info.IMDBID,
		IMDBRating:          info.IMDBRating,
		Year:                info.Year,
		OriginalLanguage:    info.OriginalLanguage,
		Popularity:          info.Popularity,
		PosterPath:          info.PosterPath,
		ReleaseAirDate:      info.ReleaseAirDate,
		GenreIDs:            joinGenreIDs(info.GenreIDs),
		OriginCountry:       info.OriginCountry,
		OriginalTitle:       info.OriginalTitle,
		Overview:            info.Overview,
		VoteAverage:         info.VoteAverage,
		ProductionCountries: info.ProductionCountries,
	}

	created, err := r.store.CreateEntry(ctx, entry, releaseRecordFrom(info))
	if errors.Is(err, models.ErrDuplicatePattern) {
		log.Printf("[resolver %s] pattern dupe: %q for %q, %s-%d", trace, entry.Pattern, info.Torname, info.Category, info.TMDBID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[resolver %s] created entry %d pattern %q (%s-%d)", trace, created.ID, created.Pattern, created.Category, created.TMDBID)
	return created, nil
}

// NormalizePattern anchors a stored pattern so it matches whole cleaned
// titles only.
func NormalizePattern(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern += "$"
	}
	return pattern
}

func releaseRecordFrom(info models.ReleaseInfo) models.ReleaseRecord {
	return models.ReleaseRecord{
		Torname:  info.Torname,
		InfoLink: info.InfoLink,
		Subtitle: info.Subtitle,
	}
}

func joinGenreIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
