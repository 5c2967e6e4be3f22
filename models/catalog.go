package models

import (
	"errors"
	"time"
)

// ErrDuplicatePattern is returned when a proposed entry pattern already
// exists byte-for-byte in the catalog.
var ErrDuplicatePattern = errors.New("catalog pattern already exists")

// CatalogEntry is one canonical media identity. Its Pattern is an anchored
// regular expression matched against cleaned release titles so that future
// releases of the same title land on the same entry. Pattern is unique across
// the catalog.
type CatalogEntry struct {
	ID                  int64           `json:"id"`
	Pattern             string          `json:"pattern"`
	Title               string          `json:"title"`
	Category            Category        `json:"category"`
	TMDBID              int64           `json:"tmdbId"`
	IMDBID              string          `json:"imdbId,omitempty"`
	IMDBRating          float64         `json:"imdbRating,omitempty"`
	Year                int             `json:"year,omitempty"`
	OriginalLanguage    string          `json:"originalLanguage,omitempty"`
	Popularity          float64         `json:"popularity,omitempty"`
	PosterPath          string          `json:"posterPath,omitempty"`
	ReleaseAirDate      string          `json:"releaseAirDate,omitempty"`
	GenreIDs            string          `json:"genreIds,omitempty"` // comma separated
	OriginCountry       string          `json:"originCountry,omitempty"`
	OriginalTitle       string          `json:"originalTitle,omitempty"`
	Overview            string          `json:"overview,omitempty"`
	VoteAverage         float64         `json:"voteAverage,omitempty"`
	ProductionCountries string          `json:"productionCountries,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	Releases            []ReleaseRecord `json:"releases,omitempty"`
}

// ReleaseRecord is one observed release name bound to a catalog entry. The
// name is unique across the catalog; inserting a duplicate is a no-op.
type ReleaseRecord struct {
	ID        int64     `json:"id"`
	EntryID   int64     `json:"entryId"`
	Torname   string    `json:"torname"`
	InfoLink  string    `json:"infoLink,omitempty"`
	Subtitle  string    `json:"subtitle,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MatchMethod is the terminal state of one resolution pass.
type MatchMethod string

const (
	MatchLocalExact            MatchMethod = "local_exact"
	MatchLocalByID             MatchMethod = "local_by_id"
	MatchCreatedByID           MatchMethod = "created_by_id"
	MatchLocalByIMDB           MatchMethod = "local_by_imdb"
	MatchCreatedByIMDB         MatchMethod = "created_by_imdb"
	MatchLocalByPattern        MatchMethod = "local_by_pattern"
	MatchCreatedBySearch       MatchMethod = "created_by_search"
	MatchRejectedLowConfidence MatchMethod = "rejected_low_confidence"
	MatchNotFound              MatchMethod = "not_found"
)

// ResolveRequest is the payload callers submit to identify a release name.
// TMDBStr is a compound "category-id" string such as "movie-603" or "tv603";
// a bare number carries no category.
type ResolveRequest struct {
	Torname  string `json:"torname"`
	Subtitle string `json:"extitle,omitempty"`
	IMDBID   string `json:"imdbid,omitempty"`
	TMDBStr  string `json:"tmdbstr,omitempty"`
	InfoLink string `json:"infolink,omitempty"`
}

// ResolveResult is the outcome of one resolution pass. Entry is set for the
// matched and created methods and nil otherwise. Confidence reports the
// accumulated score of a blind search, including rejected ones.
type ResolveResult struct {
	Method     MatchMethod   `json:"method"`
	Entry      *CatalogEntry `json:"entry,omitempty"`
	Confidence int           `json:"confidence,omitempty"`
}

// RecordUpsert carries the fields callers may set when manually creating or
// editing a catalog entry.
type RecordUpsert struct {
	Pattern  string `json:"pattern"`
	Title    string `json:"title"`
	Category string `json:"category"`
	TMDBID   int64  `json:"tmdbId"`
	Year     int    `json:"year"`
}
