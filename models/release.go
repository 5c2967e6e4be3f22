package models

// Category identifies the kind of media a release or catalog entry refers to.
type Category string

const (
	CategoryMovie   Category = "movie"
	CategoryTV      Category = "tv"
	CategoryUnknown Category = ""
)

// ParseCategory maps free-form category strings onto the known set.
func ParseCategory(s string) Category {
	switch s {
	case "movie":
		return CategoryMovie
	case "tv":
		return CategoryTV
	default:
		return CategoryUnknown
	}
}

// ReleaseInfo is the working record for one resolution request. It starts as
// the tokenizer's view of the raw release name and is extended (never
// cleared) as identifiers and provider metadata are attached. Stages pass it
// by value and return their own copy, so no stage observes another stage's
// in-flight mutations.
type ReleaseInfo struct {
	Torname  string
	Title    string // primary matching title (localized subtitle wins when present)
	Subtitle string // localized secondary title, usually a CJK run
	Season   string // e.g. "S01"
	Episode  string // e.g. "E06"
	Year     int    // 0 = unknown

	// Technical tags. Informational only, never used for matching.
	Resolution string
	Source     string
	VideoCodec string
	AudioCodec string
	Group      string

	Category Category
	TMDBID   int64
	IMDBID   string
	InfoLink string

	// Provider-supplied fields, filled once a candidate is accepted.
	TMDBTitle           string
	OriginalTitle       string
	OriginalLanguage    string
	Popularity          float64
	PosterPath          string
	ReleaseAirDate      string
	GenreIDs            []int64
	Overview            string
	VoteAverage         float64
	OriginCountry       string
	ProductionCountries string
	IMDBRating          float64

	// Confidence accumulated across the pass. Only ever incremented.
	Confidence int
}

// AddConfidence raises the accumulated confidence. Negative deltas are
// ignored so the score stays monotonically non-decreasing.
func (r *ReleaseInfo) AddConfidence(delta int) {
	if delta > 0 {
		r.Confidence += delta
	}
}

// ApplyCandidate copies an accepted provider candidate into the record.
func (r *ReleaseInfo) ApplyCandidate(c Candidate) {
	r.TMDBID = c.ID
	if c.Category != CategoryUnknown {
		r.Category = c.Category
	}
	r.TMDBTitle = c.Title
	r.OriginalTitle = c.OriginalTitle
	r.OriginalLanguage = c.OriginalLanguage
	r.Popularity = c.Popularity
	r.PosterPath = c.PosterPath
	r.ReleaseAirDate = c.ReleaseAirDate
	if len(c.GenreIDs) > 0 {
		r.GenreIDs = c.GenreIDs
	}
	r.Overview = c.Overview
	r.VoteAverage = c.VoteAverage
	r.OriginCountry = c.OriginCountry
	r.ProductionCountries = c.ProductionCountries
	if c.IMDBID != "" {
		r.IMDBID = c.IMDBID
	}
	if y := c.Year(); y > 0 {
		r.Year = y
	}
}

// Candidate is the normalized shape of one provider result. The provider
// client maps its raw responses into this at the boundary; nothing past the
// client ever branches on which optional fields a response happened to carry.
type Candidate struct {
	ID                  int64
	Category            Category
	Title               string
	OriginalTitle       string
	OriginalLanguage    string
	Popularity          float64
	PosterPath          string
	ReleaseAirDate      string // release_date for movies, first_air_date for tv
	GenreIDs            []int64
	Overview            string
	VoteAverage         float64
	OriginCountry       string
	ProductionCountries string
	IMDBID              string
}

// Year extracts the four-digit year from the candidate's release date.
func (c Candidate) Year() int {
	s := c.ReleaseAirDate
	if len(s) < 4 {
		return 0
	}
	y := 0
	for _, ch := range s[:4] {
		if ch < '0' || ch > '9' {
			return 0
		}
		y = y*10 + int(ch-'0')
	}
	if y < 1900 || y > 2100 {
		return 0
	}
	return y
}
