// Package tmdb implements the metadata provider against The Movie Database's
// REST API. Raw API responses are normalized into models.Candidate at this
// boundary; nothing outside this package sees provider field shapes.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"mediadex/models"
)

const (
	tmdbBaseURL = "https://api.themoviedb.org/3"
)

var (
	ErrNotConfigured = errors.New("tmdb api key not configured")
	ErrNotFound      = errors.New("tmdb: not found")
)

// Client talks to the TMDB v3 API. Safe for concurrent use.
type Client struct {
	apiKey   string
	language string
	httpc    *http.Client

	// Rate limiting
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewClient builds a Client. A nil http.Client gets a sane default timeout.
func NewClient(apiKey, language string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiKey:      strings.TrimSpace(apiKey),
		language:    strings.TrimSpace(language),
		httpc:       httpc,
		minInterval: 20 * time.Millisecond, // TMDB has generous rate limits
	}
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// retryableStatusError marks HTTP statuses worth retrying.
type retryableStatusError struct{ status string }

func (e *retryableStatusError) Error() string { return "tmdb request failed: " + e.status }

// doGET performs a rate-limited GET with bounded retry and exponential
// backoff. Rate-limit and server-side statuses are retried; client errors are
// not.
func (c *Client) doGET(ctx context.Context, endpoint string, query url.Values, v any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	query.Set("api_key", c.apiKey)
	if c.language != "" {
		query.Set("language", c.language)
	}

	return retry.Do(
		func() error {
			c.throttleMu.Lock()
			since := time.Since(c.lastRequest)
			if since < c.minInterval {
				time.Sleep(c.minInterval - since)
			}
			c.lastRequest = time.Now()
			c.throttleMu.Unlock()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.URL.RawQuery = query.Encode()

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(ErrNotFound)
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return &retryableStatusError{status: resp.Status}
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("tmdb request failed: %s", resp.Status))
			}

			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// tmdbResult is the union of the fields search/details/find responses carry
// for movies and tv entries.
type tmdbResult struct {
	ID               int64   `json:"id"`
	MediaType        string  `json:"media_type"`
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	OriginalTitle    string  `json:"original_title"`
	OriginalName     string  `json:"original_name"`
	OriginalLanguage string  `json:"original_language"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	GenreIDs         []int64 `json:"genre_ids"`
	Genres           []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
	OriginCountry       []string `json:"origin_country"`
	ProductionCountries []struct {
		ISO31661 string `json:"iso_3166_1"`
		Name     string `json:"name"`
	} `json:"production_countries"`
	ExternalIDs struct {
		IMDBID string `json:"imdb_id"`
	} `json:"external_ids"`
	IMDBID string `json:"imdb_id"`
	ShowID int64  `json:"show_id"` // only on tv_episode_results
}

type tmdbSearchResponse struct {
	Results []tmdbResult `json:"results"`
}

type tmdbFindResponse struct {
	MovieResults     []tmdbResult `json:"movie_results"`
	TVResults        []tmdbResult `json:"tv_results"`
	TVEpisodeResults []tmdbResult `json:"tv_episode_results"`
}

// toCandidate maps a raw result onto the fixed candidate shape. cat overrides
// the result's own media_type for category-scoped queries whose results do
// not carry one.
func toCandidate(r tmdbResult, cat models.Category) models.Candidate {
	if cat == models.CategoryUnknown {
		cat = models.ParseCategory(r.MediaType)
	}

	title := r.Title
	date := r.ReleaseDate
	original := r.OriginalTitle
	if cat == models.CategoryTV || title == "" {
		if r.Name != "" {
			title = r.Name
		}
		if r.OriginalName != "" {
			original = r.OriginalName
		}
	}
	if date == "" {
		date = r.FirstAirDate
	}

	lang := r.OriginalLanguage
	if lang == "zh" {
		lang = "cn"
	}

	genreIDs := r.GenreIDs
	if len(r.Genres) > 0 {
		genreIDs = make([]int64, 0, len(r.Genres))
		for _, g := range r.Genres {
			genreIDs = append(genreIDs, g.ID)
		}
	}

	origin := ""
	if len(r.OriginCountry) > 0 {
		origin = r.OriginCountry[0]
	}
	production := ""
	if len(r.ProductionCountries) > 0 {
		production = r.ProductionCountries[0].ISO31661
	}
	imdbID := r.ExternalIDs.IMDBID
	if imdbID == "" {
		imdbID = r.IMDBID
	}

	return models.Candidate{
		ID:                  r.ID,
		Category:            cat,
		Title:               title,
		OriginalTitle:       original,
		OriginalLanguage:    lang,
		Popularity:          r.Popularity,
		PosterPath:          r.PosterPath,
		ReleaseAirDate:      date,
		GenreIDs:            genreIDs,
		Overview:            r.Overview,
		VoteAverage:         r.VoteAverage,
		OriginCountry:       origin,
		ProductionCountries: production,
		IMDBID:              imdbID,
	}
}

func toCandidates(results []tmdbResult, cat models.Category) []models.Candidate {
	out := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, toCandidate(r, cat))
	}
	return out
}

// SearchMovies queries the movie search endpoint. year narrows the query when
// non-zero.
func (c *Client) SearchMovies(ctx context.Context, term string, year int) ([]models.Candidate, error) {
	endpoint, err := url.JoinPath(tmdbBaseURL, "search", "movie")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("query", term)
	q.Set("include_adult", "true")
	if year > 0 {
		q.Set("year", strconv.Itoa(year))
	}
	var payload tmdbSearchResponse
	if err := c.doGET(ctx, endpoint, q, &payload); err != nil {
		return nil, err
	}
	return toCandidates(payload.Results, models.CategoryMovie), nil
}

// SearchTV queries the tv search endpoint.
func (c *Client) SearchTV(ctx context.Context, term string, year int) ([]models.Candidate, error) {
	endpoint, err := url.JoinPath(tmdbBaseURL, "search", "tv")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("query", term)
	q.Set("include_adult", "true")
	if year > 0 {
		q.Set("first_air_date_year", strconv.Itoa(year))
	}
	var payload tmdbSearchResponse
	if err := c.doGET(ctx, endpoint, q, &payload); err != nil {
		return nil, err
	}
	return toCandidates(payload.Results, models.CategoryTV), nil
}

// SearchMulti queries the un-scoped multi endpoint. The API's multi search
// does not take a year.
func (c *Client) SearchMulti(ctx context.Context, term string) ([]models.Candidate, error) {
	endpoint, err := url.JoinPath(tmdbBaseURL, "search", "multi")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("query", term)
	q.Set("include_adult", "true")
	q.Set("page", "1")
	var payload tmdbSearchResponse
	if err := c.doGET(ctx, endpoint, q, &payload); err != nil {
		return nil, err
	}

	// Multi search also returns people; keep only movie and tv rows.
	cands := make([]models.Candidate, 0, len(payload.Results))
	for _, r := range payload.Results {
		if cat := models.ParseCategory(r.MediaType); cat != models.CategoryUnknown {
			cands = append(cands, toCandidate(r, cat))
		}
	}
	return cands, nil
}

// DetailsByID fetches full details for a known (category, id) pair. Returns
// (nil, nil) when the provider has no such entry.
func (c *Client) DetailsByID(ctx context.Context, cat models.Category, id int64) (*models.Candidate, error) {
	if cat != models.CategoryMovie && cat != models.CategoryTV {
		return nil, fmt.Errorf("tmdb: details need a movie or tv category, got %q", cat)
	}
	endpoint, err := url.JoinPath(tmdbBaseURL, string(cat), strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("append_to_response", "external_ids")

	var payload tmdbResult
	if err := c.doGET(ctx, endpoint, q, &payload); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	cand := toCandidate(payload, cat)
	return &cand, nil
}

// FindByIMDB resolves an IMDb id through the find endpoint, returning movie
// and tv matches separately. An IMDb id naming a single episode resolves to
// its parent series via the episode results' show id.
func (c *Client) FindByIMDB(ctx context.Context, imdbID string) (movies, tv []models.Candidate, err error) {
	if !strings.HasPrefix(imdbID, "tt") {
		return nil, nil, fmt.Errorf("tmdb: invalid imdb id %q", imdbID)
	}
	endpoint, err := url.JoinPath(tmdbBaseURL, "find", imdbID)
	if err != nil {
		return nil, nil, err
	}
	q := url.Values{}
	q.Set("external_source", "imdb_id")

	var payload tmdbFindResponse
	if err := c.doGET(ctx, endpoint, q, &payload); err != nil {
		return nil, nil, err
	}

	movies = toCandidates(payload.MovieResults, models.CategoryMovie)
	tv = toCandidates(payload.TVResults, models.CategoryTV)

	// An IMDb id naming a single episode resolves to its parent series.
	if len(movies) == 0 && len(tv) == 0 && len(payload.TVEpisodeResults) > 0 {
		if showID := payload.TVEpisodeResults[0].ShowID; showID != 0 {
			series, err := c.DetailsByID(ctx, models.CategoryTV, showID)
			if err == nil && series != nil {
				tv = []models.Candidate{*series}
			}
		}
	}
	return movies, tv, nil
}
