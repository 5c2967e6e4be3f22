// Package catalog persists media identities and their observed release names
// in sqlite.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"

	"mediadex/models"
)

var ErrEntryNotFound = errors.New("catalog entry not found")

const entryColumns = `id, pattern, title, tmdb_cat, tmdb_id, imdb_id, imdb_rating, year,
	original_language, popularity, poster_path, release_air_date, genre_ids,
	origin_country, original_title, overview, vote_average, production_countries, created_at`

// Service implements the catalog store on a sqlite database. Pattern matching
// during resolution uses a precompiled regex cache keyed by entry id; the
// cache revalidates against the stored pattern text on every scan, so pattern
// edits take effect without explicit invalidation.
type Service struct {
	db *sql.DB

	mu       sync.Mutex
	compiled map[int64]*compiledPattern
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp // nil when the stored pattern does not compile
}

// NewService wraps an opened, migrated database.
func NewService(db *sql.DB) *Service {
	return &Service{
		db:       db,
		compiled: make(map[int64]*compiledPattern),
	}
}

func scanEntry(row interface{ Scan(...any) error }) (*models.CatalogEntry, error) {
	var e models.CatalogEntry
	err := row.Scan(
		&e.ID, &e.Pattern, &e.Title, &e.Category, &e.TMDBID, &e.IMDBID, &e.IMDBRating, &e.Year,
		&e.OriginalLanguage, &e.Popularity, &e.PosterPath, &e.ReleaseAirDate, &e.GenreIDs,
		&e.OriginCountry, &e.OriginalTitle, &e.Overview, &e.VoteAverage, &e.ProductionCountries, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EntryByID returns one entry with its releases attached, or (nil, nil).
func (s *Service) EntryByID(ctx context.Context, id int64) (*models.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err != nil || entry == nil {
		return entry, err
	}
	if err := s.attachReleases(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// EntryForTorname returns the entry owning a release with exactly this name.
func (s *Service) EntryForTorname(ctx context.Context, torname string) (*models.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE id = (SELECT entry_id FROM releases WHERE torname = ?)`, torname)
	return scanEntry(row)
}

// EntryByTMDB returns the entry for a (category, provider id) pair.
func (s *Service) EntryByTMDB(ctx context.Context, cat models.Category, tmdbID int64) (*models.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE tmdb_cat = ? AND tmdb_id = ? ORDER BY id LIMIT 1`, string(cat), tmdbID)
	return scanEntry(row)
}

// EntryByIMDB returns the entry carrying this IMDb id.
func (s *Service) EntryByIMDB(ctx context.Context, imdbID string) (*models.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE imdb_id = ? AND imdb_id != '' ORDER BY id LIMIT 1`, imdbID)
	return scanEntry(row)
}

// MatchPattern evaluates every stored pattern against the cleaned title in
// insertion order and returns the first entry whose pattern matches. A stored
// pattern that fails to compile is logged and skipped; it never aborts the
// scan.
func (s *Service) MatchPattern(ctx context.Context, cleanedTitle string) (*models.CatalogEntry, error) {
	if cleanedTitle == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, pattern FROM entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matchID int64 = -1
	for rows.Next() {
		var (
			id      int64
			pattern string
		)
		if err := rows.Scan(&id, &pattern); err != nil {
			return nil, err
		}
		re := s.compile(id, pattern)
		if re == nil {
			continue
		}
		if re.MatchString(cleanedTitle) {
			matchID = id
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if matchID < 0 {
		return nil, nil
	}
	return s.EntryByID(ctx, matchID)
}

// compile returns the cached compiled pattern for an entry, recompiling when
// the stored text changed. Malformed patterns compile to nil.
func (s *Service) compile(id int64, pattern string) *regexp.Regexp {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.compiled[id]; ok && c.source == pattern {
		return c.re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("[catalog] invalid pattern for entry %d: %q: %v", id, pattern, err)
		re = nil
	}
	s.compiled[id] = &compiledPattern{source: pattern, re: re}
	return re
}

func (s *Service) forgetPattern(id int64) {
	s.mu.Lock()
	delete(s.compiled, id)
	s.mu.Unlock()
}

// CreateEntry inserts a new entry together with its triggering release in one
// transaction, so a failure between the two writes leaves nothing behind.
// Returns models.ErrDuplicatePattern when the pattern already exists.
func (s *Service) CreateEntry(ctx context.Context, entry models.CatalogEntry, release models.ReleaseRecord) (*models.CatalogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE pattern = ?`, entry.Pattern).Scan(&exists); err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, fmt.Errorf("pattern %q: %w", entry.Pattern, models.ErrDuplicatePattern)
	}

	entryID, err := insertEntry(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	if _, err := insertRelease(ctx, tx, entryID, release); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.EntryByID(ctx, entryID)
}

// InsertEntry inserts an entry without a release, for manual catalog edits.
func (s *Service) InsertEntry(ctx context.Context, entry models.CatalogEntry) (*models.CatalogEntry, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE pattern = ?`, entry.Pattern).Scan(&exists); err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, fmt.Errorf("pattern %q: %w", entry.Pattern, models.ErrDuplicatePattern)
	}
	id, err := insertEntry(ctx, s.db, entry)
	if err != nil {
		return nil, err
	}
	return s.EntryByID(ctx, id)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEntry(ctx context.Context, db execer, entry models.CatalogEntry) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO entries (pattern, title, tmdb_cat, tmdb_id, imdb_id, imdb_rating, year,
			original_language, popularity, poster_path, release_air_date, genre_ids,
			origin_country, original_title, overview, vote_average, production_countries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Pattern, entry.Title, string(entry.Category), entry.TMDBID, entry.IMDBID, entry.IMDBRating, entry.Year,
		entry.OriginalLanguage, entry.Popularity, entry.PosterPath, entry.ReleaseAirDate, entry.GenreIDs,
		entry.OriginCountry, entry.OriginalTitle, entry.Overview, entry.VoteAverage, entry.ProductionCountries,
	)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	return res.LastInsertId()
}

func insertRelease(ctx context.Context, db execer, entryID int64, release models.ReleaseRecord) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO releases (entry_id, torname, info_link, subtitle) VALUES (?, ?, ?, ?)`,
		entryID, release.Torname, release.InfoLink, release.Subtitle,
	)
	if err != nil {
		return 0, fmt.Errorf("insert release: %w", err)
	}
	return res.LastInsertId()
}

// AddRelease attaches a release to an entry. Inserting a release name the
// catalog already holds is a no-op returning the existing record, regardless
// of which entry owns it.
func (s *Service) AddRelease(ctx context.Context, entryID int64, release models.ReleaseRecord) (*models.ReleaseRecord, error) {
	existing, err := s.releaseByTorname(ctx, release.Torname)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("[catalog] release %q already recorded on entry %d, skipping", release.Torname, existing.EntryID)
		return existing, nil
	}

	id, err := insertRelease(ctx, s.db, entryID, release)
	if err != nil {
		return nil, err
	}
	release.ID = id
	release.EntryID = entryID
	return &release, nil
}

func (s *Service) releaseByTorname(ctx context.Context, torname string) (*models.ReleaseRecord, error) {
	var r models.ReleaseRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, entry_id, torname, info_link, subtitle, created_at
		FROM releases WHERE torname = ?`, torname).
		Scan(&r.ID, &r.EntryID, &r.Torname, &r.InfoLink, &r.Subtitle, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateEntry rewrites all mutable fields of an entry.
func (s *Service) UpdateEntry(ctx context.Context, entry models.CatalogEntry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET pattern = ?, title = ?, tmdb_cat = ?, tmdb_id = ?, imdb_id = ?,
			imdb_rating = ?, year = ?, original_language = ?, popularity = ?, poster_path = ?,
			release_air_date = ?, genre_ids = ?, origin_country = ?, original_title = ?,
			overview = ?, vote_average = ?, production_countries = ?
		WHERE id = ?`,
		entry.Pattern, entry.Title, string(entry.Category), entry.TMDBID, entry.IMDBID,
		entry.IMDBRating, entry.Year, entry.OriginalLanguage, entry.Popularity, entry.PosterPath,
		entry.ReleaseAirDate, entry.GenreIDs, entry.OriginCountry, entry.OriginalTitle,
		entry.Overview, entry.VoteAverage, entry.ProductionCountries, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	s.forgetPattern(entry.ID)
	return nil
}

// DeleteEntry removes an entry; its releases go with it.
func (s *Service) DeleteEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	s.forgetPattern(id)
	return nil
}

// DeleteRelease removes a single release record.
func (s *Service) DeleteRelease(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM releases WHERE id = ?`, id)
	return err
}

// ListEntries returns every entry in insertion order with releases attached.
func (s *Service) ListEntries(ctx context.Context) ([]models.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CatalogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		if err := s.attachReleases(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *Service) attachReleases(ctx context.Context, entry *models.CatalogEntry) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, torname, info_link, subtitle, created_at
		FROM releases WHERE entry_id = ? ORDER BY id`, entry.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r models.ReleaseRecord
		if err := rows.Scan(&r.ID, &r.EntryID, &r.Torname, &r.InfoLink, &r.Subtitle, &r.CreatedAt); err != nil {
			return err
		}
		entry.Releases = append(entry.Releases, r)
	}
	return rows.Err()
}
