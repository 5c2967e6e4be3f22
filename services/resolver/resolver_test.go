package resolver

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"mediadex/models"
)

// fakeStore is an in-memory CatalogStore with the same miss and duplicate
// semantics as the SQLite-backed one.
type fakeStore struct {
	nextID   int64
	entries  []*models.CatalogEntry
	releases map[int64][]models.ReleaseRecord
}

var _ CatalogStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, releases: make(map[int64][]models.ReleaseRecord)}
}

func (s *fakeStore) seed(entry models.CatalogEntry) *models.CatalogEntry {
	e := entry
	e.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, &e)
	return &e
}

func (s *fakeStore) EntryForTorname(_ context.Context, torname string) (*models.CatalogEntry, error) {
	for id, recs := range s.releases {
		for _, r := range recs {
			if r.Torname == torname {
				return s.byID(id), nil
			}
		}
	}
	return nil, nil
}

func (s *fakeStore) EntryByTMDB(_ context.Context, cat models.Category, tmdbID int64) (*models.CatalogEntry, error) {
	for _, e := range s.entries {
		if e.Category == cat && e.TMDBID == tmdbID {
			return e, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) EntryByIMDB(_ context.Context, imdbID string) (*models.CatalogEntry, error) {
	for _, e := range s.entries {
		if e.IMDBID == imdbID {
			return e, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) MatchPattern(_ context.Context, cleanedTitle string) (*models.CatalogEntry, error) {
	for _, e := range s.entries {
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			continue
		}
		if re.MatchString(cleanedTitle) {
			return e, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateEntry(_ context.Context, entry models.CatalogEntry, release models.ReleaseRecord) (*models.CatalogEntry, error) {
	for _, e := range s.entries {
		if e.Pattern == entry.Pattern {
			return nil, models.ErrDuplicatePattern
		}
	}
	e := s.seed(entry)
	s.releases[e.ID] = append(s.releases[e.ID], release)
	return e, nil
}

func (s *fakeStore) AddRelease(_ context.Context, entryID int64, release models.ReleaseRecord) (*models.ReleaseRecord, error) {
	for _, r := range s.releases[entryID] {
		if r.Torname == release.Torname {
			return &r, nil
		}
	}
	s.releases[entryID] = append(s.releases[entryID], release)
	return &release, nil
}

func (s *fakeStore) byID(id int64) *models.CatalogEntry {
	for _, e := range s.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func TestResolveCreateThenLocal(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{tv: []models.Candidate{
		{ID: 100, Category: models.CategoryTV, Title: "Show Name", ReleaseAirDate: "2023-01-15"},
	}}
	r := New(store, provider, "en-US")
	ctx := context.Background()

	// First pass: nothing local, blind search creates the entry.
	res, err := r.Resolve(ctx, models.ResolveRequest{Torname: "Show.Name.2023.S01E01.1080p.WEB-DL.x264-GRP.mkv"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchCreatedBySearch {
		t.Fatalf("Method = %q, want %q", res.Method, models.MatchCreatedBySearch)
	}
	// len("Show Name") + season + strict year + scoped query.
	if want := 9 + 10 + 20 + 5; res.Confidence != want {
		t.Errorf("Confidence = %d, want %d", res.Confidence, want)
	}
	if res.Entry == nil || res.Entry.Pattern != "^Show Name$" {
		t.Fatalf("Entry = %+v, want anchored pattern", res.Entry)
	}

	// Same name again: exact local hit, no provider traffic.
	before := len(provider.calls)
	res, err = r.Resolve(ctx, models.ResolveRequest{Torname: "Show.Name.2023.S01E01.1080p.WEB-DL.x264-GRP.mkv"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchLocalExact {
		t.Errorf("Method = %q, want %q", res.Method, models.MatchLocalExact)
	}
	if len(provider.calls) != before {
		t.Errorf("provider called %d more times on a local exact hit", len(provider.calls)-before)
	}

	// A different release of the same show: the stored pattern catches it.
	res, err = r.Resolve(ctx, models.ResolveRequest{Torname: "Show.Name.2023.S01E02.720p.WEB-DL.x264-GRP.mkv"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchLocalByPattern {
		t.Errorf("Method = %q, want %q", res.Method, models.MatchLocalByPattern)
	}
	if len(provider.calls) != before {
		t.Errorf("provider called %d more times on a pattern hit", len(provider.calls)-before)
	}
	if n := len(store.releases[res.Entry.ID]); n != 2 {
		t.Errorf("entry has %d releases, want 2", n)
	}
}

func TestResolveByTMDBStr(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{details: map[string]*models.Candidate{
		"movie-603": {ID: 603, Category: models.CategoryMovie, Title: "The Matrix", ReleaseAirDate: "1999-03-31"},
	}}
	r := New(store, provider, "en-US")
	ctx := context.Background()

	res, err := r.Resolve(ctx, models.ResolveRequest{
		Torname: "The.Matrix.1999.1080p.BluRay.x264-GRP.mkv",
		TMDBStr: "movie-603",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchCreatedByID {
		t.Fatalf("Method = %q, want %q", res.Method, models.MatchCreatedByID)
	}
	if res.Entry.TMDBID != 603 || res.Entry.Category != models.CategoryMovie {
		t.Errorf("Entry = %s-%d, want movie-603", res.Entry.Category, res.Entry.TMDBID)
	}

	// Another release of the same id resolves locally.
	before := len(provider.calls)
	res, err = r.Resolve(ctx, models.ResolveRequest{
		Torname: "The.Matrix.1999.2160p.Remux.mkv",
		TMDBStr: "movie-603",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchLocalByID {
		t.Errorf("Method = %q, want %q", res.Method, models.MatchLocalByID)
	}
	if len(provider.calls) != before {
		t.Errorf("provider called on a local id hit")
	}
}

func TestResolveByIMDB(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	provider.found.movies = []models.Candidate{
		{ID: 604, Category: models.CategoryMovie, Title: "Neo Film", ReleaseAirDate: "2020-05-01", IMDBID: "tt0133093"},
	}
	r := New(store, provider, "en-US")

	res, err := r.Resolve(context.Background(), models.ResolveRequest{
		Torname: "Neo.Film.2020.1080p.BluRay.x264-GRP.mkv",
		IMDBID:  "tt0133093",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchCreatedByIMDB {
		t.Fatalf("Method = %q, want %q", res.Method, models.MatchCreatedByIMDB)
	}
	if res.Entry.IMDBID != "tt0133093" {
		t.Errorf("Entry IMDBID = %q", res.Entry.IMDBID)
	}
}

func TestResolveConfidenceThreshold(t *testing.T) {
	// 29- and 30-rune titles with no year, season or category signals: the
	// confidence is the cleaned-title length alone, landing one on each side
	// of the creation threshold.
	tests := []struct {
		torname    string
		wantMethod models.MatchMethod
		wantConf   int
	}{
		{"Abcdefghijklmnopqrstuvwxyzabc.mkv", models.MatchRejectedLowConfidence, 29},
		{"Abcdefghijklmnopqrstuvwxyzabcd.mkv", models.MatchCreatedBySearch, 30},
	}
	for _, tt := range tests {
		store := newFakeStore()
		provider := &fakeProvider{multi: []models.Candidate{
			{ID: 55, Category: models.CategoryMovie, Title: "Whatever"},
		}}
		r := New(store, provider, "en-US")

		res, err := r.Resolve(context.Background(), models.ResolveRequest{Torname: tt.torname})
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.torname, err)
		}
		if res.Method != tt.wantMethod {
			t.Errorf("Resolve(%q) method = %q, want %q", tt.torname, res.Method, tt.wantMethod)
		}
		if res.Confidence != tt.wantConf {
			t.Errorf("Resolve(%q) confidence = %d, want %d", tt.torname, res.Confidence, tt.wantConf)
		}
		created := len(store.entries) > 0
		if wantCreated := tt.wantMethod == models.MatchCreatedBySearch; created != wantCreated {
			t.Errorf("Resolve(%q) created=%v, want %v", tt.torname, created, wantCreated)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	r := New(store, provider, "en-US")

	res, err := r.Resolve(context.Background(), models.ResolveRequest{Torname: "Unknown.Thing.S01E01.mkv"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchNotFound {
		t.Errorf("Method = %q, want %q", res.Method, models.MatchNotFound)
	}
	if len(store.entries) != 0 {
		t.Errorf("entry created on a provider miss")
	}
}

func TestResolveNoTitle(t *testing.T) {
	r := New(newFakeStore(), &fakeProvider{}, "en-US")
	_, err := r.Resolve(context.Background(), models.ResolveRequest{Torname: "1080p.x264.mkv"})
	if !errors.Is(err, ErrNoTitle) {
		t.Fatalf("err = %v, want ErrNoTitle", err)
	}
}

func TestResolveBlindAttachesExistingEntry(t *testing.T) {
	store := newFakeStore()
	existing := store.seed(models.CatalogEntry{
		Pattern:  "^Something Else$",
		Title:    "Show Name",
		Category: models.CategoryTV,
		TMDBID:   100,
	})
	provider := &fakeProvider{tv: []models.Candidate{
		{ID: 100, Category: models.CategoryTV, Title: "Show Name", ReleaseAirDate: "2023-01-15"},
	}}
	r := New(store, provider, "en-US")

	res, err := r.Resolve(context.Background(), models.ResolveRequest{Torname: "Show.Name.2023.S01E01.1080p.WEB-DL.x264-GRP.mkv"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchLocalByID {
		t.Errorf("Method = %q, want %q", res.Method, models.MatchLocalByID)
	}
	if res.Entry.ID != existing.ID {
		t.Errorf("Entry.ID = %d, want the pre-existing %d", res.Entry.ID, existing.ID)
	}
	if n := len(store.releases[existing.ID]); n != 1 {
		t.Errorf("existing entry has %d releases, want 1", n)
	}
}

func TestResolveDuplicatePatternFallsToPatternMatch(t *testing.T) {
	// The id tier fetches details, but creating trips the unique-pattern
	// guard because another id already owns the pattern. The pass must fall
	// through and land on the pattern tier instead of failing.
	store := newFakeStore()
	owner := store.seed(models.CatalogEntry{
		Pattern:  "^Show Name$",
		Title:    "Show Name",
		Category: models.CategoryTV,
		TMDBID:   999,
	})
	provider := &fakeProvider{details: map[string]*models.Candidate{
		"tv-555": {ID: 555, Category: models.CategoryTV, Title: "Show Name", ReleaseAirDate: "2023-01-15"},
	}}
	r := New(store, provider, "en-US")

	res, err := r.Resolve(context.Background(), models.ResolveRequest{
		Torname: "Show.Name.2023.S01E01.1080p.WEB-DL.x264-GRP.mkv",
		TMDBStr: "tv-555",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Method != models.MatchLocalByPattern {
		t.Errorf("Method = %q, want %q", res.Method, models.MatchLocalByPattern)
	}
	if res.Entry.ID != owner.ID {
		t.Errorf("Entry.ID = %d, want the pattern owner %d", res.Entry.ID, owner.ID)
	}
}

func TestProbePattern(t *testing.T) {
	store := newFakeStore()
	entry := store.seed(models.CatalogEntry{
		Pattern:  "^Show Name$",
		Title:    "Show Name",
		Category: models.CategoryTV,
		TMDBID:   100,
	})
	provider := &fakeProvider{}
	r := New(store, provider, "en-US")
	ctx := context.Background()

	got, err := r.ProbePattern(ctx, "Show.Name.S01E02.720p.WEB-DL.mkv")
	if err != nil {
		t.Fatalf("ProbePattern: %v", err)
	}
	if got == nil || got.ID != entry.ID {
		t.Fatalf("ProbePattern = %+v, want entry %d", got, entry.ID)
	}
	if n := len(store.releases[entry.ID]); n != 1 {
		t.Errorf("entry has %d releases, want 1", n)
	}
	if len(provider.calls) != 0 {
		t.Errorf("ProbePattern talked to the provider: %v", provider.calls)
	}

	got, err = r.ProbePattern(ctx, "Totally.Different.S01E01.720p.mkv")
	if err != nil {
		t.Fatalf("ProbePattern miss: %v", err)
	}
	if got != nil {
		t.Errorf("ProbePattern = %+v, want nil on a miss", got)
	}
}
