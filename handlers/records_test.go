package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"mediadex/models"
	catalogpkg "mediadex/services/catalog"
)

// fakeRecordStore keeps entries in memory with the same duplicate and
// not-found semantics as the real store.
type fakeRecordStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*models.CatalogEntry
}

var _ recordStore = (*fakeRecordStore)(nil)

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{nextID: 1, entries: make(map[int64]*models.CatalogEntry)}
}

func (s *fakeRecordStore) ListEntries(context.Context) ([]models.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CatalogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeRecordStore) EntryByID(_ context.Context, id int64) (*models.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *fakeRecordStore) InsertEntry(_ context.Context, entry models.CatalogEntry) (*models.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Pattern == entry.Pattern {
			return nil, fmt.Errorf("pattern %q: %w", entry.Pattern, models.ErrDuplicatePattern)
		}
	}
	entry.ID = s.nextID
	s.nextID++
	s.entries[entry.ID] = &entry
	cp := entry
	return &cp, nil
}

func (s *fakeRecordStore) UpdateEntry(_ context.Context, entry models.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return fmt.Errorf("entry %d missing", entry.ID)
	}
	s.entries[entry.ID] = &entry
	return nil
}

func (s *fakeRecordStore) DeleteEntry(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return catalogpkg.ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

// fakeDetails serves canned provider details keyed by "cat-id".
type fakeDetails struct {
	mu    sync.Mutex
	cands map[string]*models.Candidate
	calls int
}

var _ detailsProvider = (*fakeDetails)(nil)

func (f *fakeDetails) DetailsByID(_ context.Context, cat models.Category, id int64) (*models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.cands[fmt.Sprintf("%s-%d", cat, id)], nil
}

func decodeRecords(t *testing.T, rec *httptest.ResponseRecorder) recordsResponse {
	t.Helper()
	var resp recordsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestRecordsCreate(t *testing.T) {
	store := newFakeRecordStore()
	provider := &fakeDetails{cands: map[string]*models.Candidate{
		"tv-100": {ID: 100, Category: models.CategoryTV, Title: "Show Name", ReleaseAirDate: "2023-01-15", IMDBID: "tt0903747"},
	}}
	h := NewRecordsHandler(store, provider)

	req := httptest.NewRequest(http.MethodPost, "/api/records",
		strings.NewReader(`{"pattern":"Show Name","category":"tv","tmdbId":100}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeRecords(t, rec)
	if !resp.Success {
		t.Fatalf("response = %+v", resp)
	}

	entry, err := store.EntryByID(context.Background(), 1)
	if err != nil || entry == nil {
		t.Fatalf("entry not stored: %v", err)
	}
	if entry.Pattern != "^Show Name$" {
		t.Errorf("Pattern = %q, want anchored", entry.Pattern)
	}
	if entry.Title != "Show Name" || entry.Year != 2023 || entry.IMDBID != "tt0903747" {
		t.Errorf("provider metadata not applied: %+v", entry)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d", provider.calls)
	}
}

func TestRecordsCreateWithoutProviderID(t *testing.T) {
	store := newFakeRecordStore()
	provider := &fakeDetails{}
	h := NewRecordsHandler(store, provider)

	req := httptest.NewRequest(http.MethodPost, "/api/records",
		strings.NewReader(`{"pattern":"^Manual Entry$","title":"Manual Entry"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times without an id", provider.calls)
	}
}

func TestRecordsCreateDuplicate(t *testing.T) {
	store := newFakeRecordStore()
	h := NewRecordsHandler(store, &fakeDetails{})

	body := `{"pattern":"Show Name"}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("first create status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", rec.Code)
	}
}

func TestRecordsCreateValidation(t *testing.T) {
	h := NewRecordsHandler(newFakeRecordStore(), &fakeDetails{})

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(`{"pattern":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank pattern status = %d", rec.Code)
	}
}

func TestRecordsList(t *testing.T) {
	store := newFakeRecordStore()
	store.InsertEntry(context.Background(), models.CatalogEntry{Pattern: "^A$", Title: "A"})
	store.InsertEntry(context.Background(), models.CatalogEntry{Pattern: "^B$", Title: "B"})
	h := NewRecordsHandler(store, &fakeDetails{})

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/records", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Success bool                  `json:"success"`
		Data    []models.CatalogEntry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Data) != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestRecordsUpdateClearsProviderFields(t *testing.T) {
	store := newFakeRecordStore()
	seeded, _ := store.InsertEntry(context.Background(), models.CatalogEntry{
		Pattern:  "^Show Name$",
		Title:    "Show Name",
		Category: models.CategoryTV,
		TMDBID:   100,
		Overview: "old overview",
		GenreIDs: "18,10765",
	})
	h := NewRecordsHandler(store, &fakeDetails{})

	req := httptest.NewRequest(http.MethodPut, "/api/records/1",
		strings.NewReader(`{"category":"none","title":"Renamed"}`))
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	entry, _ := store.EntryByID(context.Background(), seeded.ID)
	if entry.Overview != "" || entry.GenreIDs != "" {
		t.Errorf("provider fields not cleared: %+v", entry)
	}
	if entry.Title != "Renamed" {
		t.Errorf("Title = %q", entry.Title)
	}
}

func TestRecordsUpdateNotFound(t *testing.T) {
	h := NewRecordsHandler(newFakeRecordStore(), &fakeDetails{})

	req := httptest.NewRequest(http.MethodPut, "/api/records/42", strings.NewReader(`{}`))
	req = mux.SetURLVars(req, map[string]string{"id": "42"})
	rec := httptest.NewRecorder()
	h.Update(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecordsDelete(t *testing.T) {
	store := newFakeRecordStore()
	store.InsertEntry(context.Background(), models.CatalogEntry{Pattern: "^A$"})
	h := NewRecordsHandler(store, &fakeDetails{})

	req := httptest.NewRequest(http.MethodDelete, "/api/records/1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.Delete(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/records/1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec = httptest.NewRecorder()
	h.Delete(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestRecordsRefreshAll(t *testing.T) {
	store := newFakeRecordStore()
	store.InsertEntry(context.Background(), models.CatalogEntry{
		Pattern: "^A$", Title: "old a", Category: models.CategoryMovie, TMDBID: 1,
	})
	store.InsertEntry(context.Background(), models.CatalogEntry{
		Pattern: "^B$", Title: "old b", Category: models.CategoryTV, TMDBID: 2,
	})
	// No provider identity, skipped by the refresh.
	store.InsertEntry(context.Background(), models.CatalogEntry{Pattern: "^C$", Title: "manual"})

	provider := &fakeDetails{cands: map[string]*models.Candidate{
		"movie-1": {ID: 1, Category: models.CategoryMovie, Title: "Fresh A"},
		"tv-2":    {ID: 2, Category: models.CategoryTV, Title: "Fresh B"},
	}}
	h := NewRecordsHandler(store, provider)

	rec := httptest.NewRecorder()
	h.RefreshAll(rec, httptest.NewRequest(http.MethodPost, "/api/records/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Success bool             `json:"success"`
		Data    map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data["refreshed"] != 2 {
		t.Errorf("refreshed = %d, want 2", resp.Data["refreshed"])
	}

	a, _ := store.EntryByID(context.Background(), 1)
	b, _ := store.EntryByID(context.Background(), 2)
	c, _ := store.EntryByID(context.Background(), 3)
	if a.Title != "Fresh A" || b.Title != "Fresh B" {
		t.Errorf("titles = %q/%q", a.Title, b.Title)
	}
	if c.Title != "manual" {
		t.Errorf("manual entry touched: %+v", c)
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d", provider.calls)
	}
}
