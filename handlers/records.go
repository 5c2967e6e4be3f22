package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/sourcegraph/conc/pool"

	"mediadex/models"
	catalogpkg "mediadex/services/catalog"
	resolverpkg "mediadex/services/resolver"
	tmdbpkg "mediadex/services/tmdb"
)

type recordStore interface {
	ListEntries(ctx context.Context) ([]models.CatalogEntry, error)
	EntryByID(ctx context.Context, id int64) (*models.CatalogEntry, error)
	InsertEntry(ctx context.Context, entry models.CatalogEntry) (*models.CatalogEntry, error)
	UpdateEntry(ctx context.Context, entry models.CatalogEntry) error
	DeleteEntry(ctx context.Context, id int64) error
}

type detailsProvider interface {
	DetailsByID(ctx context.Context, cat models.Category, id int64) (*models.Candidate, error)
}

var (
	_ recordStore     = (*catalogpkg.Service)(nil)
	_ detailsProvider = (*tmdbpkg.Client)(nil)
)

// refreshWorkers bounds concurrent provider fetches during a bulk refresh.
const refreshWorkers = 4

// RecordsHandler serves manual catalog management: list, create, edit,
// delete and provider-metadata refresh.
type RecordsHandler struct {
	Store    recordStore
	Provider detailsProvider
}

func NewRecordsHandler(store recordStore, provider detailsProvider) *RecordsHandler {
	return &RecordsHandler{Store: store, Provider: provider}
}

type recordsResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// List returns every catalog entry with its releases.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListEntries(r.Context())
	if err != nil {
		log.Printf("[records] list failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, recordsResponse{Success: false, Message: "list failed"})
		return
	}
	if entries == nil {
		entries = []models.CatalogEntry{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Success: true, Data: entries})
}

// Create inserts a manually defined entry. When a category and provider id
// are supplied the provider's metadata is pulled in immediately.
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.RecordUpsert
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, recordsResponse{Success: false, Message: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Pattern) == "" {
		writeJSON(w, http.StatusBadRequest, recordsResponse{Success: false, Message: "pattern is required"})
		return
	}

	entry := models.CatalogEntry{
		Pattern:  resolverpkg.NormalizePattern(strings.TrimSpace(req.Pattern)),
		Title:    req.Title,
		Category: models.ParseCategory(req.Category),
		TMDBID:   req.TMDBID,
		Year:     req.Year,
	}

	created, err := h.Store.InsertEntry(r.Context(), entry)
	if errors.Is(err, models.ErrDuplicatePattern) {
		writeJSON(w, http.StatusConflict, recordsResponse{Success: false, Message: err.Error()})
		return
	}
	if err != nil {
		log.Printf("[records] create failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, recordsResponse{Success: false, Message: "create failed"})
		return
	}

	if created.Category != models.CategoryUnknown && created.TMDBID != 0 {
		if err := h.refreshEntry(r.Context(), created, req.Title); err != nil {
			log.Printf("[records] metadata refresh for new entry %d failed: %v", created.ID, err)
		} else if updated, err := h.Store.EntryByID(r.Context(), created.ID); err == nil && updated != nil {
			created = updated
		}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Success: true, Data: created})
}

// Update edits an entry. Supplying a category and provider id refreshes the
// provider metadata; removing them clears it. A custom title, when it differs
// from the provider's, wins.
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, recordsResponse{Success: false, Message: "invalid id"})
		return
	}
	entry, err := h.Store.EntryByID(r.Context(), id)
	if err != nil {
		log.Printf("[records] load entry %d failed: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, recordsResponse{Success: false, Message: "load failed"})
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, recordsResponse{Success: false, Message: "entry not found"})
		return
	}

	var req models.RecordUpsert
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, recordsResponse{Success: false, Message: "invalid request body"})
		return
	}

	if strings.TrimSpace(req.Pattern) != "" {
		entry.Pattern = resolverpkg.NormalizePattern(strings.TrimSpace(req.Pattern))
	}
	if req.Category != "" {
		entry.Category = models.ParseCategory(req.Category)
	}
	if req.TMDBID != 0 {
		entry.TMDBID = req.TMDBID
	}
	if req.Year != 0 {
		entry.Year = req.Year
	}

	if entry.Category != models.CategoryUnknown && entry.TMDBID != 0 {
		if err := h.refreshEntry(r.Context(), entry, req.Title); err != nil {
			log.Printf("[records] metadata refresh for entry %d failed: %v", entry.ID, err)
		}
	} else {
		clearProviderFields(entry)
		if req.Title != "" {
			entry.Title = req.Title
		}
		if err := h.Store.UpdateEntry(r.Context(), *entry); err != nil {
			log.Printf("[records] update entry %d failed: %v", entry.ID, err)
			writeJSON(w, http.StatusInternalServerError, recordsResponse{Success: false, Message: "update failed"})
			return
		}
	}

	updated, err := h.Store.EntryByID(r.Context(), entry.ID)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusInternalServerError, recordsResponse{Success: false, Message: "reload failed"})
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Success: true, Data: updated})
}

// Delete removes an entry; its releases cascade away with it.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, recordsResponse{Success: false, Message: "invalid id"})
		return
	}
	if err := h.Store.DeleteEntry(r.Context(), id); err != nil {
		if errors.Is(err, catalogpkg.ErrEntryNotFound) {
			writeJSON(w, http.StatusNotFound, recordsResponse{Success: false, Message: "entry not found"})
			return
		}
		log.Printf("[records] delete entry %d failed: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, recordsResponse{Success: false, Message: "delete failed"})
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Success: true, Message: "entry deleted"})
}

// RefreshAll re-fetches provider metadata for every entry that knows its
// provider identity, a few at a time.
func (h *RecordsHandler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListEntries(r.Context())
	if err != nil {
		log.Printf("[records] list for refresh failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, recordsResponse{Success: false, Message: "refresh failed"})
		return
	}

	var refreshed atomic.Int64
	p := pool.New().WithMaxGoroutines(refreshWorkers)
	for i := range entries {
		entry := entries[i]
		if entry.Category == models.CategoryUnknown || entry.TMDBID == 0 {
			continue
		}
		p.Go(func() {
			if err := h.refreshEntry(r.Context(), &entry, ""); err != nil {
				log.Printf("[records] refresh entry %d (%s-%d) failed: %v", entry.ID, entry.Category, entry.TMDBID, err)
				return
			}
			refreshed.Add(1)
		})
	}
	p.Wait()

	writeJSON(w, http.StatusOK, recordsResponse{
		Success: true,
		Data:    map[string]int64{"refreshed": refreshed.Load()},
	})
}

// refreshEntry pulls provider details onto the entry and persists it.
// customTitle, when set and different from the provider title, overrides it.
func (h *RecordsHandler) refreshEntry(ctx context.Context, entry *models.CatalogEntry, customTitle string) error {
	cand, err := h.Provider.DetailsByID(ctx, entry.Category, entry.TMDBID)
	if err != nil {
		return err
	}
	if cand != nil {
		applyCandidateToEntry(entry, *cand)
	}
	if customTitle != "" && customTitle != entry.Title {
		log.Printf("[records] custom title %q overrides provider title %q on entry %d", customTitle, entry.Title, entry.ID)
		entry.Title = customTitle
	}
	return h.Store.UpdateEntry(ctx, *entry)
}

func applyCandidateToEntry(entry *models.CatalogEntry, c models.Candidate) {
	entry.Title = c.Title
	entry.TMDBID = c.ID
	if c.Category != models.CategoryUnknown {
		entry.Category = c.Category
	}
	if c.IMDBID != "" {
		entry.IMDBID = c.IMDBID
	}
	if y := c.Year(); y > 0 {
		entry.Year = y
	}
	entry.OriginalLanguage = c.OriginalLanguage
	entry.Popularity = c.Popularity
	entry.PosterPath = c.PosterPath
	entry.ReleaseAirDate = c.ReleaseAirDate
	entry.GenreIDs = joinIDs(c.GenreIDs)
	entry.OriginCountry = c.OriginCountry
	entry.OriginalTitle = c.OriginalTitle
	entry.Overview = c.Overview
	entry.VoteAverage = c.VoteAverage
	entry.ProductionCountries = c.ProductionCountries
}

func clearProviderFields(entry *models.CatalogEntry) {
	entry.Overview = ""
	entry.ProductionCountries = ""
	entry.OriginalTitle = ""
	entry.PosterPath = ""
	entry.OriginalLanguage = ""
	entry.GenreIDs = ""
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
