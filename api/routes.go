package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"mediadex/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// apiKeyMiddleware guards an endpoint with the configured client API key,
// taken from the X-API-Key header or an api_key query parameter. An empty
// configured key rejects everything rather than opening the endpoint up.
func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		supplied := r.Header.Get("X-API-Key")
		if supplied == "" {
			supplied = r.URL.Query().Get("api_key")
		}
		if apiKey == "" || supplied != apiKey {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":  "Invalid or missing API key",
				"status": "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	resolveHandler *handlers.ResolveHandler,
	recordsHandler *handlers.RecordsHandler,
	settingsHandler *handlers.SettingsHandler,
	clientAPIKey string,
) {
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(corsMiddleware)

	apiRouter.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// Resolution endpoints. The main query endpoint spends provider quota
	// and can create catalog entries, so it sits behind the client API key.
	apiRouter.Handle("/query", apiKeyMiddleware(clientAPIKey, http.HandlerFunc(resolveHandler.Query))).Methods(http.MethodPost)
	apiRouter.HandleFunc("/test_query", resolveHandler.TestQuery).Methods(http.MethodPost)

	// Catalog management.
	apiRouter.HandleFunc("/records", recordsHandler.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/records", recordsHandler.Create).Methods(http.MethodPost)
	apiRouter.HandleFunc("/records/refresh", recordsHandler.RefreshAll).Methods(http.MethodPost)
	apiRouter.HandleFunc("/records/{id}", recordsHandler.Update).Methods(http.MethodPut)
	apiRouter.HandleFunc("/records/{id}", recordsHandler.Delete).Methods(http.MethodDelete)

	// Runtime configuration.
	apiRouter.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	apiRouter.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)
}
