package main

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"cardtable/internal/gateway"
	"cardtable/internal/session"
	"cardtable/internal/store"
	"cardtable/internal/ws"
)

func newRouter(manager *session.Manager, wsServer *ws.Server, gw *gateway.Gateway, st *store.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(apiLogMiddleware()).Get("/healthz", healthHandler(manager, st))
	r.Get("/ws", wsServer.HandleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLogMiddleware())
		gw.Routes(r)
		r.Get("/results", resultsHandler(st))
	})
	return r
}

func healthHandler(manager *session.Manager, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db := "skipped"
		status := http.StatusOK
		if st != nil {
			if err := st.Ping(r.Context()); err != nil {
				db = "down"
				status = http.StatusServiceUnavailable
			} else {
				db = "ok"
			}
		}
		writeJSON(w, status, map[string]any{
			"status":   "ok",
			"sessions": manager.SessionCount(),
			"db":       db,
		})
	}
}

func resultsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "archive_disabled"})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		results, err := st.RecentResults(r.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query_failed"})
			return
		}
		if results == nil {
			results = []store.Result{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}
