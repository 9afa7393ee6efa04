// Package rpc exposes the transaction-log server's method table over
// HTTP, one route per method, with JSON request/response bodies.
package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fathomdb/searchcore/internal/rpc/middleware"
	"github.com/fathomdb/searchcore/internal/tlog/chunk"
	"github.com/fathomdb/searchcore/internal/tlog/server"
	"github.com/fathomdb/searchcore/internal/tlogerr"
)

// Config governs router-level middleware.
type Config struct {
	Logger             *slog.Logger
	EnableCORS         bool
	CORS               middleware.CORSConfig
	FollowPollInterval time.Duration
}

// NewRouter builds the HTTP surface for srv: request-id, recovery,
// logging, security headers, optional CORS, then one handler per TLS
// method.
func NewRouter(srv *server.Server, cfg Config) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()))
	if cfg.EnableCORS {
		r.Use(middleware.CORS(cfg.CORS))
	}

	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/domains", listDomainsHandler(srv)).Methods(http.MethodGet)
	api.HandleFunc("/domains", createDomainHandler(srv)).Methods(http.MethodPost)
	api.HandleFunc("/domains/{name}", openDomainHandler(srv)).Methods(http.MethodGet)
	api.HandleFunc("/domains/{name}", deleteDomainHandler(srv)).Methods(http.MethodDelete)
	api.HandleFunc("/domains/{name}/status", domainStatusHandler(srv)).Methods(http.MethodGet)
	api.HandleFunc("/domains/{name}/commit", domainCommitHandler(srv)).Methods(http.MethodPost)
	api.HandleFunc("/domains/{name}/prune", domainPruneHandler(srv)).Methods(http.MethodPost)
	api.HandleFunc("/domains/{name}/visit", domainVisitHandler(srv)).Methods(http.MethodPost)
	api.HandleFunc("/domains/{name}/sessions/{id}/run", domainSessionRunHandler(srv)).Methods(http.MethodPost)
	api.HandleFunc("/domains/{name}/sessions/{id}/follow", domainSessionFollowHandler(srv, cfg.Logger, cfg.FollowPollInterval)).Methods(http.MethodGet)
	api.HandleFunc("/domains/{name}/sessions/{id}", domainSessionCloseHandler(srv)).Methods(http.MethodDelete)
	api.HandleFunc("/domains/{name}/sync", domainSyncHandler(srv)).Methods(http.MethodPost)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case tlogerr.IsNotFound(err):
		status = http.StatusNotFound
	case tlogerr.IsBusyRetry(err):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": tlogerr.ClassifyError(err)})
}

func listDomainsHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"domains": srv.ListDomains()})
	}
}

func createDomainHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := srv.CreateDomain(body.Name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"name": body.Name})
	}
}

func openDomainHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if _, err := srv.OpenDomain(name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	}
}

func deleteDomainHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if err := srv.DeleteDomain(name); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func domainStatusHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		begin, end, count, err := srv.DomainStatus(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"begin": begin, "end": end, "count": count})
	}
}

func domainCommitHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		var body struct {
			Entries []chunk.Entry `json:"entries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := srv.DomainCommit(name, body.Entries); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func domainPruneHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		var body struct {
			To uint64 `json:"to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := srv.DomainPrune(name, body.To); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func domainVisitHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		var body struct {
			From uint64 `json:"from"`
			To   uint64 `json:"to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		id, err := srv.DomainVisit(name, body.From, body.To)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
	}
}

func domainSessionRunHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		name := vars["name"]
		id, err := parseUint(vars["id"])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		var body struct {
			TargetBytes int `json:"target_bytes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.TargetBytes == 0 {
			body.TargetBytes = 1 << 20
		}

		serials, payloads, state, err := srv.DomainSessionRun(name, id, body.TargetBytes)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"serials":  serials,
			"payloads": payloads,
			"state":    int(state),
		})
	}
}

func domainSessionCloseHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		name := vars["name"]
		id, err := parseUint(vars["id"])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := srv.DomainSessionClose(name, id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func domainSyncHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		var body struct {
			SyncTo uint64 `json:"sync_to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		status, syncedTo, err := srv.DomainSync(name, body.SyncTo)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "synced_to": syncedTo})
	}
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
