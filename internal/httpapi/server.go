// Package httpapi is the ambient HTTP surface: GET/PUT/DELETE of a
// single key, mapped straight onto the engine's Put/Get/Delete. It
// sits outside the storage engine itself — it exists so cmd/lsmkvd has
// something to serve.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/howenyap/kv"
	"github.com/howenyap/kv/internal/logging"
)

// Server adapts a *kv.DB to HTTP.
type Server struct {
	db     *kv.DB
	logger logging.Logger
	mux    *http.ServeMux
}

// New builds a Server with routes registered. logger may be nil, in
// which case a default WARN-level logger is used.
func New(db *kv.DB, logger logging.Logger) *Server {
	s := &Server{db: db, logger: logging.OrDefault(logger)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{key}", s.handleGet)
	mux.HandleFunc("PUT /{key}", s.handlePut)
	mux.HandleFunc("DELETE /{key}", s.handleDelete)
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type valueBody struct {
	Value uint32 `json:"value"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, found, err := s.db.Get(key)
	if err != nil {
		s.logger.Errorf("%sGET %s: %v", logging.NSHTTP, key, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	writeJSON(w, http.StatusOK, valueBody{Value: value})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var body valueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: expected {\"value\": <uint32>}")
		return
	}
	if err := s.db.Put(key, body.Value); err != nil {
		s.logger.Errorf("%sPUT %s: %v", logging.NSHTTP, key, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.db.Delete(key); err != nil {
		s.logger.Errorf("%sDELETE %s: %v", logging.NSHTTP, key, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
