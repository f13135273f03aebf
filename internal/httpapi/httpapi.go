// Package httpapi implements Loom's HTTP surface: a thin
// net/http.ServeMux wrapping the node's Catalog, built once in a
// constructor with handler methods on the receiving struct and JSON
// responses written through the standard library.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/loom/internal/bulk"
	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
	"github.com/cuemby/loom/pkg/log"
	"github.com/cuemby/loom/pkg/metrics"
)

// Version is reported by GET /.
const Version = "0.1.0"

// Server is the HTTP surface over one node's Catalog.
type Server struct {
	catalog *catalog.Catalog
	mux     *http.ServeMux
	bulkCfg bulk.Config
}

// New builds a Server with every route registered.
func New(c *catalog.Catalog, bulkCfg bulk.Config) *Server {
	s := &Server{catalog: c, mux: http.NewServeMux(), bulkCfg: bulkCfg}

	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("PUT /{index}/_create", s.handleCreate)
	s.mux.HandleFunc("GET /{index}/_summary", s.handleSummary)
	s.mux.HandleFunc("GET /{index}/_flush", s.handleFlush)
	s.mux.HandleFunc("POST /{index}/_bulk", s.handleBulk)
	s.mux.HandleFunc("POST /{index}", s.handleSearch)
	s.mux.HandleFunc("PUT /{index}", s.handleAddDocument)
	s.mux.HandleFunc("DELETE /{index}", s.handleDeleteTerm)
	s.mux.HandleFunc("GET /{index}", s.handleAllDocs)

	return s
}

// ServeHTTP satisfies http.Handler, falling back to 404 for anything
// the mux has no registered pattern for. Every request is timed and
// counted by route regardless of outcome.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	h, pattern := s.mux.Handler(r)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	label := pattern
	if pattern == "" {
		label = "unmatched"
		writeError(rec, http.StatusNotFound, errs.IOErrorf("no such route: %s %s", r.Method, r.URL.Path))
	} else {
		h.ServeHTTP(rec, r)
	}

	metrics.APIRequestsTotal.WithLabelValues(label, strconv.Itoa(rec.status)).Inc()
	timer.ObserveDurationVec(metrics.APIRequestDuration, label)
}

// statusRecorder captures the status code a handler wrote, for
// metrics; http.ResponseWriter itself exposes no way to read it back.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Start blocks serving addr until the server is shut down.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Logger.Info().Str("addr", addr).Msg("http: listening")
	return srv.ListenAndServe()
}

func boolQuery(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return false
	}
	return v
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if boolQuery(r, "pretty") {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(body); err != nil {
		log.Logger.Error().Err(err).Msg("http: failed to encode response body")
	}
}

// writeError writes the {"message": "..."} error envelope, mapping
// err's errs.Kind onto an HTTP status.
func writeError(w http.ResponseWriter, status int, err error) {
	if mapped := errs.HTTPStatus(err); mapped != 500 {
		status = mapped
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"name": "loom", "version": Version})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sc, err := schema.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.catalog.AddIndex(index, sc, s.catalog.BasePath() == ""); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	h, local, err := s.catalog.GetIndex(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	summary := map[string]interface{}{
		"name":    h.GetName(),
		"opstamp": h.GetOpstamp(),
	}
	if local && boolQuery(r, "include_sizes") {
		if spacer, ok := h.(interface{ GetSpace() (int64, error) }); ok {
			if sz, err := spacer.GetSpace(); err == nil {
				summary["space_bytes"] = sz
			}
		}
	}
	writeJSON(w, r, http.StatusOK, summary)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	h, local, err := s.catalog.GetIndex(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if !local {
		writeError(w, http.StatusNotFound, errs.UnknownIndex(index))
		return
	}
	if _, err := h.Commit(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	h, _, err := s.catalog.GetIndex(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	res := bulk.Load(r.Context(), h, r.Body, s.bulkCfg)
	if res.Err != nil {
		writeError(w, http.StatusBadRequest, res.Err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var search query.Search
	if err := json.Unmarshal(body, &search); err != nil {
		writeError(w, http.StatusBadRequest, errs.IOError(err))
		return
	}

	res, err := s.runSearch(index, search)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleAllDocs(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	all := query.Query{IsAll: true}
	res, err := s.runSearch(index, query.Search{Query: &all})
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) runSearch(index string, search query.Search) (query.SearchResults, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SearchDuration, index)

	h, local, err := s.catalog.GetIndex(index)
	if err != nil {
		return query.SearchResults{}, err
	}
	if local {
		return s.catalog.SearchLocalIndex(index, search)
	}
	return h.Search(search)
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var add document.AddDocument
	if err := json.Unmarshal(body, &add); err != nil {
		writeError(w, http.StatusBadRequest, errs.IOError(err))
		return
	}

	if err := s.catalog.AddDocument(index, add); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteTerm(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var del document.DeleteDoc
	if err := json.Unmarshal(body, &del); err != nil {
		writeError(w, http.StatusBadRequest, errs.IOError(err))
		return
	}

	affected, err := s.catalog.DeleteTerm(index, del)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, r, http.StatusOK, affected)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errs.IOError(err)
	}
	return data, nil
}
