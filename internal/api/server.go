// Package api serves a read-only HTTP view of the record store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/shard"
	"github.com/sells-group/enrich-cli/internal/store"
)

// RecordReader is the part of store.Store the server reads.
type RecordReader interface {
	Get(ctx context.Context, id int64) (*model.CompanyRecord, error)
	IDBounds(ctx context.Context) (int64, int64, error)
	CountByStatus(ctx context.Context, r shard.Range) (map[model.Status]int, error)
}

// ShardView is one row of the /shards response.
type ShardView struct {
	Index  int                  `json:"index"`
	Min    int64                `json:"id_min"`
	Max    int64                `json:"id_max"`
	Size   int64                `json:"size"`
	Counts map[model.Status]int `json:"counts"`
}

type server struct {
	store RecordReader
}

// NewRouter builds the inspection routes.
func NewRouter(st RecordReader) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s := &server{store: st}
	r.Get("/health", s.handleHealth)
	r.Get("/records/{id}", s.handleRecord)
	r.Get("/shards", s.handleShards)
	return r
}

// NewServer wraps the router in an http.Server listening on port.
func NewServer(st RecordReader, port int) *http.Server {
	return &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           NewRouter(st),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get record", zap.Int64("record_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleShards(w http.ResponseWriter, r *http.Request) {
	n := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		n = v
	}
	views, err := Shards(r.Context(), s.store, n)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, []ShardView{})
		return
	}
	if err != nil {
		zap.L().Error("api: shards", zap.Int("count", n), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Shards partitions the store's id span into n ranges with per-status
// counts.
func Shards(ctx context.Context, st RecordReader, n int) ([]ShardView, error) {
	lo, hi, err := st.IDBounds(ctx)
	if err != nil {
		return nil, err
	}
	parts, err := shard.Partition(lo, hi, n)
	if err != nil {
		return nil, err
	}
	views := make([]ShardView, 0, len(parts))
	for i, p := range parts {
		counts, err := st.CountByStatus(ctx, p)
		if err != nil {
			return nil, err
		}
		views = append(views, ShardView{Index: i, Min: p.Min, Max: p.Max, Size: p.Size(), Counts: counts})
	}
	return views, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
