// Package flowserver serves location data, arc GeoJSON and chart images over
// HTTP, and runs live map sessions over websockets.
package flowserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sudorandom/flow-map/pkg/charts"
	"github.com/sudorandom/flow-map/pkg/flowengine"
	"github.com/sudorandom/flow-map/pkg/sources"
	"github.com/sudorandom/flow-map/pkg/utils"
)

// Source is where the server gets location data.
type Source interface {
	flowengine.DatasetLoader
	Locations(ctx context.Context) []sources.Location
	Rows(ctx context.Context, name string) ([]sources.Row, error)
}

type Options struct {
	Map flowengine.Config
	// AllowAnyOrigin accepts websocket sessions from pages on other hosts.
	AllowAnyOrigin bool
}

type Server struct {
	source    Source
	mapConfig flowengine.Config
	upgrader  websocket.Upgrader
	mux       *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed so no session joins wg once Close is waiting on it.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(source Source, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		source:    source,
		mapConfig: opts.Map,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	if opts.AllowAnyOrigin {
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/locations", s.handleLocations)
	mux.HandleFunc("GET /api/locations/{name}", s.handleDataset)
	mux.HandleFunc("GET /api/locations/{name}/arcs", s.handleArcs)
	mux.HandleFunc("GET /api/locations/{name}/charts/{kind}", s.handleChart)
	mux.HandleFunc("GET /ws/session", s.handleSession)
	return mux
}

func (s *Server) Handler() http.Handler { return s.mux }

// Close ends every live session and waits for them to finish.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// beginSession registers a session, or reports false once Close was called.
func (s *Server) beginSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// ListenAndServe runs until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("[server] Shutting down...")
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] Shutdown error: %v", err)
		return srv.Close()
	}
	return nil
}

type apiError struct {
	Error string `json:"error"`
	Retry bool   `json:"retry"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] Encode response: %v", err)
	}
}

// writeLoadError maps a loading failure to a status. Upstream failures other
// than a missing asset are marked retryable.
func writeLoadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sources.ErrUnknownLocation),
		errors.Is(err, charts.ErrUnknownKind),
		errors.Is(err, charts.ErrNoData):
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, apiError{Error: err.Error(), Retry: true})
	case errors.Is(err, utils.ErrNotFound):
		writeJSON(w, http.StatusBadGateway, apiError{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, apiError{Error: err.Error(), Retry: true})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Locations(r.Context()))
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := s.source.LoadDataset(r.Context(), r.PathValue("name"))
	if err != nil {
		writeLoadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleArcs(w http.ResponseWriter, r *http.Request) {
	ds, err := s.source.LoadDataset(r.Context(), r.PathValue("name"))
	if err != nil {
		writeLoadError(w, err)
		return
	}
	maxArcs := queryInt(r, "max", s.mapConfig.MaxArcs)
	data, err := ArcFeatures(ds, maxArcs).MarshalJSON()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if ds.Fallback {
		w.Header().Set("X-Flow-Fallback", "true")
	}
	_, _ = w.Write(data)
}

// handleChart serves one aggregate chart. format=json returns the table;
// otherwise a PNG, pie by default or bar with style=bar.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	kind, err := charts.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeLoadError(w, err)
		return
	}
	rows, err := s.source.Rows(r.Context(), r.PathValue("name"))
	if err != nil {
		log.Printf("[server] Chart rows for %q: %v", r.PathValue("name"), err)
		writeLoadError(w, err)
		return
	}
	table, err := charts.Build(kind, rows)
	if err != nil {
		writeLoadError(w, err)
		return
	}

	q := r.URL.Query()
	if q.Get("format") == "json" {
		writeJSON(w, http.StatusOK, table)
		return
	}

	width := queryInt(r, "w", charts.DefaultWidth)
	height := queryInt(r, "h", charts.DefaultHeight)
	render := charts.RenderPie
	if q.Get("style") == "bar" {
		render = charts.RenderBar
	}
	var buf bytes.Buffer
	if err := render(&buf, table, width, height); err != nil {
		if errors.Is(err, charts.ErrNoData) {
			writeLoadError(w, err)
			return
		}
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}
