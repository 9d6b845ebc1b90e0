// Package server exposes a page and its composite over HTTP.
//
// Routes:
//
//	GET    /healthz             liveness probe
//	GET    /view                composite as PNG; ?hide=a,b overrides the default state, ?zoom=0.5 scales
//	GET    /stats               cache and viewer counters as JSON
//	GET    /regions             regions on the page as JSON
//	POST   /regions             add a rectangular region, clipped to the page
//	DELETE /regions/{id}        remove a region
//
// Region edits are persisted when the server has a store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gogpu/maskview"
	"github.com/gogpu/maskview/store"
)

// Server serves one page. Requests are serialized, so a composite is never
// encoded while a region edit patches it.
type Server struct {
	page   *maskview.Page
	cache  *maskview.Cache
	viewer *maskview.Viewer
	db     *store.Store
	vis    maskview.VisibilityProvider
	router chi.Router

	mu sync.Mutex
}

// New returns a server for page. The cache must be subscribed to page.
// db may be nil, in which case edits are kept in memory only. vis supplies
// the state used by /view when the request does not name one; a fixed
// VisibilityState works.
func New(page *maskview.Page, c *maskview.Cache, v *maskview.Viewer, db *store.Store, vis maskview.VisibilityProvider) *Server {
	s := &Server{
		page:   page,
		cache:  c,
		viewer: v,
		db:     db,
		vis:    vis,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/view", s.handleView)
	r.Get("/stats", s.handleStats)
	r.Route("/regions", func(r chi.Router) {
		r.Get("/", s.handleListRegions)
		r.Post("/", s.handleAddRegion)
		r.Delete("/{id}", s.handleDeleteRegion)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	maskview.Logger().Info("serving", "addr", addr, "page", s.page.ID())
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return ctx.Err()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		maskview.Logger().Debug("request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"bytes", ww.BytesWritten(), "id", middleware.GetReqID(r.Context()))
	})
}

// visibility resolves the hide query parameter. An absent parameter keeps the
// default state; an empty one hides nothing.
func (s *Server) visibility(r *http.Request) (maskview.VisibilityState, error) {
	q := r.URL.Query()
	if !q.Has("hide") {
		return s.vis.Visibility().WithPage(s.page.ID()), nil
	}
	var names []string
	if v := q.Get("hide"); v != "" {
		names = strings.Split(v, ",")
	}
	hide, err := s.page.Categories().HideSetOf(names...)
	if err != nil {
		return maskview.VisibilityState{}, err
	}
	return maskview.VisibilityState{Page: s.page.ID(), Hide: hide}, nil
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	vs, err := s.visibility(r)
	if err != nil {
		httpError(w, err)
		return
	}
	zoom := 1.0
	if v := r.URL.Query().Get("zoom"); v != "" {
		if zoom, err = strconv.ParseFloat(v, 64); err != nil || zoom <= 0 {
			http.Error(w, fmt.Sprintf("bad zoom %q", v), http.StatusBadRequest)
			return
		}
		if !s.viewer.ZoomFits(s.page.Bounds(), zoom) {
			http.Error(w, fmt.Sprintf("zoom %q exceeds %d pixels", v, s.viewer.MaxPixels()), http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.viewer.View(s.page, vs, zoom)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Maskview-Generation", strconv.FormatUint(s.cache.Generation(), 10))
	if err := img.EncodePNG(w); err != nil {
		maskview.Logger().Warn("encode composite", "err", err)
	}
}

type statsResponse struct {
	Page       string               `json:"page"`
	Regions    int                  `json:"regions"`
	Generation uint64               `json:"generation"`
	Cache      maskview.CacheStats  `json:"cache"`
	Viewer     maskview.ViewerStats `json:"viewer"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := statsResponse{
		Page:       string(s.page.ID()),
		Regions:    s.page.Len(),
		Generation: s.cache.Generation(),
		Cache:      s.cache.Stats(),
		Viewer:     s.viewer.Stats(),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// RegionJSON is the wire form of a region. Rect is x0, y0, x1, y1.
type RegionJSON struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Rect     [4]int `json:"rect"`
}

func (s *Server) handleListRegions(w http.ResponseWriter, _ *http.Request) {
	cats := s.page.Categories()
	s.mu.Lock()
	out := []RegionJSON{}
	for _, c := range cats.All() {
		for _, reg := range s.page.Regions(c) {
			b := reg.Bounds
			out = append(out, RegionJSON{
				ID:       string(reg.ID),
				Category: cats.Name(c),
				Rect:     [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
			})
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddRegion(w http.ResponseWriter, r *http.Request) {
	var req RegionJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	c, err := s.page.Categories().Parse(req.Category)
	if err != nil {
		httpError(w, err)
		return
	}
	rect := image.Rect(req.Rect[0], req.Rect[1], req.Rect[2], req.Rect[3]).Intersect(s.page.Bounds())
	if rect.Empty() {
		http.Error(w, "rect is empty or outside the page", http.StatusBadRequest)
		return
	}
	req.Rect = [4]int{rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y}
	reg := maskview.RectRegion(maskview.RegionID(req.ID), c, rect)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.page.AddRegion(reg); err != nil {
		httpError(w, err)
		return
	}
	if s.db != nil {
		if err := s.db.SaveRegions(r.Context(), s.page.ID(), []maskview.Region{reg}); err != nil {
			maskview.Logger().Error("persist region", "region", reg.ID, "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	id := maskview.RegionID(chi.URLParam(r, "id"))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.page.RemoveRegion(r.Context(), id); err != nil {
		httpError(w, err)
		return
	}
	if s.db != nil {
		if err := s.db.DeleteRegion(r.Context(), s.page.ID(), id); err != nil && !errors.Is(err, maskview.ErrUnknownRegion) {
			maskview.Logger().Error("delete stored region", "region", id, "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, maskview.ErrUnknownRegion):
		status = http.StatusNotFound
	case errors.Is(err, maskview.ErrDuplicateRegion):
		status = http.StatusConflict
	case errors.Is(err, maskview.ErrUnknownCategory),
		errors.Is(err, maskview.ErrInvalidRegion):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		maskview.Logger().Warn("encode response", "err", err)
	}
}
