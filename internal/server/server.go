// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bdlm/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/bindery/internal/schemestore"
	"github.com/matthewbaird/bindery/internal/session"
	"github.com/matthewbaird/bindery/internal/wire"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Schemes      *schemestore.Store
	Sessions     *session.Manager
	CleanupEvery time.Duration
}

type api struct {
	schemes  *schemestore.Store
	sessions *session.Manager
}

// NewRouter registers every route.
func NewRouter(cfg Config) chi.Router {
	a := &api{schemes: cfg.Schemes, sessions: cfg.Sessions}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, logging)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/schemes", func(r chi.Router) {
		r.Get("/", a.listSchemes)
		r.Get("/{name}", a.getScheme)
		r.Put("/{name}", a.putScheme)
		r.Delete("/{name}", a.deleteScheme)
		r.Get("/{name}/versions", a.schemeVersions)
		r.Get("/{name}/screens", a.schemeScreens)
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", a.listSessions)
		r.Post("/", a.openSession)
		r.Get("/{id}", a.getSession)
		r.Delete("/{id}", a.closeSession)
		r.Post("/{id}/elements/{element}/trigger", a.trigger)
		r.Put("/{id}/elements/{element}/{key}", a.set)
		r.Post("/{id}/refresh", a.refresh)
	})

	r.Get("/api/ws", wire.NewHandler(cfg.Sessions).ServeHTTP)
	return r
}

// Run starts the HTTP server and stops it when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	router := NewRouter(cfg)

	if cfg.CleanupEvery > 0 {
		go func() {
			t := time.NewTicker(cfg.CleanupEvery)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					cfg.Sessions.Cleanup()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Infof("starting server on %s", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
		cfg.Sessions.CloseAll()
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *api) listSchemes(w http.ResponseWriter, r *http.Request) {
	names, err := a.schemes.Names()
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemes": names})
}

func (a *api) getScheme(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var (
		data    []byte
		version int
		err     error
	)
	if v := r.URL.Query().Get("version"); v != "" {
		version, err = strconv.Atoi(v)
		if err != nil || version < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_VERSION", "invalid version: "+v)
			return
		}
		data, err = a.schemes.Version(name, version)
	} else {
		data, version, err = a.schemes.Get(name)
	}
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Scheme-Version", strconv.Itoa(version))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (a *api) putScheme(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	version, err := a.schemes.Put(name, data)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"name": name, "version": version})
}

func (a *api) deleteScheme(w http.ResponseWriter, r *http.Request) {
	if err := a.schemes.Delete(chi.URLParam(r, "name")); err != nil {
		errorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) schemeVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := a.schemes.Versions(chi.URLParam(r, "name"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (a *api) schemeScreens(w http.ResponseWriter, r *http.Request) {
	doc, err := a.schemes.Load(chi.URLParam(r, "name"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"screens": doc.ScreenIDs()})
}

type openRequest struct {
	Document string `json:"document"`
	Screen   string `json:"screen"`
}

type sessionResponse struct {
	*session.Session
	State *session.State `json:"state,omitempty"`
}

func (a *api) openSession(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeJSON(r, &req); err != nil || req.Document == "" || req.Screen == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "document and screen are required")
		return
	}
	sess, err := a.sessions.Open(r.Context(), req.Document, req.Screen)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	state, err := sess.Snapshot()
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: sess, State: &state})
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	out := []sessionResponse{}
	for _, s := range a.sessions.List() {
		out = append(out, sessionResponse{Session: s})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// session resolves the {id} parameter, writing 404 when it is unknown.
func (a *api) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s := a.sessions.Get(chi.URLParam(r, "id"))
	if s == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such session")
		return nil, false
	}
	return s, true
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	state, err := s.Snapshot()
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: s, State: &state})
}

func (a *api) closeSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.session(w, r); !ok {
		return
	}
	a.sessions.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) trigger(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := s.Trigger(chi.URLParam(r, "element")); err != nil {
		errorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) set(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Value any `json:"value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := s.Set(chi.URLParam(r, "element"), chi.URLParam(r, "key"), body.Value); err != nil {
		errorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := s.Refresh(r.Context()); err != nil {
		errorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
