package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmorgan81/sdtool/internal/config"
	"github.com/dmorgan81/sdtool/internal/log"
	"github.com/dmorgan81/sdtool/internal/tool"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/samber/do"
)

const maxBodyBytes = 1 << 20

type Server struct {
	Router *chi.Mux
	tools  *tool.Tools
	logger *slog.Logger
	http   *http.Server
}

func NewServer(i *do.Injector) (*Server, error) {
	settings := do.MustInvoke[config.Settings](i)
	return New(settings, do.MustInvoke[*tool.Tools](i), do.MustInvoke[*slog.Logger](i)), nil
}

func New(settings config.Settings, tools *tool.Tools, logger *slog.Logger) *Server {
	s := &Server{
		Router: chi.NewRouter(),
		tools:  tools,
		logger: logger,
	}
	s.routes()
	s.http = &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation may take the full generate timeout before the reply is written.
		WriteTimeout: settings.GenerateTimeout + 30*time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.Router.Use(s.requestID)
	s.Router.Use(chiMiddleware.Recoverer)

	s.Router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.Router.Route("/tools", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/{name}", s.handleInvoke)
	})
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestID tags each request with an id and a logger carrying it.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		logger := s.logger.With("request_id", rid, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(log.NewContext(r.Context(), logger)))
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": tool.Definitions()})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	logger := log.FromContextOrDiscard(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	result, err := s.tools.Invoke(r.Context(), name, body)
	switch {
	case errors.Is(err, tool.ErrUnknownTool):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, tool.ErrInvalidArguments):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Error("invoke tool", "tool", name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("tool invoked", "tool", name)
	writeJSON(w, http.StatusOK, map[string]string{"tool": name, "result": result})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
