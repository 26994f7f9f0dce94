// Package transport serves the MCP endpoint and uploaded files over HTTP.
package transport

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Files opens stored uploads by object name.
type Files interface {
	Open(objectName string) (*os.File, error)
}

// Options configures the router.
type Options struct {
	// FilesPrefix is the URL path uploads are served under, e.g. "/files".
	FilesPrefix string
	// AccessKey, when set, guards /mcp and the uploads.
	AccessKey string
	Logger    *slog.Logger
}

// NewRouter mounts mcpHandler at /mcp, files under opts.FilesPrefix and an
// unauthenticated /health probe.
func NewRouter(mcpHandler http.Handler, files Files, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AccessKeyMiddleware(opts.AccessKey))
		r.Handle("/mcp", mcpHandler)
		r.Handle("/mcp/*", mcpHandler)
		if files != nil {
			prefix := FilesPrefix(opts.FilesPrefix)
			r.Get(prefix+"/*", filesHandler(files, logger))
		}
	})
	return r
}

// FilesPrefix normalizes a base URL path to "/name" form.
func FilesPrefix(baseURL string) string {
	trimmed := strings.Trim(baseURL, "/")
	if trimmed == "" {
		return "/files"
	}
	return "/" + trimmed
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func filesHandler(files Files, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		f, err := files.Open(name)
		if err != nil {
			logger.Debug("upload not served", "name", name, "error", err)
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
