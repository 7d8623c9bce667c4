// Package server exposes the syncx HTTP API: client registration,
// archive upload and verified file download.
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/syncx-labs/syncx/pkg/api"
	"github.com/syncx-labs/syncx/pkg/auth"
	"github.com/syncx-labs/syncx/pkg/blob"
	"github.com/syncx-labs/syncx/pkg/cache"
	"github.com/syncx-labs/syncx/pkg/observability"
	"github.com/syncx-labs/syncx/pkg/store"
)

// Options wires the server to its adapters.
type Options struct {
	Docs   store.Docs
	Cache  cache.Cache
	Queue  cache.Queue
	Blobs  blob.Store
	Tokens *auth.TokenIssuer

	// WorkDir roots the server's scratch tree (landing zips).
	WorkDir string

	Obs    *observability.Provider
	Logger *slog.Logger

	// Per-IP rate limit; zero disables limiting.
	RateRPS   int
	RateBurst int
}

// Server holds the handler dependencies.
type Server struct {
	docs    store.Docs
	cache   cache.Cache
	queue   cache.Queue
	blobs   blob.Store
	tokens  *auth.TokenIssuer
	workDir string
	obs     *observability.Provider
	logger  *slog.Logger
	limiter *api.RateLimiter
}

// New builds a Server from opts.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		docs:    opts.Docs,
		cache:   opts.Cache,
		queue:   opts.Queue,
		blobs:   opts.Blobs,
		tokens:  opts.Tokens,
		workDir: opts.WorkDir,
		obs:     opts.Obs,
		logger:  logger.With("component", "server"),
	}
	if opts.RateRPS > 0 {
		s.limiter = api.NewRateLimiter(opts.RateRPS, opts.RateBurst)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/clients", s.handleRegister)
	mux.HandleFunc("POST /v1/tokens", s.handleLogin)
	mux.HandleFunc("POST /v1/files", s.handleUpload)
	mux.HandleFunc("GET /v1/files/{name}", s.handleDownload)

	mux.HandleFunc("/v1/clients", methodNotAllowed)
	mux.HandleFunc("/v1/tokens", methodNotAllowed)
	mux.HandleFunc("/v1/files", methodNotAllowed)
	mux.HandleFunc("/v1/files/{name}", methodNotAllowed)

	var h http.Handler = mux
	h = s.measure(h)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return api.RequestIDMiddleware(h)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	api.WriteMethodNotAllowed(w)
}

// measure records RED metrics for every request.
func (s *Server) measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.obs == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		}
		s.obs.RecordRequest(r.Context(), attrs...)
		next.ServeHTTP(w, r)
		s.obs.RecordDuration(r.Context(), time.Since(start), attrs...)
	})
}

// authenticate extracts and verifies the bearer token, returning the
// client id. Missing or invalid credentials fail closed.
func (s *Server) authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}

	uid, err := s.tokens.Verify(token)
	if err != nil {
		return "", false
	}
	return uid, true
}
