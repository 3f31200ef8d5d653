package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"imagehub/internal/api"
	"imagehub/internal/auth"
	"imagehub/internal/observability/metrics"
)

const (
	msgMissingAuthHeader = "Missing or invalid Authorization header"
	msgAccessDenied      = "Access denied"

	defaultVerifyTimeout = 5 * time.Second
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr          string
	TLS           TLSConfig
	Logger        *slog.Logger
	Metrics       *metrics.Recorder
	VerifyTimeout time.Duration
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	metrics     *metrics.Recorder
	tlsCertFile string
	tlsKeyFile  string
}

func New(handler *api.API, verifier *auth.Verifier, cfg Config) (*Server, error) {
	if verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", recorder.Handler())

	verifyTimeout := cfg.VerifyTimeout
	if verifyTimeout <= 0 {
		verifyTimeout = defaultVerifyTimeout
	}

	handlerChain := http.Handler(mux)
	handlerChain = authMiddleware(verifier, recorder, verifyTimeout, handlerChain)
	handlerChain = metricsMiddleware(recorder, handlerChain)
	handlerChain = loggingMiddleware(cfg.Logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		metrics:     recorder,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}

	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)
		logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", duration.Milliseconds(),
			"remote_ip", extractClientIP(r))
	})
}

func metricsMiddleware(recorder *metrics.Recorder, next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(sr, r)
		recorder.ObserveRequest(r.Method, r.URL.Path, sr.status, time.Since(start))
	})
}

// authMiddleware is the gate in front of every protected route. The decision
// runs in order: public paths pass untouched, a missing or malformed header
// rejects with 401 before any token work, a failed verification rejects with
// the verifier's message, and a user-scoped path owned by someone else
// rejects with 403. Only then does the request proceed, carrying the caller's
// identity in its context.
func authMiddleware(verifier *auth.Verifier, recorder *metrics.Recorder, verifyTimeout time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if isPublicPath(path) {
			recorder.ObserveAuthDecision("anonymous")
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			recorder.ObserveAuthDecision("rejected")
			api.WriteError(w, http.StatusUnauthorized, errors.New(msgMissingAuthHeader))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
		result := verifier.Verify(ctx, token)
		cancel()
		if result.State != auth.StateAuthenticated {
			recorder.ObserveAuthDecision("rejected")
			status := result.Status
			if status == 0 {
				status = http.StatusUnauthorized
			}
			api.WriteError(w, status, errors.New(result.Message))
			return
		}

		if !auth.AuthorizePath(path, result.Identity) {
			recorder.ObserveAuthDecision("forbidden")
			api.WriteError(w, http.StatusForbidden, errors.New(msgAccessDenied))
			return
		}

		recorder.ObserveAuthDecision("authenticated")
		next.ServeHTTP(w, r.WithContext(api.ContextWithIdentity(r.Context(), result.Identity)))
	})
}

// isPublicPath reports whether the request bypasses authentication entirely:
// health and metrics probes, the token-issuing auth endpoints, and anything
// outside the API surface.
func isPublicPath(path string) bool {
	return path == "/healthz" ||
		path == "/metrics" ||
		strings.HasPrefix(path, "/api/auth/") ||
		!strings.HasPrefix(path, "/api/")
}

// bearerToken extracts the credential from the Authorization header. The
// scheme comparison is case-insensitive; an empty credential counts as
// malformed.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
