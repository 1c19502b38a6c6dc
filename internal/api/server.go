package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"kitehostel/internal/service"
)

// Whiteboards builds the read model for a date and opens edit sessions on it.
type Whiteboards interface {
	Whiteboard(ctx context.Context, date time.Time) (*service.Whiteboard, error)
	OpenSession(ctx context.Context, teacherID uuid.UUID, date time.Time) (*service.Session, error)
}

// HTTPServer serves the whiteboard and its edit sessions.
type HTTPServer struct {
	svc      Whiteboards
	logger   zerolog.Logger
	server   *http.Server
	now      func() time.Time
	sessions *sessionStore

	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPServer(svc Whiteboards, port int, rps float64, burst int, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	s := &HTTPServer{
		svc:      svc,
		logger:   l.With().Str("component", "api").Logger(),
		now:      time.Now,
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
	s.sessions = newSessionStore(defaultSessionTTL, func() time.Time { return s.now() })

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/whiteboard", s.handleWhiteboard)
	mux.HandleFunc("/api/v1/whiteboard/teacher", s.handleTeacherDay)
	mux.HandleFunc("POST /api/v1/sessions", s.handleOpenSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/{action}", s.handleSessionAction)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.limit(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetSessionTTL changes how long an idle edit session is kept.
func (s *HTTPServer) SetSessionTTL(ttl time.Duration) {
	if ttl > 0 {
		s.sessions.setTTL(ttl)
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("API server started")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("API server failed")
	}
}

func (s *HTTPServer) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiterFor(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) limiterFor(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[key] = l
	}
	return l
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
