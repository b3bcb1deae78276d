package mockserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/harun/hwdesk/internal/observability"
	"github.com/rs/zerolog"
)

// Config configures the mock backend
type Config struct {
	Addr               string
	Secret             string
	Issuer             string
	TokenTTL           time.Duration
	RateLimitPerMinute int
	PasswordCost       int
	MaxUploadBytes     int64
	// Empty skips the demo data set.
	Empty bool
}

// Server is the mock homework backend
type Server struct {
	cfg       Config
	db        *DB
	tokens    *TokenIssuer
	limiter   *RateLimiter
	validate  *validator.Validate
	router    chi.Router
	server    *http.Server
	logger    zerolog.Logger
	startTime time.Time
}

type userKey struct{}

// New creates a server with seeded data
func New(cfg Config, logger zerolog.Logger) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":9024"
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "hwdesk-mock"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate signing secret: %w", err)
		}
	}

	tokens, err := NewTokenIssuer(secret, cfg.TokenTTL, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	db := NewDB(cfg.PasswordCost)
	if !cfg.Empty {
		if err := Seed(db); err != nil {
			return nil, fmt.Errorf("failed to seed data: %w", err)
		}
	}

	s := &Server{
		cfg:       cfg,
		db:        db,
		tokens:    tokens,
		limiter:   NewRateLimiter(cfg.RateLimitPerMinute),
		validate:  newValidator(),
		logger:    logger,
		startTime: time.Now(),
	}
	s.router = s.routes()
	return s, nil
}

// DB exposes the backing data
func (s *Server) DB() *DB {
	return s.db
}

// Tokens exposes the token issuer
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.rateLimit)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", observability.MetricsHandler())

	r.Post("/login", s.handleLogin)
	r.Post("/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/getInfo", s.handleGetInfo)
		r.Put("/user/profile", s.handleUpdateProfile)

		r.Post("/class/join", s.handleJoinClass)
		r.Get("/class/joined", s.handleJoinedClasses)

		r.Get("/assignments/{classId}", s.handleClassAssignments)
		r.Get("/assignment/{assignmentId}", s.handleAssignment)
		r.Post("/assignment/submit", s.handleSubmit)
		r.Post("/assignment/question", s.handleAskQuestion)

		r.Get("/submissions", s.handleSubmissions)
		r.Get("/submission/{submissionId}", s.handleSubmission)
		r.Post("/submission/{submissionId}/question", s.handleAddSubmissionQuestion)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, http.StatusNotFound, 404, "接口不存在")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, http.StatusMethodNotAllowed, 405, "请求方法不支持")
	})
	return r
}

// Start listens on the configured address until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", s.cfg.Addr).Msg("Starting mock backend")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start mock backend: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.limiter.Stop()
	if s.server == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down mock backend")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown mock backend: %w", err)
	}
	s.logger.Info().Msg("Mock backend stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("client_request_id", r.Header.Get("X-Request-ID")).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !s.limiter.Allow(client) {
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.RetryAfter(client)))
			s.logger.Warn().Str("client", client).Msg("Rate limit exceeded")
			s.fail(w, r, http.StatusTooManyRequests, 429, "请求过于频繁")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate answers HTTP 401 when no bearer token is sent and envelope
// code 401 when the token does not verify.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.fail(w, r, http.StatusUnauthorized, 401, "未登录")
			return
		}

		claims, err := s.tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.logger.Debug().Err(err).Msg("Rejected bearer token")
			s.fail(w, r, http.StatusOK, 401, "登录已过期，请重新登录")
			return
		}
		if _, err := s.db.User(claims.UID); err != nil {
			s.fail(w, r, http.StatusOK, 401, "用户不存在")
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, claims.UID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) string {
	uid, _ := r.Context().Value(userKey{}).(string)
	return uid
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, r, http.StatusOK, 400, "请求体格式错误")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.fail(w, r, http.StatusOK, 400, validationMessage(err))
		return false
	}
	return true
}

// ok writes a success envelope. Members of extra are added next to code
// and message.
func (s *Server) ok(w http.ResponseWriter, r *http.Request, message string, extra map[string]interface{}) {
	s.write(w, r, http.StatusOK, 200, message, extra)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status, code int, message string) {
	s.write(w, r, status, code, message, nil)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status, code int, message string, extra map[string]interface{}) {
	body := make(map[string]interface{}, len(extra)+2)
	for k, v := range extra {
		body[k] = v
	}
	body["code"] = code
	body["message"] = message

	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	observability.RecordBackendRequest(route, code)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to write response")
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
