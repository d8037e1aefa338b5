package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/skilldash/internal/config"
	"github.com/ent0n29/skilldash/internal/extraction"
	"github.com/ent0n29/skilldash/internal/logging"
	"github.com/ent0n29/skilldash/internal/observability"
	"github.com/ent0n29/skilldash/internal/session"
	"github.com/ent0n29/skilldash/internal/skill"
)

const maxBodyBytes = 64 << 10

// ChatExtractor runs one chat turn through the extraction pipeline.
type ChatExtractor interface {
	Extract(ctx context.Context, req extraction.ChatRequest) (extraction.Result, error)
}

// VoiceExtractor extracts a complete draft from a transcript.
type VoiceExtractor interface {
	Extract(ctx context.Context, transcript string) (skill.Draft, error)
}

// Deps are the collaborators a Server routes to. Skills and Sessions may
// be nil; their routes then answer 501.
type Deps struct {
	Chat     ChatExtractor
	Voice    VoiceExtractor
	Skills   skill.Store
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Logger   *slog.Logger
	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	cfg      config.Config
	chat     ChatExtractor
	voice    VoiceExtractor
	skills   skill.Store
	sessions *session.Manager
	metrics  *observability.Metrics
	logger   *slog.Logger
	ready    func(ctx context.Context) error
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		chat:     deps.Chat,
		voice:    deps.Voice,
		skills:   deps.Skills,
		sessions: deps.Sessions,
		metrics:  deps.Metrics,
		logger:   logger,
		ready:    deps.Ready,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers unless APP_ALLOW_ANY_ORIGIN is set.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/voice/parse", s.handleVoiceParse)
	r.Post("/v1/chat/session", s.handleCreateSession)
	r.Get("/v1/chat/session/{id}", s.handleGetSession)
	r.Post("/v1/chat/session/{id}/end", s.handleEndSession)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/skills", func(r chi.Router) {
		r.Get("/", s.handleListSkills)
		r.Post("/", s.handleCreateSkill)
		r.Get("/categories", s.handleListCategories)
		r.Get("/{id}", s.handleGetSkill)
		r.Patch("/{id}", s.handleUpdateSkill)
		r.Delete("/{id}", s.handleDeleteSkill)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"skill_store_mode": s.skillStoreMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, "not_ready", "dependencies unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"skill_store_mode": s.skillStoreMode(),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		s.requestLogger(r).Debug("request served",
			"method", r.Method,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	return logging.WithRequest(s.logger, middleware.GetReqID(r.Context()), r.URL.Path, clientKey(r))
}

// clientKey identifies the caller for rate limiting: the first
// X-Forwarded-For hop, then X-Real-IP, then the peer address.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// userID is the caller-supplied owner of skill records. Authentication
// happens upstream of this service.
func userID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-User-ID")); v != "" {
		return v
	}
	return skill.DefaultUserID
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		// A truncated body is io.ErrUnexpectedEOF, not empty.
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) skillStoreMode() string {
	if s.skills == nil {
		return "disabled"
	}
	return s.skills.Mode()
}
