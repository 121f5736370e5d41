// Package httpserver is the local gateway the presentational layer talks
// to: three read models (capability, session, feed) and the interactive
// commands.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/dispatch"
	"github.com/Connectlite/cl/internal/domain"
	"github.com/Connectlite/cl/internal/feed"
	"github.com/Connectlite/cl/internal/session"
	"github.com/Connectlite/cl/internal/share"
)

// Server is the HTTP gateway.
type Server struct {
	cfg        *config.Config
	sessions   *session.Manager
	feed       *feed.Manager
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	httpServer *http.Server

	// baseCtx bounds subscriptions started from handlers; they must outlive
	// the request that triggered them.
	baseCtx context.Context
}

// NewServer creates the gateway. ctx bounds the lifetime of subscriptions
// started through it.
func NewServer(
	ctx context.Context,
	cfg *config.Config,
	sessions *session.Manager,
	feedManager *feed.Manager,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		sessions:   sessions,
		feed:       feedManager,
		dispatcher: dispatcher,
		logger:     logger,
		baseCtx:    ctx,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/capability", s.handleCapability)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/feed", s.handleFeed)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/posts", s.handleCreatePost)
	mux.HandleFunc("POST /api/filter", s.handleFilter)
	mux.HandleFunc("POST /api/share", s.handleShare)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the gateway handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCapability(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": s.cfg.Enabled,
		"demo":    s.cfg.DemoMode,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"ready":    s.sessions.Ready(),
		"signedIn": false,
	}
	if sess := s.sessions.Session(); sess != nil {
		resp["signedIn"] = true
		resp["uid"] = sess.UID
		resp["displayName"] = sess.DisplayName
		resp["avatarUrl"] = sess.AvatarURL
		resp["startedAt"] = sess.StartedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	snap := s.feed.Snapshot()

	posts := make([]postResponse, len(snap.Posts))
	for i, p := range snap.Posts {
		posts[i] = toPostResponse(p)
	}

	resp := map[string]any{
		"filter":         filterResponse(snap.Filter),
		"posts":          posts,
		"materializedAt": snap.MaterializedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "email and password are required")
		return
	}

	if err := s.dispatcher.Authenticate(r.Context(), req.Email, req.Password); err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed-in"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "email and password are required")
		return
	}

	if err := s.dispatcher.Register(r.Context(), req.Email, req.Password, req.DisplayName); err != nil {
		s.writeCommandError(w, err)
		return
	}
	// registration ends signed out on purpose; the caller returns to the
	// login view
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
		Link        string `json:"link"`
		ImageURL    string `json:"imageUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}

	draft := dispatch.PostDraft{
		Description: req.Description,
		Link:        req.Link,
		ImageURL:    req.ImageURL,
	}
	if err := s.dispatcher.CreatePost(r.Context(), draft); err != nil {
		s.writeCommandError(w, err)
		return
	}
	if draft.Empty() {
		// ignored by design, and the caller keeps its draft
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Author string `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}

	filter := domain.GlobalFeed()
	if req.Author != "" {
		filter = domain.AuthorFeed(req.Author)
	}

	s.feed.Subscribe(s.baseCtx, filter)
	writeJSON(w, http.StatusOK, map[string]any{"filter": filterResponse(filter)})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}

	result, err := share.Share(req.Text, req.URL)
	if err != nil {
		s.logger.Warn("clipboard write failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"copied": result.Copied,
		"text":   result.Text,
	})
}

func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var authErr *domain.AuthError
	var writeErr *domain.WriteError
	switch {
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, "BackendUnavailable",
			"Backend is not configured; running offline.")
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, "AuthFailure", authErr.Error())
	case errors.As(err, &writeErr):
		writeError(w, http.StatusBadGateway, "WriteFailure", writeErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error())
	}
}

type postResponse struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName"`
	AuthorAvatar string    `json:"authorPhoto"`
	Description  string    `json:"description"`
	Link         string    `json:"link,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Likes        []string  `json:"likes"`
	Bookmarks    []string  `json:"bookmarks"`
}

func toPostResponse(p domain.Post) postResponse {
	return postResponse{
		ID:           p.ID,
		AuthorID:     p.AuthorID,
		AuthorName:   p.AuthorName,
		AuthorAvatar: p.AuthorAvatar,
		Description:  p.Description,
		Link:         p.Link,
		ImageURL:     p.ImageURL,
		CreatedAt:    p.CreatedAt,
		Likes:        p.Likes,
		Bookmarks:    p.Bookmarks,
	}
}

func filterResponse(f domain.FeedFilter) map[string]any {
	if f.Global() {
		return map[string]any{"scope": "global"}
	}
	return map[string]any{"scope": "author", "author": f.AuthorID}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
