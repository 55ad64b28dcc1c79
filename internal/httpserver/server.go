// Package httpserver exposes the feed service over HTTP and streams change
// notifications over WebSocket.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/web3-feed/internal/agent/ingest"
	"github.com/web3-feed/internal/feed"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/notify"
	"github.com/web3-feed/pkg/logger"
)

// CallerHeader carries the authenticated caller id set by the gateway in front
const CallerHeader = "X-User-ID"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrUnauthenticated is returned by a CallerResolver without an identity
var ErrUnauthenticated = errors.New("caller is not authenticated")

// CallerResolver extracts the caller id from a request
type CallerResolver func(r *http.Request) (string, error)

// HeaderCallerResolver reads the caller id from CallerHeader
func HeaderCallerResolver(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(CallerHeader))
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// FeedService is what the API needs from the feed layer
type FeedService interface {
	ScrapeContent(ctx context.Context, callerID string, req models.ScrapeRequest) (*ingest.ScrapeResult, feed.Notice, error)
	RefreshContent(ctx context.Context, callerID string, platforms []string) (*ingest.ScrapeResult, feed.Notice, error)
	GetStoredContent(ctx context.Context, callerID string, platform *models.Platform) ([]models.ContentItem, error)
	IsScraping(callerID string) bool
	Health() []ingest.PlatformHealth
	Subscribe(ctx context.Context, callerID string) (<-chan notify.Event, func(), error)
}

// Option configures a Server
type Option func(*Server)

// WithCallerResolver replaces the header based resolver
func WithCallerResolver(fn CallerResolver) Option {
	return func(s *Server) { s.resolveCaller = fn }
}

// Server routes API requests to the feed service
type Server struct {
	feed          FeedService
	resolveCaller CallerResolver
	upgrader      websocket.Upgrader
	router        *mux.Router
	log           *logger.Logger
}

// New creates the API server
func New(svc FeedService, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		feed:          svc,
		resolveCaller: HeaderCallerResolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.WithComponent("http"),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleLiveness).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/scrape", s.handleScrape).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/content", s.handleContent).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	s.router = router
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down within shutdownTimeout
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

type scrapeResponse struct {
	RunID    string               `json:"runId,omitempty"`
	Items    []models.ContentItem `json:"items"`
	Inserted int                  `json:"inserted"`
	Skipped  []string             `json:"skipped,omitempty"`
	Failures []platformFailure    `json:"failures,omitempty"`
	Notice   feed.Notice          `json:"notice"`
}

type platformFailure struct {
	Platform models.Platform `json:"platform"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error"`
}

type errorResponse struct {
	Error  string       `json:"error"`
	Notice *feed.Notice `json:"notice,omitempty"`
}

func newScrapeResponse(res *ingest.ScrapeResult, notice feed.Notice) scrapeResponse {
	out := scrapeResponse{Items: []models.ContentItem{}, Notice: notice}
	if res == nil {
		return out
	}
	out.RunID = res.RunID
	out.Inserted = res.Inserted
	out.Skipped = res.Skipped
	if res.Items != nil {
		out.Items = res.Items
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, platformFailure{Platform: f.Platform, Attempts: f.Attempts, Error: f.Err.Error()})
	}
	return out
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	callerID, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req models.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), nil)
		return
	}

	res, notice, err := s.feed.ScrapeContent(r.Context(), callerID, req)
	if err != nil {
		writeError(w, statusFor(err), err, &notice)
		return
	}
	writeJSON(w, http.StatusOK, newScrapeResponse(res, notice))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	callerID, ok := s.caller(w, r)
	if !ok {
		return
	}

	var body struct {
		Platforms []string `json:"platforms"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), nil)
			return
		}
	}

	res, notice, err := s.feed.RefreshContent(r.Context(), callerID, body.Platforms)
	if err != nil {
		writeError(w, statusFor(err), err, &notice)
		return
	}
	writeJSON(w, http.StatusOK, newScrapeResponse(res, notice))
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	callerID, ok := s.caller(w, r)
	if !ok {
		return
	}

	var platform *models.Platform
	if raw := r.URL.Query().Get("platform"); raw != "" {
		p, err := models.ParsePlatform(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err, nil)
			return
		}
		platform = &p
	}

	items, err := s.feed.GetStoredContent(r.Context(), callerID, platform)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	items = feed.ContentByKeywords(items, r.URL.Query()["keyword"])
	if items == nil {
		items = []models.ContentItem{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":          items,
		"total":          len(items),
		"platformCounts": feed.PlatformCounts(items),
		"isScraping":     s.feed.IsScraping(callerID),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"platforms": s.feed.Health(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	callerID, ok := s.caller(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, cleanup, err := s.feed.Subscribe(ctx, callerID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err, nil)
		return
	}
	defer cleanup()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.WithCaller(callerID)
	log.Debug().Msg("WebSocket client connected")

	// the read loop only handles control frames and notices the client leaving
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := s.resolveCaller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err, nil)
		return "", false
	}
	return id, true
}

func statusFor(err error) int {
	var persistErr *ingest.PersistenceError
	var platformErr *ingest.PlatformError
	switch {
	case errors.Is(err, models.ErrInvalidConfig), errors.Is(err, models.ErrUnsupportedPlatform):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError
	case errors.As(err, &platformErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, notice *feed.Notice) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Notice: notice})
}
