// Package gateway exposes the session coordinator over HTTP and
// WebSocket so presentation clients can observe state and forward
// submit/clear intents.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/session"
	"github.com/soyeahso/parley/internal/version"
)

// exchangeTimeout caps a single gateway-initiated exchange.
const exchangeTimeout = 5 * time.Minute

// Server serves the coordinator's state and commands.
type Server struct {
	cfg     config.GatewayConfig
	auth    ResolvedAuth
	coord   *session.Coordinator
	log     *logging.Logger
	clients *ClientRegistry

	eventSeq   atomic.Int64
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates a gateway over the given coordinator. The server
// subscribes to coordinator changes and broadcasts them as "state"
// events.
func NewServer(cfg config.GatewayConfig, coord *session.Coordinator, log *logging.Logger) *Server {
	gwLog := log.Sub("gateway")
	s := &Server{
		cfg:     cfg,
		auth:    ResolveAuth(cfg.Auth),
		coord:   coord,
		log:     gwLog,
		clients: NewClientRegistry(gwLog),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	coord.OnChange(func(state domain.SessionState) {
		frame, err := NewEvent("state", state, s.eventSeq.Add(1))
		if err != nil {
			s.log.Error().Err(err).Msg("failed to encode state event")
			return
		}
		s.clients.Broadcast(frame)
	})

	return s
}

// Addr returns the listen address derived from config.
func (s *Server) Addr() string {
	host := "127.0.0.1"
	if s.cfg.Bind == "lan" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, s.cfg.Port)
}

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:    s.Addr(),
		Handler: withMiddleware(mux, s.log),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Bool("auth", s.auth.Enabled()).Msg("gateway listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the server and closes all client connections.
func (s *Server) Shutdown() error {
	s.clients.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the full middleware-wrapped handler (used by tests).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return withMiddleware(mux, s.log)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/state", s.requireAuth(s.handleState))
	mux.HandleFunc("POST /v1/messages", s.requireAuth(s.handleSubmit))
	mux.HandleFunc("DELETE /v1/session", s.requireAuth(s.handleClear))
	mux.HandleFunc("GET /ws", s.requireAuth(s.handleWebSocket))
}

// requireAuth rejects unauthenticated requests when a token is configured.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Authorize(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"clients": s.clients.Count(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var params SubmitParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	if err := s.coord.Submit(ctx, params.Text); err != nil {
		status, code := submitErrorStatus(err)
		writeJSON(w, status, map[string]string{"error": code, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Clear(r.Context()); err != nil {
		status, code := submitErrorStatus(err)
		writeJSON(w, status, map[string]string{"error": code, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

// submitErrorStatus maps coordinator errors onto HTTP status and a
// stable error code.
func submitErrorStatus(err error) (int, string) {
	var perr *domain.PersistenceError
	var rerr *domain.ResponderError
	var rej *domain.ResponderRejected

	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, session.ErrExchangeInFlight):
		return http.StatusConflict, "exchange_in_flight"
	case errors.Is(err, session.ErrNotInitialized):
		return http.StatusConflict, "not_initialized"
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, "session_closed"
	case errors.As(err, &perr):
		return http.StatusInternalServerError, "persistence_error"
	case errors.As(err, &rej):
		return http.StatusBadGateway, "responder_rejected"
	case errors.As(err, &rerr):
		return http.StatusBadGateway, "responder_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.log)
	s.clients.Add(client)
	defer func() {
		client.Close()
		s.clients.Remove(client.ConnID)
	}()

	// Initial state event so the client renders without polling.
	if frame, err := NewEvent("state", s.coord.Snapshot(), s.eventSeq.Add(1)); err == nil {
		client.Send(frame)
	}

	for {
		frame, err := client.ReadFrame()
		if err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		s.dispatch(client, frame)
	}
}

// dispatch routes a request frame to its method handler.
func (s *Server) dispatch(client *Client, frame Frame) {
	switch frame.Method {
	case "state":
		client.Respond(frame.ID, s.coord.Snapshot())

	case "history":
		client.Respond(frame.ID, map[string]any{"history": s.coord.History()})

	case "submit":
		var params SubmitParams
		if len(frame.Params) > 0 {
			if err := json.Unmarshal(frame.Params, &params); err != nil {
				client.RespondError(frame.ID, "invalid_params", err.Error())
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
		defer cancel()
		if err := s.coord.Submit(ctx, params.Text); err != nil {
			_, code := submitErrorStatus(err)
			client.RespondError(frame.ID, code, err.Error())
			return
		}
		client.Respond(frame.ID, s.coord.Snapshot())

	case "clear":
		if err := s.coord.Clear(context.Background()); err != nil {
			_, code := submitErrorStatus(err)
			client.RespondError(frame.ID, code, err.Error())
			return
		}
		client.Respond(frame.ID, s.coord.Snapshot())

	default:
		client.RespondError(frame.ID, "unknown_method", "unknown method: "+frame.Method)
	}
}

// withMiddleware wraps a handler with request IDs and request logging.
func withMiddleware(handler http.Handler, log *logging.Logger) http.Handler {
	h := handler
	h = requestIDMiddleware(h)
	h = loggingMiddleware(h, log)
	return h
}

// loggingMiddleware logs each HTTP request.
func loggingMiddleware(next http.Handler, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

// requestIDMiddleware adds a unique request ID to each request/response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
