package rpcsurface

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coordinator/swarmd/internal/logging"
)

// maxBodyBytes bounds a single RPC request body, matching the teacher's
// 10MB io.LimitReader guard in internal/rpc/http_server.go.
const maxBodyBytes = 10 * 1024 * 1024

// HTTPServer serves the JSON-RPC surface over POST /rpc (batch-capable)
// plus GET /health, grounded on the teacher's HTTPServer
// (internal/rpc/http_server.go): a connection-count semaphore
// (srv.maxConns in the teacher), per-request timeout, and a graceful
// shutdown channel, generalized from the teacher's hand-rolled net/http
// mux onto a chi.Router.
type HTTPServer struct {
	dispatcher *Dispatcher
	ws         *WSServer
	addr       string
	maxConns   int
	timeout    time.Duration

	httpServer *http.Server
	listener   net.Listener
	sem        chan struct{}
}

// NewHTTPServer builds an HTTPServer. maxConns<=0 disables the concurrency
// cap; timeout<=0 disables the per-request deadline. ws may be nil to
// disable the /ws endpoint.
func NewHTTPServer(d *Dispatcher, ws *WSServer, addr string, maxConns int, timeout time.Duration) *HTTPServer {
	var sem chan struct{}
	if maxConns > 0 {
		sem = make(chan struct{}, maxConns)
	}
	return &HTTPServer{dispatcher: d, ws: ws, addr: addr, maxConns: maxConns, timeout: timeout, sem: sem}
}

// Router builds the chi.Router this server serves, exported so tests can
// drive it directly with httptest.NewServer without binding a real port.
func (s *HTTPServer) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.limitConcurrency)

	r.Get("/health", s.handleHealth)
	r.Post("/rpc", s.handleRPC)
	if s.ws != nil {
		r.Get("/ws", s.ws.ServeHTTP)
	}
	return r
}

// Start binds addr and serves until ctx is canceled, then shuts down
// gracefully with a 5s deadline — the same shutdown shape as the teacher's
// HTTPServer.Start.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	return s.httpServer.Serve(s.listener)
}

// Addr returns the bound address, or the configured address before Start.
func (s *HTTPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *HTTPServer) limitConcurrency(next http.Handler) http.Handler {
	if s.sem == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
			next.ServeHTTP(w, r)
		default:
			http.Error(w, `{"error":"too many concurrent requests"}`, http.StatusTooManyRequests)
		}
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{JSONRPC: "2.0", Error: &ResponseError{Code: -32700, Message: "failed to read request body"}})
		return
	}

	clientID := r.Header.Get("X-Swarmd-Client-ID")
	if clientID == "" {
		clientID = r.RemoteAddr
	}

	if IsBatch(body) {
		var reqs []Request
		if err := json.Unmarshal(body, &reqs); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{JSONRPC: "2.0", Error: &ResponseError{Code: -32700, Message: "invalid batch JSON"}})
			return
		}
		writeJSON(w, http.StatusOK, s.dispatcher.CallBatch(ctx, clientID, reqs))
		return
	}

	req, err := ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{JSONRPC: "2.0", Error: &ResponseError{Code: -32700, Message: "invalid JSON"}})
		return
	}

	resp := s.dispatcher.Call(ctx, clientID, *req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Default().Error().Err(err).Msg("rpcsurface: failed to encode response")
	}
}
