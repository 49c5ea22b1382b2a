package rpc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/okarvik/reservex/core"
)

// Server serves the JSON-RPC endpoint on POST /rpc and the read-only
// REST surface under /v1.
type Server struct {
	handler   *Handler
	addr      string
	authToken string // empty → no auth required on /rpc
	log       zerolog.Logger
	srv       *http.Server
}

// NewServer creates a Server on addr. If authToken is non-empty, every
// request to /rpc must carry a matching "Authorization: Bearer <token>"
// header. The /v1 read routes are always open.
func NewServer(addr string, handler *Handler, authToken string, logger zerolog.Logger) *Server {
	s := &Server{
		handler:   handler,
		addr:      addr,
		authToken: authToken,
		log:       logger.With().Str("component", "rpc").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.With(s.requireAuth).Post("/rpc", s.serveRPC)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/root", s.handleStateRoot)
		r.Get("/reserve", s.rpcGet("getReserve", nil))
		r.Get("/sale", s.rpcGet("getSale", nil))
		r.Get("/owner", s.rpcGet("getOwner", nil))
		r.Get("/audit", s.rpcGet("getAuditReport", nil))
		r.Get("/listings", s.rpcGet("getActiveListings", nil))
		r.Get("/listings/{id}", s.handleListing)
		r.Get("/tokens/{symbol}", s.paramGet("getToken", "symbol", "symbol"))
		r.Get("/balances/{address}", s.paramGet("getBalance", "address", "address"))
		r.Get("/stakes/{address}", s.paramGet("getStakes", "address", "address"))
		r.Get("/items/{id}", s.paramGet("getItem", "id", "id"))
		r.Get("/sellers/{address}/listings", s.paramGet("getListingsBySeller", "address", "seller"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start binds the port synchronously (so callers know immediately if binding
// fails) then serves requests in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("server error")
		}
	}()
	s.log.Info().Str("addr", s.addr).Msg("rpc server listening")
	return nil
}

// Stop gracefully shuts down the HTTP server, waiting up to 5 seconds for
// in-flight requests to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" && r.Header.Get("Authorization") != "Bearer "+s.authToken {
			writeJSON(w, errResponse(nil, CodeUnauthorized, "unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1 MB to prevent memory exhaustion.
	r.Body = http.MaxBytesReader(w, r.Body, 1*1024*1024)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'"))
		return
	}
	writeJSON(w, s.handler.Dispatch(req))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStateRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"state_root": s.handler.engine.StateRoot()})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	params, _ := json.Marshal(map[string]uint64{"id": id})
	s.writeRESTResult(w, s.handler.Dispatch(Request{JSONRPC: "2.0", Method: "getListing", Params: params}))
}

// rpcGet serves a parameterless JSON-RPC read as a REST GET.
func (s *Server) rpcGet(method string, params json.RawMessage) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.writeRESTResult(w, s.handler.Dispatch(Request{JSONRPC: "2.0", Method: method, Params: params}))
	}
}

// paramGet serves a single-string-parameter JSON-RPC read as a REST GET,
// mapping the named URL parameter onto the named request field.
func (s *Server) paramGet(method, urlParam, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, _ := json.Marshal(map[string]string{field: chi.URLParam(r, urlParam)})
		s.writeRESTResult(w, s.handler.Dispatch(Request{JSONRPC: "2.0", Method: method, Params: params}))
	}
}

func (s *Server) writeRESTResult(w http.ResponseWriter, resp Response) {
	if resp.Error != nil {
		status := http.StatusInternalServerError
		if resp.Error.Code == CodeInvalidParams {
			status = http.StatusBadRequest
		}
		if resp.Error.Message == core.ErrNotFound.Error() {
			status = http.StatusNotFound
		}
		writeError(w, status, resp.Error.Message)
		return
	}
	writeJSON(w, resp.Result)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
