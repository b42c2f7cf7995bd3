// Package rpc exposes the wallet engine over a JSON-RPC 2.0 HTTP
// endpoint.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/swapdeck/walletd/pkg/logging"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Errorf builds an *Error.
func Errorf(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// HandlerFunc serves one RPC method.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, *Error)

// Server is the JSON-RPC HTTP server.
type Server struct {
	listen   string
	handlers map[string]HandlerFunc
	httpSrv  *http.Server
	log      *logging.Logger
}

// NewServer creates a server bound to the listen address.
func NewServer(listen string, log *logging.Logger) *Server {
	return &Server{
		listen:   listen,
		handlers: make(map[string]HandlerFunc),
		log:      log.Component("rpc"),
	}
}

// Handle registers a method handler.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.handlers[method] = fn
}

// Start begins serving in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/", s)

	s.httpSrv = &http.Server{
		Addr:         s.listen,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.log.Info("rpc server listening", "addr", s.listen)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("rpc server stopped", "err", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reply(w, &Response{JSONRPC: "2.0", Error: Errorf(CodeParseError, "parse error")})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.reply(w, &Response{JSONRPC: "2.0", ID: req.ID, Error: Errorf(CodeInvalidRequest, "invalid request")})
		return
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		s.reply(w, &Response{JSONRPC: "2.0", ID: req.ID, Error: Errorf(CodeMethodNotFound, "method not found: "+req.Method)})
		return
	}

	result, rpcErr := handler(r.Context(), req.Params)
	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
		s.log.Debug("rpc call failed", "method", req.Method, "code", rpcErr.Code, "err", rpcErr.Message)
	} else {
		resp.Result = result
	}
	s.reply(w, resp)
}

func (s *Server) reply(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("encode response", "err", err)
	}
}
