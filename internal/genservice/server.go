package genservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Handler processes generation requests on the service side. Production
// deployments point the orchestrator at a hosted backend; this server exists
// for local development and integration tests.
type Handler interface {
	HandleGenerate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

// HandleGenerate implements Handler.
func (f HandlerFunc) HandleGenerate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	return f(ctx, req)
}

// Server exposes a Handler over HTTP/JSON-RPC at the same method the
// HTTPClient calls.
type Server struct {
	handler Handler
	http    *http.Server
}

// NewServer creates a Server for the given handler.
func NewServer(handler Handler) *Server {
	return &Server{handler: handler}
}

// Start creates an HTTP server, registers routes, and begins serving.
// It returns immediately after starting the server in a background goroutine.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleJSONRPC)

	s.http = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go s.http.ListenAndServe()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns an http.Handler serving the JSON-RPC endpoint, for tests
// that mount the server on httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleJSONRPC)
	return mux
}

// handleJSONRPC processes incoming JSON-RPC 2.0 requests and dispatches them
// to the handler.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPCError(w, nil, ErrCodeParse, "Parse error: "+err.Error())
		return
	}

	switch req.Method {
	case MethodGenerate:
		s.dispatchGenerate(r.Context(), w, &req)
	default:
		writeJSONRPCError(w, req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

// dispatchGenerate unmarshals params and calls HandleGenerate.
func (s *Server) dispatchGenerate(ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest) {
	var params GenerateRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}

	result, err := s.handler.HandleGenerate(ctx, params)
	if err != nil {
		writeJSONRPCError(w, req.ID, ErrCodeGenerationFailed, err.Error())
		return
	}

	writeJSONRPCResult(w, req.ID, result)
}

// writeJSONRPCResult writes a successful JSON-RPC response.
func writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		writeJSONRPCError(w, id, ErrCodeInternal, "marshal result: "+err.Error())
		return
	}
	json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  resultJSON,
	})
}

// writeJSONRPCError writes a JSON-RPC error response.
func writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	})
}
