package genservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcHandler(t *testing.T, handle func(req GenerateRequest) (any, *JSONRPCError)) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rpcReq JSONRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rpcReq))
		assert.Equal(t, JSONRPCVersion, rpcReq.JSONRPC)
		assert.Equal(t, MethodGenerate, rpcReq.Method)

		var params GenerateRequest
		require.NoError(t, json.Unmarshal(rpcReq.Params, &params))

		result, rpcErr := handle(params)
		resp := JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: rpcReq.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			data, err := json.Marshal(result)
			require.NoError(t, err)
			resp.Result = data
		}
		json.NewEncoder(w).Encode(resp)
	})
}

func TestHTTPClient_Generate(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, func(req GenerateRequest) (any, *JSONRPCError) {
		assert.Equal(t, "sess-1", req.SessionID)
		assert.Equal(t, "outline", req.StageID)
		assert.JSONEq(t, `{"topic":"x"}`, string(req.Params))
		return GenerateResult{
			StageID: req.StageID,
			Output:  json.RawMessage(`{"title":"generated"}`),
			Model:   "test-model",
		}, nil
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)

	result, err := client.Generate(context.Background(), GenerateRequest{
		SessionID: "sess-1",
		StageID:   "outline",
		Params:    json.RawMessage(`{"topic":"x"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "outline", result.StageID)
	assert.JSONEq(t, `{"title":"generated"}`, string(result.Output))
	assert.Equal(t, "test-model", result.Model)
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(rpcHandler(t, func(req GenerateRequest) (any, *JSONRPCError) {
		calls.Add(1)
		return nil, &JSONRPCError{Code: ErrCodeGenerationFailed, Message: "model refused"}
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithRetryInterval(time.Millisecond))

	_, err := client.Generate(context.Background(), GenerateRequest{StageID: "outline"})
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeGenerationFailed, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "model refused")

	// Semantic errors are surfaced immediately.
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_TransientRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		rpcHandler(t, func(req GenerateRequest) (any, *JSONRPCError) {
			return GenerateResult{StageID: req.StageID, Output: json.RawMessage(`{}`)}, nil
		}).ServeHTTP(w, r)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithRetryInterval(time.Millisecond))

	result, err := client.Generate(context.Background(), GenerateRequest{StageID: "outline"})
	require.NoError(t, err)
	assert.Equal(t, "outline", result.StageID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPClient_TransientRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL,
		WithRetryInterval(time.Millisecond),
		WithTransientRetries(2),
	)

	_, err := client.Generate(context.Background(), GenerateRequest{StageID: "outline"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_Non200NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithRetryInterval(time.Millisecond))

	_, err := client.Generate(context.Background(), GenerateRequest{StageID: "outline"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels r.Context(); otherwise srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithRetryInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, GenerateRequest{StageID: "outline"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded))
}

func TestServer_RoundTripWithClient(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
		if req.StageID == "broken" {
			return nil, fmt.Errorf("no template for stage")
		}
		return &GenerateResult{
			StageID: req.StageID,
			Output:  json.RawMessage(`{"echo":true}`),
		}, nil
	})

	srv := httptest.NewServer(NewServer(handler).Handler())
	defer srv.Close()

	client := NewHTTPClient(srv.URL)

	result, err := client.Generate(context.Background(), GenerateRequest{StageID: "outline"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":true}`, string(result.Output))

	_, err = client.Generate(context.Background(), GenerateRequest{StageID: "broken"})
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeGenerationFailed, rpcErr.Code)
}

func TestServer_UnknownMethod(t *testing.T) {
	srv := httptest.NewServer(NewServer(HandlerFunc(func(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
		return &GenerateResult{}, nil
	})).Handler())
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"generation/unknown"}`
	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, rpcResp.Error.Code)
}
