// Package rpcsurface is the wire transport of spec.md §6.1: a JSON-RPC
// 2.0-shaped envelope served over HTTP (POST /rpc, batch-capable) and a
// bidirectional WebSocket (/ws) for subscribe/unsubscribe. The envelope
// shape is spec-mandated and distinct from the teacher's bespoke
// `{operation, args}` envelope (internal/rpc/protocol.go), but the
// dispatch plumbing, connection limiting, per-request timeout, and
// graceful shutdown follow the teacher's internal/rpc/http_server.go
// closely — generalized from its hand-rolled net/http mux onto
// github.com/go-chi/chi/v5.
package rpcsurface

import "encoding/json"

// Request is one JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id (JSON-RPC 2.0
// notifications receive no response).
func (r Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is one JSON-RPC 2.0 result or error envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the JSON-RPC 2.0 error object, populated from the
// shared pkg/rpcerr taxonomy.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ParseRequest decodes and minimally validates a single JSON-RPC request
// body. The caller is responsible for distinguishing a JSON array (batch)
// from a single object before calling this.
func ParseRequest(body []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// IsBatch reports whether body is a JSON array rather than a single
// object, per JSON-RPC 2.0 §6's batch request shape.
func IsBatch(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
