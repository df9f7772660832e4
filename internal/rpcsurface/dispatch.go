package rpcsurface

import (
	"context"
	"encoding/json"

	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/pkg/rpcerr"
)

// Dispatcher routes a single JSON-RPC request through the method registry
// and renders its outcome as a JSON-RPC Response. Both the HTTP and
// WebSocket transports share this so batch handling, error mapping, and
// notification semantics stay identical across transports.
type Dispatcher struct {
	registry *registry.Registry
}

// NewDispatcher wraps a method registry.
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Call executes a single Request against clientID and returns its
// Response, or nil if req is a notification (no id, no response expected).
func (d *Dispatcher) Call(ctx context.Context, clientID string, req Request) *Response {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return errorResponse(req.ID, rpcerr.New(rpcerr.InvalidRequest, "unsupported jsonrpc version"))
	}
	if req.Method == "" {
		return errorResponse(req.ID, rpcerr.New(rpcerr.InvalidRequest, "missing method"))
	}

	result, err := d.registry.Dispatch(ctx, req.Method, clientID, req.Params)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		rpcErr, ok := rpcerr.As(err)
		if !ok {
			rpcErr = rpcerr.Handler("dispatch", err)
		}
		return errorResponse(req.ID, rpcErr)
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// CallBatch executes every request in reqs, skipping nil (notification)
// responses from the returned slice per JSON-RPC 2.0 batch semantics.
func (d *Dispatcher) CallBatch(ctx context.Context, clientID string, reqs []Request) []*Response {
	out := make([]*Response, 0, len(reqs))
	for _, req := range reqs {
		if resp := d.Call(ctx, clientID, req); resp != nil {
			out = append(out, resp)
		}
	}
	return out
}

func errorResponse(id json.RawMessage, err *rpcerr.Error) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ResponseError{Code: int(err.Code), Message: err.Message, Data: err.Data},
	}
}
