package rpcsurface

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/pkg/rpcerr"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register(registry.MethodConfig{
		Method: "echo.ping",
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			return map[string]string{"pong": string(params)}, nil
		},
	}))
	require.NoError(t, reg.Register(registry.MethodConfig{
		Method: "echo.fail",
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			return nil, rpcerr.New(rpcerr.ValidationError, "bad input")
		},
	}))
	return reg
}

func TestDispatcherCallReturnsResult(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	resp := d.Call(context.Background(), "client-1", Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "echo.ping", Params: json.RawMessage(`"hi"`)})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	require.Equal(t, json.RawMessage(`1`), resp.ID)
}

func TestDispatcherCallMapsHandlerError(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	resp := d.Call(context.Background(), "client-1", Request{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "echo.fail"})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, int(rpcerr.ValidationError), resp.Error.Code)
}

func TestDispatcherCallReturnsNilForNotification(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	resp := d.Call(context.Background(), "client-1", Request{JSONRPC: "2.0", Method: "echo.ping", Params: json.RawMessage(`"hi"`)})
	require.Nil(t, resp)
}

func TestDispatcherCallRejectsUnknownMethod(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	resp := d.Call(context.Background(), "client-1", Request{JSONRPC: "2.0", ID: json.RawMessage(`3`), Method: "nope"})
	require.NotNil(t, resp.Error)
	require.Equal(t, int(rpcerr.MethodNotFound), resp.Error.Code)
}

func TestDispatcherCallRejectsBadJSONRPCVersion(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	resp := d.Call(context.Background(), "client-1", Request{JSONRPC: "1.0", ID: json.RawMessage(`4`), Method: "echo.ping"})
	require.NotNil(t, resp.Error)
	require.Equal(t, int(rpcerr.InvalidRequest), resp.Error.Code)
}

func TestDispatcherCallBatchSkipsNotifications(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	reqs := []Request{
		{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "echo.ping"},
		{JSONRPC: "2.0", Method: "echo.ping"},
		{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "echo.ping"},
	}
	resps := d.CallBatch(context.Background(), "client-1", reqs)
	require.Len(t, resps, 2)
}
