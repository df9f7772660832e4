package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeDaemon(t *testing.T, handle func(method string, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		handle(req.Method, w)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientCallReturnsResult(t *testing.T) {
	server := fakeDaemon(t, func(method string, w http.ResponseWriter) {
		require.Equal(t, "system.health", method)
		_ = json.NewEncoder(w).Encode(rpcResponse{Result: json.RawMessage(`{"status":"ok"}`)})
	})

	c := &client{addr: server.URL, http: server.Client()}
	result, err := c.call("system.health", map[string]any{})
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, string(result))
}

func TestClientCallSurfacesRPCError(t *testing.T) {
	server := fakeDaemon(t, func(method string, w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: -32001, Message: "boom"}})
	})

	c := &client{addr: server.URL, http: server.Client()}
	_, err := c.call("system.flush", map[string]any{"confirm": "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestInstancesCmdRendersTable(t *testing.T) {
	server := fakeDaemon(t, func(method string, w http.ResponseWriter) {
		require.Equal(t, "system.get_state", method)
		_ = json.NewEncoder(w).Encode(rpcResponse{Result: json.RawMessage(`{
			"instances": [{"id":"inst-1","status":"IDLE","current_load":0,"max_load":5,"roles":["backend"]}]
		}`)})
	})
	daemonAddr = server.URL
	asJSON = false

	cmd := instancesCmd()
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestFlushCmdRequiresConfirmFlag(t *testing.T) {
	cmd := flushCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "--confirm")
}

func TestTasksCreateCmdRequiresText(t *testing.T) {
	cmd := tasksCreateCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "--text")
}
