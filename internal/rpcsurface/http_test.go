package rpcsurface

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPServerHandlesSingleRequest(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	srv := NewHTTPServer(d, nil, "", 0, time.Second)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"echo.ping","params":"hi"}`
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Nil(t, out.Error)
}

func TestHTTPServerHandlesBatch(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	srv := NewHTTPServer(d, nil, "", 0, time.Second)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `[{"jsonrpc":"2.0","id":1,"method":"echo.ping"},{"jsonrpc":"2.0","id":2,"method":"echo.ping"}]`
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
}

func TestHTTPServerRejectsMalformedJSON(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	srv := NewHTTPServer(d, nil, "", 0, time.Second)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPServerHealthEndpoint(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	srv := NewHTTPServer(d, nil, "", 0, time.Second)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServerConcurrencyLimitRejectsExcess(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	srv := NewHTTPServer(d, nil, "", 1, time.Second)

	release := make(chan struct{})
	srv.sem <- struct{}{} // occupy the single slot manually to simulate an in-flight request
	defer func() { <-srv.sem }()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	close(release)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHTTPServerAddrBeforeStart(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	srv := NewHTTPServer(d, nil, "127.0.0.1:0", 0, 0)
	require.Equal(t, "127.0.0.1:0", srv.Addr())
}

func TestHTTPServerStartRespectsContextCancel(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	srv := NewHTTPServer(d, nil, "127.0.0.1:0", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.listener != nil }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancel")
	}
}
