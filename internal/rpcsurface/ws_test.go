package rpcsurface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/internal/eventbus"
	"github.com/coordinator/swarmd/internal/store"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSServerHandlesRPCCall(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t))
	ws := NewWSServer(d, nil)
	ts := httptest.NewServer(http.HandlerFunc(ws.ServeHTTP))
	defer ts.Close()

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteJSON(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "echo.ping", Params: json.RawMessage(`"hi"`)}))

	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	require.Nil(t, resp.Error)
}

func TestWSServerSubscribeDeliversEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewWithClient(rdb)
	bus := eventbus.New(s)

	d := NewDispatcher(newTestRegistry(t))
	ws := NewWSServer(d, bus)
	ts := httptest.NewServer(http.HandlerFunc(ws.ServeHTTP))
	defer ts.Close()

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteJSON(controlFrame{Op: "subscribe", Stream: "task:t1", Events: []string{"*"}}))

	time.Sleep(50 * time.Millisecond)
	_, err := bus.Publish(context.Background(), "task:t1", "task.synthesized", map[string]string{"hello": "world"})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame eventFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "event", frame.Type)
	require.NotNil(t, frame.Event)
	require.Equal(t, "task.synthesized", frame.Event.Type)
}

func TestWSServerUnsubscribeStopsDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewWithClient(rdb)
	bus := eventbus.New(s)

	d := NewDispatcher(newTestRegistry(t))
	ws := NewWSServer(d, bus)
	ts := httptest.NewServer(http.HandlerFunc(ws.ServeHTTP))
	defer ts.Close()

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteJSON(controlFrame{Op: "subscribe", Stream: "task:t2", Events: []string{"*"}}))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.WriteJSON(controlFrame{Op: "unsubscribe", Stream: "task:t2"}))
	time.Sleep(50 * time.Millisecond)

	_, err := bus.Publish(context.Background(), "task:t2", "task.synthesized", map[string]string{"hello": "world"})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var frame eventFrame
	err = conn.ReadJSON(&frame)
	require.Error(t, err) // expect a read timeout: no event should have been delivered
}

