package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/flowmap/engine"
)

func newTestHub(t *testing.T) (*Hub, chan engine.Command, *httptest.Server) {
	t.Helper()
	eng := engine.NewEngine(nil, "", nil)
	t.Cleanup(eng.Close)

	hub := NewHub(eng)
	cmds := make(chan engine.Command, 4)
	hub.Submit = func(c engine.Command) bool {
		select {
		case cmds <- c:
			return true
		default:
			return false
		}
	}

	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)
	return hub, cmds, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) engine.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f engine.Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestClientReceivesLatestThenLiveFrames(t *testing.T) {
	hub, _, srv := newTestHub(t)

	hub.Publish(engine.Frame{DatasetID: "first", Tick: 1})
	conn := dial(t, srv)

	f := readFrame(t, conn)
	assert.Equal(t, "first", f.DatasetID)
	assert.Equal(t, 1, f.Tick)

	hub.Publish(engine.Frame{DatasetID: "first", Tick: 2, Playing: true})
	f = readFrame(t, conn)
	assert.Equal(t, 2, f.Tick)
	assert.True(t, f.Playing)
}

func TestClientCommandsAreSubmitted(t *testing.T) {
	hub, cmds, srv := newTestHub(t)
	hub.Publish(engine.Frame{Tick: 1})
	conn := dial(t, srv)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteJSON(engine.Command{Op: engine.OpSeek, Value: 1500}))

	select {
	case cmd := <-cmds:
		assert.Equal(t, engine.OpSeek, cmd.Op)
		assert.Equal(t, 1500.0, cmd.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("command was not submitted")
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, _, srv := newTestHub(t)
	hub.Publish(engine.Frame{Tick: 1})
	conn := dial(t, srv)
	readFrame(t, conn)
	assert.Equal(t, 1, hub.Clients())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPEndpoints(t *testing.T) {
	hub, _, srv := newTestHub(t)

	resp, err := http.Get(srv.URL + "/frame")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	hub.Publish(engine.Frame{DatasetID: "abc"})
	resp, err = http.Get(srv.URL + "/frame")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), `"datasetId":"abc"`)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "flowmap_stream_clients")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
