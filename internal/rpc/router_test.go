package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomdb/searchcore/internal/tlog/chunk"
	"github.com/fathomdb/searchcore/internal/tlog/domain"
	"github.com/fathomdb/searchcore/internal/tlog/server"
)

func testRouter(t *testing.T) (*httptest.Server, *server.Server) {
	t.Helper()
	srv, err := server.New(server.Config{
		RootDir: t.TempDir(),
		DomainConfig: func(name string) domain.Config {
			return domain.Config{
				ChunkSizeLimit: 1,
				PartSizeLimit:  1 << 30,
				CRC:            chunk.CRCXXH64,
				Compression:    chunk.CompressionNoneMulti,
			}
		},
		SyncPollInterval:    5 * time.Millisecond,
		SessionPollInterval: 5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(srv, Config{Logger: log, FollowPollInterval: 5 * time.Millisecond})
	return httptest.NewServer(router), srv
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

// TestScenarioS4_HTTPRoundTrip drives scenario S4 entirely over HTTP.
func TestScenarioS4_HTTPRoundTrip(t *testing.T) {
	ts, srv := testRouter(t)
	defer ts.Close()
	defer srv.Close()

	resp := postJSON(t, ts, "/v1/domains", map[string]string{"name": "d"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	entries := []chunk.Entry{
		{Serial: 100, Data: make([]byte, 64)},
		{Serial: 101, Data: make([]byte, 64)},
		{Serial: 102, Data: make([]byte, 64)},
	}
	resp = postJSON(t, ts, "/v1/domains/d/commit", map[string]interface{}{"entries": entries})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/v1/domains/d/status")
	require.NoError(t, err)
	var status struct {
		Begin uint64 `json:"begin"`
		End   uint64 `json:"end"`
		Count int    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, uint64(100), status.Begin)
	assert.Equal(t, uint64(102), status.End)
	assert.Equal(t, 3, status.Count)

	resp = postJSON(t, ts, "/v1/domains/d/sync", map[string]uint64{"sync_to": 102})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var synced struct {
		Status   int    `json:"status"`
		SyncedTo uint64 `json:"synced_to"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&synced))
	resp.Body.Close()
	assert.Equal(t, uint64(102), synced.SyncedTo)
}

// TestSessionFollow_PushesBatchUntilFinished drives a bounded visit over
// the WebSocket follow endpoint and checks the session reaches
// SessionFinished without the client polling the plain run endpoint.
func TestSessionFollow_PushesBatchUntilFinished(t *testing.T) {
	ts, srv := testRouter(t)
	defer ts.Close()
	defer srv.Close()

	resp := postJSON(t, ts, "/v1/domains", map[string]string{"name": "d"})
	resp.Body.Close()

	entries := []chunk.Entry{
		{Serial: 1, Data: make([]byte, 8)},
		{Serial: 2, Data: make([]byte, 8)},
	}
	resp = postJSON(t, ts, "/v1/domains/d/commit", map[string]interface{}{"entries": entries})
	resp.Body.Close()

	resp = postJSON(t, ts, "/v1/domains/d/visit", map[string]uint64{"from": 0, "to": 2})
	var visit struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&visit))
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + fmt.Sprintf("/v1/domains/d/sessions/%d/follow", visit.ID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var lastState int
	var gotSerials []uint64
	for i := 0; i < 50; i++ {
		var msg struct {
			Serials []uint64 `json:"serials"`
			State   int      `json:"state"`
			Error   string   `json:"error,omitempty"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		gotSerials = append(gotSerials, msg.Serials...)
		lastState = msg.State
		if domain.SessionState(lastState) == domain.SessionFinished {
			break
		}
	}
	assert.Equal(t, domain.SessionFinished, domain.SessionState(lastState))
	assert.Equal(t, []uint64{1, 2}, gotSerials)
}

func TestOpenDomain_ReturnsNotFoundStatus(t *testing.T) {
	ts, srv := testRouter(t)
	defer ts.Close()
	defer srv.Close()

	resp, err := http.Get(ts.URL + "/v1/domains/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
