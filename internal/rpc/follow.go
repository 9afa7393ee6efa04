package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fathomdb/searchcore/internal/tlog/domain"
	"github.com/fathomdb/searchcore/internal/tlog/server"
)

// followTargetBytes bounds each poll's batch size the same way the
// plain JSON session-run handler defaults it.
const followTargetBytes = 1 << 20

const (
	followPingInterval = 30 * time.Second
	followPongWait     = 60 * time.Second
)

var followUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// followMessage is one pushed batch of a session's visit.
type followMessage struct {
	Serials  []uint64 `json:"serials"`
	Payloads [][]byte `json:"payloads"`
	State    int      `json:"state"`
	Error    string   `json:"error,omitempty"`
}

// domainSessionFollowHandler upgrades to a WebSocket and pushes session
// batches to the client as they become available, instead of making the
// caller poll the plain run endpoint. One connection follows one
// session; the loop exits once the session reaches SessionFinished or
// the connection drops.
func domainSessionFollowHandler(srv *server.Server, log *slog.Logger, pollInterval time.Duration) http.HandlerFunc {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		name := vars["name"]
		id, err := parseUint(vars["id"])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		conn, err := followUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("session follow: upgrade failed", "domain", name, "session", id, "error", err)
			return
		}
		defer conn.Close()

		go followReadPump(conn)

		conn.SetReadDeadline(time.Now().Add(followPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(followPongWait))
			return nil
		})

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		pinger := time.NewTicker(followPingInterval)
		defer pinger.Stop()

		for {
			select {
			case <-pinger.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-ticker.C:
				serials, payloads, state, err := srv.DomainSessionRun(name, id, followTargetBytes)
				msg := followMessage{Serials: serials, Payloads: payloads, State: int(state)}
				if err != nil {
					msg.Error = err.Error()
				}
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if werr := conn.WriteJSON(msg); werr != nil {
					log.Debug("session follow: write failed, closing", "domain", name, "session", id, "error", werr)
					return
				}
				if err != nil || state == domain.SessionFinished {
					return
				}
			}
		}
	}
}

// followReadPump only exists to surface client-initiated close frames
// and keep ReadMessage draining so pong frames reach SetPongHandler.
func followReadPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
