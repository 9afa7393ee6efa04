package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a thin HTTP client over tlogd's RPC surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client targeting baseURL.
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) do(method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return err
		}
		reqBody = buf
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tlogctl: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("tlogctl: server returned %d: %s", resp.StatusCode, errBody.Error)
		}
		return fmt.Errorf("tlogctl: server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) CreateDomain(name string) error {
	return c.do(http.MethodPost, "/v1/domains", map[string]string{"name": name}, nil)
}

func (c *Client) ListDomains() ([]string, error) {
	var out struct {
		Domains []string `json:"domains"`
	}
	if err := c.do(http.MethodGet, "/v1/domains", nil, &out); err != nil {
		return nil, err
	}
	return out.Domains, nil
}

func (c *Client) DomainStatus(name string) (begin, end uint64, count int, err error) {
	var out struct {
		Begin uint64 `json:"begin"`
		End   uint64 `json:"end"`
		Count int    `json:"count"`
	}
	if err := c.do(http.MethodGet, "/v1/domains/"+name+"/status", nil, &out); err != nil {
		return 0, 0, 0, err
	}
	return out.Begin, out.End, out.Count, nil
}

type entryPayload struct {
	Serial  uint64 `json:"Serial"`
	TypeTag uint32 `json:"TypeTag"`
	Data    []byte `json:"Data"`
}

func (c *Client) DomainCommit(name string, entries []entryPayload) error {
	return c.do(http.MethodPost, "/v1/domains/"+name+"/commit", map[string]interface{}{"entries": entries}, nil)
}

func (c *Client) DomainPrune(name string, to uint64) error {
	return c.do(http.MethodPost, "/v1/domains/"+name+"/prune", map[string]uint64{"to": to}, nil)
}

func (c *Client) DomainVisit(name string, from, to uint64) (uint64, error) {
	var out struct {
		ID uint64 `json:"id"`
	}
	if err := c.do(http.MethodPost, "/v1/domains/"+name+"/visit", map[string]uint64{"from": from, "to": to}, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// sessionBatch is one message pushed over the follow WebSocket.
type sessionBatch struct {
	Serials  []uint64 `json:"serials"`
	Payloads [][]byte `json:"payloads"`
	State    int      `json:"state"`
	Error    string   `json:"error,omitempty"`
}

// FollowSession dials the domain's session follow WebSocket and invokes
// onBatch for every pushed batch, returning once the session reports
// state 3 (SessionFinished) or an error arrives.
func (c *Client) FollowSession(name string, id uint64, onBatch func(sessionBatch)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + fmt.Sprintf("/v1/domains/%s/sessions/%d/follow", name, id)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("tlogctl: dial follow socket: %w", err)
	}
	defer conn.Close()

	const sessionFinished = 3
	for {
		var batch sessionBatch
		if err := conn.ReadJSON(&batch); err != nil {
			return fmt.Errorf("tlogctl: follow socket closed: %w", err)
		}
		onBatch(batch)
		if batch.Error != "" {
			return fmt.Errorf("tlogctl: session error: %s", batch.Error)
		}
		if batch.State == sessionFinished {
			return nil
		}
	}
}

func (c *Client) DomainSync(name string, syncTo uint64) (status int, syncedTo uint64, err error) {
	var out struct {
		Status   int    `json:"status"`
		SyncedTo uint64 `json:"synced_to"`
	}
	if err := c.do(http.MethodPost, "/v1/domains/"+name+"/sync", map[string]uint64{"sync_to": syncTo}, &out); err != nil {
		return 0, 0, err
	}
	return out.Status, out.SyncedTo, nil
}
