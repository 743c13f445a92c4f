package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/unklstewy/mount-modeler/pkg/alignment"
	"github.com/unklstewy/mount-modeler/pkg/messages"
	"github.com/unklstewy/mount-modeler/pkg/modeling"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

const (
	requestTimeout = 2*time.Minute + 10*time.Second
	reconnectDelay = 3 * time.Second
)

// apiClient talks to a mount-modeler server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: requestTimeout},
	}
}

// model fetches the cached alignment model.
func (c *apiClient) model(ctx context.Context) (alignment.Model, error) {
	var m alignment.Model
	err := c.do(ctx, http.MethodGet, "/api/v1/model", nil, &m)
	return m, err
}

// command queues a mount command and waits for its reply.
func (c *apiClient) command(ctx context.Context, verb string) (string, error) {
	var res struct {
		Success bool   `json:"success"`
		Reply   string `json:"reply"`
		Pending bool   `json:"pending"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/mount/commands", map[string]string{"command": verb}, &res); err != nil {
		return "", err
	}
	if res.Pending {
		return "pending", nil
	}
	return res.Reply, nil
}

// cancelRun stops the active modeling run.
func (c *apiClient) cancelRun(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/modeling", nil, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// streamURL maps the API base to its websocket endpoint.
func (c *apiClient) streamURL() (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// frame is one message of the server stream.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type (
	snapshotMsg mount.Snapshot
	progressMsg modeling.Progress
	logMsg      messages.Message
	modelMsg    alignment.Model
	streamMsg   struct {
		connected bool
		err       error
	}
)

// decodeFrame converts a stream frame into a program message. Unknown
// frame types return nil.
func decodeFrame(f frame) (tea.Msg, error) {
	switch f.Type {
	case "snapshot":
		var s mount.Snapshot
		if err := json.Unmarshal(f.Data, &s); err != nil {
			return nil, err
		}
		return snapshotMsg(s), nil
	case "progress":
		var p modeling.Progress
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, err
		}
		return progressMsg(p), nil
	case "message":
		var m messages.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return nil, err
		}
		return logMsg(m), nil
	default:
		return nil, nil
	}
}

// stream forwards server frames to send until ctx is done, redialing after
// the connection drops.
func (c *apiClient) stream(ctx context.Context, send func(tea.Msg)) {
	addr, err := c.streamURL()
	if err != nil {
		send(streamMsg{err: err})
		return
	}

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			send(streamMsg{err: err})
		} else {
			send(streamMsg{connected: true})
			err = read(ctx, conn, send)
			send(streamMsg{err: err})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func read(ctx context.Context, conn *websocket.Conn, send func(tea.Msg)) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		msg, err := decodeFrame(f)
		if err != nil || msg == nil {
			continue
		}
		send(msg)
	}
}
