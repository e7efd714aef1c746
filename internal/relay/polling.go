package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coview/sync-agent/internal/protocol"
)

// errServerGone marks a clean polling teardown by the relay (410 on the
// events poll); classified as a server-initiated disconnect.
var errServerGone = errors.New("polling session gone")

// pollBase converts the relay WebSocket URL into the HTTP base the
// polling endpoints hang off of (ws → http, wss → https, path dropped).
func pollBase(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = ""
	u.RawQuery = ""
	return u, nil
}

// openPolling opens a long-polling session against the relay and returns
// the fallback transport.
func (c *channel) openPolling(params Params) (transport, error) {
	base, err := pollBase(c.cfg.URL)
	if err != nil {
		return nil, err
	}

	openURL := *base
	openURL.Path = "/poll"
	openURL.RawQuery = protocol.OpenQuery(params.VideoProgress, params.VideoState, params.RoomID).Encode()

	req, err := http.NewRequestWithContext(c.lifeCtx, http.MethodPost, openURL.String(), nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: c.cfg.HandshakeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polling open: status %d", resp.StatusCode)
	}

	var opened struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&opened); err != nil {
		return nil, fmt.Errorf("polling open: decode response: %w", err)
	}
	if opened.Token == "" {
		return nil, errors.New("polling open: empty token")
	}

	return &pollTransport{
		base:  base,
		token: opened.Token,
		ctx:   c.lifeCtx,
		// No overall timeout: the events poll is held open by the relay.
		client:       &http.Client{},
		writeTimeout: c.cfg.WriteTimeout,
	}, nil
}

// pollTransport is the HTTP long-polling fallback transport.
type pollTransport struct {
	base         *url.URL
	token        string
	ctx          context.Context
	client       *http.Client
	writeTimeout time.Duration

	// Events decoded from the last poll, drained one recv at a time.
	queue [][]byte
}

func (t *pollTransport) endpoint(path string) string {
	u := *t.base
	u.Path = path
	u.RawQuery = url.Values{"token": {t.token}}.Encode()
	return u.String()
}

func (t *pollTransport) send(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.writeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("/poll/send"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("polling send: status %d", resp.StatusCode)
	}
	return nil
}

func (t *pollTransport) recv() ([]byte, error) {
	for len(t.queue) == 0 {
		req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.endpoint("/poll/events"), nil)
		if err != nil {
			return nil, err
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var batch []json.RawMessage
			err := json.NewDecoder(resp.Body).Decode(&batch)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("polling events: decode batch: %w", err)
			}
			for _, raw := range batch {
				t.queue = append(t.queue, []byte(raw))
			}
		case http.StatusNoContent:
			resp.Body.Close()
		case http.StatusGone:
			resp.Body.Close()
			return nil, errServerGone
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("polling events: status %d", resp.StatusCode)
		}
	}

	next := t.queue[0]
	t.queue = t.queue[1:]
	return next, nil
}

func (t *pollTransport) teardown() {
	// Best effort; the lifecycle context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.endpoint("/poll"), nil)
	if err != nil {
		return
	}
	if resp, err := t.client.Do(req); err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func (t *pollTransport) name() string { return "polling" }
