// igdm - An unofficial Instagram direct messaging client library for Go.
// Copyright (C) 2025 igdm contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package igapi implements the igdm transport boundary over the platform's
// private HTTP endpoints. The wire surface is deliberately thin: session
// state, cookie store, identity round-trip, user/thread fetch, pending
// inbox, and the long-poll stream and push feeds.
package igapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/igdmgo/igdm/pkg/igdm"
)

type Config struct {
	// BaseURL is the API root, e.g. "https://i.instagram.com/api/v1".
	BaseURL string `yaml:"base_url"`

	// UserAgent is sent on every request. The platform rejects unknown
	// agents, so this should mimic a mobile app build.
	UserAgent string `yaml:"user_agent"`

	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://i.instagram.com/api/v1"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Instagram 275.0.0.27.98 Android"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// sessionState is the serialized session artifact: credential and device
// fields only. Anything else the transport keeps in memory is deliberately
// not part of the export.
type sessionState struct {
	DeviceID      string        `json:"device_id"`
	UserID        string        `json:"user_id,omitempty"`
	Authorization string        `json:"authorization,omitempty"`
	Cookies       []savedCookie `json:"cookies,omitempty"`
}

type savedCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
}

// Client talks to the platform API. It implements igdm.API,
// igdm.StreamClient, and igdm.PushClient.
type Client struct {
	cfg  Config
	http *http.Client
	// poll shares the jar but has no client timeout; long-poll bodies stay
	// open far longer than any single API call.
	poll *http.Client
	jar  *cookiejar.Jar
	log  zerolog.Logger

	mu    sync.Mutex
	state sessionState

	streamCancel context.CancelFunc
	pushCancel   context.CancelFunc
}

var (
	_ igdm.API          = (*Client)(nil)
	_ igdm.StreamClient = (*Client)(nil)
	_ igdm.PushClient   = (*Client)(nil)
)

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	cfg.applyDefaults()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		cfg: cfg,
		jar: jar,
		http: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
		poll: &http.Client{Jar: jar},
		log:   log.With().Str("component", "igapi").Logger(),
		state: sessionState{DeviceID: uuid.NewString()},
	}, nil
}

// RestoreSession loads a serialized session artifact, installing its cookies
// into the jar.
func (c *Client) RestoreSession(data []byte) error {
	var state sessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse session artifact: %w", err)
	}
	if state.DeviceID == "" {
		state.DeviceID = uuid.NewString()
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	for _, sc := range state.Cookies {
		cookie := &http.Cookie{
			Name:     sc.Name,
			Value:    sc.Value,
			Domain:   sc.Domain,
			Path:     sc.Path,
			Secure:   sc.Secure,
			HttpOnly: sc.HTTPOnly,
		}
		if sc.Expires > 0 {
			cookie.Expires = time.Unix(sc.Expires, 0)
		}
		u := &url.URL{Scheme: "https", Host: strings.TrimPrefix(sc.Domain, "."), Path: "/"}
		c.jar.SetCookies(u, []*http.Cookie{cookie})
	}
	return nil
}

// ExportSession serializes the current session: device id, identity, auth
// token, and the credential cookies scoped to the API host. Values come from
// the jar (which reflects server-side rotation); attributes come from the
// recorded install, since the jar does not expose them.
func (c *Client) ExportSession() ([]byte, error) {
	c.mu.Lock()
	state := c.state
	recorded := make(map[string]savedCookie, len(state.Cookies))
	for _, sc := range state.Cookies {
		recorded[sc.Name] = sc
	}
	c.mu.Unlock()

	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	// Fresh slice: the copied header still shares its backing array with
	// c.state.Cookies, and those writes would happen outside the lock.
	state.Cookies = nil
	for _, cookie := range c.jar.Cookies(base) {
		sc, ok := recorded[cookie.Name]
		if !ok {
			sc = savedCookie{
				Name:   cookie.Name,
				Domain: base.Hostname(),
				Path:   "/",
			}
		}
		sc.Value = cookie.Value
		state.Cookies = append(state.Cookies, sc)
	}
	return json.Marshal(&state)
}

// SetCookie parses a Set-Cookie style string and installs it for rawURL.
func (c *Client) SetCookie(cookie, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse cookie url: %w", err)
	}
	header := http.Header{}
	header.Add("Set-Cookie", cookie)
	resp := http.Response{Header: header}
	parsed := resp.Cookies()
	if len(parsed) == 0 {
		return fmt.Errorf("unparseable cookie string")
	}
	c.jar.SetCookies(u, parsed)
	c.mu.Lock()
	for _, ck := range parsed {
		c.rememberCookieLocked(ck, u.Hostname())
	}
	c.mu.Unlock()
	return nil
}

// rememberCookieLocked records a cookie's attributes so ExportSession can
// reproduce them; the jar only hands back name and value.
func (c *Client) rememberCookieLocked(ck *http.Cookie, host string) {
	sc := savedCookie{
		Name:     ck.Name,
		Value:    ck.Value,
		Domain:   ck.Domain,
		Path:     ck.Path,
		Secure:   ck.Secure,
		HTTPOnly: ck.HttpOnly,
	}
	if sc.Domain == "" {
		sc.Domain = host
	}
	if sc.Path == "" {
		sc.Path = "/"
	}
	if !ck.Expires.IsZero() {
		sc.Expires = ck.Expires.Unix()
	}
	for i, old := range c.state.Cookies {
		if old.Name == sc.Name {
			c.state.Cookies[i] = sc
			return
		}
	}
	c.state.Cookies = append(c.state.Cookies, sc)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.state.Authorization != "" {
		req.Header.Set("Authorization", c.state.Authorization)
	}
	req.Header.Set("X-Device-ID", c.state.DeviceID)
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The platform rotates the bearer token via this header; capture it so
	// the next session export persists the fresh credential.
	if auth := resp.Header.Get("Ig-Set-Authorization"); auth != "" {
		c.mu.Lock()
		c.state.Authorization = auth
		c.mu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) CurrentUser(ctx context.Context) (*igdm.UserPayload, error) {
	var resp struct {
		User *igdm.UserPayload `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/accounts/current_user/", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User != nil {
		c.mu.Lock()
		c.state.UserID = resp.User.ID
		c.mu.Unlock()
	}
	return resp.User, nil
}

func (c *Client) UserByName(ctx context.Context, username string) (*igdm.UserPayload, error) {
	var resp struct {
		User *igdm.UserPayload `json:"user"`
	}
	path := fmt.Sprintf("/users/%s/usernameinfo/", url.PathEscape(username))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) UserByID(ctx context.Context, id string) (*igdm.UserPayload, error) {
	var resp struct {
		User *igdm.UserPayload `json:"user"`
	}
	path := fmt.Sprintf("/users/%s/info/", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) Thread(ctx context.Context, id string) (*igdm.ChatPayload, error) {
	var resp struct {
		Thread *igdm.ChatPayload `json:"thread"`
	}
	path := fmt.Sprintf("/direct_v2/threads/%s/", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Thread, nil
}

func (c *Client) CreateGroupThread(ctx context.Context, userIDs []string) (*igdm.ChatPayload, error) {
	body := map[string]any{
		"recipient_users": userIDs,
		"client_context":  uuid.NewString(),
	}
	var resp struct {
		Thread *igdm.ChatPayload `json:"thread"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/direct_v2/create_group_thread/", body, &resp); err != nil {
		return nil, err
	}
	return resp.Thread, nil
}

func (c *Client) PendingThreads(ctx context.Context) ([]*igdm.ChatPayload, error) {
	var resp struct {
		Inbox struct {
			Threads []*igdm.ChatPayload `json:"threads"`
		} `json:"inbox"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/direct_v2/pending_inbox/", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Inbox.Threads, nil
}

func (c *Client) ApproveThread(ctx context.Context, id string) error {
	path := fmt.Sprintf("/direct_v2/threads/%s/approve/", url.PathEscape(id))
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{}, nil)
}

func (c *Client) DeclineThread(ctx context.Context, id string) error {
	path := fmt.Sprintf("/direct_v2/threads/%s/decline/", url.PathEscape(id))
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{}, nil)
}

// streamEnvelope is one line of the long-poll stream response.
type streamEnvelope struct {
	ThreadID string               `json:"thread_id"`
	Item     *igdm.MessagePayload `json:"item"`
}

// ConnectStream opens the realtime feed. The initial request runs
// synchronously so a bad session fails Connect; afterwards a goroutine keeps
// polling until DisconnectStream or ctx cancellation.
func (c *Client) ConnectStream(ctx context.Context, handler igdm.StreamHandler) error {
	resp, err := c.openStream(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.streamCancel = cancel
	c.mu.Unlock()
	go c.runStream(streamCtx, resp, handler)
	return nil
}

func (c *Client) openStream(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/direct_v2/stream/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	c.mu.Lock()
	if c.state.Authorization != "" {
		req.Header.Set("Authorization", c.state.Authorization)
	}
	c.mu.Unlock()
	resp, err := c.poll.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream: HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

// runStream reads newline-delimited JSON envelopes, reconnecting with
// backoff on transient failures. Errors are surfaced to the handler; the
// loop only exits on cancellation.
func (c *Client) runStream(ctx context.Context, resp *http.Response, handler igdm.StreamHandler) {
	defer handler.OnStreamClose()
	backoff := time.Second
	for {
		// Unblock the scanner on disconnect: body reads don't observe ctx.
		go func(body io.ReadCloser) {
			<-ctx.Done()
			body.Close()
		}(resp.Body)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var env streamEnvelope
			if err := json.Unmarshal(line, &env); err != nil {
				c.log.Warn().Err(err).Msg("Unparseable stream envelope")
				continue
			}
			if env.Item == nil {
				continue
			}
			handler.OnMessage(env.Item, &igdm.StreamContext{ThreadID: env.ThreadID})
			backoff = time.Second
		}
		resp.Body.Close()
		if ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			handler.OnStreamError(err)
		}

		// Reconnect with capped exponential backoff.
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
		next, err := c.openStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			handler.OnStreamError(err)
			continue
		}
		resp = next
	}
}

func (c *Client) DisconnectStream() error {
	c.mu.Lock()
	cancel := c.streamCancel
	c.streamCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// ConnectPush opens the out-of-band notification feed: same newline-delimited
// long poll as the stream, different endpoint and payload shape.
func (c *Client) ConnectPush(ctx context.Context, handler func(*igdm.Notification)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/news/inbox_stream/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	c.mu.Lock()
	if c.state.Authorization != "" {
		req.Header.Set("Authorization", c.state.Authorization)
	}
	c.mu.Unlock()
	resp, err := c.poll.Do(req)
	if err != nil {
		return fmt.Errorf("open push feed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("push feed: HTTP %d", resp.StatusCode)
	}
	pushCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.pushCancel = cancel
	c.mu.Unlock()
	// Unblock the scanner on disconnect: body reads don't observe ctx.
	go func() {
		<-pushCtx.Done()
		resp.Body.Close()
	}()
	go func() {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if pushCtx.Err() != nil {
				return
			}
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var notif igdm.Notification
			if err := json.Unmarshal(line, &notif); err != nil {
				c.log.Warn().Err(err).Msg("Unparseable push payload")
				continue
			}
			handler(&notif)
		}
	}()
	return nil
}

func (c *Client) DisconnectPush() error {
	c.mu.Lock()
	cancel := c.pushCancel
	c.pushCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
