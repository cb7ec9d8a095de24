// igdm - An unofficial Instagram direct messaging client library for Go.
// Copyright (C) 2025 igdm contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package igdm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// channelTag identifies which inbound channel an event arrived on. Relative
// order within one channel is preserved through buffering and replay.
type channelTag int

const (
	channelControl channelTag = iota
	channelStream
	channelPush
	channelLocal
)

type controlKind int

const (
	ctrlNone controlKind = iota
	ctrlReady
	ctrlStreamError
	ctrlStreamClosed
)

// taggedEvent is one entry of the merged inbound mailbox. Exactly one of the
// payload fields is set, according to channel and ctrl.
type taggedEvent struct {
	channel channelTag
	ctrl    controlKind
	err     error

	msg    *MessagePayload
	msgCtx *StreamContext
	notif  *Notification
	local  any
}

// Client is one authenticated session against the platform: it owns the
// entity caches, the dedup window, the pre-ready event buffer, and the single
// dispatch goroutine that all handlers run on. Clients are not shareable;
// construct one per session.
type Client struct {
	api    API
	stream StreamClient
	push   PushClient
	config *Config
	log    zerolog.Logger

	cache   *entityCache
	dedup   *dedupWindow
	archive *archiveStore
	self    *User

	events   chan taggedEvent
	stopChan chan struct{}
	loopDone chan struct{}
	ready    atomic.Bool
	running  atomic.Bool

	// pending buffers events that arrive before the ready flip. Only the
	// dispatch goroutine touches it. Once drained it is never repopulated.
	pending []taggedEvent

	handlers      []wrappedEventHandler
	handlersLock  sync.RWMutex
	nextHandlerID uint32

	// monitorCancel is the single active message-requests monitor handle.
	// Starting a new monitor cancels the old one first.
	monitorCancel context.CancelFunc
	monitorLock   sync.Mutex
}

// NewClient builds a client around the given collaborators. cfg may be nil;
// zero-valued tunables get defaults either way.
func NewClient(api API, stream StreamClient, push PushClient, cfg *Config, log zerolog.Logger) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()
	return &Client{
		api:    api,
		stream: stream,
		push:   push,
		config: cfg,
		log:    log,
		cache:  newEntityCache(),
		dedup:  newDedupWindow(cfg.DedupCapacity),
		events: make(chan taggedEvent, cfg.EventQueueSize),
	}
}

// Self returns the authenticated user, or nil before a successful Login.
func (c *Client) Self() *User {
	return c.self
}

// IsReady reports whether live events dispatch directly instead of buffering.
func (c *Client) IsReady() bool {
	return c.ready.Load()
}

// Login runs the credential fallback chain and, on success, connects the
// realtime stream and push channel, starts the dispatch goroutine, and flips
// the client to ready once startup events have been replayed. Called once
// per client lifetime.
func (c *Client) Login(ctx context.Context) error {
	if c.running.Load() {
		return errors.New("client is already logged in")
	}
	if err := c.attemptLogin(ctx); err != nil {
		return err
	}

	c.stopChan = make(chan struct{})
	c.loopDone = make(chan struct{})
	c.running.Store(true)
	go c.dispatchLoop()

	log := c.log.With().Str("component", "client").Logger()

	if c.config.ArchivePath != "" {
		store, err := newArchiveStore(ctx, c.config.ArchivePath)
		if err != nil {
			log.Warn().Err(err).Str("path", c.config.ArchivePath).
				Msg("Failed to open message archive, continuing without")
		} else {
			c.archive = store
		}
	}

	if err := c.stream.ConnectStream(ctx, (*clientStreamHandler)(c)); err != nil {
		c.teardown(log)
		return fmt.Errorf("connect stream: %w", err)
	}
	log.Info().Msg("Realtime stream connected")

	// Push is best-effort: a client without out-of-band notifications is
	// degraded, not broken.
	if err := c.push.ConnectPush(ctx, c.enqueueNotification); err != nil {
		log.Warn().Err(err).Msg("Push channel connect failed, continuing without notifications")
	}

	// Initial catch-up: seed the pending-chat cache before going ready so
	// approve/decline work immediately.
	if _, err := c.pollPendingThreads(ctx, false); err != nil {
		log.Warn().Err(err).Msg("Initial pending-threads poll failed")
	}

	go c.periodicStateSave(log)

	// The ready flip travels through the same mailbox as live events, so
	// everything queued before this line replays before anything that
	// arrives after it.
	c.events <- taggedEvent{channel: channelControl, ctrl: ctrlReady}
	return nil
}

// Logout tears down each channel independently: a failure on one never
// prevents attempting the others. The combined error reports everything that
// went wrong.
func (c *Client) Logout() error {
	log := c.log.With().Str("component", "client").Logger()
	var errs []error

	c.StopMessageRequestsMonitor()

	if err := c.stream.DisconnectStream(); err != nil {
		log.Warn().Err(err).Msg("Stream disconnect failed")
		errs = append(errs, fmt.Errorf("stream disconnect: %w", err))
	}
	if err := c.push.DisconnectPush(); err != nil {
		log.Warn().Err(err).Msg("Push disconnect failed")
		errs = append(errs, fmt.Errorf("push disconnect: %w", err))
	}
	if c.running.Swap(false) {
		if err := c.persistSession(log); err != nil {
			log.Warn().Err(err).Msg("Final session persist failed")
			errs = append(errs, err)
		}
		close(c.stopChan)
		<-c.loopDone
	}
	if c.archive != nil {
		if err := c.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("archive close: %w", err))
		}
		c.archive = nil
	}
	log.Info().Msg("Logged out")
	return errors.Join(errs...)
}

func (c *Client) teardown(log zerolog.Logger) {
	if c.running.Swap(false) {
		close(c.stopChan)
		<-c.loopDone
	}
	if c.archive != nil {
		if err := c.archive.Close(); err != nil {
			log.Warn().Err(err).Msg("Archive close failed during teardown")
		}
		c.archive = nil
	}
}

// dispatchLoop is the single logical thread of control: every handler, cache
// mutation, and event emission happens here. Suspension occurs only at the
// explicit fetch/persist calls inside handlers.
func (c *Client) dispatchLoop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.stopChan:
			return
		case ev := <-c.events:
			c.handleTagged(ev)
		}
	}
}

func (c *Client) handleTagged(ev taggedEvent) {
	if ev.channel == channelControl && ev.ctrl == ctrlReady {
		if c.ready.Swap(true) {
			return
		}
		buffered := c.pending
		c.pending = nil
		if len(buffered) > 0 {
			c.log.Info().Int("count", len(buffered)).Msg("Replaying events buffered during startup")
		}
		for _, b := range buffered {
			c.deliver(b)
		}
		c.dispatchEvent(&ReadyEvent{})
		return
	}
	if !c.ready.Load() {
		c.pending = append(c.pending, ev)
		return
	}
	c.deliver(ev)
}

func (c *Client) deliver(ev taggedEvent) {
	switch ev.channel {
	case channelStream:
		switch ev.ctrl {
		case ctrlStreamError:
			c.log.Warn().Err(ev.err).Msg("Stream error")
			c.dispatchEvent(&StreamErrorEvent{Err: ev.err})
		case ctrlStreamClosed:
			c.log.Info().Msg("Stream closed")
			c.dispatchEvent(&DisconnectedEvent{})
		default:
			c.ingestMessage(ev.msg, ev.msgCtx)
		}
	case channelPush:
		c.routeNotification(ev.notif)
	case channelLocal:
		c.dispatchEvent(ev.local)
	}
}

// enqueue places an event on the merged mailbox unless the client has
// stopped. The mailbox is bounded; a full queue applies backpressure to the
// transport goroutine rather than dropping events.
func (c *Client) enqueue(ev taggedEvent) {
	if !c.running.Load() {
		return
	}
	select {
	case c.events <- ev:
	case <-c.stopChan:
	}
}

func (c *Client) enqueueNotification(n *Notification) {
	c.enqueue(taggedEvent{channel: channelPush, notif: n})
}

// emit routes a locally-produced application event through the mailbox so it
// is dispatched on the same goroutine as everything else.
func (c *Client) emit(evt any) {
	c.enqueue(taggedEvent{channel: channelLocal, local: evt})
}

// clientStreamHandler adapts transport stream callbacks onto the mailbox.
type clientStreamHandler Client

func (h *clientStreamHandler) OnMessage(msg *MessagePayload, sctx *StreamContext) {
	(*Client)(h).enqueue(taggedEvent{channel: channelStream, msg: msg, msgCtx: sctx})
}

func (h *clientStreamHandler) OnStreamError(err error) {
	(*Client)(h).enqueue(taggedEvent{channel: channelStream, ctrl: ctrlStreamError, err: err})
}

func (h *clientStreamHandler) OnStreamClose() {
	(*Client)(h).enqueue(taggedEvent{channel: channelStream, ctrl: ctrlStreamClosed})
}

// periodicStateSave re-persists the session artifact on an interval while
// connected, so credential refreshes done by the transport survive restarts.
func (c *Client) periodicStateSave(log zerolog.Logger) {
	ticker := time.NewTicker(c.config.StateSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			if err := c.persistSession(log); err != nil {
				log.Warn().Err(err).Msg("Periodic session persist failed")
			}
		}
	}
}
