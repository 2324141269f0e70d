package sshclient

import (
	"context"
	"sync"
	"time"
)

// ClientEvents holds the user-visible event callbacks (spec §6). Each
// is optional; unset callbacks are simply not invoked. They are all
// called from the Client's single driver goroutine, so they must not
// block and must not call back into the Client synchronously (use
// Client methods from a separate goroutine if a handler needs to).
type ClientEvents struct {
	OnConnect              func()
	OnTimeout              func()
	OnGreeting             func(text string)
	OnBanner               func(message string)
	OnHandshake            func(info HandshakeInfo)
	OnReady                func()
	OnChangePassword       func(prompt string, reply func(newPassword string))
	OnKeyboardInteractive  func(name, instructions string, prompts []Prompt, reply func(answers []string))
	OnTCPConnection        func(info ForwardedTCPInfo, accept func() (*Channel, error), reject func(reason ChannelOpenFailureReason))
	OnUnixConnection       func(info ForwardedUnixInfo, accept func() (*Channel, error), reject func(reason ChannelOpenFailureReason))
	OnX11                  func(info X11Info, accept func() (*Channel, error), reject func(reason ChannelOpenFailureReason))
	OnError                func(err error)
	OnEnd                  func()
	OnClose                func()
}

// Client is the public SSH client facade (spec §4.10). Exactly one
// Transport/byte-stream pair is live per Client lifetime (invariant 1);
// Connect deferred-reconnects if still writable.
type Client struct {
	cfg       Config
	log       Logger
	transport Transport
	stream    ByteStream

	driver   *driver
	channels *channelManager
	auth     *authOrchestrator
	global   *globalRequestPipeline
	incoming *incomingRouter
	keepalive *keepaliveMonitor

	Events ClientEvents

	actions chan func()
	stopped chan struct{}
	runOnce sync.Once

	readyTimer      *time.Timer
	everConnected   bool
	sawIdentification bool
	doneLatchFired  bool
	endEmitted      bool
	terminated      bool

	remoteIdentification string

	agent Agent
}

// NewClient constructs a Client around a Transport implementation. The
// Transport is the out-of-scope framed-transport collaborator (spec
// §1/§6); production callers supply a real one, tests supply a fake
// (see transport_test.go).
func NewClient(transport Transport) *Client {
	c := &Client{
		transport: transport,
		actions:   make(chan func(), 256),
		stopped:   make(chan struct{}),
	}
	c.driver = &driver{client: c}
	c.channels = newChannelManager(c)
	c.global = newGlobalRequestPipeline(c)
	c.incoming = newIncomingRouter(c)
	c.auth = newAuthOrchestrator(c)
	c.keepalive = newKeepaliveMonitor(c)
	return c
}

// post enqueues fn to run on the driver goroutine. Safe to call from
// any goroutine, including the driver goroutine itself (it will simply
// run after the current action finishes).
func (c *Client) post(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.stopped:
	}
}

func (c *Client) run() {
	defer close(c.stopped)
	for fn := range c.actions {
		fn()
		if c.terminated {
			return
		}
	}
}

// Connect establishes the connection described by cfg (spec §4.10).
// It returns once the connect sequence has been kicked off; completion
// is signaled through Events.OnReady / Events.OnError.
func (c *Client) Connect(ctx context.Context, cfg Config) error {
	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}
	c.cfg = cfg
	if cfg.Log != nil {
		c.log = cfg.Log
	} else {
		c.log = discardLogger()
	}
	if cfg.AgentEndpoint != "" {
		a, err := NewSystemAgent()
		if err != nil {
			return err
		}
		c.agent = a
	}

	c.runOnce.Do(func() { go c.run() })

	if c.stream != nil && c.stream.Writable() {
		// Invariant 1: rebinding while still connected is deferred
		// until close.
		c.post(func() { c.connectAfterClose(ctx, cfg) })
		return nil
	}
	return c.startConnect(ctx, cfg)
}

func (c *Client) connectAfterClose(ctx context.Context, cfg Config) {
	if c.stream != nil && c.stream.Writable() {
		c.post(func() { c.connectAfterClose(ctx, cfg) })
		return
	}
	if err := c.startConnect(ctx, cfg); err != nil {
		c.emitError(err)
	}
}

func (c *Client) startConnect(ctx context.Context, cfg Config) error {
	var stream ByteStream
	var err error
	if cfg.Stream != nil {
		stream = cfg.Stream
	} else {
		stream, err = dialByteStream(ctx, &cfg)
		if err != nil {
			return err
		}
	}
	c.stream = stream
	c.terminated = false
	c.doneLatchFired = false
	c.endEmitted = false
	c.sawIdentification = false

	if cfg.ReadyTimeout > 0 {
		c.readyTimer = time.AfterFunc(cfg.ReadyTimeout, func() {
			c.post(c.onReadyTimeout)
		})
	}

	go func() {
		for ev := range stream.Events() {
			e := ev
			c.post(func() { c.handleStreamEvent(e) })
		}
	}()
	return nil
}

func (c *Client) onReadyTimeout() {
	if c.terminated {
		return
	}
	c.emitError(newErrorf(LevelClientTimeout, "Timed out while waiting for handshake"))
	if c.stream != nil {
		_ = c.stream.Destroy()
	}
}

func (c *Client) cancelReadyTimeout() {
	if c.readyTimer != nil {
		c.readyTimer.Stop()
		c.readyTimer = nil
	}
}

func (c *Client) handleStreamEvent(ev StreamEvent) {
	switch ev.Kind {
	case StreamConnect:
		c.everConnected = true
		if c.Events.OnConnect != nil {
			c.Events.OnConnect()
		}
	case StreamData:
		if err := c.transport.Parse(ev.Data); err != nil {
			c.driver.OnError(newError(LevelProtocol, err, "parsing inbound data"))
			_ = c.stream.End()
		}
	case StreamTimeout:
		if c.Events.OnTimeout != nil {
			c.Events.OnTimeout()
		}
	case StreamError:
		c.emitError(newError(LevelClientSocket, ev.Err, "byte stream error"))
	case StreamEnd:
		c.teardown(false)
	case StreamClose:
		c.teardown(true)
	}
}

// teardown implements spec §4.11. It is idempotent: a real disconnect
// drives it twice in a row (StreamEnd immediately followed by
// StreamClose), but OnEnd fires at most once across both calls, and the
// "connection lost before handshake" diagnosis is only ever made once.
func (c *Client) teardown(isClose bool) {
	c.cancelReadyTimeout()
	c.keepalive.stop()
	c.transport.Cleanup()

	if !c.doneLatchFired {
		c.doneLatchFired = true
		if c.everConnected && !c.sawIdentification {
			c.emitError(newErrorf(LevelClientSocket, "Connection lost before handshake"))
		}
	}

	noResponse := newErrorf(LevelProtocol, "No response from server")
	c.global.cleanup(noResponse)
	c.channels.cleanup(noResponse)

	if !c.endEmitted {
		c.endEmitted = true
		if c.Events.OnEnd != nil {
			c.Events.OnEnd()
		}
	}

	if !isClose {
		return
	}
	if c.Events.OnClose != nil {
		c.Events.OnClose()
	}
	c.terminated = true
}

func (c *Client) emitError(err error) {
	if c.log != nil {
		c.log.Errorf("%v", err)
	}
	if c.Events.OnError != nil {
		c.Events.OnError(err)
	}
}

// End cooperatively disconnects (spec §4.10/§5): emits SSH disconnect
// then half-closes. Idempotent.
func (c *Client) End() {
	c.post(func() {
		if c.stream == nil || !c.stream.Writable() {
			return
		}
		c.transport.Disconnect(DisconnectByApplication, "")
		_ = c.stream.End()
	})
}

// Destroy is the non-cooperative, unconditional hard close (spec §4.10/§5).
func (c *Client) Destroy() {
	c.post(func() {
		if c.stream != nil {
			_ = c.stream.Destroy()
		}
	})
}

// notConnected is the synchronous error every operation but
// Connect/End/Destroy throws when the stream isn't writable (spec §4.10).
func (c *Client) notConnected() error {
	if c.stream == nil || !c.stream.Writable() {
		return newErrorf(LevelClientSocket, "Not connected")
	}
	return nil
}
