package sshclient

import "time"

// keepaliveMonitor implements spec §4.3: periodic liveness probes with
// a count-based timeout. Disabled when Config.KeepaliveInterval == 0.
type keepaliveMonitor struct {
	client  *Client
	stopCh  chan struct{}
	counter int
}

func newKeepaliveMonitor(c *Client) *keepaliveMonitor {
	return &keepaliveMonitor{client: c}
}

// start is called once USERAUTH_SUCCESS fires (spec §4.3/§4.6: "Reset
// also fires on USERAUTH_SUCCESS").
func (k *keepaliveMonitor) start() {
	if k.client.cfg.KeepaliveInterval <= 0 || k.stopCh != nil {
		return
	}
	k.counter = 0
	interval := k.client.cfg.KeepaliveInterval
	stop := make(chan struct{})
	k.stopCh = stop
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				k.client.post(k.tick)
			case <-stop:
				return
			}
		}
	}()
}

func (k *keepaliveMonitor) stop() {
	if k.stopCh != nil {
		close(k.stopCh)
		k.stopCh = nil
	}
}

// tick runs on the driver goroutine.
func (k *keepaliveMonitor) tick() {
	c := k.client
	k.counter++
	if k.counter > c.cfg.KeepaliveCountMax {
		if c.stream != nil && c.stream.Writable() {
			c.emitError(newErrorf(LevelClientTimeout, "Keepalive timeout"))
			_ = c.stream.Destroy()
		}
		return
	}
	if c.stream != nil && c.stream.Writable() {
		// A no-op continuation is pushed onto the global FIFO first so
		// replies stay in order even though the ping itself never
		// solicits a reply the caller cares about (spec §4.3/§4.8).
		c.global.enqueue(func(err error, data []byte) {})
		c.transport.Ping()
	}
}

// resetOnLiveness resets the counter on any qualifying successful
// reply (spec invariant 5): channel success/failure, global reply,
// auth success.
func (k *keepaliveMonitor) resetOnLiveness() {
	k.counter = 0
}
