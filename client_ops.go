package sshclient

import "fmt"

// wrapGlobalErr folds a global-request-pipeline failure (either a
// plain REQUEST_FAILURE or a teardown's "No response from server") into a
// message identifying which request it was (spec §4.8/§4.11).
func wrapGlobalErr(err error, format string, args ...any) error {
	return newError(LevelProtocol, err, fmt.Sprintf(format, args...))
}

// openSession allocates a pending channel slot, sends the CHANNEL_OPEN
// request for a "session" channel, and runs the Session Request
// Pipeline once the server confirms (spec §4.10/§4.7).
func (c *Client) openSession(subtype Subtype, opts SessionOptions, sendTerminal func(ch *Channel, wantReply bool), cb func(*Channel, error)) {
	cont := &openContinuation{
		onConfirm: func(remoteID, window, packetSize uint32) *Channel {
			ch := newChannel(c.channels, 0, KindSession)
			ch.bind(remoteID, window, packetSize)
			runSessionPipeline(ch, opts, subtype, sendTerminal, cb)
			return ch
		},
		onFailure: func(err error) { cb(nil, err) },
	}
	localID, ok := c.channels.add(cont)
	if !ok {
		cb(nil, newErrorf(LevelProtocol, "no free channel id"))
		return
	}
	c.transport.Session(localID, MaxWindow, PacketSize)
}

// Exec opens a session channel and runs cmd on it (spec §4.10).
func (c *Client) Exec(cmd string, opts SessionOptions, cb func(ch *Channel, err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	c.post(func() {
		c.openSession(SubtypeExec, opts, func(ch *Channel, wantReply bool) {
			c.transport.Exec(ch.LocalID, cmd, wantReply)
		}, cb)
	})
	return nil
}

// Shell opens a session channel and requests an interactive shell
// (spec §4.10). Unless opts.NoPTY is set, a default pty is requested first.
func (c *Client) Shell(opts SessionOptions, cb func(ch *Channel, err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	c.post(func() {
		c.openSession(SubtypeShell, opts, func(ch *Channel, wantReply bool) {
			c.transport.Shell(ch.LocalID, wantReply)
		}, cb)
	})
	return nil
}

// Subsystem opens a session channel and requests the named subsystem
// (spec §4.10); SFTP builds on this for the "sftp" subsystem.
func (c *Client) Subsystem(name string, opts SessionOptions, cb func(ch *Channel, err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	c.post(func() {
		c.openSession(SubtypeSubsystem, opts, func(ch *Channel, wantReply bool) {
			c.transport.Subsystem(ch.LocalID, name, wantReply)
		}, cb)
	})
	return nil
}

// ForwardIn asks the server to bind addr:port and relay inbound
// connections back as forwarded-tcpip channels (spec §4.8/§4.10). port
// == 0 requests server-chosen allocation; cb receives the real port.
func (c *Client) ForwardIn(addr string, port uint32, cb func(realPort uint32, err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	c.post(func() {
		c.global.enqueue(func(err error, data []byte) {
			if err != nil {
				cb(0, wrapGlobalErr(err, "tcpip-forward request for %s:%d failed", addr, port))
				return
			}
			realPort := port
			if port == 0 {
				realPort = decodeAssignedPort(data)
			}
			key := realPort
			if c.transport.CompatFlags()&CompatDynamicReplyPort != 0 {
				// Known-buggy peers echo the originally requested port
				// (not the assigned one) in later forwarded-tcpip opens,
				// so the lookup key must match that instead (spec §4.8).
				key = port
			}
			c.global.tcpForwardings[fmt.Sprintf("%s:%d", addr, key)] = realPort
			cb(realPort, nil)
		})
		c.transport.TCPIPForward(addr, port, true)
	})
	return nil
}

// UnforwardIn cancels a forwarding previously established with ForwardIn.
func (c *Client) UnforwardIn(addr string, port uint32, cb func(err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	c.post(func() {
		c.global.enqueue(func(err error, data []byte) {
			if err != nil {
				cb(wrapGlobalErr(err, "cancel-tcpip-forward for %s:%d failed", addr, port))
				return
			}
			for k, v := range c.global.tcpForwardings {
				if v == port {
					delete(c.global.tcpForwardings, k)
				}
			}
			cb(nil)
		})
		c.transport.CancelTCPIPForward(addr, port, true)
	})
	return nil
}

// ForwardOut opens a direct-tcpip channel to dstIP:dstPort, reporting
// srcIP:srcPort as the channel's purported originator (spec §4.10).
func (c *Client) ForwardOut(srcIP string, srcPort uint32, dstIP string, dstPort uint32, cb func(ch *Channel, err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	c.post(func() {
		cont := &openContinuation{
			onConfirm: func(remoteID, window, packetSize uint32) *Channel {
				ch := newChannel(c.channels, 0, KindDirectTCPIP)
				ch.bind(remoteID, window, packetSize)
				cb(ch, nil)
				return ch
			},
			onFailure: func(err error) { cb(nil, err) },
		}
		localID, ok := c.channels.add(cont)
		if !ok {
			cb(nil, newErrorf(LevelProtocol, "no free channel id"))
			return
		}
		c.transport.DirectTCPIP(localID, MaxWindow, PacketSize, DirectTCPIPParams{
			SrcIP: srcIP, SrcPort: srcPort, DstIP: dstIP, DstPort: dstPort,
		})
	})
	return nil
}

// ForwardOutUnix opens an openssh.com direct-streamlocal channel to a
// remote Unix-domain socket (spec OVERVIEW's "local/remote ... Unix-
// domain stream forwarding", supplementing the TCP-only §4.10 example).
func (c *Client) ForwardOutUnix(socketPath string, cb func(ch *Channel, err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	c.post(func() {
		cont := &openContinuation{
			onConfirm: func(remoteID, window, packetSize uint32) *Channel {
				ch := newChannel(c.channels, 0, KindDirectStreamLocal)
				ch.bind(remoteID, window, packetSize)
				cb(ch, nil)
				return ch
			},
			onFailure: func(err error) { cb(nil, err) },
		}
		localID, ok := c.channels.add(cont)
		if !ok {
			cb(nil, newErrorf(LevelProtocol, "no free channel id"))
			return
		}
		c.transport.OpenSSHDirectStreamLocal(localID, MaxWindow, PacketSize, DirectStreamLocalParams{SocketPath: socketPath})
	})
	return nil
}

// OpenSSHNoMoreSessions tells the server this Client will open no
// further session channels (spec §4.10's strictVendor-gated group).
func (c *Client) OpenSSHNoMoreSessions(cb func(err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	if !c.checkOpenSSHVendor(cb) {
		return nil
	}
	c.post(func() {
		c.global.enqueue(func(err error, data []byte) {
			if err != nil {
				cb(wrapGlobalErr(err, "openssh_noMoreSessions failed"))
				return
			}
			cb(nil)
		})
		c.transport.OpenSSHNoMoreSessions(true)
	})
	return nil
}

// OpenSSHStreamLocalForward asks the server to bind a remote Unix
// socket and relay connections back as forwarded-streamlocal channels.
func (c *Client) OpenSSHStreamLocalForward(path string, cb func(err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	if !c.checkOpenSSHVendor(cb) {
		return nil
	}
	c.post(func() {
		c.global.enqueue(func(err error, data []byte) {
			if err != nil {
				cb(wrapGlobalErr(err, "openssh_streamLocalForward for %s failed", path))
				return
			}
			c.global.unixForwardings[path] = true
			cb(nil)
		})
		c.transport.OpenSSHStreamLocalForward(path, true)
	})
	return nil
}

// OpenSSHCancelStreamLocalForward cancels a forwarding previously
// established with OpenSSHStreamLocalForward.
func (c *Client) OpenSSHCancelStreamLocalForward(path string, cb func(err error)) error {
	if err := c.notConnected(); err != nil {
		return err
	}
	if !c.checkOpenSSHVendor(cb) {
		return nil
	}
	c.post(func() {
		c.global.enqueue(func(err error, data []byte) {
			if err != nil {
				cb(wrapGlobalErr(err, "openssh_cancelStreamLocalForward for %s failed", path))
				return
			}
			delete(c.global.unixForwardings, path)
			cb(nil)
		})
		c.transport.OpenSSHCancelStreamLocalForward(path, true)
	})
	return nil
}
