package sshclient

import (
	"io"
	"sync"
)

// Flow-control constants (spec §6, informative): a ~2 MiB window class
// and OpenSSH's ~32 KiB default packet size; the threshold for
// emitting a WINDOW_ADJUST is half of MAX_WINDOW.
const (
	MaxWindow       uint32 = 2 * 1024 * 1024
	PacketSize      uint32 = 32 * 1024
	WindowThreshold uint32 = MaxWindow / 2
)

// SSH extended-data type for stderr (RFC 4254 §5.2).
const extendedDataStderr uint32 = 1

// ChannelState is one direction's lifecycle state (spec §3).
type ChannelState int

// Channel states.
const (
	ChanOpen ChannelState = iota
	ChanEOF
	ChanClosed
)

// ChannelKind is the SSH channel type.
type ChannelKind string

// Channel kinds this module opens or accepts.
const (
	KindSession            ChannelKind = "session"
	KindSFTP               ChannelKind = "sftp"
	KindDirectTCPIP        ChannelKind = "direct-tcpip"
	KindDirectStreamLocal  ChannelKind = "direct-streamlocal"
	KindForwardedTCPIP     ChannelKind = "forwarded-tcpip"
	KindForwardedStreamLoc ChannelKind = "forwarded-streamlocal@openssh.com"
	KindAuthAgent          ChannelKind = "auth-agent@openssh.com"
	KindX11                ChannelKind = "x11"
)

// Subtype is set once a session channel is specialized (spec §3).
type Subtype string

// Session subtypes.
const (
	SubtypeNone      Subtype = ""
	SubtypeShell     Subtype = "shell"
	SubtypeExec      Subtype = "exec"
	SubtypeSubsystem Subtype = "subsystem"
)

// ExitRecord is set at most once per channel (spec §3/§4.5).
type ExitRecord struct {
	set      bool
	Code     *uint32
	Signal   string
	CoreDump bool
	Message  string
}

// ChannelEvents holds the per-channel notification callbacks (spec
// §4.5: a consumer must be able to observe exit-status/exit-signal and
// close). Mirrors ClientEvents: both are optional, and both are called
// from the Client's single driver goroutine, so they must not block.
type ChannelEvents struct {
	OnExit  func(*ExitRecord)
	OnClose func()
}

// Channel is a flow-controlled, readable/writable pair multiplexed
// over the shared transport (spec §4.5). All mutation happens on the
// Client's driver goroutine; Read/Write are safe to call from any
// goroutine and block the caller (never the driver) as needed.
type Channel struct {
	mgr     *channelManager
	LocalID uint32
	RemoteID uint32

	Kind    ChannelKind
	Subtype Subtype

	incomingWindow     uint32
	incomingPacketSize uint32
	incomingState      ChannelState

	outgoingWindow     uint32
	outgoingPacketSize uint32
	outgoingState      ChannelState

	stdout *dataPipe
	stderr *dataPipe

	pendingRequests []func(failed bool)
	pendingWrite    *pendingWrite
	waitChanDrain   bool
	waitChanDrainErr bool // stderr side backpressure, tracked separately below

	Exit ExitRecord

	HasX11        bool
	AllowHalfOpen bool

	Events ChannelEvents

	closeSent bool
	closeOnce sync.Once
}

type pendingWrite struct {
	data   []byte
	stderr bool
	done   chan error
}

func newChannel(mgr *channelManager, localID uint32, kind ChannelKind) *Channel {
	c := &Channel{
		mgr:                mgr,
		LocalID:            localID,
		Kind:               kind,
		incomingWindow:     MaxWindow,
		incomingPacketSize: PacketSize,
		incomingState:      ChanOpen,
		outgoingState:      ChanOpen,
		stdout:             newDataPipe(),
		stderr:             newDataPipe(),
	}
	c.stdout.onDrain = func() { mgr.client.post(func() { c.onDrain(false) }) }
	c.stderr.onDrain = func() { mgr.client.post(func() { c.onDrain(true) }) }
	return c
}

// Stdout is the primary readable end.
func (c *Channel) Stdout() io.Reader { return c.stdout }

// Stderr is the extended-data (stderr) readable end.
func (c *Channel) Stderr() io.Reader { return c.stderr }

func (c *Channel) transport() Transport { return c.mgr.client.transport }

// bind records the server's CHANNEL_OPEN_CONFIRMATION parameters.
func (c *Channel) bind(remoteID, window, packetSize uint32) {
	c.RemoteID = remoteID
	c.outgoingWindow = window
	c.outgoingPacketSize = packetSize
}

// --- outbound data -------------------------------------------------

// Write sends p on the primary stream, blocking the caller (never the
// driver goroutine) until every byte has been accepted by the window,
// matching io.Writer's contract.
func (c *Channel) Write(p []byte) (int, error) {
	return c.writeStream(p, false)
}

// WriteStderr sends p on the extended-data (stderr) stream.
func (c *Channel) WriteStderr(p []byte) (int, error) {
	return c.writeStream(p, true)
}

func (c *Channel) writeStream(p []byte, stderr bool) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	done := make(chan error, 1)
	cp := make([]byte, len(p))
	copy(cp, p)
	c.mgr.client.post(func() { c.startWrite(cp, stderr, done) })
	err := <-done
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Channel) startWrite(data []byte, stderr bool, done chan error) {
	if c.outgoingState != ChanOpen {
		done <- newErrorf(LevelProtocol, "channel %d is not open for writing", c.LocalID)
		return
	}
	// Invariant 2: a channel in a non-open outgoing state must not
	// originate further requests; writes on an already-pending write
	// queue behind it so the single in-flight cursor (spec §3) holds.
	if c.pendingWrite != nil {
		// Extremely unlikely under the synchronous Write contract
		// (callers serialize their own writes), but guard anyway: wait
		// for the previous write to land before starting this one.
		prev := c.pendingWrite
		go func() {
			<-prev.done
			c.mgr.client.post(func() { c.startWrite(data, stderr, done) })
		}()
		return
	}
	c.sendAsMuchAsPossible(data, stderr, done)
}

func (c *Channel) sendAsMuchAsPossible(data []byte, stderr bool, done chan error) {
	if c.outgoingWindow == 0 {
		c.pendingWrite = &pendingWrite{data: data, stderr: stderr, done: done}
		return
	}
	send := data
	if uint32(len(send)) > c.outgoingWindow {
		send = send[:c.outgoingWindow]
	}
	if uint32(len(send)) > c.outgoingPacketSize {
		send = send[:c.outgoingPacketSize]
	}
	if len(send) > 0 {
		if stderr {
			c.transport().ChannelExtendedData(c.RemoteID, extendedDataStderr, send)
		} else {
			c.transport().ChannelData(c.RemoteID, send)
		}
		c.outgoingWindow -= uint32(len(send))
	}
	remainder := data[len(send):]
	if len(remainder) == 0 {
		done <- nil
		return
	}
	c.pendingWrite = &pendingWrite{data: remainder, stderr: stderr, done: done}
}

// handleWindowAdjust resumes any retained write chunk (spec §4.5).
func (c *Channel) handleWindowAdjust(add uint32) {
	c.outgoingWindow += add
	if c.pendingWrite != nil {
		pw := c.pendingWrite
		c.pendingWrite = nil
		c.sendAsMuchAsPossible(pw.data, pw.stderr, pw.done)
	}
}

// --- inbound data ----------------------------------------------------

// handleData processes CHANNEL_DATA/CHANNEL_EXTENDED_DATA. window==0
// is a silent drop per spec's explicit open-question resolution (spec
// §9: "CHANNEL_DATA with window == 0 is currently dropped silently").
func (c *Channel) handleData(payload []byte, stderr bool) {
	if c.incomingWindow == 0 {
		return
	}
	n := uint32(len(payload))
	if n > c.incomingWindow {
		n = c.incomingWindow
		payload = payload[:n]
	}
	c.incomingWindow -= n
	pipe := c.stdout
	if stderr {
		pipe = c.stderr
	}
	ok := pipe.push(payload)
	if !ok {
		if stderr {
			c.waitChanDrainErr = true
		} else {
			c.waitChanDrain = true
		}
		return
	}
	c.maybeAdjustWindow()
}

func (c *Channel) maybeAdjustWindow() {
	if c.waitChanDrain || c.waitChanDrainErr {
		return
	}
	if c.incomingWindow <= WindowThreshold {
		add := MaxWindow - c.incomingWindow
		c.incomingWindow = MaxWindow
		c.transport().ChannelWindowAdjust(c.RemoteID, add)
	}
}

// onDrain is invoked (via Client.post, from the pipe's own Read
// goroutine) once the consumer has read enough to fall back under the
// pipe's low-watermark.
func (c *Channel) onDrain(stderr bool) {
	if stderr {
		c.waitChanDrainErr = false
	} else {
		c.waitChanDrain = false
	}
	c.maybeAdjustWindow()
}

// handleExtendedData drops any type other than STDERR (protocol ignore, spec §4.5).
func (c *Channel) handleExtendedData(dataType uint32, payload []byte) {
	if dataType != extendedDataStderr {
		return
	}
	c.handleData(payload, true)
}

// --- requests --------------------------------------------------------

func (c *Channel) enqueueRequest(cb func(failed bool)) {
	c.pendingRequests = append(c.pendingRequests, cb)
}

func (c *Channel) handleRequestReply(failed bool) {
	if len(c.pendingRequests) == 0 {
		return
	}
	cb := c.pendingRequests[0]
	c.pendingRequests = c.pendingRequests[1:]
	cb(failed)
}

func (c *Channel) handleRequest(kind string, wantReply bool, payload []byte) {
	switch kind {
	case "exit-status":
		if c.Exit.set {
			return
		}
		code := decodeUint32(payload)
		c.Exit.set = true
		c.Exit.Code = &code
		if c.Events.OnExit != nil {
			c.Events.OnExit(&c.Exit)
		}
	case "exit-signal":
		if c.Exit.set {
			return
		}
		name, coreDump, message := decodeExitSignal(payload)
		c.Exit.set = true
		c.Exit.Signal = "SIG" + name
		c.Exit.CoreDump = coreDump
		c.Exit.Message = message
		if c.Events.OnExit != nil {
			c.Events.OnExit(&c.Exit)
		}
	default:
		if wantReply {
			c.transport().ChannelFailure(c.RemoteID)
		}
	}
}

// --- lifecycle ---------------------------------------------------------

func (c *Channel) handleEOF() {
	if c.incomingState != ChanOpen {
		return
	}
	c.incomingState = ChanEOF
	c.stdout.pushEOF()
	c.stderr.pushEOF()
}

// ensureCloseSent emits CHANNEL_CLOSE at most once, from whichever
// path notices first: a local Close() call, or the server's own
// CHANNEL_CLOSE needing an acknowledging close back.
func (c *Channel) ensureCloseSent() {
	if c.closeSent {
		return
	}
	c.closeSent = true
	c.outgoingState = ChanClosed
	c.transport().ChannelClose(c.RemoteID)
}

// Close requests teardown of this channel from the user side.
func (c *Channel) Close() error {
	done := make(chan struct{})
	c.mgr.client.post(func() {
		c.ensureCloseSent()
		close(done)
	})
	<-done
	return nil
}

// handleClose implements the server-initiated CHANNEL_CLOSE path
// (spec §4.5's "delegate to onCHANNEL_CLOSE"): ensure our own close
// has been sent, free the id, emit close.
func (c *Channel) handleClose() {
	c.ensureCloseSent()
	c.incomingState = ChanClosed
	c.stdout.pushEOF()
	c.stderr.pushEOF()
	c.mgr.remove(c.LocalID)
	c.closeOnce.Do(func() {
		if c.Events.OnClose != nil {
			c.Events.OnClose()
		}
	})
}

// forceClose is used by Channel Manager cleanup on transport loss: no
// CHANNEL_CLOSE is sent (there is no transport to send it on), but the
// user-facing close/EOF semantics still fire.
func (c *Channel) forceClose(err error) {
	c.outgoingState = ChanClosed
	c.incomingState = ChanClosed
	c.stdout.pushEOF()
	c.stderr.pushEOF()
	if c.pendingWrite != nil {
		pw := c.pendingWrite
		c.pendingWrite = nil
		pw.done <- err
	}
	for _, cb := range c.pendingRequests {
		cb(true)
	}
	c.pendingRequests = nil
	c.closeOnce.Do(func() {
		if c.Events.OnClose != nil {
			c.Events.OnClose()
		}
	})
}

func decodeUint32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// decodeExitSignal parses the exit-signal request payload: an SSH
// string for the signal name, a one-byte core-dump flag, and an SSH
// string message; anything after the message (such as a language tag)
// is ignored.
func decodeExitSignal(b []byte) (name string, coreDump bool, message string) {
	off := 0
	name, off = decodeSSHString(b, off)
	if off < len(b) {
		coreDump = b[off] != 0
		off++
	}
	message, _ = decodeSSHString(b, off)
	return
}

func decodeSSHString(b []byte, off int) (string, int) {
	if off+4 > len(b) {
		return "", off
	}
	n := int(decodeUint32(b[off : off+4]))
	off += 4
	if off+n > len(b) {
		return "", off
	}
	return string(b[off : off+n]), off + n
}
