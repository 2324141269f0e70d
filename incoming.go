package sshclient

import (
	"fmt"
	"io"
)

// ForwardedTCPInfo describes a server-initiated forwarded-tcpip open
// (spec §4.9): a connection arriving on a port this Client previously
// asked the server to bind via ForwardIn.
type ForwardedTCPInfo struct {
	DestIP     string
	DestPort   uint32
	OriginIP   string
	OriginPort uint32
}

// ForwardedUnixInfo describes a server-initiated
// forwarded-streamlocal@openssh.com open.
type ForwardedUnixInfo struct {
	SocketPath string
}

// X11Info describes a server-initiated x11 open.
type X11Info struct {
	OriginIP   string
	OriginPort uint32
}

// incomingRouter implements spec §4.9: it filters every server-opened
// channel against what the user previously allowed (active
// forwardings, agent-forward/X11 opt-in) before ever surfacing it.
type incomingRouter struct {
	client *Client
}

func newIncomingRouter(c *Client) *incomingRouter {
	return &incomingRouter{client: c}
}

func (r *incomingRouter) handleOpen(kind string, sender, window, packetSize uint32, data []byte) {
	switch ChannelKind(kind) {
	case KindForwardedTCPIP:
		r.handleForwardedTCPIP(sender, window, packetSize, data)
	case KindForwardedStreamLoc:
		r.handleForwardedStreamLocal(sender, window, packetSize, data)
	case KindAuthAgent:
		r.handleAuthAgent(sender, window, packetSize)
	case KindX11:
		r.handleX11(sender, window, packetSize, data)
	default:
		r.client.transport.ChannelOpenFail(sender, ReasonUnknownChannelType, "unsupported channel type")
	}
}

func (r *incomingRouter) handleForwardedTCPIP(sender, window, packetSize uint32, data []byte) {
	c := r.client
	destIP, off := decodeSSHString(data, 0)
	destPort := decodeUint32(data[off:])
	off += 4
	originIP, off2 := decodeSSHString(data, off)
	originPort := decodeUint32(data[off2:])

	realPort, ok := lookupTCPForwarding(c.global.tcpForwardings, destIP, destPort)
	if !ok {
		c.transport.ChannelOpenFail(sender, ReasonAdministrativelyProhibited, "no matching forwarding")
		return
	}
	info := ForwardedTCPInfo{DestIP: destIP, DestPort: realPort, OriginIP: originIP, OriginPort: originPort}

	if c.Events.OnTCPConnection == nil {
		c.transport.ChannelOpenFail(sender, ReasonAdministrativelyProhibited, "no handler installed")
		return
	}
	accept, reject := r.acceptReject(KindForwardedTCPIP, sender, window, packetSize)
	c.Events.OnTCPConnection(info, accept, reject)
}

func (r *incomingRouter) handleForwardedStreamLocal(sender, window, packetSize uint32, data []byte) {
	c := r.client
	socketPath, _ := decodeSSHString(data, 0)
	if !c.global.unixForwardings[socketPath] {
		c.transport.ChannelOpenFail(sender, ReasonAdministrativelyProhibited, "no matching forwarding")
		return
	}
	info := ForwardedUnixInfo{SocketPath: socketPath}
	if c.Events.OnUnixConnection == nil {
		c.transport.ChannelOpenFail(sender, ReasonAdministrativelyProhibited, "no handler installed")
		return
	}
	accept, reject := r.acceptReject(KindForwardedStreamLoc, sender, window, packetSize)
	c.Events.OnUnixConnection(info, accept, reject)
}

// handleAuthAgent bridges the channel straight to the agent
// collaborator rather than surfacing a user event (spec §4.9).
func (r *incomingRouter) handleAuthAgent(sender, window, packetSize uint32) {
	c := r.client
	if !c.global.agentFwdEnabled || c.agent == nil {
		c.transport.ChannelOpenFail(sender, ReasonAdministrativelyProhibited, "agent forwarding not enabled")
		return
	}
	ch, err := r.accept(KindAuthAgent, sender, window, packetSize)
	if err != nil {
		return
	}
	go func() {
		_ = c.agent.Bridge(channelReadWriter{ch: ch})
	}()
}

func (r *incomingRouter) handleX11(sender, window, packetSize uint32, data []byte) {
	c := r.client
	if c.global.acceptX11 <= 0 {
		c.transport.ChannelOpenFail(sender, ReasonAdministrativelyProhibited, "x11 forwarding not enabled")
		return
	}
	originIP, off := decodeSSHString(data, 0)
	originPort := decodeUint32(data[off:])
	info := X11Info{OriginIP: originIP, OriginPort: originPort}
	if c.Events.OnX11 == nil {
		c.transport.ChannelOpenFail(sender, ReasonAdministrativelyProhibited, "no handler installed")
		return
	}
	accept, reject := r.acceptReject(KindX11, sender, window, packetSize)
	c.Events.OnX11(info, accept, reject)
}

// acceptReject builds the (accept, reject) pair handed to user events
// (spec §4.9: "accept() allocates the local id, materializes a
// Channel, updates the manager, and emits CHANNEL_OPEN_CONFIRMATION...
// reject() emits CHANNEL_OPEN_FAILURE with the chosen reason").
func (r *incomingRouter) acceptReject(kind ChannelKind, sender, window, packetSize uint32) (func() (*Channel, error), func(reason ChannelOpenFailureReason)) {
	accept := func() (*Channel, error) { return r.accept(kind, sender, window, packetSize) }
	reject := func(reason ChannelOpenFailureReason) {
		r.client.transport.ChannelOpenFail(sender, reason, "")
	}
	return accept, reject
}

func (r *incomingRouter) accept(kind ChannelKind, sender, window, packetSize uint32) (*Channel, error) {
	c := r.client
	ch := newChannel(c.channels, 0, kind)
	ch.bind(sender, window, packetSize)
	localID, ok := c.channels.reserveLive(ch)
	if !ok {
		c.transport.ChannelOpenFail(sender, ReasonResourceShortage, "too many open channels")
		return nil, newErrorf(LevelProtocol, "no free channel id")
	}
	c.transport.ChannelOpenConfirm(sender, localID, MaxWindow, PacketSize)
	return ch, nil
}

// handleGlobalRequest answers any global request the server sends us.
// The client role never solicits these; the only correct behavior for
// an unrecognized one is to fail it when a reply was requested (spec §4.2's Transport.RequestFailure doc).
func (r *incomingRouter) handleGlobalRequest(name string, wantReply bool, data []byte) {
	if wantReply {
		r.client.transport.RequestFailure()
	}
}

// lookupTCPForwarding implements the destPort-rewrite rule for
// dynamically-allocated (port 0) forwardings (spec §4.8/§4.9): a
// direct match on the CHANNEL_OPEN's own destPort is tried first, then
// a fallback to any "addr:0" entry whose recorded real port matches.
func lookupTCPForwarding(table map[string]uint32, destIP string, destPort uint32) (uint32, bool) {
	key := fmt.Sprintf("%s:%d", destIP, destPort)
	if real, ok := table[key]; ok {
		return real, true
	}
	zeroKey := fmt.Sprintf("%s:0", destIP)
	if real, ok := table[zeroKey]; ok && real == destPort {
		return real, true
	}
	return 0, false
}

// channelReadWriter adapts a Channel's primary substream to
// io.ReadWriter for the agent Bridge (spec §4.9).
type channelReadWriter struct {
	ch *Channel
}

func (w channelReadWriter) Read(p []byte) (int, error)  { return w.ch.Stdout().Read(p) }
func (w channelReadWriter) Write(p []byte) (int, error) { return w.ch.Write(p) }

var _ io.ReadWriter = channelReadWriter{}
