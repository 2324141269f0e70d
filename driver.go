package sshclient

// driver is the Transport Driver (spec §4.2): it wraps the Transport
// collaborator and routes every protocol event it raises to the
// relevant core component. Because Client.handleStreamEvent always
// calls Transport.Parse (and hence every driver method below) from the
// single driver goroutine, these methods mutate core state directly —
// no further posting is needed here, only from things that originate
// off that goroutine (see client.go's post/run).
type driver struct {
	client *Client
}

func (d *driver) OnHeader(greeting string) {
	c := d.client
	c.sawIdentification = true
	c.log.Debugf("server identification: %s", greeting)
	c.remoteIdentification = greeting
	if c.Events.OnGreeting != nil {
		c.Events.OnGreeting(greeting)
	}
}

func (d *driver) OnHandshakeComplete(info HandshakeInfo) {
	c := d.client
	if c.Events.OnHandshake != nil {
		c.Events.OnHandshake(info)
	}
	c.transport.Service("ssh-userauth")
}

func (d *driver) OnServiceAccept(name string) {
	if name == "ssh-userauth" {
		d.client.auth.tryNextAuth()
	}
}

func (d *driver) OnBanner(message string) {
	if d.client.Events.OnBanner != nil {
		d.client.Events.OnBanner(message)
	}
}

func (d *driver) OnUserauthFailure(methodsLeft []string, partialSuccess bool) {
	d.client.auth.onFailure(methodsLeft, partialSuccess)
}

func (d *driver) OnUserauthSuccess() {
	c := d.client
	c.keepalive.resetOnLiveness()
	c.cancelReadyTimeout()
	c.auth.onSuccess()
	c.keepalive.start()
	if c.Events.OnReady != nil {
		c.Events.OnReady()
	}
}

func (d *driver) OnUserauthPasswdChangereq(prompt string) {
	d.client.auth.onPasswdChangeReq(prompt)
}

func (d *driver) OnUserauthPKOK(key PublicKey) {
	d.client.auth.onPKOK(key)
}

func (d *driver) OnUserauthInfoRequest(name, instructions string, prompts []Prompt) {
	d.client.auth.onInfoRequest(name, instructions, prompts)
}

func (d *driver) OnGlobalRequest(name string, wantReply bool, data []byte) {
	d.client.incoming.handleGlobalRequest(name, wantReply, data)
}

func (d *driver) OnRequestSuccess(data []byte) {
	d.client.keepalive.resetOnLiveness()
	d.client.global.handleReply(false, data)
}

func (d *driver) OnRequestFailure() {
	d.client.keepalive.resetOnLiveness()
	d.client.global.handleReply(true, nil)
}

func (d *driver) OnChannelOpen(kind string, senderChannel, window, packetSize uint32, data []byte) {
	d.client.incoming.handleOpen(kind, senderChannel, window, packetSize, data)
}

func (d *driver) OnChannelOpenConfirmation(localID, remoteID, window, packetSize uint32) {
	c := d.client
	c.keepalive.resetOnLiveness()
	slot, ok := c.channels.get(localID)
	if !ok || slot.kind != slotPending || slot.pending == nil || slot.pending.onConfirm == nil {
		return
	}
	ch := slot.pending.onConfirm(remoteID, window, packetSize)
	c.channels.update(localID, ch)
}

func (d *driver) OnChannelOpenFailure(localID uint32, reason ChannelOpenFailureReason, description string) {
	c := d.client
	c.keepalive.resetOnLiveness()
	slot, ok := c.channels.get(localID)
	if !ok || slot.kind != slotPending {
		return
	}
	c.channels.remove(localID)
	if slot.pending != nil && slot.pending.onFailure != nil {
		slot.pending.onFailure(newErrorf(LevelProtocol, "(SSH) Channel open failure: reason=%d, description=%q", reason, description))
	}
}

func (d *driver) OnChannelData(localID uint32, data []byte) {
	if ch := d.client.liveChannel(localID); ch != nil {
		ch.handleData(data, false)
	}
}

func (d *driver) OnChannelExtendedData(localID uint32, dataType uint32, data []byte) {
	if ch := d.client.liveChannel(localID); ch != nil {
		ch.handleExtendedData(dataType, data)
	}
}

func (d *driver) OnChannelWindowAdjust(localID uint32, bytesToAdd uint32) {
	if ch := d.client.liveChannel(localID); ch != nil {
		ch.handleWindowAdjust(bytesToAdd)
	}
}

func (d *driver) OnChannelEOF(localID uint32) {
	if ch := d.client.liveChannel(localID); ch != nil {
		ch.handleEOF()
	}
}

func (d *driver) OnChannelClose(localID uint32) {
	if ch := d.client.liveChannel(localID); ch != nil {
		ch.handleClose()
	}
}

func (d *driver) OnChannelRequest(localID uint32, kind string, wantReply bool, data []byte) {
	if ch := d.client.liveChannel(localID); ch != nil {
		ch.handleRequest(kind, wantReply, data)
	}
}

func (d *driver) OnChannelSuccess(localID uint32) {
	d.client.keepalive.resetOnLiveness()
	if ch := d.client.liveChannel(localID); ch != nil {
		ch.handleRequestReply(false)
	}
}

func (d *driver) OnChannelFailure(localID uint32) {
	d.client.keepalive.resetOnLiveness()
	if ch := d.client.liveChannel(localID); ch != nil {
		ch.handleRequestReply(true)
	}
}

func (d *driver) OnDebug(alwaysDisplay bool, message string) {
	d.client.log.Debugf("peer debug: %s", message)
}

func (d *driver) OnDisconnect(reason uint32, description string) {
	c := d.client
	if reason != DisconnectByApplication {
		c.emitError(disconnectError(reason, description))
	}
	if c.stream != nil {
		_ = c.stream.End()
	}
}

func (d *driver) OnError(err error) {
	c := d.client
	if lvlErr, ok := err.(*Error); ok && lvlErr.Level == LevelHandshake {
		c.cancelReadyTimeout()
	}
	c.emitError(err)
}

func (c *Client) liveChannel(id uint32) *Channel {
	slot, ok := c.channels.get(id)
	if !ok || slot.kind != slotLive {
		return nil
	}
	return slot.channel
}
