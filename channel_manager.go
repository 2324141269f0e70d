package sshclient

// slotKind distinguishes what occupies a Channel Manager slot (spec §3/§4.4).
type slotKind int

const (
	slotVacant slotKind = iota
	slotPending
	slotLive
)

// openContinuation is what a slotPending slot holds: onConfirm builds
// and binds the live Channel once CHANNEL_OPEN_CONFIRMATION arrives;
// onFailure is invoked instead on CHANNEL_OPEN_FAILURE or on teardown.
type openContinuation struct {
	onConfirm func(remoteID, window, packetSize uint32) *Channel
	onFailure func(err error)
}

type channelSlot struct {
	kind    slotKind
	pending *openContinuation
	channel *Channel
}

// maxChannels bounds local-id allocation; the spec leaves the policy
// "unspecified beyond dense, reusable small integers" so this is
// simply a generous ceiling against runaway allocation, not a
// protocol requirement.
const maxChannels = 1 << 20

// channelManager allocates local channel ids and tracks their slots
// (spec §4.4). Grounded on the pooled-connection bookkeeping in the
// teacher's sftp.go (sftpConnection/getSftpConnection/
// putSftpConnection): a dense table of live-or-not entries with a
// reuse path, generalized from "pool of SFTP connections" to "table of
// multiplexed channels by local id".
type channelManager struct {
	client *Client
	slots  []channelSlot
}

func newChannelManager(c *Client) *channelManager {
	return &channelManager{client: c}
}

// add reserves the smallest free id and installs pending as its
// continuation. ok is false when the manager is exhausted.
func (m *channelManager) add(pending *openContinuation) (id uint32, ok bool) {
	for i := range m.slots {
		if m.slots[i].kind == slotVacant {
			m.slots[i] = channelSlot{kind: slotPending, pending: pending}
			return uint32(i), true
		}
	}
	if len(m.slots) >= maxChannels {
		return 0, false
	}
	m.slots = append(m.slots, channelSlot{kind: slotPending, pending: pending})
	return uint32(len(m.slots) - 1), true
}

// reserveLive is used by the Incoming Channel Router, which never has
// a "pending continuation" phase: the Channel exists the moment the
// id is allocated (spec §4.9's accept()).
func (m *channelManager) reserveLive(ch *Channel) (id uint32, ok bool) {
	for i := range m.slots {
		if m.slots[i].kind == slotVacant {
			ch.LocalID = uint32(i)
			m.slots[i] = channelSlot{kind: slotLive, channel: ch}
			return uint32(i), true
		}
	}
	if len(m.slots) >= maxChannels {
		return 0, false
	}
	ch.LocalID = uint32(len(m.slots))
	m.slots = append(m.slots, channelSlot{kind: slotLive, channel: ch})
	return ch.LocalID, true
}

func (m *channelManager) get(id uint32) (channelSlot, bool) {
	if int(id) >= len(m.slots) {
		return channelSlot{}, false
	}
	s := m.slots[id]
	if s.kind == slotVacant {
		return channelSlot{}, false
	}
	return s, true
}

// update replaces a pending continuation with the now-live channel
// (spec §4.4), invoked once CHANNEL_OPEN_CONFIRMATION arrives.
func (m *channelManager) update(id uint32, ch *Channel) {
	if int(id) >= len(m.slots) {
		return
	}
	if ch != nil {
		ch.LocalID = id
	}
	m.slots[id] = channelSlot{kind: slotLive, channel: ch}
}

// remove releases an id once both directions are closed.
func (m *channelManager) remove(id uint32) {
	if int(id) >= len(m.slots) {
		return
	}
	m.slots[id] = channelSlot{kind: slotVacant}
}

// cleanup implements the teardown broadcast (spec §4.4/§4.11): pending
// continuations are invoked with err; live channels are force-closed.
func (m *channelManager) cleanup(err error) {
	for i := range m.slots {
		switch m.slots[i].kind {
		case slotPending:
			cont := m.slots[i].pending
			m.slots[i] = channelSlot{kind: slotVacant}
			if cont != nil && cont.onFailure != nil {
				cont.onFailure(err)
			}
		case slotLive:
			ch := m.slots[i].channel
			m.slots[i] = channelSlot{kind: slotVacant}
			if ch != nil {
				ch.forceClose(err)
			}
		}
	}
}
