package sshclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChannelWindowExhaustionAndResume mirrors spec scenario 3: a
// 25-byte write against a 10-byte outgoing window sends 10 immediately,
// retains 15, and flushes the remainder once WINDOW_ADJUST(+20) arrives.
func TestChannelWindowExhaustionAndResume(t *testing.T) {
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	c, ft, _ := newTestClient(cfg)

	var ch *Channel
	drive(c, func() {
		ch = newChannel(c.channels, 0, KindSession)
		ch.bind(7, 10, PacketSize)
		c.channels.reserveLive(ch)
	})

	writeDone := make(chan struct{})
	payload := make([]byte, 25)
	for i := range payload {
		payload[i] = byte(i)
	}
	go func() {
		n, err := ch.Write(payload)
		assert.NoError(t, err)
		assert.Equal(t, 25, n)
		close(writeDone)
	}()

	call, ok := ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "ChannelData", call.name)
	assert.Len(t, call.data, 10)

	select {
	case <-writeDone:
		t.Fatal("write should not complete until the remainder is flushed")
	case <-time.After(50 * time.Millisecond):
	}

	drive(c, func() {
		ch.handleWindowAdjust(20)
	})

	call, ok = ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "ChannelData", call.name)
	assert.Len(t, call.data, 15)

	select {
	case <-writeDone:
	case <-time.After(time.Second):
		t.Fatal("write did not complete after window adjust")
	}

	drive(c, func() {
		// 10 + 20 window budget, 25 bytes sent: 5 left over, nothing retained.
		assert.Equal(t, uint32(5), ch.outgoingWindow)
		assert.Nil(t, ch.pendingWrite)
	})
}

// TestChannelRequestFIFOOrder checks that per-channel request replies
// are delivered to callbacks in submission order (spec §8 invariant).
func TestChannelRequestFIFOOrder(t *testing.T) {
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	c, _, _ := newTestClient(cfg)

	var ch *Channel
	drive(c, func() {
		ch = newChannel(c.channels, 0, KindSession)
		ch.bind(1, MaxWindow, PacketSize)
	})

	var order []int
	drive(c, func() {
		ch.enqueueRequest(func(failed bool) { order = append(order, 1) })
		ch.enqueueRequest(func(failed bool) { order = append(order, 2) })
		ch.enqueueRequest(func(failed bool) { order = append(order, 3) })
	})

	drive(c, func() { ch.handleRequestReply(false) })
	drive(c, func() { ch.handleRequestReply(false) })
	drive(c, func() { ch.handleRequestReply(false) })

	drive(c, func() {
		assert.Equal(t, []int{1, 2, 3}, order)
	})
}
