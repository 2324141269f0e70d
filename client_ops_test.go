package sshclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func encodeSSHString(s string) []byte {
	b := make([]byte, 0, 4+len(s))
	b = append(b, encodeUint32(uint32(len(s)))...)
	b = append(b, s...)
	return b
}

// TestForwardInDynamicPortRoundTrip mirrors spec scenario 4: a
// forwardIn with requested port 0 resolves to the server-assigned
// port, and a later forwarded-tcpip open for that port is routed to
// the tcp connection event.
func TestForwardInDynamicPortRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	c, ft, _ := newTestClient(cfg)

	var resolvedPort uint32
	var resolveErr error
	done := make(chan struct{})
	err := c.ForwardIn("0.0.0.0", 0, func(realPort uint32, err error) {
		resolvedPort, resolveErr = realPort, err
		close(done)
	})
	require.NoError(t, err)

	call, ok := ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "TCPIPForward", call.name)
	assert.Equal(t, "0.0.0.0", call.str1)
	assert.Equal(t, uint32(0), call.u1)

	drive(c, func() {
		c.driver.OnRequestSuccess(encodeUint32(8080))
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwardIn callback never fired")
	}
	require.NoError(t, resolveErr)
	assert.Equal(t, uint32(8080), resolvedPort)

	var gotInfo ForwardedTCPInfo
	tcpDone := make(chan struct{})
	c.Events.OnTCPConnection = func(info ForwardedTCPInfo, accept func() (*Channel, error), reject func(reason ChannelOpenFailureReason)) {
		gotInfo = info
		_, acceptErr := accept()
		assert.NoError(t, acceptErr)
		close(tcpDone)
	}

	payload := append(append([]byte{}, encodeSSHString("0.0.0.0")...), encodeUint32(8080)...)
	payload = append(payload, encodeSSHString("1.2.3.4")...)
	payload = append(payload, encodeUint32(5555)...)

	drive(c, func() {
		c.driver.OnChannelOpen("forwarded-tcpip", 42, MaxWindow, PacketSize, payload)
	})

	select {
	case <-tcpDone:
	case <-time.After(time.Second):
		t.Fatal("tcp connection event never fired")
	}
	assert.Equal(t, "0.0.0.0", gotInfo.DestIP)
	assert.Equal(t, uint32(8080), gotInfo.DestPort)
	assert.Equal(t, "1.2.3.4", gotInfo.OriginIP)
	assert.Equal(t, uint32(5555), gotInfo.OriginPort)

	call, ok = ft.next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "ChannelOpenConfirm", call.name)
	assert.Equal(t, uint32(42), call.u1)
}

// TestKeepaliveTimeout mirrors spec scenario 6: after keepaliveCountMax
// unanswered pings, a client-timeout error fires and the stream is destroyed.
func TestKeepaliveTimeout(t *testing.T) {
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	cfg.KeepaliveInterval = 15 * time.Millisecond
	cfg.KeepaliveCountMax = 3

	c, ft, fs := newTestClient(cfg)

	var mu sync.Mutex
	var gotErr error
	c.Events.OnError = func(err error) {
		mu.Lock()
		gotErr = err
		mu.Unlock()
	}

	drive(c, func() { c.driver.OnUserauthSuccess() })

	pings := 0
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if call, ok := ft.next(200 * time.Millisecond); ok && call.name == "Ping" {
			pings++
		}
		mu.Lock()
		done := gotErr != nil
		mu.Unlock()
		if done {
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, gotErr)
	lvlErr, ok := gotErr.(*Error)
	require.True(t, ok)
	assert.Equal(t, LevelClientTimeout, lvlErr.Level)
	assert.Equal(t, 3, pings)
	assert.False(t, fs.Writable())
}

// TestEndDestroyIdempotent checks End()/Destroy() can be called
// repeatedly without duplicate wire effects (spec §8 idempotence invariant).
func TestEndDestroyIdempotent(t *testing.T) {
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	c, ft, fs := newTestClient(cfg)

	c.End()
	call, ok := ft.next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "Disconnect", call.name)
	assert.False(t, fs.Writable())

	c.End()
	_, ok = ft.next(100 * time.Millisecond)
	assert.False(t, ok, "second End() must not re-send Disconnect")

	c.Destroy()
	c.Destroy()
}

// TestTeardownFiresOnEndOnce mirrors a real disconnect: the byte
// stream always emits StreamEnd immediately followed by StreamClose,
// and OnEnd must fire exactly once across both (spec §4.11/§6), while
// OnClose still fires once for the close itself.
func TestTeardownFiresOnEndOnce(t *testing.T) {
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	c, _, fs := newTestClient(cfg)

	endCount, closeCount := 0, 0
	c.Events.OnEnd = func() { endCount++ }
	c.Events.OnClose = func() { closeCount++ }

	fs.push(StreamEvent{Kind: StreamEnd})
	fs.push(StreamEvent{Kind: StreamClose})

	// The driver goroutine stops after handling StreamClose, so wait for
	// it to stop rather than posting more work to it.
	select {
	case <-c.stopped:
	case <-time.After(time.Second):
		t.Fatal("client did not stop after StreamClose")
	}

	assert.Equal(t, 1, endCount)
	assert.Equal(t, 1, closeCount)
}

// TestExecChannelEvents checks that Exec's SessionOptions.Events
// surface is actually wired: exit-status and the server's CHANNEL_CLOSE
// reach the registered callbacks (spec §4.5).
func TestExecChannelEvents(t *testing.T) {
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	c, ft, _ := newTestClient(cfg)

	var gotExit *ExitRecord
	closed := false
	var ch *Channel
	execDone := make(chan struct{})

	err := c.Exec("ls", SessionOptions{
		Events: ChannelEvents{
			OnExit:  func(e *ExitRecord) { gotExit = e },
			OnClose: func() { closed = true },
		},
	}, func(gotCh *Channel, err error) {
		require.NoError(t, err)
		ch = gotCh
		close(execDone)
	})
	require.NoError(t, err)

	call, ok := ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "Session", call.name)
	localID := call.u1

	drive(c, func() {
		c.driver.OnChannelOpenConfirmation(localID, 99, MaxWindow, PacketSize)
	})

	call, ok = ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "Exec", call.name)

	drive(c, func() { c.driver.OnChannelSuccess(localID) })

	select {
	case <-execDone:
	case <-time.After(time.Second):
		t.Fatal("exec callback never fired")
	}
	require.NotNil(t, ch)

	drive(c, func() {
		c.driver.OnChannelRequest(localID, "exit-status", false, encodeUint32(0))
	})
	require.NotNil(t, gotExit)
	assert.Equal(t, uint32(0), *gotExit.Code)

	drive(c, func() { c.driver.OnChannelClose(localID) })
	assert.True(t, closed)
}

// TestAgentForwardLatchesOnSuccess checks that agentFwdEnabled/acceptX11
// are driven by actual per-channel CHANNEL_SUCCESS replies rather than
// static config (spec §3: "latched true after first successful request").
func TestAgentForwardLatchesOnSuccess(t *testing.T) {
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	c, ft, _ := newTestClient(cfg)

	assert.False(t, c.global.agentFwdEnabled)

	// Agent forwarding is only requested when an agent is attached.
	drive(c, func() { c.agent = &systemAgent{} })

	err := c.Shell(SessionOptions{AgentForward: true, NoPTY: true}, func(ch *Channel, err error) {})
	require.NoError(t, err)

	call, ok := ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "Session", call.name)
	localID := call.u1

	drive(c, func() {
		c.driver.OnChannelOpenConfirmation(localID, 50, MaxWindow, PacketSize)
	})

	call, ok = ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "OpenSSHAgentForward", call.name)

	drive(c, func() {
		assert.False(t, c.global.agentFwdEnabled, "must not latch before CHANNEL_SUCCESS")
	})

	drive(c, func() { c.driver.OnChannelSuccess(localID) })

	drive(c, func() {
		assert.True(t, c.global.agentFwdEnabled)
	})
}
