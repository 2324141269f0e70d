package sshclient

import (
	"context"
	"sync"
	"time"
)

// fakeCall records one Transport method invocation for assertions.
// Not every field is populated by every call; see each method below.
type fakeCall struct {
	name string
	user string
	str1 string
	str2 string
	u1   uint32
	u2   uint32
	key  PublicKey
	sign SignFunc
	data []byte
}

// fakeTransport is a hand-rolled stand-in for the framed-transport
// collaborator, in the spirit of the teacher's mockSSHClient
// (sftp_internal_test.go): the minimal set of no-op/recording methods
// needed to drive the core through its paces without a real wire.
type fakeTransport struct {
	mu     sync.Mutex
	calls  chan fakeCall
	compat CompatFlags
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(chan fakeCall, 256)}
}

func (f *fakeTransport) record(c fakeCall) {
	f.calls <- c
}

// next waits briefly for the next recorded call, for use from tests.
func (f *fakeTransport) next(timeout time.Duration) (fakeCall, bool) {
	select {
	case c := <-f.calls:
		return c, true
	case <-time.After(timeout):
		return fakeCall{}, false
	}
}

func (f *fakeTransport) Parse(b []byte) error { return nil }
func (f *fakeTransport) Cleanup()             {}
func (f *fakeTransport) Service(name string)  { f.record(fakeCall{name: "Service", str1: name}) }

func (f *fakeTransport) AuthNone(user string) { f.record(fakeCall{name: "AuthNone", user: user}) }
func (f *fakeTransport) AuthPassword(user, password, newPassword string) {
	f.record(fakeCall{name: "AuthPassword", user: user, str1: password, str2: newPassword})
}
func (f *fakeTransport) AuthPK(user string, key PublicKey, sign SignFunc) {
	f.record(fakeCall{name: "AuthPK", user: user, key: key, sign: sign})
}
func (f *fakeTransport) AuthKeyboard(user string) {
	f.record(fakeCall{name: "AuthKeyboard", user: user})
}
func (f *fakeTransport) AuthHostbased(user string, key PublicKey, localHostname, localUsername string, sign SignFunc) {
	f.record(fakeCall{name: "AuthHostbased", user: user, str1: localHostname, str2: localUsername, key: key, sign: sign})
}
func (f *fakeTransport) AuthInfoResponse(answers []string) {
	f.record(fakeCall{name: "AuthInfoResponse"})
}

func (f *fakeTransport) Ping()                               { f.record(fakeCall{name: "Ping"}) }
func (f *fakeTransport) Disconnect(reason uint32, desc string) { f.record(fakeCall{name: "Disconnect", u1: reason, str1: desc}) }
func (f *fakeTransport) RequestFailure()                     { f.record(fakeCall{name: "RequestFailure"}) }

func (f *fakeTransport) TCPIPForward(addr string, port uint32, wantReply bool) {
	f.record(fakeCall{name: "TCPIPForward", str1: addr, u1: port})
}
func (f *fakeTransport) CancelTCPIPForward(addr string, port uint32, wantReply bool) {
	f.record(fakeCall{name: "CancelTCPIPForward", str1: addr, u1: port})
}
func (f *fakeTransport) OpenSSHNoMoreSessions(wantReply bool) {
	f.record(fakeCall{name: "OpenSSHNoMoreSessions"})
}
func (f *fakeTransport) OpenSSHStreamLocalForward(path string, wantReply bool) {
	f.record(fakeCall{name: "OpenSSHStreamLocalForward", str1: path})
}
func (f *fakeTransport) OpenSSHCancelStreamLocalForward(path string, wantReply bool) {
	f.record(fakeCall{name: "OpenSSHCancelStreamLocalForward", str1: path})
}

func (f *fakeTransport) Session(localID uint32, window, packetSize uint32) {
	f.record(fakeCall{name: "Session", u1: localID})
}
func (f *fakeTransport) DirectTCPIP(localID uint32, window, packetSize uint32, d DirectTCPIPParams) {
	f.record(fakeCall{name: "DirectTCPIP", u1: localID})
}
func (f *fakeTransport) OpenSSHDirectStreamLocal(localID uint32, window, packetSize uint32, d DirectStreamLocalParams) {
	f.record(fakeCall{name: "OpenSSHDirectStreamLocal", u1: localID})
}

func (f *fakeTransport) ChannelOpenConfirm(remoteID, localID, window, packetSize uint32) {
	f.record(fakeCall{name: "ChannelOpenConfirm", u1: remoteID, u2: localID})
}
func (f *fakeTransport) ChannelOpenFail(remoteID uint32, reason ChannelOpenFailureReason, description string) {
	f.record(fakeCall{name: "ChannelOpenFail", u1: remoteID, u2: uint32(reason), str1: description})
}

func (f *fakeTransport) Pty(chanID uint32, rows, cols, height, width uint32, term string, modes []byte, wantReply bool) {
	f.record(fakeCall{name: "Pty", u1: chanID})
}
func (f *fakeTransport) X11Forward(chanID uint32, cfg X11Config, wantReply bool) {
	f.record(fakeCall{name: "X11Forward", u1: chanID})
}
func (f *fakeTransport) Env(chanID uint32, key, val string) {
	f.record(fakeCall{name: "Env", u1: chanID, str1: key, str2: val})
}
func (f *fakeTransport) Shell(chanID uint32, wantReply bool) {
	f.record(fakeCall{name: "Shell", u1: chanID})
}
func (f *fakeTransport) Exec(chanID uint32, cmd string, wantReply bool) {
	f.record(fakeCall{name: "Exec", u1: chanID, str1: cmd})
}
func (f *fakeTransport) Subsystem(chanID uint32, name string, wantReply bool) {
	f.record(fakeCall{name: "Subsystem", u1: chanID, str1: name})
}
func (f *fakeTransport) OpenSSHAgentForward(chanID uint32, wantReply bool) {
	f.record(fakeCall{name: "OpenSSHAgentForward", u1: chanID})
}

func (f *fakeTransport) ChannelData(remoteID uint32, data []byte) {
	f.record(fakeCall{name: "ChannelData", u1: remoteID, data: data})
}
func (f *fakeTransport) ChannelExtendedData(remoteID uint32, dataType uint32, data []byte) {
	f.record(fakeCall{name: "ChannelExtendedData", u1: remoteID, u2: dataType, data: data})
}
func (f *fakeTransport) ChannelWindowAdjust(remoteID, bytesToAdd uint32) {
	f.record(fakeCall{name: "ChannelWindowAdjust", u1: remoteID, u2: bytesToAdd})
}
func (f *fakeTransport) ChannelEOF(remoteID uint32)   { f.record(fakeCall{name: "ChannelEOF", u1: remoteID}) }
func (f *fakeTransport) ChannelClose(remoteID uint32) { f.record(fakeCall{name: "ChannelClose", u1: remoteID}) }
func (f *fakeTransport) ChannelSuccess(remoteID uint32) {
	f.record(fakeCall{name: "ChannelSuccess", u1: remoteID})
}
func (f *fakeTransport) ChannelFailure(remoteID uint32) {
	f.record(fakeCall{name: "ChannelFailure", u1: remoteID})
}

func (f *fakeTransport) CompatFlags() CompatFlags { return f.compat }

// fakeStream is a controllable ByteStream for driving Client through a
// whole lifecycle without a real socket.
type fakeStream struct {
	mu       sync.Mutex
	writable bool
	events   chan StreamEvent
	written  [][]byte
}

func newFakeStream() *fakeStream {
	return &fakeStream{writable: true, events: make(chan StreamEvent, 256)}
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	s.written = append(s.written, cp)
	return len(p), nil
}

func (s *fakeStream) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

func (s *fakeStream) SetNoDelay(bool) error            { return nil }
func (s *fakeStream) SetTimeout(time.Duration) error   { return nil }
func (s *fakeStream) Events() <-chan StreamEvent       { return s.events }

func (s *fakeStream) End() error {
	s.mu.Lock()
	s.writable = false
	s.mu.Unlock()
	s.events <- StreamEvent{Kind: StreamEnd}
	return nil
}

func (s *fakeStream) Destroy() error {
	s.mu.Lock()
	s.writable = false
	s.mu.Unlock()
	s.events <- StreamEvent{Kind: StreamClose}
	return nil
}

func (s *fakeStream) push(ev StreamEvent) { s.events <- ev }

// drive runs fn synchronously on c's driver goroutine, the way a real
// TransportSink event would arrive, then waits for it to finish — the
// synchronization primitive every test below uses to simulate inbound
// protocol events without racing the driver goroutine.
func drive(c *Client, fn func()) {
	done := make(chan struct{})
	c.post(func() {
		fn()
		close(done)
	})
	<-done
}

// newTestClient wires a Client to a fresh fakeTransport/fakeStream pair
// and starts it, without performing any real handshake — tests drive
// protocol events directly via the driver (same package, unexported
// fields reachable) or via the fake stream's events channel.
func newTestClient(cfg Config) (*Client, *fakeTransport, *fakeStream) {
	ft := newFakeTransport()
	fs := newFakeStream()
	cfg.Stream = fs
	c := NewClient(ft)
	_ = c.Connect(context.Background(), cfg)
	fs.push(StreamEvent{Kind: StreamConnect})
	return c, ft, fs
}
