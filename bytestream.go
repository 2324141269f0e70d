package sshclient

import (
	"context"
	"net"
	"strconv"
	"time"
)

// ByteStream is the duplex octet stream collaborator (spec §4.1/§6).
// A caller may hand one in directly (Config.Stream) to bypass dialing,
// or let dialByteStream build one from Config.Host/Port.
//
// Events are delivered through the StreamEvents returned by Start,
// rather than as registered callbacks, so that a single select loop
// (the Client's driver, see driver.go) is the only place that ever
// touches core state — the Go-idiomatic rendering of "funnel events
// through a single executor" (spec §5). This generalizes the plain
// dial-and-wrap in the teacher's ssh_internal.go
// (newSSHClientInternal) into an explicit, pluggable interface.
type ByteStream interface {
	Write(p []byte) (int, error)
	Writable() bool
	SetNoDelay(on bool) error
	SetTimeout(d time.Duration) error
	// End half-closes the stream (no more writes); a well-behaved
	// implementation still delivers any already-buffered inbound data.
	End() error
	// Destroy hard-closes the stream immediately.
	Destroy() error
	// Events returns the channel StreamEvents are delivered on. A
	// connect event (or an immediate close, on dial failure) must be
	// the first thing ever sent.
	Events() <-chan StreamEvent
}

// StreamEventKind tags a StreamEvent.
type StreamEventKind int

// Kinds of stream event, matching spec §4.1's event list.
const (
	StreamConnect StreamEventKind = iota
	StreamData
	StreamTimeout
	StreamError
	StreamEnd
	StreamClose
)

// StreamEvent is one event off the byte stream.
type StreamEvent struct {
	Kind StreamEventKind
	Data []byte
	Err  error
}

// tcpByteStream is the default ByteStream, backed by net.Conn.
type tcpByteStream struct {
	conn      net.Conn
	writable  bool
	events    chan StreamEvent
	closeOnce chan struct{}
}

// dialByteStream implements the Adapter's dial step (spec §4.1): when
// neither ForceV4 nor ForceV6 (or both) is set, dial by hostname
// directly; otherwise resolve to the requested family first, then
// dial by address. DNS resolution failure is returned as a client-dns
// error; no stream is built, so no close event is delivered for it.
func dialByteStream(ctx context.Context, cfg *Config) (*tcpByteStream, error) {
	network := "tcp"
	addr := net.JoinHostPort(cfg.Host, portString(cfg.Port))

	if cfg.ForceFamily == FamilyV4 || cfg.ForceFamily == FamilyV6 {
		resolveNetwork := "ip4"
		if cfg.ForceFamily == FamilyV6 {
			resolveNetwork = "ip6"
		}
		ipAddr, err := net.DefaultResolver.LookupIP(ctx, resolveNetwork, cfg.Host)
		if err != nil || len(ipAddr) == 0 {
			if err == nil {
				err = errNoAddresses
			}
			return nil, newError(LevelClientDNS, err, "resolving "+cfg.Host)
		}
		addr = net.JoinHostPort(ipAddr[0].String(), portString(cfg.Port))
		network = "tcp4"
		if cfg.ForceFamily == FamilyV6 {
			network = "tcp6"
		}
	}

	dialer := &net.Dialer{}
	if cfg.LocalAddress != "" || cfg.LocalPort != 0 {
		dialer.LocalAddr = &net.TCPAddr{
			IP:   net.ParseIP(cfg.LocalAddress),
			Port: cfg.LocalPort,
		}
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, newError(LevelClientSocket, err, "dialing "+addr)
	}
	return newTCPByteStream(conn), nil
}

var errNoAddresses = &Error{Level: LevelClientDNS, cause: errNoAddrCause{}}

type errNoAddrCause struct{}

func (errNoAddrCause) Error() string { return "no addresses found for forced family" }

func portString(p int) string {
	if p == 0 {
		p = 22
	}
	return strconv.Itoa(p)
}

func newTCPByteStream(conn net.Conn) *tcpByteStream {
	s := &tcpByteStream{
		conn:      conn,
		writable:  true,
		events:    make(chan StreamEvent, 64),
		closeOnce: make(chan struct{}),
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	go s.readLoop()
	return s
}

func (s *tcpByteStream) readLoop() {
	s.events <- StreamEvent{Kind: StreamConnect}
	buf := make([]byte, 32*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			s.events <- StreamEvent{Kind: StreamData, Data: cp}
		}
		if err != nil {
			s.writable = false
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.events <- StreamEvent{Kind: StreamTimeout}
				continue
			}
			if err.Error() != "EOF" {
				s.events <- StreamEvent{Kind: StreamError, Err: err}
			}
			s.events <- StreamEvent{Kind: StreamEnd}
			s.events <- StreamEvent{Kind: StreamClose}
			close(s.events)
			return
		}
	}
}

// Events returns the channel the driver selects on.
func (s *tcpByteStream) Events() <-chan StreamEvent { return s.events }

func (s *tcpByteStream) Write(p []byte) (int, error) {
	if !s.writable {
		return 0, newErrorf(LevelClientSocket, "stream not writable")
	}
	return s.conn.Write(p)
}

func (s *tcpByteStream) Writable() bool { return s.writable }

func (s *tcpByteStream) SetNoDelay(on bool) error {
	if tc, ok := s.conn.(*net.TCPConn); ok {
		return tc.SetNoDelay(on)
	}
	return nil
}

func (s *tcpByteStream) SetTimeout(d time.Duration) error {
	if d == 0 {
		return s.conn.SetDeadline(time.Time{})
	}
	return s.conn.SetDeadline(time.Now().Add(d))
}

func (s *tcpByteStream) End() error {
	s.writable = false
	if tc, ok := s.conn.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	return s.conn.Close()
}

func (s *tcpByteStream) Destroy() error {
	s.writable = false
	return s.conn.Close()
}
