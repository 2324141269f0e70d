package sshclient

// Transport is the framed-SSH-transport collaborator (spec §6): packet
// encode/decode, key exchange, ciphers, MAC, compression, and host-key
// verification are assumed to live behind it. The core in this module
// never touches wire bytes directly; it only calls these methods and
// reacts to the events delivered through TransportSink.
//
// This mirrors the sshClient/sshSession split in the teacher's ssh.go:
// an interface here, any number of concrete implementations supplied
// by the caller (a real framed transport in production, a fake in
// tests — see transport_test.go for the fake used throughout this
// package's own test suite).
type Transport interface {
	// Parse feeds inbound bytes read from the byte stream. Implementations
	// deliver parsed protocol events through a TransportSink (implemented
	// by this package's driver, see driver.go); this package exports no
	// constructor that hands that sink to a Transport. Parse must never block.
	Parse(b []byte) error

	// Cleanup releases any transport-held resources (key exchange
	// state, buffers) on connection teardown. Idempotent.
	Cleanup()

	// Service requests a service ("ssh-userauth" then later implicitly
	// "ssh-connection").
	Service(name string)

	// Authentication requests.
	AuthNone(user string)
	AuthPassword(user, password, newPassword string)
	AuthPK(user string, key PublicKey, sign SignFunc)
	AuthKeyboard(user string)
	AuthHostbased(user string, key PublicKey, localHostname, localUsername string, sign SignFunc)
	AuthInfoResponse(answers []string)

	// Ping emits a liveness probe (SSH_MSG_GLOBAL_REQUEST
	// "keepalive@openssh.com" with wantReply=true in OpenSSH's dialect).
	Ping()

	// Disconnect emits SSH_MSG_DISCONNECT with the given reason code.
	Disconnect(reason uint32, description string)

	// RequestFailure replies SSH_MSG_REQUEST_FAILURE to a global
	// request the core chose not to honor (never emitted in the
	// client role except defensively).
	RequestFailure()

	// Global requests.
	TCPIPForward(addr string, port uint32, wantReply bool)
	CancelTCPIPForward(addr string, port uint32, wantReply bool)
	OpenSSHNoMoreSessions(wantReply bool)
	OpenSSHStreamLocalForward(path string, wantReply bool)
	OpenSSHCancelStreamLocalForward(path string, wantReply bool)

	// Channel open requests.
	Session(localID uint32, window, packetSize uint32)
	DirectTCPIP(localID uint32, window, packetSize uint32, d DirectTCPIPParams)
	OpenSSHDirectStreamLocal(localID uint32, window, packetSize uint32, d DirectStreamLocalParams)

	// Channel open replies (used by the Incoming Channel Router).
	ChannelOpenConfirm(remoteID, localID, window, packetSize uint32)
	ChannelOpenFail(remoteID uint32, reason ChannelOpenFailureReason, description string)

	// Per-channel requests.
	Pty(chanID uint32, rows, cols, height, width uint32, term string, modes []byte, wantReply bool)
	X11Forward(chanID uint32, cfg X11Config, wantReply bool)
	Env(chanID uint32, key, val string)
	Shell(chanID uint32, wantReply bool)
	Exec(chanID uint32, cmd string, wantReply bool)
	Subsystem(chanID uint32, name string, wantReply bool)
	OpenSSHAgentForward(chanID uint32, wantReply bool)

	// Outbound data/window/close/request-reply, used by Channel.
	ChannelData(remoteID uint32, data []byte)
	ChannelExtendedData(remoteID uint32, dataType uint32, data []byte)
	ChannelWindowAdjust(remoteID, bytesToAdd uint32)
	ChannelEOF(remoteID uint32)
	ChannelClose(remoteID uint32)
	ChannelSuccess(remoteID uint32)
	ChannelFailure(remoteID uint32)

	// CompatFlags reports quirk bits for specific peer implementations
	// (spec §6's "_compatFlags"), e.g. CompatDynamicReplyPort.
	CompatFlags() CompatFlags
}

// CompatFlags is a bitset of known-peer compatibility quirks.
type CompatFlags uint32

// CompatDynamicReplyPort indicates the peer's REQUEST_SUCCESS reply to
// a dynamic (port 0) tcpipForward should be keyed by the *requested*
// port rather than the assigned one (spec §4.8).
const CompatDynamicReplyPort CompatFlags = 1 << 0

// ChannelOpenFailureReason is the SSH_MSG_CHANNEL_OPEN_FAILURE reason code.
type ChannelOpenFailureReason uint32

// Reasons the Incoming Channel Router can give for rejecting a channel open.
const (
	ReasonAdministrativelyProhibited ChannelOpenFailureReason = 1
	ReasonConnectFailed              ChannelOpenFailureReason = 2
	ReasonUnknownChannelType         ChannelOpenFailureReason = 3
	ReasonResourceShortage           ChannelOpenFailureReason = 4
)

// DirectTCPIPParams is the open payload for a direct-tcpip channel.
type DirectTCPIPParams struct {
	SrcIP   string
	SrcPort uint32
	DstIP   string
	DstPort uint32
}

// DirectStreamLocalParams is the open payload for an
// openssh.com direct-streamlocal channel.
type DirectStreamLocalParams struct {
	SocketPath string
}

// X11Config describes an X11Forward request.
type X11Config struct {
	Single      bool
	Protocol    string
	Cookie      string
	ScreenNumber uint32
}

// PublicKey is the minimal shape this module needs from a parsed key;
// golang.org/x/crypto/ssh.PublicKey satisfies it.
type PublicKey interface {
	Type() string
	Marshal() []byte
}

// Signature is a signed blob plus the algorithm tag that produced it,
// length-prefixed per spec §6 ("Key and signature blobs are
// length-prefixed big-endian with a leading 4-byte algorithm-tag-length
// field") once marshaled onto the wire by the Transport collaborator;
// at this layer it is just the parsed algorithm/blob pair.
type Signature struct {
	Algorithm string
	Blob      []byte
}

// SignFunc signs data with whatever key the orchestrator most
// recently offered (local private key, or an agent key). It is
// callback-shaped, not a plain return, because agent signing is an
// IPC round trip (spec §6's Agent collaborator) that must never block
// the driver goroutine; a local-key signer simply calls done
// synchronously before returning.
type SignFunc func(data []byte, done func(sig *Signature, err error))

// TransportSink receives every protocol event the Transport
// collaborator parses out of inbound bytes. The driver implements
// this (see driver.go); its methods run on the Client's single driver
// goroutine because Transport.Parse is only called from there, which
// preserves the serialized-delivery guarantee of §5.
type TransportSink interface {
	OnHeader(greeting string)
	OnHandshakeComplete(info HandshakeInfo)
	OnServiceAccept(name string)
	OnBanner(message string)

	OnUserauthFailure(methodsLeft []string, partialSuccess bool)
	OnUserauthSuccess()
	OnUserauthPasswdChangereq(prompt string)
	OnUserauthPKOK(key PublicKey)
	OnUserauthInfoRequest(name, instructions string, prompts []Prompt)

	OnGlobalRequest(name string, wantReply bool, data []byte)
	OnRequestSuccess(data []byte)
	OnRequestFailure()

	OnChannelOpen(kind string, senderChannel, window, packetSize uint32, data []byte)
	OnChannelOpenConfirmation(localID, remoteID, window, packetSize uint32)
	OnChannelOpenFailure(localID uint32, reason ChannelOpenFailureReason, description string)
	OnChannelData(localID uint32, data []byte)
	OnChannelExtendedData(localID uint32, dataType uint32, data []byte)
	OnChannelWindowAdjust(localID uint32, bytesToAdd uint32)
	OnChannelEOF(localID uint32)
	OnChannelClose(localID uint32)
	OnChannelRequest(localID uint32, kind string, wantReply bool, data []byte)
	OnChannelSuccess(localID uint32)
	OnChannelFailure(localID uint32)

	OnDebug(alwaysDisplay bool, message string)
	OnDisconnect(reason uint32, description string)
	OnError(err error)
}

// Prompt is one keyboard-interactive prompt.
type Prompt struct {
	Prompt string
	Echo   bool
}

// HandshakeInfo summarizes a completed key exchange for the user-facing "handshake" event.
type HandshakeInfo struct {
	KEX             string
	ServerHostKey   string
	CS, SC          AlgPair
}

// AlgPair is the negotiated cipher/mac/compression triple for one direction.
type AlgPair struct {
	Cipher, MAC, Compress string
}
