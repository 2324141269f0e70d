package sshclient

import (
	"time"

	"golang.org/x/crypto/ssh"
)

// IPFamily constrains which address family the Byte-Stream Adapter
// resolves to before dialing.
type IPFamily int

// Family-forcing options (spec §4.1): neither set, or both set, means
// "dial by hostname"; exactly one forces resolution to that family first.
const (
	FamilyAny IPFamily = iota
	FamilyV4
	FamilyV6
)

// Credentials bundles every authentication input a caller may supply.
// Eligible methods are derived from which fields are non-zero (spec §4.6).
type Credentials struct {
	Password string

	// PrivateKey is produced by the caller via
	// ssh.ParsePrivateKey/ssh.ParsePrivateKeyWithPassphrase — key file
	// parsing is an out-of-scope collaborator (spec §1), so this
	// module only ever consumes the already-parsed signer.
	PrivateKey ssh.Signer

	// LocalHostname/LocalUsername enable the hostbased method; it is
	// eligible only when PrivateKey, LocalHostname and LocalUsername
	// are all set (spec §4.6).
	LocalHostname string
	LocalUsername string
}

// Config is the immutable-after-Connect configuration record (spec
// §3). Building one from a config file or CLI flags is explicitly out
// of scope (§1, §9) and left to the caller.
type Config struct {
	Host string
	Port int

	// LocalAddress/LocalPort optionally bind the outbound socket.
	LocalAddress string
	LocalPort    int

	ForceFamily IPFamily

	// Stream lets a caller hand in an already-connected duplex stream,
	// bypassing the Adapter's own dial step (spec §4.1).
	Stream ByteStream

	ReadyTimeout      time.Duration // 0 disables
	KeepaliveInterval time.Duration // 0 disables
	KeepaliveCountMax int           // default 3

	Identification string // identification banner override

	Username    string // required
	Credentials Credentials

	AgentEndpoint string
	AgentForward  bool // requires AgentEndpoint

	TryKeyboardInteractive bool

	// StrictVendorDisabled opts out of the spec-mandated
	// strictVendor=true default. The polarity is inverted from the
	// spec's own "strictVendor" name so the Go zero value (false)
	// matches the default (strict checking enabled) regardless of
	// whether a Config is built via NewConfig or as a bare literal.
	StrictVendorDisabled bool

	// AuthHandler, when set, overrides the default authentication
	// method sequencing (spec §4.6).
	AuthHandler AuthHandler

	HostKeyCallback ssh.HostKeyCallback
	HostHashAlgo    string

	Log Logger

	Algorithms AlgorithmOffer
}

// AlgorithmOffer is the client's preference list per algorithm class.
// Empty slices mean "accept the Transport collaborator's defaults"
// (spec §4.2).
type AlgorithmOffer struct {
	KEX            []string
	ServerHostKey  []string
	Cipher         []string
	MAC            []string
	Compress       []string
}

func (c *Config) eligibleMethods() []string {
	methods := []string{"none"}
	if c.Credentials.Password != "" {
		methods = append(methods, "password")
	}
	if c.Credentials.PrivateKey != nil {
		methods = append(methods, "publickey")
	}
	if c.AgentEndpoint != "" {
		methods = append(methods, "agent")
	}
	if c.TryKeyboardInteractive {
		methods = append(methods, "keyboard-interactive")
	}
	if c.Credentials.PrivateKey != nil && c.Credentials.LocalHostname != "" && c.Credentials.LocalUsername != "" {
		methods = append(methods, "hostbased")
	}
	return methods
}

// NewConfig returns a Config with the spec-mandated defaults applied
// (strictVendor enabled, KeepaliveCountMax=3); callers are not required
// to use it, but Client.Connect calls ApplyDefaults itself so a bare
// Config{...} literal with KeepaliveCountMax left at zero still behaves
// per spec.
func NewConfig() Config {
	return Config{KeepaliveCountMax: 3}
}

// ApplyDefaults fills in the zero-value defaults spec §3 mandates.
// Client.Connect calls this once before validating.
func (c *Config) ApplyDefaults() {
	if c.KeepaliveCountMax == 0 {
		c.KeepaliveCountMax = 3
	}
}

// validate mirrors the checks Client.Connect performs eagerly (spec §4.10):
// username is required, agent forwarding needs a working agent endpoint.
func (c *Config) validate() error {
	if c.Username == "" {
		return newErrorf(LevelClientAuthentication, "username is required")
	}
	if c.AgentForward && c.AgentEndpoint == "" {
		return newErrorf(LevelClientAuthentication, "agentForward requires an agent endpoint")
	}
	return nil
}
