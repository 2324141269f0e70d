package sshclient

import (
	"io"

	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AgentKey is one key advertised by the Agent collaborator (spec §6).
type AgentKey struct {
	Blob    []byte
	Type    string
	Comment string
}

// Agent is the SSH agent IPC collaborator (spec §6), kept async
// throughout since it is a round trip to another process. The default
// implementation (NewSystemAgent) wraps the same
// github.com/xanzy/ssh-agent discovery the teacher uses in
// backend/sftp/sftp.go's sshagent.New() call, generalized from
// "collect all signers once" to "list, sign one key at a time, and
// bridge a forwarded channel", per the orchestrator's agent-key-by-key
// retry loop (spec §4.6) and the incoming-channel agent bridge (§4.9).
type Agent interface {
	List(cb func(keys []AgentKey, err error))
	Sign(key AgentKey, data []byte, cb func(sig *Signature, err error))
	// Bridge pumps bytes between a forwarded auth-agent@openssh.com
	// channel's substreams and the agent connection, per spec §4.9.
	Bridge(rw io.ReadWriter) error
	Close() error
}

type systemAgent struct {
	conn  io.ReadWriteCloser
	agent agent.Agent
}

// NewSystemAgent dials the platform SSH agent (ssh-agent socket or
// Pageant on Windows) exactly the way sftp.go's sshagent.New() does.
func NewSystemAgent() (Agent, error) {
	a, conn, err := sshagent.New()
	if err != nil {
		return nil, newError(LevelAgent, err, "couldn't connect to ssh-agent")
	}
	return &systemAgent{conn: conn, agent: a}, nil
}

func (s *systemAgent) List(cb func([]AgentKey, error)) {
	keys, err := s.agent.List()
	if err != nil {
		cb(nil, newError(LevelAgent, err, "listing agent keys"))
		return
	}
	out := make([]AgentKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, AgentKey{Blob: k.Blob, Type: k.Format, Comment: k.Comment})
	}
	cb(out, nil)
}

func (s *systemAgent) Sign(key AgentKey, data []byte, cb func(*Signature, error)) {
	pub, err := ssh.ParsePublicKey(key.Blob)
	if err != nil {
		cb(nil, newError(LevelAgent, err, "parsing agent key blob"))
		return
	}
	sig, err := s.agent.Sign(pub, data)
	if err != nil {
		cb(nil, newError(LevelAgent, err, "agent signing failed"))
		return
	}
	// Strip the (algo-length, algo, sig-length) prefix, keeping only
	// the raw signature blob, per spec §6: "Strip the leading
	// (algo-length, algo, sig-length) prefix before passing the raw
	// signature blob back." ssh.Signature already parses this for us;
	// Blob is the raw signature with no further framing. A mismatch
	// between sig.Format and key.Type (some agents sign with a
	// different algorithm than requested) is handled by the caller,
	// auth.go's agentSignFunc, which compares the two and advances to
	// the next agent key (spec §4.6 scenario 5).
	cb(&Signature{Algorithm: sig.Format, Blob: sig.Blob}, nil)
}

func (s *systemAgent) Bridge(rw io.ReadWriter) error {
	return agent.ServeAgent(s.agent, rw)
}

func (s *systemAgent) Close() error {
	return s.conn.Close()
}

// supportedAgentKeyTypes gates which advertised keys the orchestrator
// will attempt (spec §4.6: "verify the advertised key is of a
// supported type, else advance to next agent key").
var supportedAgentKeyTypes = map[string]bool{
	ssh.KeyAlgoRSA:      true,
	ssh.KeyAlgoDSA:      true,
	ssh.KeyAlgoECDSA256: true,
	ssh.KeyAlgoECDSA384: true,
	ssh.KeyAlgoECDSA521: true,
	ssh.KeyAlgoED25519:  true,
}

func isSupportedKeyType(t string) bool { return supportedAgentKeyTypes[t] }

// parsePublicKeyBlob parses a raw key blob into this package's minimal
// PublicKey interface (golang.org/x/crypto/ssh.PublicKey already
// satisfies it structurally); auth.go uses it for each agent key.
func parsePublicKeyBlob(blob []byte) (PublicKey, error) {
	return ssh.ParsePublicKey(blob)
}
