package sshclient

import (
	"crypto/rand"

	"golang.org/x/crypto/ssh"
)

// authState names the states of the Authentication Orchestrator (spec
// §9's redesign note). It is informational bookkeeping; the real
// control flow lives in the method dispatch below, but keeping the
// state on the struct makes the orchestrator's current phase visible
// to this package's tests when debugging a stuck handshake.
type authState int

const (
	authIdle authState = iota
	authProbing
	authAwaitingPKOk
	authAwaitingKbdPrompts
	authAwaitingPasswdChange
	authAgentListing
	authAgentTrying
	authSucceeded
	authFailed
)

// AuthHandler customizes authentication method sequencing (spec §4.6).
// It is invoked once per attempt with the server's most recently
// advertised methods-left list (empty before the first attempt) and
// the partial-success flag from the last USERAUTH_FAILURE.
//
// A handler that can decide synchronously returns (method, true);
// method == "" means no eligible methods remain. A handler that needs
// to decide asynchronously (e.g. prompting a user interactively)
// returns ("", false) and later calls cb exactly once with its choice
// (cb("") also means no more methods). The orchestrator guards against
// a handler that does both.
type AuthHandler func(methodsLeft []string, partialSuccess bool, cb func(method string)) (method string, handled bool)

// authOrchestrator implements spec §4.6.
type authOrchestrator struct {
	client *Client

	state          authState
	methodsLeft    []string
	partialSuccess bool
	currentMethod  string

	// defaultPos walks the default handler's eligible-method list once.
	defaultPos int

	agentKeys   []AgentKey
	agentKeyPos int

	// round/pending guard against an AuthHandler that answers both
	// synchronously and via cb (spec §4.6's hasSentAuth latch).
	round   int
	pending bool
}

func newAuthOrchestrator(c *Client) *authOrchestrator {
	return &authOrchestrator{client: c}
}

// tryNextAuth asks the configured (or default) AuthHandler for the
// next method to attempt and dispatches it.
func (a *authOrchestrator) tryNextAuth() {
	a.state = authProbing
	c := a.client

	handler := c.cfg.AuthHandler
	if handler == nil {
		handler = a.defaultHandler
	}

	a.round++
	round := a.round
	a.pending = true

	method, handled := handler(a.methodsLeft, a.partialSuccess, func(m string) {
		c.post(func() {
			if !a.pending || a.round != round {
				return
			}
			a.pending = false
			a.dispatch(m)
		})
	})

	if handled {
		if !a.pending || a.round != round {
			return
		}
		a.pending = false
		a.dispatch(method)
	}
}

// defaultHandler walks the eligible-methods list in fixed order,
// attempting each exactly once (spec §4.6's "Default authHandler").
func (a *authOrchestrator) defaultHandler(methodsLeft []string, partialSuccess bool, cb func(string)) (string, bool) {
	eligible := a.client.cfg.eligibleMethods()
	if a.defaultPos >= len(eligible) {
		return "", true
	}
	m := eligible[a.defaultPos]
	a.defaultPos++
	return m, true
}

// dispatch routes one chosen method to the matching Transport call, or
// ends the connection if the handler reports exhaustion.
func (a *authOrchestrator) dispatch(method string) {
	c := a.client
	if method == "" {
		a.state = authFailed
		c.emitError(newErrorf(LevelClientAuthentication, "All configured authentication methods failed"))
		c.End()
		return
	}

	a.currentMethod = method
	user := c.cfg.Username

	switch method {
	case "none":
		c.transport.AuthNone(user)

	case "password":
		c.transport.AuthPassword(user, c.cfg.Credentials.Password, "")

	case "keyboard-interactive":
		a.state = authAwaitingKbdPrompts
		c.transport.AuthKeyboard(user)

	case "publickey":
		signer := c.cfg.Credentials.PrivateKey
		if signer == nil {
			a.tryNextAuth()
			return
		}
		a.state = authAwaitingPKOk
		c.transport.AuthPK(user, signer.PublicKey(), a.localSignFunc(signer))

	case "hostbased":
		signer := c.cfg.Credentials.PrivateKey
		if signer == nil {
			a.tryNextAuth()
			return
		}
		a.state = authAwaitingPKOk
		c.transport.AuthHostbased(user, signer.PublicKey(), c.cfg.Credentials.LocalHostname, c.cfg.Credentials.LocalUsername, a.localSignFunc(signer))

	case "agent":
		a.beginAgentAuth()

	default:
		a.tryNextAuth()
	}
}

// beginAgentAuth lists the agent's keys and attempts the first one
// (spec §4.6: "query agent for key list; if zero keys, fail this
// method and recurse").
func (a *authOrchestrator) beginAgentAuth() {
	c := a.client
	if c.agent == nil {
		a.tryNextAuth()
		return
	}
	a.state = authAgentListing
	c.agent.List(func(keys []AgentKey, err error) {
		c.post(func() {
			if err != nil || len(keys) == 0 {
				if err != nil {
					c.emitError(err)
				}
				a.tryNextAuth()
				return
			}
			a.agentKeys = keys
			a.agentKeyPos = 0
			a.authPKWithAgentKey(0)
		})
	})
}

func (a *authOrchestrator) authPKWithAgentKey(pos int) {
	c := a.client
	if pos >= len(a.agentKeys) {
		a.tryNextAuth()
		return
	}
	key := a.agentKeys[pos]
	pub, err := parsePublicKeyBlob(key.Blob)
	if err != nil {
		c.emitError(newError(LevelAgent, err, "parsing agent key blob"))
		a.advanceAgentKey()
		return
	}
	a.state = authAgentTrying
	c.transport.AuthPK(c.cfg.Username, pub, a.agentSignFunc(key))
}

// advanceAgentKey moves to the next agent key, or falls through to
// tryNextAuth once the list is exhausted.
func (a *authOrchestrator) advanceAgentKey() {
	a.agentKeyPos++
	if a.agentKeyPos >= len(a.agentKeys) {
		a.tryNextAuth()
		return
	}
	a.authPKWithAgentKey(a.agentKeyPos)
}

// localSignFunc signs with the caller-supplied private key directly
// (spec §4.6: publickey/hostbased signing callback).
func (a *authOrchestrator) localSignFunc(signer ssh.Signer) SignFunc {
	return func(data []byte, done func(sig *Signature, err error)) {
		sig, err := signer.Sign(rand.Reader, data)
		if err != nil {
			done(nil, err)
			return
		}
		done(&Signature{Algorithm: sig.Format, Blob: sig.Blob}, nil)
	}
}

// agentSignFunc delegates signing to the Agent collaborator and
// verifies the returned algorithm tag matches the key's advertised
// type (spec §4.6 scenario 5: "agent key mismatch").
func (a *authOrchestrator) agentSignFunc(key AgentKey) SignFunc {
	return func(data []byte, done func(sig *Signature, err error)) {
		c := a.client
		c.agent.Sign(key, data, func(sig *Signature, err error) {
			c.post(func() {
				if err != nil {
					c.emitError(err)
					done(nil, err)
					a.advanceAgentKey()
					return
				}
				if sig.Algorithm != "" && sig.Algorithm != key.Type {
					mismatch := newErrorf(LevelAgent, "agent signature algorithm %q does not match key type %q", sig.Algorithm, key.Type)
					c.emitError(mismatch)
					done(nil, mismatch)
					a.advanceAgentKey()
					return
				}
				done(sig, nil)
			})
		})
	}
}

// onPKOK handles USERAUTH_PK_OK for both the publickey and agent
// methods (spec §4.6).
func (a *authOrchestrator) onPKOK(key PublicKey) {
	c := a.client
	switch a.currentMethod {
	case "agent":
		if !isSupportedKeyType(key.Type()) {
			a.advanceAgentKey()
			return
		}
		agentKey := a.agentKeys[a.agentKeyPos]
		c.transport.AuthPK(c.cfg.Username, key, a.agentSignFunc(agentKey))

	case "publickey":
		signer := c.cfg.Credentials.PrivateKey
		if signer == nil {
			a.tryNextAuth()
			return
		}
		c.transport.AuthPK(c.cfg.Username, key, a.localSignFunc(signer))

	case "hostbased":
		signer := c.cfg.Credentials.PrivateKey
		if signer == nil {
			a.tryNextAuth()
			return
		}
		c.transport.AuthHostbased(c.cfg.Username, key, c.cfg.Credentials.LocalHostname, c.cfg.Credentials.LocalUsername, a.localSignFunc(signer))
	}
}

// onPasswdChangeReq handles USERAUTH_PASSWD_CHANGEREQ, meaningful only
// mid-"password" (spec §4.6).
func (a *authOrchestrator) onPasswdChangeReq(prompt string) {
	c := a.client
	if a.currentMethod != "password" {
		return
	}
	if c.Events.OnChangePassword == nil {
		return
	}
	a.state = authAwaitingPasswdChange
	c.Events.OnChangePassword(prompt, func(newPassword string) {
		c.post(func() {
			c.transport.AuthPassword(c.cfg.Username, c.cfg.Credentials.Password, newPassword)
		})
	})
}

// onInfoRequest handles USERAUTH_INFO_REQUEST for keyboard-interactive
// (spec §4.6).
func (a *authOrchestrator) onInfoRequest(name, instructions string, prompts []Prompt) {
	c := a.client
	if len(prompts) == 0 {
		c.transport.AuthInfoResponse(nil)
		return
	}
	if c.Events.OnKeyboardInteractive == nil {
		c.transport.AuthInfoResponse(make([]string, len(prompts)))
		return
	}
	c.Events.OnKeyboardInteractive(name, instructions, prompts, func(answers []string) {
		c.post(func() {
			c.transport.AuthInfoResponse(answers)
		})
	})
}

// onFailure handles USERAUTH_FAILURE (spec §4.6): advances the agent
// key on an agent-method failure, otherwise records methodsLeft/partial
// and re-probes.
func (a *authOrchestrator) onFailure(methodsLeft []string, partialSuccess bool) {
	if a.currentMethod == "agent" {
		a.advanceAgentKey()
		return
	}
	a.methodsLeft = methodsLeft
	a.partialSuccess = partialSuccess
	a.tryNextAuth()
}

// onSuccess handles USERAUTH_SUCCESS (spec §4.6).
func (a *authOrchestrator) onSuccess() {
	a.state = authSucceeded
}
