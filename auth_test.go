package sshclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// newTestSigner builds a real ssh.Signer so Config.Credentials.PrivateKey
// (typed golang.org/x/crypto/ssh.Signer) can be populated without key
// file parsing, which is out of this module's scope.
func newTestSigner(t *testing.T) ssh.Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_ = pub
	signer, err := ssh.NewSignerFromSigner(priv)
	require.NoError(t, err)
	return signer
}

// TestPasswordAuthHappyPath mirrors spec scenario 1: a password-only
// config authenticates in one round trip and fires ready exactly once.
func TestPasswordAuthHappyPath(t *testing.T) {
	readyCount := 0
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	cfg.ReadyTimeout = time.Second

	c, ft, _ := newTestClient(cfg)
	c.Events.OnReady = func() { readyCount++ }

	drive(c, func() {
		c.driver.OnServiceAccept("ssh-userauth")
	})

	call, ok := ft.next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "AuthNone", call.name)

	drive(c, func() {
		c.driver.OnUserauthFailure([]string{"password"}, false)
	})

	call, ok = ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "AuthPassword", call.name)
	assert.Equal(t, "p", call.str1)

	drive(c, func() {
		c.driver.OnUserauthSuccess()
	})

	assert.Equal(t, 1, readyCount)
	assert.Nil(t, c.readyTimer)
}

// TestAuthMethodFallback mirrors spec scenario 2: none, then password,
// then publickey are each tried exactly once in that order.
func TestAuthMethodFallback(t *testing.T) {
	signer := newTestSigner(t)
	cfg := NewConfig()
	cfg.Username = "u"
	cfg.Credentials.Password = "p"
	cfg.Credentials.PrivateKey = signer

	c, ft, _ := newTestClient(cfg)

	drive(c, func() { c.driver.OnServiceAccept("ssh-userauth") })
	call, ok := ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "AuthNone", call.name)

	drive(c, func() { c.driver.OnUserauthFailure([]string{"password", "publickey"}, false) })
	call, ok = ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "AuthPassword", call.name)

	drive(c, func() { c.driver.OnUserauthFailure([]string{"publickey"}, false) })
	call, ok = ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "AuthPK", call.name)

	drive(c, func() { c.driver.OnUserauthPKOK(call.key) })
	call2, ok := ft.next(time.Second)
	require.True(t, ok)
	require.Equal(t, "AuthPK", call2.name)

	drive(c, func() { c.driver.OnUserauthSuccess() })

	_, ok = ft.next(50 * time.Millisecond)
	assert.False(t, ok, "no further auth attempts after success")
}
