package sshclient

import (
	"regexp"
	"strconv"
)

// openSSHVersionRe matches an OpenSSH identification banner's major
// version (spec §6: "matches OpenSSH_ followed by a single digit ≥5
// or any multi-digit major").
var openSSHVersionRe = regexp.MustCompile(`OpenSSH_(\d+)`)

// isOpenSSHVendor reports whether the server's identification banner
// looks like an OpenSSH whose major version is at least 5.
func (c *Client) isOpenSSHVendor() bool {
	m := openSSHVersionRe.FindStringSubmatch(c.remoteIdentification)
	if m == nil {
		return false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	return major >= 5
}

// checkOpenSSHVendor implements the openssh_* gating rule (spec
// §4.10): when strictVendor is on and the peer doesn't look like a
// recent-enough OpenSSH, the operation is rejected without touching
// the wire. The caller's own notConnected() check must run first —
// this only covers the vendor-mismatch path, so the rejection is
// delivered asynchronously on the driver goroutine ("next tick")
// rather than synchronously like the connectivity check.
func (c *Client) checkOpenSSHVendor(cb func(err error)) bool {
	if c.cfg.StrictVendorDisabled || c.isOpenSSHVendor() {
		return true
	}
	c.post(func() {
		cb(newErrorf(LevelProtocol, "openssh_* operation requires an OpenSSH server (strictVendor is enabled)"))
	})
	return false
}
