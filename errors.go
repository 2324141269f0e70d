package sshclient

import (
	"fmt"

	"github.com/pkg/errors"
)

// Level tags an Error for routing, per the error handling design:
// the authentication orchestrator recovers locally from some levels
// (client-authentication advancing methods, agent advancing keys);
// everything else is fatal and surfaced to the user.
type Level string

// Error levels. See errors.go doc and spec §7.
const (
	LevelHandshake            Level = "handshake"
	LevelProtocol             Level = "protocol"
	LevelClientSocket         Level = "client-socket"
	LevelClientTimeout        Level = "client-timeout"
	LevelClientDNS            Level = "client-dns"
	LevelClientAuthentication Level = "client-authentication"
	LevelAgent                Level = "agent"
)

// Error is the leveled error type used throughout the client. Code is
// populated for disconnect reasons (the numeric SSH disconnect code);
// it is zero otherwise.
type Error struct {
	Level Level
	Code  uint32
	cause error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("[%s] (code %d) %s", e.Level, e.Code, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Level, e.cause)
}

// Unwrap lets errors.Is/errors.As and github.com/pkg/errors.Cause see
// through the level wrapper to the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Cause is the method github.com/pkg/errors.Cause follows.
func (e *Error) Cause() error { return e.cause }

// newError builds a leveled error, wrapping msg onto cause the same
// way the teacher wraps every SSH-path failure with errors.Wrap.
func newError(level Level, cause error, msg string) *Error {
	if msg != "" {
		cause = errors.Wrap(cause, msg)
	}
	return &Error{Level: level, cause: cause}
}

func newErrorf(level Level, format string, args ...any) *Error {
	return &Error{Level: level, cause: fmt.Errorf(format, args...)}
}

// disconnectError builds the error surfaced for a non-BY_APPLICATION
// DISCONNECT message (spec §4.11).
func disconnectError(code uint32, description string) *Error {
	if description == "" {
		if name, ok := disconnectReasons[code]; ok {
			description = name
		} else {
			description = fmt.Sprintf("Unexpected disconnection reason: %d", code)
		}
	}
	return &Error{Level: LevelProtocol, Code: code, cause: errors.New(description)}
}

// disconnectReasons is the informative lookup table for SSH_DISCONNECT
// reason codes (RFC 4253 §11.1), used only when the server omits a
// human-readable description.
var disconnectReasons = map[uint32]string{
	1:  "Host not allowed to connect",
	2:  "Protocol error",
	3:  "Key exchange failed",
	4:  "Reserved",
	5:  "MAC error",
	6:  "Compression error",
	7:  "Service not available",
	8:  "Protocol version not supported",
	9:  "Host key not verifiable",
	10: "Connection lost",
	11: "By application",
	12: "Too many connections",
	13: "Auth cancelled by user",
	14: "No more auth methods available",
	15: "Illegal user name",
}

// DisconnectByApplication is the reason code Client.End() sends.
const DisconnectByApplication uint32 = 11
