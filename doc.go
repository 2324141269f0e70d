// Package sshclient implements the core of a client-side SSH endpoint:
// the state machine that drives version exchange, algorithm
// negotiation, user authentication, and channel multiplexing above an
// already-established byte stream.
//
// It does not implement the framed SSH transport itself (packet
// encode/decode, key exchange, ciphers, MAC, compression, host-key
// verification plumbing) — that is a collaborator, described by the
// Transport interface in transport.go, that callers supply. This
// mirrors backend/sftp's split between the sshClient/sshSession
// interfaces and their concrete implementations: the core here is the
// orchestration layer that sits above whatever wire-level transport is
// plugged in.
package sshclient
