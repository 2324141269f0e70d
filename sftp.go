package sshclient

import (
	"github.com/pkg/sftp"
)

// sftpChannelWriter adapts a Channel's primary stream to the
// io.WriteCloser github.com/pkg/sftp.NewClientPipe wants, closing the
// whole channel once the SFTP client is done with it.
type sftpChannelWriter struct {
	ch *Channel
}

func (w sftpChannelWriter) Write(p []byte) (int, error) { return w.ch.Write(p) }
func (w sftpChannelWriter) Close() error                { return w.ch.Close() }

// SFTP opens a session channel, requests the "sftp" subsystem, and
// wraps the resulting channel in a github.com/pkg/sftp client (spec
// §4.10: "sftp additionally initializes the SFTP subsystem and races
// its ready/error/exit/close events for a single callback"). The SFTP
// wire protocol itself is out of this module's scope (§1); pkg/sftp
// owns everything past the raw byte pipe.
func (c *Client) SFTP(opts SessionOptions, cb func(client *sftp.Client, ch *Channel, err error)) error {
	return c.Subsystem("sftp", opts, func(ch *Channel, err error) {
		if err != nil {
			cb(nil, nil, err)
			return
		}
		ch.Subtype = SubtypeSubsystem

		// pkg/sftp's handshake blocks on Read/Write, so it must run off
		// the driver goroutine; Channel.Read/Write already serialize
		// back onto it internally.
		go func() {
			client, sftpErr := sftp.NewClientPipe(ch.Stdout(), sftpChannelWriter{ch: ch})
			if sftpErr != nil {
				_ = ch.Close()
				cb(nil, nil, newError(LevelProtocol, sftpErr, "sftp subsystem handshake failed"))
				return
			}
			cb(client, ch, nil)
		}()
	})
}
