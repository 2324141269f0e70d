package sshclient

// PtyOptions requests a pseudo-terminal for a session channel (spec §4.7).
type PtyOptions struct {
	Term           string
	Rows, Cols     uint32
	Height, Width  uint32
	Modes          []byte
}

func defaultPtyOptions() *PtyOptions {
	return &PtyOptions{Term: "xterm", Rows: 24, Cols: 80, Height: 480, Width: 640}
}

// SessionOptions configures the Session Request Pipeline that runs
// between CHANNEL_OPEN_CONFIRMATION and the terminal exec/shell/
// subsystem request (spec §4.7).
type SessionOptions struct {
	Env map[string]string

	// PTY requests a pty with these parameters. Shell calls default it
	// to defaultPtyOptions() unless NoPTY is set (spec: "shell defaults
	// to requesting pty when wndopts !== false" — resolved in DESIGN.md
	// as: only an explicit NoPTY opt-out suppresses the default).
	PTY   *PtyOptions
	NoPTY bool

	X11 *X11Config

	// AgentForward requests agent forwarding on this channel. Ignored
	// if no agent is attached to the Client.
	AgentForward bool

	// Events registers the exit-status/exit-signal and close
	// notifications for the channel this call opens (spec §4.5). It is
	// wired onto the Channel before the pipeline's terminal request is
	// sent, so no exit-status/close can arrive unobserved.
	Events ChannelEvents
}

// sessionStep is one FIFO entry of the pipeline: it sends its request
// and calls done(ok) once the matching CHANNEL_SUCCESS/FAILURE arrives.
type sessionStep func(done func(ok bool))

// runSessionPipeline implements spec §4.7. It always executes on the
// driver goroutine (called from an openContinuation.onConfirm, itself
// invoked from OnChannelOpenConfirmation).
func runSessionPipeline(ch *Channel, opts SessionOptions, subtype Subtype, sendTerminal func(ch *Channel, wantReply bool), cb func(*Channel, error)) {
	ch.Events = opts.Events

	if subtype == SubtypeShell && opts.PTY == nil && !opts.NoPTY {
		opts.PTY = defaultPtyOptions()
	}

	for k, v := range opts.Env {
		ch.transport().Env(ch.LocalID, k, v)
	}

	steps := buildSessionSteps(ch, opts)

	// Channel.Close waits on the driver goroutine, so close directly here.
	closeChannel := func() {
		if ch.outgoingState == ChanOpen {
			ch.ensureCloseSent()
		}
	}

	var run func(i int)
	run = func(i int) {
		if i >= len(steps) {
			sendTerminal(ch, true)
			ch.enqueueRequest(func(failed bool) {
				if failed {
					closeChannel()
					cb(nil, newErrorf(LevelProtocol, "%s request failed on channel %d", subtype, ch.LocalID))
					return
				}
				ch.Subtype = subtype
				cb(ch, nil)
			})
			return
		}
		steps[i](func(ok bool) {
			if !ok {
				closeChannel()
				cb(nil, newErrorf(LevelProtocol, "session setup step %d failed on channel %d", i, ch.LocalID))
				return
			}
			run(i + 1)
		})
	}
	run(0)
}

func buildSessionSteps(ch *Channel, opts SessionOptions) []sessionStep {
	var steps []sessionStep

	if opts.AgentForward && ch.mgr.client.agent != nil {
		steps = append(steps, func(done func(bool)) {
			ch.transport().OpenSSHAgentForward(ch.LocalID, true)
			ch.enqueueRequest(func(failed bool) {
				// Latched true on the first channel to successfully
				// request it (spec §3's agentFwdEnabled counter).
				if !failed {
					ch.mgr.client.global.agentFwdEnabled = true
				}
				done(!failed)
			})
		})
	}

	if opts.PTY != nil {
		p := opts.PTY
		steps = append(steps, func(done func(bool)) {
			ch.transport().Pty(ch.LocalID, p.Rows, p.Cols, p.Height, p.Width, p.Term, p.Modes, true)
			ch.enqueueRequest(func(failed bool) { done(!failed) })
		})
	}

	if opts.X11 != nil {
		x := opts.X11
		steps = append(steps, func(done func(bool)) {
			ch.transport().X11Forward(ch.LocalID, *x, true)
			ch.enqueueRequest(func(failed bool) {
				// acceptX11 counts channels that successfully requested
				// X11 (spec §3); ch.HasX11 marks this channel itself.
				if !failed {
					ch.HasX11 = true
					ch.mgr.client.global.acceptX11++
				}
				done(!failed)
			})
		})
	}

	return steps
}
