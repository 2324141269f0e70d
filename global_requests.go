package sshclient

// globalRequestCallback is invoked once with (err, data) when the
// matching REQUEST_SUCCESS/FAILURE arrives (spec §4.8). err is nil on
// success; on failure it carries the reason, whether that is a plain
// REQUEST_FAILURE or the "No response from server" error a teardown
// cleanup resolves every still-pending callback with.
type globalRequestCallback func(err error, data []byte)

// globalRequestPipeline is the FIFO of pending global replies (spec
// §4.8) plus the forwarding bookkeeping (tables + counters) from §3.
type globalRequestPipeline struct {
	client *Client
	queue  []globalRequestCallback

	tcpForwardings  map[string]uint32 // "addr:port" -> actualPort; port is the assigned one, or the requested one under CompatDynamicReplyPort
	unixForwardings map[string]bool

	acceptX11       int
	agentFwdEnabled bool
}

func newGlobalRequestPipeline(c *Client) *globalRequestPipeline {
	return &globalRequestPipeline{
		client:          c,
		tcpForwardings:  map[string]uint32{},
		unixForwardings: map[string]bool{},
	}
}

func (g *globalRequestPipeline) enqueue(cb globalRequestCallback) {
	g.queue = append(g.queue, cb)
}

// handleReply pops the head of the FIFO in submission order (spec §4.8/§5).
func (g *globalRequestPipeline) handleReply(hadError bool, data []byte) {
	if len(g.queue) == 0 {
		return
	}
	cb := g.queue[0]
	g.queue = g.queue[1:]
	if cb == nil {
		return
	}
	var err error
	if hadError {
		err = newErrorf(LevelProtocol, "global request failed")
	}
	cb(err, data)
}

// cleanup resolves every still-pending callback with err (spec §4.11).
func (g *globalRequestPipeline) cleanup(err error) {
	pending := g.queue
	g.queue = nil
	for _, cb := range pending {
		if cb != nil {
			cb(err, nil)
		}
	}
}

// decodeAssignedPort extracts the 4-byte big-endian assigned port from
// a dynamic (port 0) tcpipForward REQUEST_SUCCESS reply (spec §4.8).
func decodeAssignedPort(data []byte) uint32 {
	return decodeUint32(data)
}
