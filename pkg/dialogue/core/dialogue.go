// Package core implements the multiplexer state machine: the per-id
// lifecycle tables, read-side dispatch, cancellation protocol and the
// asymmetric client/server shutdown handshake that turn one ordered
// transport connection into many concurrent logical conversations.
package core

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jabolina/go-dialogue/pkg/dialogue/definition"
	"github.com/jabolina/go-dialogue/pkg/dialogue/metrics"
	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// Dialogue is the root entity: it exclusively owns the transport, the id
// allocators, all three tables, and the shutdown state. Handles learn of a
// close through the shutdown state and the lifecycle context; the epoch
// field is not advanced or consulted. A single goroutine drives the read
// loop against a context.Context/CancelFunc pair for lifecycle.
type Dialogue struct {
	config *types.Config
	logger types.Logger
	mcol   types.Collector

	transport types.Transport
	factory   types.Factory

	requestIDs *idPool
	duplexIDs  *idPool

	outstanding *outstandingTable
	incoming    *incomingTable
	duplexes    *duplexTable

	mux      *multiplexer
	shutdown *shutdownController

	fresh chan types.Packet

	sendMutex    sync.Mutex
	teardownOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// epoch is never incremented or read; no handle checks it.
	epoch uint64
}

// New constructs a Dialogue over transport, using factory to mint outgoing
// packets, configured per cfg (nil selects types.DefaultConfig(types.Client)).
// It builds the collaborators, spawns the read-loop
// goroutine, and returns the live handle.
func New(transport types.Transport, factory types.Factory, cfg *types.Config) (*Dialogue, error) {
	if transport == nil {
		return nil, fmt.Errorf("dialogue: transport is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("dialogue: packet factory is required")
	}
	if cfg == nil {
		cfg = types.DefaultConfig(types.Client)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = definition.NewDefaultLogger(os.Stderr)
	}
	mcol := cfg.Metrics
	if mcol == nil {
		mcol = metrics.Noop{}
	}

	buf := cfg.InboundBuffer
	if buf <= 0 {
		buf = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dialogue{
		config:      cfg,
		logger:      logger,
		mcol:        mcol,
		transport:   transport,
		factory:     factory,
		requestIDs:  newIDPool(),
		duplexIDs:   newIDPool(),
		outstanding: newOutstandingTable(),
		incoming:    newIncomingTable(),
		duplexes:    newDuplexTable(),
		fresh:       make(chan types.Packet, buf),
		ctx:         ctx,
		cancel:      cancel,
	}
	d.mux = newMultiplexer(d)
	d.shutdown = newShutdownController(d)

	go d.mux.pump(ctx)

	return d, nil
}

func (d *Dialogue) metrics() types.Collector { return d.mcol }

// rawSend writes a packet to the transport unless the local side has
// closed. Once the dialogue is fully closed nothing reaches the wire. The
// gag is role-asymmetric while a close is merely in flight: a Client that
// has signalled close emits nothing further at all through this path —
// its own closing Message is written directly by sendClientClosingMessage
// instead, bypassing this gag exactly once, so a user's own SendMessage
// call racing the handshake cannot slip a second Message onto the wire. A
// Server, by contrast, has to finish every outstanding duplex and
// incoming request normally before it sends its own closing Message, and
// those packets are written after the phase has already flipped to
// closing — so the Server side of the gag only trips once the handshake
// has fully finished.
func (d *Dialogue) rawSend(p types.Packet) error {
	if d.shutdown.isClosed() {
		return types.ErrDialogueClosed
	}
	if d.config.Role == types.Client && d.shutdown.hasCommittedToClosing() {
		return types.ErrDialogueClosed
	}
	return d.writeTransport(p)
}

// writeTransport is the unguarded write to the underlying transport,
// shared by rawSend and the Client's one-shot closing Message send.
func (d *Dialogue) writeTransport(p types.Packet) error {
	d.sendMutex.Lock()
	defer d.sendMutex.Unlock()
	if err := d.transport.Send(d.ctx, p); err != nil {
		werr := &types.TransportSendError{Err: err}
		d.latchTransportError(werr)
		return werr
	}
	return nil
}

// sendClientClosingMessage writes the Client's single closing Message
// directly, bypassing rawSend's gag: it is the one packet a Client may
// still emit once it has committed to closing. Only clientClose calls
// this, and beginLocalClose guarantees clientClose runs at most once per
// dialogue, so the exemption can never be exercised a second time.
func (d *Dialogue) sendClientClosingMessage(p types.Packet) error {
	if d.shutdown.isClosed() {
		return types.ErrDialogueClosed
	}
	return d.writeTransport(p)
}

// publishFresh delivers a fresh inbound packet to the caller of
// PollInbound. While the buffer is full delivery blocks until there is room
// or the dialogue ends: a user that does not drain PollInbound starves
// dispatch for every other id.
func (d *Dialogue) publishFresh(p types.Packet) {
	select {
	case d.fresh <- p:
		d.metrics().IncDispatched(p.Kind())
	case <-d.ctx.Done():
	}
}

// teardown cancels the Dialogue's lifecycle context and closes the fresh
// channel exactly once, regardless of which path (voluntary close,
// transport error, or clean end of stream) reaches it first. This is what
// unblocks the Multiplexer's pump goroutine so it can return.
func (d *Dialogue) teardown() {
	d.teardownOnce.Do(func() {
		d.cancel()
		close(d.fresh)
	})
}

func (d *Dialogue) latchTransportError(err error) {
	d.logger.Errorf("dialogue: latching closed: %v", err)
	d.shutdown.finish()
}

func (d *Dialogue) latchClosed() {
	d.shutdown.finish()
}

// finishAllNormally is the Server's half of the close handshake: every
// outstanding duplex gets a normal end packet sent on its still-open write
// half.
func (d *Dialogue) finishAllNormally() {
	for _, entry := range d.duplexes.all() {
		d.closeDuplexWriteHalf(entry)
	}
}

// awaitIncomingDrain blocks until every currently adopted incoming request
// has been answered, declined, or dropped by the application, up to
// Config.ServerCloseTimeout. A zero timeout waits indefinitely (bounded
// only by the dialogue's own lifecycle ending). Called from the Server's
// close sequence so a request already in flight gets its chance to
// complete before the closing Message goes out.
func (d *Dialogue) awaitIncomingDrain() {
	var deadline <-chan time.Time
	if d.config.ServerCloseTimeout > 0 {
		timer := time.NewTimer(d.config.ServerCloseTimeout)
		defer timer.Stop()
		deadline = timer.C
	}
	select {
	case <-d.incoming.awaitDrained():
	case <-deadline:
		d.logger.Warnf("dialogue: closing with %d incoming request(s) still unanswered", d.incoming.size())
	case <-d.ctx.Done():
	}
}

// PollInbound returns the next fresh packet, or ok=false at end of stream
// or on a transport error.
func (d *Dialogue) PollInbound(ctx context.Context) (types.Packet, bool) {
	select {
	case p, ok := <-d.fresh:
		return p, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Flush completes when all started sends have been accepted by the
// transport.
func (d *Dialogue) Flush(ctx context.Context) error {
	return d.transport.Flush(ctx)
}

// SendMessage stamps Message kind and sends a fire-and-forget packet. p
// should carry data: a Message with no data collides with the shutdown
// signal on the wire.
func (d *Dialogue) SendMessage(p types.Packet) error {
	if _, hasData := p.Data(); !hasData {
		d.logger.Warn("SendMessage called with no data; this collides with the shutdown signal")
	}
	p.SetKind(types.Message)
	return d.rawSend(p)
}

// Close initiates the role-appropriate shutdown and returns once it
// completes or ctx is done.
func (d *Dialogue) Close(ctx context.Context) error {
	d.shutdown.beginLocalClose()
	select {
	case <-d.shutdown.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed returns a channel closed once the Dialogue has fully shut down.
func (d *Dialogue) Closed() <-chan struct{} {
	return d.shutdown.Done()
}
