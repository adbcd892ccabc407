package core

import (
	"context"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// multiplexer is the read-side dispatcher: a single goroutine owns the
// read side, pulls packets from the transport, and routes each to the
// right table entry or to the "fresh incoming" output. Anything nobody is
// listening for gets dropped rather than buffered indefinitely.
type multiplexer struct {
	dialogue *Dialogue
}

func newMultiplexer(d *Dialogue) *multiplexer {
	return &multiplexer{dialogue: d}
}

// pump is the read loop. It runs until ctx is cancelled or the transport
// ends/fails, at which point it latches the dialogue closed: a transport
// error or protocol violation is terminal for every handle still live.
func (m *multiplexer) pump(ctx context.Context) {
	d := m.dialogue
	for {
		p, err := d.transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// The dialogue's own lifecycle context was cancelled first
				// (a prior Close, protocol violation, or transport fault
				// already ran teardown): this Recv failure is just the read
				// loop unblocking, not a new fault worth an error log.
				d.logger.Debugf("dialogue: read loop stopping: %v", err)
				d.shutdown.finish()
				return
			}
			d.latchTransportError(&types.TransportReceiveError{Err: err})
			return
		}
		if p == nil {
			// clean end of stream
			d.latchClosed()
			return
		}
		if violation := m.dispatch(p); violation != nil {
			d.latchTransportError(violation)
			return
		}
	}
}

// dispatch routes one inbound packet by kind and id. Returns a non-nil
// *types.ProtocolViolation when the packet is structurally illegal; the
// caller treats that as terminal.
func (m *multiplexer) dispatch(p types.Packet) *types.ProtocolViolation {
	d := m.dialogue
	kind := p.Kind()
	_, hasData := p.Data()

	switch kind {
	case types.Message:
		if hasData {
			d.publishFresh(p)
		} else {
			d.metrics().IncDispatched(kind)
			d.shutdown.onPeerCloseMessage()
		}
		return nil

	case types.Request:
		return m.dispatchRequest(p, hasData)

	case types.Response:
		id := p.ID()
		if d.outstanding.deliver(id, p) {
			d.metrics().IncDispatched(kind)
		} else {
			d.metrics().IncDropped(kind)
		}
		return nil

	case types.DuplexInitial:
		d.publishFresh(p)
		return nil

	case types.DuplexRequest, types.DuplexResponse, types.DuplexRequestEnd, types.DuplexResponseEnd:
		return m.dispatchDuplex(p, kind, hasData)

	default:
		return &types.ProtocolViolation{Reason: "unknown packet kind", ID: p.ID(), Kind: kind}
	}
}

func (m *multiplexer) dispatchRequest(p types.Packet, hasData bool) *types.ProtocolViolation {
	d := m.dialogue
	id := p.ID()

	if entry, exists := d.incoming.get(id); exists {
		// Cancellation notice for an id already registered locally.
		if hasData {
			return &types.ProtocolViolation{
				Reason: "Request with data reused a live incoming id",
				ID:     id,
				Kind:   types.Request,
			}
		}
		entry.fireCancelled()
		d.metrics().IncDispatched(types.Request)
		return nil
	}

	// Fresh incoming request: published for the user to adopt.
	d.publishFresh(p)
	return nil
}

func (m *multiplexer) dispatchDuplex(p types.Packet, kind types.PacketKind, hasData bool) *types.ProtocolViolation {
	d := m.dialogue
	id := p.ID()

	entry, ok := d.duplexes.get(id)
	if !ok {
		d.metrics().IncDropped(kind)
		return nil // duplex already torn down locally
	}

	entry.mutex.Lock()
	expectedData, expectedEnd := inboundKinds(entry.dir)
	readState := entry.read
	entry.mutex.Unlock()

	switch kind {
	case expectedData:
		if readState != halfOpen {
			return &types.ProtocolViolation{
				Reason: "duplex data packet after the peer's end packet",
				ID:     id,
				Kind:   kind,
			}
		}
		entry.enqueue(p)
		d.metrics().IncDispatched(kind)
		return nil

	case expectedEnd:
		if readState != halfOpen {
			return &types.ProtocolViolation{Reason: "duplicate duplex end packet", ID: id, Kind: kind}
		}
		d.onDuplexPeerEnd(entry, p, hasData)
		d.metrics().IncDispatched(kind)
		return nil

	default:
		// Wrong-direction kind for this entry: drop silently, the entry is
		// on its way out locally.
		d.metrics().IncDropped(kind)
		return nil
	}
}

// inboundKinds returns the (data, end) packet kinds this side expects to
// receive from the peer for a duplex of the given local direction: the
// initiator sends DuplexRequest/DuplexRequestEnd, the adopter sends
// DuplexResponse/DuplexResponseEnd (see DESIGN.md for the reasoning).
func inboundKinds(dir direction) (data, end types.PacketKind) {
	if dir == dirOut {
		return types.DuplexResponse, types.DuplexResponseEnd
	}
	return types.DuplexRequest, types.DuplexRequestEnd
}

// outboundKinds returns the (data, end) packet kinds this side sends for a
// duplex of the given local direction.
func outboundKinds(dir direction) (data, end types.PacketKind) {
	if dir == dirOut {
		return types.DuplexRequest, types.DuplexRequestEnd
	}
	return types.DuplexResponse, types.DuplexResponseEnd
}
