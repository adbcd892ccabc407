package core

import (
	"context"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// ResponseHandle is the live handle over an OutstandingRequest: an
// outgoing request awaiting a response.
type ResponseHandle struct {
	d     *Dialogue
	id    uint32
	entry *outstandingEntry
}

// ID returns the request's id.
func (h *ResponseHandle) ID() uint32 { return h.id }

// Await blocks until the response arrives, the dialogue closes, or ctx is
// done. It resolves to (packet, nil) if a response with data was
// delivered, (nil, nil) if the response carried no data (peer declined),
// or (nil, types.ErrDialogueClosed) if the dialogue terminated first. The
// entry is removed once consumed.
func (h *ResponseHandle) Await(ctx context.Context) (types.Packet, error) {
	select {
	case <-h.entry.notify:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.d.ctx.Done():
		select {
		case <-h.entry.notify:
			// Resolved before the dialogue ended; report what was delivered.
		default:
			h.d.outstanding.drop(h.id)
			return nil, types.ErrDialogueClosed
		}
	}

	defer h.d.outstanding.drop(h.id)

	switch h.entry.slot {
	case slotReceived:
		if _, ok := h.entry.packet.Data(); ok {
			return h.entry.packet, nil
		}
		return nil, nil
	case slotDialogueClosed:
		return nil, types.ErrDialogueClosed
	default:
		return nil, types.ErrDialogueClosed
	}
}

// Cancel withdraws the request: if no response has arrived yet, emits
// Request{id, none} and removes the entry. Idempotent and never fails,
// the idiomatic-Go stand-in for dropping the handle, since Go has no
// destructors.
func (h *ResponseHandle) Cancel() {
	select {
	case <-h.entry.notify:
		// Already resolved; just forget it.
		h.d.outstanding.drop(h.id)
		return
	default:
	}
	if !h.d.outstanding.has(h.id) {
		// Already cancelled; the cancellation notice went out once.
		return
	}

	p := h.d.factory()
	p.SetID(h.id)
	p.SetKind(types.Request)
	p.SetData(nil)
	_ = h.d.rawSend(p)
	h.d.outstanding.drop(h.id)
}

// Request issues a new outstanding request: stamps a fresh id and Request
// kind, sends it, and registers the OutstandingRequest entry.
func (d *Dialogue) Request(ctx context.Context, p types.Packet) (*ResponseHandle, error) {
	if d.shutdown.hasCommittedToClosing() {
		return nil, types.ErrDialogueClosed
	}
	id := d.requestIDs.alloc(d.outstanding.liveIDs())
	p.SetID(id)
	p.SetKind(types.Request)

	entry := d.outstanding.register(id)
	if err := d.rawSend(p); err != nil {
		d.outstanding.drop(id)
		return nil, err
	}
	d.metrics().SetTableSize("outstanding", d.outstanding.size())
	return &ResponseHandle{d: d, id: id, entry: entry}, nil
}
