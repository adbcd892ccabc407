package core

import (
	"context"
	"fmt"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// RequestHandle is the live handle over an IncomingRequest: a received
// request not yet resolved.
type RequestHandle struct {
	d      *Dialogue
	id     uint32
	packet types.Packet
	entry  *incomingEntry
}

// ID returns the request's id.
func (h *RequestHandle) ID() uint32 { return h.id }

// Data returns the request's payload and whether one is present.
func (h *RequestHandle) Data() ([]byte, bool) { return h.packet.Data() }

// Respond answers the request: emits Response with this id, then removes
// the entry.
func (h *RequestHandle) Respond(response types.Packet) error {
	response.SetID(h.id)
	response.SetKind(types.Response)
	err := h.d.rawSend(response)
	h.d.incoming.drop(h.id)
	return err
}

// Cancel declines the request: emits Response{id, none}, then removes the
// entry.
func (h *RequestHandle) Cancel() error {
	p := h.d.factory()
	p.SetID(h.id)
	p.SetKind(types.Response)
	p.SetData(nil)
	err := h.d.rawSend(p)
	h.d.incoming.drop(h.id)
	return err
}

// Close withdraws local interest without responding: the entry is removed
// silently, no packet is emitted, and the peer may time out waiting for an
// answer. The idiomatic-Go stand-in for dropping the handle without
// responding.
func (h *RequestHandle) Close() {
	h.d.incoming.drop(h.id)
}

// AwaitCancelled blocks until the peer sends a Request-with-no-data for
// this id (a cancellation notice), or ctx/the dialogue ends first.
// Returns true only when the cancellation notice was observed.
func (h *RequestHandle) AwaitCancelled(ctx context.Context) bool {
	select {
	case <-h.entry.notify:
		return h.entry.cancelled
	case <-ctx.Done():
		return false
	case <-h.d.ctx.Done():
		return false
	}
}

// AdoptAsRequest adopts a received Request packet (kind must be
// types.Request), registering the IncomingRequest entry.
func (d *Dialogue) AdoptAsRequest(p types.Packet) (*RequestHandle, error) {
	if p.Kind() != types.Request {
		return nil, fmt.Errorf("dialogue: AdoptAsRequest requires a Request packet, got %s", p.Kind())
	}
	id := p.ID()
	entry, ok := d.incoming.adopt(id, p)
	if !ok {
		return nil, fmt.Errorf("dialogue: incoming request id %d already adopted", id)
	}
	d.metrics().SetTableSize("incoming", d.incoming.size())
	return &RequestHandle{d: d, id: id, packet: p, entry: entry}, nil
}
