package core

import (
	"context"
	"fmt"
	"io"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// DuplexHandle is the live handle over a Duplex: a bidirectional stream
// of packets sharing an id, with independently-closable halves.
type DuplexHandle struct {
	d     *Dialogue
	entry *duplexEntry
}

// ID returns the duplex's id.
func (h *DuplexHandle) ID() uint32 { return h.entry.id }

// Send writes a duplex payload packet on the outbound direction for this
// side. Fails if the write half is no longer open.
func (h *DuplexHandle) Send(ctx context.Context, p types.Packet) error {
	h.entry.mutex.Lock()
	open := h.entry.write == halfOpen
	dataKind, _ := outboundKinds(h.entry.dir)
	h.entry.mutex.Unlock()
	if !open {
		return fmt.Errorf("dialogue: duplex %d write half is closed", h.entry.id)
	}

	p.SetID(h.entry.id)
	p.SetKind(dataKind)
	return h.d.rawSend(p)
}

// Recv blocks until a buffered inbound packet is available, the peer's end
// packet has been fully drained, or ctx/the dialogue ends. Returns
// io.EOF once the peer's normal end has been drained, or a
// *types.DuplexEndError exactly once if the end was abnormal.
func (h *DuplexHandle) Recv(ctx context.Context) (types.Packet, error) {
	for {
		h.entry.mutex.Lock()
		if len(h.entry.inbound) > 0 {
			p := h.entry.inbound[0]
			h.entry.inbound = h.entry.inbound[1:]
			h.entry.mutex.Unlock()
			return p, nil
		}
		if h.entry.read != halfOpen {
			if !h.entry.endErrSeen && h.entry.endErr != nil {
				h.entry.endErrSeen = true
				errData := h.entry.endErr
				h.entry.mutex.Unlock()
				h.d.maybeRemoveDuplex(h.entry)
				return nil, &types.DuplexEndError{Data: errData}
			}
			h.entry.mutex.Unlock()
			h.d.maybeRemoveDuplex(h.entry)
			return nil, io.EOF
		}
		h.entry.mutex.Unlock()

		select {
		case <-h.entry.waker:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-h.d.ctx.Done():
			return nil, types.ErrDialogueClosed
		}
	}
}

// End half-closes our write direction. errData nil sends a normal close;
// non-nil sends an abnormal close carrying that payload.
func (h *DuplexHandle) End(errData []byte) error {
	return h.d.sendDuplexEnd(h.entry, errData)
}

// Close is the idiomatic-Go stand-in for dropping the handle: if the
// write half is still open it emits a normal end packet; buffered inbound
// packets are discarded.
func (h *DuplexHandle) Close() {
	h.d.closeDuplexWriteHalf(h.entry)
	h.entry.mutex.Lock()
	h.entry.inbound = nil
	h.entry.mutex.Unlock()
}

// OpenDuplex opens a new, locally-initiated duplex: stamps a fresh id and
// DuplexInitial kind, sends initial, and creates the Out-duplex entry.
func (d *Dialogue) OpenDuplex(initial types.Packet) (*DuplexHandle, error) {
	if d.shutdown.hasCommittedToClosing() {
		return nil, types.ErrDialogueClosed
	}
	id := d.duplexIDs.alloc(d.duplexes.liveIDs())
	initial.SetID(id)
	initial.SetKind(types.DuplexInitial)

	entry := d.duplexes.create(id, dirOut)
	if err := d.rawSend(initial); err != nil {
		d.duplexes.drop(id)
		return nil, err
	}
	d.metrics().SetTableSize("duplex", d.duplexes.size())
	return &DuplexHandle{d: d, entry: entry}, nil
}

// AdoptAsDuplex adopts a received DuplexInitial packet, creating the
// In-duplex entry. Kind must be types.DuplexInitial.
func (d *Dialogue) AdoptAsDuplex(initial types.Packet) (*DuplexHandle, error) {
	if initial.Kind() != types.DuplexInitial {
		return nil, fmt.Errorf("dialogue: AdoptAsDuplex requires a DuplexInitial packet, got %s", initial.Kind())
	}
	id := initial.ID()
	entry := d.duplexes.create(id, dirIn)
	d.metrics().SetTableSize("duplex", d.duplexes.size())
	return &DuplexHandle{d: d, entry: entry}, nil
}
