// Package wire provides a reference types.Packet implementation used by
// tests and examples: a value holder whose data being nil or present
// carries protocol meaning on its own. Bit-exact wire layout is left to
// the host application; this is one legitimate choice among many.
package wire

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// Packet is an in-memory types.Packet. Content == nil is the "no data"
// signal the core overloads per kind; Trace is a human-debuggable
// correlation id useful for following one exchange across log lines.
type Packet struct {
	id      uint32
	kind    types.PacketKind
	Content []byte
	Trace   string
}

// NewFactory returns a types.Factory minting empty *Packet values, each
// stamped with a fresh trace id for debugging.
func NewFactory() types.Factory {
	return func() types.Packet {
		return &Packet{Trace: uuid.NewString()}
	}
}

func (p *Packet) ID() uint32      { return p.id }
func (p *Packet) SetID(id uint32) { p.id = id }

func (p *Packet) Kind() types.PacketKind        { return p.kind }
func (p *Packet) SetKind(kind types.PacketKind) { p.kind = kind }

func (p *Packet) Data() ([]byte, bool) { return p.Content, p.Content != nil }

func (p *Packet) SetData(data []byte) { p.Content = data }

func (p *Packet) String() string {
	data, ok := p.Data()
	if !ok {
		return fmt.Sprintf("Packet{id=%d kind=%s data=none trace=%s}", p.id, p.kind, p.Trace)
	}
	return fmt.Sprintf("Packet{id=%d kind=%s data=%q trace=%s}", p.id, p.kind, data, p.Trace)
}

// New builds a *Packet carrying data, ready to be handed to one of the
// Dialogue send operations which will stamp id and kind.
func New(data []byte) *Packet {
	return &Packet{Content: data, Trace: uuid.NewString()}
}

// NewEmpty builds a *Packet with no data, e.g. for a decline/cancel/end
// packet where the protocol meaning is "data = none".
func NewEmpty() *Packet {
	return &Packet{Trace: uuid.NewString()}
}
