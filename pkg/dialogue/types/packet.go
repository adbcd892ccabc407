package types

// PacketKind identifies the protocol role a Packet is playing on the wire.
// The core never inspects payload bytes, only kind and data-presence.
type PacketKind uint8

const (
	// Message is a fire-and-forget packet. Also carries the shutdown
	// signal when sent with no data.
	Message PacketKind = iota

	// Request opens a one-shot RPC, or, sent with no data against a live
	// outgoing id, cancels it.
	Request

	// Response answers a Request. Sent with no data it means the peer
	// declined to answer.
	Response

	// DuplexInitial opens a new duplex.
	DuplexInitial

	// DuplexRequest carries duplex payload in the initiator->peer direction.
	DuplexRequest

	// DuplexResponse carries duplex payload in the peer->initiator direction.
	DuplexResponse

	// DuplexRequestEnd half-closes the DuplexRequest direction.
	DuplexRequestEnd

	// DuplexResponseEnd half-closes the DuplexResponse direction.
	DuplexResponseEnd
)

func (k PacketKind) String() string {
	switch k {
	case Message:
		return "Message"
	case Request:
		return "Request"
	case Response:
		return "Response"
	case DuplexInitial:
		return "DuplexInitial"
	case DuplexRequest:
		return "DuplexRequest"
	case DuplexResponse:
		return "DuplexResponse"
	case DuplexRequestEnd:
		return "DuplexRequestEnd"
	case DuplexResponseEnd:
		return "DuplexResponseEnd"
	default:
		return "Unknown"
	}
}

// Packet is the opaque value the core dispatches on. Bit-exact wire layout
// is left entirely to the implementation; the core only ever reads id,
// kind, and whether data is present.
type Packet interface {
	// ID returns the packet's id. Meaningless for Message packets.
	ID() uint32

	// SetID stamps the packet's id.
	SetID(id uint32)

	// Kind returns the packet's kind.
	Kind() PacketKind

	// SetKind stamps the packet's kind.
	SetKind(kind PacketKind)

	// Data returns the payload and whether one is present. The overloaded
	// "no data" signal is documented per-kind on the PacketKind constants.
	Data() ([]byte, bool)

	// SetData sets the payload. Passing nil clears it (data = none).
	SetData(data []byte)
}

// Factory constructs an empty Packet of the implementation's concrete type.
// The core only ever builds packets through a Factory, never a literal.
type Factory func() Packet
