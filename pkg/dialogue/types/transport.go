package types

import "context"

// Transport is the bidirectional, ordered, reliable channel of packets the
// core multiplexes over. Framing, encoding, flow control and connection
// setup are the implementation's concern; the core only Send, Recv and
// Flush. A dedicated goroutine owns the read side, while Send/Flush are
// called directly by whichever goroutine is writing.
type Transport interface {
	// Send submits a packet for delivery. It may block until the transport
	// can accept it; on failure it returns a non-nil error, which the
	// Dialogue wraps in a TransportSendError.
	Send(ctx context.Context, p Packet) error

	// Recv blocks until the next packet arrives, the context is cancelled,
	// or the transport fails. A nil packet with nil error signals a clean
	// end of stream.
	Recv(ctx context.Context) (Packet, error)

	// Flush blocks until every packet submitted to Send has been accepted
	// by the underlying channel.
	Flush(ctx context.Context) error

	// Close releases the transport. Idempotent.
	Close() error
}
