package types

import "fmt"

// Sentinel errors a Dialogue and its handles surface.
var (
	// ErrDialogueClosed is returned by Request and OpenDuplex once the local
	// side has committed to closing, by every send once the dialogue has
	// fully closed (for a Client, already once it has committed to closing),
	// and delivered to every handle still pending when the dialogue closes.
	ErrDialogueClosed = fmt.Errorf("dialogue: closed")
)

// TransportSendError wraps a failure from Transport.Send.
type TransportSendError struct {
	Err error
}

func (e *TransportSendError) Error() string { return fmt.Sprintf("transport send: %v", e.Err) }
func (e *TransportSendError) Unwrap() error  { return e.Err }

// TransportReceiveError wraps a failure from Transport.Recv.
type TransportReceiveError struct {
	Err error
}

func (e *TransportReceiveError) Error() string { return fmt.Sprintf("transport receive: %v", e.Err) }
func (e *TransportReceiveError) Unwrap() error  { return e.Err }

// ProtocolViolation is terminal: the peer sent a structurally illegal
// packet. Equivalent to a transport failure once observed.
type ProtocolViolation struct {
	Reason string
	ID     uint32
	Kind   PacketKind
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation on id=%d kind=%s: %s", e.ID, e.Kind, e.Reason)
}
