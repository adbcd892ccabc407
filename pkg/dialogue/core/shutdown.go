package core

import (
	"sync"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// shutdownPhase tracks how far the local side has progressed through the
// close handshake.
type shutdownPhase uint8

const (
	phaseOpen shutdownPhase = iota
	phaseClosing
	phaseClosed
)

// shutdownController implements the asymmetric client/server close
// handshake: a mutex-guarded phase plus a channel that is closed exactly
// once to broadcast completion to every Closed()/Close() waiter.
type shutdownController struct {
	mutex sync.Mutex
	phase shutdownPhase
	done  chan struct{}

	dialogue *Dialogue
}

func newShutdownController(d *Dialogue) *shutdownController {
	return &shutdownController{
		done:     make(chan struct{}),
		dialogue: d,
	}
}

// Done returns a channel closed once the dialogue has fully closed.
func (s *shutdownController) Done() <-chan struct{} {
	return s.done
}

func (s *shutdownController) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.phase == phaseClosed
}

// hasCommittedToClosing reports whether the local side has started its
// close sequence. Once true, Request and OpenDuplex are refused and a
// Client emits no further packet apart from its own closing Message; a
// Server keeps sending until the handshake has fully finished.
func (s *shutdownController) hasCommittedToClosing() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.phase != phaseOpen
}

func (s *shutdownController) finish() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.phase == phaseClosed {
		return
	}
	s.phase = phaseClosed
	close(s.done)
	s.dialogue.outstanding.closeAll()
	s.dialogue.teardown()
}

// beginLocalClose starts the local side's half of the handshake. Called
// both by Dialogue.Close() and, for a Client, after observing an
// unsolicited Server-initiated close Message.
func (s *shutdownController) beginLocalClose() {
	s.mutex.Lock()
	if s.phase != phaseOpen {
		s.mutex.Unlock()
		return
	}
	s.phase = phaseClosing
	s.mutex.Unlock()

	switch s.dialogue.config.Role {
	case types.Client:
		s.clientClose()
	default:
		s.serverClose()
	}
}

// clientClose sends the closing Message and then emits nothing further.
// The dialogue finishes closing once the Server's reply Message
// is observed by the multiplexer (see onPeerCloseMessage), or the
// transport/context ends first. beginLocalClose only ever invokes this
// once per dialogue (guarded by the phaseOpen check), so the closing
// Message's exemption from the post-commit gag is exercised exactly once.
func (s *shutdownController) clientClose() {
	d := s.dialogue
	p := d.factory()
	p.SetKind(types.Message)
	p.SetData(nil)
	_ = d.sendClientClosingMessage(p)
}

// serverClose sends a normal end on every duplex write half still open,
// waits (up to Config.ServerCloseTimeout) for the application to resolve
// every adopted incoming request, then sends its own closing Message, then
// finishes.
func (s *shutdownController) serverClose() {
	d := s.dialogue
	d.finishAllNormally()
	d.awaitIncomingDrain()
	p := d.factory()
	p.SetKind(types.Message)
	p.SetData(nil)
	_ = d.rawSend(p)
	s.finish()
}

// onPeerCloseMessage is invoked by the Multiplexer when it dispatches an
// inbound Message with no data, the shutdown signal.
func (s *shutdownController) onPeerCloseMessage() {
	s.mutex.Lock()
	already := s.phase != phaseOpen
	role := s.dialogue.config.Role
	s.mutex.Unlock()

	switch role {
	case types.Client:
		// Server-initiated close: begin the Client-close sequence if we
		// have not already.
		if !already {
			s.beginLocalClose()
		}
		// Either way, having now seen the Server's Message, the handshake
		// from the Client's point of view is complete.
		s.finish()
	default:
		// Client-initiated close observed by the Server: finish
		// outstanding work, reply, and close.
		if !already {
			s.mutex.Lock()
			s.phase = phaseClosing
			s.mutex.Unlock()
			s.serverClose()
		}
	}
}
