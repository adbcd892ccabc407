package core

import (
	"sync"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// responseSlot reports what an OutstandingRequest's awaiter resolves to.
type responseSlot uint8

const (
	slotEmpty responseSlot = iota
	slotReceived
	slotDialogueClosed
)

// outstandingEntry is an OutstandingRequest: an outgoing request awaiting
// a response. The response slot is explicit rather than overloading a
// single channel value, so the awaiter can distinguish "received" from
// "dialogue closed" after the channel fires.
type outstandingEntry struct {
	id     uint32
	slot   responseSlot
	packet types.Packet
	notify chan struct{}
	closed bool
}

// outstandingTable maps outgoing request id -> pending-response handle.
type outstandingTable struct {
	mutex   sync.Mutex
	entries map[uint32]*outstandingEntry
}

func newOutstandingTable() *outstandingTable {
	return &outstandingTable{entries: make(map[uint32]*outstandingEntry)}
}

func (t *outstandingTable) register(id uint32) *outstandingEntry {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	e := &outstandingEntry{id: id, notify: make(chan struct{})}
	t.entries[id] = e
	return e
}

// deliver fills the slot and wakes the awaiter. Returns false if no live
// entry was found for id (a stale response to an id the local side has
// already forgotten); the caller drops it without touching any state.
func (t *outstandingTable) deliver(id uint32, p types.Packet) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	e, ok := t.entries[id]
	if !ok || e.closed {
		return false
	}
	e.packet = p
	e.slot = slotReceived
	e.closed = true
	close(e.notify)
	return true
}

func (t *outstandingTable) closeAll() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for _, e := range t.entries {
		if !e.closed {
			e.slot = slotDialogueClosed
			e.closed = true
			close(e.notify)
		}
	}
}

// drop removes the entry (handle destruction / drop).
func (t *outstandingTable) drop(id uint32) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.entries, id)
}

func (t *outstandingTable) has(id uint32) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	_, ok := t.entries[id]
	return ok
}

func (t *outstandingTable) size() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}

func (t *outstandingTable) liveIDs() map[uint32]struct{} {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	live := make(map[uint32]struct{}, len(t.entries))
	for id := range t.entries {
		live[id] = struct{}{}
	}
	return live
}

// incomingEntry is an IncomingRequest: a received-but-unanswered request.
// Structurally close to outstandingEntry but keyed by a peer-chosen id
// and carrying a cancellation flag instead of a response slot.
type incomingEntry struct {
	id         uint32
	packet     types.Packet
	cancelled  bool
	notify     chan struct{}
	notifyOnce sync.Once
}

func (e *incomingEntry) fireCancelled() {
	e.notifyOnce.Do(func() {
		e.cancelled = true
		close(e.notify)
	})
}

// incomingTable tracks received-but-unanswered request ids, the same
// table shape as outstandingTable viewed from the other side. drained is a
// close-once-to-broadcast channel, the same idiom as an entry's notify
// channel, but scoped to the whole table: it is replaced with a fresh,
// open channel the moment the table becomes non-empty, and closed again
// the moment the last entry is removed, so a waiter can block on "every
// incoming request has been resolved" without polling.
type incomingTable struct {
	mutex   sync.Mutex
	entries map[uint32]*incomingEntry
	drained chan struct{}
}

func newIncomingTable() *incomingTable {
	drained := make(chan struct{})
	close(drained)
	return &incomingTable{entries: make(map[uint32]*incomingEntry), drained: drained}
}

func (t *incomingTable) adopt(id uint32, p types.Packet) (*incomingEntry, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, exists := t.entries[id]; exists {
		return nil, false
	}
	if len(t.entries) == 0 {
		t.drained = make(chan struct{})
	}
	e := &incomingEntry{id: id, packet: p, notify: make(chan struct{})}
	t.entries[id] = e
	return e, true
}

// awaitDrained returns the channel that is closed once every currently
// registered incoming request has been removed (answered, declined, or
// dropped). Safe to call when the table is already empty: the returned
// channel is already closed.
func (t *incomingTable) awaitDrained() <-chan struct{} {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.drained
}

func (t *incomingTable) get(id uint32) (*incomingEntry, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

func (t *incomingTable) has(id uint32) bool {
	_, ok := t.get(id)
	return ok
}

func (t *incomingTable) drop(id uint32) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, exists := t.entries[id]; !exists {
		return
	}
	delete(t.entries, id)
	if len(t.entries) == 0 {
		close(t.drained)
	}
}

func (t *incomingTable) size() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}

// halfState is shared by both the local write half and the local read half
// of a Duplex.
type halfState uint8

const (
	halfOpen halfState = iota
	halfClosedSent
	halfClosed
)

// direction records which side opened the duplex.
type direction uint8

const (
	dirOut direction = iota // initiated-by-us
	dirIn                   // initiated-by-peer
)

// duplexEntry is the Duplex state for one id.
type duplexEntry struct {
	mutex sync.Mutex

	id  uint32
	dir direction

	write halfState // our outbound half
	read  halfState // our inbound half

	inbound []types.Packet
	waker   chan struct{}

	// endErr latches an abnormal end payload surfaced to the reader once.
	endErr     []byte
	endErrSeen bool
}

func newDuplexEntry(id uint32, dir direction) *duplexEntry {
	return &duplexEntry{
		id:    id,
		dir:   dir,
		write: halfOpen,
		read:  halfOpen,
		waker: make(chan struct{}, 1),
	}
}

// wake signals a blocked reader without blocking the sender (buffered
// capacity 1, matching a level-triggered waker rather than an edge count).
func (e *duplexEntry) wake() {
	select {
	case e.waker <- struct{}{}:
	default:
	}
}

func (e *duplexEntry) enqueue(p types.Packet) {
	e.mutex.Lock()
	e.inbound = append(e.inbound, p)
	e.mutex.Unlock()
	e.wake()
}

// duplexTable maps duplex id -> per-duplex state.
type duplexTable struct {
	mutex   sync.Mutex
	entries map[uint32]*duplexEntry
}

func newDuplexTable() *duplexTable {
	return &duplexTable{entries: make(map[uint32]*duplexEntry)}
}

func (t *duplexTable) create(id uint32, dir direction) *duplexEntry {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	e := newDuplexEntry(id, dir)
	t.entries[id] = e
	return e
}

func (t *duplexTable) get(id uint32) (*duplexEntry, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

func (t *duplexTable) drop(id uint32) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.entries, id)
}

func (t *duplexTable) size() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}

func (t *duplexTable) liveIDs() map[uint32]struct{} {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	live := make(map[uint32]struct{}, len(t.entries))
	for id := range t.entries {
		live[id] = struct{}{}
	}
	return live
}

func (t *duplexTable) all() []*duplexEntry {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	all := make([]*duplexEntry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	return all
}
