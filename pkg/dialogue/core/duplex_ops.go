package core

import "github.com/jabolina/go-dialogue/pkg/dialogue/types"

// onDuplexPeerEnd applies the peer's end packet to entry's read half. It
// does not touch the write half: the peer ending their direction is not a
// cue to end ours too, since we may still have outbound payload queued to
// send on our own half (the happy-path duplex exchange answers after
// observing the peer's end). Our own end packet is emitted separately,
// from End, Close, or the Server's finish-normally close step.
func (d *Dialogue) onDuplexPeerEnd(entry *duplexEntry, p types.Packet, hasData bool) {
	entry.mutex.Lock()
	if hasData {
		data, _ := p.Data()
		entry.endErr = data
	}
	entry.read = halfClosed
	entry.mutex.Unlock()
	entry.wake()

	d.maybeRemoveDuplex(entry)
}

// sendDuplexEnd sends this side's end packet on entry's write half, unless
// it has already been sent. errData nil means a normal close; non-nil
// means an abnormal close carrying an error payload.
func (d *Dialogue) sendDuplexEnd(entry *duplexEntry, errData []byte) error {
	entry.mutex.Lock()
	if entry.write != halfOpen {
		entry.mutex.Unlock()
		return nil
	}
	entry.write = halfClosedSent
	dir := entry.dir
	id := entry.id
	entry.mutex.Unlock()

	_, endKind := outboundKinds(dir)
	p := d.factory()
	p.SetID(id)
	p.SetKind(endKind)
	p.SetData(errData)
	err := d.rawSend(p)

	d.maybeRemoveDuplex(entry)
	return err
}

// closeDuplexWriteHalf sends a normal end packet if the write half is
// still open, used both by Dialogue.finishAllNormally (the Server's close
// sequence) and DuplexHandle.Close (drop semantics).
func (d *Dialogue) closeDuplexWriteHalf(entry *duplexEntry) {
	_ = d.sendDuplexEnd(entry, nil)
}

// maybeRemoveDuplex removes the table entry once both halves have
// exchanged an end packet. The Go handle object remains valid to
// reference but further operations observe the entry is gone, the
// idiomatic-Go substitute for dropping the handle (Go has no destructors
// to hook).
func (d *Dialogue) maybeRemoveDuplex(entry *duplexEntry) {
	entry.mutex.Lock()
	done := entry.write != halfOpen && entry.read != halfOpen
	entry.mutex.Unlock()
	if done {
		d.duplexes.drop(entry.id)
		d.metrics().SetTableSize("duplex", d.duplexes.size())
	}
}
