package core_test

import (
	"context"
	"io"
	"sync"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// pipeTransport is an in-memory types.Transport test double: two instances
// created by newPipe are wired so that Send on one becomes Recv on the
// other, without touching any real socket.
type pipeTransport struct {
	out chan types.Packet
	in  chan types.Packet

	closeOnce sync.Once
	closed    chan struct{}
}

// newPipe returns two transports, A and B, connected back to back.
func newPipe() (a, b *pipeTransport) {
	ab := make(chan types.Packet, 64)
	ba := make(chan types.Packet, 64)
	a = &pipeTransport{out: ab, in: ba, closed: make(chan struct{})}
	b = &pipeTransport{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (p *pipeTransport) Send(ctx context.Context, pkt types.Packet) error {
	select {
	case p.out <- pkt:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) Recv(ctx context.Context) (types.Packet, error) {
	select {
	case pkt, ok := <-p.in:
		if !ok {
			return nil, nil
		}
		return pkt, nil
	case <-p.closed:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Flush(ctx context.Context) error {
	return nil
}

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}
