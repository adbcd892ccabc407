package core_test

import (
	"context"
	"io"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/go-dialogue/pkg/dialogue/core"
	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
	"github.com/jabolina/go-dialogue/pkg/dialogue/wire"
)

// newPair wires a Client Dialogue and a Server Dialogue back to back over
// an in-memory pipe, for a single two-party link.
func newPair(t *testing.T) (client, server *core.Dialogue) {
	t.Helper()
	a, b := newPipe()

	client, err := core.New(a, wire.NewFactory(), types.DefaultConfig(types.Client))
	if err != nil {
		t.Fatalf("new client dialogue: %v", err)
	}
	server, err = core.New(b, wire.NewFactory(), types.DefaultConfig(types.Server))
	if err != nil {
		t.Fatalf("new server dialogue: %v", err)
	}
	return client, server
}

func withTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// closeBoth runs the close handshake (idempotent if one side already
// started it) and waits for both ends to settle. Every test defers this
// *after* its goleak.VerifyNone defer, so — deferred calls unwind
// last-registered-first — the handshake (and the pump goroutines it stops)
// completes before the leak check runs.
func closeBoth(t *testing.T, client, server *core.Dialogue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = client.Close(ctx)
	select {
	case <-server.Closed():
	case <-ctx.Done():
	}
}

// scenario 1: message ping. A sends a Message; B's inbound yields it and no
// state is retained on either side.
func TestMessagePing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := newPair(t)
	defer closeBoth(t, client, server)

	if err := client.SendMessage(wire.New([]byte("hi"))); err != nil {
		t.Fatalf("send message: %v", err)
	}

	ctx, cancel := withTimeout(t)
	defer cancel()
	p, ok := server.PollInbound(ctx)
	if !ok {
		t.Fatal("expected inbound message")
	}
	if p.Kind() != types.Message {
		t.Fatalf("expected Message kind, got %s", p.Kind())
	}
	data, has := p.Data()
	if !has || string(data) != "hi" {
		t.Fatalf("unexpected data: %q (has=%v)", data, has)
	}
}

// scenario 2: request/response round trip.
func TestRequestResponse(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := newPair(t)
	defer closeBoth(t, client, server)

	ctx, cancel := withTimeout(t)
	defer cancel()

	rh, err := client.Request(ctx, wire.New([]byte("q")))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	inbound, ok := server.PollInbound(ctx)
	if !ok || inbound.Kind() != types.Request {
		t.Fatalf("expected inbound Request, got %v ok=%v", inbound, ok)
	}
	reqH, err := server.AdoptAsRequest(inbound)
	if err != nil {
		t.Fatalf("adopt request: %v", err)
	}
	if err := reqH.Respond(wire.New([]byte("r"))); err != nil {
		t.Fatalf("respond: %v", err)
	}

	resp, err := rh.Await(ctx)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	data, _ := resp.Data()
	if string(data) != "r" {
		t.Fatalf("expected %q, got %q", "r", data)
	}
}

// scenario 3: peer declines, the requester's awaiter resolves to None.
func TestPeerDeclines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := newPair(t)
	defer closeBoth(t, client, server)

	ctx, cancel := withTimeout(t)
	defer cancel()

	rh, err := client.Request(ctx, wire.New([]byte("q")))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	inbound, _ := server.PollInbound(ctx)
	reqH, err := server.AdoptAsRequest(inbound)
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if err := reqH.Cancel(); err != nil {
		t.Fatalf("decline: %v", err)
	}

	resp, err := rh.Await(ctx)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil packet for a decline, got %v", resp)
	}
}

// scenario 4: the requester cancels before a response arrives (the
// idiomatic-Go stand-in for dropping the ResponseHandle); the peer's
// RequestHandle awaiter fires the cancellation notice, and a late response
// sent anyway is dropped silently by the requester.
func TestRequesterCancels(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := newPair(t)
	defer closeBoth(t, client, server)

	ctx, cancel := withTimeout(t)
	defer cancel()

	rh, err := client.Request(ctx, wire.New([]byte("q")))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	inbound, _ := server.PollInbound(ctx)
	reqH, err := server.AdoptAsRequest(inbound)
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}

	rh.Cancel()

	if !reqH.AwaitCancelled(ctx) {
		t.Fatal("expected the peer to observe the cancellation notice")
	}

	// The peer answers anyway; the requester already forgot the id and
	// must drop the late response without error.
	if err := reqH.Respond(wire.New([]byte("late"))); err != nil {
		t.Fatalf("late respond: %v", err)
	}

	// Give the multiplexer a beat to dispatch (and silently drop) the
	// stale response before the test ends and the leak check runs.
	if err := client.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
}

// scenario 5: duplex happy path, both directions exchange data then close
// normally, each exchanging exactly one end packet per direction.
func TestDuplexHappyPath(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := newPair(t)
	defer closeBoth(t, client, server)

	ctx, cancel := withTimeout(t)
	defer cancel()

	out, err := client.OpenDuplex(wire.New([]byte("init")))
	if err != nil {
		t.Fatalf("open duplex: %v", err)
	}

	initial, ok := server.PollInbound(ctx)
	if !ok || initial.Kind() != types.DuplexInitial {
		t.Fatalf("expected DuplexInitial, got %v ok=%v", initial, ok)
	}
	in, err := server.AdoptAsDuplex(initial)
	if err != nil {
		t.Fatalf("adopt duplex: %v", err)
	}

	if err := out.Send(ctx, wire.New([]byte("a1"))); err != nil {
		t.Fatalf("send a1: %v", err)
	}
	if err := out.Send(ctx, wire.New([]byte("a2"))); err != nil {
		t.Fatalf("send a2: %v", err)
	}
	out.Close()

	var got []string
	for {
		p, err := in.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		data, _ := p.Data()
		got = append(got, string(data))
	}
	if len(got) != 2 || got[0] != "a1" || got[1] != "a2" {
		t.Fatalf("unexpected sequence: %v", got)
	}

	if err := in.Send(ctx, wire.New([]byte("b1"))); err != nil {
		t.Fatalf("send b1: %v", err)
	}
	in.Close()

	p, err := out.Recv(ctx)
	if err != nil {
		t.Fatalf("recv b1: %v", err)
	}
	data, _ := p.Data()
	if string(data) != "b1" {
		t.Fatalf("expected b1, got %q", data)
	}
	if _, err := out.Recv(ctx); err != io.EOF {
		t.Fatalf("expected EOF after drain, got %v", err)
	}
}

// scenario 6: asymmetric shutdown. The Client closes first; the Server
// finishes outstanding work then replies in kind; afterward further sends
// on the Client observe DialogueClosed.
func TestAsymmetricShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := newPair(t)
	defer closeBoth(t, client, server)

	ctx, cancel := withTimeout(t)
	defer cancel()

	if err := client.Close(ctx); err != nil {
		t.Fatalf("client close: %v", err)
	}

	select {
	case <-server.Closed():
	case <-ctx.Done():
		t.Fatal("server never observed the close handshake")
	}
	select {
	case <-client.Closed():
	case <-ctx.Done():
		t.Fatal("client never finished closing")
	}

	if err := client.SendMessage(wire.New([]byte("too late"))); err == nil {
		t.Fatal("expected send after close to fail")
	}
}
