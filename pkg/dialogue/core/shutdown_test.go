package core_test

import (
	"io"
	"testing"

	"go.uber.org/goleak"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
	"github.com/jabolina/go-dialogue/pkg/dialogue/wire"
)

// Server-initiated close: the Server sends its closing Message first; the
// Client, on receiving it, runs the Client-close sequence in response.
func TestServerInitiatedClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := newPair(t)
	defer closeBoth(t, client, server)

	ctx, cancel := withTimeout(t)
	defer cancel()

	if err := server.Close(ctx); err != nil {
		t.Fatalf("server close: %v", err)
	}

	select {
	case <-client.Closed():
	case <-ctx.Done():
		t.Fatal("client never observed the server-initiated close")
	}
	select {
	case <-server.Closed():
	case <-ctx.Done():
		t.Fatal("server never finished closing")
	}

	if _, err := client.Request(ctx, wire.New([]byte("x"))); err != types.ErrDialogueClosed {
		t.Fatalf("expected ErrDialogueClosed, got %v", err)
	}
}

// A duplex end packet carrying data signals abnormal termination; the
// reader observes a *types.DuplexEndError exactly once.
func TestDuplexAbnormalEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := newPair(t)
	defer closeBoth(t, client, server)

	ctx, cancel := withTimeout(t)
	defer cancel()

	out, err := client.OpenDuplex(wire.New([]byte("init")))
	if err != nil {
		t.Fatalf("open duplex: %v", err)
	}
	initial, _ := server.PollInbound(ctx)
	in, err := server.AdoptAsDuplex(initial)
	if err != nil {
		t.Fatalf("adopt duplex: %v", err)
	}

	if err := in.End([]byte("boom")); err != nil {
		t.Fatalf("abnormal end: %v", err)
	}

	_, err = out.Recv(ctx)
	dee, ok := err.(*types.DuplexEndError)
	if !ok {
		t.Fatalf("expected *types.DuplexEndError, got %v", err)
	}
	if string(dee.Data) != "boom" {
		t.Fatalf("expected error payload %q, got %q", "boom", dee.Data)
	}

	out.Close()
}

// The Server's close sequence must finish every outstanding duplex
// normally before it sends its own closing Message: a duplex left open
// across a Client-initiated close has to see its peer's end packet, not be
// torn down silently by the read loop shutting down underneath it.
func TestClientCloseFinishesDuplexesNormally(t *testing.T) {
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
	if _, err := server.AdoptAsDuplex(initial); err != nil {
		t.Fatalf("adopt duplex: %v", err)
	}

	if err := client.Close(ctx); err != nil {
		t.Fatalf("client close: %v", err)
	}

	if _, err := out.Recv(ctx); err != io.EOF {
		t.Fatalf("expected the server to have closed its half normally, got %v", err)
	}
}

// The Server must let an already-adopted incoming request complete with a
// real answer before it sends its own closing Message: a Client-initiated
// close racing an in-flight request must not resolve that request's
// awaiter to DialogueClosed when the application was about to answer it.
func TestServerFinishesInFlightRequestBeforeClosing(t *testing.T) {
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

	closeErr := make(chan error, 1)
	go func() { closeErr <- client.Close(ctx) }()

	if err := reqH.Respond(wire.New([]byte("r"))); err != nil {
		t.Fatalf("respond while the server is closing: %v", err)
	}

	resp, err := rh.Await(ctx)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	data, _ := resp.Data()
	if string(data) != "r" {
		t.Fatalf("expected the in-flight response %q, got %q", "r", data)
	}

	select {
	case err := <-closeErr:
		if err != nil {
			t.Fatalf("client close: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("client never finished closing")
	}
}
