package core

import (
	"errors"
	"testing"
	"time"

	"icn-network/internal/testutil"
)

func TestStubNetworkBroadcastAndSubscribe(t *testing.T) {
	hub := NewStubNetworkHub()
	a := hub.Join("peer-a", nil, quietLogger())
	b := hub.Join("peer-b", nil, quietLogger())
	c := hub.Join("peer-c", nil, quietLogger())

	subB, cancelB, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelB()
	subC, cancelC, _ := c.Subscribe()
	defer cancelC()

	if err := a.BroadcastMessage(gossip("topic", "hello")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for _, sub := range []<-chan ReceivedMessage{subB, subC} {
		select {
		case rm := <-sub:
			if rm.From != "peer-a" || string(rm.Message.Gossip.Payload) != "hello" {
				t.Fatalf("received %+v", rm)
			}
		case <-time.After(time.Second):
			t.Fatalf("broadcast not delivered")
		}
	}
}

func TestStubNetworkSendToUnknownPeer(t *testing.T) {
	hub := NewStubNetworkHub()
	a := hub.Join("peer-a", nil, quietLogger())
	err := a.SendMessage("peer-ghost", gossip("t", "x"))
	if !errors.Is(err, ErrSendFailure) {
		t.Fatalf("expected ErrSendFailure after retries, got %v", err)
	}
	stats := a.GetNetworkStats()
	if stats.FailedConnections == 0 {
		t.Fatalf("failure not counted: %+v", stats)
	}
}

func TestStubNetworkSignedDelivery(t *testing.T) {
	resolver := NewMemoryKeyResolver()
	signer, err := NewEd25519Signer(MustDID("did:icn:alice"))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	resolver.RegisterSigner(signer)

	hub := NewStubNetworkHub()
	a := hub.Join("peer-a", resolver, quietLogger())
	b := hub.Join("peer-b", resolver, quietLogger())

	sub, cancel, _ := b.SubscribeSigned()
	defer cancel()

	sm, err := NewSignedMessage(signer, gossip("t", "signed"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := a.SendSignedMessage("peer-b", sm); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-sub:
		if got.Sender != signer.Did() {
			t.Fatalf("sender %v", got.Sender)
		}
	case <-time.After(time.Second):
		t.Fatalf("signed message not delivered")
	}

	// Replaying the identical envelope is dropped by the receiver.
	if err := a.SendSignedMessage("peer-b", sm); err != nil {
		t.Fatalf("resend: %v", err)
	}
	select {
	case got := <-sub:
		t.Fatalf("replayed envelope delivered: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStubNetworkDhtRoundTrip(t *testing.T) {
	hub := NewStubNetworkHub()
	a := hub.Join("peer-a", nil, quietLogger())
	b := hub.Join("peer-b", nil, quietLogger())

	key := ServiceRecordKey(MustDID("did:icn:alice"))
	if err := a.StoreRecord(key, []byte("peer-a")); err != nil {
		t.Fatalf("store: %v", err)
	}
	v, err := b.GetRecord(key)
	if err != nil || string(v) != "peer-a" {
		t.Fatalf("get: %q %v", v, err)
	}
	absent, err := b.GetRecord(DidRecordKey(MustDID("did:icn:nobody")))
	if err != nil || absent != nil {
		t.Fatalf("absent key: %q %v", absent, err)
	}
}

func TestStubNetworkDiscoverPeers(t *testing.T) {
	hub := NewStubNetworkHub()
	a := hub.Join("alpha", nil, quietLogger())
	hub.Join("beta", nil, quietLogger())
	hub.Join("gamma", nil, quietLogger())

	all, err := a.DiscoverPeers("")
	if err != nil || len(all) != 2 {
		t.Fatalf("discover all: %v %v", all, err)
	}
	some, _ := a.DiscoverPeers("bet")
	if len(some) != 1 || some[0] != "beta" {
		t.Fatalf("filtered discovery: %v", some)
	}
}

func TestRouterDispatchThroughStub(t *testing.T) {
	resolver := NewMemoryKeyResolver()
	hub := NewStubNetworkHub()
	routerNet := hub.Join("router-side", resolver, quietLogger())
	targetNet := hub.Join("target-side", resolver, quietLogger())

	target := MustDID("did:icn:target")
	if err := routerNet.StoreRecord(ServiceRecordKey(target), []byte("target-side")); err != nil {
		t.Fatalf("advertise: %v", err)
	}

	r := NewSmartP2pRouter(DefaultSmartRouterConfig(), MustDID("did:icn:self"), routerNet, nil, nil, quietLogger())
	sub, cancel, _ := targetNet.Subscribe()
	defer cancel()

	if err := r.RouteMessage(target, gossip("t", "routed"), PriorityHigh, nil); err != nil {
		t.Fatalf("route: %v", err)
	}
	// Drain the queue inline instead of running the dispatch loop.
	m := r.queue.Dequeue()
	if m == nil {
		t.Fatalf("message not queued")
	}
	r.dispatch(m)

	testutil.WaitUntil(t, time.Second, "routed delivery", func() bool {
		select {
		case rm := <-sub:
			return string(rm.Message.Gossip.Payload) == "routed"
		default:
			return false
		}
	})
	if got := r.Metrics(); got.Delivered != 1 {
		t.Fatalf("metrics %+v", got)
	}
}
