package core

import (
	"testing"
	"time"
)

func federationPair(t *testing.T) (*FederationManager, *StubNetwork, *MemoryBlockStore) {
	t.Helper()
	hub := NewStubNetworkHub()
	serverNet := hub.Join("fed-server", nil, quietLogger())
	clientNet := hub.Join("fed-client", nil, quietLogger())
	store := NewMemoryBlockStore()
	m := NewFederationManager(serverNet, store, quietLogger())
	return m, clientNet, store
}

func TestFederationJoinAndLookup(t *testing.T) {
	m, clientNet, _ := federationPair(t)
	info := FederationInfo{
		ID:      "coop-1",
		Name:    "First Cooperative",
		Members: []DID{MustDID("did:icn:alice")},
		Scope:   "coop-1",
	}
	if err := m.Join(info); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := m.Federations(); len(got) != 1 || got[0] != "coop-1" {
		t.Fatalf("federations %v", got)
	}

	// The advertisement is readable from any peer via the DHT namespace.
	other := NewFederationManager(clientNet, NewMemoryBlockStore(), quietLogger())
	found, err := other.LookupInfo("coop-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.Name != "First Cooperative" || len(found.Members) != 1 {
		t.Fatalf("looked up %+v", found)
	}
}

func TestFederationSyncRequestResponse(t *testing.T) {
	m, clientNet, store := federationPair(t)
	if err := m.Join(FederationInfo{ID: "coop-1", Scope: "coop-1"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	inScope, err := NewDagBlock([]byte("anchored"), nil, 1, MustDID("did:icn:alice"), nil, "coop-1")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	outOfScope, err := NewDagBlock([]byte("elsewhere"), nil, 2, MustDID("did:icn:alice"), nil, "other")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	for _, b := range []*DagBlock{inScope, outOfScope} {
		if err := store.Put(b); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	serverSub, cancelServer, _ := m.network.Subscribe()
	defer cancelServer()
	clientSub, cancelClient, _ := clientNet.Subscribe()
	defer cancelClient()

	client := NewFederationManager(clientNet, NewMemoryBlockStore(), quietLogger())
	if err := client.RequestSync("fed-server", "coop-1", ""); err != nil {
		t.Fatalf("request sync: %v", err)
	}

	// Serve exactly the one inbound request.
	select {
	case rm := <-serverSub:
		m.Handle(rm)
	case <-time.After(time.Second):
		t.Fatalf("sync request not delivered")
	}

	select {
	case rm := <-clientSub:
		if rm.Message.Type != MsgFederationSyncResponse {
			t.Fatalf("unexpected reply %s", rm.Message.Type)
		}
		resp := rm.Message.SyncResponse
		if resp.FederationID != "coop-1" || resp.Root == "" {
			t.Fatalf("response %+v", resp)
		}
		if len(resp.Blocks) != 1 || resp.Blocks[0] != inScope.Cid {
			t.Fatalf("scoped block set %v", resp.Blocks)
		}
	case <-time.After(time.Second):
		t.Fatalf("sync response not delivered")
	}
}

func TestFederationDiscover(t *testing.T) {
	m, clientNet, _ := federationPair(t)
	for _, id := range []string{"coop-2", "coop-1"} {
		if err := m.Join(FederationInfo{ID: id}); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	serverSub, cancelServer, _ := m.network.Subscribe()
	defer cancelServer()
	clientSub, cancelClient, _ := clientNet.Subscribe()
	defer cancelClient()

	client := NewFederationManager(clientNet, NewMemoryBlockStore(), quietLogger())
	if err := client.Discover("fed-server", ""); err != nil {
		t.Fatalf("discover: %v", err)
	}
	select {
	case rm := <-serverSub:
		m.Handle(rm)
	case <-time.After(time.Second):
		t.Fatalf("discover request not delivered")
	}
	select {
	case rm := <-clientSub:
		resp := rm.Message.DiscoverResponse
		if resp == nil || len(resp.Federations) != 2 || resp.Federations[0] != "coop-1" {
			t.Fatalf("discover reply %+v", rm.Message)
		}
	case <-time.After(time.Second):
		t.Fatalf("discover response not delivered")
	}
}
