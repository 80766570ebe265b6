package core

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tmpFileStore(t *testing.T) *FileBlockStore {
	t.Helper()
	s, err := NewFileBlockStore(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

//-------------------------------------------------------------
// Round trip, reopen, root file
//-------------------------------------------------------------

func TestFileStoreRoundTripAndReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blocks")
	s, err := NewFileBlockStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	a := mustBlock(t, "a", nil, 1)
	b := mustBlock(t, "b", []DagLink{{Cid: a.Cid, Name: "prev", Size: 1}}, 2)
	for _, blk := range []*DagBlock{a, b} {
		if err := s.Put(blk); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	got, err := s.Get(b.Cid)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if len(got.Links) != 1 || got.Links[0].Cid != a.Cid {
		t.Fatalf("links lost in round trip: %+v", got.Links)
	}

	root1, err := s.CurrentRoot()
	if err != nil || root1 == "" {
		t.Fatalf("root: %q %v", root1, err)
	}

	// Reopening yields the same block set and root.
	s2, err := NewFileBlockStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	blocks, err := s2.ListBlocks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks after reopen, got %d", len(blocks))
	}
	root2, _ := s2.CurrentRoot()
	if root2 != root1 {
		t.Fatalf("root changed across reopen: %q vs %q", root2, root1)
	}
}

func TestFileStoreDetectsCidMismatch(t *testing.T) {
	s := tmpFileStore(t)
	a := mustBlock(t, "a", nil, 1)
	other := mustBlock(t, "other", nil, 2)
	if err := s.Put(a); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Overwrite a's file with other's contents: filename no longer matches.
	raw, _ := json.Marshal(other)
	if err := os.WriteFile(s.blockPath(a.Cid), raw, 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := s.Get(a.Cid); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity on mismatch, got %v", err)
	}
}

func TestFileStorePruneAndPin(t *testing.T) {
	s := tmpFileStore(t)
	keep := mustBlock(t, "keep", nil, 1)
	drop := mustBlock(t, "drop", nil, 2)
	for _, b := range []*DagBlock{keep, drop} {
		if err := s.Put(b); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.SetTTL(b.Cid, 5); err != nil {
			t.Fatalf("ttl: %v", err)
		}
	}
	if err := s.PinBlock(keep.Cid); err != nil {
		t.Fatalf("pin: %v", err)
	}
	removed, err := s.PruneExpired(100)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 1 || removed[0] != drop.Cid {
		t.Fatalf("expected only drop pruned, got %v", removed)
	}
	meta, err := s.GetMetadata(keep.Cid)
	if err != nil || !meta.Pinned {
		t.Fatalf("pin metadata lost: %+v %v", meta, err)
	}
}

//-------------------------------------------------------------
// Async facade
//-------------------------------------------------------------

func TestAsyncFileStorePutThenContains(t *testing.T) {
	s, err := NewAsyncFileBlockStore(filepath.Join(t.TempDir(), "blocks"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	b := mustBlock(t, "async", nil, 1)
	if err := s.PutAsync(ctx, b); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := s.ContainsAsync(ctx, b.Cid)
	if err != nil || !ok {
		t.Fatalf("contains after put: %v %v", ok, err)
	}
	got, err := s.GetAsync(ctx, b.Cid)
	if err != nil || got == nil || got.Cid != b.Cid {
		t.Fatalf("get: %+v %v", got, err)
	}
}
