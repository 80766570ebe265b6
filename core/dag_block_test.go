package core

import (
	"errors"
	"testing"
)

func mustBlock(t *testing.T, data string, links []DagLink, ts uint64) *DagBlock {
	t.Helper()
	b, err := NewDagBlock([]byte(data), links, ts, MustDID("did:icn:alice"), nil, "")
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	return b
}

//-------------------------------------------------------------
// CID determinism and integrity
//-------------------------------------------------------------

func TestComputeMerkleCidDeterministic(t *testing.T) {
	author := MustDID("did:icn:alice")
	a, err := ComputeMerkleCid(DefaultCodec, []byte("payload"), nil, 1000, author, nil, "")
	if err != nil {
		t.Fatalf("cid: %v", err)
	}
	b, err := ComputeMerkleCid(DefaultCodec, []byte("payload"), nil, 1000, author, nil, "")
	if err != nil {
		t.Fatalf("cid: %v", err)
	}
	if a != b {
		t.Fatalf("identical inputs produced %s and %s", a, b)
	}
	c, _ := ComputeMerkleCid(DefaultCodec, []byte("payload"), nil, 1001, author, nil, "")
	if a == c {
		t.Fatalf("different timestamps produced identical cid %s", a)
	}
}

func TestCidDistinguishesOptionalFields(t *testing.T) {
	author := MustDID("did:icn:alice")
	plain, _ := ComputeMerkleCid(DefaultCodec, nil, nil, 1, author, nil, "")
	signed, _ := ComputeMerkleCid(DefaultCodec, nil, nil, 1, author, Signature{0x01}, "")
	scoped, _ := ComputeMerkleCid(DefaultCodec, nil, nil, 1, author, nil, "fed")
	if plain == signed || plain == scoped || signed == scoped {
		t.Fatalf("optional fields collided: %s %s %s", plain, signed, scoped)
	}
}

func TestVerifyBlockIntegrity(t *testing.T) {
	b := mustBlock(t, "hello", nil, 42)
	if err := VerifyBlockIntegrity(b); err != nil {
		t.Fatalf("fresh block failed integrity: %v", err)
	}

	tampered := *b
	tampered.Data = []byte("tampered")
	if err := VerifyBlockIntegrity(&tampered); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if err := VerifyBlockIntegrity(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil, got %v", err)
	}
}

func TestParseCid(t *testing.T) {
	b := mustBlock(t, "x", nil, 1)
	if _, err := ParseCid(string(b.Cid)); err != nil {
		t.Fatalf("parse real cid: %v", err)
	}
	if _, err := ParseCid("not-a-cid"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
