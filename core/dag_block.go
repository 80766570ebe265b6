package core

// dag_block.go – signed content-addressed blocks forming the shared DAG.
// CIDs are multihash-tagged SHA-256 CIDv1 strings computed deterministically
// over the block contents, so equal CIDs imply equal content.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Cid is the canonical string form of a content identifier. The lexicographic
// order of Cid values is the total order used wherever ordering is needed.
type Cid string

// DefaultCodec tags blocks produced by this node.
const DefaultCodec = "dag-json"

// DagLink is a unidirectional child reference inside a block.
type DagLink struct {
	Cid  Cid    `json:"cid"`
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

// DagBlock is the unit stored in the DAG. Cid must always equal
// ComputeMerkleCid over the remaining fields.
type DagBlock struct {
	Cid       Cid       `json:"cid"`
	Data      []byte    `json:"data"`
	Links     []DagLink `json:"links"`
	Timestamp uint64    `json:"timestamp"`
	Author    DID       `json:"author"`
	Signature Signature `json:"signature,omitempty"`
	Scope     string    `json:"scope,omitempty"`
}

// canonicalBlockBytes folds every CID-relevant field into a deterministic
// byte string. Optional fields contribute a presence marker so absent and
// empty values cannot collide.
func canonicalBlockBytes(codec string, data []byte, links []DagLink, ts uint64, author DID, sig Signature, scope string) []byte {
	var buf bytes.Buffer
	buf.WriteString(codec)
	buf.WriteByte(0)
	var n8 [8]byte
	binary.BigEndian.PutUint64(n8[:], uint64(len(data)))
	buf.Write(n8[:])
	buf.Write(data)
	binary.BigEndian.PutUint64(n8[:], uint64(len(links)))
	buf.Write(n8[:])
	for _, l := range links {
		buf.WriteString(string(l.Cid))
		buf.WriteByte(0)
		buf.WriteString(l.Name)
		buf.WriteByte(0)
		binary.BigEndian.PutUint64(n8[:], l.Size)
		buf.Write(n8[:])
	}
	binary.BigEndian.PutUint64(n8[:], ts)
	buf.Write(n8[:])
	buf.WriteString(author.String())
	buf.WriteByte(0)
	if sig != nil {
		buf.WriteByte(1)
		binary.BigEndian.PutUint64(n8[:], uint64(len(sig)))
		buf.Write(n8[:])
		buf.Write(sig)
	} else {
		buf.WriteByte(0)
	}
	if scope != "" {
		buf.WriteByte(1)
		buf.WriteString(scope)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// ComputeMerkleCid derives the canonical CID for the given block fields.
func ComputeMerkleCid(codec string, data []byte, links []DagLink, ts uint64, author DID, sig Signature, scope string) (Cid, error) {
	sum, err := mh.Sum(canonicalBlockBytes(codec, data, links, ts, author, sig, scope), mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("%w: multihash: %v", ErrDagOperation, err)
	}
	c := cid.NewCidV1(cid.DagJSON, sum)
	return Cid(c.String()), nil
}

// NewDagBlock assembles a block and stamps its CID.
func NewDagBlock(data []byte, links []DagLink, ts uint64, author DID, sig Signature, scope string) (*DagBlock, error) {
	id, err := ComputeMerkleCid(DefaultCodec, data, links, ts, author, sig, scope)
	if err != nil {
		return nil, err
	}
	return &DagBlock{
		Cid:       id,
		Data:      append([]byte(nil), data...),
		Links:     append([]DagLink(nil), links...),
		Timestamp: ts,
		Author:    author,
		Signature: sig,
		Scope:     scope,
	}, nil
}

// VerifyBlockIntegrity recomputes the CID and checks it against the block's
// claimed CID. Every store calls this before accepting a block.
func VerifyBlockIntegrity(b *DagBlock) error {
	if b == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidInput)
	}
	if b.Cid == "" {
		return fmt.Errorf("%w: block without cid", ErrInvalidInput)
	}
	want, err := ComputeMerkleCid(DefaultCodec, b.Data, b.Links, b.Timestamp, b.Author, b.Signature, b.Scope)
	if err != nil {
		return err
	}
	if want != b.Cid {
		return fmt.Errorf("%w: cid %s does not match content (want %s)", ErrIntegrity, b.Cid, want)
	}
	return nil
}

// ParseCid validates that s is a well-formed CID string.
func ParseCid(s string) (Cid, error) {
	if _, err := cid.Decode(s); err != nil {
		return "", fmt.Errorf("%w: cid %q: %v", ErrInvalidInput, s, err)
	}
	return Cid(s), nil
}

// SortCids orders a CID slice lexicographically in place and returns it.
func SortCids(cids []Cid) []Cid {
	sort.Slice(cids, func(i, j int) bool { return cids[i] < cids[j] })
	return cids
}
