package core

// identity.go – decentralized identifiers and the opaque signing adapter.
// Cryptography is deliberately narrow: modules only ever sign bytes and
// verify bytes, resolving verifying keys from DIDs through KeyResolver.

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
)

// DID is a decentralized identifier of the form did:<method>:<id>.
type DID struct {
	Method string
	ID     string
}

// ParseDID parses s into a DID. Both method and id must be non-empty.
func ParseDID(s string) (DID, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return DID{}, fmt.Errorf("%w: %q", ErrInvalidDID, s)
	}
	return DID{Method: parts[1], ID: parts[2]}, nil
}

// MustDID parses s and panics on failure. Test and wiring helper.
func MustDID(s string) DID {
	d, err := ParseDID(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d DID) String() string { return "did:" + d.Method + ":" + d.ID }

// IsZero reports whether the DID carries no identity.
func (d DID) IsZero() bool { return d.Method == "" && d.ID == "" }

// MarshalText encodes the DID as its canonical string form so it can serve
// as a JSON map key. The zero DID encodes as the empty string.
func (d DID) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText parses the canonical string form; the empty string decodes
// to the zero DID.
func (d *DID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = DID{}
		return nil
	}
	parsed, err := ParseDID(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Signature is an opaque signature blob.
type Signature []byte

// Signer produces signatures on behalf of a single identity.
type Signer interface {
	Did() DID
	Sign(msg []byte) (Signature, error)
}

// KeyResolver maps a DID to verification capability. Implementations treat
// key material as opaque.
type KeyResolver interface {
	Verify(signer DID, msg []byte, sig Signature) error
}

// Ed25519Signer is the reference Signer backed by an in-process ed25519 key.
type Ed25519Signer struct {
	did  DID
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh keypair bound to did.
func NewEd25519Signer(did DID) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: keygen: %v", ErrCrypto, err)
	}
	return &Ed25519Signer{did: did, priv: priv, pub: pub}, nil
}

func (s *Ed25519Signer) Did() DID { return s.did }

// Sign signs msg with the held private key.
func (s *Ed25519Signer) Sign(msg []byte) (Signature, error) {
	if len(s.priv) == 0 {
		return nil, fmt.Errorf("%w: signer has no key", ErrCrypto)
	}
	return Signature(ed25519.Sign(s.priv, msg)), nil
}

// PublicKey exposes the verifying key for registration with a resolver.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey { return s.pub }

// MemoryKeyResolver is a mutex-guarded in-process DID→key registry.
type MemoryKeyResolver struct {
	mu   sync.RWMutex
	keys map[DID]ed25519.PublicKey
}

// NewMemoryKeyResolver returns an empty registry.
func NewMemoryKeyResolver() *MemoryKeyResolver {
	return &MemoryKeyResolver{keys: make(map[DID]ed25519.PublicKey)}
}

// Register stores the verifying key for did, replacing any previous key.
func (r *MemoryKeyResolver) Register(did DID, pub ed25519.PublicKey) {
	r.mu.Lock()
	r.keys[did] = pub
	r.mu.Unlock()
}

// RegisterSigner registers a locally generated signer's public key.
func (r *MemoryKeyResolver) RegisterSigner(s *Ed25519Signer) {
	r.Register(s.Did(), s.PublicKey())
}

// Verify checks sig over msg against the key registered for signer.
func (r *MemoryKeyResolver) Verify(signer DID, msg []byte, sig Signature) error {
	r.mu.RLock()
	pub, ok := r.keys[signer]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no key for %s", ErrNotFound, signer)
	}
	if !ed25519.Verify(pub, msg, sig) {
		return fmt.Errorf("%w: signer %s", ErrSignature, signer)
	}
	return nil
}
