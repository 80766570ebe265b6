package core

// errors.go – sentinel errors shared across the ICN core modules. Callers
// match with errors.Is; constructors wrap these with fmt.Errorf("…: %w", …)
// so the taxonomy survives layering.

import "errors"

var (
	// ErrInvalidInput flags malformed parameters or payloads.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound flags a missing resource (block, proposal, dispute, account).
	ErrNotFound = errors.New("not found")
	// ErrPolicyDenied flags an actor lacking authority for an operation.
	ErrPolicyDenied = errors.New("policy denied")
	// ErrIntegrity flags a content-address mismatch or failed block check.
	ErrIntegrity = errors.New("integrity violation")
	// ErrSerialization / ErrDeserialization flag codec failures.
	ErrSerialization   = errors.New("serialization failed")
	ErrDeserialization = errors.New("deserialization failed")
	// ErrIO flags a disk failure in a storage backend.
	ErrIO = errors.New("io failure")
	// ErrDatabase flags a KV backend failure.
	ErrDatabase = errors.New("database failure")
	// ErrNetwork flags a transport-level failure.
	ErrNetwork = errors.New("network failure")
	// ErrTimeout flags an expired deadline or window.
	ErrTimeout = errors.New("timeout")
	// ErrPeerNotFound flags an unknown or unreachable peer.
	ErrPeerNotFound = errors.New("peer not found")
	// ErrSendFailure flags a send that exhausted its retries.
	ErrSendFailure = errors.New("send failure")
	// ErrDuplicateMessage flags a replayed signed message.
	ErrDuplicateMessage = errors.New("duplicate message")
	// ErrCrypto / ErrSignature flag opaque signing and verification failures.
	ErrCrypto    = errors.New("crypto failure")
	ErrSignature = errors.New("signature verification failed")
	// ErrInsufficientMana flags a spend exceeding the account balance.
	ErrInsufficientMana = errors.New("insufficient mana")
	// ErrAccountNotFound flags an unknown mana account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDagOperation flags a DAG-level failure outside the store contract.
	ErrDagOperation = errors.New("dag operation failed")
	// ErrCircuitOpen is returned when the shared breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrNotImplemented flags a contract hole surfaced for manual handling.
	ErrNotImplemented = errors.New("not implemented")
	// ErrInvalidState flags a forbidden state-machine transition.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidDID flags an unparseable decentralized identifier.
	ErrInvalidDID = errors.New("invalid DID")
	// ErrQueueFull flags an enqueue against a saturated priority queue.
	ErrQueueFull = errors.New("queue full")
)
