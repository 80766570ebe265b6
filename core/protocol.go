package core

// protocol.go – the closed set of wire messages exchanged between ICN nodes
// and the signed envelope that carries them. Exactly one payload pointer is
// populated per message; Validate enforces that before anything goes on the
// wire.

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the protocol payload variants.
type MessageType string

const (
	MsgMeshJobAnnouncement        MessageType = "mesh_job_announcement"
	MsgBidSubmission              MessageType = "bid_submission"
	MsgJobAssignmentNotification  MessageType = "job_assignment_notification"
	MsgSubmitReceipt              MessageType = "submit_receipt"
	MsgGossip                     MessageType = "gossip"
	MsgFederationSyncRequest      MessageType = "federation_sync_request"
	MsgFederationSyncResponse     MessageType = "federation_sync_response"
	MsgFederationDiscoverRequest  MessageType = "federation_discover_request"
	MsgFederationDiscoverResponse MessageType = "federation_discover_response"
)

// MeshJobAnnouncement advertises a queued job to potential executors.
type MeshJobAnnouncement struct {
	Job ActualMeshJob `json:"job"`
}

// BidSubmission is an executor's offer for an announced job.
type BidSubmission struct {
	Bid MeshJobBid `json:"bid"`
}

// JobAssignmentNotification informs the network which executor won a job.
type JobAssignmentNotification struct {
	JobID    Cid `json:"job_id"`
	Executor DID `json:"executor"`
}

// SubmitReceipt returns a signed execution receipt to the job originator.
type SubmitReceipt struct {
	Receipt ExecutionReceipt `json:"receipt"`
}

// GossipMessage is an application-defined broadcast with a hop budget.
type GossipMessage struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
	TTL     uint32 `json:"ttl"`
}

// FederationSyncRequest asks a peer for its view of a federation DAG scope.
type FederationSyncRequest struct {
	FederationID string `json:"federation_id"`
	SinceRoot    string `json:"since_root,omitempty"`
}

// FederationSyncResponse answers with the peer's current root and block set.
type FederationSyncResponse struct {
	FederationID string `json:"federation_id"`
	Root         string `json:"root"`
	Blocks       []Cid  `json:"blocks"`
}

// FederationDiscoverRequest probes for federations a peer participates in.
type FederationDiscoverRequest struct {
	Probe string `json:"probe,omitempty"`
}

// FederationDiscoverResponse lists federation ids.
type FederationDiscoverResponse struct {
	Federations []string `json:"federations"`
}

// ProtocolMessage is the tagged union of all wire payloads.
type ProtocolMessage struct {
	Type             MessageType                 `json:"type"`
	JobAnnouncement  *MeshJobAnnouncement        `json:"job_announcement,omitempty"`
	Bid              *BidSubmission              `json:"bid,omitempty"`
	Assignment       *JobAssignmentNotification  `json:"assignment,omitempty"`
	Receipt          *SubmitReceipt              `json:"receipt,omitempty"`
	Gossip           *GossipMessage              `json:"gossip,omitempty"`
	SyncRequest      *FederationSyncRequest      `json:"sync_request,omitempty"`
	SyncResponse     *FederationSyncResponse     `json:"sync_response,omitempty"`
	DiscoverRequest  *FederationDiscoverRequest  `json:"discover_request,omitempty"`
	DiscoverResponse *FederationDiscoverResponse `json:"discover_response,omitempty"`
}

// Validate checks that the populated payload matches Type.
func (m *ProtocolMessage) Validate() error {
	ok := false
	switch m.Type {
	case MsgMeshJobAnnouncement:
		ok = m.JobAnnouncement != nil
	case MsgBidSubmission:
		ok = m.Bid != nil
	case MsgJobAssignmentNotification:
		ok = m.Assignment != nil
	case MsgSubmitReceipt:
		ok = m.Receipt != nil
	case MsgGossip:
		ok = m.Gossip != nil
	case MsgFederationSyncRequest:
		ok = m.SyncRequest != nil
	case MsgFederationSyncResponse:
		ok = m.SyncResponse != nil
	case MsgFederationDiscoverRequest:
		ok = m.DiscoverRequest != nil
	case MsgFederationDiscoverResponse:
		ok = m.DiscoverResponse != nil
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidInput, m.Type)
	}
	if !ok {
		return fmt.Errorf("%w: message type %q without payload", ErrInvalidInput, m.Type)
	}
	return nil
}

// EncodeProtocolMessage serializes m for transport or signing.
func EncodeProtocolMessage(m *ProtocolMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: protocol message: %v", ErrSerialization, err)
	}
	return raw, nil
}

// DecodeProtocolMessage parses and validates wire bytes.
func DecodeProtocolMessage(raw []byte) (*ProtocolMessage, error) {
	var m ProtocolMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: protocol message: %v", ErrDeserialization, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// SignedMessage is the authenticated wire envelope. The signature covers
// sender bytes followed by the serialized message.
type SignedMessage struct {
	Sender    DID             `json:"sender"`
	Message   ProtocolMessage `json:"message"`
	Signature Signature       `json:"signature"`
}

func signedMessageBytes(sender DID, msg *ProtocolMessage) ([]byte, error) {
	payload, err := EncodeProtocolMessage(msg)
	if err != nil {
		return nil, err
	}
	return append([]byte(sender.String()), payload...), nil
}

// NewSignedMessage signs msg on behalf of signer.
func NewSignedMessage(signer Signer, msg ProtocolMessage) (*SignedMessage, error) {
	body, err := signedMessageBytes(signer.Did(), &msg)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(body)
	if err != nil {
		return nil, err
	}
	return &SignedMessage{Sender: signer.Did(), Message: msg, Signature: sig}, nil
}

// VerifyMessageSignature checks the envelope signature against the key
// resolved for the sender and enforces at-most-once verification through the
// replay cache. The second verification of the same content fails with
// ErrDuplicateMessage.
func VerifyMessageSignature(sm *SignedMessage, resolver KeyResolver, replay *ReplayCache) error {
	if sm == nil {
		return fmt.Errorf("%w: nil signed message", ErrInvalidInput)
	}
	body, err := signedMessageBytes(sm.Sender, &sm.Message)
	if err != nil {
		return err
	}
	if err := resolver.Verify(sm.Sender, body, sm.Signature); err != nil {
		return err
	}
	if replay != nil {
		payload, _ := EncodeProtocolMessage(&sm.Message)
		if err := replay.Check(sm.Sender, payload); err != nil {
			return err
		}
	}
	return nil
}

// EncodeSignedMessage serializes the envelope for transport.
func EncodeSignedMessage(sm *SignedMessage) ([]byte, error) {
	raw, err := json.Marshal(sm)
	if err != nil {
		return nil, fmt.Errorf("%w: signed message: %v", ErrSerialization, err)
	}
	return raw, nil
}

// DecodeSignedMessage parses a signed envelope.
func DecodeSignedMessage(raw []byte) (*SignedMessage, error) {
	var sm SignedMessage
	if err := json.Unmarshal(raw, &sm); err != nil {
		return nil, fmt.Errorf("%w: signed message: %v", ErrDeserialization, err)
	}
	if err := sm.Message.Validate(); err != nil {
		return nil, err
	}
	return &sm, nil
}
