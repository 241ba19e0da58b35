package core

import (
	"encoding/json"
	"fmt"

	"github.com/tasteshift/live/internal/domain"
)

type MessageType string

const (
	MsgOpen      MessageType = "open"
	MsgError     MessageType = "error"
	MsgOffer     MessageType = "offer"
	MsgAnswer    MessageType = "answer"
	MsgCandidate MessageType = "candidate"
	MsgLeave     MessageType = "leave"
	MsgInterrupt MessageType = "interrupt"
	MsgPing      MessageType = "ping"
	MsgPong      MessageType = "pong"
)

// Error types carried in ErrorPayload.Type.
const (
	ErrTypeUnavailableID   = "unavailable-id"
	ErrTypeInvalidID       = "invalid-id"
	ErrTypePeerUnavailable = "peer-unavailable"
	ErrTypeBadMessage      = "bad-message"
)

// Message is the directory envelope. Src is always set by the server from
// the registered identity of the sending socket.
type Message struct {
	Type    MessageType     `json:"type"`
	Src     domain.Identity `json:"src,omitempty"`
	Dst     domain.Identity `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OpenPayload struct {
	ID domain.Identity `json:"id"`
}

type ErrorPayload struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Peer    domain.Identity `json:"peer,omitempty"`
	// ConnectionID points at the call that failed, when there is one.
	ConnectionID string `json:"connectionId,omitempty"`
}

type SDPPayload struct {
	ConnectionID string `json:"connectionId"`
	SDP          string `json:"sdp"`
}

type CandidatePayload struct {
	ConnectionID  string  `json:"connectionId"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type CallPayload struct {
	ConnectionID string `json:"connectionId"`
}

func NewMessage(t MessageType, dst domain.Identity, payload any) (Message, error) {
	msg := Message{Type: t, Dst: dst}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	msg.Payload = b
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: bad payload: %w", m.Type, err)
	}
	return nil
}
