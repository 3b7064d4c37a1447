package governance

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// DomainTag separates mortgage administration digests from every other
// signed payload a signer may produce.
const DomainTag = "lendchain/mortgage-admin/v1"

// Action names an administrative operation covered by a threshold approval.
type Action string

const (
	ActionUpdateFeeRate Action = "update_fee_rate"
	ActionPause         Action = "pause"
	ActionUnpause       Action = "unpause"
	ActionUpdateBaseURI Action = "update_base_uri"
)

// Valid reports whether the action is one the module understands.
func (a Action) Valid() bool {
	switch a {
	case ActionUpdateFeeRate, ActionPause, ActionUnpause, ActionUpdateBaseURI:
		return true
	default:
		return false
	}
}

// Signature is a single council member's recoverable secp256k1 signature
// over an action digest.
type Signature struct {
	Signer    [20]byte
	Signature []byte
}

type signatureJSON struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// MarshalJSON renders signer and signature as 0x-prefixed hex.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{
		Signer:    "0x" + hex.EncodeToString(s.Signer[:]),
		Signature: "0x" + hex.EncodeToString(s.Signature),
	})
}

// UnmarshalJSON accepts 0x-prefixed or bare hex.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var raw signatureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	signer, err := decodeHex(raw.Signer)
	if err != nil {
		return fmt.Errorf("governance: signer: %w", err)
	}
	if len(signer) != 20 {
		return fmt.Errorf("governance: signer must be 20 bytes, got %d", len(signer))
	}
	sig, err := decodeHex(raw.Signature)
	if err != nil {
		return fmt.Errorf("governance: signature: %w", err)
	}
	copy(s.Signer[:], signer)
	s.Signature = sig
	return nil
}

func decodeHex(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	return hex.DecodeString(trimmed)
}

// Message is an administrative request together with the approvals that
// authorise it. Payload carries the action argument in its canonical byte
// form (the rate text for fee updates, the URI for base URI updates, empty
// for pause and unpause).
type Message struct {
	Action     Action      `json:"action"`
	Payload    []byte      `json:"payload"`
	Nonce      uint64      `json:"nonce"`
	Signatures []Signature `json:"signatures"`
}

// Approval is what an administrator submits alongside an action: the nonce
// the council signed for and the signatures themselves.
type Approval struct {
	Nonce      uint64      `json:"nonce"`
	Signatures []Signature `json:"signatures"`
}

// Message binds the approval to a concrete action and payload.
func (a Approval) Message(action Action, payload []byte) Message {
	return Message{Action: action, Payload: payload, Nonce: a.Nonce, Signatures: a.Signatures}
}
