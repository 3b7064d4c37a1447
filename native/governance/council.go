package governance

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrNoSigners             = errors.New("governance: council has no signers")
	ErrInvalidThreshold      = errors.New("governance: invalid threshold")
	ErrUnknownAction         = errors.New("governance: unknown action")
	ErrNonceMismatch         = errors.New("governance: nonce mismatch")
	ErrUnknownSigner         = errors.New("governance: signature from unknown signer")
	ErrInvalidSignature      = errors.New("governance: invalid signature")
	ErrInsufficientApprovals = errors.New("governance: insufficient approvals")
	errCouncilNotConfigured  = errors.New("governance: council not configured")
)

// Council verifies that an administrative message carries valid signatures
// from at least Threshold distinct members of a fixed signer set.
type Council struct {
	signers   map[[20]byte]struct{}
	threshold int
}

// NewCouncil constructs a council. Duplicate signers are collapsed and the
// threshold must lie within [1, len(signers)].
func NewCouncil(signers [][20]byte, threshold int) (*Council, error) {
	set := make(map[[20]byte]struct{}, len(signers))
	for _, signer := range signers {
		if signer == ([20]byte{}) {
			continue
		}
		set[signer] = struct{}{}
	}
	if len(set) == 0 {
		return nil, ErrNoSigners
	}
	if threshold < 1 || threshold > len(set) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidThreshold, threshold, len(set))
	}
	return &Council{signers: set, threshold: threshold}, nil
}

// Threshold returns the number of distinct approvals required.
func (c *Council) Threshold() int {
	if c == nil {
		return 0
	}
	return c.threshold
}

// Size returns the number of council members.
func (c *Council) Size() int {
	if c == nil {
		return 0
	}
	return len(c.signers)
}

// IsSigner reports whether addr belongs to the council.
func (c *Council) IsSigner(addr [20]byte) bool {
	if c == nil {
		return false
	}
	_, ok := c.signers[addr]
	return ok
}

type digestPayload struct {
	Domain  string
	Action  string
	Payload []byte
	Nonce   uint64
}

// Digest returns the keccak256 hash the council signs for an action. The
// digest binds the domain tag, the action name, its payload and the nonce.
func Digest(action Action, payload []byte, nonce uint64) ([]byte, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	encoded, err := rlp.EncodeToBytes(digestPayload{
		Domain:  DomainTag,
		Action:  string(action),
		Payload: payload,
		Nonce:   nonce,
	})
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(encoded), nil
}

// Sign produces a council signature for the digest with the provided key.
func Sign(digest []byte, key *ecdsa.PrivateKey) (Signature, error) {
	if key == nil {
		return Signature{}, fmt.Errorf("governance: nil key")
	}
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return Signature{}, err
	}
	var signer [20]byte
	copy(signer[:], ethcrypto.PubkeyToAddress(key.PublicKey).Bytes())
	return Signature{Signer: signer, Signature: sig}, nil
}

// Verify checks that msg targets expectedNonce and carries at least the
// threshold of valid, distinct council signatures over its digest. Repeated
// signatures from the same member count once.
func (c *Council) Verify(msg Message, expectedNonce uint64) error {
	if c == nil {
		return errCouncilNotConfigured
	}
	if msg.Nonce != expectedNonce {
		return fmt.Errorf("%w: got %d want %d", ErrNonceMismatch, msg.Nonce, expectedNonce)
	}
	digest, err := Digest(msg.Action, msg.Payload, msg.Nonce)
	if err != nil {
		return err
	}
	seen := make(map[[20]byte]struct{}, len(msg.Signatures))
	for _, sig := range msg.Signatures {
		if _, dup := seen[sig.Signer]; dup {
			continue
		}
		if _, ok := c.signers[sig.Signer]; !ok {
			return fmt.Errorf("%w: %x", ErrUnknownSigner, sig.Signer)
		}
		if len(sig.Signature) != 65 {
			return fmt.Errorf("%w: length %d for %x", ErrInvalidSignature, len(sig.Signature), sig.Signer)
		}
		pub, err := ethcrypto.SigToPub(digest, sig.Signature)
		if err != nil {
			return fmt.Errorf("%w: recover %x: %v", ErrInvalidSignature, sig.Signer, err)
		}
		derived := ethcrypto.PubkeyToAddress(*pub)
		if !bytes.Equal(derived.Bytes(), sig.Signer[:]) {
			return fmt.Errorf("%w: expected %x got %x", ErrInvalidSignature, sig.Signer, derived.Bytes())
		}
		seen[sig.Signer] = struct{}{}
	}
	if len(seen) < c.threshold {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientApprovals, len(seen), c.threshold)
	}
	return nil
}
