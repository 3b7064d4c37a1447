package governance

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func newSigners(t *testing.T, n int) ([]*ecdsa.PrivateKey, [][20]byte) {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	addrs := make([][20]byte, n)
	for i := range keys {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		keys[i] = key
		copy(addrs[i][:], ethcrypto.PubkeyToAddress(key.PublicKey).Bytes())
	}
	return keys, addrs
}

func signMessage(t *testing.T, action Action, payload []byte, nonce uint64, keys ...*ecdsa.PrivateKey) Message {
	t.Helper()
	digest, err := Digest(action, payload, nonce)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	msg := Message{Action: action, Payload: payload, Nonce: nonce}
	for _, key := range keys {
		sig, err := Sign(digest, key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		msg.Signatures = append(msg.Signatures, sig)
	}
	return msg
}

func TestNewCouncilValidatesThreshold(t *testing.T) {
	_, addrs := newSigners(t, 3)
	if _, err := NewCouncil(nil, 1); !errors.Is(err, ErrNoSigners) {
		t.Fatalf("expected no signers error, got %v", err)
	}
	if _, err := NewCouncil(addrs, 0); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected invalid threshold for 0, got %v", err)
	}
	if _, err := NewCouncil(addrs, 4); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected invalid threshold for 4, got %v", err)
	}
	council, err := NewCouncil(append(addrs, addrs[0]), 2)
	if err != nil {
		t.Fatalf("new council: %v", err)
	}
	if council.Size() != 3 || council.Threshold() != 2 {
		t.Fatalf("unexpected council shape %d/%d", council.Threshold(), council.Size())
	}
}

func TestVerifyAcceptsThresholdApprovals(t *testing.T) {
	keys, addrs := newSigners(t, 3)
	council, err := NewCouncil(addrs, 2)
	if err != nil {
		t.Fatalf("new council: %v", err)
	}
	msg := signMessage(t, ActionUpdateFeeRate, []byte("0.002"), 7, keys[0], keys[2])
	if err := council.Verify(msg, 7); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejections(t *testing.T) {
	keys, addrs := newSigners(t, 3)
	outsider, _ := newSigners(t, 1)
	council, err := NewCouncil(addrs, 2)
	if err != nil {
		t.Fatalf("new council: %v", err)
	}

	t.Run("duplicate signer counts once", func(t *testing.T) {
		msg := signMessage(t, ActionPause, nil, 0, keys[1], keys[1])
		if err := council.Verify(msg, 0); !errors.Is(err, ErrInsufficientApprovals) {
			t.Fatalf("expected insufficient approvals, got %v", err)
		}
	})

	t.Run("stale nonce", func(t *testing.T) {
		msg := signMessage(t, ActionPause, nil, 0, keys[0], keys[1])
		if err := council.Verify(msg, 1); !errors.Is(err, ErrNonceMismatch) {
			t.Fatalf("expected nonce mismatch, got %v", err)
		}
	})

	t.Run("outsider", func(t *testing.T) {
		msg := signMessage(t, ActionPause, nil, 0, keys[0], outsider[0])
		if err := council.Verify(msg, 0); !errors.Is(err, ErrUnknownSigner) {
			t.Fatalf("expected unknown signer, got %v", err)
		}
	})

	t.Run("payload tampering", func(t *testing.T) {
		msg := signMessage(t, ActionUpdateBaseURI, []byte("https://a/"), 0, keys[0], keys[1])
		msg.Payload = []byte("https://b/")
		if err := council.Verify(msg, 0); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected invalid signature, got %v", err)
		}
	})

	t.Run("action replay", func(t *testing.T) {
		msg := signMessage(t, ActionPause, nil, 0, keys[0], keys[1])
		msg.Action = ActionUnpause
		if err := council.Verify(msg, 0); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected invalid signature, got %v", err)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		msg := Message{Action: "mint"}
		if err := council.Verify(msg, 0); !errors.Is(err, ErrUnknownAction) {
			t.Fatalf("expected unknown action, got %v", err)
		}
	})
}

func TestSignatureJSON(t *testing.T) {
	keys, _ := newSigners(t, 1)
	msg := signMessage(t, ActionPause, nil, 3, keys[0])
	blob, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(blob, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Signatures[0].Signer != msg.Signatures[0].Signer {
		t.Fatalf("signer mismatch after round trip")
	}
	if string(decoded.Signatures[0].Signature) != string(msg.Signatures[0].Signature) {
		t.Fatalf("signature mismatch after round trip")
	}
}
