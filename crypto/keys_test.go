package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	text := addr.String()
	if !strings.HasPrefix(text, "lend1") {
		t.Fatalf("unexpected address %q", text)
	}
	parsed, err := ParseAccount(text)
	if err != nil {
		t.Fatalf("parse account: %v", err)
	}
	if parsed != addr.Array() {
		t.Fatalf("round trip mismatch")
	}
}

func TestParseAccountForms(t *testing.T) {
	zero, err := ParseAccount("native")
	if err != nil || zero != ([20]byte{}) {
		t.Fatalf("expected zero identifier for native, got %x %v", zero, err)
	}
	hexAddr, err := ParseAccount("0x00000000000000000000000000000000000000aa")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if hexAddr[19] != 0xaa {
		t.Fatalf("unexpected hex decode %x", hexAddr)
	}
	asset := MustNewAddress(AssetPrefix, hexAddr).String()
	decoded, err := ParseAccount(asset)
	if err != nil || decoded != hexAddr {
		t.Fatalf("asset address round trip failed: %x %v", decoded, err)
	}
	for _, bad := range []string{"0x1234", "0xzz", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", "garbage"} {
		if _, err := ParseAccount(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "signer.json")
	saved, err := SaveToKeystore(path, key, "correct horse")
	if err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	if saved.String() != key.PubKey().Address().String() {
		t.Fatalf("save returned %s", saved)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat keystore: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected keystore mode %v", info.Mode().Perm())
	}
	loaded, account, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if account.String() != saved.String() || loaded.PubKey().Address().String() != saved.String() {
		t.Fatalf("loaded key does not match")
	}
	if _, _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected decrypt failure with wrong passphrase")
	}
	if _, err := SaveToKeystore(" ", key, ""); !errors.Is(err, ErrEmptyKeystorePath) {
		t.Fatalf("expected empty path error, got %v", err)
	}
	if _, _, err := LoadFromKeystore("", ""); !errors.Is(err, ErrEmptyKeystorePath) {
		t.Fatalf("expected empty path error, got %v", err)
	}
}

func TestLoadCouncilKey(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "council.keystore")
	account, err := SaveToKeystore(path, key, "")
	if err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	other := [20]byte{19: 0xc1}

	if _, _, err := LoadCouncilKey(path, "", [][20]byte{other}); !errors.Is(err, ErrNotCouncilSigner) {
		t.Fatalf("expected non-signer rejection, got %v", err)
	} else if !strings.Contains(err.Error(), account.String()) {
		t.Fatalf("error should name the account: %v", err)
	}
	loaded, got, err := LoadCouncilKey(path, "", [][20]byte{other, account.Array()})
	if err != nil {
		t.Fatalf("load council key: %v", err)
	}
	if got.String() != account.String() || loaded.PubKey().Address().String() != account.String() {
		t.Fatalf("unexpected council account %s", got)
	}
}
