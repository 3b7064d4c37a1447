package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrEmptyKeystorePath = errors.New("crypto: empty keystore path")
	ErrKeystoreMismatch  = errors.New("crypto: keystore address does not match key")
	ErrNotCouncilSigner  = errors.New("crypto: key is not a council signer")
)

// SaveToKeystore encrypts key into a v3 keystore file at path and returns
// the lend account it controls. The file is written to a sibling temp file
// and renamed into place with 0600 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) (Address, error) {
	if key == nil || key.PrivateKey == nil {
		return Address{}, errors.New("crypto: nil private key")
	}
	if strings.TrimSpace(path) == "" {
		return Address{}, ErrEmptyKeystorePath
	}
	account := key.PubKey().Address()
	id, err := uuid.NewRandom()
	if err != nil {
		return Address{}, fmt.Errorf("crypto: keystore id: %w", err)
	}
	encrypted, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    common.BytesToAddress(account.Bytes()),
		PrivateKey: key.PrivateKey,
	}, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: encrypt keystore: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Address{}, err
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return Address{}, err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return Address{}, err
	}
	if _, err := tmp.Write(encrypted); err != nil {
		tmp.Close()
		return Address{}, err
	}
	if err := tmp.Close(); err != nil {
		return Address{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Address{}, err
	}
	return account, nil
}

// LoadFromKeystore decrypts the keystore at path and returns the key together
// with its lend account.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, Address, error) {
	if strings.TrimSpace(path) == "" {
		return nil, Address{}, ErrEmptyKeystorePath
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, Address{}, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, Address{}, fmt.Errorf("crypto: decrypt %s: %w", filepath.Base(path), err)
	}
	key := &PrivateKey{PrivateKey: decrypted.PrivateKey}
	account := key.PubKey().Address()
	if !bytes.Equal(decrypted.Address.Bytes(), account.Bytes()) {
		return nil, Address{}, ErrKeystoreMismatch
	}
	return key, account, nil
}

// LoadCouncilKey loads a keystore and fails with ErrNotCouncilSigner unless
// its account is one of signers.
func LoadCouncilKey(path, passphrase string, signers [][20]byte) (*PrivateKey, Address, error) {
	key, account, err := LoadFromKeystore(path, passphrase)
	if err != nil {
		return nil, Address{}, err
	}
	for _, s := range signers {
		if s == account.Array() {
			return key, account, nil
		}
	}
	return nil, Address{}, fmt.Errorf("%w: %s", ErrNotCouncilSigner, account.String())
}
