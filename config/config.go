package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lendchain/crypto"

	"github.com/BurntSushi/toml"
)

// DefaultChainID names the network written into generated genesis files.
const DefaultChainID = "lendchain-local"

// Load reads and validates the genesis document at path. A missing file is
// replaced by a single-signer development genesis whose council key is
// written to a keystore next to it.
func Load(path string) (*Genesis, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	g := &Genesis{}
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("genesis %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if strings.TrimSpace(g.ChainID) == "" {
		g.ChainID = DefaultChainID
	}
	if err := Validate(g); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return g, nil
}

// createDefault creates and saves a development genesis.
func createDefault(path string) (*Genesis, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := DefaultKeystorePath(path)
	account, err := crypto.SaveToKeystore(keystorePath, key, "")
	if err != nil {
		return nil, err
	}
	signer := account.String()

	g := &Genesis{
		ChainID: DefaultChainID,
		Mortgage: Mortgage{
			FeeRate:        "0.1%",
			BaseURI:        "lendchain://claims/",
			NativeAttempts: 3,
		},
		Governance: Governance{
			Signers:   []string{signer},
			Threshold: 1,
		},
		Currencies: []Currency{{Address: "native", Available: true}},
	}
	if err := persist(path, g); err != nil {
		return nil, err
	}
	return g, nil
}

func persist(path string, g *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(g)
}

// DefaultKeystorePath is where createDefault stores the council key.
func DefaultKeystorePath(genesisPath string) string {
	return filepath.Join(filepath.Dir(genesisPath), "council.keystore")
}
