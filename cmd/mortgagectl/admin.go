package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"lendchain/cmd/internal/passphrase"
	"lendchain/config"
	"lendchain/crypto"
	"lendchain/native/governance"
	"lendchain/native/mortgage"
	"lendchain/native/rate"
)

var newPassphraseSource = func(env string) *passphrase.Source {
	return passphrase.NewSource(env, "Enter council keystore passphrase: ")
}

// actionPayload returns the canonical payload the engine verifies for action.
func actionPayload(action governance.Action, raw string) ([]byte, error) {
	switch action {
	case governance.ActionUpdateFeeRate:
		parsed, err := rate.Parse(raw)
		if err != nil {
			return nil, err
		}
		if err := parsed.Validate(); err != nil {
			return nil, err
		}
		normalized, err := parsed.Normalize()
		if err != nil {
			return nil, err
		}
		return mortgage.FeeRatePayload(normalized), nil
	case governance.ActionUpdateBaseURI:
		return []byte(raw), nil
	case governance.ActionPause, governance.ActionUnpause:
		if strings.TrimSpace(raw) != "" {
			return nil, fmt.Errorf("%s takes no payload", action)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

type actionFlags struct {
	action  string
	payload string
	nonce   uint64
}

func (a *actionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&a.action, "action", "", "admin action (update_fee_rate, pause, unpause, update_base_uri)")
	fs.StringVar(&a.payload, "payload", "", "action argument: the rate for update_fee_rate, the URI for update_base_uri")
	fs.Uint64Var(&a.nonce, "nonce", 0, "current admin nonce of the module")
}

func (a *actionFlags) digest() ([]byte, error) {
	action := governance.Action(strings.TrimSpace(a.action))
	if action == "" {
		return nil, fmt.Errorf("--action is required")
	}
	payload, err := actionPayload(action, a.payload)
	if err != nil {
		return nil, err
	}
	return governance.Digest(action, payload, a.nonce)
}

func runDigest(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags actionFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	digest, err := flags.digest()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "0x%s\n", hex.EncodeToString(digest))
	return 0
}

func runSign(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags actionFlags
	flags.register(fs)
	keystorePath := fs.String("keystore", "", "council keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	allowEmpty := fs.Bool("allow-empty-passphrase", false, "accept an empty passphrase (development keystores)")
	genesisPath := fs.String("genesis", "", "genesis file whose council must include the keystore account")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*keystorePath) == "" {
		fmt.Fprintln(stderr, "Error: --keystore is required")
		return 1
	}
	digest, err := flags.digest()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	source := newPassphraseSource(*passEnv)
	if *allowEmpty {
		source.AllowEmpty()
	}
	pass, err := source.Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var key *crypto.PrivateKey
	if *genesisPath != "" {
		signers, err := councilSigners(*genesisPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		key, _, err = crypto.LoadCouncilKey(*keystorePath, pass, signers)
	} else {
		key, _, err = crypto.LoadFromKeystore(*keystorePath, pass)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: load keystore: %v\n", err)
		return 1
	}
	sig, err := governance.Sign(digest, key.PrivateKey)
	if err != nil {
		fmt.Fprintf(stderr, "Error: sign: %v\n", err)
		return 1
	}
	return writeJSONOut(stdout, stderr, sig)
}

// councilSigners reads the signer set from a genesis file without creating it.
func councilSigners(path string) ([][20]byte, error) {
	var g config.Genesis
	if _, err := toml.DecodeFile(path, &g); err != nil {
		return nil, err
	}
	p, err := g.Resolve()
	if err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return p.Signers, nil
}

func runCombine(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("combine", flag.ContinueOnError)
	fs.SetOutput(stderr)
	nonce := fs.Uint64("nonce", 0, "admin nonce the signatures were produced for")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "Error: at least one signature file is required")
		return 1
	}
	approval := governance.Approval{Nonce: *nonce}
	for _, path := range fs.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		var sig governance.Signature
		if err := json.Unmarshal(raw, &sig); err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", path, err)
			return 1
		}
		approval.Signatures = append(approval.Signatures, sig)
	}
	return writeJSONOut(stdout, stderr, approval)
}

func writeJSONOut(stdout, stderr io.Writer, v any) int {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
