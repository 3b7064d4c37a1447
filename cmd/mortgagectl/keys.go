package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	jwt "github.com/golang-jwt/jwt/v5"

	"lendchain/config"
	"lendchain/crypto"
)

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "council.keystore", "output keystore path")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		fmt.Fprintf(stderr, "Error: %s already exists (use --force to overwrite)\n", *out)
		return 1
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	pass, err := newPassphraseSource(*passEnv).Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	addr, err := crypto.SaveToKeystore(*out, key, pass)
	if err != nil {
		fmt.Fprintf(stderr, "Error: save keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "keystore: %s\naddress:  %s\nhex:      0x%x\n", *out, addr.String(), addr.Bytes())
	return 0
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "caller account (bech32 or 0x hex)")
	issuer := fs.String("issuer", "lendchain", "token issuer")
	audience := fs.String("audience", "", "token audience")
	secretEnv := fs.String("secret-env", "MORTGAGED_JWT_SECRET", "environment variable holding the HMAC secret")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := crypto.ParseAccount(*subject); err != nil || strings.TrimSpace(*subject) == "" {
		fmt.Fprintln(stderr, "Error: --subject must be an account address")
		return 1
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		fmt.Fprintf(stderr, "Error: %s is not set\n", *secretEnv)
		return 1
	}
	if *ttl <= 0 {
		fmt.Fprintln(stderr, "Error: --ttl must be positive")
		return 1
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strings.TrimSpace(*subject),
		Issuer:    *issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	}
	if *audience != "" {
		claims.Audience = jwt.ClaimStrings{*audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, signed)
	return 0
}

func runCheckGenesis(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check-genesis", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("genesis", "genesis.toml", "genesis file to validate")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var g config.Genesis
	meta, err := toml.DecodeFile(*path, &g)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		fmt.Fprintf(stderr, "Error: unknown keys: %v\n", undecoded)
		return 1
	}
	p, err := g.Resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "genesis %s ok: chain %s, %d currencies, %d zones, %d collections, %d signers (threshold %d)\n",
		*path, p.ChainID, len(p.Currencies), len(p.Zones), len(p.Collections), len(p.Signers), p.Threshold)
	return 0
}
