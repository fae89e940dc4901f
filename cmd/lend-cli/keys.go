package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"stakelend/crypto"
	"stakelend/native/lending"
)

var oracleEntropy io.Reader = rand.Reader

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "path of the keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	path := strings.TrimSpace(*out)
	if path == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	pass, err := loadPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: save keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Keystore written to %s\n", path)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	ks := fs.String("keystore", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*ks) == "" {
		fmt.Fprintln(stderr, "Error: --keystore is required")
		return 1
	}
	addr, err := crypto.KeystoreAddress(strings.TrimSpace(*ks))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

func runOracleKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("oracle-keygen", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	signer, err := crypto.GenerateOracleSigner(oracleEntropy)
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate oracle key: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Public key: %s\n", signer.PublicKey())
	fmt.Fprintf(stdout, "Seed:       %s\n", hexutil.Encode(signer.Seed()))
	return 0
}

func runOracleSign(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("oracle-sign", stderr)
	var (
		seedHex  string
		borrower string
		amount   uint64
		score    uint
		fee      uint64
	)
	fs.StringVar(&seedHex, "seed", "", "hex encoded oracle seed")
	fs.StringVar(&borrower, "borrower", "", "borrower address")
	fs.Uint64Var(&amount, "amount", 0, "loan amount")
	fs.UintVar(&score, "score", 0, "credit score (0-100)")
	fs.Uint64Var(&fee, "fee", 0, "oracle fee configured on the protocol")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	seed, err := hexutil.Decode(ensureHexPrefix(seedHex))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --seed: %v\n", err)
		return 1
	}
	signer, err := crypto.OracleSignerFromSeed(seed)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(borrower))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --borrower: %v\n", err)
		return 1
	}
	if score > lending.MaxCreditScore {
		fmt.Fprintf(stderr, "Error: --score must be between 0 and %d\n", lending.MaxCreditScore)
		return 1
	}
	sig := signer.Sign(lending.OracleMessage(addr, amount, uint8(score), fee))
	fmt.Fprintln(stdout, hexutil.Encode(sig))
	return 0
}

func ensureHexPrefix(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		return trimmed
	}
	return "0x" + trimmed
}
