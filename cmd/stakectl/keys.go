package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/propsproject/props-protocol-sub000/cmd/internal/passphrase"
	"github.com/propsproject/props-protocol-sub000/config"
	"github.com/propsproject/props-protocol-sub000/crypto"
	"github.com/propsproject/props-protocol-sub000/native/token"
	"github.com/propsproject/props-protocol-sub000/rpc"
)

var newPassphrase = func(confirm bool) func() (string, error) {
	src := passphrase.NewSource(passphraseEnv, "keystore")
	if confirm {
		src = src.Confirming()
	}
	return src.Get
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := newPassphrase(false)()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "keystore file to write")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return fail(stderr, "--out is required")
	}
	if _, err := os.Stat(*out); err == nil {
		return fail(stderr, "%s already exists", *out)
	}
	pass, err := newPassphrase(true)()
	if err != nil {
		return fail(stderr, "%v", err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fail(stderr, "%v", err)
	}
	addr, err := crypto.SaveToKeystore(*out, key, pass)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	fmt.Fprintf(stdout, "%s\n%s\n", addr.Common().Hex(), addr.String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	path := fs.String("keystore", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *path == "" {
		return fail(stderr, "--keystore is required")
	}
	key, err := loadKey(*path)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(stdout, "%s\n%s\n", addr.Common().Hex(), addr.String())
	return 0
}

// permitOutput matches the body of POST /v1/tokens/{token}/permit.
type permitOutput struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Value     string `json:"value"`
	Deadline  uint64 `json:"deadline"`
	Signature string `json:"signature"`
}

func runPermit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("permit", stderr)
	var (
		path, tokenStr, name, spenderStr, valueStr, nonceStr string
		deadline, chainID                                    uint64
	)
	fs.StringVar(&path, "keystore", "", "owner keystore file")
	fs.StringVar(&tokenStr, "token", "", "token address")
	fs.StringVar(&name, "name", "", "token name as registered")
	fs.StringVar(&spenderStr, "spender", "", "spender address")
	fs.StringVar(&valueStr, "value", "", "allowance to grant")
	fs.StringVar(&nonceStr, "nonce", "0", "owner's current permit nonce")
	fs.Uint64Var(&deadline, "deadline", 0, "unix expiry of the signature")
	fs.Uint64Var(&chainID, "chain-id", 1, "chain id of the target node")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	switch {
	case path == "":
		return fail(stderr, "--keystore is required")
	case name == "":
		return fail(stderr, "--name is required")
	case deadline == 0:
		return fail(stderr, "--deadline is required")
	}
	tokenAddr, err := crypto.ParseAddress(tokenStr)
	if err != nil {
		return fail(stderr, "--token: %v", err)
	}
	spender, err := crypto.ParseAddress(spenderStr)
	if err != nil {
		return fail(stderr, "--spender: %v", err)
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(valueStr), 10)
	if !ok || value.Sign() < 0 {
		return fail(stderr, "--value must be a non-negative integer")
	}
	nonce, ok := new(big.Int).SetString(strings.TrimSpace(nonceStr), 10)
	if !ok || nonce.Sign() < 0 {
		return fail(stderr, "--nonce must be a non-negative integer")
	}
	key, err := loadKey(path)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	owner := key.PubKey().Address().Common()
	domain := token.DomainSeparator(name, tokenAddr, new(big.Int).SetUint64(chainID))
	sig, err := key.Sign(token.PermitDigest(domain, owner, spender, value, nonce, deadline))
	if err != nil {
		return fail(stderr, "%v", err)
	}
	return printJSON(stdout, stderr, permitOutput{
		Owner:     owner.Hex(),
		Spender:   spender.Hex(),
		Value:     value.String(),
		Deadline:  deadline,
		Signature: hexutil.Encode(sig),
	})
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var (
		addrStr, path, issuer, secretEnv string
		ttl                               time.Duration
	)
	fs.StringVar(&addrStr, "address", "", "caller address")
	fs.StringVar(&path, "keystore", "", "take the caller from a keystore instead")
	fs.StringVar(&issuer, "issuer", "stakingd", "issuer claim expected by the node")
	fs.StringVar(&secretEnv, "secret-env", config.DefaultAuthSecretEnv, "variable holding the signing secret")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	secret := os.Getenv(secretEnv)
	if strings.TrimSpace(secret) == "" {
		return fail(stderr, "%s is not set", secretEnv)
	}
	var caller common.Address
	switch {
	case addrStr != "":
		parsed, err := crypto.ParseAddress(addrStr)
		if err != nil {
			return fail(stderr, "--address: %v", err)
		}
		caller = parsed
	case path != "":
		key, err := loadKey(path)
		if err != nil {
			return fail(stderr, "%v", err)
		}
		caller = key.PubKey().Address().Common()
	default:
		return fail(stderr, "--address or --keystore is required")
	}
	signed, err := rpc.MintToken([]byte(secret), issuer, caller, ttl)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	fmt.Fprintln(stdout, signed)
	return 0
}

func printJSON(stdout, stderr io.Writer, v interface{}) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(stderr, "%v", err)
	}
	return 0
}
