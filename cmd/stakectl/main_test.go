package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/propsproject/props-protocol-sub000/native/token"
	"github.com/propsproject/props-protocol-sub000/rpc"
)

func stubPassphrase(t *testing.T, value string) {
	t.Helper()
	original := newPassphrase
	newPassphrase = func(bool) func() (string, error) {
		return func() (string, error) { return value, nil }
	}
	t.Cleanup(func() { newPassphrase = original })
}

func execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsageAndUnknownCommand(t *testing.T) {
	code, _, stderr := execute()
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Usage: stakectl")

	code, _, stderr = execute("mint")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Unknown command: mint")
}

func TestKeygenAddressPermit(t *testing.T) {
	stubPassphrase(t, "correct horse")
	path := filepath.Join(t.TempDir(), "wallet.json")

	code, out, stderr := execute("keygen", "--out", path)
	require.Equal(t, 0, code, stderr)
	hexAddr := strings.Split(strings.TrimSpace(out), "\n")[0]
	owner := common.HexToAddress(hexAddr)

	code, _, stderr = execute("keygen", "--out", path)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "already exists")

	code, out, _ = execute("address", "--keystore", path)
	require.Equal(t, 0, code)
	require.True(t, strings.HasPrefix(out, hexAddr))

	tokenAddr := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000a5")
	code, out, stderr = execute("permit",
		"--keystore", path,
		"--token", tokenAddr.Hex(),
		"--name", "Props Token",
		"--spender", spender.Hex(),
		"--value", "500",
		"--nonce", "0",
		"--deadline", "1700003600",
		"--chain-id", "7",
	)
	require.Equal(t, 0, code, stderr)

	var permit permitOutput
	require.NoError(t, json.Unmarshal([]byte(out), &permit))
	require.Equal(t, owner.Hex(), permit.Owner)
	sig, err := hexutil.Decode(permit.Signature)
	require.NoError(t, err)

	domain := token.DomainSeparator("Props Token", tokenAddr, big.NewInt(7))
	digest := token.PermitDigest(domain, owner, spender, big.NewInt(500), big.NewInt(0), 1700003600)
	pub, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	require.Equal(t, owner, ethcrypto.PubkeyToAddress(*pub))
}

func TestPermitValidatesFlags(t *testing.T) {
	code, _, stderr := execute("permit", "--name", "Props")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "--keystore is required")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("STAKINGD_AUTH_SECRET", "test-secret")
	caller := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	code, out, stderr := execute("token", "--address", caller.Hex(), "--ttl", "10m")
	require.Equal(t, 0, code, stderr)

	auth := rpc.NewAuthenticator(rpc.AuthConfig{Secret: []byte("test-secret"), Issuer: "stakingd"})
	got, err := auth.Authenticate("Bearer " + strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, caller, got)

	t.Setenv("STAKINGD_AUTH_SECRET", "")
	code, _, stderr = execute("token", "--address", caller.Hex())
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "is not set")
}

func TestCallCommand(t *testing.T) {
	var seen *http.Request
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		raw := new(bytes.Buffer)
		_, _ = raw.ReadFrom(r.Body)
		body = raw.String()
		if r.URL.Path == "/v1/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NotFound","message":"nope"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"sequence":3}`))
	}))
	defer srv.Close()
	t.Setenv(rpcURLEnv, srv.URL)
	t.Setenv(rpcTokenEnv, "abc")

	code, out, stderr := execute("call", "post", "v1/stake", "--data", `{"apps":[],"amounts":[]}`)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, `"sequence": 3`)
	require.Equal(t, http.MethodPost, seen.Method)
	require.Equal(t, "Bearer abc", seen.Header.Get("Authorization"))
	require.NotEmpty(t, seen.Header.Get("Idempotency-Key"))
	require.JSONEq(t, `{"apps":[],"amounts":[]}`, body)

	code, _, stderr = execute("call", "GET", "/v1/missing")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "404")

	code, _, stderr = execute("call", "POST", "/v1/stake", "--data", "{")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "not valid JSON")
}
