package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/propsproject/props-protocol-sub000/config"
	"github.com/propsproject/props-protocol-sub000/core"
	"github.com/propsproject/props-protocol-sub000/storage"
)

const testSecret = "rpc-test-secret"

var (
	orchestrator = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	principalTok = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	admin        = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	guardian     = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

const testGenesis = `
chainId: 1
orchestrator: "0x00000000000000000000000000000000000000a1"
roles:
  admin: ["0x00000000000000000000000000000000000000b1"]
  controller: ["0x00000000000000000000000000000000000000b2"]
  guardian: ["0x00000000000000000000000000000000000000b3"]
principal:
  address: "0x00000000000000000000000000000000000000a2"
  name: Props
  symbol: PROPS
  decimals: 18
  minter: "0x00000000000000000000000000000000000000b4"
  balances:
    "0x00000000000000000000000000000000000000b4": "10_000_000_000"
    "0x00000000000000000000000000000000000000c1": "10000"
governance:
  address: "0x00000000000000000000000000000000000000a3"
  name: Staked Props
  symbol: SPROPS
  decimals: 18
userRewardPool:
  address: "0x00000000000000000000000000000000000000a6"
  distributor: "0x00000000000000000000000000000000000000b4"
  dailyEmission: "100000000000000000"
  funding: "864000000"
appRewardPool:
  address: "0x00000000000000000000000000000000000000a7"
  distributor: "0x00000000000000000000000000000000000000b4"
  dailyEmission: "100000000000000000"
escrow:
  address: "0x00000000000000000000000000000000000000a4"
  cooldownSeconds: 259200
factory:
  address: "0x00000000000000000000000000000000000000a5"
  dailyEmission: "100000000000000000"
apps:
  - name: Chess
    symbol: CHS
    supply: "1000000"
    owner: "0x00000000000000000000000000000000000000b5"
    whitelisted: true
  - name: Draughts
    symbol: DRT
    owner: "0x00000000000000000000000000000000000000b5"
`

type fixture struct {
	t      *testing.T
	node   *core.Node
	server *Server
	apps   []common.Address
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.WithChainID(1))
	require.NoError(t, err)
	t.Cleanup(node.Close)

	genesis, err := config.ParseGenesis([]byte(testGenesis))
	require.NoError(t, err)
	_, err = node.Bootstrap(context.Background(), genesis)
	require.NoError(t, err)

	apps, err := node.Apps(context.Background())
	require.NoError(t, err)

	cfg.Auth.Secret = []byte(testSecret)
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1000
		cfg.Burst = 1000
	}
	server, err := NewServer(node, cfg, nil, nil)
	require.NoError(t, err)
	return &fixture{t: t, node: node, server: server, apps: []common.Address{apps[0].Address, apps[1].Address}}
}

func (f *fixture) token(caller common.Address) string {
	f.t.Helper()
	tok, err := MintToken([]byte(testSecret), "", caller, time.Minute)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) do(method, path string, caller *common.Address, body interface{}, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+f.token(*caller))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body map[string]errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, uint64(1), status.Sequence)
	require.Equal(t, "1", status.ChainID)
	require.True(t, status.Bootstrapped)
}

func TestWritesRequireBearerToken(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodPost, "/v1/rewards/claim", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Unauthenticated", decodeError(t, rec).Code)

	expired, err := MintToken([]byte(testSecret), "", alice, -time.Hour)
	require.NoError(t, err)
	rec = f.do(http.MethodPost, "/v1/rewards/claim", nil, nil, "Authorization", "Bearer "+expired)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := MintToken([]byte("other-secret"), "", alice, time.Minute)
	require.NoError(t, err)
	rec = f.do(http.MethodPost, "/v1/rewards/claim", nil, nil, "Authorization", "Bearer "+forged)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStakeFlowOverHTTP(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodPost, "/v1/tokens/"+principalTok.Hex()+"/approve", &alice, approveRequest{Spender: orchestrator.Hex(), Amount: "5000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/v1/stake", &alice, batchRequest{Apps: []string{f.apps[0].Hex()}, Amounts: []string{"1200"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result OperationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, core.OpStake, result.Receipt.Op)
	require.NotEmpty(t, result.Receipt.Events)

	rec = f.do(http.MethodGet, "/v1/accounts/"+alice.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Weight      *big.Int `json:"weight"`
		TotalStaked *big.Int `json:"totalStaked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "1200", summary.Weight.String())
	require.Equal(t, "1200", summary.TotalStaked.String())

	rec = f.do(http.MethodPost, "/v1/unstake", &alice, batchRequest{Apps: []string{f.apps[0].Hex()}, Amounts: []string{"200"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	f := newFixture(t, Config{})
	cases := []struct {
		name   string
		path   string
		caller common.Address
		body   interface{}
		status int
		code   string
	}{
		{"blacklisted app", "/v1/stake", alice, batchRequest{Apps: []string{f.apps[1].Hex()}, Amounts: []string{"1"}}, http.StatusBadRequest, "InvalidApp"},
		{"length mismatch", "/v1/stake", alice, batchRequest{Apps: []string{f.apps[0].Hex()}, Amounts: []string{"1", "2"}}, http.StatusBadRequest, "InvalidInput"},
		{"bad amount", "/v1/stake", alice, batchRequest{Apps: []string{f.apps[0].Hex()}, Amounts: []string{"ten"}}, http.StatusBadRequest, "InvalidInput"},
		{"no allowance", "/v1/stake", alice, batchRequest{Apps: []string{f.apps[0].Hex()}, Amounts: []string{"10"}}, http.StatusConflict, "InsufficientBalance"},
		{"pause by admin", "/v1/admin/pause", admin, nil, http.StatusForbidden, "Unauthorized"},
		{"nothing to unlock", "/v1/rewards/unlock", alice, nil, http.StatusConflict, "InsufficientBalance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := tc.caller
			rec := f.do(http.MethodPost, tc.path, &caller, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}

	rec := f.do(http.MethodPost, "/v1/admin/pause", &guardian, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/v1/rewards/claim", &alice, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "Paused", decodeError(t, rec).Code)
}

func TestUnknownBodyFieldsRejected(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodPost, "/v1/delegate", &alice, map[string]string{"delegate": admin.Hex()})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotentReplay(t *testing.T) {
	store, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idem.db"), time.Hour)
	require.NoError(t, err)
	defer store.Close()
	f := newFixture(t, Config{Idempotency: store})

	body := delegateRequest{To: admin.Hex()}
	first := f.do(http.MethodPost, "/v1/delegate", &alice, body, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := f.do(http.MethodPost, "/v1/delegate", &alice, body, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, first.Header().Get("X-Request-ID"), second.Header().Get("X-Request-ID"))

	seq, err := f.node.Sequence(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq)

	other := f.do(http.MethodPost, "/v1/delegate", &admin, body, IdempotencyHeader, "k-1")
	require.Empty(t, other.Header().Get("Idempotent-Replay"))
}

func TestIdempotencyPrune(t *testing.T) {
	store, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idem.db"), time.Minute)
	require.NoError(t, err)
	defer store.Close()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }
	require.NoError(t, store.save("a", &storedResponse{Status: 200, CreatedAt: now.Unix()}))
	require.NoError(t, store.save("b", &storedResponse{Status: 200, CreatedAt: now.Add(-2 * time.Minute).Unix()}))

	rec, err := store.lookup("b")
	require.NoError(t, err)
	require.Nil(t, rec)

	removed, err := store.Prune()
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	rec, err = store.lookup("a")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestRateLimiterPerCaller(t *testing.T) {
	limiter := NewRateLimiter(1, 2, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.Allow("alice"))
	require.True(t, limiter.Allow("alice"))
	require.False(t, limiter.Allow("alice"))
	require.True(t, limiter.Allow("bob"))

	now = now.Add(time.Second)
	require.True(t, limiter.Allow("alice"))
}

func TestRateLimitedRequestsRejected(t *testing.T) {
	f := newFixture(t, Config{RequestsPerSecond: 0.001, Burst: 1})
	rec := f.do(http.MethodGet, "/v1/protocol", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/v1/protocol", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuthenticateSubject(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Secret: []byte(testSecret), Issuer: "stakingd"})
	tok, err := MintToken([]byte(testSecret), "stakingd", alice, time.Minute)
	require.NoError(t, err)
	caller, err := auth.Authenticate("Bearer " + tok)
	require.NoError(t, err)
	require.Equal(t, alice, caller)

	wrongIssuer, err := MintToken([]byte(testSecret), "elsewhere", alice, time.Minute)
	require.NoError(t, err)
	_, err = auth.Authenticate("Bearer " + wrongIssuer)
	require.Error(t, err)

	_, err = auth.Authenticate("Basic abc")
	require.ErrorIs(t, err, errMissingBearer)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, Config{})
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, srv.URL+"/v1/events/ws?types=protocol.paused", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The subscription is registered after the upgrade completes, so keep
	// toggling the pause flag until a receipt arrives.
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		paused := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if paused {
				_, _ = f.node.Unpause(ctx, guardian)
			} else {
				_, _ = f.node.Pause(ctx, guardian)
			}
			paused = !paused
		}
	}()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var receipt core.Receipt
	require.NoError(t, json.Unmarshal(data, &receipt))
	require.Equal(t, core.OpPause, receipt.Op)
	require.Len(t, receipt.Events, 1)
}

func TestApplyTypeFilter(t *testing.T) {
	receipt := &core.Receipt{Op: "x"}
	require.Same(t, receipt, applyTypeFilter(receipt, nil))
	require.Nil(t, applyTypeFilter(receipt, []string{"token."}))
	require.Equal(t, []string{"a", "b"}, parseTypeFilter(" a, ,b "))
}
