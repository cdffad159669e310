package rpc

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/propsproject/props-protocol-sub000/core"
	"github.com/propsproject/props-protocol-sub000/native/appfactory"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
	"github.com/propsproject/props-protocol-sub000/native/token"
)

type batchRequest struct {
	Apps    []string `json:"apps"`
	Amounts []string `json:"amounts"`
	// Account names the beneficiary for on-behalf and delegate calls.
	Account string `json:"account,omitempty"`
}

type reallocateRequest struct {
	Apps    []string `json:"apps"`
	Unstake []string `json:"unstake"`
	Stake   []string `json:"stake"`
	Account string   `json:"account,omitempty"`
}

type claimAndStakeRequest struct {
	Apps   []string `json:"apps"`
	Shares []uint32 `json:"shares"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type permitRequest struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Value     string `json:"value"`
	Deadline  uint64 `json:"deadline"`
	Signature string `json:"signature"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type deployRequest struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Supply        string `json:"supply,omitempty"`
	Owner         string `json:"owner,omitempty"`
	DailyEmission string `json:"dailyEmission,omitempty"`
}

type walletRequest struct {
	Wallet string `json:"wallet"`
}

type delegateRequest struct {
	To string `json:"to"`
}

type cooldownRequest struct {
	Seconds uint64 `json:"seconds"`
}

// OperationResult is returned by every write.
type OperationResult struct {
	Receipt    *core.Receipt          `json:"receipt"`
	Amount     string                 `json:"amount,omitempty"`
	Deployment *appfactory.Deployment `json:"deployment,omitempty"`
}

type statusResult struct {
	Sequence     uint64 `json:"sequence"`
	ChainID      string `json:"chainId"`
	Bootstrapped bool   `json:"bootstrapped"`
}

func (s *Server) caller(r *http.Request) common.Address {
	caller, _ := callerFrom(r)
	return caller
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, receipt *core.Receipt, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResult{Receipt: receipt})
}

func (s *Server) respondAmount(w http.ResponseWriter, r *http.Request, amount *big.Int, receipt *core.Receipt, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResult{Receipt: receipt, Amount: amount.String()})
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request, param string) (common.Address, bool) {
	addr, err := parseAddress(param, chi.URLParam(r, param))
	if err != nil {
		s.writeError(w, r, err)
		return common.Address{}, false
	}
	return addr, true
}

// --- reads ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	seq, err := s.node.Sequence(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ready, err := s.node.Bootstrapped(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Sequence: seq, ChainID: s.node.ChainID().String(), Bootstrapped: ready})
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.node.ProtocolConfig(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	summary, err := s.node.Account(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.node.Apps(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	app, err := s.node.App(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	pool, err := s.node.Pool(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleTokenAccount(w http.ResponseWriter, r *http.Request) {
	tokenAddr, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	owner, ok := s.pathAddress(w, r, "owner")
	if !ok {
		return
	}
	spender, err := parseOptionalAddress("spender", r.URL.Query().Get("spender"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.node.TokenAccount(r.Context(), tokenAddr, owner, spender)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// --- tokens and pools ---

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	tokenAddr, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.node.Transfer(r.Context(), s.caller(r), tokenAddr, to, amount)
	s.respond(w, r, receipt, err)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	tokenAddr, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.node.Approve(r.Context(), s.caller(r), tokenAddr, spender, amount)
	s.respond(w, r, receipt, err)
}

func (s *Server) handlePermit(w http.ResponseWriter, r *http.Request) {
	tokenAddr, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req permitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		s.writeError(w, r, nativecommon.Wrap(nativecommon.ErrInvalidInput, "signature: %v", err))
		return
	}
	receipt, err := s.node.Permit(r.Context(), token.PermitRequest{
		Token:     tokenAddr,
		Owner:     owner,
		Spender:   spender,
		Value:     value,
		Deadline:  req.Deadline,
		Signature: sig,
	})
	s.respond(w, r, receipt, err)
}

func (s *Server) handleFundPool(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.node.FundPool(r.Context(), s.caller(r), pool, amount)
	s.respond(w, r, receipt, err)
}

// --- apps ---

func (s *Server) handleDeployApp(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner := s.caller(r)
	if req.Owner != "" {
		var err error
		if owner, err = parseAddress("owner", req.Owner); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	supply, err := parseOptionalAmount("supply", req.Supply)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	emission, err := parseOptionalAmount("dailyEmission", req.DailyEmission)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	deployment, receipt, err := s.node.DeployApp(r.Context(), appfactory.DeployRequest{
		Name:          req.Name,
		Symbol:        req.Symbol,
		Supply:        supply,
		Owner:         owner,
		DailyEmission: emission,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, OperationResult{Receipt: receipt, Deployment: deployment})
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	app, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	receipt, err := s.node.WhitelistApp(r.Context(), s.caller(r), app)
	s.respond(w, r, receipt, err)
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	app, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	receipt, err := s.node.BlacklistApp(r.Context(), s.caller(r), app)
	s.respond(w, r, receipt, err)
}

func (s *Server) handleClaimAppRewards(w http.ResponseWriter, r *http.Request) {
	app, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	amount, receipt, err := s.node.ClaimAppRewards(r.Context(), s.caller(r), app)
	s.respondAmount(w, r, amount, receipt, err)
}

func (s *Server) handleClaimAppProtocolRewards(w http.ResponseWriter, r *http.Request) {
	app, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	var req walletRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, err := parseAddress("wallet", req.Wallet)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, receipt, err := s.node.ClaimAppProtocolRewards(r.Context(), s.caller(r), app, wallet)
	s.respondAmount(w, r, amount, receipt, err)
}

// --- staking ---

type parsedBatch struct {
	apps    []common.Address
	amounts []*big.Int
	account common.Address
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request, needAccount bool) (*parsedBatch, bool) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return nil, false
	}
	var out parsedBatch
	var err error
	if out.apps, err = parseAddresses("apps", req.Apps); err == nil {
		out.amounts, err = parseAmounts("amounts", req.Amounts)
	}
	if err == nil {
		if needAccount {
			out.account, err = parseAddress("account", req.Account)
		} else {
			out.account, err = parseOptionalAddress("account", req.Account)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return &out, true
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.decodeBatch(w, r, false)
	if !ok {
		return
	}
	receipt, err := s.node.Stake(r.Context(), s.caller(r), batch.apps, batch.amounts)
	s.respond(w, r, receipt, err)
}

func (s *Server) handleStakeOnBehalf(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.decodeBatch(w, r, true)
	if !ok {
		return
	}
	receipt, err := s.node.StakeOnBehalf(r.Context(), s.caller(r), batch.apps, batch.amounts, batch.account)
	s.respond(w, r, receipt, err)
}

func (s *Server) handleStakeAsDelegate(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.decodeBatch(w, r, true)
	if !ok {
		return
	}
	receipt, err := s.node.StakeAsDelegate(r.Context(), s.caller(r), batch.apps, batch.amounts, batch.account)
	s.respond(w, r, receipt, err)
}

// handleStakeRewards stakes escrowed rewards. With an account the caller acts
// as that account's delegate.
func (s *Server) handleStakeRewards(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.decodeBatch(w, r, false)
	if !ok {
		return
	}
	var receipt *core.Receipt
	var err error
	if batch.account == (common.Address{}) {
		receipt, err = s.node.StakeRewards(r.Context(), s.caller(r), batch.apps, batch.amounts)
	} else {
		receipt, err = s.node.StakeRewardsAsDelegate(r.Context(), s.caller(r), batch.apps, batch.amounts, batch.account)
	}
	s.respond(w, r, receipt, err)
}

func (s *Server) handleReallocate(w http.ResponseWriter, r *http.Request) {
	var req reallocateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	apps, err := parseAddresses("apps", req.Apps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	unstake, err := parseAmounts("unstake", req.Unstake)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stake, err := parseAmounts("stake", req.Stake)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := parseOptionalAddress("account", req.Account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var receipt *core.Receipt
	if account == (common.Address{}) {
		receipt, err = s.node.ReallocateStakes(r.Context(), s.caller(r), apps, unstake, stake)
	} else {
		receipt, err = s.node.ReallocateStakesAsDelegate(r.Context(), s.caller(r), apps, unstake, stake, account)
	}
	s.respond(w, r, receipt, err)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.decodeBatch(w, r, false)
	if !ok {
		return
	}
	receipt, err := s.node.Unstake(r.Context(), s.caller(r), batch.apps, batch.amounts)
	s.respond(w, r, receipt, err)
}

// --- rewards ---

func (s *Server) handleClaimProtocolRewards(w http.ResponseWriter, r *http.Request) {
	amount, receipt, err := s.node.ClaimProtocolRewards(r.Context(), s.caller(r))
	s.respondAmount(w, r, amount, receipt, err)
}

func (s *Server) handleClaimAndStake(w http.ResponseWriter, r *http.Request) {
	var req claimAndStakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	apps, err := parseAddresses("apps", req.Apps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, receipt, err := s.node.ClaimProtocolRewardsAndStake(r.Context(), s.caller(r), apps, req.Shares)
	s.respondAmount(w, r, amount, receipt, err)
}

func (s *Server) handleUnlockRewards(w http.ResponseWriter, r *http.Request) {
	amount, receipt, err := s.node.UnlockRewards(r.Context(), s.caller(r))
	s.respondAmount(w, r, amount, receipt, err)
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, err := parseOptionalAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.node.Delegate(r.Context(), s.caller(r), to)
	s.respond(w, r, receipt, err)
}

// --- admin ---

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.node.Pause(r.Context(), s.caller(r))
	s.respond(w, r, receipt, err)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.node.Unpause(r.Context(), s.caller(r))
	s.respond(w, r, receipt, err)
}

func (s *Server) handleEscrowCooldown(w http.ResponseWriter, r *http.Request) {
	var req cooldownRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := s.node.ChangeEscrowCooldown(r.Context(), s.caller(r), req.Seconds)
	s.respond(w, r, receipt, err)
}
