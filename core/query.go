package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/native/protocol"
	"github.com/propsproject/props-protocol-sub000/native/rewardpool"
	"github.com/propsproject/props-protocol-sub000/native/token"
)

// StakePosition is one app allocation of an account.
type StakePosition struct {
	App       common.Address `json:"app"`
	Principal *big.Int       `json:"principal"`
	Rewards   *big.Int       `json:"rewards"`
}

// AccountSummary aggregates everything an account holds in the protocol.
type AccountSummary struct {
	Address        common.Address  `json:"address"`
	Balance        *big.Int        `json:"balance"`
	Weight         *big.Int        `json:"weight"`
	TotalStaked    *big.Int        `json:"totalStaked"`
	Escrowed       *big.Int        `json:"escrowed"`
	UnlockTime     uint64          `json:"unlockTime"`
	Delegate       *common.Address `json:"delegate,omitempty"`
	PendingRewards *big.Int        `json:"pendingRewards"`
	Stakes         []StakePosition `json:"stakes"`
}

// AppSummary describes a registered app and its stake.
type AppSummary struct {
	protocol.App
	TotalStaked     *big.Int `json:"totalStaked"`
	PendingProtocol *big.Int `json:"pendingProtocolRewards"`
	PoolStatus      string   `json:"poolStatus"`
}

// PoolSummary is a pool record with derived views.
type PoolSummary struct {
	*rewardpool.Pool
	Status            string   `json:"status"`
	RewardPerUnit     *big.Int `json:"rewardPerUnit"`
	RewardForDuration *big.Int `json:"rewardForDuration"`
}

// Account returns the protocol position of account.
func (n *Node) Account(ctx context.Context, account common.Address) (*AccountSummary, error) {
	var out *AccountSummary
	err := n.View(ctx, func(e *Engines) error {
		cfg, err := e.Protocol.Config()
		if err != nil {
			return err
		}
		summary := &AccountSummary{Address: account}
		if summary.Balance, err = e.Tokens.BalanceOf(cfg.PrincipalToken, account); err != nil {
			return err
		}
		if summary.Weight, err = e.Protocol.Weight(account); err != nil {
			return err
		}
		if summary.TotalStaked, err = e.Protocol.AccountTotal(account); err != nil {
			return err
		}
		entry, err := e.Escrow.Entry(account)
		if err != nil {
			return err
		}
		summary.Escrowed, summary.UnlockTime = entry.Amount, entry.UnlockTime
		if delegate, ok, err := e.Protocol.DelegateOf(account); err != nil {
			return err
		} else if ok {
			summary.Delegate = &delegate
		}
		if summary.PendingRewards, err = e.Pools.Earned(cfg.UserRewardPool, account); err != nil {
			return err
		}
		apps, err := e.Protocol.AccountApps(account)
		if err != nil {
			return err
		}
		summary.Stakes = make([]StakePosition, 0, len(apps))
		for _, app := range apps {
			stake, err := e.Protocol.StakeOf(account, app)
			if err != nil {
				return err
			}
			if stake.Total().Sign() == 0 {
				continue
			}
			summary.Stakes = append(summary.Stakes, StakePosition{App: app, Principal: stake.Principal, Rewards: stake.Rewards})
		}
		out = summary
		return nil
	})
	return out, err
}

// App returns the registration and stake totals of app.
func (n *Node) App(ctx context.Context, app common.Address) (*AppSummary, error) {
	var out *AppSummary
	err := n.View(ctx, func(e *Engines) error {
		var err error
		out, err = appSummary(e, app)
		return err
	})
	return out, err
}

// Apps lists every registered app in registration order.
func (n *Node) Apps(ctx context.Context) ([]*AppSummary, error) {
	var out []*AppSummary
	err := n.View(ctx, func(e *Engines) error {
		apps, err := e.Protocol.Apps()
		if err != nil {
			return err
		}
		out = make([]*AppSummary, 0, len(apps))
		for _, app := range apps {
			summary, err := appSummary(e, app)
			if err != nil {
				return err
			}
			out = append(out, summary)
		}
		return nil
	})
	return out, err
}

func appSummary(e *Engines, app common.Address) (*AppSummary, error) {
	cfg, err := e.Protocol.Config()
	if err != nil {
		return nil, err
	}
	record, err := e.Protocol.App(app)
	if err != nil {
		return nil, err
	}
	summary := &AppSummary{App: *record}
	if summary.TotalStaked, err = e.Protocol.AppTotal(app); err != nil {
		return nil, err
	}
	if summary.PendingProtocol, err = e.Pools.Earned(cfg.AppRewardPool, app); err != nil {
		return nil, err
	}
	status, err := e.Pools.Status(record.Pool)
	if err != nil {
		return nil, err
	}
	summary.PoolStatus = status.String()
	return summary, nil
}

// Pool returns a reward pool with its derived views.
func (n *Node) Pool(ctx context.Context, pool common.Address) (*PoolSummary, error) {
	var out *PoolSummary
	err := n.View(ctx, func(e *Engines) error {
		record, err := e.Pools.Pool(pool)
		if err != nil {
			return err
		}
		summary := &PoolSummary{Pool: record}
		status, err := e.Pools.Status(pool)
		if err != nil {
			return err
		}
		summary.Status = status.String()
		if summary.RewardPerUnit, err = e.Pools.RewardPerUnit(pool); err != nil {
			return err
		}
		if summary.RewardForDuration, err = e.Pools.RewardForDuration(pool); err != nil {
			return err
		}
		out = summary
		return nil
	})
	return out, err
}

// ProtocolConfig returns the orchestrator wiring.
func (n *Node) ProtocolConfig(ctx context.Context) (*protocol.Config, error) {
	var out *protocol.Config
	err := n.View(ctx, func(e *Engines) error {
		var err error
		out, err = e.Protocol.Config()
		return err
	})
	return out, err
}

// TokenAccount is the balance, allowance and permit nonce of an owner.
type TokenAccount struct {
	Token     *token.Metadata `json:"token"`
	Balance   *big.Int        `json:"balance"`
	Allowance *big.Int        `json:"allowance,omitempty"`
	Nonce     *big.Int        `json:"nonce"`
}

// TokenAccount reads owner's position in tokenAddr. The allowance is
// reported when spender is non-zero.
func (n *Node) TokenAccount(ctx context.Context, tokenAddr, owner, spender common.Address) (*TokenAccount, error) {
	var out *TokenAccount
	err := n.View(ctx, func(e *Engines) error {
		meta, err := e.Tokens.Metadata(tokenAddr)
		if err != nil {
			return err
		}
		acct := &TokenAccount{Token: meta}
		if acct.Balance, err = e.Tokens.BalanceOf(tokenAddr, owner); err != nil {
			return err
		}
		if acct.Nonce, err = e.Tokens.Nonce(tokenAddr, owner); err != nil {
			return err
		}
		if spender != (common.Address{}) {
			if acct.Allowance, err = e.Tokens.Allowance(tokenAddr, owner, spender); err != nil {
				return err
			}
		}
		out = acct
		return nil
	})
	return out, err
}
