package rewardpool

import (
	"math/big"

	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
)

func lastTimeRewardApplicable(p *Pool, now uint64) uint64 {
	if now < p.PeriodFinish {
		return now
	}
	return p.PeriodFinish
}

// rewardPerUnit = stored + (applicable - lastUpdate) * rate * 1e18 / total.
func rewardPerUnit(p *Pool, now uint64) (*big.Int, error) {
	stored := new(big.Int).Set(p.RewardPerUnitStored)
	if p.TotalStaked.Sign() == 0 {
		return stored, nil
	}
	applicable := lastTimeRewardApplicable(p, now)
	if applicable <= p.LastUpdateTime {
		return stored, nil
	}
	elapsed := new(big.Int).SetUint64(applicable - p.LastUpdateTime)
	emitted, err := nativecommon.MulDiv(elapsed, p.RewardRate, big.NewInt(1))
	if err != nil {
		return nil, err
	}
	delta, err := nativecommon.MulDiv(emitted, nativecommon.Scale, p.TotalStaked)
	if err != nil {
		return nil, err
	}
	return nativecommon.Add(stored, delta)
}

// earned = balance * (rpu - paid) / 1e18 + pending.
func earned(a *AccountState, rpu *big.Int) (*big.Int, error) {
	diff, err := nativecommon.Sub(rpu, a.RewardPerUnitPaid)
	if err != nil {
		return nil, err
	}
	accrued, err := nativecommon.MulDiv(a.Balance, diff, nativecommon.Scale)
	if err != nil {
		return nil, err
	}
	return nativecommon.Add(accrued, a.PendingReward)
}

// updateReward checkpoints the accumulator and, when acct is supplied, folds
// the account's accrual into its pending reward.
func updateReward(p *Pool, acct *AccountState, now uint64) error {
	rpu, err := rewardPerUnit(p, now)
	if err != nil {
		return err
	}
	p.RewardPerUnitStored = rpu
	p.LastUpdateTime = lastTimeRewardApplicable(p, now)
	if acct == nil {
		return nil
	}
	pending, err := earned(acct, rpu)
	if err != nil {
		return err
	}
	acct.PendingReward = pending
	acct.RewardPerUnitPaid = new(big.Int).Set(rpu)
	return nil
}
