package config

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/propsproject/props-protocol-sub000/crypto"
)

// Genesis describes the state a fresh node is bootstrapped with. Addresses
// accept 0x hex or props bech32; amounts are base-10 strings.
type Genesis struct {
	ChainID      uint64              `yaml:"chainId"`
	GenesisTime  int64               `yaml:"genesisTime"`
	Orchestrator string              `yaml:"orchestrator"`
	Roles        map[string][]string `yaml:"roles"`
	Principal    TokenSpec           `yaml:"principal"`
	Governance   TokenSpec           `yaml:"governance"`
	UserPool     PoolSpec            `yaml:"userRewardPool"`
	AppPool      PoolSpec            `yaml:"appRewardPool"`
	Escrow       EscrowSpec          `yaml:"escrow"`
	Factory      FactorySpec         `yaml:"factory"`
	Apps         []AppSpec           `yaml:"apps"`
}

type TokenSpec struct {
	Address  string            `yaml:"address"`
	Name     string            `yaml:"name"`
	Symbol   string            `yaml:"symbol"`
	Decimals uint8             `yaml:"decimals"`
	Minter   string            `yaml:"minter"`
	Balances map[string]string `yaml:"balances"`
}

type PoolSpec struct {
	Address       string `yaml:"address"`
	Distributor   string `yaml:"distributor"`
	DailyEmission string `yaml:"dailyEmission"`
	// Funding is transferred from the distributor and notified at genesis.
	Funding string `yaml:"funding"`
}

type EscrowSpec struct {
	Address         string `yaml:"address"`
	CooldownSeconds uint64 `yaml:"cooldownSeconds"`
}

type FactorySpec struct {
	Address       string `yaml:"address"`
	DailyEmission string `yaml:"dailyEmission"`
}

type AppSpec struct {
	Name          string `yaml:"name"`
	Symbol        string `yaml:"symbol"`
	Supply        string `yaml:"supply"`
	Owner         string `yaml:"owner"`
	DailyEmission string `yaml:"dailyEmission"`
	Whitelisted   bool   `yaml:"whitelisted"`
}

// Genesis role names.
const (
	GenesisRoleAdmin      = "admin"
	GenesisRoleController = "controller"
	GenesisRoleGuardian   = "guardian"
)

// LoadGenesis reads and validates a YAML genesis document. Unknown fields are
// rejected.
func LoadGenesis(path string) (*Genesis, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis %q: %w", path, err)
	}
	return ParseGenesis(raw)
}

// ParseGenesis decodes and validates a YAML genesis document.
func ParseGenesis(raw []byte) (*Genesis, error) {
	var g Genesis
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks every address and amount in the document.
func (g *Genesis) Validate() error {
	if _, err := Addr(g.Orchestrator); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	for role, members := range g.Roles {
		switch role {
		case GenesisRoleAdmin, GenesisRoleController, GenesisRoleGuardian:
		default:
			return fmt.Errorf("roles: unknown role %q", role)
		}
		for _, member := range members {
			if _, err := Addr(member); err != nil {
				return fmt.Errorf("roles.%s: %w", role, err)
			}
		}
	}
	if len(g.Roles[GenesisRoleAdmin]) == 0 {
		return fmt.Errorf("roles: at least one admin required")
	}
	if err := g.Principal.validate(true); err != nil {
		return fmt.Errorf("principal: %w", err)
	}
	if err := g.Governance.validate(false); err != nil {
		return fmt.Errorf("governance: %w", err)
	}
	if len(g.Governance.Balances) > 0 {
		return fmt.Errorf("governance: weight cannot be allocated at genesis")
	}
	for name, pool := range map[string]PoolSpec{"userRewardPool": g.UserPool, "appRewardPool": g.AppPool} {
		if err := pool.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := Addr(g.Escrow.Address); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	if _, err := Addr(g.Factory.Address); err != nil {
		return fmt.Errorf("factory: %w", err)
	}
	if _, err := PositiveAmount(g.Factory.DailyEmission); err != nil {
		return fmt.Errorf("factory.dailyEmission: %w", err)
	}
	for i, app := range g.Apps {
		if strings.TrimSpace(app.Name) == "" || strings.TrimSpace(app.Symbol) == "" {
			return fmt.Errorf("apps[%d]: name and symbol required", i)
		}
		if _, err := Addr(app.Owner); err != nil {
			return fmt.Errorf("apps[%d].owner: %w", i, err)
		}
		if _, err := OptionalAmount(app.Supply); err != nil {
			return fmt.Errorf("apps[%d].supply: %w", i, err)
		}
		if app.DailyEmission != "" {
			if _, err := PositiveAmount(app.DailyEmission); err != nil {
				return fmt.Errorf("apps[%d].dailyEmission: %w", i, err)
			}
		}
	}
	return nil
}

func (t TokenSpec) validate(needMinter bool) error {
	if _, err := Addr(t.Address); err != nil {
		return err
	}
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("name and symbol required")
	}
	if needMinter {
		if _, err := Addr(t.Minter); err != nil {
			return fmt.Errorf("minter: %w", err)
		}
	}
	for holder, amount := range t.Balances {
		if _, err := Addr(holder); err != nil {
			return fmt.Errorf("balances: %w", err)
		}
		if _, err := OptionalAmount(amount); err != nil {
			return fmt.Errorf("balances[%s]: %w", holder, err)
		}
	}
	return nil
}

func (p PoolSpec) validate() error {
	if _, err := Addr(p.Address); err != nil {
		return err
	}
	if _, err := Addr(p.Distributor); err != nil {
		return fmt.Errorf("distributor: %w", err)
	}
	if _, err := PositiveAmount(p.DailyEmission); err != nil {
		return fmt.Errorf("dailyEmission: %w", err)
	}
	if _, err := OptionalAmount(p.Funding); err != nil {
		return fmt.Errorf("funding: %w", err)
	}
	return nil
}

// SortedBalances returns the token allocations in address order so that
// bootstrap is deterministic.
func (t TokenSpec) SortedBalances() ([]common.Address, []*big.Int, error) {
	holders := make([]string, 0, len(t.Balances))
	for holder := range t.Balances {
		holders = append(holders, holder)
	}
	addrs := make([]common.Address, 0, len(holders))
	index := make(map[common.Address]*big.Int, len(holders))
	for _, holder := range holders {
		addr, err := Addr(holder)
		if err != nil {
			return nil, nil, err
		}
		amount, err := OptionalAmount(t.Balances[holder])
		if err != nil {
			return nil, nil, err
		}
		if _, dup := index[addr]; !dup {
			addrs = append(addrs, addr)
			index[addr] = new(big.Int)
		}
		index[addr].Add(index[addr], amount)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0 })
	amounts := make([]*big.Int, len(addrs))
	for i, addr := range addrs {
		amounts[i] = index[addr]
	}
	return addrs, amounts, nil
}

// Addr parses a non-zero address.
func Addr(value string) (common.Address, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}

// OptionalAmount parses a non-negative base-10 integer. Empty means zero.
func OptionalAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(strings.ReplaceAll(value, "_", ""), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	return amount, nil
}

// PositiveAmount parses a base-10 integer greater than zero.
func PositiveAmount(value string) (*big.Int, error) {
	amount, err := OptionalAmount(value)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
