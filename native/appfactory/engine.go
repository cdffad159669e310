package appfactory

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
	"github.com/propsproject/props-protocol-sub000/native/rewardpool"
	"github.com/propsproject/props-protocol-sub000/native/token"
)

// AppTokenDecimals is the precision of every deployed app token.
const AppTokenDecimals = 18

var (
	errNilState      = errors.New("appfactory: state not configured")
	errMissingDeps   = errors.New("appfactory: collaborators not configured")
	errNotConfigured = errors.New("appfactory: factory not configured")
	errConfigured    = nativecommon.Wrap(nativecommon.ErrAlreadyConfigured, "appfactory: factory already configured")
	errInvalidConfig = nativecommon.Wrap(nativecommon.ErrInvalidInput, "appfactory: address, orchestrator and principal token required")
	errZeroOwner     = nativecommon.Wrap(nativecommon.ErrInvalidInput, "appfactory: owner required")
	errLabels        = nativecommon.Wrap(nativecommon.ErrInvalidInput, "appfactory: name and symbol required")
	errSupply        = nativecommon.Wrap(nativecommon.ErrInvalidInput, "appfactory: supply must not be negative")
	errUnknownApp    = nativecommon.Wrap(nativecommon.ErrInvalidApp, "appfactory: app not deployed by this factory")
)

var (
	configKey      = []byte("appfactory/config")
	sequenceKey    = []byte("appfactory/sequence")
	deploymentsKey = []byte("appfactory/deployments")
	recordPrefix   = []byte("appfactory/app/")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
	KVAppend(key []byte, value []byte) error
}

type tokenCreator interface {
	Create(meta *token.Metadata, holder common.Address, supply *big.Int) error
}

type poolCreator interface {
	Create(params rewardpool.Params) (*rewardpool.Pool, error)
}

// Registrar accepts freshly deployed apps.
type Registrar interface {
	RegisterApp(caller, app, pool, owner common.Address) error
}

// Engine deploys apps: an app token, its reward pool and the registration
// with the orchestrator, all in one call.
type Engine struct {
	state     engineState
	tokens    tokenCreator
	pools     poolCreator
	registrar Registrar
	emitter   events.Emitter
}

// NewEngine constructs a factory with default dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures the token ledger app tokens are created in.
func (e *Engine) SetTokens(tokens tokenCreator) { e.tokens = tokens }

// SetPools configures the reward pool engine.
func (e *Engine) SetPools(pools poolCreator) { e.pools = pools }

// SetRegistrar configures the orchestrator deployments are reported to.
func (e *Engine) SetRegistrar(registrar Registrar) { e.registrar = registrar }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

// Configure stores the deployment template. It may only run once.
func (e *Engine) Configure(cfg Config) error {
	if e.state == nil {
		return errNilState
	}
	var zero common.Address
	if cfg.Address == zero || cfg.Orchestrator == zero || cfg.PrincipalToken == zero {
		return errInvalidConfig
	}
	if _, err := rewardpool.RewardsDurationFor(cfg.DailyEmission); err != nil {
		return err
	}
	exists, err := e.state.KVGet(configKey, nil)
	if err != nil {
		return err
	}
	if exists {
		return errConfigured
	}
	return e.state.KVPut(configKey, cfg)
}

// Config returns the stored template.
func (e *Engine) Config() (*Config, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var cfg Config
	ok, err := e.state.KVGet(configKey, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotConfigured
	}
	return &cfg, nil
}

// Deploy creates the app token with its initial supply credited to the
// owner, a pool staking principal for app-token rewards and registers both
// with the orchestrator. The app starts out blacklisted there.
func (e *Engine) Deploy(req DeployRequest) (*Deployment, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if e.tokens == nil || e.pools == nil || e.registrar == nil {
		return nil, errMissingDeps
	}
	if req.Owner == (common.Address{}) {
		return nil, errZeroOwner
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Symbol) == "" {
		return nil, errLabels
	}
	supply := big.NewInt(0)
	if req.Supply != nil {
		if req.Supply.Sign() < 0 {
			return nil, errSupply
		}
		if err := nativecommon.CheckAmount(req.Supply); err != nil {
			return nil, err
		}
		supply = req.Supply
	}
	emission := req.DailyEmission
	if emission == nil {
		emission = cfg.DailyEmission
	}

	var sequence uint64
	if _, err := e.state.KVGet(sequenceKey, &sequence); err != nil {
		return nil, err
	}
	sequence++
	app := appAddress(cfg.Address, sequence)
	pool := rewardpool.DeriveAddress("app", app.Bytes())

	meta := &token.Metadata{
		Address:  app,
		Name:     req.Name,
		Symbol:   req.Symbol,
		Decimals: AppTokenDecimals,
		Minter:   req.Owner,
	}
	if err := e.tokens.Create(meta, req.Owner, supply); err != nil {
		return nil, err
	}
	if _, err := e.pools.Create(rewardpool.Params{
		Address:       pool,
		Operator:      cfg.Orchestrator,
		Distributor:   req.Owner,
		StakingToken:  cfg.PrincipalToken,
		RewardsToken:  app,
		DailyEmission: emission,
	}); err != nil {
		return nil, err
	}
	if err := e.registrar.RegisterApp(cfg.Address, app, pool, req.Owner); err != nil {
		return nil, err
	}

	deployment := &Deployment{App: app, Pool: pool, Owner: req.Owner, Sequence: sequence}
	if err := e.state.KVPut(sequenceKey, sequence); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(recordKey(app), deployment); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(deploymentsKey, app.Bytes()); err != nil {
		return nil, err
	}
	e.emit(deployedEvent(deployment, meta.Name, meta.Symbol))
	return deployment, nil
}

// Deployment returns the record for app.
func (e *Engine) Deployment(app common.Address) (*Deployment, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var record Deployment
	ok, err := e.state.KVGet(recordKey(app), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUnknownApp
	}
	return &record, nil
}

// Deployments lists deployed apps in deployment order.
func (e *Engine) Deployments() ([]common.Address, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := e.state.KVGetList(deploymentsKey, &raw); err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(raw))
	for _, item := range raw {
		out = append(out, common.BytesToAddress(item))
	}
	return out, nil
}

func appAddress(factory common.Address, sequence uint64) common.Address {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	hash := ethcrypto.Keccak256([]byte("appfactory/app/"), factory.Bytes(), seq[:])
	return common.BytesToAddress(hash[12:])
}

func recordKey(app common.Address) []byte {
	return append(append([]byte(nil), recordPrefix...), app.Bytes()...)
}
