package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/state"
	"github.com/propsproject/props-protocol-sub000/core/types"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
	"github.com/propsproject/props-protocol-sub000/observability"
	"github.com/propsproject/props-protocol-sub000/observability/logging"
	propsotel "github.com/propsproject/props-protocol-sub000/observability/otel"
	"github.com/propsproject/props-protocol-sub000/storage"
)

const sequenceParam = "node.sequence"

type callerKey struct{}

// WithCaller tags ctx with the account an operation runs for. It is copied
// onto the receipt, logs and spans.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the account recorded by WithCaller.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(common.Address)
	return caller, ok
}

// ErrNodeClosed is returned once Close has run.
var ErrNodeClosed = errors.New("core: node closed")

// Receipt describes one committed operation.
type Receipt struct {
	Sequence  uint64         `json:"sequence"`
	Op        string         `json:"op"`
	Caller    string         `json:"caller,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Digest    common.Hash    `json:"digest"`
	Events    []*types.Event `json:"events"`
}

// Node serialises every operation against the state database. Each call runs
// on a fresh overlay that is committed as one batch on success and dropped
// on failure, so a rejected call leaves no trace.
type Node struct {
	db      storage.Database
	stateMu sync.Mutex
	closed  bool

	chainID *big.Int
	nowFn   func() int64
	logger  *slog.Logger
	metrics *observability.StakingMetrics
	tracer  trace.Tracer

	subMu   sync.RWMutex
	subs    map[uint64]chan *Receipt
	nextSub uint64
}

// Option customises a Node.
type Option func(*Node)

// WithClock overrides the unix-seconds time source.
func WithClock(now func() int64) Option {
	return func(n *Node) {
		if now != nil {
			n.nowFn = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMetrics enables prometheus recording.
func WithMetrics(metrics *observability.StakingMetrics) Option {
	return func(n *Node) { n.metrics = metrics }
}

// WithChainID sets the chain id bound into permit signatures.
func WithChainID(id uint64) Option {
	return func(n *Node) { n.chainID = new(big.Int).SetUint64(id) }
}

// WithTracer overrides the tracer used for execution spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(n *Node) {
		if tracer != nil {
			n.tracer = tracer
		}
	}
}

// NewNode wraps db. The database is owned by the node from here on.
func NewNode(db storage.Database, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	n := &Node{
		db:      db,
		chainID: big.NewInt(1),
		nowFn:   func() int64 { return time.Now().Unix() },
		logger:  logging.Discard(),
		tracer:  propsotel.Tracer(),
		subs:    make(map[uint64]chan *Receipt),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// ChainID returns the chain id bound into permit signatures.
func (n *Node) ChainID() *big.Int { return new(big.Int).Set(n.chainID) }

// Execute runs fn as one atomic operation and commits its writes.
func (n *Node) Execute(ctx context.Context, op string, fn func(*Engines) error) (*Receipt, error) {
	return n.execute(ctx, op, 0, fn)
}

func (n *Node) execute(ctx context.Context, op string, at int64, fn func(*Engines) error) (*Receipt, error) {
	ctx, span := n.tracer.Start(ctx, "node.execute", trace.WithAttributes(attribute.String("op", op)))
	defer span.End()
	started := time.Now()

	logger := n.logger.With("op", op)
	callerHex := ""
	if caller, ok := CallerFrom(ctx); ok {
		callerHex = caller.Hex()
		logger = logger.With("caller", callerHex)
		span.SetAttributes(attribute.String("caller", callerHex))
	}

	receipt, err := n.commit(ctx, op, at, fn)
	code := ""
	if err != nil {
		code = string(nativecommon.Code(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		logger.Warn("operation rejected", "code", code, "error", err)
	} else {
		receipt.Caller = callerHex
		span.SetAttributes(attribute.Int64("sequence", int64(receipt.Sequence)))
		logger.Info("operation committed", "sequence", receipt.Sequence,
			"digest", receipt.Digest.Hex(), "events", len(receipt.Events))
		n.metrics.SetSequence(receipt.Sequence)
		for _, evt := range receipt.Events {
			n.metrics.RecordEvent(evt.Type)
		}
	}
	n.metrics.ObserveCall(op, code, time.Since(started))
	if err != nil {
		return nil, err
	}
	n.publish(receipt)
	return receipt, nil
}

func (n *Node) commit(ctx context.Context, op string, at int64, fn func(*Engines) error) (*Receipt, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return nil, ErrNodeClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := at
	if now == 0 {
		now = n.nowFn()
	}
	overlay := state.NewOverlay(n.db)
	manager := state.NewManager(overlay)
	buffer := &events.Buffer{}
	engines := newEngines(manager, buffer, func() int64 { return now }, n.chainID)

	if err := fn(engines); err != nil {
		overlay.Discard()
		return nil, err
	}
	seq, err := loadSequence(manager)
	if err != nil {
		overlay.Discard()
		return nil, err
	}
	seq++
	if err := storeSequence(manager, seq); err != nil {
		overlay.Discard()
		return nil, err
	}
	digest, err := overlay.Commit()
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Sequence:  seq,
		Op:        op,
		Timestamp: now,
		Digest:    common.Hash(digest),
		Events:    buffer.Drain(),
	}, nil
}

// View runs fn against the committed state. Writes made by fn are dropped.
func (n *Node) View(ctx context.Context, fn func(*Engines) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := n.nowFn()
	overlay := state.NewOverlay(n.db)
	defer overlay.Discard()
	return fn(newEngines(state.NewManager(overlay), events.NoopEmitter{}, func() int64 { return now }, n.chainID))
}

// Sequence returns the number of committed operations.
func (n *Node) Sequence(ctx context.Context) (uint64, error) {
	var seq uint64
	err := n.View(ctx, func(e *Engines) error {
		var err error
		seq, err = loadSequence(e.Manager)
		return err
	})
	return seq, err
}

// Subscribe streams receipts of committed operations. Slow subscribers miss
// receipts rather than stall the node. The returned function cancels the
// subscription.
func (n *Node) Subscribe(buffer int) (<-chan *Receipt, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *Receipt, buffer)
	n.subMu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = ch
	n.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.subMu.Lock()
			if _, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(ch)
			}
			n.subMu.Unlock()
		})
	}
}

func (n *Node) publish(receipt *Receipt) {
	n.subMu.RLock()
	defer n.subMu.RUnlock()
	for id, ch := range n.subs {
		select {
		case ch <- receipt:
		default:
			n.logger.Warn("subscriber lagging, receipt dropped", "subscriber", id, "sequence", receipt.Sequence)
		}
	}
}

// Close closes every subscription and the database.
func (n *Node) Close() {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.subMu.Lock()
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
	n.subMu.Unlock()
	n.db.Close()
}

func loadSequence(manager *state.Manager) (uint64, error) {
	raw, ok, err := manager.ParamStoreGet(sequenceParam)
	if err != nil || !ok {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("core: corrupt sequence record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func storeSequence(manager *state.Manager, seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return manager.ParamStoreSet(sequenceParam, buf[:])
}
