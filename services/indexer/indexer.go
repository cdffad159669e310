package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/propsproject/props-protocol-sub000/core"
	"github.com/propsproject/props-protocol-sub000/observability/logging"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultQueryLimit = 100

// Open connects to the indexer database and migrates its schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Indexer copies committed receipts into a relational store for history
// queries the state database cannot answer.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func New(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Indexer{db: db, logger: logger, now: time.Now}
}

// Record stores a receipt and its events. Receipts already indexed are
// skipped, so replays after a restart are harmless.
func (ix *Indexer) Record(ctx context.Context, receipt *core.Receipt) error {
	if receipt == nil {
		return nil
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ReceiptRecord{}).Where("sequence = ?", receipt.Sequence).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		record := ReceiptRecord{
			Sequence:   receipt.Sequence,
			Op:         receipt.Op,
			Caller:     receipt.Caller,
			Timestamp:  receipt.Timestamp,
			Digest:     receipt.Digest.Hex(),
			EventCount: len(receipt.Events),
			IndexedAt:  ix.now().UTC(),
		}
		events := make([]EventRecord, 0, len(receipt.Events))
		for i, evt := range receipt.Events {
			attrs, err := json.Marshal(evt.Attributes)
			if err != nil {
				return err
			}
			events = append(events, EventRecord{
				Sequence:   receipt.Sequence,
				Position:   i,
				Type:       evt.Type,
				Account:    evt.Attributes["account"],
				App:        evt.Attributes["app"],
				Timestamp:  receipt.Timestamp,
				Attributes: string(attrs),
			})
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		return tx.Create(&events).Error
	})
}

// Run indexes receipts until ctx is done or the channel closes.
func (ix *Indexer) Run(ctx context.Context, receipts <-chan *core.Receipt) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case receipt, ok := <-receipts:
			if !ok {
				return nil
			}
			if err := ix.Record(ctx, receipt); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				ix.logger.Error("index receipt failed", "sequence", receipt.Sequence, "error", err)
				continue
			}
			ix.logger.Debug("receipt indexed", "sequence", receipt.Sequence, "events", len(receipt.Events))
		}
	}
}

// LastSequence returns the highest indexed sequence, zero when empty.
func (ix *Indexer) LastSequence(ctx context.Context) (uint64, error) {
	var seq *uint64
	if err := ix.db.WithContext(ctx).Model(&ReceiptRecord{}).Select("MAX(sequence)").Scan(&seq).Error; err != nil {
		return 0, err
	}
	if seq == nil {
		return 0, nil
	}
	return *seq, nil
}

// Filter narrows event queries. Empty fields match everything.
type Filter struct {
	Type    string
	Account string
	App     string
	// FromSequence is inclusive.
	FromSequence uint64
	Limit        int
}

// Events returns matching events ordered by sequence and position.
func (ix *Indexer) Events(ctx context.Context, filter Filter) ([]EventRecord, error) {
	query := ix.db.WithContext(ctx).Model(&EventRecord{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Account != "" {
		query = query.Where("account = ?", filter.Account)
	}
	if filter.App != "" {
		query = query.Where("app = ?", filter.App)
	}
	if filter.FromSequence > 0 {
		query = query.Where("sequence >= ?", filter.FromSequence)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	var out []EventRecord
	err := query.Order("sequence ASC").Order("position ASC").Limit(limit).Find(&out).Error
	return out, err
}

// Receipts returns indexed receipts from sequence from onwards.
func (ix *Indexer) Receipts(ctx context.Context, from uint64, limit int) ([]ReceiptRecord, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	var out []ReceiptRecord
	err := ix.db.WithContext(ctx).Where("sequence >= ?", from).Order("sequence ASC").Limit(limit).Find(&out).Error
	return out, err
}
