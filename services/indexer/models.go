package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReceiptRecord is one committed node operation.
type ReceiptRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Op         string    `gorm:"index;not null"`
	Caller     string    `gorm:"index"`
	Timestamp  int64     `gorm:"not null"`
	Digest     string    `gorm:"not null"`
	EventCount int
	IndexedAt  time.Time
}

// EventRecord is one event of a receipt. Account and App copy the attributes
// of the same name so that per-account and per-app lookups hit an index.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"index:idx_event_position,priority:1;not null"`
	Position   int       `gorm:"index:idx_event_position,priority:2;not null"`
	Type       string    `gorm:"index;not null"`
	Account    string    `gorm:"index"`
	App        string    `gorm:"index"`
	Timestamp  int64     `gorm:"not null"`
	Attributes string    `gorm:"type:text"`
}

func (r *ReceiptRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (e *EventRecord) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ReceiptRecord{}, &EventRecord{})
}
