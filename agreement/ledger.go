package agreement

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/catenax-ng/product-agents-edc-sub000/internal/database"
)

// LedgerKind classifies ledger entries.
type LedgerKind string

const (
	LedgerAgreement    LedgerKind = "agreement"
	LedgerTransfer     LedgerKind = "transfer"
	LedgerEndpoint     LedgerKind = "endpoint"
	LedgerFailure      LedgerKind = "failure"
	LedgerDeactivation LedgerKind = "deactivation"
)

// LedgerEntry is one audit record of the negotiation engine.
type LedgerEntry struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	AssetID   string     `gorm:"size:512;index" json:"assetId"`
	Kind      LedgerKind `gorm:"size:32;index" json:"kind"`
	Peer      string     `gorm:"size:512" json:"peer,omitempty"`
	Reference string     `gorm:"size:256" json:"reference,omitempty"`
	Detail    string     `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TableName 指定账本表名
func (LedgerEntry) TableName() string {
	return "agreement_ledger"
}

// Ledger records negotiation outcomes. Failures to record never fail the
// negotiation itself.
type Ledger interface {
	Record(ctx context.Context, entry LedgerEntry) error
}

// ledgerRetries bounds retries of transient write failures.
const ledgerRetries = 3

// GormLedger stores ledger entries through the database pool.
type GormLedger struct {
	pool *database.PoolManager
}

// NewGormLedger migrates the ledger table and returns the ledger.
func NewGormLedger(pool *database.PoolManager) (*GormLedger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if err := pool.DB().AutoMigrate(&LedgerEntry{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &GormLedger{pool: pool}, nil
}

// Record 写入一条账本记录
func (l *GormLedger) Record(ctx context.Context, entry LedgerEntry) error {
	entry.ID = 0
	return l.pool.WithTransactionRetry(ctx, ledgerRetries, func(tx *gorm.DB) error {
		return tx.Create(&entry).Error
	})
}

// History returns the entries of an asset, oldest first. limit <= 0 means
// no limit.
func (l *GormLedger) History(ctx context.Context, asset string, limit int) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	q := l.pool.DB().WithContext(ctx).Where("asset_id = ?", asset).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
