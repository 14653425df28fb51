package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LotStore is the persistence port the costing engines operate
// through. Every method runs within whatever transaction the store was
// built on; WithTx opens a new one and hands the engines a store bound
// to it, so a failure partway through a FIFO walk rolls back the lots
// already written.
type LotStore interface {
	FetchItem(ctx context.Context, itemId int) (*Item, error)
	FetchLot(ctx context.Context, lotId int) (*Lot, error)
	// LotsForConsumption returns the item's lots with remaining quantity
	// above epsilon, ordered ascending by acquisition date with id as
	// the stable tie-break. forUpdate takes row locks for a committed
	// walk; previews read without them.
	LotsForConsumption(ctx context.Context, itemId int, epsilon decimal.Decimal, forUpdate bool) ([]Lot, error)
	SaveLot(ctx context.Context, lot *Lot) error
	SaveAdjustment(ctx context.Context, adj *InventoryAdjustment) error
	WithTx(ctx context.Context, fn func(LotStore) error) error
}

// PricingSource answers "what did this item last cost us" for blended
// costing. found=false means no usable price exists.
type PricingSource interface {
	MostRecentPrice(ctx context.Context, itemId int) (price decimal.Decimal, found bool, err error)
}

// BulkReader exposes the average-costed on-hand state to read paths.
// A missing row reads as zero state, not an error.
type BulkReader interface {
	FetchBulkStock(ctx context.Context, itemId int) (*BulkStock, error)
}

type gormLotStore struct {
	db *gorm.DB
}

// NewGormLotStore wraps a gorm handle (a root DB or an open
// transaction) as a LotStore.
func NewGormLotStore(db *gorm.DB) LotStore {
	return &gormLotStore{db: db}
}

func (s *gormLotStore) FetchItem(ctx context.Context, itemId int) (*Item, error) {
	return getItemTx(s.db.WithContext(ctx), itemId)
}

func (s *gormLotStore) FetchLot(ctx context.Context, lotId int) (*Lot, error) {
	var lot Lot
	if err := s.db.WithContext(ctx).First(&lot, lotId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLotNotFound
		}
		return nil, err
	}
	return &lot, nil
}

func (s *gormLotStore) LotsForConsumption(ctx context.Context, itemId int, epsilon decimal.Decimal, forUpdate bool) ([]Lot, error) {
	query := s.db.WithContext(ctx).
		Where("item_id = ? AND quantity_remaining > ?", itemId, epsilon).
		Order("acquisition_date ASC, id ASC")
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var lots []Lot
	if err := query.Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

func (s *gormLotStore) SaveLot(ctx context.Context, lot *Lot) error {
	return s.db.WithContext(ctx).Save(lot).Error
}

func (s *gormLotStore) SaveAdjustment(ctx context.Context, adj *InventoryAdjustment) error {
	return s.db.WithContext(ctx).Create(adj).Error
}

func (s *gormLotStore) WithTx(ctx context.Context, fn func(LotStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLotStore{db: tx})
	})
}

type gormBulkReader struct {
	db *gorm.DB
}

func NewGormBulkReader(db *gorm.DB) BulkReader {
	return &gormBulkReader{db: db}
}

func (s *gormBulkReader) FetchBulkStock(ctx context.Context, itemId int) (*BulkStock, error) {
	var state BulkStock
	err := s.db.WithContext(ctx).Where("item_id = ?", itemId).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BulkStock{ItemId: itemId, CurrentQuantity: decimal.Zero, WeightedAverageCost: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

type gormPricingSource struct {
	db *gorm.DB
}

// NewGormPricingSource reads fallback prices from the price history
// table, preferring the item's preferred supplier when it has rows.
func NewGormPricingSource(db *gorm.DB) PricingSource {
	return &gormPricingSource{db: db}
}

// priceCacheKey is the redis key for an item's resolved latest price.
// Invalidated whenever a new price history row lands (RecordAcquisition).
func priceCacheKey(itemId int) string {
	return fmt.Sprintf("price:latest:%d", itemId)
}

func (s *gormPricingSource) MostRecentPrice(ctx context.Context, itemId int) (decimal.Decimal, bool, error) {
	var cached decimal.Decimal
	if found, err := config.GetRedisObject(priceCacheKey(itemId), &cached); err == nil && found {
		return cached, true, nil
	}

	item, err := getItemTx(s.db.WithContext(ctx), itemId)
	if err != nil {
		return decimal.Zero, false, err
	}

	var row PriceHistory
	if item.PreferredSupplierId != nil {
		err := s.db.WithContext(ctx).
			Where("item_id = ? AND supplier_id = ?", itemId, *item.PreferredSupplierId).
			Order("recorded_at DESC, id DESC").
			First(&row).Error
		if err == nil {
			_ = config.SetRedisObject(priceCacheKey(itemId), row.BaseUnitCost, time.Hour)
			return row.BaseUnitCost, true, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, false, err
		}
	}

	err = s.db.WithContext(ctx).
		Where("item_id = ?", itemId).
		Order("recorded_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	_ = config.SetRedisObject(priceCacheKey(itemId), row.BaseUnitCost, time.Hour)
	return row.BaseUnitCost, true, nil
}
