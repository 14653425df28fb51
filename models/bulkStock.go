package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BulkStock is the running state for an average-costed item: one
// on-hand quantity and one blended cost for the whole pile. No lots are
// tracked; FIFO precision is deliberately traded for O(1) state on
// goods whose cost variance does not matter operationally (flour by the
// pallet, not saffron).
type BulkStock struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	ItemId              int             `gorm:"uniqueIndex;not null" json:"item_id"`
	Item                Item            `gorm:"foreignKey:ItemId" json:"item"`
	CurrentQuantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"current_quantity"`
	WeightedAverageCost decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"weighted_average_cost"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BulkAdjustmentInput carries exactly one of the two adjustment forms:
// an absolute recounted quantity, or a 0-100 percentage of the current
// quantity. The average cost is never touched by an adjustment; the
// cost basis survives physical recounts.
type BulkAdjustmentInput struct {
	AbsoluteQuantity    *decimal.Decimal `json:"absolute_quantity"`
	PercentageOfCurrent *decimal.Decimal `json:"percentage_of_current"`
}

// nextWeightedAverage folds one acquisition into the running average.
// A zero current quantity seeds the average from the incoming cost,
// which also avoids dividing by zero on the first purchase.
func nextWeightedAverage(currentQty, currentAvg, addedQty, addedCost decimal.Decimal, costPrecision int32) decimal.Decimal {
	if currentQty.IsZero() {
		return addedCost.Round(costPrecision)
	}
	totalValue := currentQty.Mul(currentAvg).Add(addedQty.Mul(addedCost))
	totalQty := currentQty.Add(addedQty)
	return totalValue.Div(totalQty).Round(costPrecision)
}

// applyAcquisition folds one purchase into the state: the average moves
// first (it reads the pre-fold quantity), then the quantity.
func (s *BulkStock) applyAcquisition(addedQty, addedCost decimal.Decimal, costPrecision int32) {
	s.WeightedAverageCost = nextWeightedAverage(
		s.CurrentQuantity, s.WeightedAverageCost,
		addedQty, addedCost, costPrecision,
	)
	s.CurrentQuantity = s.CurrentQuantity.Add(addedQty)
}

// applyBulkAdjustment computes the adjusted quantity without touching
// storage. Exactly one adjustment form must be supplied.
func applyBulkAdjustment(current BulkStock, input BulkAdjustmentInput, qtyPrecision int32) (decimal.Decimal, error) {
	if input.AbsoluteQuantity != nil && input.PercentageOfCurrent != nil {
		return decimal.Zero, newValidationError("supply either an absolute quantity or a percentage, not both")
	}
	switch {
	case input.AbsoluteQuantity != nil:
		qty := *input.AbsoluteQuantity
		if qty.IsNegative() {
			return decimal.Zero, newValidationError("adjusted quantity %s would be negative", qty)
		}
		return qty, nil
	case input.PercentageOfCurrent != nil:
		pct := *input.PercentageOfCurrent
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, newValidationError("percentage %s out of range [0, 100]", pct)
		}
		return current.CurrentQuantity.Mul(pct).Div(decimal.NewFromInt(100)).Round(qtyPrecision), nil
	default:
		return decimal.Zero, newValidationError("supply an absolute quantity or a percentage")
	}
}

// RecordBulkAcquisition folds a purchase into an average-costed item's
// running state, creating the state row on first purchase. The state
// update runs in one transaction with a row lock on the bulk record.
func RecordBulkAcquisition(ctx context.Context, itemId int, addedQuantity, addedUnitCost decimal.Decimal) (*BulkStock, error) {
	if !addedQuantity.IsPositive() {
		return nil, newValidationError("added quantity must be positive, got %s", addedQuantity)
	}
	if addedUnitCost.IsNegative() {
		return nil, newValidationError("added unit cost must not be negative, got %s", addedUnitCost)
	}

	cfg := config.DefaultCostingConfig()
	db := config.GetDB()
	var state *BulkStock
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := getItemTx(tx, itemId)
		if err != nil {
			return err
		}
		var err2 error
		state, err2 = recordBulkAcquisitionTx(tx, cfg, item, addedQuantity, addedUnitCost)
		return err2
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// recordBulkAcquisitionTx is the transactional fold shared by
// RecordBulkAcquisition and the acquisition flow: row-lock the bulk
// state, fold the purchase in, save.
func recordBulkAcquisitionTx(tx *gorm.DB, cfg config.CostingConfig, item *Item, addedQuantity, addedUnitCost decimal.Decimal) (*BulkStock, error) {
	if item.CostingMethod != CostingMethodAverage {
		return nil, newValidationError("item %d (%s) is lot-tracked; record the purchase as a lot instead", item.ID, item.Name)
	}
	state, err := bulkStockForUpdate(tx, item.ID)
	if err != nil {
		return nil, err
	}
	state.applyAcquisition(addedQuantity, addedUnitCost, cfg.CostPrecision)
	if err := tx.Save(state).Error; err != nil {
		return nil, err
	}
	return state, nil
}

// AdjustBulkStock applies a recount to an average-costed item. The
// weighted average cost is left alone; only the quantity moves.
func AdjustBulkStock(ctx context.Context, itemId int, input BulkAdjustmentInput) (*BulkStock, error) {
	cfg := config.DefaultCostingConfig()
	db := config.GetDB()
	var state *BulkStock
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := getItemTx(tx, itemId)
		if err != nil {
			return err
		}
		if item.CostingMethod != CostingMethodAverage {
			return newValidationError("item %d (%s) is lot-tracked; adjust its lots instead", item.ID, item.Name)
		}

		var err2 error
		state, err2 = bulkStockForUpdate(tx, itemId)
		if err2 != nil {
			return err2
		}
		newQty, err2 := applyBulkAdjustment(*state, input, cfg.QuantityPrecision)
		if err2 != nil {
			return err2
		}
		state.CurrentQuantity = newQty
		return tx.Save(state).Error
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ConsumeBulkTx deducts quantity (in the caller's unit) of an
// average-costed item from its bulk state within tx, priced at the
// current weighted average. Like the FIFO walk, a shortfall is reported
// rather than returned as an error: the pile is drained to zero and the
// caller decides whether the shortfall aborts its transaction.
func ConsumeBulkTx(ctx context.Context, tx *gorm.DB, converter UnitConverter, cfg config.CostingConfig, itemId int, quantity decimal.Decimal, unit string) (cost, consumedBase, shortfallBase decimal.Decimal, err error) {
	_ = ctx
	if !quantity.IsPositive() {
		return decimal.Zero, decimal.Zero, decimal.Zero, newValidationError("quantity must be positive, got %s", quantity)
	}
	item, err := getItemTx(tx, itemId)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	if item.CostingMethod != CostingMethodAverage {
		return decimal.Zero, decimal.Zero, decimal.Zero, newValidationError("item %d (%s) is lot-tracked; consume its lots instead", item.ID, item.Name)
	}
	neededBase, err := converter.Convert(quantity, unit, item.BaseUnit, item)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	state, err := bulkStockForUpdate(tx, itemId)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	consumed := decimal.Min(neededBase, state.CurrentQuantity)
	short := neededBase.Sub(consumed)
	if short.LessThanOrEqual(cfg.RemainderEpsilon) {
		short = decimal.Zero
	}
	state.CurrentQuantity = state.CurrentQuantity.Sub(consumed)
	if state.CurrentQuantity.LessThanOrEqual(cfg.RemainderEpsilon) {
		state.CurrentQuantity = decimal.Zero
	}
	if err := tx.Save(state).Error; err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	cost = consumed.Mul(state.WeightedAverageCost).Round(cfg.CostPrecision)
	return cost, consumed, short, nil
}

// bulkStockForUpdate loads (or initializes) the item's bulk state with
// a row lock, so concurrent acquisitions serialize on the row.
func bulkStockForUpdate(tx *gorm.DB, itemId int) (*BulkStock, error) {
	var state BulkStock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ?", itemId).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BulkStock{
			ItemId:              itemId,
			CurrentQuantity:     decimal.Zero,
			WeightedAverageCost: decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
