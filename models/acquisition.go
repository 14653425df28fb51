package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewAcquisition records one purchase/receipt of an item. Quantity and
// unit cost are in the caller's unit; both are converted to the item's
// base unit before anything is stored.
type NewAcquisition struct {
	ItemId          int             `json:"item_id" binding:"required"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit" binding:"required"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	AcquisitionDate time.Time       `json:"acquisition_date" binding:"required"`
	ExpirationDate  *time.Time      `json:"expiration_date"`
	Location        string          `json:"location"`
	SupplierId      *int            `json:"supplier_id"`
	Notes           string          `json:"notes"`
}

// AcquisitionResult reports what an acquisition produced: a new lot for
// lot-tracked items, or the updated bulk state for average items.
type AcquisitionResult struct {
	Lot       *Lot       `json:"lot,omitempty"`
	BulkStock *BulkStock `json:"bulk_stock,omitempty"`
}

// RecordAcquisition stores one purchase. The lot (or bulk state
// update) and the price history row land in one transaction. Zero unit
// cost is allowed: donated or free stock is still stock.
func RecordAcquisition(ctx context.Context, converter UnitConverter, input *NewAcquisition) (*AcquisitionResult, error) {
	if !input.Quantity.IsPositive() {
		return nil, newValidationError("acquisition quantity must be positive, got %s", input.Quantity)
	}
	if input.UnitCost.IsNegative() {
		return nil, newValidationError("acquisition unit cost must not be negative, got %s", input.UnitCost)
	}

	cfg := config.DefaultCostingConfig()
	logger := config.GetLogger()
	db := config.GetDB()

	result := &AcquisitionResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := getItemTx(tx, input.ItemId)
		if err != nil {
			return err
		}

		baseQuantity, err := converter.Convert(input.Quantity, input.Unit, item.BaseUnit, item)
		if err != nil {
			return err
		}
		// Total spend is unit-independent, so price per base unit follows
		// from it: cost * qty / baseQty.
		baseUnitCost := input.UnitCost
		if !baseQuantity.Equal(input.Quantity) && !baseQuantity.IsZero() {
			baseUnitCost = input.UnitCost.Mul(input.Quantity).Div(baseQuantity).Round(cfg.CostPrecision)
		}

		warnOnPriceVariance(ctx, tx, logger, cfg, item, baseUnitCost)

		switch item.CostingMethod {
		case CostingMethodFifo:
			lot := &Lot{
				ItemId:            item.ID,
				AcquisitionDate:   input.AcquisitionDate,
				QuantityOriginal:  baseQuantity,
				QuantityRemaining: baseQuantity,
				UnitCost:          baseUnitCost,
				ExpirationDate:    input.ExpirationDate,
				Location:          input.Location,
				Notes:             input.Notes,
			}
			if err := tx.Create(lot).Error; err != nil {
				return err
			}
			result.Lot = lot
		case CostingMethodAverage:
			state, err := recordBulkAcquisitionTx(tx, cfg, item, baseQuantity, baseUnitCost)
			if err != nil {
				return err
			}
			result.BulkStock = state
		default:
			return newValidationError("item %d has unknown costing method %q", item.ID, item.CostingMethod)
		}

		history := &PriceHistory{
			ItemId:       item.ID,
			SupplierId:   input.SupplierId,
			BaseUnitCost: baseUnitCost,
			Source:       PriceSourceAcquisition,
			RecordedAt:   input.AcquisitionDate,
		}
		return tx.Create(history).Error
	})
	if err != nil {
		return nil, err
	}
	// The new price row supersedes whatever latest price was cached.
	if err := config.DeleteRedisKeys(priceCacheKey(input.ItemId)); err != nil {
		config.LogError(logger, "acquisition", "RecordAcquisition", "failed to invalidate cached price", input.ItemId, err)
	}
	return result, nil
}

func warnOnPriceVariance(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, cfg config.CostingConfig, item *Item, newPrice decimal.Decimal) {
	if logger == nil || cfg.PriceVarianceAlertPercent.IsZero() {
		return
	}
	lastPrice, found, err := NewGormPricingSource(tx).MostRecentPrice(ctx, item.ID)
	if err != nil || !found {
		return
	}
	variance := priceVariancePercent(lastPrice, newPrice)
	if variance.GreaterThan(cfg.PriceVarianceAlertPercent) {
		logger.WithFields(logrus.Fields{
			"module":          "acquisition",
			"itemId":          item.ID,
			"itemName":        item.Name,
			"lastPrice":       lastPrice.String(),
			"newPrice":        newPrice.String(),
			"variancePercent": variance.Round(2).String(),
		}).Warn("acquisition price deviates from recent history")
	}
}
