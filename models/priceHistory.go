package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistory records what one acquisition of an item cost, per base
// unit. Rows are immutable once created; they back the blended-cost
// fallback pricing and the price variance alerts.
type PriceHistory struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ItemId       int             `gorm:"index;not null" json:"item_id"`
	Item         Item            `gorm:"foreignKey:ItemId" json:"item"`
	SupplierId   *int            `gorm:"index" json:"supplier_id"`
	BaseUnitCost decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"base_unit_cost"`
	Source       PriceSource     `gorm:"type:enum('Acquisition','Manual');default:'Acquisition';not null" json:"source"`
	RecordedAt   time.Time       `gorm:"index;not null" json:"recorded_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// priceVariancePercent returns how far newPrice deviates from oldPrice,
// as a percentage of oldPrice. Zero oldPrice yields zero (no baseline).
func priceVariancePercent(oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	if oldPrice.IsZero() {
		return decimal.Zero
	}
	return newPrice.Sub(oldPrice).Abs().Div(oldPrice).Mul(decimal.NewFromInt(100))
}
