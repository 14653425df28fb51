package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lot is one acquisition event for a lot-tracked item, in the item's
// base unit. Lots are never deleted, even at zero remaining; depleted
// lots stay behind for audit continuity and are only excluded from the
// FIFO walk by the remaining-quantity filter.
type Lot struct {
	ID                int             `gorm:"primary_key" json:"id"`
	ItemId            int             `gorm:"index;not null" json:"item_id"`
	Item              Item            `gorm:"foreignKey:ItemId" json:"item"`
	AcquisitionDate   time.Time       `gorm:"index;not null" json:"acquisition_date"`
	QuantityOriginal  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_original"`
	QuantityRemaining decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_remaining"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	ExpirationDate    *time.Time      `json:"expiration_date"`
	Location          string          `gorm:"size:100" json:"location"`
	Notes             string          `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave enforces the lot invariants. A row that violates them would
// poison every FIFO walk over the item, so refuse the write outright.
func (l *Lot) BeforeSave(tx *gorm.DB) error {
	_ = tx // signature required by gorm; tx may be nil in tests
	if l == nil {
		return nil
	}
	if l.UnitCost.IsNegative() {
		return fmt.Errorf("lot %d: unit cost %s is negative", l.ID, l.UnitCost)
	}
	if l.QuantityRemaining.IsNegative() {
		return fmt.Errorf("lot %d: remaining quantity %s is negative", l.ID, l.QuantityRemaining)
	}
	if l.QuantityRemaining.GreaterThan(l.QuantityOriginal) {
		return fmt.Errorf("lot %d: remaining quantity %s exceeds original %s",
			l.ID, l.QuantityRemaining, l.QuantityOriginal)
	}
	return nil
}

// AppendNote appends one timestamped line to the lot's free-text audit
// log. Existing notes are never rewritten.
func (l *Lot) AppendNote(at time.Time, by string, line string) {
	entry := fmt.Sprintf("[%s] %s: %s", at.UTC().Format("2006-01-02 15:04:05"), by, line)
	if l.Notes == "" {
		l.Notes = entry
		return
	}
	l.Notes = l.Notes + "\n" + entry
}
