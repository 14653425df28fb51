package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// InventoryAdjustment is the immutable audit record of one manual lot
// quantity change (spoilage, gifting, correction, physical recount).
// Rows are created exactly once per adjustment and never updated or
// deleted; they are the sole audit trail for non-consumption quantity
// changes.
type InventoryAdjustment struct {
	ID             int               `gorm:"primary_key" json:"id"`
	LotId          int               `gorm:"index;not null" json:"lot_id"`
	Lot            Lot               `gorm:"foreignKey:LotId" json:"lot"`
	AdjustmentType LotAdjustmentType `gorm:"type:enum('Add','Subtract','Set','Percentage');not null" json:"adjustment_type"`
	ValueApplied   decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"value_applied"`
	QuantityBefore decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"quantity_before"`
	QuantityAfter  decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"quantity_after"`
	CostImpact     decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"cost_impact"`
	ReasonCode     AdjustmentReason  `gorm:"type:enum('Spoilage','Donation','Correction','Recount','Other');not null" json:"reason_code"`
	Notes          string            `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	CreatedBy      int               `gorm:"not null" json:"created_by"`
}

// LotAdjustmentInput is one manual adjustment request.
type LotAdjustmentInput struct {
	LotId          int               `json:"lot_id" binding:"required"`
	AdjustmentType LotAdjustmentType `json:"adjustment_type" binding:"required"`
	Value          decimal.Decimal   `json:"value"`
	ReasonCode     AdjustmentReason  `json:"reason_code" binding:"required"`
	Notes          string            `json:"notes"`
}

// AdjustmentEngine applies manual lot adjustments and writes their
// audit trail. Lot update, note append and audit row land in one
// transaction.
type AdjustmentEngine struct {
	store  LotStore
	cfg    config.CostingConfig
	logger *logrus.Logger
}

func NewAdjustmentEngine(store LotStore, cfg config.CostingConfig, logger *logrus.Logger) *AdjustmentEngine {
	return &AdjustmentEngine{store: store, cfg: cfg, logger: logger}
}

// computeAdjustedQuantity resolves the would-be remaining quantity for
// an adjustment. Pure; bounds are checked here, the >= 0 and <= original
// checks against the actual lot happen in AdjustLot.
func computeAdjustedQuantity(current decimal.Decimal, adjType LotAdjustmentType, value decimal.Decimal, qtyPrecision int32) (decimal.Decimal, error) {
	switch adjType {
	case LotAdjustmentTypeAdd:
		if value.IsNegative() {
			return decimal.Zero, newValidationError("add value must not be negative, got %s", value)
		}
		return current.Add(value), nil
	case LotAdjustmentTypeSubtract:
		if value.IsNegative() {
			return decimal.Zero, newValidationError("subtract value must not be negative, got %s", value)
		}
		return current.Sub(value), nil
	case LotAdjustmentTypeSet:
		if value.IsNegative() {
			return decimal.Zero, newValidationError("set value must not be negative, got %s", value)
		}
		return value, nil
	case LotAdjustmentTypePercentage:
		if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, newValidationError("percentage %s out of range [0, 100]", value)
		}
		return current.Mul(value).Div(decimal.NewFromInt(100)).Round(qtyPrecision), nil
	default:
		return decimal.Zero, newValidationError("invalid adjustment type %q", adjType)
	}
}

// AdjustLot applies one manual adjustment to a lot and returns the
// audit record. Validation order: the lot must resolve, the value must
// be within the type's bounds, the resulting quantity must stay within
// the lot's invariants, and an Other reason must come with notes.
func (e *AdjustmentEngine) AdjustLot(ctx context.Context, input LotAdjustmentInput) (*InventoryAdjustment, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = "system"
	}

	var record *InventoryAdjustment
	err := e.store.WithTx(ctx, func(txStore LotStore) error {
		lot, err := txStore.FetchLot(ctx, input.LotId)
		if err != nil {
			return err
		}
		if !input.ReasonCode.valid() {
			return newValidationError("invalid reason code %q", input.ReasonCode)
		}

		newQty, err := computeAdjustedQuantity(lot.QuantityRemaining, input.AdjustmentType, input.Value, e.cfg.QuantityPrecision)
		if err != nil {
			return err
		}
		if newQty.IsNegative() {
			return newValidationError("adjustment would leave lot %d negative: current %s, requested %s %s",
				lot.ID, lot.QuantityRemaining, input.AdjustmentType, input.Value)
		}
		if newQty.GreaterThan(lot.QuantityOriginal) {
			return newValidationError("adjustment would raise lot %d above its original quantity: original %s, requested %s",
				lot.ID, lot.QuantityOriginal, newQty)
		}
		if input.ReasonCode == AdjustmentReasonOther && strings.TrimSpace(input.Notes) == "" {
			return newValidationError("notes are required when the reason code is %s", AdjustmentReasonOther)
		}

		before := lot.QuantityRemaining
		delta := newQty.Sub(before)
		record = &InventoryAdjustment{
			LotId:          lot.ID,
			AdjustmentType: input.AdjustmentType,
			ValueApplied:   input.Value,
			QuantityBefore: before,
			QuantityAfter:  newQty,
			CostImpact:     delta.Abs().Mul(lot.UnitCost).Round(e.cfg.CostPrecision),
			ReasonCode:     input.ReasonCode,
			Notes:          input.Notes,
			CreatedBy:      userId,
		}

		lot.QuantityRemaining = newQty
		noteLine := string(input.AdjustmentType) + " " + input.Value.String() +
			": " + before.String() + " -> " + newQty.String() + " (" + string(input.ReasonCode) + ")"
		if strings.TrimSpace(input.Notes) != "" {
			noteLine += " " + strings.TrimSpace(input.Notes)
		}
		lot.AppendNote(time.Now(), userName, noteLine)

		if err := txStore.SaveLot(ctx, lot); err != nil {
			return err
		}
		return txStore.SaveAdjustment(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	if e.logger != nil {
		fields := logrus.Fields{
			"module":     "adjustment",
			"lotId":      record.LotId,
			"type":       record.AdjustmentType,
			"before":     record.QuantityBefore.String(),
			"after":      record.QuantityAfter.String(),
			"costImpact": record.CostImpact.String(),
			"reason":     record.ReasonCode,
		}
		if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			fields["correlationId"] = cid
		}
		e.logger.WithFields(fields).Info("manual lot adjustment")
	}
	return record, nil
}

// DefaultAdjustmentEngine builds the production engine over the global DB.
func DefaultAdjustmentEngine() *AdjustmentEngine {
	return NewAdjustmentEngine(
		NewGormLotStore(config.GetDB()),
		config.DefaultCostingConfig(),
		config.GetLogger(),
	)
}
