package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ConsumptionRequest asks for quantityNeeded of an item, expressed in
// the caller's unit.
type ConsumptionRequest struct {
	ItemId         int             `json:"item_id" binding:"required"`
	QuantityNeeded decimal.Decimal `json:"quantity_needed"`
	RequestUnit    string          `json:"request_unit" binding:"required"`
	Mode           ConsumptionMode `json:"mode"`
	// ReferenceCode ties the consumption to a production run or similar
	// caller-side event for traceability. Optional.
	ReferenceCode string `json:"reference_code"`
}

// LotConsumption is one breakdown entry: how much was (or would be)
// drawn from one lot, in base units.
type LotConsumption struct {
	LotId            int             `json:"lot_id"`
	QuantityConsumed decimal.Decimal `json:"quantity_consumed"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	RemainingInLot   decimal.Decimal `json:"remaining_in_lot"`
	AcquisitionDate  time.Time       `json:"acquisition_date"`
}

// ConsumptionResult reports what a consumption did (or, in preview
// mode, would do). ConsumedQuantity and Shortfall are in Unit, which is
// the request unit unless the reverse conversion failed, in which case
// the base unit is reported instead. The Base fields are always in the
// item's base unit.
type ConsumptionResult struct {
	ConsumedQuantity decimal.Decimal  `json:"consumed_quantity"`
	Shortfall        decimal.Decimal  `json:"shortfall"`
	Satisfied        bool             `json:"satisfied"`
	TotalCost        decimal.Decimal  `json:"total_cost"`
	Unit             string           `json:"unit"`
	ConsumedBase     decimal.Decimal  `json:"consumed_base"`
	ShortfallBase    decimal.Decimal  `json:"shortfall_base"`
	BaseUnit         string           `json:"base_unit"`
	Breakdown        []LotConsumption `json:"breakdown"`
}

// ConsumptionEngine walks an item's lots oldest-first and decides which
// lots satisfy a requested quantity, at what cost.
//
// Correctness precondition: the storage layer must serialize committed
// walks against the same item (the gorm store takes FOR UPDATE row
// locks; callers that span several consumptions additionally hold a
// per-item redis lock, see utils.ItemLock). The engine itself does no
// locking.
type ConsumptionEngine struct {
	store     LotStore
	converter UnitConverter
	cfg       config.CostingConfig
	logger    *logrus.Logger
}

func NewConsumptionEngine(store LotStore, converter UnitConverter, cfg config.CostingConfig, logger *logrus.Logger) *ConsumptionEngine {
	return &ConsumptionEngine{store: store, converter: converter, cfg: cfg, logger: logger}
}

// Consume runs one consumption. Preview mode mutates nothing; commit
// mode opens a transaction and writes reduced lot quantities back as
// the walk progresses, so any failure rolls the whole request back.
// An unsatisfiable request is not an error: the result comes back with
// Satisfied=false and the shortfall, and it is the caller's decision
// whether that aborts its own operation.
func (e *ConsumptionEngine) Consume(ctx context.Context, req ConsumptionRequest) (*ConsumptionResult, error) {
	if req.Mode == ConsumptionModeCommit {
		var result *ConsumptionResult
		err := e.store.WithTx(ctx, func(txStore LotStore) error {
			var txErr error
			result, txErr = e.ConsumeWithin(ctx, txStore, req)
			return txErr
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return e.ConsumeWithin(ctx, e.store, req)
}

// ConsumeWithin runs the consumption against the supplied store. It is
// the entry point for callers that already hold a transaction and need
// several consumptions to commit or roll back together (production
// runs). The store must be transaction-bound when req.Mode is commit.
func (e *ConsumptionEngine) ConsumeWithin(ctx context.Context, store LotStore, req ConsumptionRequest) (*ConsumptionResult, error) {
	if req.Mode != ConsumptionModePreview && req.Mode != ConsumptionModeCommit {
		return nil, newValidationError("invalid consumption mode %q", req.Mode)
	}
	if !req.QuantityNeeded.IsPositive() {
		return nil, newValidationError("quantity needed must be positive, got %s", req.QuantityNeeded)
	}

	item, err := store.FetchItem(ctx, req.ItemId)
	if err != nil {
		return nil, err
	}
	if item.CostingMethod != CostingMethodFifo {
		return nil, newValidationError("item %d (%s) is bulk-tracked; it has no lots to consume", item.ID, item.Name)
	}

	// Forward conversion failure fails the whole call; nothing has been
	// touched yet.
	neededBase, err := e.converter.Convert(req.QuantityNeeded, req.RequestUnit, item.BaseUnit, item)
	if err != nil {
		return nil, err
	}

	epsilon := e.cfg.RemainderEpsilon
	lots, err := store.LotsForConsumption(ctx, item.ID, epsilon, req.Mode == ConsumptionModeCommit)
	if err != nil {
		return nil, err
	}

	result := &ConsumptionResult{
		Unit:     req.RequestUnit,
		BaseUnit: item.BaseUnit,
	}
	remaining := neededBase
	consumed := decimal.Zero
	totalCost := decimal.Zero

	for i := range lots {
		if remaining.LessThanOrEqual(epsilon) {
			break
		}
		lot := &lots[i]
		toConsume := decimal.Min(lot.QuantityRemaining, remaining)
		newRemaining := lot.QuantityRemaining.Sub(toConsume)

		consumed = consumed.Add(toConsume)
		totalCost = totalCost.Add(toConsume.Mul(lot.UnitCost))
		remaining = remaining.Sub(toConsume)

		result.Breakdown = append(result.Breakdown, LotConsumption{
			LotId:            lot.ID,
			QuantityConsumed: toConsume,
			UnitCost:         lot.UnitCost,
			RemainingInLot:   newRemaining,
			AcquisitionDate:  lot.AcquisitionDate,
		})

		if req.Mode == ConsumptionModeCommit {
			lot.QuantityRemaining = newRemaining
			if err := store.SaveLot(ctx, lot); err != nil {
				// The transaction the caller wraps us in rolls back
				// the lots already written.
				return nil, err
			}
		}
	}

	// Anything at or below epsilon is dust, not a real shortfall.
	if remaining.LessThanOrEqual(epsilon) {
		remaining = decimal.Zero
	}

	result.ConsumedBase = consumed
	result.ShortfallBase = remaining
	result.TotalCost = totalCost.Round(e.cfg.CostPrecision)
	result.Satisfied = remaining.IsZero()
	result.ConsumedQuantity, result.Shortfall, result.Unit = e.toRequestUnit(consumed, remaining, req.RequestUnit, item)

	if req.Mode == ConsumptionModeCommit && e.logger != nil {
		fields := logrus.Fields{
			"module":    "consumption",
			"itemId":    item.ID,
			"reference": req.ReferenceCode,
			"consumed":  result.ConsumedBase.String(),
			"shortfall": result.ShortfallBase.String(),
			"totalCost": result.TotalCost.String(),
			"lots":      len(result.Breakdown),
		}
		if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			fields["correlationId"] = cid
		}
		e.logger.WithFields(fields).Info("committed FIFO consumption")
	}
	return result, nil
}

// toRequestUnit converts the consumed/shortfall totals back to the
// request unit. The forward operation already succeeded, so a reverse
// conversion failure must not fail the call; the base-unit values are
// reported instead.
func (e *ConsumptionEngine) toRequestUnit(consumed, shortfall decimal.Decimal, requestUnit string, item *Item) (decimal.Decimal, decimal.Decimal, string) {
	consumedOut, err := e.converter.Convert(consumed, item.BaseUnit, requestUnit, item)
	if err == nil {
		shortfallOut, err2 := e.converter.Convert(shortfall, item.BaseUnit, requestUnit, item)
		if err2 == nil {
			return consumedOut, shortfallOut, requestUnit
		}
		err = err2
	}
	if e.logger != nil {
		config.LogError(e.logger, "consumption", "toRequestUnit", "reverse unit conversion failed; reporting base units", item.ID, err)
	}
	return consumed, shortfall, item.BaseUnit
}

// DefaultConsumptionEngine builds the production engine over the global
// DB, the standard unit table and the default costing config.
func DefaultConsumptionEngine() *ConsumptionEngine {
	return NewConsumptionEngine(
		NewGormLotStore(config.GetDB()),
		NewStandardUnitConverter(),
		config.DefaultCostingConfig(),
		config.GetLogger(),
	)
}
