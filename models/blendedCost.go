package models

import (
	"context"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CostRequirement is one line of a costing question: how much of an
// item a recipe or production plan needs, in the caller's unit.
type CostRequirement struct {
	ItemId         int             `json:"item_id" binding:"required"`
	QuantityNeeded decimal.Decimal `json:"quantity_needed"`
	Unit           string          `json:"unit" binding:"required"`
}

// BlendedCostCalculator prices a set of requirements: whatever on-hand
// stock covers is priced by a preview FIFO walk (lot-tracked items) or
// the weighted average (bulk items), and any shortfall is priced from
// pricing history. It is a read-only projection; inventory is never
// mutated, even though it reuses the consumption engine's ordering
// logic.
type BlendedCostCalculator struct {
	engine  *ConsumptionEngine
	pricing PricingSource
	bulk    BulkReader
	cfg     config.CostingConfig
	logger  *logrus.Logger
}

func NewBlendedCostCalculator(engine *ConsumptionEngine, pricing PricingSource, bulk BulkReader, cfg config.CostingConfig, logger *logrus.Logger) *BlendedCostCalculator {
	return &BlendedCostCalculator{engine: engine, pricing: pricing, bulk: bulk, cfg: cfg, logger: logger}
}

// EstimateCost sums the blended cost across all requirements. An empty
// requirement list costs zero. An under-supplied item with no pricing
// history fails the whole estimate with NoPricingHistoryError, since a
// silent zero for the shortfall would understate every recipe cost
// built on top of it.
func (c *BlendedCostCalculator) EstimateCost(ctx context.Context, requirements []CostRequirement) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, req := range requirements {
		lineCost, err := c.estimateRequirement(ctx, req)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(lineCost)
	}
	return total.Round(c.cfg.CostPrecision), nil
}

func (c *BlendedCostCalculator) estimateRequirement(ctx context.Context, req CostRequirement) (decimal.Decimal, error) {
	item, err := c.engine.store.FetchItem(ctx, req.ItemId)
	if err != nil {
		return decimal.Zero, err
	}
	if item.CostingMethod == CostingMethodAverage {
		return c.estimateBulkRequirement(ctx, item, req)
	}

	preview, err := c.engine.Consume(ctx, ConsumptionRequest{
		ItemId:         req.ItemId,
		QuantityNeeded: req.QuantityNeeded,
		RequestUnit:    req.Unit,
		Mode:           ConsumptionModePreview,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if preview.Satisfied {
		return preview.TotalCost, nil
	}
	fallbackCost, err := c.priceShortfall(ctx, item, preview.ShortfallBase)
	if err != nil {
		return decimal.Zero, err
	}
	return preview.TotalCost.Add(fallbackCost), nil
}

func (c *BlendedCostCalculator) estimateBulkRequirement(ctx context.Context, item *Item, req CostRequirement) (decimal.Decimal, error) {
	state, err := c.bulk.FetchBulkStock(ctx, item.ID)
	if err != nil {
		return decimal.Zero, err
	}
	neededBase, err := c.engine.converter.Convert(req.QuantityNeeded, req.Unit, item.BaseUnit, item)
	if err != nil {
		return decimal.Zero, err
	}
	covered := decimal.Min(neededBase, state.CurrentQuantity)
	shortfall := neededBase.Sub(covered)
	if shortfall.LessThanOrEqual(c.cfg.RemainderEpsilon) {
		shortfall = decimal.Zero
	}
	cost := covered.Mul(state.WeightedAverageCost)
	if shortfall.IsZero() {
		return cost, nil
	}
	fallbackCost, err := c.priceShortfall(ctx, item, shortfall)
	if err != nil {
		return decimal.Zero, err
	}
	return cost.Add(fallbackCost), nil
}

// priceShortfall prices a base-unit shortfall from the item's most
// recent acquisition price.
func (c *BlendedCostCalculator) priceShortfall(ctx context.Context, item *Item, shortfallBase decimal.Decimal) (decimal.Decimal, error) {
	price, found, err := c.pricing.MostRecentPrice(ctx, item.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, &NoPricingHistoryError{ItemId: item.ID, ItemName: item.Name}
	}
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"module":        "blendedCost",
			"itemId":        item.ID,
			"shortfallBase": shortfallBase.String(),
			"fallbackPrice": price.String(),
		}).Debug("pricing shortfall from history")
	}
	return shortfallBase.Mul(price), nil
}

// DefaultBlendedCostCalculator builds the production calculator over
// the global DB.
func DefaultBlendedCostCalculator() *BlendedCostCalculator {
	return NewBlendedCostCalculator(
		DefaultConsumptionEngine(),
		NewGormPricingSource(config.GetDB()),
		NewGormBulkReader(config.GetDB()),
		config.DefaultCostingConfig(),
		config.GetLogger(),
	)
}
