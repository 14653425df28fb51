package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/models"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrInsufficientStock aborts a production run whose ingredients the
// on-hand lots cannot fully cover.
var ErrInsufficientStock = errors.New("insufficient stock for production")

// RecordProduction commits one production run: every ingredient of the
// recipe is consumed FIFO, all inside a single transaction. Production
// requires full satisfaction: a shortfall on any ingredient aborts and
// rolls back the whole run.
//
// Per-item redis locks are taken (in item-id order, to avoid lock
// ordering deadlocks) for the duration of the run, since the run spans
// several read-then-write FIFO walks.
func RecordProduction(ctx context.Context, recipeId int, batchCount int) (*models.ProductionRun, error) {
	if batchCount <= 0 {
		return nil, fmt.Errorf("batch count must be positive, got %d", batchCount)
	}
	logger := config.GetLogger()
	recipe, err := models.GetRecipe(ctx, recipeId)
	if err != nil {
		return nil, err
	}
	requirements := recipe.Requirements(batchCount)

	itemIds := make([]int, 0, len(requirements))
	seen := map[int]bool{}
	for _, req := range requirements {
		if !seen[req.ItemId] {
			seen[req.ItemId] = true
			itemIds = append(itemIds, req.ItemId)
		}
	}
	sort.Ints(itemIds)
	for _, itemId := range itemIds {
		release, err := utils.ItemLock(ctx, itemId, "workflow", "RecordProduction")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	cfg := config.DefaultCostingConfig()
	converter := models.NewStandardUnitConverter()
	runCode := "PR-" + uuid.NewString()
	userId, _ := utils.GetUserIdFromContext(ctx)

	var run *models.ProductionRun
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := models.NewGormLotStore(tx)
		engine := models.NewConsumptionEngine(txStore, converter, cfg, logger)

		totalCost := decimal.Zero
		for _, req := range requirements {
			item, err := txStore.FetchItem(ctx, req.ItemId)
			if err != nil {
				return err
			}
			if item.CostingMethod == models.CostingMethodAverage {
				cost, _, short, err := models.ConsumeBulkTx(ctx, tx, converter, cfg, req.ItemId, req.QuantityNeeded, req.Unit)
				if err != nil {
					return err
				}
				if !short.IsZero() {
					return fmt.Errorf("%w: item %d short %s %s",
						ErrInsufficientStock, req.ItemId, short, item.BaseUnit)
				}
				totalCost = totalCost.Add(cost)
				continue
			}
			result, err := engine.ConsumeWithin(ctx, txStore, models.ConsumptionRequest{
				ItemId:         req.ItemId,
				QuantityNeeded: req.QuantityNeeded,
				RequestUnit:    req.Unit,
				Mode:           models.ConsumptionModeCommit,
				ReferenceCode:  runCode,
			})
			if err != nil {
				return err
			}
			if !result.Satisfied {
				return fmt.Errorf("%w: item %d short %s %s",
					ErrInsufficientStock, req.ItemId, result.ShortfallBase, result.BaseUnit)
			}
			totalCost = totalCost.Add(result.TotalCost)
		}

		run = &models.ProductionRun{
			Code:       runCode,
			RecipeId:   recipe.ID,
			BatchCount: batchCount,
			TotalCost:  totalCost.Round(cfg.CostPrecision),
			CreatedBy:  userId,
		}
		return tx.Create(run).Error
	})
	if err != nil {
		config.LogError(logger, "workflow", "RecordProduction", "production run rolled back", recipeId, err)
		return nil, err
	}

	fields := logrus.Fields{
		"module":     "workflow",
		"runCode":    run.Code,
		"recipeId":   recipe.ID,
		"batchCount": batchCount,
		"totalCost":  run.TotalCost.String(),
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		fields["correlationId"] = cid
	}
	logger.WithFields(fields).Info("production run recorded")
	return run, nil
}
