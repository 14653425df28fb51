package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/bakery_backend/models"
	"github.com/shopspring/decimal"
)

// EstimateRecipeCost prices batchCount batches of a recipe with blended
// costing: FIFO for whatever is on hand, pricing history for the rest.
// Read-only; no lot is touched.
func EstimateRecipeCost(ctx context.Context, recipeId int, batchCount int) (decimal.Decimal, error) {
	if batchCount <= 0 {
		batchCount = 1
	}
	recipe, err := models.GetRecipe(ctx, recipeId)
	if err != nil {
		return decimal.Zero, err
	}
	calculator := models.DefaultBlendedCostCalculator()
	return calculator.EstimateCost(ctx, recipe.Requirements(batchCount))
}
