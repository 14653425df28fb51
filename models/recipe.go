package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
)

// Recipe is a bill of ingredients for one batch of a baked product.
type Recipe struct {
	ID          int                `gorm:"primary_key" json:"id"`
	Name        string             `gorm:"size:100;not null" json:"name" binding:"required"`
	Description string             `gorm:"type:text" json:"description"`
	YieldCount  int                `gorm:"not null;default:1" json:"yield_count"`
	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeId" json:"ingredients"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type RecipeIngredient struct {
	ID       int             `gorm:"primary_key" json:"id"`
	RecipeId int             `gorm:"index;not null" json:"recipe_id"`
	ItemId   int             `gorm:"index;not null" json:"item_id"`
	Item     Item            `gorm:"foreignKey:ItemId" json:"item"`
	Quantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit     string          `gorm:"size:20;not null" json:"unit"`
}

// ProductionRun records one committed batch: which recipe, how many
// batches, and the FIFO cost actually attributed to it.
type ProductionRun struct {
	ID         int             `gorm:"primary_key" json:"id"`
	Code       string          `gorm:"size:64;uniqueIndex;not null" json:"code"`
	RecipeId   int             `gorm:"index;not null" json:"recipe_id"`
	Recipe     Recipe          `gorm:"foreignKey:RecipeId" json:"recipe"`
	BatchCount int             `gorm:"not null" json:"batch_count"`
	TotalCost  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_cost"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatedBy  int             `gorm:"not null" json:"created_by"`
}

func ListRecipes(ctx context.Context) ([]*Recipe, error) {
	return utils.FetchAllModels[Recipe](ctx, "Ingredients")
}

func GetRecipe(ctx context.Context, id int) (*Recipe, error) {
	recipe, err := utils.FetchSingleModel[Recipe](ctx, id, "Ingredients")
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// Requirements maps the recipe's ingredient lines (scaled by batches)
// to costing requirements.
func (r *Recipe) Requirements(batches int) []CostRequirement {
	factor := decimal.NewFromInt(int64(batches))
	reqs := make([]CostRequirement, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		reqs = append(reqs, CostRequirement{
			ItemId:         ing.ItemId,
			QuantityNeeded: ing.Quantity.Mul(factor),
			Unit:           ing.Unit,
		})
	}
	return reqs
}

func CreateRecipe(ctx context.Context, recipe *Recipe) (*Recipe, error) {
	if len(recipe.Ingredients) == 0 {
		return nil, newValidationError("a recipe needs at least one ingredient")
	}
	if recipe.YieldCount <= 0 {
		recipe.YieldCount = 1
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(recipe).Error; err != nil {
		return nil, err
	}
	return recipe, nil
}
