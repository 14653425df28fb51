package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"gorm.io/gorm"
)

// Item is a trackable good: a food ingredient, a generic inventory item
// or a physical material. All lot quantities for an item are kept in its
// base unit.
type Item struct {
	ID                  int           `gorm:"primary_key" json:"id"`
	Name                string        `gorm:"size:100;not null;index" json:"name" binding:"required"`
	Sku                 string        `gorm:"size:100;uniqueIndex" json:"sku"`
	BaseUnit            string        `gorm:"size:20;not null" json:"base_unit" binding:"required"`
	CostingMethod       CostingMethod `gorm:"type:enum('FIFO','Average');default:'FIFO';not null" json:"costing_method"`
	PreferredSupplierId *int          `gorm:"index" json:"preferred_supplier_id"`
	IsActive            *bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItem struct {
	Name                string        `json:"name" binding:"required"`
	Sku                 string        `json:"sku"`
	BaseUnit            string        `json:"base_unit" binding:"required"`
	CostingMethod       CostingMethod `json:"costing_method"`
	PreferredSupplierId *int          `json:"preferred_supplier_id"`
}

// Supplier is the minimal supply-source record the costing core needs
// (price history rows and preferred-source fallbacks reference it).
type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:30" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {
	if input.CostingMethod == "" {
		input.CostingMethod = CostingMethodFifo
	}
	if input.CostingMethod != CostingMethodFifo && input.CostingMethod != CostingMethodAverage {
		return nil, newValidationError("invalid costing method %q", input.CostingMethod)
	}
	item := Item{
		Name:                input.Name,
		Sku:                 input.Sku,
		BaseUnit:            input.BaseUnit,
		CostingMethod:       input.CostingMethod,
		PreferredSupplierId: input.PreferredSupplierId,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func ListItems(ctx context.Context) ([]*Item, error) {
	return utils.FetchAllModels[Item](ctx)
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	item, err := utils.FetchSingleModel[Item](ctx, id)
	if err != nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

func getItemTx(tx *gorm.DB, id int) (*Item, error) {
	var item Item
	if err := tx.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}
