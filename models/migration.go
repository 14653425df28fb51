package models

import (
	"log"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Item{}, &Supplier{},
		&Lot{}, &BulkStock{},
		&InventoryAdjustment{},
		&PriceHistory{},
		&Recipe{}, &RecipeIngredient{}, &ProductionRun{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
