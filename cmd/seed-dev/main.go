// seed-dev loads a small set of bakery items, suppliers, lots and
// recipes for local development.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/models"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	supplier := models.Supplier{Name: "Golden Mills Co", Email: "orders@goldenmills.test"}
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		fatal("create supplier", err)
	}

	flour, err := models.CreateItem(ctx, &models.NewItem{
		Name:                "Bread Flour",
		Sku:                 "FLOUR-BRD",
		BaseUnit:            "g",
		CostingMethod:       models.CostingMethodFifo,
		PreferredSupplierId: &supplier.ID,
	})
	if err != nil {
		fatal("create flour", err)
	}
	butter, err := models.CreateItem(ctx, &models.NewItem{
		Name:          "Butter 82%",
		Sku:           "BUTTER-82",
		BaseUnit:      "g",
		CostingMethod: models.CostingMethodFifo,
	})
	if err != nil {
		fatal("create butter", err)
	}
	sugar, err := models.CreateItem(ctx, &models.NewItem{
		Name:          "Granulated Sugar",
		Sku:           "SUGAR-GRN",
		BaseUnit:      "g",
		CostingMethod: models.CostingMethodAverage,
	})
	if err != nil {
		fatal("create sugar", err)
	}

	converter := models.NewStandardUnitConverter()
	acquisitions := []models.NewAcquisition{
		{ItemId: flour.ID, Quantity: decimal.NewFromInt(25), Unit: "kg", UnitCost: decimal.RequireFromString("1.10"), AcquisitionDate: daysAgo(30), SupplierId: &supplier.ID, Location: "dry store"},
		{ItemId: flour.ID, Quantity: decimal.NewFromInt(25), Unit: "kg", UnitCost: decimal.RequireFromString("1.25"), AcquisitionDate: daysAgo(10), SupplierId: &supplier.ID, Location: "dry store"},
		{ItemId: butter.ID, Quantity: decimal.NewFromInt(10), Unit: "kg", UnitCost: decimal.RequireFromString("8.40"), AcquisitionDate: daysAgo(7), Location: "walk-in"},
		{ItemId: sugar.ID, Quantity: decimal.NewFromInt(50), Unit: "kg", UnitCost: decimal.RequireFromString("0.90"), AcquisitionDate: daysAgo(20)},
	}
	for _, acq := range acquisitions {
		if _, err := models.RecordAcquisition(ctx, converter, &acq); err != nil {
			fatal("record acquisition", err)
		}
	}

	brioche := models.Recipe{
		Name:       "Brioche Loaf",
		YieldCount: 2,
		Ingredients: []models.RecipeIngredient{
			{ItemId: flour.ID, Quantity: decimal.RequireFromString("1.2"), Unit: "kg"},
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(400), Unit: "g"},
			{ItemId: sugar.ID, Quantity: decimal.NewFromInt(120), Unit: "g"},
		},
	}
	if _, err := models.CreateRecipe(ctx, &brioche); err != nil {
		fatal("create recipe", err)
	}

	fmt.Printf("seeded supplier=%d items=[%d %d %d] recipe=%d\n",
		supplier.ID, flour.ID, butter.ID, sugar.ID, brioche.ID)
}

func daysAgo(n int) time.Time {
	return time.Now().AddDate(0, 0, -n)
}

func fatal(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
