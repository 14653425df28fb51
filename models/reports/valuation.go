package reports

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ValuationRow is one item's on-hand quantity and asset value. FIFO
// items aggregate their open lots; bulk items report their running
// state.
type ValuationRow struct {
	ItemId       int             `json:"item_id"`
	Name         string          `json:"name"`
	Sku          string          `json:"sku"`
	BaseUnit     string          `json:"base_unit"`
	Method       string          `json:"method"`
	OnHand       decimal.Decimal `json:"on_hand"`
	AssetValue   decimal.Decimal `json:"asset_value"`
	UnitCostSafe decimal.Decimal `json:"unit_cost_safe"`
}

// InventoryValuation aggregates the whole inventory. Depleted lots drop
// out through the SUM, not through deletion; the rows they belong to
// stay in storage for audit.
func InventoryValuation(ctx context.Context) ([]ValuationRow, error) {
	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	sql := `
	SELECT
		items.id AS item_id,
		items.name,
		items.sku,
		items.base_unit,
		items.costing_method AS method,
		COALESCE(agg.on_hand, 0) AS on_hand,
		COALESCE(agg.asset_value, 0) AS asset_value
	FROM items
	LEFT JOIN (
		SELECT
			item_id,
			SUM(quantity_remaining) AS on_hand,
			SUM(quantity_remaining * unit_cost) AS asset_value
		FROM lots
		GROUP BY item_id
		UNION ALL
		SELECT
			item_id,
			current_quantity AS on_hand,
			current_quantity * weighted_average_cost AS asset_value
		FROM bulk_stocks
	) agg ON agg.item_id = items.id
	WHERE items.is_active = 1
	ORDER BY items.name
	`

	var rows []ValuationRow
	if err := db.WithContext(ctx).Raw(sql).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].OnHand.IsZero() {
			rows[i].UnitCostSafe = decimal.Zero
			continue
		}
		rows[i].UnitCostSafe = rows[i].AssetValue.Div(rows[i].OnHand).Round(4)
	}
	return rows, nil
}

// ExportValuationExcel writes the valuation report to an xlsx file.
func ExportValuationExcel(rows []ValuationRow, filename string) error {
	f := excelize.NewFile()
	sheet := "Sheet1"

	headers := []string{"Item", "SKU", "Method", "On Hand", "Base Unit", "Asset Value", "Unit Cost"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheet, cell, h)
	}

	for r, row := range rows {
		values := []interface{}{
			row.Name, row.Sku, row.Method,
			row.OnHand.InexactFloat64(),
			row.BaseUnit,
			row.AssetValue.InexactFloat64(),
			row.UnitCostSafe.InexactFloat64(),
		}
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			f.SetCellValue(sheet, cell, v)
		}
	}

	return f.SaveAs(filename)
}
