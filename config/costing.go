package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// CostingConfig carries the tunables of the inventory costing engines.
// These used to be scattered module-level constants; they are now passed
// explicitly into the components that need them.
type CostingConfig struct {
	// RemainderEpsilon is the smallest lot remainder the FIFO walk still
	// considers real stock. Remainders at or below it are treated as dust
	// left over from legacy float-based storage.
	RemainderEpsilon decimal.Decimal

	// CostPrecision is the number of decimal places cost figures are
	// rounded to (weighted averages, blended totals).
	CostPrecision int32

	// QuantityPrecision is the number of decimal places adjusted
	// quantities are rounded to.
	QuantityPrecision int32

	// PriceVarianceAlertPercent triggers a warning log when a new
	// acquisition price deviates from the most recent one by more than
	// this percentage. Zero disables the check.
	PriceVarianceAlertPercent decimal.Decimal
}

// DefaultCostingConfig matches the decimal(20,4) storage columns.
func DefaultCostingConfig() CostingConfig {
	cfg := CostingConfig{
		RemainderEpsilon:          decimal.New(1, -4), // 0.0001
		CostPrecision:             4,
		QuantityPrecision:         2,
		PriceVarianceAlertPercent: decimal.NewFromInt(25),
	}
	if v := strings.TrimSpace(os.Getenv("PRICE_VARIANCE_ALERT_PERCENT")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && !d.IsNegative() {
			cfg.PriceVarianceAlertPercent = d
		}
	}
	return cfg
}
