package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// UnitConverter converts a quantity between compatible units. The item
// is passed through for converters that support item-specific units;
// the default converter ignores it. Conversions across unit families
// (e.g. volume to count) must fail with UnitConversionError.
type UnitConverter interface {
	Convert(quantity decimal.Decimal, fromUnit string, toUnit string, item *Item) (decimal.Decimal, error)
}

type unitFamily string

const (
	unitFamilyMass   unitFamily = "mass"
	unitFamilyVolume unitFamily = "volume"
	unitFamilyCount  unitFamily = "count"
)

type unitDef struct {
	family unitFamily
	// factor converts one of this unit into the family's reference unit
	// (gram, millilitre, piece).
	factor decimal.Decimal
}

// standardUnits covers the units the bakery actually buys and bakes in.
var standardUnits = map[string]unitDef{
	"mg":    {unitFamilyMass, decimal.RequireFromString("0.001")},
	"g":     {unitFamilyMass, decimal.NewFromInt(1)},
	"kg":    {unitFamilyMass, decimal.NewFromInt(1000)},
	"oz":    {unitFamilyMass, decimal.RequireFromString("28.3495")},
	"lb":    {unitFamilyMass, decimal.RequireFromString("453.592")},
	"ml":    {unitFamilyVolume, decimal.NewFromInt(1)},
	"l":     {unitFamilyVolume, decimal.NewFromInt(1000)},
	"tsp":   {unitFamilyVolume, decimal.RequireFromString("4.9289")},
	"tbsp":  {unitFamilyVolume, decimal.RequireFromString("14.7868")},
	"cup":   {unitFamilyVolume, decimal.RequireFromString("236.588")},
	"floz":  {unitFamilyVolume, decimal.RequireFromString("29.5735")},
	"pc":    {unitFamilyCount, decimal.NewFromInt(1)},
	"dozen": {unitFamilyCount, decimal.NewFromInt(12)},
}

// StandardUnitConverter is the table-driven converter used in
// production. Deterministic: the same inputs always produce the same
// output.
type StandardUnitConverter struct{}

func NewStandardUnitConverter() *StandardUnitConverter {
	return &StandardUnitConverter{}
}

func (c *StandardUnitConverter) Convert(quantity decimal.Decimal, fromUnit string, toUnit string, item *Item) (decimal.Decimal, error) {
	_ = item // the standard converter has no item-specific units

	from, ok := standardUnits[normalizeUnit(fromUnit)]
	if !ok {
		return decimal.Zero, &UnitConversionError{FromUnit: fromUnit, ToUnit: toUnit, Reason: "unknown source unit"}
	}
	to, ok := standardUnits[normalizeUnit(toUnit)]
	if !ok {
		return decimal.Zero, &UnitConversionError{FromUnit: fromUnit, ToUnit: toUnit, Reason: "unknown target unit"}
	}
	if from.family != to.family {
		return decimal.Zero, &UnitConversionError{
			FromUnit: fromUnit,
			ToUnit:   toUnit,
			Reason:   string(from.family) + " and " + string(to.family) + " units are not interchangeable",
		}
	}
	return quantity.Mul(from.factor).Div(to.factor), nil
}

func normalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}
