package models

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLotStore keeps items and lots in memory. WithTx simply runs the
// closure against the same store; rollback behavior belongs to the gorm
// store and is out of scope for these tests.
type fakeLotStore struct {
	items       map[int]*Item
	lots        map[int]*Lot
	adjustments []*InventoryAdjustment
	failSaveLot int // lot id whose save fails, 0 for none
}

func newFakeLotStore() *fakeLotStore {
	return &fakeLotStore{
		items: map[int]*Item{},
		lots:  map[int]*Lot{},
	}
}

func (s *fakeLotStore) addItem(item Item) *Item {
	copied := item
	s.items[copied.ID] = &copied
	return &copied
}

func (s *fakeLotStore) addLot(lot Lot) *Lot {
	copied := lot
	s.lots[copied.ID] = &copied
	return &copied
}

func (s *fakeLotStore) FetchItem(ctx context.Context, itemId int) (*Item, error) {
	item, ok := s.items[itemId]
	if !ok {
		return nil, ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (s *fakeLotStore) FetchLot(ctx context.Context, lotId int) (*Lot, error) {
	lot, ok := s.lots[lotId]
	if !ok {
		return nil, ErrLotNotFound
	}
	copied := *lot
	return &copied, nil
}

func (s *fakeLotStore) LotsForConsumption(ctx context.Context, itemId int, epsilon decimal.Decimal, forUpdate bool) ([]Lot, error) {
	var lots []Lot
	for _, lot := range s.lots {
		if lot.ItemId == itemId && lot.QuantityRemaining.GreaterThan(epsilon) {
			lots = append(lots, *lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].AcquisitionDate.Equal(lots[j].AcquisitionDate) {
			return lots[i].AcquisitionDate.Before(lots[j].AcquisitionDate)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots, nil
}

func (s *fakeLotStore) SaveLot(ctx context.Context, lot *Lot) error {
	if s.failSaveLot != 0 && lot.ID == s.failSaveLot {
		return assert.AnError
	}
	copied := *lot
	s.lots[lot.ID] = &copied
	return nil
}

func (s *fakeLotStore) SaveAdjustment(ctx context.Context, adj *InventoryAdjustment) error {
	s.adjustments = append(s.adjustments, adj)
	return nil
}

func (s *fakeLotStore) WithTx(ctx context.Context, fn func(LotStore) error) error {
	return fn(s)
}

func (s *fakeLotStore) totalRemaining(itemId int) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range s.lots {
		if lot.ItemId == itemId {
			total = total.Add(lot.QuantityRemaining)
		}
	}
	return total
}

type fakePricingSource struct {
	prices map[int]decimal.Decimal
}

func (s *fakePricingSource) MostRecentPrice(ctx context.Context, itemId int) (decimal.Decimal, bool, error) {
	price, ok := s.prices[itemId]
	return price, ok, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEngine(store LotStore) *ConsumptionEngine {
	return NewConsumptionEngine(store, NewStandardUnitConverter(), config.DefaultCostingConfig(), testLogger())
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedFlourLots builds the canonical three-lot setup used across the
// FIFO tests: 10 + 15 + 20 grams acquired on three dates.
func seedFlourLots(store *fakeLotStore) *Item {
	item := store.addItem(Item{ID: 1, Name: "Bread Flour", BaseUnit: "g", CostingMethod: CostingMethodFifo})
	store.addLot(Lot{ID: 1, ItemId: 1, AcquisitionDate: date("2025-01-01"), QuantityOriginal: dec("10"), QuantityRemaining: dec("10"), UnitCost: dec("0.10")})
	store.addLot(Lot{ID: 2, ItemId: 1, AcquisitionDate: date("2025-01-15"), QuantityOriginal: dec("15"), QuantityRemaining: dec("15"), UnitCost: dec("0.12")})
	store.addLot(Lot{ID: 3, ItemId: 1, AcquisitionDate: date("2025-02-01"), QuantityOriginal: dec("20"), QuantityRemaining: dec("20"), UnitCost: dec("0.15")})
	return item
}

func TestConsumeFifoOrdering(t *testing.T) {
	store := newFakeLotStore()
	seedFlourLots(store)
	engine := testEngine(store)

	result, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("12"), RequestUnit: "g", Mode: ConsumptionModeCommit,
	})
	require.NoError(t, err)

	assert.True(t, result.Satisfied)
	assert.True(t, result.Shortfall.IsZero(), "shortfall %s", result.Shortfall)
	require.Len(t, result.Breakdown, 2)

	assert.Equal(t, 1, result.Breakdown[0].LotId)
	assert.True(t, result.Breakdown[0].QuantityConsumed.Equal(dec("10")))
	assert.True(t, result.Breakdown[0].RemainingInLot.IsZero())

	assert.Equal(t, 2, result.Breakdown[1].LotId)
	assert.True(t, result.Breakdown[1].QuantityConsumed.Equal(dec("2")))
	assert.True(t, result.Breakdown[1].RemainingInLot.Equal(dec("13")))

	assert.True(t, store.lots[1].QuantityRemaining.IsZero())
	assert.True(t, store.lots[2].QuantityRemaining.Equal(dec("13")))
	assert.True(t, store.lots[3].QuantityRemaining.Equal(dec("20")), "third lot untouched")

	// cost is conserved: 10*0.10 + 2*0.12
	assert.True(t, result.TotalCost.Equal(dec("1.24")), "total cost %s", result.TotalCost)
}

func TestConsumeOrdersByDateNotCost(t *testing.T) {
	store := newFakeLotStore()
	store.addItem(Item{ID: 1, Name: "Butter", BaseUnit: "g", CostingMethod: CostingMethodFifo})
	// The newest lot is the cheapest; FIFO must still take the oldest.
	store.addLot(Lot{ID: 1, ItemId: 1, AcquisitionDate: date("2025-03-01"), QuantityOriginal: dec("5"), QuantityRemaining: dec("5"), UnitCost: dec("9.00")})
	store.addLot(Lot{ID: 2, ItemId: 1, AcquisitionDate: date("2025-03-10"), QuantityOriginal: dec("5"), QuantityRemaining: dec("5"), UnitCost: dec("1.00")})
	engine := testEngine(store)

	result, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("5"), RequestUnit: "g", Mode: ConsumptionModePreview,
	})
	require.NoError(t, err)
	require.Len(t, result.Breakdown, 1)
	assert.Equal(t, 1, result.Breakdown[0].LotId)
	assert.True(t, result.TotalCost.Equal(dec("45")))
}

func TestConsumeTieBreakByLotId(t *testing.T) {
	store := newFakeLotStore()
	store.addItem(Item{ID: 1, Name: "Yeast", BaseUnit: "g", CostingMethod: CostingMethodFifo})
	sameDay := date("2025-04-01")
	store.addLot(Lot{ID: 7, ItemId: 1, AcquisitionDate: sameDay, QuantityOriginal: dec("3"), QuantityRemaining: dec("3"), UnitCost: dec("0.50")})
	store.addLot(Lot{ID: 4, ItemId: 1, AcquisitionDate: sameDay, QuantityOriginal: dec("3"), QuantityRemaining: dec("3"), UnitCost: dec("0.40")})
	engine := testEngine(store)

	result, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("4"), RequestUnit: "g", Mode: ConsumptionModePreview,
	})
	require.NoError(t, err)
	require.Len(t, result.Breakdown, 2)
	assert.Equal(t, 4, result.Breakdown[0].LotId, "creation order breaks the tie")
	assert.Equal(t, 7, result.Breakdown[1].LotId)
}

func TestConsumeExactBoundary(t *testing.T) {
	store := newFakeLotStore()
	seedFlourLots(store)
	engine := testEngine(store)

	result, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("45"), RequestUnit: "g", Mode: ConsumptionModeCommit,
	})
	require.NoError(t, err)

	assert.True(t, result.Satisfied)
	assert.True(t, result.Shortfall.IsZero())
	assert.True(t, result.ConsumedQuantity.Equal(dec("45")))
	for id, lot := range store.lots {
		assert.True(t, lot.QuantityRemaining.IsZero(), "lot %d remaining %s", id, lot.QuantityRemaining)
	}
}

func TestConsumeOverRequest(t *testing.T) {
	store := newFakeLotStore()
	seedFlourLots(store)
	engine := testEngine(store)

	result, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("60"), RequestUnit: "g", Mode: ConsumptionModeCommit,
	})
	require.NoError(t, err)

	assert.False(t, result.Satisfied)
	assert.True(t, result.ConsumedQuantity.Equal(dec("45")))
	assert.True(t, result.Shortfall.Equal(dec("15")))
	assert.True(t, store.totalRemaining(1).IsZero())
}

func TestConsumedPlusShortfallEqualsNeeded(t *testing.T) {
	for _, needed := range []string{"0.5", "10", "12.75", "45", "100"} {
		store := newFakeLotStore()
		seedFlourLots(store)
		engine := testEngine(store)

		result, err := engine.Consume(context.Background(), ConsumptionRequest{
			ItemId: 1, QuantityNeeded: dec(needed), RequestUnit: "g", Mode: ConsumptionModeCommit,
		})
		require.NoError(t, err)
		sum := result.ConsumedBase.Add(result.ShortfallBase)
		assert.True(t, sum.Equal(dec(needed)), "needed %s: consumed %s + shortfall %s", needed, result.ConsumedBase, result.ShortfallBase)
	}
}

func TestCommitDepletesExactlyConsumed(t *testing.T) {
	store := newFakeLotStore()
	seedFlourLots(store)
	engine := testEngine(store)
	before := store.totalRemaining(1)

	result, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("17.5"), RequestUnit: "g", Mode: ConsumptionModeCommit,
	})
	require.NoError(t, err)

	after := store.totalRemaining(1)
	assert.True(t, before.Sub(after).Equal(result.ConsumedBase))
	for _, lot := range store.lots {
		assert.False(t, lot.QuantityRemaining.IsNegative())
	}
}

func TestPreviewIsIdempotentAndReadOnly(t *testing.T) {
	store := newFakeLotStore()
	seedFlourLots(store)
	engine := testEngine(store)
	req := ConsumptionRequest{ItemId: 1, QuantityNeeded: dec("22"), RequestUnit: "g", Mode: ConsumptionModePreview}

	first, err := engine.Consume(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Consume(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first.ConsumedQuantity.Equal(second.ConsumedQuantity))
	assert.True(t, first.TotalCost.Equal(second.TotalCost))
	require.Equal(t, len(first.Breakdown), len(second.Breakdown))
	for i := range first.Breakdown {
		assert.Equal(t, first.Breakdown[i].LotId, second.Breakdown[i].LotId)
		assert.True(t, first.Breakdown[i].QuantityConsumed.Equal(second.Breakdown[i].QuantityConsumed))
	}

	assert.True(t, store.lots[1].QuantityRemaining.Equal(dec("10")))
	assert.True(t, store.lots[2].QuantityRemaining.Equal(dec("15")))
	assert.True(t, store.lots[3].QuantityRemaining.Equal(dec("20")))
}

func TestConsumeInRequestUnits(t *testing.T) {
	store := newFakeLotStore()
	store.addItem(Item{ID: 1, Name: "Bread Flour", BaseUnit: "g", CostingMethod: CostingMethodFifo})
	store.addLot(Lot{ID: 1, ItemId: 1, AcquisitionDate: date("2025-01-01"), QuantityOriginal: dec("5000"), QuantityRemaining: dec("5000"), UnitCost: dec("0.002")})
	engine := testEngine(store)

	result, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("2"), RequestUnit: "kg", Mode: ConsumptionModeCommit,
	})
	require.NoError(t, err)

	assert.Equal(t, "kg", result.Unit)
	assert.True(t, result.ConsumedQuantity.Equal(dec("2")))
	assert.True(t, result.ConsumedBase.Equal(dec("2000")))
	assert.True(t, result.TotalCost.Equal(dec("4")))
	assert.True(t, store.lots[1].QuantityRemaining.Equal(dec("3000")))
}

func TestConsumeIncompatibleUnitFails(t *testing.T) {
	store := newFakeLotStore()
	seedFlourLots(store)
	engine := testEngine(store)

	_, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("1"), RequestUnit: "ml", Mode: ConsumptionModeCommit,
	})
	var convErr *UnitConversionError
	require.ErrorAs(t, err, &convErr)

	// nothing touched
	assert.True(t, store.totalRemaining(1).Equal(dec("45")))
}

func TestConsumeValidation(t *testing.T) {
	store := newFakeLotStore()
	seedFlourLots(store)
	store.addItem(Item{ID: 2, Name: "Sugar", BaseUnit: "g", CostingMethod: CostingMethodAverage})
	engine := testEngine(store)
	ctx := context.Background()

	_, err := engine.Consume(ctx, ConsumptionRequest{ItemId: 1, QuantityNeeded: dec("0"), RequestUnit: "g", Mode: ConsumptionModePreview})
	assert.True(t, IsValidationError(err), "zero quantity: %v", err)

	_, err = engine.Consume(ctx, ConsumptionRequest{ItemId: 1, QuantityNeeded: dec("-3"), RequestUnit: "g", Mode: ConsumptionModePreview})
	assert.True(t, IsValidationError(err), "negative quantity: %v", err)

	_, err = engine.Consume(ctx, ConsumptionRequest{ItemId: 99, QuantityNeeded: dec("1"), RequestUnit: "g", Mode: ConsumptionModePreview})
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = engine.Consume(ctx, ConsumptionRequest{ItemId: 2, QuantityNeeded: dec("1"), RequestUnit: "g", Mode: ConsumptionModePreview})
	assert.True(t, IsValidationError(err), "bulk item: %v", err)

	_, err = engine.Consume(ctx, ConsumptionRequest{ItemId: 1, QuantityNeeded: dec("1"), RequestUnit: "g", Mode: "Dryrun"})
	assert.True(t, IsValidationError(err), "bad mode: %v", err)
}

func TestConsumeSkipsDustRemainders(t *testing.T) {
	store := newFakeLotStore()
	store.addItem(Item{ID: 1, Name: "Bread Flour", BaseUnit: "g", CostingMethod: CostingMethodFifo})
	// dust from legacy float storage, below the epsilon filter
	store.addLot(Lot{ID: 1, ItemId: 1, AcquisitionDate: date("2025-01-01"), QuantityOriginal: dec("10"), QuantityRemaining: dec("0.00005"), UnitCost: dec("0.10")})
	store.addLot(Lot{ID: 2, ItemId: 1, AcquisitionDate: date("2025-01-15"), QuantityOriginal: dec("10"), QuantityRemaining: dec("10"), UnitCost: dec("0.12")})
	engine := testEngine(store)

	result, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("5"), RequestUnit: "g", Mode: ConsumptionModeCommit,
	})
	require.NoError(t, err)
	require.Len(t, result.Breakdown, 1)
	assert.Equal(t, 2, result.Breakdown[0].LotId)
}

func TestCommitSaveFailureSurfaces(t *testing.T) {
	store := newFakeLotStore()
	seedFlourLots(store)
	store.failSaveLot = 2
	engine := testEngine(store)

	_, err := engine.Consume(context.Background(), ConsumptionRequest{
		ItemId: 1, QuantityNeeded: dec("12"), RequestUnit: "g", Mode: ConsumptionModeCommit,
	})
	assert.Error(t, err)
}
