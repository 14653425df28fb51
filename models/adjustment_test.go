package models

import (
	"context"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAdjustedQuantity(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		adjType  LotAdjustmentType
		value    string
		expected string
		wantErr  bool
	}{
		{name: "add", current: "10", adjType: LotAdjustmentTypeAdd, value: "2.5", expected: "12.5"},
		{name: "add zero is a no-op", current: "10", adjType: LotAdjustmentTypeAdd, value: "0", expected: "10"},
		{name: "subtract", current: "10", adjType: LotAdjustmentTypeSubtract, value: "4", expected: "6"},
		{name: "subtract below zero passes through for the lot check", current: "10", adjType: LotAdjustmentTypeSubtract, value: "12", expected: "-2"},
		{name: "set", current: "10", adjType: LotAdjustmentTypeSet, value: "3", expected: "3"},
		{name: "percentage", current: "10", adjType: LotAdjustmentTypePercentage, value: "50", expected: "5"},
		{name: "percentage rounds to two places", current: "10", adjType: LotAdjustmentTypePercentage, value: "33.333", expected: "3.33"},
		{name: "percentage half rounds up", current: "10", adjType: LotAdjustmentTypePercentage, value: "0.05", expected: "0.01"},
		{name: "zero percent", current: "10", adjType: LotAdjustmentTypePercentage, value: "0", expected: "0"},
		{name: "hundred percent", current: "10", adjType: LotAdjustmentTypePercentage, value: "100", expected: "10"},
		{name: "negative add rejected", current: "10", adjType: LotAdjustmentTypeAdd, value: "-1", wantErr: true},
		{name: "negative subtract rejected", current: "10", adjType: LotAdjustmentTypeSubtract, value: "-1", wantErr: true},
		{name: "negative set rejected", current: "10", adjType: LotAdjustmentTypeSet, value: "-1", wantErr: true},
		{name: "percentage above 100 rejected", current: "10", adjType: LotAdjustmentTypePercentage, value: "101", wantErr: true},
		{name: "unknown type rejected", current: "10", adjType: "Halve", value: "1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := computeAdjustedQuantity(dec(tt.current), tt.adjType, dec(tt.value), 2)
			if tt.wantErr {
				assert.True(t, IsValidationError(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.expected)), "got %s want %s", got, tt.expected)
		})
	}
}

func testAdjustmentEngine(store LotStore) *AdjustmentEngine {
	return NewAdjustmentEngine(store, config.DefaultCostingConfig(), testLogger())
}

func seedAdjustableLot(store *fakeLotStore) *Lot {
	store.addItem(Item{ID: 1, Name: "Eggs", BaseUnit: "pc", CostingMethod: CostingMethodFifo})
	return store.addLot(Lot{
		ID: 1, ItemId: 1, AcquisitionDate: date("2025-05-01"),
		QuantityOriginal: dec("30"), QuantityRemaining: dec("24"), UnitCost: dec("0.35"),
	})
}

func TestAdjustLotWritesAuditRecord(t *testing.T) {
	store := newFakeLotStore()
	seedAdjustableLot(store)
	engine := testAdjustmentEngine(store)

	record, err := engine.AdjustLot(context.Background(), LotAdjustmentInput{
		LotId: 1, AdjustmentType: LotAdjustmentTypeSubtract, Value: dec("4"),
		ReasonCode: AdjustmentReasonSpoilage, Notes: "dropped a tray",
	})
	require.NoError(t, err)

	assert.True(t, record.QuantityBefore.Equal(dec("24")))
	assert.True(t, record.QuantityAfter.Equal(dec("20")))
	assert.True(t, record.CostImpact.Equal(dec("1.40")), "4 pieces at 0.35, got %s", record.CostImpact)
	assert.Equal(t, AdjustmentReasonSpoilage, record.ReasonCode)

	assert.True(t, store.lots[1].QuantityRemaining.Equal(dec("20")))
	assert.True(t, strings.Contains(store.lots[1].Notes, "Subtract 4"), "note appended: %q", store.lots[1].Notes)
	require.Len(t, store.adjustments, 1)
	assert.Same(t, record, store.adjustments[0])
}

func TestAdjustLotCostImpactIsAbsolute(t *testing.T) {
	store := newFakeLotStore()
	seedAdjustableLot(store)
	engine := testAdjustmentEngine(store)

	record, err := engine.AdjustLot(context.Background(), LotAdjustmentInput{
		LotId: 1, AdjustmentType: LotAdjustmentTypeAdd, Value: dec("2"),
		ReasonCode: AdjustmentReasonCorrection,
	})
	require.NoError(t, err)
	assert.True(t, record.CostImpact.Equal(dec("0.70")), "got %s", record.CostImpact)
	assert.False(t, record.CostImpact.IsNegative())
}

func TestAdjustLotRejections(t *testing.T) {
	ctx := context.Background()

	run := func(input LotAdjustmentInput) (*fakeLotStore, error) {
		store := newFakeLotStore()
		seedAdjustableLot(store)
		_, err := testAdjustmentEngine(store).AdjustLot(ctx, input)
		return store, err
	}

	t.Run("subtract past zero leaves lot untouched", func(t *testing.T) {
		store, err := run(LotAdjustmentInput{LotId: 1, AdjustmentType: LotAdjustmentTypeSubtract, Value: dec("30"), ReasonCode: AdjustmentReasonSpoilage})
		assert.True(t, IsValidationError(err), "got %v", err)
		assert.True(t, store.lots[1].QuantityRemaining.Equal(dec("24")))
		assert.Empty(t, store.adjustments)
	})
	t.Run("add above original rejected", func(t *testing.T) {
		store, err := run(LotAdjustmentInput{LotId: 1, AdjustmentType: LotAdjustmentTypeAdd, Value: dec("7"), ReasonCode: AdjustmentReasonCorrection})
		assert.True(t, IsValidationError(err), "got %v", err)
		assert.True(t, store.lots[1].QuantityRemaining.Equal(dec("24")))
	})
	t.Run("set above original rejected", func(t *testing.T) {
		_, err := run(LotAdjustmentInput{LotId: 1, AdjustmentType: LotAdjustmentTypeSet, Value: dec("31"), ReasonCode: AdjustmentReasonRecount})
		assert.True(t, IsValidationError(err), "got %v", err)
	})
	t.Run("other reason requires notes", func(t *testing.T) {
		store, err := run(LotAdjustmentInput{LotId: 1, AdjustmentType: LotAdjustmentTypeSubtract, Value: dec("1"), ReasonCode: AdjustmentReasonOther, Notes: "   "})
		assert.True(t, IsValidationError(err), "got %v", err)
		assert.Empty(t, store.adjustments)
	})
	t.Run("invalid reason code", func(t *testing.T) {
		_, err := run(LotAdjustmentInput{LotId: 1, AdjustmentType: LotAdjustmentTypeSubtract, Value: dec("1"), ReasonCode: "Shrink"})
		assert.True(t, IsValidationError(err), "got %v", err)
	})
	t.Run("unknown lot", func(t *testing.T) {
		_, err := run(LotAdjustmentInput{LotId: 99, AdjustmentType: LotAdjustmentTypeSubtract, Value: dec("1"), ReasonCode: AdjustmentReasonSpoilage})
		assert.ErrorIs(t, err, ErrLotNotFound)
	})
	t.Run("unknown lot wins over invalid reason", func(t *testing.T) {
		_, err := run(LotAdjustmentInput{LotId: 99, AdjustmentType: LotAdjustmentTypeSubtract, Value: dec("1"), ReasonCode: "Shrink"})
		assert.ErrorIs(t, err, ErrLotNotFound)
	})
}

func TestAdjustLotSetToZeroAllowed(t *testing.T) {
	store := newFakeLotStore()
	seedAdjustableLot(store)
	engine := testAdjustmentEngine(store)

	record, err := engine.AdjustLot(context.Background(), LotAdjustmentInput{
		LotId: 1, AdjustmentType: LotAdjustmentTypeSet, Value: dec("0"),
		ReasonCode: AdjustmentReasonDonation, Notes: "given to the shelter",
	})
	require.NoError(t, err)
	assert.True(t, record.QuantityAfter.IsZero())
	assert.True(t, store.lots[1].QuantityRemaining.IsZero())
}
