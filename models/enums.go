package models

// CostingMethod selects how an item's on-hand cost is tracked.
// Lot-tracked items carry per-acquisition lots and are consumed FIFO;
// bulk items carry a single running weighted-average cost.
// The two models are mutually exclusive per item.
type CostingMethod string

const (
	CostingMethodFifo    CostingMethod = "FIFO"
	CostingMethodAverage CostingMethod = "Average"
)

// ConsumptionMode distinguishes a dry-run from a committed draw-down.
type ConsumptionMode string

const (
	// ConsumptionModePreview computes the FIFO plan without mutating lots.
	ConsumptionModePreview ConsumptionMode = "Preview"
	// ConsumptionModeCommit writes reduced lot quantities back.
	ConsumptionModeCommit ConsumptionMode = "Commit"
)

// LotAdjustmentType enumerates the manual lot adjustment operations.
type LotAdjustmentType string

const (
	LotAdjustmentTypeAdd        LotAdjustmentType = "Add"
	LotAdjustmentTypeSubtract   LotAdjustmentType = "Subtract"
	LotAdjustmentTypeSet        LotAdjustmentType = "Set"
	LotAdjustmentTypePercentage LotAdjustmentType = "Percentage"
)

// AdjustmentReason classifies why a lot quantity was changed by hand.
type AdjustmentReason string

const (
	AdjustmentReasonSpoilage   AdjustmentReason = "Spoilage"
	AdjustmentReasonDonation   AdjustmentReason = "Donation"
	AdjustmentReasonCorrection AdjustmentReason = "Correction"
	AdjustmentReasonRecount    AdjustmentReason = "Recount"
	AdjustmentReasonOther      AdjustmentReason = "Other"
)

func (r AdjustmentReason) valid() bool {
	switch r {
	case AdjustmentReasonSpoilage, AdjustmentReasonDonation,
		AdjustmentReasonCorrection, AdjustmentReasonRecount, AdjustmentReasonOther:
		return true
	}
	return false
}

// PriceSource records where a price history row came from.
type PriceSource string

const (
	PriceSourceAcquisition PriceSource = "Acquisition"
	PriceSourceManual      PriceSource = "Manual"
)
