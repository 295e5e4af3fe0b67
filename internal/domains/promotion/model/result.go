package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FreeGift is one granted gift. Either a catalog-linked gift (ProductID set,
// inventory-checked) or a standalone named gift (Name set, no inventory
// check) — never both absent.
type FreeGift struct {
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Name      *string    `json:"name,omitempty"`
	Quantity  int        `json:"quantity"`
}

// IsCatalogLinked reports whether the gift references a catalog product.
func (g FreeGift) IsCatalogLinked() bool {
	return g.ProductID != nil
}

// EligiblePromotion is the ephemeral per-evaluation pairing of a promotion
// with the benefit it would grant the current cart.
type EligiblePromotion struct {
	Promotion         *Promotion       `json:"promotion"`
	MatchedRules      []*PromotionRule `json:"matched_rules"`
	PotentialDiscount decimal.Decimal  `json:"potential_discount"`
	PotentialGifts    []FreeGift       `json:"potential_gifts,omitempty"`
	GiftValue         decimal.Decimal  `json:"gift_value"`
	Priority          int              `json:"priority"`
}

// CombinedBenefit is the customer-benefit measure used for tie-breaking.
func (e *EligiblePromotion) CombinedBenefit() decimal.Decimal {
	return e.PotentialDiscount.Add(e.GiftValue)
}

// AppliedPromotion is the committed outcome of an evaluation.
type AppliedPromotion struct {
	PromotionID    uuid.UUID       `json:"promotion_id"`
	PromotionName  string          `json:"promotion_name"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FreeGifts      []FreeGift      `json:"free_gifts,omitempty"`
	AppliedAt      time.Time       `json:"applied_at"`
}

// ConflictType names the criterion that decided a multi-candidate evaluation.
type ConflictType string

const (
	ConflictPriority        ConflictType = "priority"
	ConflictExclusivity     ConflictType = "exclusivity"
	ConflictCustomerBenefit ConflictType = "customer_benefit"
)

// ConflictResolution records the deterministic choice among multiple
// eligible promotions.
type ConflictResolution struct {
	ConflictType         ConflictType `json:"conflict_type"`
	SelectedPromotionID  uuid.UUID    `json:"selected_promotion_id"`
	RejectedPromotionIDs []uuid.UUID  `json:"rejected_promotion_ids"`
	Reason               string       `json:"reason"`
}

// PromotionEvaluationResult is the engine's public answer for one cart.
type PromotionEvaluationResult struct {
	Applied     *AppliedPromotion    `json:"applied,omitempty"`
	Eligible    []*EligiblePromotion `json:"eligible,omitempty"`
	Conflict    *ConflictResolution  `json:"conflict,omitempty"`
	EvaluatedAt time.Time            `json:"evaluated_at"`
}
