package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleType distinguishes predicates from benefits.
type RuleType string

const (
	RuleTypeCondition RuleType = "condition"
	RuleTypeBenefit   RuleType = "benefit"
)

// ConditionType is the predicate a condition rule applies to the cart.
type ConditionType string

const (
	ConditionCartValue        ConditionType = "cart_value"
	ConditionProductQuantity  ConditionType = "product_quantity"
	ConditionSpecificProducts ConditionType = "specific_products"
	ConditionCategoryProducts ConditionType = "category_products"
)

// Operator compares the condition's value against the cart.
type Operator string

const (
	OperatorGTE   Operator = "gte"
	OperatorLTE   Operator = "lte"
	OperatorEQ    Operator = "eq"
	OperatorIn    Operator = "in"
	OperatorNotIn Operator = "not_in"
)

// BenefitType mirrors PromotionType at the rule level.
type BenefitType string

const (
	BenefitPercentageDiscount BenefitType = "percentage_discount"
	BenefitFixedDiscount      BenefitType = "fixed_discount"
	BenefitFreeGift           BenefitType = "free_gift"
)

// PromotionRule belongs to exactly one promotion. A promotion is evaluable
// only once it carries at least one condition rule and one benefit rule.
type PromotionRule struct {
	ID          uuid.UUID `json:"id" db:"id"`
	PromotionID uuid.UUID `json:"promotion_id" db:"promotion_id"`
	RuleType    RuleType  `json:"rule_type" db:"rule_type"`

	// Condition fields
	ConditionType ConditionType    `json:"condition_type,omitempty" db:"condition_type"`
	Operator      Operator         `json:"operator,omitempty" db:"operator"`
	NumericValue  *decimal.Decimal `json:"numeric_value,omitempty" db:"numeric_value"`
	ProductIDs    []uuid.UUID      `json:"product_ids,omitempty" db:"product_ids"`
	CategoryIDs   []uuid.UUID      `json:"category_ids,omitempty" db:"category_ids"`

	// Benefit fields
	BenefitType          BenefitType      `json:"benefit_type,omitempty" db:"benefit_type"`
	BenefitValue         decimal.Decimal  `json:"benefit_value" db:"benefit_value"`
	MaxDiscountAmount    *decimal.Decimal `json:"max_discount_amount,omitempty" db:"max_discount_amount"`
	ApplicableProductIDs []uuid.UUID      `json:"applicable_product_ids,omitempty" db:"applicable_product_ids"`

	// Gift configuration. A catalog-linked gift lists product ids with
	// aligned quantities; a standalone gift only carries a name.
	GiftProductIDs   []uuid.UUID `json:"gift_product_ids,omitempty" db:"gift_product_ids"`
	GiftQuantities   []int       `json:"gift_quantities,omitempty" db:"gift_quantities"`
	GiftName         *string     `json:"gift_name,omitempty" db:"gift_name"`
	GiftNameQuantity int         `json:"gift_name_quantity,omitempty" db:"gift_name_quantity"`

	// MinCartValue qualifies a free_gift tier: the tier only unlocks when the
	// cart subtotal reaches it. Nil means the tier always qualifies.
	MinCartValue *decimal.Decimal `json:"min_cart_value,omitempty" db:"min_cart_value"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsCondition reports whether the rule is a predicate.
func (r *PromotionRule) IsCondition() bool {
	return r.RuleType == RuleTypeCondition
}

// IsBenefit reports whether the rule grants a discount or gift.
func (r *PromotionRule) IsBenefit() bool {
	return r.RuleType == RuleTypeBenefit
}

// SplitRules partitions a rule set into conditions and benefits.
func SplitRules(rules []*PromotionRule) (conditions, benefits []*PromotionRule) {
	for _, rule := range rules {
		switch rule.RuleType {
		case RuleTypeCondition:
			conditions = append(conditions, rule)
		case RuleTypeBenefit:
			benefits = append(benefits, rule)
		}
	}
	return conditions, benefits
}
