package service

import (
	"github.com/shopspring/decimal"

	"promo-engine/internal/domains/promotion/model"
)

var oneHundred = decimal.NewFromInt(100)

// Evaluator is the pure rule interpreter: no clocks, no I/O, no state.
// Eligibility and benefit both come from the promotion's persisted rules and
// the cart snapshot alone, so the security validator can recompute the same
// numbers bit for bit.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns the benefit the promotion would grant the cart, or
// (nil, false) when the cart fails any condition rule. A promotion without at
// least one condition and one benefit rule is never eligible.
func (e *Evaluator) Evaluate(evalCtx *model.EvaluationContext, promo *model.Promotion, rules []*model.PromotionRule) (*model.EligiblePromotion, bool) {
	conditions, benefits := model.SplitRules(rules)
	if len(conditions) == 0 || len(benefits) == 0 {
		return nil, false
	}

	// Conditions are conjunctive: one miss disqualifies.
	matched := make([]*model.PromotionRule, 0, len(rules))
	for _, cond := range conditions {
		if !e.conditionHolds(evalCtx, cond) {
			return nil, false
		}
		matched = append(matched, cond)
	}

	discount := decimal.Zero
	giftValue := decimal.Zero
	var gifts []model.FreeGift

	for _, benefit := range benefits {
		switch benefit.BenefitType {
		case model.BenefitPercentageDiscount, model.BenefitFixedDiscount:
			amount := e.discountFor(evalCtx, benefit)
			if amount.IsPositive() {
				discount = discount.Add(amount)
				matched = append(matched, benefit)
			}
		case model.BenefitFreeGift:
			// Gift tiers qualify independently; every satisfied tier grants
			// its gifts.
			if !e.tierQualifies(evalCtx, benefit) {
				continue
			}
			tierGifts, tierValue := e.giftsFor(evalCtx, benefit)
			if len(tierGifts) > 0 {
				gifts = append(gifts, tierGifts...)
				giftValue = giftValue.Add(tierValue)
				matched = append(matched, benefit)
			}
		}
	}

	if discount.IsZero() && len(gifts) == 0 {
		return nil, false
	}

	// The combined discount never exceeds the cart subtotal.
	if discount.GreaterThan(evalCtx.CartSubtotal) {
		discount = evalCtx.CartSubtotal
	}

	return &model.EligiblePromotion{
		Promotion:         promo,
		MatchedRules:      matched,
		PotentialDiscount: discount,
		PotentialGifts:    gifts,
		GiftValue:         giftValue,
		Priority:          promo.Priority,
	}, true
}

func (e *Evaluator) conditionHolds(evalCtx *model.EvaluationContext, rule *model.PromotionRule) bool {
	switch rule.ConditionType {
	case model.ConditionCartValue:
		if rule.NumericValue == nil {
			return false
		}
		return compareDecimal(evalCtx.CartSubtotal, rule.Operator, *rule.NumericValue)

	case model.ConditionProductQuantity:
		if rule.NumericValue == nil {
			return false
		}
		qty := decimal.NewFromInt(int64(evalCtx.QuantityOf(rule.ProductIDs)))
		return compareDecimal(qty, rule.Operator, *rule.NumericValue)

	case model.ConditionSpecificProducts:
		present := evalCtx.HasAnyProduct(rule.ProductIDs)
		if rule.Operator == model.OperatorNotIn {
			return !present
		}
		return present

	case model.ConditionCategoryProducts:
		present := evalCtx.HasAnyCategory(rule.CategoryIDs)
		if rule.Operator == model.OperatorNotIn {
			return !present
		}
		return present
	}
	return false
}

func compareDecimal(actual decimal.Decimal, op model.Operator, expected decimal.Decimal) bool {
	switch op {
	case model.OperatorGTE:
		return actual.GreaterThanOrEqual(expected)
	case model.OperatorLTE:
		return actual.LessThanOrEqual(expected)
	case model.OperatorEQ:
		return actual.Equal(expected)
	}
	return false
}

// discountFor computes one benefit rule's discount against its applicable
// subtotal: the full cart unless the rule scopes to specific products.
func (e *Evaluator) discountFor(evalCtx *model.EvaluationContext, rule *model.PromotionRule) decimal.Decimal {
	applicable := evalCtx.SubtotalOf(rule.ApplicableProductIDs)
	if !applicable.IsPositive() {
		return decimal.Zero
	}

	switch rule.BenefitType {
	case model.BenefitPercentageDiscount:
		amount := applicable.Mul(rule.BenefitValue).Div(oneHundred).Round(0)
		if rule.MaxDiscountAmount != nil && amount.GreaterThan(*rule.MaxDiscountAmount) {
			amount = *rule.MaxDiscountAmount
		}
		return amount

	case model.BenefitFixedDiscount:
		if rule.BenefitValue.GreaterThan(applicable) {
			return applicable
		}
		return rule.BenefitValue
	}
	return decimal.Zero
}

// tierQualifies checks the per-tier cart-value qualifier on a gift rule.
func (e *Evaluator) tierQualifies(evalCtx *model.EvaluationContext, rule *model.PromotionRule) bool {
	if rule.MinCartValue == nil {
		return true
	}
	return evalCtx.CartSubtotal.GreaterThanOrEqual(*rule.MinCartValue)
}

// giftsFor expands a gift rule into concrete FreeGift entries. The gift value
// used for tie-breaking is priced from the cart's own unit price when the
// gift product happens to be in the cart, zero otherwise.
func (e *Evaluator) giftsFor(evalCtx *model.EvaluationContext, rule *model.PromotionRule) ([]model.FreeGift, decimal.Decimal) {
	var gifts []model.FreeGift
	value := decimal.Zero

	for i, productID := range rule.GiftProductIDs {
		qty := 1
		if i < len(rule.GiftQuantities) {
			qty = rule.GiftQuantities[i]
		}
		if qty <= 0 {
			continue
		}
		id := productID
		gifts = append(gifts, model.FreeGift{ProductID: &id, Quantity: qty})
		value = value.Add(evalCtx.UnitPriceOf(productID).Mul(decimal.NewFromInt(int64(qty))))
	}

	if rule.GiftName != nil && *rule.GiftName != "" {
		qty := rule.GiftNameQuantity
		if qty <= 0 {
			qty = 1
		}
		name := *rule.GiftName
		gifts = append(gifts, model.FreeGift{Name: &name, Quantity: qty})
	}

	return gifts, value
}
