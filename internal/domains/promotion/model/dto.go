package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreatePromotionRequest is the admin payload for a new campaign. Promotions
// are always created in draft; the sweep derives the live status afterwards.
type CreatePromotionRequest struct {
	Name                  string      `json:"name"`
	Description           *string     `json:"description"`
	Type                  string      `json:"type"`
	Priority              int         `json:"priority"`
	StartsAt              string      `json:"starts_at"` // RFC3339
	EndsAt                string      `json:"ends_at"`   // RFC3339
	UsageLimit            *int        `json:"usage_limit"`
	UsageLimitPerCustomer *int        `json:"usage_limit_per_customer"`
	ExclusiveWith         []uuid.UUID `json:"exclusive_with"`
}

func (r CreatePromotionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.Required.Error("name is required"),
			validation.Length(3, 200),
		),
		validation.Field(&r.Description,
			validation.When(r.Description != nil, validation.Length(0, 1000)),
		),
		validation.Field(&r.Type,
			validation.Required,
			validation.In("percentage_discount", "fixed_discount", "free_gift"),
		),
		validation.Field(&r.StartsAt, validation.Required, validation.Date(time.RFC3339)),
		validation.Field(&r.EndsAt, validation.Required, validation.Date(time.RFC3339)),
		validation.Field(&r.UsageLimit,
			validation.When(r.UsageLimit != nil, validation.Min(0)),
		),
		validation.Field(&r.UsageLimitPerCustomer,
			validation.When(r.UsageLimitPerCustomer != nil, validation.Min(0)),
		),
	)
}

// Window parses and checks the validity window.
func (r CreatePromotionRequest) Window() (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339, r.StartsAt)
	if err != nil {
		return start, end, &AppError{Code: ErrCodeValidationFailed, Message: "invalid starts_at format", HTTPStatus: 400}
	}
	end, err = time.Parse(time.RFC3339, r.EndsAt)
	if err != nil {
		return start, end, &AppError{Code: ErrCodeValidationFailed, Message: "invalid ends_at format", HTTPStatus: 400}
	}
	if !end.After(start) {
		return start, end, &AppError{Code: ErrCodeValidationFailed, Message: "ends_at must be after starts_at", HTTPStatus: 400}
	}
	return start, end, nil
}

// UpdatePromotionRequest carries partial admin updates. Nil fields are left
// untouched.
type UpdatePromotionRequest struct {
	Name                  *string     `json:"name"`
	Description           *string     `json:"description"`
	Priority              *int        `json:"priority"`
	StartsAt              *string     `json:"starts_at"`
	EndsAt                *string     `json:"ends_at"`
	UsageLimit            *int        `json:"usage_limit"`
	UsageLimitPerCustomer *int        `json:"usage_limit_per_customer"`
	ExclusiveWith         []uuid.UUID `json:"exclusive_with"`
}

func (r UpdatePromotionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.When(r.Name != nil, validation.Length(3, 200)),
		),
		validation.Field(&r.StartsAt,
			validation.When(r.StartsAt != nil, validation.Date(time.RFC3339)),
		),
		validation.Field(&r.EndsAt,
			validation.When(r.EndsAt != nil, validation.Date(time.RFC3339)),
		),
	)
}

// RuleRequest is one rule in an atomic rule-set replacement.
type RuleRequest struct {
	RuleType string `json:"rule_type"`

	ConditionType string      `json:"condition_type"`
	Operator      string      `json:"operator"`
	NumericValue  *float64    `json:"numeric_value"`
	ProductIDs    []uuid.UUID `json:"product_ids"`
	CategoryIDs   []uuid.UUID `json:"category_ids"`

	BenefitType          string      `json:"benefit_type"`
	BenefitValue         float64     `json:"benefit_value"`
	MaxDiscountAmount    *float64    `json:"max_discount_amount"`
	ApplicableProductIDs []uuid.UUID `json:"applicable_product_ids"`
	GiftProductIDs       []uuid.UUID `json:"gift_product_ids"`
	GiftQuantities       []int       `json:"gift_quantities"`
	GiftName             *string     `json:"gift_name"`
	GiftNameQuantity     int         `json:"gift_name_quantity"`
	MinCartValue         *float64    `json:"min_cart_value"`
}

func (r RuleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RuleType,
			validation.Required,
			validation.In("condition", "benefit"),
		),
		validation.Field(&r.ConditionType,
			validation.When(r.RuleType == "condition",
				validation.Required,
				validation.In("cart_value", "product_quantity", "specific_products", "category_products"),
			),
		),
		validation.Field(&r.Operator,
			validation.When(r.RuleType == "condition",
				validation.Required,
				validation.In("gte", "lte", "eq", "in", "not_in"),
			),
		),
		validation.Field(&r.BenefitType,
			validation.When(r.RuleType == "benefit",
				validation.Required,
				validation.In("percentage_discount", "fixed_discount", "free_gift"),
			),
		),
	)
}

// ToRule converts the request into a domain rule for the given promotion.
func (r RuleRequest) ToRule(promotionID uuid.UUID) *PromotionRule {
	rule := &PromotionRule{
		ID:                   uuid.New(),
		PromotionID:          promotionID,
		RuleType:             RuleType(r.RuleType),
		ConditionType:        ConditionType(r.ConditionType),
		Operator:             Operator(r.Operator),
		ProductIDs:           r.ProductIDs,
		CategoryIDs:          r.CategoryIDs,
		BenefitType:          BenefitType(r.BenefitType),
		BenefitValue:         decimal.NewFromFloat(r.BenefitValue),
		ApplicableProductIDs: r.ApplicableProductIDs,
		GiftProductIDs:       r.GiftProductIDs,
		GiftQuantities:       r.GiftQuantities,
		GiftName:             r.GiftName,
		GiftNameQuantity:     r.GiftNameQuantity,
	}
	if r.NumericValue != nil {
		v := decimal.NewFromFloat(*r.NumericValue)
		rule.NumericValue = &v
	}
	if r.MaxDiscountAmount != nil {
		v := decimal.NewFromFloat(*r.MaxDiscountAmount)
		rule.MaxDiscountAmount = &v
	}
	if r.MinCartValue != nil {
		v := decimal.NewFromFloat(*r.MinCartValue)
		rule.MinCartValue = &v
	}
	return rule
}

// ReplaceRulesRequest swaps a promotion's full rule set. No partial merges.
type ReplaceRulesRequest struct {
	Rules []RuleRequest `json:"rules"`
}

func (r ReplaceRulesRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Rules, validation.Required, validation.Length(2, 50)),
	); err != nil {
		return err
	}
	hasCondition, hasBenefit := false, false
	for _, rule := range r.Rules {
		if err := rule.Validate(); err != nil {
			return err
		}
		switch rule.RuleType {
		case "condition":
			hasCondition = true
		case "benefit":
			hasBenefit = true
		}
	}
	if !hasCondition || !hasBenefit {
		return &AppError{
			Code:       ErrCodeValidationFailed,
			Message:    ErrRulesIncomplete.Error(),
			HTTPStatus: 400,
		}
	}
	return nil
}

// ListPromotionsFilter narrows admin listings.
type ListPromotionsFilter struct {
	Status *PromotionStatus
	Type   *PromotionType
	Page   int
	Limit  int
}
