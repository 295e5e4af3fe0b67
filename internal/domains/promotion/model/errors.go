package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrPromotionNotFound = errors.New("promotion not found")
	ErrRulesIncomplete   = errors.New("promotion needs at least one condition rule and one benefit rule")
)

// ErrorCode classifies failures for clients and for the audit trail.
type ErrorCode string

const (
	// Validation errors (400) — malformed or tampered input, no retry.
	ErrCodeValidationFailed ErrorCode = "VAL_INVALID_INPUT"
	ErrCodeInvalidSubtotal  ErrorCode = "VAL_INVALID_SUBTOTAL"
	ErrCodeInvalidItem      ErrorCode = "VAL_INVALID_ITEM"
	ErrCodeExcessiveGift    ErrorCode = "VAL_EXCESSIVE_GIFT_QUANTITY"

	// Terminal business errors (400)
	ErrCodeUsageLimitExceeded    ErrorCode = "PROMO_USAGE_LIMIT_EXCEEDED"
	ErrCodeCustomerLimitExceeded ErrorCode = "PROMO_CUSTOMER_LIMIT_EXCEEDED"
	ErrCodePromoExpired          ErrorCode = "PROMO_EXPIRED"
	ErrCodePromoNotActive        ErrorCode = "PROMO_NOT_ACTIVE"

	// Illegal lifecycle transition (409)
	ErrCodeLifecycleConflict ErrorCode = "BIZ_LIFECYCLE_CONFLICT"

	// Security violations (403) — fail closed, always audited.
	ErrCodeDiscountMismatch  ErrorCode = "SEC_DISCOUNT_MISMATCH"
	ErrCodeDiscountExcessive ErrorCode = "SEC_DISCOUNT_EXCESSIVE"
	ErrCodeGiftInvalid       ErrorCode = "SEC_GIFT_INVALID"
	ErrCodeHighValueRejected ErrorCode = "SEC_HIGH_VALUE_REJECTED"
	ErrCodeUsageBypass       ErrorCode = "SEC_USAGE_BYPASS"
	ErrCodeStaleEligibility  ErrorCode = "SEC_STALE_ELIGIBILITY"

	// System errors (500)
	ErrCodeInternal ErrorCode = "SYS_INTERNAL_ERROR"
)

// AppError is the typed error carried across service and HTTP layers.
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

// IsSecurityViolation reports whether the error is one of the fail-closed
// validator rejections that must be audited.
func (e *AppError) IsSecurityViolation() bool {
	switch e.Code {
	case ErrCodeDiscountMismatch, ErrCodeDiscountExcessive, ErrCodeGiftInvalid,
		ErrCodeHighValueRejected, ErrCodeUsageBypass, ErrCodeStaleEligibility:
		return true
	}
	return false
}

// NewSubtotalMismatchError names both the declared and the recomputed value,
// so tampering is diagnosable from the message alone.
func NewSubtotalMismatchError(declared, computed decimal.Decimal) *AppError {
	return &AppError{
		Code: ErrCodeInvalidSubtotal,
		Message: fmt.Sprintf("cart subtotal mismatch: declared %s, items sum to %s",
			declared.String(), computed.String()),
		Details: map[string]interface{}{
			"declared_subtotal": declared,
			"computed_subtotal": computed,
		},
		HTTPStatus: 400,
	}
}

// NewDiscountMismatchError names the candidate and recomputed discounts.
func NewDiscountMismatchError(candidate, expected decimal.Decimal) *AppError {
	return &AppError{
		Code: ErrCodeDiscountMismatch,
		Message: fmt.Sprintf("discount mismatch: candidate %s, recomputed %s",
			candidate.String(), expected.String()),
		Details: map[string]interface{}{
			"candidate_discount": candidate,
			"expected_discount":  expected,
		},
		HTTPStatus: 403,
	}
}

// NewExcessiveGiftError flags a gift request above the per-promotion cap.
func NewExcessiveGiftError(requested, cap int) *AppError {
	return &AppError{
		Code:    ErrCodeExcessiveGift,
		Message: fmt.Sprintf("Excessive gift quantity detected: %d", requested),
		Details: map[string]interface{}{
			"requested": requested,
			"cap":       cap,
		},
		HTTPStatus: 400,
	}
}

// NewUsageLimitError is the terminal per-attempt error when a promotion's
// cap is exhausted.
func NewUsageLimitError(limit, current int) *AppError {
	return &AppError{
		Code:    ErrCodeUsageLimitExceeded,
		Message: "promotion usage limit reached",
		Details: map[string]interface{}{
			"usage_limit":   limit,
			"current_usage": current,
		},
		HTTPStatus: 400,
	}
}

// NewLifecycleConflictError reports an illegal status transition.
func NewLifecycleConflictError(from PromotionStatus, operation string) *AppError {
	return &AppError{
		Code:       ErrCodeLifecycleConflict,
		Message:    fmt.Sprintf("cannot %s promotion in status %q", operation, from),
		Details:    map[string]interface{}{"status": from},
		HTTPStatus: 409,
	}
}

// AsAppError unwraps err into an *AppError when possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
