package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubtotalTolerance is the maximum rounding drift (in currency minor units)
// accepted between a declared amount and its recomputation.
var SubtotalTolerance = decimal.NewFromInt(1)

// CartItem is one line of the untrusted cart snapshot.
type CartItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	CategoryIDs []uuid.UUID     `json:"category_ids,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Validate checks the structural invariants of a single cart line. The
// quantity and price rules are expressed as By rules because ozzo's
// threshold rules skip zero values and cannot compare decimal.Decimal.
func (i CartItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ProductID, validation.Required),
		validation.Field(&i.Quantity, validation.By(boundedQuantity)),
		validation.Field(&i.UnitPrice, validation.By(nonNegativeDecimal)),
	)
}

func boundedQuantity(value interface{}) error {
	qty, _ := value.(int)
	if qty < 1 {
		return errors.New("must be no less than 1")
	}
	if qty > 1000 {
		return errors.New("must be no greater than 1000")
	}
	return nil
}

func nonNegativeDecimal(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if d.IsNegative() {
		return errors.New("must be no less than 0")
	}
	return nil
}

// EvaluationContext is the single untrusted input boundary: a cart snapshot
// submitted for promotion evaluation. Every number in it is re-verified by
// the security validator before any result is trusted.
type EvaluationContext struct {
	CartItems    []CartItem      `json:"cart_items"`
	CartSubtotal decimal.Decimal `json:"cart_subtotal"`
	CustomerID   *uuid.UUID      `json:"customer_id,omitempty"`
}

// Validate enforces the structural contract: a non-empty cart whose declared
// subtotal matches the item sum within the rounding tolerance.
func (c EvaluationContext) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.CartItems,
			validation.Required.Error("cart must not be empty"),
			validation.Length(1, 100),
		),
	); err != nil {
		return err
	}
	for _, item := range c.CartItems {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	sum := c.ItemSubtotalSum()
	if sum.Sub(c.CartSubtotal).Abs().GreaterThan(SubtotalTolerance) {
		return NewSubtotalMismatchError(c.CartSubtotal, sum)
	}
	return nil
}

// ItemSubtotalSum recomputes the cart subtotal from its lines.
func (c EvaluationContext) ItemSubtotalSum() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.CartItems {
		sum = sum.Add(item.Subtotal)
	}
	return sum
}

// QuantityOf sums quantities of cart lines matching any of the given product
// ids. An empty filter matches every line.
func (c EvaluationContext) QuantityOf(productIDs []uuid.UUID) int {
	total := 0
	for _, item := range c.CartItems {
		if len(productIDs) == 0 || containsUUID(productIDs, item.ProductID) {
			total += item.Quantity
		}
	}
	return total
}

// SubtotalOf sums the subtotals of cart lines whose product id is in the
// filter. An empty filter yields the full cart subtotal.
func (c EvaluationContext) SubtotalOf(productIDs []uuid.UUID) decimal.Decimal {
	if len(productIDs) == 0 {
		return c.CartSubtotal
	}
	sum := decimal.Zero
	for _, item := range c.CartItems {
		if containsUUID(productIDs, item.ProductID) {
			sum = sum.Add(item.Subtotal)
		}
	}
	return sum
}

// HasAnyProduct reports whether any cart line carries one of the product ids.
func (c EvaluationContext) HasAnyProduct(productIDs []uuid.UUID) bool {
	for _, item := range c.CartItems {
		if containsUUID(productIDs, item.ProductID) {
			return true
		}
	}
	return false
}

// HasAnyCategory reports whether any cart line belongs to one of the
// category ids.
func (c EvaluationContext) HasAnyCategory(categoryIDs []uuid.UUID) bool {
	for _, item := range c.CartItems {
		for _, cat := range item.CategoryIDs {
			if containsUUID(categoryIDs, cat) {
				return true
			}
		}
	}
	return false
}

// UnitPriceOf returns the unit price of the first cart line carrying the
// product, or zero when the product is not in the cart.
func (c EvaluationContext) UnitPriceOf(productID uuid.UUID) decimal.Decimal {
	for _, item := range c.CartItems {
		if item.ProductID == productID {
			return item.UnitPrice
		}
	}
	return decimal.Zero
}

func containsUUID(slice []uuid.UUID, item uuid.UUID) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}
