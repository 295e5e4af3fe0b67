package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartItem(price int64, qty int) CartItem {
	unit := decimal.NewFromInt(price)
	return CartItem{
		ProductID: uuid.New(),
		Quantity:  qty,
		UnitPrice: unit,
		Subtotal:  unit.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func TestEvaluationContextValidateOK(t *testing.T) {
	ctx := EvaluationContext{
		CartItems:    []CartItem{cartItem(8000, 1), cartItem(6000, 2)},
		CartSubtotal: decimal.NewFromInt(20000),
	}
	assert.NoError(t, ctx.Validate())
}

func TestEvaluationContextToleratesOneUnitDrift(t *testing.T) {
	ctx := EvaluationContext{
		CartItems:    []CartItem{cartItem(8000, 1), cartItem(6000, 2)},
		CartSubtotal: decimal.NewFromInt(20001),
	}
	assert.NoError(t, ctx.Validate())
}

func TestEvaluationContextRejectsSubtotalMismatch(t *testing.T) {
	ctx := EvaluationContext{
		CartItems:    []CartItem{cartItem(8000, 1), cartItem(6000, 2)},
		CartSubtotal: decimal.NewFromInt(15000),
	}
	err := ctx.Validate()
	require.Error(t, err)

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidSubtotal, appErr.Code)
	// The message must name both numbers so tampering is diagnosable.
	assert.Contains(t, appErr.Message, "15000")
	assert.Contains(t, appErr.Message, "20000")
}

func TestEvaluationContextRejectsEmptyCart(t *testing.T) {
	ctx := EvaluationContext{CartSubtotal: decimal.Zero}
	assert.Error(t, ctx.Validate())
}

func TestEvaluationContextRejectsZeroQuantity(t *testing.T) {
	item := cartItem(8000, 1)
	item.Quantity = 0
	ctx := EvaluationContext{
		CartItems:    []CartItem{item},
		CartSubtotal: item.Subtotal,
	}
	assert.Error(t, ctx.Validate())
}

func TestEvaluationContextRejectsNegativeUnitPrice(t *testing.T) {
	item := cartItem(8000, 1)
	item.UnitPrice = decimal.NewFromInt(-8000)
	item.Subtotal = decimal.NewFromInt(-8000)
	ctx := EvaluationContext{
		CartItems:    []CartItem{item},
		CartSubtotal: item.Subtotal,
	}
	assert.Error(t, ctx.Validate())
}

func TestCartItemAcceptsPositivePrice(t *testing.T) {
	assert.NoError(t, cartItem(8000, 3).Validate())
}

func TestCartItemRejectsOversizedQuantity(t *testing.T) {
	assert.Error(t, cartItem(100, 1001).Validate())
}

func TestQuantityOfFiltersByProduct(t *testing.T) {
	a := cartItem(1000, 2)
	b := cartItem(2000, 3)
	ctx := EvaluationContext{
		CartItems:    []CartItem{a, b},
		CartSubtotal: a.Subtotal.Add(b.Subtotal),
	}

	assert.Equal(t, 2, ctx.QuantityOf([]uuid.UUID{a.ProductID}))
	assert.Equal(t, 5, ctx.QuantityOf(nil))
}

func TestSubtotalOfScopesToProducts(t *testing.T) {
	a := cartItem(1000, 2)
	b := cartItem(2000, 3)
	ctx := EvaluationContext{
		CartItems:    []CartItem{a, b},
		CartSubtotal: a.Subtotal.Add(b.Subtotal),
	}

	assert.True(t, ctx.SubtotalOf([]uuid.UUID{b.ProductID}).Equal(decimal.NewFromInt(6000)))
	assert.True(t, ctx.SubtotalOf(nil).Equal(ctx.CartSubtotal))
}

func TestUnitPriceOfMissingProductIsZero(t *testing.T) {
	ctx := EvaluationContext{
		CartItems:    []CartItem{cartItem(1000, 1)},
		CartSubtotal: decimal.NewFromInt(1000),
	}
	assert.True(t, ctx.UnitPriceOf(uuid.New()).IsZero())
}
