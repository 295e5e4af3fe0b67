package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PromotionUsage is the append-only record created when a completed order
// redeemed a promotion. Never mutated after creation.
type PromotionUsage struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	PromotionID    uuid.UUID       `json:"promotion_id" db:"promotion_id"`
	OrderID        uuid.UUID       `json:"order_id" db:"order_id"`
	CustomerID     *uuid.UUID      `json:"customer_id,omitempty" db:"customer_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	FreeGifts      []FreeGift      `json:"free_gifts,omitempty" db:"free_gifts"`
	CartSubtotal   decimal.Decimal `json:"cart_subtotal" db:"cart_subtotal"`

	// Full promotion snapshot at time of use, so later rule edits can never
	// change what an order was granted.
	PromotionSnapshot *Promotion `json:"promotion_snapshot" db:"promotion_snapshot"`

	UsedAt time.Time `json:"used_at" db:"used_at"`
}

// GiftProductStock is the inventory answer for one catalog-linked gift.
type GiftProductStock struct {
	ProductID         uuid.UUID `json:"product_id"`
	InStock           bool      `json:"in_stock"`
	AvailableQuantity int       `json:"available_quantity"`
}

// UsageStatistics aggregates redemption data for the anomaly checks.
type UsageStatistics struct {
	PromotionID      uuid.UUID       `json:"promotion_id"`
	TotalUses        int             `json:"total_uses"`
	AvgDiscount      decimal.Decimal `json:"avg_discount"`
	AvgOrderSubtotal decimal.Decimal `json:"avg_order_subtotal"`
}

// AnalyticsEntry is one lifecycle analytics event recorded by the scheduler.
type AnalyticsEntry struct {
	PromotionID uuid.UUID       `json:"promotion_id"`
	EventType   string          `json:"event_type"`
	FromStatus  PromotionStatus `json:"from_status"`
	ToStatus    PromotionStatus `json:"to_status"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
