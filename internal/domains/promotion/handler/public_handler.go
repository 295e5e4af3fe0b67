package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"promo-engine/internal/domains/promotion/model"
	"promo-engine/internal/domains/promotion/service"
	"promo-engine/internal/shared/response"
)

// PublicHandler serves the storefront-facing evaluation endpoints.
type PublicHandler struct {
	engine service.Engine
}

func NewPublicHandler(engine service.Engine) *PublicHandler {
	return &PublicHandler{engine: engine}
}

// Evaluate answers which promotion a cart gets.
// POST /v1/promotions/evaluate
func (h *PublicHandler) Evaluate(c *gin.Context) {
	var evalCtx model.EvaluationContext
	if err := c.ShouldBindJSON(&evalCtx); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), err.Error())
		return
	}

	result, err := h.engine.EvaluatePromotions(c.Request.Context(), &evalCtx)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// RecordUsage commits a redemption once an order completed. Not idempotent:
// callers must not retry blindly without a fresh order id.
// POST /v1/promotions/usage
func (h *PublicHandler) RecordUsage(c *gin.Context) {
	var usage model.PromotionUsage
	if err := c.ShouldBindJSON(&usage); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), err.Error())
		return
	}
	if usage.PromotionID == uuid.Nil || usage.OrderID == uuid.Nil {
		response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed),
			"promotion_id and order_id are required")
		return
	}

	if err := h.engine.RecordUsage(c.Request.Context(), &usage); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"usage_id": usage.ID})
}
