package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"promo-engine/internal/domains/promotion/model"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type Meta struct {
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
	Total int `json:"total,omitempty"`
}

// Success responses
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error responses
func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FromError maps domain errors to the wire envelope: AppError keeps its code
// and status, sentinels map to 404, anything else is an internal error.
func FromError(c *gin.Context, err error) {
	if appErr, ok := model.AsAppError(err); ok {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		ErrorWithDetails(c, status, string(appErr.Code), appErr.Message, appErr.Details)
		return
	}
	if errors.Is(err, model.ErrPromotionNotFound) {
		ErrorResponse(c, http.StatusNotFound, "PROMO_NOT_FOUND", err.Error())
		return
	}
	ErrorResponse(c, http.StatusInternalServerError, string(model.ErrCodeInternal), "internal error")
}
