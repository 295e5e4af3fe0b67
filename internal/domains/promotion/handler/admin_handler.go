package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"promo-engine/internal/domains/promotion/model"
	"promo-engine/internal/domains/promotion/service"
	"promo-engine/internal/shared/response"
)

// AdminHandler serves the admin-only lifecycle and CRUD endpoints.
type AdminHandler struct {
	admin     service.Admin
	scheduler service.Scheduler
	monitor   service.Monitor
}

func NewAdminHandler(admin service.Admin, scheduler service.Scheduler, monitor service.Monitor) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		scheduler: scheduler,
		monitor:   monitor,
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), "invalid promotion id")
		return uuid.Nil, false
	}
	return id, true
}

// POST /v1/admin/promotions
func (h *AdminHandler) Create(c *gin.Context) {
	var req model.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), err.Error())
		return
	}

	promo, err := h.admin.Create(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, promo)
}

// PUT /v1/admin/promotions/:id
func (h *AdminHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req model.UpdatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), err.Error())
		return
	}

	promo, err := h.admin.Update(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, promo)
}

// DELETE /v1/admin/promotions/:id
func (h *AdminHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.admin.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /v1/admin/promotions/:id
func (h *AdminHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	promo, rules, err := h.admin.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"promotion": promo, "rules": rules})
}

// GET /v1/admin/promotions
func (h *AdminHandler) List(c *gin.Context) {
	filter := &model.ListPromotionsFilter{}
	if s := c.Query("status"); s != "" {
		status := model.PromotionStatus(s)
		if !status.IsValid() {
			response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), "invalid status filter")
			return
		}
		filter.Status = &status
	}
	if t := c.Query("type"); t != "" {
		promoType := model.PromotionType(t)
		if !promoType.IsValid() {
			response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), "invalid type filter")
			return
		}
		filter.Type = &promoType
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	promos, total, err := h.admin.List(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, promos, &response.Meta{
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
	})
}

// PUT /v1/admin/promotions/:id/rules
func (h *AdminHandler) ReplaceRules(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req model.ReplaceRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), err.Error())
		return
	}

	rules, err := h.admin.ReplaceRules(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rules)
}

// POST /v1/admin/promotions/:id/activate
func (h *AdminHandler) Activate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.scheduler.Activate(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.StatusActive})
}

// POST /v1/admin/promotions/:id/deactivate
func (h *AdminHandler) Deactivate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.scheduler.Deactivate(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.StatusPaused})
}

// POST /v1/admin/promotions/:id/pause
func (h *AdminHandler) Pause(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.scheduler.Pause(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.StatusPaused})
}

// POST /v1/admin/promotions/:id/resume
// The returned status tells the caller whether the promotion came back
// active or landed expired.
func (h *AdminHandler) Resume(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	status, err := h.scheduler.Resume(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"status":  status,
		"expired": status == model.StatusExpired,
	})
}

// POST /v1/admin/promotions/sweep — trigger one lifecycle pass by hand.
func (h *AdminHandler) RunSweep(c *gin.Context) {
	updated, err := h.scheduler.ProcessScheduledPromotions(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// GET /v1/admin/promotions/health
func (h *AdminHandler) Health(c *gin.Context) {
	metrics, err := h.monitor.GetSystemHealthMetrics(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, metrics)
}

// GET /v1/admin/promotions/status-updates
func (h *AdminHandler) StatusUpdates(c *gin.Context) {
	updates, err := h.monitor.GetPromotionStatusUpdates(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, updates)
}
