package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	equipmenthandler "rentflow-system/internal/services/equipment/handler"
)

type EquipmentHTTPHandler struct {
	equipment *equipmenthandler.EquipmentHandler
}

func NewEquipmentHTTPHandler(equipment *equipmenthandler.EquipmentHandler) *EquipmentHTTPHandler {
	return &EquipmentHTTPHandler{
		equipment: equipment,
	}
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func (h *EquipmentHTTPHandler) CreateEquipment(c *gin.Context) {
	var req equipmenthandler.EquipmentInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.equipment.CreateEquipment(ctx, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Equipment created successfully", item))
}

func (h *EquipmentHTTPHandler) GetEquipment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.equipment.GetEquipment(ctx, id)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Equipment retrieved successfully", item))
}

func (h *EquipmentHTTPHandler) UpdateEquipment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req equipmenthandler.EquipmentInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.equipment.UpdateEquipment(ctx, id, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Equipment updated successfully", item))
}

func (h *EquipmentHTTPHandler) SetActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.equipment.SetActive(ctx, id, *req.IsActive)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Equipment status updated", item))
}

func (h *EquipmentHTTPHandler) DeleteEquipment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if handleServiceError(c, h.equipment.DeleteEquipment(ctx, id)) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Equipment deleted successfully", nil))
}

func (h *EquipmentHTTPHandler) ListEquipment(c *gin.Context) {
	var query equipmenthandler.ListEquipmentParams
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	items, meta, err := h.equipment.ListEquipment(ctx, query)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Equipment retrieved successfully", items, meta))
}

// Catalog lists the active items scanned lines are matched against.
func (h *EquipmentHTTPHandler) Catalog(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	items, err := h.equipment.ActiveCatalog(ctx)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Catalog retrieved successfully", items))
}
