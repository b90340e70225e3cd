package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	templatehandler "rentflow-system/internal/services/templates/handler"
)

type TemplateHTTPHandler struct {
	templates *templatehandler.TemplateHandler
}

func NewTemplateHTTPHandler(templates *templatehandler.TemplateHandler) *TemplateHTTPHandler {
	return &TemplateHTTPHandler{
		templates: templates,
	}
}

func (h *TemplateHTTPHandler) CreateTemplate(c *gin.Context) {
	var req templatehandler.TemplateInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	tpl, err := h.templates.CreateTemplate(ctx, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Template created successfully", tpl))
}

func (h *TemplateHTTPHandler) GetTemplate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	tpl, err := h.templates.GetTemplate(ctx, id)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Template retrieved successfully", tpl))
}

func (h *TemplateHTTPHandler) UpdateTemplate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req templatehandler.TemplateInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	tpl, err := h.templates.UpdateTemplate(ctx, id, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Template updated successfully", tpl))
}

func (h *TemplateHTTPHandler) DeleteTemplate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if handleServiceError(c, h.templates.DeleteTemplate(ctx, id)) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Template deleted successfully", nil))
}

func (h *TemplateHTTPHandler) ListTemplates(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	templates, err := h.templates.ListTemplates(ctx)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Templates retrieved successfully", templates))
}

func (h *TemplateHTTPHandler) SetDefault(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	tpl, err := h.templates.SetDefault(ctx, id)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Default template updated", tpl))
}
