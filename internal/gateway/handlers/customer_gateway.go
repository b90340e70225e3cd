package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	customerhandler "rentflow-system/internal/services/customer/handler"
)

type CustomerHTTPHandler struct {
	customers *customerhandler.CustomerHandler
}

func NewCustomerHTTPHandler(customers *customerhandler.CustomerHandler) *CustomerHTTPHandler {
	return &CustomerHTTPHandler{
		customers: customers,
	}
}

func (h *CustomerHTTPHandler) CreateCustomer(c *gin.Context) {
	var req customerhandler.CustomerInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	customer, err := h.customers.CreateCustomer(ctx, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Customer created successfully", customer))
}

func (h *CustomerHTTPHandler) GetCustomer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	customer, err := h.customers.GetCustomer(ctx, id)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Customer retrieved successfully", customer))
}

func (h *CustomerHTTPHandler) UpdateCustomer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req customerhandler.CustomerInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	customer, err := h.customers.UpdateCustomer(ctx, id, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Customer updated successfully", customer))
}

func (h *CustomerHTTPHandler) DeleteCustomer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if handleServiceError(c, h.customers.DeleteCustomer(ctx, id)) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Customer deleted successfully", nil))
}

func (h *CustomerHTTPHandler) ListCustomers(c *gin.Context) {
	var query customerhandler.ListCustomersParams
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	customers, meta, err := h.customers.ListCustomers(ctx, query)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Customers retrieved successfully", customers, meta))
}
