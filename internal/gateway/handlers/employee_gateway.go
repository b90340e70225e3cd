package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	employeehandler "rentflow-system/internal/services/employee/handler"
)

type EmployeeHTTPHandler struct {
	employees *employeehandler.EmployeeHandler
}

func NewEmployeeHTTPHandler(employees *employeehandler.EmployeeHandler) *EmployeeHTTPHandler {
	return &EmployeeHTTPHandler{
		employees: employees,
	}
}

func (h *EmployeeHTTPHandler) CreateEmployee(c *gin.Context) {
	var req employeehandler.EmployeeInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	employee, err := h.employees.CreateEmployee(ctx, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Employee created successfully", employee))
}

func (h *EmployeeHTTPHandler) GetEmployee(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	employee, err := h.employees.GetEmployee(ctx, id)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Employee retrieved successfully", employee))
}

func (h *EmployeeHTTPHandler) UpdateEmployee(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req employeehandler.EmployeeInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	employee, err := h.employees.UpdateEmployee(ctx, id, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Employee updated successfully", employee))
}

func (h *EmployeeHTTPHandler) DeleteEmployee(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if handleServiceError(c, h.employees.DeleteEmployee(ctx, id)) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Employee deleted successfully", nil))
}

func (h *EmployeeHTTPHandler) ListEmployees(c *gin.Context) {
	var query employeehandler.ListEmployeesParams
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	employees, meta, err := h.employees.ListEmployees(ctx, query)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Employees retrieved successfully", employees, meta))
}
