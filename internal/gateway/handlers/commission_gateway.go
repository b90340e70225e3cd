package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	commissionhandler "rentflow-system/internal/services/commissions/handler"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type CommissionsHTTPHandler struct {
	commissions *commissionhandler.CommissionHandler
}

func NewCommissionsHTTPHandler(commissions *commissionhandler.CommissionHandler) *CommissionsHTTPHandler {
	return &CommissionsHTTPHandler{
		commissions: commissions,
	}
}

// Request structs
type AssignInvoiceEmployeesRequest struct {
	Assignments []commissionhandler.InvoiceAssigneeInput `json:"assignments"`
}

type AssignServiceEmployeesRequest struct {
	Assignments []commissionhandler.ServiceAssigneeInput `json:"assignments"`
}

type PayCommissionRequest struct {
	Notes string `json:"notes"`
}

// --- Assignment Handlers ---

func (h *CommissionsHTTPHandler) AssignInvoiceEmployees(c *gin.Context) {
	invoiceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req AssignInvoiceEmployeesRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.commissions.AssignInvoiceEmployees(ctx, invoiceID, req.Assignments)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Invoice assignments saved", rows))
}

func (h *CommissionsHTTPHandler) AssignServiceEmployees(c *gin.Context) {
	serviceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req AssignServiceEmployeesRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result, err := h.commissions.AssignServiceEmployees(ctx, serviceID, req.Assignments)
	if handleServiceError(c, err) {
		return
	}
	message := "Service assignments saved"
	if result.OverAllocated {
		message = fmt.Sprintf("Service assignments saved; total allocation is %s%%", result.TotalPercentage.String())
	}
	c.JSON(http.StatusOK, successResponse(message, result))
}

func (h *CommissionsHTTPHandler) ListAssignments(c *gin.Context) {
	var query commissionhandler.AssignmentFilter
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.commissions.ListAssignments(ctx, query)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Assignments retrieved successfully", rows))
}

func (h *CommissionsHTTPHandler) RemoveAssignment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if handleServiceError(c, h.commissions.RemoveAssignment(ctx, id)) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Assignment removed", nil))
}

// --- Payout Handlers ---

func (h *CommissionsHTTPHandler) GetEmployeeSummary(c *gin.Context) {
	employeeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	summary, err := h.commissions.EmployeeSummary(ctx, employeeID)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission summary retrieved", summary))
}

func (h *CommissionsHTTPHandler) PayEmployee(c *gin.Context) {
	employeeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req PayCommissionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	batch, err := h.commissions.MarkEmployeePaid(ctx, employeeID, req.Notes)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission paid", batch))
}

func (h *CommissionsHTTPHandler) ListBatches(c *gin.Context) {
	employeeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	batches, err := h.commissions.ListBatches(ctx, employeeID)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Payment batches retrieved", batches))
}

func (h *CommissionsHTTPHandler) ExportXLSX(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second) // exports walk every assignment
	defer cancel()

	var buf bytes.Buffer
	if handleServiceError(c, h.commissions.ExportXLSX(ctx, parseInt64Query(c, "employee_id"), &buf)) {
		return
	}
	c.Header("Content-Disposition", `attachment; filename="commissions.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
