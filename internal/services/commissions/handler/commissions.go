package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/commission"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/logger"
	"rentflow-system/internal/utils"
)

const (
	COMMISSION_SUMMARY_CACHE_PREFIX = "commission:summary:"
	CACHE_TTL_SHORT                 = 5 * time.Minute
)

type InvoiceAssigneeInput struct {
	EmployeeID int64  `json:"employee_id" binding:"required"`
	Role       string `json:"role" binding:"required"`
	Notes      string `json:"notes"`
}

type ServiceAssigneeInput struct {
	EmployeeID int64        `json:"employee_id" binding:"required"`
	Percentage utils.Number `json:"percentage"`
	Notes      string       `json:"notes"`
}

type ServiceAssignmentResult struct {
	ServiceID       int64                       `json:"service_id"`
	Assignments     []models.EmployeeAssignment `json:"assignments"`
	TotalPercentage decimal.Decimal             `json:"total_percentage"`
	OverAllocated   bool                        `json:"over_allocated"`
}

type AssignmentFilter struct {
	EmployeeID int64 `form:"employee_id"`
	InvoiceID  int64 `form:"invoice_id"`
	Paid       *bool `form:"paid"`
}

type EmployeeSummary struct {
	EmployeeID   int64           `json:"employee_id"`
	EmployeeName string          `json:"employee_name"`
	UnpaidTotal  decimal.Decimal `json:"unpaid_total"`
	UnpaidCount  int             `json:"unpaid_count"`
	PaidTotal    decimal.Decimal `json:"paid_total"`
	PaidCount    int             `json:"paid_count"`
}

type PaymentBatch struct {
	BatchID    string          `json:"batch_id"`
	EmployeeID int64           `json:"employee_id"`
	PaidAt     time.Time       `json:"paid_at"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
}

type CommissionHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	policy commission.Policy
	now    func() time.Time
	log    zerolog.Logger
}

func NewCommissionHandler(db *gorm.DB, redisClient *redis.Client, policy commission.Policy) *CommissionHandler {
	return &CommissionHandler{
		db:     db,
		redis:  redisClient,
		policy: policy,
		now:    time.Now,
		log:    logger.WithComponent("commissions"),
	}
}

func (c *CommissionHandler) Policy() commission.Policy {
	return c.policy
}

// InvalidateCommissionCaches drops cached summaries for the given employees, or all of them when none are named.
func (c *CommissionHandler) InvalidateCommissionCaches(ctx context.Context, employeeIDs ...int64) {
	if c.redis == nil {
		return
	}

	if len(employeeIDs) == 0 {
		iter := c.redis.Scan(ctx, 0, COMMISSION_SUMMARY_CACHE_PREFIX+"*", 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.log.Warn().Err(err).Msg("failed to scan commission cache keys")
			return
		}
		if len(keys) > 0 {
			_ = c.redis.Del(ctx, keys...)
		}
		return
	}

	for _, id := range employeeIDs {
		cacheKey := fmt.Sprintf("%s%d", COMMISSION_SUMMARY_CACHE_PREFIX, id)
		_ = c.redis.Del(ctx, cacheKey)
	}
}

func validateInvoiceAssignees(inputs []InvoiceAssigneeInput) error {
	v := &apperr.ValidationError{}
	for i, in := range inputs {
		if in.EmployeeID <= 0 {
			v.Add(fmt.Sprintf("assignments[%d].employee_id", i), "is required")
		}
		if _, err := commission.ParseInvoiceRole(in.Role); err != nil {
			v.Add(fmt.Sprintf("assignments[%d].role", i), "must be organizer or setup")
		}
	}
	return v.OrNil()
}

func ensureEmployees(tx *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	unique := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	var found []int64
	if err := tx.Model(&models.Employee{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return fmt.Errorf("failed to load employees: %w", err)
	}
	for _, id := range found {
		delete(unique, id)
	}
	for id := range unique {
		return apperr.NotFound("employee", id)
	}
	return nil
}

// AssignInvoiceEmployees replaces the unpaid role-based assignments of an invoice.
func (c *CommissionHandler) AssignInvoiceEmployees(ctx context.Context, invoiceID int64, inputs []InvoiceAssigneeInput) ([]models.EmployeeAssignment, error) {
	if err := validateInvoiceAssignees(inputs); err != nil {
		return nil, err
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Select("id").First(&invoice, invoiceID).Error; err != nil {
			return apperr.FromDB(err, "invoice", invoiceID)
		}
		return c.ReplaceInvoiceAssignmentsTx(tx, invoiceID, inputs)
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx)
	return c.invoiceAssignments(ctx, invoiceID)
}

// ReplaceInvoiceAssignmentsTx swaps the unpaid invoice-level rows for inputs and recomputes every amount.
func (c *CommissionHandler) ReplaceInvoiceAssignmentsTx(tx *gorm.DB, invoiceID int64, inputs []InvoiceAssigneeInput) error {
	if err := validateInvoiceAssignees(inputs); err != nil {
		return err
	}

	ids := make([]int64, len(inputs))
	for i, in := range inputs {
		ids[i] = in.EmployeeID
	}
	if err := ensureEmployees(tx, ids); err != nil {
		return err
	}

	if err := tx.Where("invoice_id = ? AND paid_at IS NULL", invoiceID).Delete(&models.EmployeeAssignment{}).Error; err != nil {
		return fmt.Errorf("failed to clear invoice assignments: %w", err)
	}

	if len(inputs) > 0 {
		rows := make([]models.EmployeeAssignment, len(inputs))
		for i, in := range inputs {
			id := invoiceID
			rows[i] = models.EmployeeAssignment{
				EmployeeID:           in.EmployeeID,
				InvoiceID:            &id,
				Role:                 in.Role,
				CommissionPercentage: decimal.Zero,
				CommissionAmount:     decimal.Zero,
				Notes:                optionalString(in.Notes),
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to create invoice assignments: %w", err)
		}
	}

	return c.RecalculateInvoiceTx(tx, invoiceID)
}

// RecalculateInvoiceTx recomputes the unpaid assignments of an invoice and its services
// from the current totals. Paid rows are left as they are.
func (c *CommissionHandler) RecalculateInvoiceTx(tx *gorm.DB, invoiceID int64) error {
	var invoice models.Invoice
	if err := tx.Select("id", "total_due").First(&invoice, invoiceID).Error; err != nil {
		return apperr.FromDB(err, "invoice", invoiceID)
	}

	var rows []models.EmployeeAssignment
	if err := tx.Where("invoice_id = ?", invoiceID).Order("id asc").Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load invoice assignments: %w", err)
	}

	assignees := make([]commission.RoleAssignee, len(rows))
	for i, row := range rows {
		assignees[i] = commission.RoleAssignee{EmployeeID: row.EmployeeID, Role: commission.Role(row.Role)}
	}
	allocations := c.policy.AllocateInvoice(invoice.TotalDue, assignees)
	for i, row := range rows {
		if row.IsPaid() {
			continue
		}
		if err := updateAmounts(tx, row.ID, allocations[i].Percentage, allocations[i].Amount); err != nil {
			return err
		}
	}

	var services []models.InvoiceService
	if err := tx.Where("invoice_id = ?", invoiceID).Find(&services).Error; err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}
	for _, svc := range services {
		if err := c.recalculateServiceTx(tx, svc); err != nil {
			return err
		}
	}
	return nil
}

func (c *CommissionHandler) recalculateServiceTx(tx *gorm.DB, svc models.InvoiceService) error {
	var rows []models.EmployeeAssignment
	if err := tx.Where("service_id = ? AND paid_at IS NULL", svc.ID).Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load service assignments: %w", err)
	}
	base := svc.Amount.Sub(svc.Discount)
	for _, row := range rows {
		if err := updateAmounts(tx, row.ID, row.CommissionPercentage, commission.Amount(base, row.CommissionPercentage)); err != nil {
			return err
		}
	}
	return nil
}

func updateAmounts(tx *gorm.DB, id int64, pct, amount decimal.Decimal) error {
	err := tx.Model(&models.EmployeeAssignment{}).
		Where("id = ? AND paid_at IS NULL", id).
		Updates(map[string]interface{}{
			"commission_percentage": pct,
			"commission_amount":     amount,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update assignment %d: %w", id, err)
	}
	return nil
}

// AssignServiceEmployees replaces the unpaid assignments of a service. Totals above
// 100 percent are accepted and flagged.
func (c *CommissionHandler) AssignServiceEmployees(ctx context.Context, serviceID int64, inputs []ServiceAssigneeInput) (*ServiceAssignmentResult, error) {
	v := &apperr.ValidationError{}
	assignees := make([]commission.ServiceAssignee, len(inputs))
	for i, in := range inputs {
		if in.EmployeeID <= 0 {
			v.Add(fmt.Sprintf("assignments[%d].employee_id", i), "is required")
		}
		switch {
		case !in.Percentage.Provided():
			v.Add(fmt.Sprintf("assignments[%d].percentage", i), "is required")
		case !in.Percentage.IsSet():
			v.Add(fmt.Sprintf("assignments[%d].percentage", i), "must be a number")
		case in.Percentage.Decimal().IsNegative():
			v.Add(fmt.Sprintf("assignments[%d].percentage", i), "must not be negative")
		}
		assignees[i] = commission.ServiceAssignee{EmployeeID: in.EmployeeID, Percentage: in.Percentage.Decimal()}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	result := &ServiceAssignmentResult{ServiceID: serviceID}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc models.InvoiceService
		if err := tx.First(&svc, serviceID).Error; err != nil {
			return apperr.FromDB(err, "service", serviceID)
		}

		ids := make([]int64, len(inputs))
		for i, in := range inputs {
			ids[i] = in.EmployeeID
		}
		if err := ensureEmployees(tx, ids); err != nil {
			return err
		}

		if err := tx.Where("service_id = ? AND paid_at IS NULL", serviceID).Delete(&models.EmployeeAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to clear service assignments: %w", err)
		}

		alloc := commission.AllocateService(svc.Amount.Sub(svc.Discount), assignees)
		if len(inputs) > 0 {
			rows := make([]models.EmployeeAssignment, len(inputs))
			for i, a := range alloc.Allocations {
				id := serviceID
				rows[i] = models.EmployeeAssignment{
					EmployeeID:           a.EmployeeID,
					ServiceID:            &id,
					Role:                 string(commission.RoleService),
					CommissionPercentage: a.Percentage,
					CommissionAmount:     a.Amount,
					Notes:                optionalString(inputs[i].Notes),
				}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to create service assignments: %w", err)
			}
		}

		var all []models.EmployeeAssignment
		if err := tx.Where("service_id = ?", serviceID).Order("id asc").Find(&all).Error; err != nil {
			return err
		}
		total := decimal.Zero
		for _, row := range all {
			total = total.Add(row.CommissionPercentage)
		}
		result.Assignments = all
		result.TotalPercentage = total
		result.OverAllocated = commission.IsOverAllocated(total)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.OverAllocated {
		c.log.Warn().Int64("service_id", serviceID).Str("total_percentage", result.TotalPercentage.String()).Msg("service commission over-allocated")
	}
	c.InvalidateCommissionCaches(ctx)
	return result, nil
}

// RemoveAssignment deletes one unpaid assignment. Setup splits on the invoice are recomputed.
func (c *CommissionHandler) RemoveAssignment(ctx context.Context, id int64) error {
	var employeeID int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.EmployeeAssignment
		if err := tx.First(&row, id).Error; err != nil {
			return apperr.FromDB(err, "assignment", id)
		}
		if row.IsPaid() {
			return apperr.Conflict("assignment %d is already paid", id)
		}
		employeeID = row.EmployeeID

		if err := tx.Delete(&models.EmployeeAssignment{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete assignment: %w", err)
		}
		if row.InvoiceID != nil {
			return c.RecalculateInvoiceTx(tx, *row.InvoiceID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.InvalidateCommissionCaches(ctx, employeeID)
	return nil
}

func (c *CommissionHandler) invoiceAssignments(ctx context.Context, invoiceID int64) ([]models.EmployeeAssignment, error) {
	var rows []models.EmployeeAssignment
	if err := c.db.WithContext(ctx).Preload("Employee").Where("invoice_id = ?", invoiceID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	return rows, nil
}

func (c *CommissionHandler) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]models.EmployeeAssignment, error) {
	query := c.db.WithContext(ctx).Preload("Employee").Model(&models.EmployeeAssignment{})
	if filter.EmployeeID > 0 {
		query = query.Where("employee_id = ?", filter.EmployeeID)
	}
	if filter.InvoiceID > 0 {
		query = query.Where("invoice_id = ? OR service_id IN (?)", filter.InvoiceID,
			c.db.Model(&models.InvoiceService{}).Select("id").Where("invoice_id = ?", filter.InvoiceID))
	}
	if filter.Paid != nil {
		if *filter.Paid {
			query = query.Where("paid_at IS NOT NULL")
		} else {
			query = query.Where("paid_at IS NULL")
		}
	}

	var rows []models.EmployeeAssignment
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return rows, nil
}

func (c *CommissionHandler) EmployeeSummary(ctx context.Context, employeeID int64) (*EmployeeSummary, error) {
	cacheKey := fmt.Sprintf("%s%d", COMMISSION_SUMMARY_CACHE_PREFIX, employeeID)
	if c.redis != nil {
		var cached EmployeeSummary
		if raw, err := c.redis.Get(ctx, cacheKey).Bytes(); err == nil && json.Unmarshal(raw, &cached) == nil {
			return &cached, nil
		}
	}

	var employee models.Employee
	if err := c.db.WithContext(ctx).First(&employee, employeeID).Error; err != nil {
		return nil, apperr.FromDB(err, "employee", employeeID)
	}

	var rows []models.EmployeeAssignment
	if err := c.db.WithContext(ctx).Where("employee_id = ?", employeeID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	summary := &EmployeeSummary{
		EmployeeID:   employee.ID,
		EmployeeName: employee.Name,
		UnpaidTotal:  decimal.Zero,
		PaidTotal:    decimal.Zero,
	}
	for _, row := range rows {
		if row.IsPaid() {
			summary.PaidTotal = summary.PaidTotal.Add(row.CommissionAmount)
			summary.PaidCount++
		} else {
			summary.UnpaidTotal = summary.UnpaidTotal.Add(row.CommissionAmount)
			summary.UnpaidCount++
		}
	}

	if c.redis != nil {
		if payload, err := json.Marshal(summary); err == nil {
			_ = c.redis.Set(ctx, cacheKey, payload, CACHE_TTL_SHORT).Err()
		}
	}
	return summary, nil
}

// MarkEmployeePaid settles every unpaid assignment with a positive amount for one
// employee under a single batch id and timestamp.
func (c *CommissionHandler) MarkEmployeePaid(ctx context.Context, employeeID int64, notes string) (*PaymentBatch, error) {
	batch := &PaymentBatch{
		BatchID:    uuid.NewString(),
		EmployeeID: employeeID,
		PaidAt:     c.now().UTC(),
		Total:      decimal.Zero,
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var employee models.Employee
		if err := tx.First(&employee, employeeID).Error; err != nil {
			return apperr.FromDB(err, "employee", employeeID)
		}

		var rows []models.EmployeeAssignment
		if err := tx.Where("employee_id = ? AND paid_at IS NULL AND commission_amount > 0", employeeID).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load unpaid assignments: %w", err)
		}
		if len(rows) == 0 {
			return apperr.Conflict("employee %d has no unpaid commission", employeeID)
		}

		ids := make([]int64, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
			batch.Total = batch.Total.Add(row.CommissionAmount)
		}
		batch.Count = len(rows)

		updates := map[string]interface{}{
			"paid_at":          batch.PaidAt,
			"payment_batch_id": batch.BatchID,
		}
		if strings.TrimSpace(notes) != "" {
			updates["notes"] = notes
		}
		res := tx.Model(&models.EmployeeAssignment{}).Where("id IN ? AND paid_at IS NULL", ids).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to mark assignments paid: %w", res.Error)
		}
		if res.RowsAffected != int64(len(ids)) {
			return apperr.Conflict("assignments changed while settling employee %d", employeeID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx, employeeID)
	c.log.Info().Int64("employee_id", employeeID).Str("batch_id", batch.BatchID).Int("count", batch.Count).Str("total", batch.Total.StringFixed(2)).Msg("commission batch paid")
	return batch, nil
}

// ListBatches groups settled assignments by batch, newest first.
func (c *CommissionHandler) ListBatches(ctx context.Context, employeeID int64) ([]PaymentBatch, error) {
	var employee models.Employee
	if err := c.db.WithContext(ctx).Select("id").First(&employee, employeeID).Error; err != nil {
		return nil, apperr.FromDB(err, "employee", employeeID)
	}

	var rows []models.EmployeeAssignment
	if err := c.db.WithContext(ctx).Where("employee_id = ? AND paid_at IS NOT NULL", employeeID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load paid assignments: %w", err)
	}

	byID := map[string]*PaymentBatch{}
	for _, row := range rows {
		key := ""
		if row.PaymentBatchID != nil {
			key = *row.PaymentBatchID
		}
		b, ok := byID[key]
		if !ok {
			b = &PaymentBatch{BatchID: key, EmployeeID: employeeID, PaidAt: *row.PaidAt, Total: decimal.Zero}
			byID[key] = b
		}
		b.Count++
		b.Total = b.Total.Add(row.CommissionAmount)
	}

	batches := make([]PaymentBatch, 0, len(byID))
	for _, b := range byID {
		batches = append(batches, *b)
	}
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].PaidAt.Equal(batches[j].PaidAt) {
			return batches[i].BatchID < batches[j].BatchID
		}
		return batches[i].PaidAt.After(batches[j].PaidAt)
	})
	return batches, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
