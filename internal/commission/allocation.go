// Package commission derives per-employee commission from assignment roles and base amounts.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"rentflow-system/internal/apperr"
)

type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleSetup     Role = "setup"
	RoleService   Role = "service"
)

var hundred = decimal.NewFromInt(100)

// Policy holds the invoice-level role rates, in percent.
type Policy struct {
	OrganizerPercent decimal.Decimal
	SetupPoolPercent decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		OrganizerPercent: decimal.NewFromInt(5),
		SetupPoolPercent: decimal.NewFromInt(30),
	}
}

func ParseInvoiceRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOrganizer, RoleSetup:
		return r, nil
	default:
		return "", fmt.Errorf("role %q: %w", s, apperr.ErrInvalidInput)
	}
}

type Allocation struct {
	EmployeeID int64           `json:"employee_id"`
	Role       Role            `json:"role"`
	Percentage decimal.Decimal `json:"commission_percentage"`
	Amount     decimal.Decimal `json:"commission_amount"`
}

// Amount is base * percentage / 100 rounded to cents.
func Amount(base, percentage decimal.Decimal) decimal.Decimal {
	return base.Mul(percentage).Div(hundred).Round(2)
}

type RoleAssignee struct {
	EmployeeID int64
	Role       Role
}

// RolePercentage is the share one assignee of role earns when setupCount setup
// assignees are on the same invoice. Organizers are not pooled.
func (p Policy) RolePercentage(role Role, setupCount int) decimal.Decimal {
	switch role {
	case RoleOrganizer:
		return p.OrganizerPercent
	case RoleSetup:
		if setupCount <= 0 {
			return decimal.Zero
		}
		return p.SetupPoolPercent.Div(decimal.NewFromInt(int64(setupCount)))
	default:
		return decimal.Zero
	}
}

// AllocateInvoice computes role-based allocations against an invoice total.
func (p Policy) AllocateInvoice(base decimal.Decimal, assignees []RoleAssignee) []Allocation {
	setupCount := CountRole(assignees, RoleSetup)

	out := make([]Allocation, 0, len(assignees))
	for _, a := range assignees {
		pct := p.RolePercentage(a.Role, setupCount)
		out = append(out, Allocation{
			EmployeeID: a.EmployeeID,
			Role:       a.Role,
			Percentage: pct.Round(4),
			Amount:     Amount(base, pct),
		})
	}
	return out
}

func CountRole(assignees []RoleAssignee, role Role) int {
	n := 0
	for _, a := range assignees {
		if a.Role == role {
			n++
		}
	}
	return n
}

type ServiceAssignee struct {
	EmployeeID int64
	Percentage decimal.Decimal
}

type ServiceAllocation struct {
	Allocations     []Allocation    `json:"allocations"`
	TotalPercentage decimal.Decimal `json:"total_percentage"`
	OverAllocated   bool            `json:"over_allocated"`
}

// AllocateService applies each assignee's own percentage to the service net amount.
// Totals above 100 percent are reported, not rejected.
func AllocateService(base decimal.Decimal, assignees []ServiceAssignee) ServiceAllocation {
	res := ServiceAllocation{
		Allocations:     make([]Allocation, 0, len(assignees)),
		TotalPercentage: decimal.Zero,
	}
	for _, a := range assignees {
		res.Allocations = append(res.Allocations, Allocation{
			EmployeeID: a.EmployeeID,
			Role:       RoleService,
			Percentage: a.Percentage.Round(4),
			Amount:     Amount(base, a.Percentage),
		})
		res.TotalPercentage = res.TotalPercentage.Add(a.Percentage)
	}
	res.OverAllocated = IsOverAllocated(res.TotalPercentage)
	return res
}

func IsOverAllocated(totalPercentage decimal.Decimal) bool {
	return totalPercentage.GreaterThan(hundred)
}
