package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/billing"
	"rentflow-system/internal/database/models"
	commissionhandler "rentflow-system/internal/services/commissions/handler"
	"rentflow-system/internal/utils"
)

const dateLayout = "2006-01-02"

type ItemInput struct {
	EquipmentID *int64       `json:"equipment_id"`
	Description string       `json:"description"`
	Quantity    utils.Number `json:"quantity"`
	Rate        utils.Number `json:"rate"`
	RentalDays  utils.Number `json:"rental_days"`
	Discount    utils.Number `json:"discount"`
	ManualRate  bool         `json:"manual_rate"`
	MatchStatus string       `json:"match_status"`
}

// ServiceInput with an ID updates that service in place on invoice update.
type ServiceInput struct {
	ID       *int64       `json:"id"`
	Name     string       `json:"name"`
	Amount   utils.Number `json:"amount"`
	Discount utils.Number `json:"discount"`
}

type InvoiceRequest struct {
	CustomerID        int64                                    `json:"customer_id"`
	TemplateID        *int64                                   `json:"template_id"`
	RentalStartDate   string                                   `json:"rental_start_date"`
	RentalDays        utils.Number                             `json:"rental_days"`
	Items             []ItemInput                              `json:"items"`
	Services          []ServiceInput                           `json:"services"`
	TransportAmount   utils.Number                             `json:"transport_amount"`
	TransportDiscount utils.Number                             `json:"transport_discount"`
	TaxAmount         utils.Number                             `json:"tax_amount"`
	Status            string                                   `json:"status"`
	Notes             string                                   `json:"notes"`
	Assignments       []commissionhandler.InvoiceAssigneeInput `json:"assignments"`

	// Source is set by callers, never bound from a request body.
	Source string `json:"-"`
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// checkAmount validates an optional non-negative money field.
func checkAmount(v *apperr.ValidationError, field string, n utils.Number) {
	if !n.Provided() {
		return
	}
	if !n.IsSet() {
		v.Add(field, "must be a number")
		return
	}
	if n.Decimal().IsNegative() {
		v.Add(field, "must not be negative")
	}
}

// checkCount validates an optional whole number between one and utils.MaxCount.
func checkCount(v *apperr.ValidationError, field string, n utils.Number) {
	if !n.Provided() {
		return
	}
	if !n.IsSet() {
		v.Add(field, "must be a number")
		return
	}
	d := n.Decimal()
	switch {
	case !d.Equal(d.Truncate(0)) || d.LessThan(decimal.NewFromInt(1)):
		v.Add(field, "must be a whole number of at least 1")
	case d.GreaterThan(decimal.NewFromInt(utils.MaxCount)):
		v.Add(field, "is too large")
	}
}

// validate checks the request shape. preview skips the fields only needed to persist.
func (r InvoiceRequest) validate(preview bool) error {
	v := &apperr.ValidationError{}

	if !preview {
		if r.CustomerID <= 0 {
			v.Add("customer_id", "is required")
		}
		if strings.TrimSpace(r.RentalStartDate) == "" {
			v.Add("rental_start_date", "is required")
		} else if _, err := parseDate(r.RentalStartDate); err != nil {
			v.Add("rental_start_date", "must be a date in YYYY-MM-DD format")
		}
		if r.Status != "" {
			if _, err := billing.ParseStatus(r.Status); err != nil {
				v.Add("status", "must be one of draft, unpaid, paid, cancelled")
			}
		}
	}
	checkCount(v, "rental_days", r.RentalDays)
	checkAmount(v, "transport_amount", r.TransportAmount)
	checkAmount(v, "transport_discount", r.TransportDiscount)
	checkAmount(v, "tax_amount", r.TaxAmount)

	for i, it := range r.Items {
		field := fmt.Sprintf("items[%d]", i)
		if it.EquipmentID == nil && strings.TrimSpace(it.Description) == "" {
			v.Add(field+".description", "is required without equipment_id")
		}
		checkCount(v, field+".quantity", it.Quantity)
		checkCount(v, field+".rental_days", it.RentalDays)
		checkAmount(v, field+".rate", it.Rate)
		checkAmount(v, field+".discount", it.Discount)
		switch it.MatchStatus {
		case "", models.MatchStatusManual, models.MatchStatusMatched, models.MatchStatusNoMatch:
		default:
			v.Add(field+".match_status", "must be manual, matched or no_match")
		}
	}

	for i, s := range r.Services {
		field := fmt.Sprintf("services[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			v.Add(field+".name", "is required")
		}
		if !s.Amount.Provided() {
			v.Add(field+".amount", "is required")
		} else {
			checkAmount(v, field+".amount", s.Amount)
		}
		checkAmount(v, field+".discount", s.Discount)
	}

	return v.OrNil()
}

func money(n utils.Number) decimal.Decimal {
	return n.Decimal().Round(2)
}
