// Package billing holds the invoice arithmetic. Every total that is stored,
// rendered or audited is produced here.
package billing

import (
	"github.com/shopspring/decimal"

	"rentflow-system/internal/utils"
)

// Tolerance is the largest stored/recomputed total difference still considered consistent.
var Tolerance = decimal.New(1, -2)

type ServiceCharge struct {
	Name     string       `json:"name"`
	Amount   utils.Number `json:"amount"`
	Discount utils.Number `json:"discount"`
}

// Net is amount minus discount. Neither side is clamped.
func (s ServiceCharge) Net() decimal.Decimal {
	return s.Amount.Decimal().Sub(s.Discount.Decimal())
}

type TotalsInput struct {
	EquipmentSubtotal utils.Number    `json:"equipment_subtotal"`
	TransportAmount   utils.Number    `json:"transport_amount"`
	TransportDiscount utils.Number    `json:"transport_discount"`
	VATAmount         utils.Number    `json:"vat_amount"`
	Services          []ServiceCharge `json:"services"`
}

type Totals struct {
	EquipmentSubtotal decimal.Decimal `json:"equipment_subtotal"`
	TransportAmount   decimal.Decimal `json:"transport_amount"`
	TransportDiscount decimal.Decimal `json:"transport_discount"`
	ServicesTotal     decimal.Decimal `json:"services_total"`
	InvoiceSubtotal   decimal.Decimal `json:"invoice_subtotal"`
	VATAmount         decimal.Decimal `json:"vat_amount"`
	TotalDue          decimal.Decimal `json:"total_due"`
}

// CalculateServicesTotal sums amount minus discount over every service.
func CalculateServicesTotal(services []ServiceCharge) decimal.Decimal {
	total := decimal.Zero
	for _, s := range services {
		total = total.Add(s.Net())
	}
	return total
}

func CalculateInvoiceTotals(in TotalsInput) Totals {
	t := Totals{
		EquipmentSubtotal: in.EquipmentSubtotal.Decimal(),
		TransportAmount:   in.TransportAmount.Decimal(),
		TransportDiscount: in.TransportDiscount.Decimal(),
		ServicesTotal:     CalculateServicesTotal(in.Services),
		VATAmount:         in.VATAmount.Decimal(),
	}
	t.InvoiceSubtotal = t.EquipmentSubtotal.
		Add(t.TransportAmount).
		Sub(t.TransportDiscount).
		Add(t.ServicesTotal)
	t.TotalDue = t.InvoiceSubtotal.Add(t.VATAmount)
	return t
}

// ValidateInvoiceCalculations recomputes the totals and reports whether the stored
// total due is within Tolerance. It is advisory; callers decide what a mismatch means.
func ValidateInvoiceCalculations(in TotalsInput, storedTotalDue utils.Number) bool {
	recomputed := CalculateInvoiceTotals(in).TotalDue
	return recomputed.Sub(storedTotalDue.Decimal()).Abs().LessThan(Tolerance)
}

type LineItemInput struct {
	Quantity utils.Number `json:"quantity"`
	Rate     utils.Number `json:"rate"`
	Days     utils.Number `json:"days"`
	Discount utils.Number `json:"discount"`
}

// CalculateLineTotal is quantity * rate * days - discount. Quantity and days
// fall back to 1, rate and discount to 0.
func CalculateLineTotal(in LineItemInput) decimal.Decimal {
	one := decimal.NewFromInt(1)
	qty := in.Quantity.Or(one)
	days := in.Days.Or(one)
	return qty.Mul(in.Rate.Decimal()).Mul(days).Sub(in.Discount.Decimal())
}

// CalculateEquipmentSubtotal sums the line totals.
func CalculateEquipmentSubtotal(items []LineItemInput) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(CalculateLineTotal(it))
	}
	return total
}
