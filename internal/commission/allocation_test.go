package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAllocateInvoiceOrganizersAndSingleSetup(t *testing.T) {
	allocs := DefaultPolicy().AllocateInvoice(d("1000.00"), []RoleAssignee{
		{EmployeeID: 1, Role: RoleOrganizer},
		{EmployeeID: 2, Role: RoleOrganizer},
		{EmployeeID: 3, Role: RoleSetup},
	})
	require.Len(t, allocs, 3)

	assert.True(t, d("5").Equal(allocs[0].Percentage))
	assert.True(t, d("50").Equal(allocs[0].Amount))
	assert.True(t, d("5").Equal(allocs[1].Percentage))
	assert.True(t, d("50").Equal(allocs[1].Amount))
	assert.True(t, d("30").Equal(allocs[2].Percentage))
	assert.True(t, d("300").Equal(allocs[2].Amount))
}

func TestAllocateInvoiceSetupPoolSplit(t *testing.T) {
	allocs := DefaultPolicy().AllocateInvoice(d("500"), []RoleAssignee{
		{EmployeeID: 1, Role: RoleSetup},
		{EmployeeID: 2, Role: RoleSetup},
	})
	for _, a := range allocs {
		assert.True(t, d("15").Equal(a.Percentage))
		assert.True(t, d("75").Equal(a.Amount))
	}
}

func TestAllocateInvoiceUnevenPool(t *testing.T) {
	allocs := DefaultPolicy().AllocateInvoice(d("100"), []RoleAssignee{
		{EmployeeID: 1, Role: RoleSetup},
		{EmployeeID: 2, Role: RoleSetup},
		{EmployeeID: 3, Role: RoleSetup},
		{EmployeeID: 4, Role: RoleSetup},
		{EmployeeID: 5, Role: RoleSetup},
		{EmployeeID: 6, Role: RoleSetup},
		{EmployeeID: 7, Role: RoleSetup},
	})
	assert.True(t, d("4.2857").Equal(allocs[0].Percentage))
	assert.True(t, d("4.29").Equal(allocs[0].Amount))
}

func TestCustomPolicy(t *testing.T) {
	p := Policy{OrganizerPercent: d("7.5"), SetupPoolPercent: d("20")}
	allocs := p.AllocateInvoice(d("200"), []RoleAssignee{
		{EmployeeID: 1, Role: RoleOrganizer},
		{EmployeeID: 2, Role: RoleSetup},
	})
	assert.True(t, d("15").Equal(allocs[0].Amount))
	assert.True(t, d("40").Equal(allocs[1].Amount))
}

func TestAllocateServiceOverAllocated(t *testing.T) {
	res := AllocateService(d("200"), []ServiceAssignee{
		{EmployeeID: 1, Percentage: d("100")},
		{EmployeeID: 2, Percentage: d("50")},
	})
	assert.True(t, d("150").Equal(res.TotalPercentage))
	assert.True(t, res.OverAllocated)
	assert.True(t, d("200").Equal(res.Allocations[0].Amount))
	assert.True(t, d("100").Equal(res.Allocations[1].Amount))
	assert.Equal(t, RoleService, res.Allocations[1].Role)
}

func TestAllocateServiceExactlyHundred(t *testing.T) {
	res := AllocateService(d("80"), []ServiceAssignee{
		{EmployeeID: 1, Percentage: d("60")},
		{EmployeeID: 2, Percentage: d("40")},
	})
	assert.False(t, res.OverAllocated)

	empty := AllocateService(d("80"), nil)
	assert.True(t, empty.TotalPercentage.IsZero())
	assert.Empty(t, empty.Allocations)
}

func TestParseInvoiceRole(t *testing.T) {
	r, err := ParseInvoiceRole("setup")
	require.NoError(t, err)
	assert.Equal(t, RoleSetup, r)

	_, err = ParseInvoiceRole("service")
	assert.Error(t, err)
}
