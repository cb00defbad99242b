package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmdata/remisia_backend/models"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

// twoLabProblem mirrors a small purchase history: line 1 only matches
// laboratory 1, line 2 only laboratory 2, line 3 nobody.
func twoLabProblem() *Problem {
	return &Problem{
		Lines: []models.SaleLine{
			{ID: 1, AnnualQty: 100, AnnualAmount: dec("210")},
			{ID: 2, AnnualQty: 50, AnnualAmount: dec("190")},
			{ID: 3, AnnualQty: 30, AnnualAmount: dec("100")},
		},
		Matches: map[MatchKey]LineMatch{
			{SaleLineId: 1, LaboratoryId: 1}: {ProductId: 10, UnitPriceHT: dec("2.00"), LineDiscountPct: dec("20")},
			{SaleLineId: 2, LaboratoryId: 2}: {ProductId: 20, UnitPriceHT: dec("4.00"), LineDiscountPct: dec("40")},
		},
		Labs: map[int]models.Laboratory{
			1: {ID: 1, Name: "Alpha Pharma", NegotiatedRebatePct: dec("30")},
			2: {ID: 2, Name: "Beta Sante", NegotiatedRebatePct: dec("25")},
		},
	}
}

func TestSolveZeroObjectives(t *testing.T) {
	result := Solve(context.Background(), twoLabProblem(), nil, time.Minute)

	require.Equal(t, StatusOptimal, result.Status)
	require.Len(t, result.Assignments, 2)

	// line 1: 100 x 2.00 at max(20, 30)% = 60
	// line 2: 50 x 4.00 at max(40, 25)% = 80
	assert.True(t, result.TotalRebate.Equal(dec("140")), "total rebate = %s", result.TotalRebate)
	assert.True(t, result.TotalAmount.Equal(dec("400")), "total amount = %s", result.TotalAmount)

	// covered 400 of 500 historical euros
	assert.True(t, result.CoveragePct.Equal(dec("80")), "coverage = %s", result.CoveragePct)

	byLine := map[int]Assignment{}
	for _, a := range result.Assignments {
		byLine[a.SaleLineId] = a
	}
	assert.Equal(t, 1, byLine[1].LaboratoryId)
	assert.True(t, byLine[1].EffectiveDiscountPct.Equal(dec("30")))
	assert.Equal(t, 2, byLine[2].LaboratoryId)
	assert.True(t, byLine[2].EffectiveDiscountPct.Equal(dec("40")))
	_, assigned := byLine[3]
	assert.False(t, assigned, "unmatched line must stay unassigned")

	for _, alloc := range result.ByLab {
		assert.True(t, alloc.ObjectiveMet)
	}
}

func TestSolveAtMostOneLabPerLine(t *testing.T) {
	p := twoLabProblem()
	// line 1 now also matches laboratory 2, at a better price but a
	// lower effective discount
	p.Matches[MatchKey{SaleLineId: 1, LaboratoryId: 2}] = LineMatch{
		ProductId: 11, UnitPriceHT: dec("1.90"), LineDiscountPct: dec("10"),
	}

	result := Solve(context.Background(), p, nil, time.Minute)
	require.Equal(t, StatusOptimal, result.Status)

	seen := map[int]int{}
	for _, a := range result.Assignments {
		seen[a.SaleLineId]++
	}
	for lineId, count := range seen {
		assert.Equalf(t, 1, count, "line %d assigned %d times", lineId, count)
	}
	// 60 at lab 1 beats 1.90x100x25% = 47.50 at lab 2
	byLine := map[int]Assignment{}
	for _, a := range result.Assignments {
		byLine[a.SaleLineId] = a
	}
	assert.Equal(t, 1, byLine[1].LaboratoryId)
}

func TestSolveObjectiveDivertsLine(t *testing.T) {
	p := &Problem{
		Lines: []models.SaleLine{
			{ID: 1, AnnualQty: 10, AnnualAmount: dec("100")},
		},
		Matches: map[MatchKey]LineMatch{
			{SaleLineId: 1, LaboratoryId: 1}: {ProductId: 10, UnitPriceHT: dec("10"), LineDiscountPct: dec("0")},
			{SaleLineId: 1, LaboratoryId: 2}: {ProductId: 20, UnitPriceHT: dec("10"), LineDiscountPct: dec("0")},
		},
		Labs: map[int]models.Laboratory{
			1: {ID: 1, Name: "Alpha Pharma", NegotiatedRebatePct: dec("30")},
			2: {ID: 2, Name: "Beta Sante", NegotiatedRebatePct: dec("20")},
		},
	}
	amount := dec("100")
	objectives := []*Objective{{LaboratoryId: 2, TargetAmount: &amount}}

	result := Solve(context.Background(), p, objectives, time.Minute)
	require.Equal(t, StatusOptimal, result.Status)
	require.Len(t, result.Assignments, 1)

	// laboratory 1 pays more, but only laboratory 2 can reach its
	// minimum revenue
	assert.Equal(t, 2, result.Assignments[0].LaboratoryId)
	assert.True(t, result.ByLab[2].ObjectiveMet)
}

func TestSolvePctObjective(t *testing.T) {
	p := twoLabProblem()
	pct := 100.0
	objectives := []*Objective{{LaboratoryId: 1, TargetPct: &pct}}

	result := Solve(context.Background(), p, objectives, time.Minute)
	require.Equal(t, StatusOptimal, result.Status)

	// potential of laboratory 1 is line 1 alone: 200
	require.NotNil(t, result.ByLab[1])
	assert.True(t, result.ByLab[1].Minimum.Equal(dec("200")), "minimum = %s", result.ByLab[1].Minimum)
	assert.True(t, result.ByLab[1].ObjectiveMet)
}

func TestSolveInfeasible(t *testing.T) {
	p := twoLabProblem()
	amount := dec("10000")
	objectives := []*Objective{{LaboratoryId: 1, TargetAmount: &amount}}

	result := Solve(context.Background(), p, objectives, time.Minute)
	assert.Equal(t, StatusInfeasible, result.Status)
	assert.Empty(t, result.Assignments, "infeasible problems carry no plan")
	assert.True(t, result.TotalRebate.IsZero())
}

func TestSolveNoData(t *testing.T) {
	p := &Problem{Matches: map[MatchKey]LineMatch{}, Labs: map[int]models.Laboratory{}}
	result := Solve(context.Background(), p, nil, time.Minute)
	assert.Equal(t, StatusNoData, result.Status)
}

func TestSolveExclusionsRemoveVariables(t *testing.T) {
	p := twoLabProblem()
	objectives := []*Objective{{LaboratoryId: 1, Exclusions: []int{10}}}

	result := Solve(context.Background(), p, objectives, time.Minute)
	require.Equal(t, StatusOptimal, result.Status)
	for _, a := range result.Assignments {
		assert.NotEqual(t, 10, a.ProductId, "excluded product was assigned")
	}
}

// threeLabProblem has overlapping matches so greedy choices can be
// suboptimal.
func threeLabProblem() *Problem {
	labs := map[int]models.Laboratory{
		1: {ID: 1, Name: "Alpha Pharma", NegotiatedRebatePct: dec("30")},
		2: {ID: 2, Name: "Beta Sante", NegotiatedRebatePct: dec("25")},
		3: {ID: 3, Name: "Gamma Labo", NegotiatedRebatePct: dec("35")},
	}
	lines := []models.SaleLine{
		{ID: 1, AnnualQty: 40, AnnualAmount: dec("120")},
		{ID: 2, AnnualQty: 25, AnnualAmount: dec("300")},
		{ID: 3, AnnualQty: 60, AnnualAmount: dec("90")},
		{ID: 4, AnnualQty: 10, AnnualAmount: dec("500")},
	}
	matches := map[MatchKey]LineMatch{
		{SaleLineId: 1, LaboratoryId: 1}: {ProductId: 101, UnitPriceHT: dec("3.00"), LineDiscountPct: dec("10")},
		{SaleLineId: 1, LaboratoryId: 2}: {ProductId: 102, UnitPriceHT: dec("2.80"), LineDiscountPct: dec("45")},
		{SaleLineId: 2, LaboratoryId: 2}: {ProductId: 202, UnitPriceHT: dec("12.00"), LineDiscountPct: dec("20")},
		{SaleLineId: 2, LaboratoryId: 3}: {ProductId: 203, UnitPriceHT: dec("11.50"), LineDiscountPct: dec("0")},
		{SaleLineId: 3, LaboratoryId: 1}: {ProductId: 301, UnitPriceHT: dec("1.50"), LineDiscountPct: dec("0")},
		{SaleLineId: 4, LaboratoryId: 3}: {ProductId: 403, UnitPriceHT: dec("48.00"), LineDiscountPct: dec("15")},
	}
	return &Problem{Lines: lines, Matches: matches, Labs: labs}
}

func TestSolveNeverBelowGreedyCombo(t *testing.T) {
	p := threeLabProblem()

	optimal := Solve(context.Background(), p, nil, time.Minute)
	require.Equal(t, StatusOptimal, optimal.Status)

	for maxLabs := 1; maxLabs <= 3; maxLabs++ {
		combo := FindBestCombo(p, 0, maxLabs)
		assert.Truef(t, optimal.TotalRebate.GreaterThanOrEqual(combo.TotalRebate),
			"optimizer %s below combo %s with %d labs",
			optimal.TotalRebate, combo.TotalRebate, maxLabs)
	}
}
