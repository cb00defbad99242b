package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/pharmdata/remisia_backend/models"
	"github.com/pharmdata/remisia_backend/utils"
)

// MatchKey identifies one (sale line, laboratory) pair.
type MatchKey struct {
	SaleLineId   int
	LaboratoryId int
}

// LineMatch is the matched product behind one (line, laboratory) pair.
// Pairs without an entry were never evaluated or found unmatched; they
// never become decision variables.
type LineMatch struct {
	ProductId       int
	UnitPriceHT     decimal.Decimal
	LineDiscountPct decimal.Decimal
}

// Problem is the shared input of the optimizer and the combo
// heuristic: the sale lines, the per-pair matches, and the candidate
// laboratories with their negotiated rebates.
type Problem struct {
	Lines   []models.SaleLine
	Matches map[MatchKey]LineMatch
	Labs    map[int]models.Laboratory
}

// Gain returns the revenue and rebate gain of buying a line at a
// laboratory: amount = unit price x quantity, gain = amount x
// effective discount, effective discount = max(line discount,
// negotiated rebate).
func (p *Problem) Gain(line models.SaleLine, labId int) (amount, gain decimal.Decimal, ok bool) {
	match, found := p.Matches[MatchKey{SaleLineId: line.ID, LaboratoryId: labId}]
	if !found || match.ProductId == 0 || line.AnnualQty <= 0 {
		return decimal.Zero, decimal.Zero, false
	}
	lab, found := p.Labs[labId]
	if !found {
		return decimal.Zero, decimal.Zero, false
	}

	amount = match.UnitPriceHT.Mul(decimal.NewFromInt(int64(line.AnnualQty)))
	effective := utils.DecimalMax(match.LineDiscountPct, lab.NegotiatedRebatePct)
	gain = utils.PercentOf(amount, effective)
	return amount, gain, true
}

// EffectiveDiscountPct is the discount percentage actually applied to
// a (line, laboratory) assignment.
func (p *Problem) EffectiveDiscountPct(labId int, match LineMatch) decimal.Decimal {
	lab, found := p.Labs[labId]
	if !found {
		return match.LineDiscountPct
	}
	return utils.DecimalMax(match.LineDiscountPct, lab.NegotiatedRebatePct)
}

// TotalAnnualAmount is the historical purchase amount over all lines,
// the denominator of every coverage percentage.
func (p *Problem) TotalAnnualAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range p.Lines {
		total = total.Add(line.AnnualAmount)
	}
	return total
}
