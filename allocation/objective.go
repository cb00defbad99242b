package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/pharmdata/remisia_backend/utils"
)

// Objective is one laboratory's minimum-commitment constraint: either
// a fixed amount or a percentage of that laboratory's reachable
// potential. Excluded product ids never enter the model for this
// laboratory.
type Objective struct {
	LaboratoryId   int              `json:"laboratory_id"`
	LaboratoryName string           `json:"laboratory_name"`
	TargetPct      *float64         `json:"target_pct"`
	TargetAmount   *decimal.Decimal `json:"target_amount"`
	Exclusions     []int            `json:"exclusions"`

	// Potential is computed from the problem before solving: the sum
	// of amounts of all lines matched to this laboratory after
	// exclusions, ignoring the one-lab-per-line cap.
	Potential decimal.Decimal `json:"potential"`
}

// NewObjective is the validated input shape for one objective.
type NewObjective struct {
	LaboratoryId int              `json:"laboratory_id" validate:"required"`
	TargetPct    *float64         `json:"target_pct" validate:"omitempty,gte=0,lte=100"`
	TargetAmount *decimal.Decimal `json:"target_amount"`
	Exclusions   []int            `json:"exclusions"`
}

func (input *NewObjective) Validate() error {
	return utils.ValidateStruct(input)
}

func (input *NewObjective) ToObjective() *Objective {
	return &Objective{
		LaboratoryId: input.LaboratoryId,
		TargetPct:    input.TargetPct,
		TargetAmount: input.TargetAmount,
		Exclusions:   input.Exclusions,
	}
}

// Minimum resolves the objective to a concrete amount. A fixed amount
// wins over a percentage; with neither set the minimum is zero.
func (o *Objective) Minimum() decimal.Decimal {
	if o.TargetAmount != nil {
		return *o.TargetAmount
	}
	if o.TargetPct != nil && o.Potential.IsPositive() {
		return utils.PercentOf(o.Potential, decimal.NewFromFloat(*o.TargetPct))
	}
	return decimal.Zero
}

func (o *Objective) excludes(productId int) bool {
	return utils.Contains(o.Exclusions, productId)
}

// ComputePotentials fills each objective's potential from the problem
// and returns the per-laboratory values.
func ComputePotentials(p *Problem, objectives []*Objective) map[int]decimal.Decimal {
	potentials := make(map[int]decimal.Decimal, len(objectives))
	for _, obj := range objectives {
		potentials[obj.LaboratoryId] = decimal.Zero
	}

	for _, line := range p.Lines {
		if line.AnnualQty <= 0 {
			continue
		}
		for _, obj := range objectives {
			match, found := p.Matches[MatchKey{SaleLineId: line.ID, LaboratoryId: obj.LaboratoryId}]
			if !found || match.ProductId == 0 || obj.excludes(match.ProductId) {
				continue
			}
			amount, _, ok := p.Gain(line, obj.LaboratoryId)
			if !ok {
				continue
			}
			potentials[obj.LaboratoryId] = potentials[obj.LaboratoryId].Add(amount)
		}
	}

	for _, obj := range objectives {
		obj.Potential = potentials[obj.LaboratoryId]
	}
	return potentials
}
