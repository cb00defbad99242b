package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"
)

// Coverage is one laboratory's contribution inside a combination:
// the lines it wins, the revenue behind them, and the rebate.
type Coverage struct {
	LaboratoryId   int             `json:"laboratory_id"`
	LaboratoryName string          `json:"laboratory_name"`
	Lines          int             `json:"lines"`
	Amount         decimal.Decimal `json:"amount"`
	Rebate         decimal.Decimal `json:"rebate"`
	CoveragePct    decimal.Decimal `json:"coverage_pct"`
}

// ComboStep records why a laboratory entered the combination.
type ComboStep struct {
	LaboratoryId     int             `json:"laboratory_id"`
	IncrementalGain  decimal.Decimal `json:"incremental_gain"`
	CumulativeRebate decimal.Decimal `json:"cumulative_rebate"`
	CumulativePct    decimal.Decimal `json:"cumulative_pct"`
}

type ComboResult struct {
	Labs        []int           `json:"labs"`
	PerLab      []Coverage      `json:"per_lab"`
	Steps       []ComboStep     `json:"steps"`
	TotalRebate decimal.Decimal `json:"total_rebate"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CoveragePct decimal.Decimal `json:"coverage_pct"`
}

// FindBestCombo grows a set of laboratories greedily: start from the
// primary laboratory (or the best solo one when primaryLabId is zero)
// and keep adding whichever laboratory raises the total rebate the
// most, until no laboratory adds anything or maxLabs is reached.
// Inside a set every line goes to the member that pays the best gain,
// so the result never beats the exact optimizer but is immediate.
func FindBestCombo(p *Problem, primaryLabId, maxLabs int) *ComboResult {
	result := &ComboResult{
		TotalRebate: decimal.Zero,
		TotalAmount: decimal.Zero,
		CoveragePct: decimal.Zero,
	}
	if len(p.Lines) == 0 || len(p.Labs) == 0 {
		return result
	}
	if maxLabs <= 0 {
		maxLabs = len(p.Labs)
	}

	remaining := map[int]bool{}
	for labId := range p.Labs {
		remaining[labId] = true
	}

	var selected []int
	if primaryLabId != 0 && remaining[primaryLabId] {
		selected = append(selected, primaryLabId)
		delete(remaining, primaryLabId)
	} else {
		best, rebate := 0, decimal.Zero
		for _, labId := range sortedLabIds(remaining) {
			_, _, _, labRebate := evalSet(p, []int{labId})
			if best == 0 || labRebate.GreaterThan(rebate) {
				best, rebate = labId, labRebate
			}
		}
		if best == 0 {
			return result
		}
		selected = append(selected, best)
		delete(remaining, best)
	}

	_, _, currentAmount, currentRebate := evalSet(p, selected)
	result.Steps = append(result.Steps, ComboStep{
		LaboratoryId:     selected[0],
		IncrementalGain:  currentRebate,
		CumulativeRebate: currentRebate,
		CumulativePct:    coveragePct(p, currentAmount),
	})

	for len(selected) < maxLabs && len(remaining) > 0 {
		bestLab, bestRebate, bestAmount := 0, currentRebate, currentAmount
		for _, labId := range sortedLabIds(remaining) {
			_, _, amount, rebate := evalSet(p, append(selected, labId))
			if rebate.GreaterThan(bestRebate) {
				bestLab, bestRebate, bestAmount = labId, rebate, amount
			}
		}
		if bestLab == 0 {
			break
		}
		selected = append(selected, bestLab)
		delete(remaining, bestLab)
		result.Steps = append(result.Steps, ComboStep{
			LaboratoryId:     bestLab,
			IncrementalGain:  bestRebate.Sub(currentRebate),
			CumulativeRebate: bestRebate,
			CumulativePct:    coveragePct(p, bestAmount),
		})
		currentRebate, currentAmount = bestRebate, bestAmount
	}

	perLab, covered, amount, rebate := evalSet(p, selected)
	result.Labs = selected
	result.PerLab = perLab
	result.TotalRebate = rebate
	result.TotalAmount = amount
	result.CoveragePct = coveragePct(p, covered)
	return result
}

// CompareSoloLabs evaluates every laboratory alone, best rebate first.
func CompareSoloLabs(p *Problem) []Coverage {
	all := map[int]bool{}
	for labId := range p.Labs {
		all[labId] = true
	}
	var coverages []Coverage
	for _, labId := range sortedLabIds(all) {
		perLab, _, _, _ := evalSet(p, []int{labId})
		if len(perLab) == 1 {
			coverages = append(coverages, perLab[0])
		} else {
			coverages = append(coverages, Coverage{
				LaboratoryId:   labId,
				LaboratoryName: p.Labs[labId].Name,
				Amount:         decimal.Zero,
				Rebate:         decimal.Zero,
				CoveragePct:    decimal.Zero,
			})
		}
	}
	sort.SliceStable(coverages, func(a, b int) bool {
		return coverages[a].Rebate.GreaterThan(coverages[b].Rebate)
	})
	return coverages
}

// ComplementarityMatrix returns the total rebate of every laboratory
// pair, diagonal entries being the solo rebates. A pair well above
// both diagonals covers different parts of the history and combines
// well. The row and column order is the returned slice.
func ComplementarityMatrix(p *Problem) ([]int, *mat.Dense) {
	all := map[int]bool{}
	for labId := range p.Labs {
		all[labId] = true
	}
	labIds := sortedLabIds(all)
	if len(labIds) == 0 {
		return nil, nil
	}

	m := mat.NewDense(len(labIds), len(labIds), nil)
	for i, a := range labIds {
		for j, b := range labIds {
			set := []int{a}
			if a != b {
				set = append(set, b)
			}
			_, _, _, rebate := evalSet(p, set)
			value, _ := rebate.Float64()
			m.Set(i, j, value)
		}
	}
	return labIds, m
}

// evalSet assigns every line to the set member with the best gain and
// returns the per-laboratory coverages, the covered historical amount,
// the assigned revenue, and the total rebate.
func evalSet(p *Problem, labIds []int) (perLab []Coverage, covered, amount, rebate decimal.Decimal) {
	covered, amount, rebate = decimal.Zero, decimal.Zero, decimal.Zero
	byLab := map[int]*Coverage{}
	coveredByLab := map[int]decimal.Decimal{}

	for _, line := range p.Lines {
		bestLab := 0
		bestAmount, bestGain := decimal.Zero, decimal.Zero
		for _, labId := range labIds {
			lineAmount, gain, ok := p.Gain(line, labId)
			if !ok {
				continue
			}
			if bestLab == 0 || gain.GreaterThan(bestGain) {
				bestLab, bestAmount, bestGain = labId, lineAmount, gain
			}
		}
		if bestLab == 0 {
			continue
		}

		coverage := byLab[bestLab]
		if coverage == nil {
			coverage = &Coverage{
				LaboratoryId:   bestLab,
				LaboratoryName: p.Labs[bestLab].Name,
				Amount:         decimal.Zero,
				Rebate:         decimal.Zero,
			}
			byLab[bestLab] = coverage
		}
		coverage.Lines++
		coverage.Amount = coverage.Amount.Add(bestAmount)
		coverage.Rebate = coverage.Rebate.Add(bestGain)
		coveredByLab[bestLab] = coveredByLab[bestLab].Add(line.AnnualAmount)
		covered = covered.Add(line.AnnualAmount)
		amount = amount.Add(bestAmount)
		rebate = rebate.Add(bestGain)
	}

	for _, labId := range labIds {
		if coverage, found := byLab[labId]; found {
			coverage.CoveragePct = coveragePct(p, coveredByLab[labId])
			perLab = append(perLab, *coverage)
		}
	}
	return perLab, covered, amount, rebate
}

func coveragePct(p *Problem, covered decimal.Decimal) decimal.Decimal {
	total := p.TotalAnnualAmount()
	if !total.IsPositive() {
		return decimal.Zero
	}
	return covered.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
}

func sortedLabIds(set map[int]bool) []int {
	ids := make([]int, 0, len(set))
	for labId := range set {
		ids = append(ids, labId)
	}
	sort.Ints(ids)
	return ids
}
