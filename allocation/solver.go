package allocation

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	StatusOptimal    = "OPTIMAL"
	StatusFeasible   = "FEASIBLE"
	StatusInfeasible = "INFEASIBLE"
	StatusUnbounded  = "UNBOUNDED"
	StatusTimeout    = "TIMEOUT"
	StatusNoData     = "NO_DATA"
)

// DefaultTimeLimit bounds the exact search. Past it the best incumbent
// found so far is returned as FEASIBLE.
const DefaultTimeLimit = 30 * time.Second

var allocationTracer = otel.Tracer("github.com/pharmdata/remisia_backend/allocation")

// Assignment is one line routed to one laboratory in the final plan.
type Assignment struct {
	SaleLineId           int             `json:"sale_line_id"`
	LaboratoryId         int             `json:"laboratory_id"`
	ProductId            int             `json:"product_id"`
	Amount               decimal.Decimal `json:"amount"`
	EffectiveDiscountPct decimal.Decimal `json:"effective_discount_pct"`
	Rebate               decimal.Decimal `json:"rebate"`
}

// LabAllocation aggregates one laboratory's share of the plan.
type LabAllocation struct {
	LaboratoryId   int             `json:"laboratory_id"`
	LaboratoryName string          `json:"laboratory_name"`
	Revenue        decimal.Decimal `json:"revenue"`
	Rebate         decimal.Decimal `json:"rebate"`
	Minimum        decimal.Decimal `json:"minimum"`
	ObjectiveMet   bool            `json:"objective_met"`
	LineCount      int             `json:"line_count"`
}

type Result struct {
	Status      string                 `json:"status"`
	Assignments []Assignment           `json:"assignments"`
	TotalRebate decimal.Decimal        `json:"total_rebate"`
	TotalAmount decimal.Decimal        `json:"total_amount"`
	CoveragePct decimal.Decimal        `json:"coverage_pct"`
	ByLab       map[int]*LabAllocation `json:"by_lab"`
	Nodes       int64                  `json:"nodes"`
	Elapsed     time.Duration          `json:"elapsed"`
}

// candidate is one decision option of a line inside the search, in
// float64 for speed. Decimal values are recomputed on the chosen plan.
type candidate struct {
	labId  int
	amount float64
	gain   float64
}

type searchLine struct {
	index      int // position in Problem.Lines
	candidates []candidate
}

const gainEps = 1e-6

// Solve routes each sale line to at most one laboratory, maximizing
// the total rebate while every laboratory with an objective reaches
// its minimum revenue. The search is exhaustive with pruning, so a
// returned OPTIMAL is exact; when the time limit strikes first the
// best incumbent is returned as FEASIBLE.
func Solve(ctx context.Context, p *Problem, objectives []*Objective, timeLimit time.Duration) *Result {
	start := time.Now()
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	deadline := start.Add(timeLimit)

	ctx, span := allocationTracer.Start(ctx, "allocation.Solve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("lines", len(p.Lines)),
		attribute.Int("laboratories", len(p.Labs)),
		attribute.Int("objectives", len(objectives)),
	)

	result := &Result{
		Status:      StatusNoData,
		TotalRebate: decimal.Zero,
		TotalAmount: decimal.Zero,
		CoveragePct: decimal.Zero,
		ByLab:       map[int]*LabAllocation{},
	}

	ComputePotentials(p, objectives)
	minimums := map[int]decimal.Decimal{}
	for _, obj := range objectives {
		min := obj.Minimum()
		if min.IsPositive() {
			minimums[obj.LaboratoryId] = min
			if min.GreaterThan(obj.Potential) {
				result.Status = StatusInfeasible
				result.Elapsed = time.Since(start)
				span.SetAttributes(attribute.String("status", result.Status))
				return result
			}
		}
	}

	lines := buildSearchLines(p, objectives)
	if len(lines) == 0 {
		result.Elapsed = time.Since(start)
		span.SetAttributes(attribute.String("status", result.Status))
		return result
	}

	s := &search{
		lines:    lines,
		deadline: deadline,
		chosen:   make([]int, len(lines)),
		best:     make([]int, len(lines)),
		bestGain: -1,
	}
	for labId, min := range minimums {
		m, _ := min.Float64()
		s.minimums = append(s.minimums, labMinimum{labId: labId, minimum: m})
	}
	s.prepareBounds()
	s.seedGreedy()
	s.explore(0, 0)

	result.Nodes = s.nodes
	switch {
	case s.timedOut && s.bestGain >= 0:
		result.Status = StatusFeasible
	case s.timedOut:
		result.Status = StatusTimeout
	case s.bestGain >= 0:
		result.Status = StatusOptimal
	default:
		result.Status = StatusInfeasible
	}

	if result.Status == StatusOptimal || result.Status == StatusFeasible {
		fillResult(p, objectives, minimums, s, result)
	}
	result.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.String("status", result.Status),
		attribute.Int64("nodes", s.nodes),
	)
	return result
}

// buildSearchLines turns the problem into per-line candidate lists,
// dropping excluded products and lines with no usable match.
func buildSearchLines(p *Problem, objectives []*Objective) []searchLine {
	excluded := map[int]map[int]bool{}
	for _, obj := range objectives {
		for _, productId := range obj.Exclusions {
			if excluded[obj.LaboratoryId] == nil {
				excluded[obj.LaboratoryId] = map[int]bool{}
			}
			excluded[obj.LaboratoryId][productId] = true
		}
	}

	labIds := make([]int, 0, len(p.Labs))
	for labId := range p.Labs {
		labIds = append(labIds, labId)
	}
	sort.Ints(labIds)

	var lines []searchLine
	for i, line := range p.Lines {
		var candidates []candidate
		for _, labId := range labIds {
			match, found := p.Matches[MatchKey{SaleLineId: line.ID, LaboratoryId: labId}]
			if !found || match.ProductId == 0 || excluded[labId][match.ProductId] {
				continue
			}
			amount, gain, ok := p.Gain(line, labId)
			if !ok {
				continue
			}
			a, _ := amount.Float64()
			g, _ := gain.Float64()
			candidates = append(candidates, candidate{labId: labId, amount: a, gain: g})
		}
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			return candidates[a].gain > candidates[b].gain
		})
		lines = append(lines, searchLine{index: i, candidates: candidates})
	}
	return lines
}

type labMinimum struct {
	labId   int
	minimum float64
	revenue float64
}

type search struct {
	lines    []searchLine
	minimums []labMinimum
	deadline time.Time

	// suffixBest[i] is the largest gain still reachable from line i
	// on; labSuffix[k][i] is laboratory k's remaining revenue ceiling.
	suffixBest []float64
	labSuffix  [][]float64

	chosen   []int // candidate index per line, -1 = skipped
	best     []int
	bestGain float64

	nodes    int64
	timedOut bool
}

func (s *search) prepareBounds() {
	n := len(s.lines)
	s.suffixBest = make([]float64, n+1)
	s.labSuffix = make([][]float64, len(s.minimums))
	for k := range s.minimums {
		s.labSuffix[k] = make([]float64, n+1)
	}
	for i := n - 1; i >= 0; i-- {
		s.suffixBest[i] = s.suffixBest[i+1] + s.lines[i].candidates[0].gain
		for k, lm := range s.minimums {
			contribution := 0.0
			for _, c := range s.lines[i].candidates {
				if c.labId == lm.labId {
					contribution = c.amount
					break
				}
			}
			s.labSuffix[k][i] = s.labSuffix[k][i+1] + contribution
		}
	}
}

// seedGreedy installs a best-gain-per-line plan as the incumbent when
// it happens to satisfy every minimum. Objective-free problems are
// solved outright by it.
func (s *search) seedGreedy() {
	revenue := map[int]float64{}
	gain := 0.0
	for i, line := range s.lines {
		s.chosen[i] = 0
		gain += line.candidates[0].gain
		revenue[line.candidates[0].labId] += line.candidates[0].amount
	}
	for _, lm := range s.minimums {
		if revenue[lm.labId] < lm.minimum-gainEps {
			return
		}
	}
	copy(s.best, s.chosen)
	s.bestGain = gain
}

func (s *search) explore(i int, gain float64) {
	if s.timedOut {
		return
	}
	s.nodes++
	if s.nodes&4095 == 0 && time.Now().After(s.deadline) {
		s.timedOut = true
		return
	}

	if i == len(s.lines) {
		for _, lm := range s.minimums {
			if lm.revenue < lm.minimum-gainEps {
				return
			}
		}
		if gain > s.bestGain+gainEps {
			s.bestGain = gain
			copy(s.best, s.chosen)
		}
		return
	}

	if gain+s.suffixBest[i] <= s.bestGain+gainEps {
		return
	}
	for k := range s.minimums {
		if s.minimums[k].revenue+s.labSuffix[k][i] < s.minimums[k].minimum-gainEps {
			return
		}
	}

	for ci, c := range s.lines[i].candidates {
		s.chosen[i] = ci
		for k := range s.minimums {
			if s.minimums[k].labId == c.labId {
				s.minimums[k].revenue += c.amount
			}
		}
		s.explore(i+1, gain+c.gain)
		for k := range s.minimums {
			if s.minimums[k].labId == c.labId {
				s.minimums[k].revenue -= c.amount
			}
		}
		if s.timedOut {
			return
		}
	}

	s.chosen[i] = -1
	s.explore(i+1, gain)
	s.chosen[i] = 0
}

// fillResult recomputes the chosen plan in decimal and aggregates it
// per laboratory.
func fillResult(p *Problem, objectives []*Objective, minimums map[int]decimal.Decimal, s *search, result *Result) {
	coveredAmount := decimal.Zero
	for i, line := range s.lines {
		if s.best[i] < 0 {
			continue
		}
		c := line.candidates[s.best[i]]
		saleLine := p.Lines[line.index]
		match := p.Matches[MatchKey{SaleLineId: saleLine.ID, LaboratoryId: c.labId}]
		amount, gain, ok := p.Gain(saleLine, c.labId)
		if !ok {
			continue
		}
		assignment := Assignment{
			SaleLineId:           saleLine.ID,
			LaboratoryId:         c.labId,
			ProductId:            match.ProductId,
			Amount:               amount,
			EffectiveDiscountPct: p.EffectiveDiscountPct(c.labId, match),
			Rebate:               gain,
		}
		result.Assignments = append(result.Assignments, assignment)
		result.TotalRebate = result.TotalRebate.Add(gain)
		result.TotalAmount = result.TotalAmount.Add(amount)
		coveredAmount = coveredAmount.Add(saleLine.AnnualAmount)

		alloc := result.ByLab[c.labId]
		if alloc == nil {
			alloc = &LabAllocation{
				LaboratoryId:   c.labId,
				LaboratoryName: p.Labs[c.labId].Name,
				Revenue:        decimal.Zero,
				Rebate:         decimal.Zero,
				Minimum:        minimums[c.labId],
			}
			result.ByLab[c.labId] = alloc
		}
		alloc.Revenue = alloc.Revenue.Add(amount)
		alloc.Rebate = alloc.Rebate.Add(gain)
		alloc.LineCount++
	}

	for _, obj := range objectives {
		min := minimums[obj.LaboratoryId]
		alloc := result.ByLab[obj.LaboratoryId]
		if alloc == nil {
			if min.IsPositive() {
				name := obj.LaboratoryName
				if lab, found := p.Labs[obj.LaboratoryId]; found {
					name = lab.Name
				}
				alloc = &LabAllocation{
					LaboratoryId:   obj.LaboratoryId,
					LaboratoryName: name,
					Revenue:        decimal.Zero,
					Rebate:         decimal.Zero,
					Minimum:        min,
				}
				result.ByLab[obj.LaboratoryId] = alloc
			} else {
				continue
			}
		}
		alloc.Minimum = min
	}
	for _, alloc := range result.ByLab {
		alloc.ObjectiveMet = alloc.Revenue.GreaterThanOrEqual(alloc.Minimum)
	}

	total := p.TotalAnnualAmount()
	if total.IsPositive() {
		result.CoveragePct = coveredAmount.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
	}
}
