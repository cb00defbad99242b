package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pharmdata/remisia_backend/models"
	"github.com/pharmdata/remisia_backend/utils"
)

// MatchType is the closed set of ways a candidate can be produced.
type MatchType int

const (
	MatchExactCode MatchType = iota
	MatchGenericGroup
	MatchFuzzyComponents
	MatchFuzzyName
)

func (t MatchType) String() string {
	switch t {
	case MatchExactCode:
		return "exact_code"
	case MatchGenericGroup:
		return "generic_group"
	case MatchFuzzyComponents:
		return "fuzzy_components"
	case MatchFuzzyName:
		return "fuzzy_name"
	}
	return "unknown"
}

// Candidate is one ranked match of a sale line against a laboratory's
// catalog.
type Candidate struct {
	ProductId       int             `json:"product_id"`
	LaboratoryId    int             `json:"laboratory_id"`
	LaboratoryName  string          `json:"laboratory_name"`
	ProductCode     string          `json:"product_code"`
	CommercialName  string          `json:"commercial_name"`
	GenericGroupId  int             `json:"generic_group_id"`
	PackagingCount  int             `json:"packaging_count"`
	UnitPriceHT     decimal.Decimal `json:"unit_price_ht"`
	LineDiscountPct decimal.Decimal `json:"line_discount_pct"`
	Score           float64         `json:"score"`
	Type            MatchType       `json:"match_type"`
	MatchedOn       string          `json:"matched_on"`
}

// Score ceilings per tier. Tier 2 distinguishes packaging verified
// (100) from unverified (95) as a confidence discount.
const (
	DefaultMinScore      = 70.0
	scoreExactCode       = 100.0
	scoreGroupVerified   = 100.0
	scoreGroupUnverified = 95.0
	capFuzzyComponents   = 85.0
	capFuzzyName         = 70.0

	// tier-3 internal cutoff before the caller threshold applies
	fuzzyCutoff = 60.0

	// molecule score from which a grouped product upgrades to a
	// generic-group match with a small bonus
	groupUpgradeScore = 95.0
	groupUpgradeBonus = 1.05
)

// Matcher runs the priority cascade: exact code, generic group, fuzzy
// components, fuzzy full name. Tiers are evaluated in strict order and
// the first tier producing any candidate short-circuits the rest.
type Matcher struct {
	indexes *Indexes
	memory  *Memory
	refs    ReferenceProvider
}

func NewMatcher(indexes *Indexes, memory *Memory, refs ReferenceProvider) *Matcher {
	return &Matcher{
		indexes: indexes,
		memory:  memory,
		refs:    refs,
	}
}

// FindCandidates evaluates one sale line against one laboratory
// (targetLabId != 0) or against every active laboratory (targetLabId
// == 0). minScore filters candidates after the cascade; zero or
// negative means DefaultMinScore. An unknown target laboratory is a
// not-found condition scoped to that laboratory; it never aborts
// matching against others.
func (m *Matcher) FindCandidates(ctx context.Context, designation, productCode string, targetLabId int, minScore float64) ([]Candidate, error) {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	snap, err := m.indexes.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if targetLabId != 0 {
		if _, ok := snap.Labs[targetLabId]; !ok {
			return nil, fmt.Errorf("laboratory %d: %w", targetLabId, utils.ErrorLaboratoryNotFound)
		}
	}

	query := ExtractFromCommercialName(designation)

	candidates := m.exactCodeTier(snap, productCode, targetLabId)
	if len(candidates) == 0 {
		candidates, err = m.genericGroupTier(ctx, snap, productCode, query, targetLabId)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		candidates = m.fuzzyComponentsTier(snap, query, targetLabId)
	}
	if len(candidates) == 0 {
		candidates = m.fuzzyNameTier(snap, designation, targetLabId)
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Score >= minScore {
			filtered = append(filtered, c)
		}
	}
	sortCandidates(filtered)
	return filtered, nil
}

// tier 1: the sale line's code appears verbatim in the catalog.
func (m *Matcher) exactCodeTier(snap *CatalogSnapshot, productCode string, targetLabId int) []Candidate {
	code := strings.TrimSpace(productCode)
	if code == "" {
		return nil
	}
	var out []Candidate
	for _, p := range snap.ByCode[code] {
		if targetLabId != 0 && p.LaboratoryId != targetLabId {
			continue
		}
		out = append(out, newCandidate(snap, p, scoreExactCode, MatchExactCode, code))
	}
	return out
}

// tier 2: resolve the code to a generic group through the equivalence
// memory or the reference registry, then match the group's products.
// A registry miss is absence of evidence, not an error.
func (m *Matcher) genericGroupTier(ctx context.Context, snap *CatalogSnapshot, productCode string, query Components, targetLabId int) ([]Candidate, error) {
	code := NormalizeCode(productCode)
	if code == "" {
		return nil, nil
	}

	genericGroupId := 0
	if m.memory != nil {
		member, err := m.memory.Member(ctx, code)
		if err != nil {
			return nil, err
		}
		if member != nil && member.GenericGroupId != 0 {
			genericGroupId = member.GenericGroupId
		}
	}
	if genericGroupId == 0 && m.refs != nil {
		record, err := m.refs.ByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if record != nil {
			genericGroupId = record.GenericGroupId
		}
	}
	if genericGroupId == 0 {
		return nil, nil
	}

	var out []Candidate
	for _, p := range snap.ByGroup[genericGroupId] {
		if targetLabId != 0 && p.LaboratoryId != targetLabId {
			continue
		}
		score := scoreGroupUnverified
		matchedOn := fmt.Sprintf("groupe %d", genericGroupId)
		if query.Packaging != 0 && p.PackagingCount == query.Packaging {
			score = scoreGroupVerified
			matchedOn = fmt.Sprintf("groupe %d, conditionnement %d", genericGroupId, query.Packaging)
		}
		out = append(out, newCandidate(snap, p, score, MatchGenericGroup, matchedOn))
	}
	return out, nil
}

// tier 3: weighted component similarity over the catalog, molecule 50%,
// dosage 30%, form 20%, capped at 85. A near-perfect molecule score on
// a grouped product upgrades the candidate to a generic-group match.
func (m *Matcher) fuzzyComponentsTier(snap *CatalogSnapshot, query Components, targetLabId int) []Candidate {
	if query.Molecule == "" {
		return nil
	}
	var out []Candidate
	for labId, products := range snap.ByLab {
		if targetLabId != 0 && labId != targetLabId {
			continue
		}
		for _, p := range products {
			target := productComponents(p)
			if target.Molecule == "" {
				continue
			}
			molScore := moleculeScore(query, target)
			if molScore < fuzzyCutoff {
				continue
			}
			compScore := componentScore(query, target)

			score := compScore
			matchType := MatchFuzzyComponents
			if p.GenericGroupId != 0 && molScore >= groupUpgradeScore {
				matchType = MatchGenericGroup
				score = utils.ClampScore(compScore * groupUpgradeBonus)
			} else if score > capFuzzyComponents {
				score = capFuzzyComponents
			}
			if score < fuzzyCutoff {
				continue
			}
			out = append(out, newCandidate(snap, p, score, matchType, target.Molecule))
		}
	}
	return out
}

// tier 4: partial similarity on the full commercial name, capped at 70.
func (m *Matcher) fuzzyNameTier(snap *CatalogSnapshot, designation string, targetLabId int) []Candidate {
	if strings.TrimSpace(designation) == "" {
		return nil
	}
	var out []Candidate
	for labId, products := range snap.ByLab {
		if targetLabId != 0 && labId != targetLabId {
			continue
		}
		for _, p := range products {
			if p.CommercialName == "" {
				continue
			}
			score := partialRatioScore(designation, p.CommercialName)
			if score > capFuzzyName {
				score = capFuzzyName
			}
			if score < fuzzyCutoff {
				continue
			}
			out = append(out, newCandidate(snap, p, score, MatchFuzzyName, p.CommercialName))
		}
	}
	return out
}

// productComponents extracts from the group label when present (it is
// the cleaner signal), falling back to the commercial name.
func productComponents(p models.CatalogProduct) Components {
	if p.GroupLabel != "" {
		return ExtractFromGroupLabel(p.GroupLabel)
	}
	return ExtractFromCommercialName(p.CommercialName)
}

func newCandidate(snap *CatalogSnapshot, p models.CatalogProduct, score float64, matchType MatchType, matchedOn string) Candidate {
	return Candidate{
		ProductId:       p.ID,
		LaboratoryId:    p.LaboratoryId,
		LaboratoryName:  snap.LabName(p.LaboratoryId),
		ProductCode:     p.ProductCode,
		CommercialName:  p.CommercialName,
		GenericGroupId:  p.GenericGroupId,
		PackagingCount:  p.PackagingCount,
		UnitPriceHT:     p.UnitPriceHT,
		LineDiscountPct: p.LineDiscountPct,
		Score:           utils.ClampScore(score),
		Type:            matchType,
		MatchedOn:       matchedOn,
	}
}

// descending by score, ties broken by laboratory name ascending
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].LaboratoryName < candidates[j].LaboratoryName
	})
}
