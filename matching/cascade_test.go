package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pharmdata/remisia_backend/models"
	"github.com/pharmdata/remisia_backend/utils"
)

type fakeRefs struct {
	records map[string]models.ReferenceRecord
}

func (f *fakeRefs) ByCode(ctx context.Context, productCode string) (*models.ReferenceRecord, error) {
	if record, ok := f.records[productCode]; ok {
		return &record, nil
	}
	return nil, nil
}

func (f *fakeRefs) All(ctx context.Context) ([]models.ReferenceRecord, error) {
	out := make([]models.ReferenceRecord, 0, len(f.records))
	for _, record := range f.records {
		out = append(out, record)
	}
	return out, nil
}

func cascadeCatalog() *countingCatalog {
	return &countingCatalog{
		labs: []models.Laboratory{
			{ID: 1, Name: "Alpha Pharma", NegotiatedRebatePct: decimal.NewFromInt(30)},
			{ID: 2, Name: "Beta Sante", NegotiatedRebatePct: decimal.NewFromInt(25)},
		},
		products: []models.CatalogProduct{
			{ID: 10, LaboratoryId: 1, ProductCode: "3400930000001", CommercialName: "AMLODIPINE ALPHA 5MG CPR B/30", GenericGroupId: 12, PackagingCount: 30},
			{ID: 20, LaboratoryId: 2, ProductCode: "3400930000003", CommercialName: "AMLODIPINE BETA 5MG CPR B/90", GenericGroupId: 12, PackagingCount: 90},
			{ID: 11, LaboratoryId: 1, ProductCode: "3400930000002", CommercialName: "RAMIPRIL ALPHA 5MG CPR B/30", GenericGroupId: 13, PackagingCount: 30},
			{ID: 21, LaboratoryId: 2, ProductCode: "3400930000004", CommercialName: "METFORMINE BETA 1000MG CPR B/30", PackagingCount: 30},
		},
	}
}

func newTestMatcher(refs ReferenceProvider) *Matcher {
	indexes := NewIndexes(cascadeCatalog(), DefaultIndexTTL)
	return NewMatcher(indexes, newTestMemory(), refs)
}

func TestCascadeExactCode(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(&fakeRefs{})

	candidates, err := m.FindCandidates(ctx, "whatever the wholesaler wrote", "3400930000001", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	c := candidates[0]
	if c.ProductId != 10 || c.Score != 100 || c.Type != MatchExactCode {
		t.Fatalf("unexpected candidate %+v", c)
	}
}

func TestCascadeGenericGroupFromRegistry(t *testing.T) {
	ctx := context.Background()
	refs := &fakeRefs{records: map[string]models.ReferenceRecord{
		"3400930000009": {ProductCode: "3400930000009", GenericGroupId: 12},
	}}
	m := newTestMatcher(refs)

	candidates, err := m.FindCandidates(ctx, "AMLODIPINE ZENTIVA 5MG CPR B/30", "CIP:3400930000009", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want the whole generic group", len(candidates))
	}

	// packaging 30 confirmed on the first product lifts it to 100
	if candidates[0].ProductId != 10 || candidates[0].Score != 100 {
		t.Fatalf("verified candidate = %+v", candidates[0])
	}
	if candidates[1].ProductId != 20 || candidates[1].Score != 95 {
		t.Fatalf("unverified candidate = %+v", candidates[1])
	}
	for _, c := range candidates {
		if c.Type != MatchGenericGroup {
			t.Fatalf("type = %v, want generic_group", c.Type)
		}
	}
}

func TestCascadeGenericGroupTieBreaksOnLabName(t *testing.T) {
	ctx := context.Background()
	refs := &fakeRefs{records: map[string]models.ReferenceRecord{
		"3400930000009": {ProductCode: "3400930000009", GenericGroupId: 12},
	}}
	m := newTestMatcher(refs)

	// no packaging in the query: both candidates score 95
	candidates, err := m.FindCandidates(ctx, "AMLODIPINE 5MG", "3400930000009", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(candidates))
	}
	if candidates[0].LaboratoryName != "Alpha Pharma" || candidates[1].LaboratoryName != "Beta Sante" {
		t.Fatalf("tie not broken by laboratory name: %q then %q",
			candidates[0].LaboratoryName, candidates[1].LaboratoryName)
	}
}

func TestCascadeGenericGroupFromMemory(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(&fakeRefs{})

	// the memory knows this code belongs to generic group 13
	_, err := m.memory.Union(ctx, "3400930000010", "3400930000011", UnionMeta{
		MatchType:      "generic_group",
		Score:          100,
		GenericGroupId: 13,
	})
	if err != nil {
		t.Fatal(err)
	}

	candidates, err := m.FindCandidates(ctx, "RAMIPRIL 5MG", "3400930000010", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].ProductId != 11 || candidates[0].Type != MatchGenericGroup {
		t.Fatalf("unexpected candidate %+v", candidates[0])
	}
}

func TestCascadeFuzzyComponentsCap(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(&fakeRefs{})

	// ungrouped product: a perfect component match still caps at 85
	candidates, err := m.FindCandidates(ctx, "METFORMINE 1000MG CPR", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	c := candidates[0]
	if c.ProductId != 21 || c.Type != MatchFuzzyComponents {
		t.Fatalf("unexpected candidate %+v", c)
	}
	if c.Score != 85 {
		t.Fatalf("score = %v, want the 85 cap", c.Score)
	}
}

func TestCascadeFuzzyComponentsGroupUpgrade(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(&fakeRefs{})

	// no usable code: the component tier runs, and a near-perfect
	// molecule on a grouped product upgrades past the 85 cap
	candidates, err := m.FindCandidates(ctx, "AMLODIPINE ZENTIVA 5MG CPR B/30", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates")
	}
	best := candidates[0]
	if best.Type != MatchGenericGroup {
		t.Fatalf("type = %v, want generic_group upgrade", best.Type)
	}
	if best.Score <= 85 || best.Score > 100 {
		t.Fatalf("score = %v, want above the component cap", best.Score)
	}
}

func TestCascadeFuzzyNameCap(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(&fakeRefs{})

	// leading dosage leaves no molecule to extract, so only the full
	// name tier can work, capped at 70
	candidates, err := m.FindCandidates(ctx, "5MG AMLODIPINE ALPHA CPR B/30", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates")
	}
	best := candidates[0]
	if best.Type != MatchFuzzyName {
		t.Fatalf("type = %v, want fuzzy_name", best.Type)
	}
	if best.Score != 70 {
		t.Fatalf("score = %v, want the 70 cap", best.Score)
	}
}

func TestCascadeMinScoreFilters(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(&fakeRefs{})

	candidates, err := m.FindCandidates(ctx, "METFORMINE 1000MG CPR", "", 0, 90)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want none above 90", len(candidates))
	}
}

func TestCascadeTargetLab(t *testing.T) {
	ctx := context.Background()
	refs := &fakeRefs{records: map[string]models.ReferenceRecord{
		"3400930000009": {ProductCode: "3400930000009", GenericGroupId: 12},
	}}
	m := newTestMatcher(refs)

	candidates, err := m.FindCandidates(ctx, "AMLODIPINE 5MG", "3400930000009", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0].LaboratoryId != 2 {
		t.Fatalf("target lab not honored: %+v", candidates)
	}
}

func TestCascadeUnknownLab(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(&fakeRefs{})

	_, err := m.FindCandidates(ctx, "AMLODIPINE 5MG", "", 99, 0)
	if !errors.Is(err, utils.ErrorLaboratoryNotFound) {
		t.Fatalf("err = %v, want laboratory not found", err)
	}
}

func TestCascadeUnmatched(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(&fakeRefs{})

	candidates, err := m.FindCandidates(ctx, "XYLOGLUCANE OMEGA SIROP", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want none", len(candidates))
	}
}
