package matching

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pharmdata/remisia_backend/models"
)

func newTestService() *Service {
	refs := &fakeRefs{records: map[string]models.ReferenceRecord{
		"3400930000009": {ProductCode: "3400930000009", Denomination: "AMLODIPINE 5MG COMPRIME", GenericGroupId: 12},
	}}
	return NewService(cascadeCatalog(), refs, newTestMemory())
}

func TestServiceMatchBatch(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	lines := []models.SaleLine{
		{ID: 1, ProductCode: "3400930000001", Designation: "AMLODIPINE ALPHA 5MG CPR B/30", AnnualQty: 120, AnnualAmount: decimal.NewFromInt(250)},
		{ID: 2, ProductCode: "", Designation: "METFORMINE 1000MG CPR", AnnualQty: 60, AnnualAmount: decimal.NewFromInt(180)},
		{ID: 3, ProductCode: "", Designation: "XYLOGLUCANE OMEGA SIROP", AnnualQty: 10, AnnualAmount: decimal.NewFromInt(40)},
	}

	results, err := service.MatchBatch(ctx, lines, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	// line 1: exact code at Alpha Pharma
	if results[0].Unmatched {
		t.Fatal("line 1 unmatched")
	}
	best, ok := results[0].BestByLab[1]
	if !ok || best.Type != MatchExactCode || best.Score != 100 {
		t.Fatalf("line 1 best at lab 1 = %+v", best)
	}
	if _, ok := results[0].BestByLab[2]; ok {
		t.Fatal("line 1 should not match lab 2")
	}

	// line 2: component match at Beta Sante
	if results[1].Unmatched {
		t.Fatal("line 2 unmatched")
	}
	best, ok = results[1].BestByLab[2]
	if !ok || best.Type != MatchFuzzyComponents || best.Score < 70 {
		t.Fatalf("line 2 best at lab 2 = %+v", best)
	}

	// line 3: nothing anywhere
	if !results[2].Unmatched {
		t.Fatalf("line 3 matched: %+v", results[2].Candidates)
	}
}

func TestServiceMatchBatchThresholdPerCall(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	// component match capped at 85: visible at the default threshold,
	// filtered at 90
	lines := []models.SaleLine{
		{ID: 1, Designation: "METFORMINE 1000MG CPR", AnnualQty: 60},
	}

	results, err := service.MatchBatch(ctx, lines, 90)
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Unmatched {
		t.Fatalf("score-85 line survived a 90 threshold: %+v", results[0].Candidates)
	}

	// a later batch at the default threshold must not inherit the 90
	results, err = service.MatchBatch(ctx, lines, 0)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Unmatched {
		t.Fatal("default-threshold batch still filtered at the previous caller's 90")
	}
	if best, ok := results[0].BestByLab[2]; !ok || best.Score != 85 {
		t.Fatalf("best at lab 2 = %+v, want the 85 component match", best)
	}
}

func TestServiceMatchForLabUnknown(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	line := models.SaleLine{ID: 1, Designation: "AMLODIPINE 5MG"}
	if _, err := service.MatchForLab(ctx, line, 99); err == nil {
		t.Fatal("expected an error for an unknown laboratory")
	}
}

func TestServiceReconcileAgainstReference(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	lines := []models.SaleLine{
		{ID: 1, ProductCode: "3400930000001", Designation: "AMLODIPINE BIOGARAN 5MG CPR B/30"},
		{ID: 2, ProductCode: "3400930000002", Designation: "XYLOGLUCANE OMEGA SIROP"},
	}

	stats, err := service.ReconcileAgainstReference(ctx, lines, 70)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Computed != 2 {
		t.Fatalf("stats = %+v, want both lines computed", stats)
	}

	matched := 0
	for _, result := range stats.Results {
		if result.Matched {
			matched++
			if result.MatchedCode != "3400930000009" {
				t.Errorf("matched code = %q", result.MatchedCode)
			}
		}
	}
	if matched != 1 {
		t.Fatalf("matched = %d, want 1", matched)
	}
}
