package matching

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmdata/remisia_backend/models"
)

// countingCatalog counts provider hits to observe snapshot rebuilds.
type countingCatalog struct {
	labs     []models.Laboratory
	products []models.CatalogProduct
	calls    int
}

func (c *countingCatalog) ActiveLaboratories(ctx context.Context) ([]models.Laboratory, error) {
	c.calls++
	return c.labs, nil
}

func (c *countingCatalog) ActiveProducts(ctx context.Context) ([]models.CatalogProduct, error) {
	return c.products, nil
}

func testCatalog() *countingCatalog {
	return &countingCatalog{
		labs: []models.Laboratory{
			{ID: 1, Name: "Alpha Pharma", NegotiatedRebatePct: decimal.NewFromInt(30)},
			{ID: 2, Name: "Beta Sante", NegotiatedRebatePct: decimal.NewFromInt(25)},
		},
		products: []models.CatalogProduct{
			{ID: 10, LaboratoryId: 1, ProductCode: "3400930000001", CommercialName: "AMLODIPINE ALPHA 5MG CPR B/30", GenericGroupId: 12, PackagingCount: 30},
			{ID: 11, LaboratoryId: 1, ProductCode: "3400930000002", CommercialName: "RAMIPRIL ALPHA 5MG CPR B/30", GenericGroupId: 13},
			{ID: 20, LaboratoryId: 2, ProductCode: "3400930000003", CommercialName: "AMLODIPINE BETA 5MG CPR B/90", GenericGroupId: 12, PackagingCount: 90},
		},
	}
}

func TestSnapshotIndexes(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()
	ix := NewIndexes(catalog, time.Minute)

	snap, err := ix.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.ByCode["3400930000001"]) != 1 {
		t.Errorf("ByCode miss: %+v", snap.ByCode)
	}
	if len(snap.ByGroup[12]) != 2 {
		t.Errorf("ByGroup[12] = %d products, want 2", len(snap.ByGroup[12]))
	}
	if len(snap.ByLab[1]) != 2 || len(snap.ByLab[2]) != 1 {
		t.Errorf("ByLab sizes wrong: %d / %d", len(snap.ByLab[1]), len(snap.ByLab[2]))
	}
	if snap.LabName(1) != "Alpha Pharma" || snap.LabName(99) != "?" {
		t.Errorf("LabName resolution wrong")
	}
}

func TestSnapshotCachedUntilExpiry(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()
	ix := NewIndexes(catalog, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := ix.Snapshot(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if catalog.calls != 1 {
		t.Fatalf("provider hit %d times inside the TTL, want 1", catalog.calls)
	}
}

func TestSnapshotExpires(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()
	ix := NewIndexes(catalog, time.Millisecond)

	if _, err := ix.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ix.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}
	if catalog.calls != 2 {
		t.Fatalf("provider hit %d times across the TTL, want 2", catalog.calls)
	}
}

func TestInvalidateForcesRebuild(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()
	ix := NewIndexes(catalog, time.Minute)

	if _, err := ix.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}
	ix.Invalidate()
	if _, err := ix.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}
	if catalog.calls != 2 {
		t.Fatalf("provider hit %d times after Invalidate, want 2", catalog.calls)
	}
}
