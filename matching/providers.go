package matching

import (
	"context"

	"github.com/pharmdata/remisia_backend/models"
)

// The core consumes catalogs, the reference registry and sale lines as
// opaque collaborators. The surrounding system decides where they live;
// models ships GORM-backed implementations.

type CatalogProvider interface {
	ActiveLaboratories(ctx context.Context) ([]models.Laboratory, error)
	ActiveProducts(ctx context.Context) ([]models.CatalogProduct, error)
}

type ReferenceProvider interface {
	// ByCode returns (nil, nil) on a registry miss.
	ByCode(ctx context.Context, productCode string) (*models.ReferenceRecord, error)
	All(ctx context.Context) ([]models.ReferenceRecord, error)
}

type SaleLineProvider interface {
	LinesByImport(ctx context.Context, importId int) ([]models.SaleLine, error)
}
