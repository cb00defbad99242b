package models

import (
	"context"
)

// GormProviders satisfies the matching package's provider interfaces
// over the global DB connection.
type GormProviders struct{}

func (GormProviders) ActiveLaboratories(ctx context.Context) ([]Laboratory, error) {
	return ListActiveLaboratories(ctx)
}

func (GormProviders) ActiveProducts(ctx context.Context) ([]CatalogProduct, error) {
	return ListActiveProducts(ctx)
}

func (GormProviders) ByCode(ctx context.Context, productCode string) (*ReferenceRecord, error) {
	return GetReferenceRecord(ctx, productCode)
}

func (GormProviders) All(ctx context.Context) ([]ReferenceRecord, error) {
	return ListReferenceRecords(ctx)
}

func (GormProviders) LinesByImport(ctx context.Context, importId int) ([]SaleLine, error) {
	return ListSaleLinesByImport(ctx, importId)
}
