package models

import (
	"github.com/pharmdata/remisia_backend/config"
)

func MigrateModels() error {
	return config.GetDB().AutoMigrate(
		&Laboratory{},
		&CatalogProduct{},
		&SaleLine{},
		&ReferenceRecord{},
		&EquivalenceMember{},
		&SaleMatch{},
	)
}
