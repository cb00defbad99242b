package models

import (
	"context"
	"time"

	"github.com/pharmdata/remisia_backend/config"
	"github.com/shopspring/decimal"
)

// SaleLine is one purchase/sale record from an import batch. Immutable
// once ingested: the matching and allocation layers only ever read it.
type SaleLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	ImportId       int             `gorm:"index" json:"import_id"`
	ProductCode    string          `gorm:"size:20" json:"product_code"`
	Designation    string          `gorm:"size:200" json:"designation"`
	CurrentLabName string          `gorm:"size:100" json:"current_lab_name"`
	AnnualQty      int             `gorm:"default:0" json:"annual_qty"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"unit_price"`
	AnnualAmount   decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"annual_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func ListSaleLinesByImport(ctx context.Context, importId int) ([]SaleLine, error) {
	var lines []SaleLine
	result := config.GetDB().WithContext(ctx).
		Where("import_id = ?", importId).
		Order("id asc").
		Find(&lines)
	return lines, result.Error
}
