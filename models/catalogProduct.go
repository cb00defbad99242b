package models

import (
	"context"
	"time"

	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/utils"
	"github.com/shopspring/decimal"
)

// CatalogProduct is one line of a laboratory's commercial catalog.
// GenericGroupId is 0 when the product is not attached to a generic
// group; PackagingCount is 0 when the packaging is unknown.
type CatalogProduct struct {
	ID              int             `gorm:"primary_key" json:"id"`
	LaboratoryId    int             `gorm:"index;not null" json:"laboratory_id" validate:"required"`
	ProductCode     string          `gorm:"index;size:20" json:"product_code"`
	CommercialName  string          `gorm:"size:200" json:"commercial_name"`
	UnitPriceHT     decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"unit_price_ht"`
	LineDiscountPct decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"line_discount_pct"`
	RebatePct       decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"rebate_pct"`
	GenericGroupId  int             `gorm:"index;default:0" json:"generic_group_id"`
	GroupLabel      string          `gorm:"size:200" json:"group_label"`
	PackagingCount  int             `gorm:"default:0" json:"packaging_count"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCatalogProduct struct {
	LaboratoryId    int             `json:"laboratory_id" validate:"required"`
	ProductCode     string          `json:"product_code" validate:"max=20"`
	CommercialName  string          `json:"commercial_name" validate:"required,max=200"`
	UnitPriceHT     decimal.Decimal `json:"unit_price_ht"`
	LineDiscountPct decimal.Decimal `json:"line_discount_pct"`
	RebatePct       decimal.Decimal `json:"rebate_pct"`
	GenericGroupId  int             `json:"generic_group_id"`
	GroupLabel      string          `json:"group_label"`
	PackagingCount  int             `json:"packaging_count"`
}

func (input *NewCatalogProduct) Validate() error {
	return utils.ValidateStruct(input)
}

func ListActiveProducts(ctx context.Context) ([]CatalogProduct, error) {
	var products []CatalogProduct
	result := config.GetDB().WithContext(ctx).
		Where("is_active = ?", true).
		Find(&products)
	return products, result.Error
}

func ListActiveProductsByLab(ctx context.Context, laboratoryId int) ([]CatalogProduct, error) {
	var products []CatalogProduct
	result := config.GetDB().WithContext(ctx).
		Where("laboratory_id = ? AND is_active = ?", laboratoryId, true).
		Find(&products)
	return products, result.Error
}
