package models

import (
	"context"
	"time"

	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/utils"
	"github.com/shopspring/decimal"
)

// Laboratory is one supplier whose catalog we can buy from.
// NegotiatedRebatePct is the agreed "remontee": the extra discount that
// tops up each line discount toward the negotiated overall percentage.
type Laboratory struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	Name                   string          `gorm:"size:100;not null;unique" json:"name" validate:"required"`
	NegotiatedRebatePct    decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"negotiated_rebate_pct"`
	DefaultLineDiscountPct decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"default_line_discount_pct"`
	IsActive               *bool           `gorm:"not null;default:true" json:"is_active"`
	Notes                  string          `gorm:"type:text" json:"notes"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLaboratory struct {
	Name                   string          `json:"name" validate:"required,max=100"`
	NegotiatedRebatePct    decimal.Decimal `json:"negotiated_rebate_pct"`
	DefaultLineDiscountPct decimal.Decimal `json:"default_line_discount_pct"`
	Notes                  string          `json:"notes"`
}

func (input *NewLaboratory) Validate() error {
	return utils.ValidateStruct(input)
}

func GetLaboratory(ctx context.Context, id int) (Laboratory, error) {
	var lab Laboratory
	result := config.GetDB().WithContext(ctx).First(&lab, id)
	if result.Error != nil {
		return lab, utils.ErrorLaboratoryNotFound
	}
	return lab, nil
}

func ListActiveLaboratories(ctx context.Context) ([]Laboratory, error) {
	var labs []Laboratory
	result := config.GetDB().WithContext(ctx).
		Where("is_active = ?", true).
		Order("name asc").
		Find(&labs)
	return labs, result.Error
}
