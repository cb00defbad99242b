package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleMatch is the persisted outcome of evaluating one sale line
// against one laboratory. ProductId 0 means the line was evaluated and
// found unmatched for that laboratory; a missing row means the pair
// was never evaluated.
type SaleMatch struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SaleLineId   int             `gorm:"uniqueIndex:idx_line_lab;not null" json:"sale_line_id"`
	LaboratoryId int             `gorm:"uniqueIndex:idx_line_lab;not null" json:"laboratory_id"`
	ProductId    int             `gorm:"index;default:0" json:"product_id"`
	Score        decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"score"`
	MatchType    string          `gorm:"size:30" json:"match_type"`
	MatchedOn    string          `gorm:"size:200" json:"matched_on"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
