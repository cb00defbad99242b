package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquivalenceMember is one product code inside an equivalence group.
// The group id is the persisted union-find root: every member of a
// group carries the same GroupId, so membership survives restarts
// without any in-memory path compression.
type EquivalenceMember struct {
	ID             int             `gorm:"primary_key" json:"id"`
	GroupId        int             `gorm:"index;not null" json:"group_id"`
	ProductCode    string          `gorm:"uniqueIndex;size:20;not null" json:"product_code"`
	Designation    string          `gorm:"size:200" json:"designation"`
	Source         string          `gorm:"size:50" json:"source"`
	GenericGroupId int             `gorm:"default:0" json:"generic_group_id"`
	MatchOrigin    string          `gorm:"size:30" json:"match_origin"`
	MatchScore     decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"match_score"`
	Validated      *bool           `gorm:"not null;default:false" json:"validated"`
	ValidatedAt    *time.Time      `json:"validated_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (m EquivalenceMember) IsValidated() bool {
	return m.Validated != nil && *m.Validated
}
