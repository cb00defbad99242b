package models

import (
	"context"
	"errors"
	"time"

	"github.com/pharmdata/remisia_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReferenceRecordType string

const (
	ReferenceOriginator ReferenceRecordType = "P"
	ReferenceGeneric    ReferenceRecordType = "G"
)

// ReferenceRecord is one row of the authoritative registry snapshot,
// keyed by product code. The core only reads it; the refresh pipeline
// that maintains it lives outside this repository.
type ReferenceRecord struct {
	ProductCode    string              `gorm:"primary_key;size:20" json:"product_code"`
	Denomination   string              `gorm:"size:200" json:"denomination"`
	GenericGroupId int                 `gorm:"index;default:0" json:"generic_group_id"`
	GroupLabel     string              `gorm:"size:200" json:"group_label"`
	RecordType     ReferenceRecordType `gorm:"type:enum('P','G');default:'G'" json:"record_type"`
	ReferencePrice decimal.Decimal     `gorm:"type:decimal(10,2);default:0" json:"reference_price"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetReferenceRecord(ctx context.Context, productCode string) (*ReferenceRecord, error) {
	var record ReferenceRecord
	result := config.GetDB().WithContext(ctx).
		Where("product_code = ?", productCode).
		First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// a registry miss is absence of evidence, not an error
			return nil, nil
		}
		return nil, result.Error
	}
	return &record, nil
}

func ListReferenceRecords(ctx context.Context) ([]ReferenceRecord, error) {
	var records []ReferenceRecord
	result := config.GetDB().WithContext(ctx).Find(&records)
	return records, result.Error
}
