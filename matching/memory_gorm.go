package matching

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pharmdata/remisia_backend/models"
)

// GormStore persists the equivalence memory through GORM. Transact maps
// to a database transaction, which is what makes Union atomic.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transact(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Member(ctx context.Context, productCode string) (*models.EquivalenceMember, error) {
	var member models.EquivalenceMember
	result := s.db.WithContext(ctx).
		Where("product_code = ?", productCode).
		First(&member)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &member, nil
}

func (s *GormStore) Members(ctx context.Context, groupId int) ([]models.EquivalenceMember, error) {
	var members []models.EquivalenceMember
	result := s.db.WithContext(ctx).
		Where("group_id = ?", groupId).
		Order("product_code asc").
		Find(&members)
	return members, result.Error
}

func (s *GormStore) NextGroupId(ctx context.Context) (int, error) {
	var maxId int
	row := s.db.WithContext(ctx).
		Model(&models.EquivalenceMember{}).
		Select("COALESCE(MAX(group_id), 0)").
		Row()
	if err := row.Scan(&maxId); err != nil {
		return 0, err
	}
	return maxId + 1, nil
}

func (s *GormStore) Add(ctx context.Context, member *models.EquivalenceMember) error {
	return s.db.WithContext(ctx).Create(member).Error
}

func (s *GormStore) MergeGroups(ctx context.Context, keepId, mergeId int) (int, error) {
	result := s.db.WithContext(ctx).
		Model(&models.EquivalenceMember{}).
		Where("group_id = ?", mergeId).
		Update("group_id", keepId)
	return int(result.RowsAffected), result.Error
}

func (s *GormStore) SetValidated(ctx context.Context, productCode string) (bool, error) {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.EquivalenceMember{}).
		Where("product_code = ?", productCode).
		Updates(map[string]interface{}{"validated": true, "validated_at": now})
	return result.RowsAffected > 0, result.Error
}

func (s *GormStore) SetGroupValidated(ctx context.Context, groupId int) (int, error) {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.EquivalenceMember{}).
		Where("group_id = ?", groupId).
		Updates(map[string]interface{}{"validated": true, "validated_at": now})
	return int(result.RowsAffected), result.Error
}

func (s *GormStore) Stats(ctx context.Context) (MemoryStats, error) {
	var stats MemoryStats
	var total, validated, groups int64

	db := s.db.WithContext(ctx).Model(&models.EquivalenceMember{})
	if err := db.Count(&total).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).
		Model(&models.EquivalenceMember{}).
		Where("validated = ?", true).
		Count(&validated).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).
		Model(&models.EquivalenceMember{}).
		Distinct("group_id").
		Count(&groups).Error; err != nil {
		return stats, err
	}

	stats.TotalCodes = int(total)
	stats.Validated = int(validated)
	stats.TotalGroups = int(groups)
	stats.PendingValidation = stats.TotalCodes - stats.Validated
	return stats, nil
}
