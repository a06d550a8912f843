package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/infrastructure/models"
	"crosspay.backend/pkg/logger"
)

// KeyValueRepository implements repositories.KeyValueStore on a SQL table
type KeyValueRepository struct {
	db *gorm.DB
}

// NewKeyValueRepository creates a new key-value repository
func NewKeyValueRepository(db *gorm.DB) *KeyValueRepository {
	return &KeyValueRepository{db: db}
}

// AutoMigrate creates the backing table when missing
func (r *KeyValueRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.KeyValue{})
}

// Get returns the value stored under key
func (r *KeyValueRepository) Get(ctx context.Context, key string) (string, error) {
	var m models.KeyValue
	if err := r.db.WithContext(ctx).Where("storage_key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domainerrors.ErrNotFound
		}
		return "", err
	}
	return m.Value, nil
}

// Set upserts the value under key
func (r *KeyValueRepository) Set(ctx context.Context, key, value string) error {
	now := time.Now()
	m := &models.KeyValue{
		StorageKey: key,
		Value:      value,
		UpdatedBy:  accountFromContext(ctx),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// an anonymous write clears the previous writer
	var updatedBy interface{} = gorm.Expr("NULL")
	if m.UpdatedBy.Valid {
		updatedBy = m.UpdatedBy.String
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_by": updatedBy,
			"updated_at": now,
		}),
	}).Create(m).Error
}

// Delete removes key; deleting a missing key is not an error
func (r *KeyValueRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&models.KeyValue{}).Error
}

func accountFromContext(ctx context.Context) null.String {
	if account, ok := ctx.Value(logger.AccountKey).(string); ok && account != "" {
		return null.StringFrom(account)
	}
	return null.String{}
}
