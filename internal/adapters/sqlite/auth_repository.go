package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/swmanager/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"gorm.io/gorm"
)

type apiKeyModel struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Activated bool      `gorm:"column:activated;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

type APIKeyRepository struct {
	db *gormsqlite.DB
}

func NewAPIKeyRepository(db *gormsqlite.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, key domain.APIKey) (domain.APIKey, error) {
	model := apiKeyModel{
		Key:       key.Key,
		Activated: key.Activated,
		CreatedAt: key.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.APIKey{}, domain.ErrDuplicateKey
		}
		return domain.APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	return toAPIKey(model), nil
}

func (r *APIKeyRepository) Find(ctx context.Context, key string) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("key = ?", key).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIKey{}, domain.ErrNotFound
		}
		return domain.APIKey{}, fmt.Errorf("find api key: %w", err)
	}
	return toAPIKey(model), nil
}

func (r *APIKeyRepository) List(ctx context.Context) ([]domain.APIKey, error) {
	var models []apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order("created_at ASC, key ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	result := make([]domain.APIKey, 0, len(models))
	for _, model := range models {
		result = append(result, toAPIKey(model))
	}
	return result, nil
}

func (r *APIKeyRepository) SetActivated(ctx context.Context, key string, activated bool) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Where("key = ?", key).First(&model).Error; err != nil {
			return err
		}
		model.Activated = activated
		return tx.Model(&apiKeyModel{}).Where("key = ?", key).Update("activated", activated).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIKey{}, domain.ErrNotFound
		}
		return domain.APIKey{}, fmt.Errorf("set api key activation: %w", err)
	}
	return toAPIKey(model), nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, key string) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Where("key = ?", key).First(&model).Error; err != nil {
			return err
		}
		return tx.Where("key = ?", key).Delete(&apiKeyModel{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIKey{}, domain.ErrNotFound
		}
		return domain.APIKey{}, fmt.Errorf("delete api key: %w", err)
	}
	return toAPIKey(model), nil
}

func toAPIKey(model apiKeyModel) domain.APIKey {
	return domain.APIKey{
		Key:       model.Key,
		Activated: model.Activated,
		CreatedAt: model.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}
