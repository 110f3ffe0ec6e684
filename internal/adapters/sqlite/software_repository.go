package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/swmanager/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"gorm.io/gorm"
)

type softwareModel struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name    string `gorm:"column:name;not null"`
	Version string `gorm:"column:version;not null"`
	Status  string `gorm:"column:status;not null"`
}

func (softwareModel) TableName() string {
	return "software"
}

type SoftwareRepository struct {
	db *gormsqlite.DB
}

func NewSoftwareRepository(db *gormsqlite.DB) *SoftwareRepository {
	return &SoftwareRepository{db: db}
}

func (r *SoftwareRepository) Create(ctx context.Context, sw domain.Software) (domain.Software, error) {
	model := softwareModel{
		Name:    sw.Name,
		Version: sw.Version,
		Status:  string(sw.Status),
	}
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Software{}, fmt.Errorf("create software: %w", err)
	}
	return toSoftware(model), nil
}

func (r *SoftwareRepository) Get(ctx context.Context, id int64) (domain.Software, error) {
	var model softwareModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Software{}, domain.ErrNotFound
		}
		return domain.Software{}, fmt.Errorf("get software: %w", err)
	}
	return toSoftware(model), nil
}

func (r *SoftwareRepository) List(ctx context.Context) ([]domain.Software, error) {
	var models []softwareModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order("id ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list software: %w", err)
	}

	result := make([]domain.Software, 0, len(models))
	for _, model := range models {
		result = append(result, toSoftware(model))
	}
	return result, nil
}

func (r *SoftwareRepository) Delete(ctx context.Context, id int64) (domain.Software, error) {
	var before softwareModel
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Where("id = ?", id).First(&before).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&softwareModel{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Software{}, domain.ErrNotFound
		}
		return domain.Software{}, fmt.Errorf("delete software: %w", err)
	}
	return toSoftware(before), nil
}

// Mutate runs the read-modify-write in one transaction on the single writer
// connection, so concurrent mutations of the same row cannot interleave.
func (r *SoftwareRepository) Mutate(ctx context.Context, id int64, fn func(sw *domain.Software) error) (domain.Software, error) {
	var result domain.Software
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var model softwareModel
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("load software: %w", err)
		}

		sw := toSoftware(model)
		if err := fn(&sw); err != nil {
			return err
		}

		err := tx.Model(&softwareModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"name": sw.Name, "version": sw.Version, "status": string(sw.Status)}).Error
		if err != nil {
			return fmt.Errorf("update software: %w", err)
		}

		sw.ID = id
		result = sw
		return nil
	})
	if err != nil {
		return domain.Software{}, err
	}
	return result, nil
}

func toSoftware(model softwareModel) domain.Software {
	return domain.Software{
		ID:      model.ID,
		Name:    model.Name,
		Version: model.Version,
		Status:  domain.Status(model.Status),
	}
}
