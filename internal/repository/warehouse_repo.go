package repository

import (
	"context"
	"errors"

	"atelier-stock-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WarehouseRepo interface {
	Create(ctx context.Context, w *models.Warehouse) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
	GetByCode(ctx context.Context, code string) (*models.Warehouse, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	List(ctx context.Context, onlyActive bool) ([]models.Warehouse, error)
}

type warehouseRepo struct{ db *gorm.DB }

func NewWarehouseRepo(db *gorm.DB) WarehouseRepo { return &warehouseRepo{db: db} }

func (r *warehouseRepo) Create(ctx context.Context, w *models.Warehouse) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *warehouseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	var w models.Warehouse
	err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &w, err
}

func (r *warehouseRepo) GetByCode(ctx context.Context, code string) (*models.Warehouse, error) {
	var w models.Warehouse
	err := r.db.WithContext(ctx).Where("lower(code) = lower(?)", code).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &w, err
}

func (r *warehouseRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Warehouse{}).Where("id = ?", id).Updates(fields).Error
}

func (r *warehouseRepo) List(ctx context.Context, onlyActive bool) ([]models.Warehouse, error) {
	q := r.db.WithContext(ctx).Model(&models.Warehouse{})
	if onlyActive {
		q = q.Where("is_active = true")
	}
	var list []models.Warehouse
	err := q.Order("created_at ASC").Find(&list).Error
	return list, err
}
