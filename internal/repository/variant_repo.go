package repository

import (
	"context"
	"errors"

	"atelier-stock-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VariantRepo interface {
	Create(ctx context.Context, v *models.ProductVariant) error
	// CreateIfAbsent вставляет вариант, молча пропуская конфликт по SKU —
	// основа идемпотентного автосоздания канонического варианта.
	CreateIfAbsent(ctx context.Context, v *models.ProductVariant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	GetBySKU(ctx context.Context, sku string) (*models.ProductVariant, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error)
	CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

type variantRepo struct{ db *gorm.DB }

func NewVariantRepo(db *gorm.DB) VariantRepo { return &variantRepo{db: db} }

func (r *variantRepo) Create(ctx context.Context, v *models.ProductVariant) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *variantRepo) CreateIfAbsent(ctx context.Context, v *models.ProductVariant) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(v).Error
}

func (r *variantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &v, err
}

func (r *variantRepo) GetBySKU(ctx context.Context, sku string) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := r.db.WithContext(ctx).Where("lower(sku) = lower(?)", sku).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &v, err
}

func (r *variantRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ProductVariant{}).Where("id = ?", id).Updates(fields).Error
}

func (r *variantRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error) {
	var list []models.ProductVariant
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("created_at ASC").Find(&list).Error
	return list, err
}

func (r *variantRepo) CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&models.ProductVariant{}).Where("product_id = ?", productID).Count(&cnt).Error
	return cnt, err
}
