package repository

import (
	"context"

	"atelier-stock-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MovementListFilter struct {
	VariantID   *uuid.UUID
	WarehouseID *uuid.UUID
	Type        *models.MovementType
	Limit       int
	Offset      int
}

// MovementRepo — журнал движений. Только Append и чтение:
// методов обновления и удаления нет намеренно.
type MovementRepo interface {
	Append(ctx context.Context, m *models.StockMovement) error
	List(ctx context.Context, f MovementListFilter) ([]models.StockMovement, int64, error)
	// ChainForPair — движения пары (variant, warehouse) в порядке времени,
	// для сверки цепочки before/after.
	ChainForPair(ctx context.Context, variantID, warehouseID uuid.UUID) ([]models.StockMovement, error)
	// SumFabricConsumption — суммарный расход ткани по журналу
	// (отрицательные sale/adjustment_negative по вариантам товара).
	SumFabricConsumption(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
}

type movementRepo struct{ db *gorm.DB }

func NewMovementRepo(db *gorm.DB) MovementRepo { return &movementRepo{db: db} }

func (r *movementRepo) Append(ctx context.Context, m *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *movementRepo) List(ctx context.Context, f MovementListFilter) ([]models.StockMovement, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.StockMovement{})

	if f.VariantID != nil {
		q = q.Where("variant_id = ?", *f.VariantID)
	}
	if f.WarehouseID != nil {
		q = q.Where("warehouse_id = ?", *f.WarehouseID)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []models.StockMovement
	if err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *movementRepo) ChainForPair(ctx context.Context, variantID, warehouseID uuid.UUID) ([]models.StockMovement, error) {
	var list []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (r *movementRepo) SumFabricConsumption(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	var out struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Table("stock_movements sm").
		Select("COALESCE(SUM(-sm.quantity), 0) AS total").
		Joins("JOIN product_variants pv ON pv.id = sm.variant_id").
		Where("pv.product_id = ?", productID).
		Where("sm.type IN ?", []models.MovementType{models.MovementSale, models.MovementAdjustmentNegative}).
		Scan(&out).Error
	return out.Total, err
}
