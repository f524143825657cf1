package repository

import (
	"bytes"
	"context"
	"errors"

	"atelier-stock-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockLevelRow — остаток, развёрнутый для отчётов и экспорта.
type StockLevelRow struct {
	VariantID     uuid.UUID          `json:"variant_id"`
	VariantSKU    string             `json:"variant_sku"`
	Size          string             `json:"size"`
	Color         string             `json:"color"`
	ProductID     uuid.UUID          `json:"product_id"`
	ProductName   string             `json:"product_name"`
	ProductType   models.ProductType `json:"product_type"`
	WarehouseID   uuid.UUID          `json:"warehouse_id"`
	WarehouseName string             `json:"warehouse_name"`
	Quantity      decimal.Decimal    `json:"quantity"`
	Reserved      decimal.Decimal    `json:"reserved"`
}

type StockLevelRepo interface {
	Get(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLevel, error)
	// LockForUpdate материализует нулевую строку остатка при отсутствии
	// и берёт её под SELECT ... FOR UPDATE. FOR UPDATE по несуществующей
	// строке ничего не блокирует, поэтому сперва вставка с ON CONFLICT
	// DO NOTHING: параллельные первые операции по паре сериализуются на
	// вставке, а не читают каждая свой нулевой stock_before.
	// created=true, если строку только что вставила эта транзакция.
	LockForUpdate(ctx context.Context, variantID, warehouseID uuid.UUID) (level *models.StockLevel, created bool, err error)
	// LockPairForUpdate блокирует обе строки перемещения в фиксированном
	// глобальном порядке (по warehouse_id), чтобы встречные перемещения
	// не взаимоблокировались.
	LockPairForUpdate(ctx context.Context, variantID, fromWarehouseID, toWarehouseID uuid.UUID) (from *models.StockLevel, to *models.StockLevel, err error)
	Upsert(ctx context.Context, level *models.StockLevel) error
	ListByVariant(ctx context.Context, variantID uuid.UUID) ([]models.StockLevel, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockLevel, error)
	// ListRows — развёрнутые остатки для отчётов и экспорта;
	// нулевой productID означает «все товары».
	ListRows(ctx context.Context, productID uuid.UUID) ([]StockLevelRow, error)
}

type stockLevelRepo struct{ db *gorm.DB }

func NewStockLevelRepo(db *gorm.DB) StockLevelRepo { return &stockLevelRepo{db: db} }

func (r *stockLevelRepo) Get(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLevel, error) {
	var l models.StockLevel
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &l, err
}

func (r *stockLevelRepo) LockForUpdate(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLevel, bool, error) {
	seed := &models.StockLevel{
		VariantID:   variantID,
		WarehouseID: warehouseID,
		Quantity:    decimal.Zero,
		Reserved:    decimal.Zero,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seed)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected == 1

	var l models.StockLevel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		First(&l).Error
	if err != nil {
		return nil, false, err
	}
	return &l, created, nil
}

func (r *stockLevelRepo) LockPairForUpdate(ctx context.Context, variantID, fromWarehouseID, toWarehouseID uuid.UUID) (*models.StockLevel, *models.StockLevel, error) {
	first, second := fromWarehouseID, toWarehouseID
	if bytes.Compare(second[:], first[:]) < 0 {
		first, second = second, first
	}

	byWarehouse := make(map[uuid.UUID]*models.StockLevel, 2)
	for _, wh := range []uuid.UUID{first, second} {
		l, _, err := r.LockForUpdate(ctx, variantID, wh)
		if err != nil {
			return nil, nil, err
		}
		byWarehouse[wh] = l
	}
	return byWarehouse[fromWarehouseID], byWarehouse[toWarehouseID], nil
}

func (r *stockLevelRepo) Upsert(ctx context.Context, level *models.StockLevel) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "variant_id"}, {Name: "warehouse_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity": level.Quantity,
				"reserved": level.Reserved,
			}),
		}).
		Create(level).Error
}

func (r *stockLevelRepo) ListByVariant(ctx context.Context, variantID uuid.UUID) ([]models.StockLevel, error) {
	var list []models.StockLevel
	err := r.db.WithContext(ctx).Where("variant_id = ?", variantID).Find(&list).Error
	return list, err
}

func (r *stockLevelRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockLevel, error) {
	var list []models.StockLevel
	err := r.db.WithContext(ctx).
		Joins("JOIN product_variants pv ON pv.id = stock_levels.variant_id").
		Where("pv.product_id = ?", productID).
		Find(&list).Error
	return list, err
}

func (r *stockLevelRepo) ListRows(ctx context.Context, productID uuid.UUID) ([]StockLevelRow, error) {
	q := r.db.WithContext(ctx).
		Table("stock_levels sl").
		Select(`sl.variant_id, pv.sku AS variant_sku, pv.size, pv.color,
			p.id AS product_id, p.name AS product_name, p.type AS product_type,
			sl.warehouse_id, w.name AS warehouse_name,
			sl.quantity, sl.reserved`).
		Joins("JOIN product_variants pv ON pv.id = sl.variant_id").
		Joins("JOIN products p ON p.id = pv.product_id").
		Joins("JOIN warehouses w ON w.id = sl.warehouse_id").
		Order("p.name, pv.sku, w.name")
	if productID != uuid.Nil {
		q = q.Where("p.id = ?", productID)
	}

	var rows []StockLevelRow
	err := q.Scan(&rows).Error
	return rows, err
}
