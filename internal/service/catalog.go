package service

import (
	"context"

	"atelier-stock-service/internal/models"
	"atelier-stock-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WarehouseInput struct {
	Name               string
	Code               string
	StoreID            *uuid.UUID
	IsMain             bool
	AcceptsOnlineStock bool
}

type WarehousePatch struct {
	Name               *string
	StoreID            *uuid.UUID
	IsMain             *bool
	AcceptsOnlineStock *bool
	IsActive           *bool
}

type ProductInput struct {
	SKU           string
	Name          string
	Type          models.ProductType
	CostPrice     decimal.Decimal
	BasePrice     decimal.Decimal
	TaxRate       decimal.Decimal
	MinStockAlert decimal.Decimal
}

type ProductPatch struct {
	Name          *string
	CostPrice     *decimal.Decimal
	BasePrice     *decimal.Decimal
	TaxRate       *decimal.Decimal
	MinStockAlert *decimal.Decimal
	IsActive      *bool
}

type VariantInput struct {
	ProductID     uuid.UUID
	SKU           string
	Size          string
	Color         string
	PriceOverride *decimal.Decimal
}

// CatalogService — справочники: склады, товары, варианты.
// Справочные данные движок склада только читает; единственная запись
// с его стороны — автосоздание канонического варианта.
type CatalogService interface {
	CreateWarehouse(ctx context.Context, in WarehouseInput) (*models.Warehouse, error)
	UpdateWarehouse(ctx context.Context, id uuid.UUID, patch WarehousePatch) (*models.Warehouse, error)
	GetWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
	ListWarehouses(ctx context.Context, onlyActive bool) ([]models.Warehouse, error)

	CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, patch ProductPatch) (*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, f repository.ProductListFilter) ([]models.Product, int64, error)

	CreateVariant(ctx context.Context, in VariantInput) (*models.ProductVariant, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error)

	// EnsureDefaultVariant идемпотентно создаёт канонический вариант
	// `{sku}-01` для товара без вариантов и возвращает его.
	EnsureDefaultVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error)
}
