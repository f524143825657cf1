package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atelier-stock-service/internal/models"
	"atelier-stock-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type catalogService struct {
	repo *repository.Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewCatalogService(repo *repository.Repository, log *zap.Logger) *catalogService {
	return &catalogService{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (s *catalogService) CreateWarehouse(ctx context.Context, in WarehouseInput) (*models.Warehouse, error) {
	name := strings.TrimSpace(in.Name)
	code := strings.TrimSpace(in.Code)
	if name == "" || code == "" {
		return nil, fmt.Errorf("%w: name and code are required", ErrValidation)
	}

	if existing, err := s.repo.Warehouses.GetByCode(ctx, code); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrCodeAlreadyExists, code)
	}

	w := &models.Warehouse{
		Name:               name,
		Code:               code,
		StoreID:            in.StoreID,
		IsMain:             in.IsMain,
		AcceptsOnlineStock: in.AcceptsOnlineStock,
		IsActive:           true,
	}
	if err := s.repo.Warehouses.Create(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *catalogService) UpdateWarehouse(ctx context.Context, id uuid.UUID, patch WarehousePatch) (*models.Warehouse, error) {
	w, err := s.repo.Warehouses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%w: warehouse %s", ErrNotFound, id)
	}

	fields := map[string]any{}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		fields["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.StoreID != nil {
		fields["store_id"] = *patch.StoreID
	}
	if patch.IsMain != nil {
		fields["is_main"] = *patch.IsMain
	}
	if patch.AcceptsOnlineStock != nil {
		fields["accepts_online_stock"] = *patch.AcceptsOnlineStock
	}
	if patch.IsActive != nil {
		// Склады не удаляются, только деактивируются.
		fields["is_active"] = *patch.IsActive
	}
	if len(fields) == 0 {
		return w, nil
	}

	if err := s.repo.Warehouses.UpdateFields(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.repo.Warehouses.GetByID(ctx, id)
}

func (s *catalogService) GetWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	w, err := s.repo.Warehouses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%w: warehouse %s", ErrNotFound, id)
	}
	return w, nil
}

func (s *catalogService) ListWarehouses(ctx context.Context, onlyActive bool) ([]models.Warehouse, error) {
	return s.repo.Warehouses.List(ctx, onlyActive)
}

func (s *catalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	sku := strings.TrimSpace(in.SKU)
	name := strings.TrimSpace(in.Name)
	if sku == "" || name == "" {
		return nil, fmt.Errorf("%w: sku and name are required", ErrValidation)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown product type %q", ErrValidation, in.Type)
	}
	if in.CostPrice.IsNegative() || in.BasePrice.IsNegative() || in.TaxRate.IsNegative() || in.MinStockAlert.IsNegative() {
		return nil, fmt.Errorf("%w: prices, tax rate and stock alert must be non-negative", ErrValidation)
	}
	if !in.Type.Fractional() && !in.MinStockAlert.IsInteger() {
		return nil, fmt.Errorf("%w: min stock alert must be a whole number for %s products", ErrValidation, in.Type)
	}

	if existing, err := s.repo.Products.GetBySKU(ctx, sku); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrSKUAlreadyExists, sku)
	}

	p := &models.Product{
		SKU:           sku,
		Name:          name,
		Type:          in.Type,
		CostPrice:     in.CostPrice,
		BasePrice:     in.BasePrice,
		TaxRate:       in.TaxRate,
		MinStockAlert: in.MinStockAlert,
		IsActive:      true,
	}
	if err := s.repo.Products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, patch ProductPatch) (*models.Product, error) {
	p, err := s.repo.Products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}

	fields := map[string]any{}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		fields["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.CostPrice != nil {
		if patch.CostPrice.IsNegative() {
			return nil, fmt.Errorf("%w: cost price must be non-negative", ErrValidation)
		}
		fields["cost_price"] = *patch.CostPrice
	}
	if patch.BasePrice != nil {
		if patch.BasePrice.IsNegative() {
			return nil, fmt.Errorf("%w: base price must be non-negative", ErrValidation)
		}
		fields["base_price"] = *patch.BasePrice
	}
	if patch.TaxRate != nil {
		if patch.TaxRate.IsNegative() {
			return nil, fmt.Errorf("%w: tax rate must be non-negative", ErrValidation)
		}
		fields["tax_rate"] = *patch.TaxRate
	}
	if patch.MinStockAlert != nil {
		if patch.MinStockAlert.IsNegative() {
			return nil, fmt.Errorf("%w: min stock alert must be non-negative", ErrValidation)
		}
		if !p.Type.Fractional() && !patch.MinStockAlert.IsInteger() {
			return nil, fmt.Errorf("%w: min stock alert must be a whole number for %s products", ErrValidation, p.Type)
		}
		fields["min_stock_alert"] = *patch.MinStockAlert
	}
	if patch.IsActive != nil {
		fields["is_active"] = *patch.IsActive
	}
	if len(fields) == 0 {
		return p, nil
	}

	if err := s.repo.Products.UpdateFields(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.repo.Products.GetByID(ctx, id)
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.repo.Products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return p, nil
}

func (s *catalogService) ListProducts(ctx context.Context, f repository.ProductListFilter) ([]models.Product, int64, error) {
	return s.repo.Products.List(ctx, f)
}

func (s *catalogService) CreateVariant(ctx context.Context, in VariantInput) (*models.ProductVariant, error) {
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return nil, fmt.Errorf("%w: sku is required", ErrValidation)
	}
	if in.PriceOverride != nil && in.PriceOverride.IsNegative() {
		return nil, fmt.Errorf("%w: price override must be non-negative", ErrValidation)
	}

	p, err := s.repo.Products.GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, in.ProductID)
	}

	if existing, err := s.repo.Variants.GetBySKU(ctx, sku); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrSKUAlreadyExists, sku)
	}

	v := &models.ProductVariant{
		ProductID:     in.ProductID,
		SKU:           sku,
		Size:          strings.TrimSpace(in.Size),
		Color:         strings.TrimSpace(in.Color),
		PriceOverride: in.PriceOverride,
		IsActive:      true,
	}
	if err := s.repo.Variants.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *catalogService) ListVariants(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error) {
	return s.repo.Variants.ListByProduct(ctx, productID)
}

func (s *catalogService) EnsureDefaultVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error) {
	p, err := s.repo.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}

	canonical := p.SKU + "-01"
	if v, err := s.repo.Variants.GetBySKU(ctx, canonical); err != nil {
		return nil, err
	} else if v != nil {
		return v, nil
	}

	cnt, err := s.repo.Variants.CountByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if cnt > 0 {
		// Товар уже ведётся по явным вариантам — выбирать за
		// вызывающего нельзя.
		return nil, fmt.Errorf("%w: product %s", ErrVariantRequired, p.SKU)
	}

	v := &models.ProductVariant{
		ProductID: productID,
		SKU:       canonical,
		IsActive:  true,
	}
	// Гонка двух автосозданий решается уникальным индексом по SKU:
	// проигравший молча перечитывает победителя.
	if err := s.repo.Variants.CreateIfAbsent(ctx, v); err != nil {
		return nil, err
	}
	created, err := s.repo.Variants.GetBySKU(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("%w: variant %s", ErrNotFound, canonical)
	}
	if created.ID != v.ID {
		s.log.Debug("канонический вариант уже создан параллельно", zap.String("sku", canonical))
	}
	return created, nil
}
