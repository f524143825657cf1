package service

import (
	"context"
	"encoding/json"
	"fmt"

	"atelier-stock-service/internal/cache"
	"atelier-stock-service/internal/models"
	"atelier-stock-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type reportService struct {
	repo  *repository.Repository
	log   *zap.Logger
	cache *cache.RedisClient // может быть nil
}

func NewReportService(repo *repository.Repository, log *zap.Logger, c *cache.RedisClient) *reportService {
	return &reportService{repo: repo, log: log, cache: c}
}

func classify(total, threshold decimal.Decimal) StockStatus {
	if total.LessThanOrEqual(decimal.Zero) {
		return StatusOutOfStock
	}
	limit := threshold
	if limit.LessThanOrEqual(decimal.Zero) {
		limit = defaultLowStockThreshold
	}
	if total.LessThanOrEqual(limit) {
		return StatusLowStock
	}
	return StatusInStock
}

func (s *reportService) ProductSummary(ctx context.Context, productID uuid.UUID) (*ProductSummary, error) {
	p, err := s.repo.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}

	rows, err := s.repo.Levels.ListRows(ctx, productID)
	if err != nil {
		return nil, err
	}

	// Остатки всех вариантов складываются по складам.
	byWarehouse := map[uuid.UUID]*WarehouseStock{}
	order := []uuid.UUID{}
	for _, r := range rows {
		ws, ok := byWarehouse[r.WarehouseID]
		if !ok {
			ws = &WarehouseStock{WarehouseID: r.WarehouseID, WarehouseName: r.WarehouseName}
			byWarehouse[r.WarehouseID] = ws
			order = append(order, r.WarehouseID)
		}
		ws.Quantity = ws.Quantity.Add(r.Quantity)
		ws.Reserved = ws.Reserved.Add(r.Reserved)
	}

	sum := &ProductSummary{
		ProductID:  p.ID,
		SKU:        p.SKU,
		Name:       p.Name,
		Type:       string(p.Type),
		Warehouses: make([]WarehouseStock, 0, len(order)),
	}
	for _, id := range order {
		ws := byWarehouse[id]
		ws.Available = ws.Quantity.Sub(ws.Reserved)
		sum.TotalQuantity = sum.TotalQuantity.Add(ws.Quantity)
		sum.TotalReserved = sum.TotalReserved.Add(ws.Reserved)
		sum.Warehouses = append(sum.Warehouses, *ws)
	}
	sum.TotalAvailable = sum.TotalQuantity.Sub(sum.TotalReserved)
	sum.Status = classify(sum.TotalQuantity, p.MinStockAlert)
	return sum, nil
}

func (s *reportService) Dashboard(ctx context.Context) (*DashboardCounters, error) {
	if s.cache != nil {
		if b, ok, err := s.cache.GetDashboard(ctx); err != nil {
			s.log.Warn("чтение кэша дашборда не удалось", zap.Error(err))
		} else if ok {
			var c DashboardCounters
			if err := json.Unmarshal(b, &c); err == nil {
				return &c, nil
			}
		}
	}

	c, err := s.computeDashboard(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(c); err == nil {
			if err := s.cache.SetDashboard(ctx, b); err != nil {
				s.log.Warn("запись кэша дашборда не удалась", zap.Error(err))
			}
		}
	}
	return c, nil
}

// listAllProducts выгребает товары постранично: дашборд и отчёт по
// тканям считают по всему каталогу, а не по первой странице.
func (s *reportService) listAllProducts(ctx context.Context, f repository.ProductListFilter) ([]models.Product, error) {
	const page = 500
	f.Limit = page
	f.Offset = 0

	var all []models.Product
	for {
		batch, _, err := s.repo.Products.List(ctx, f)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < page {
			return all, nil
		}
		f.Offset += page
	}
}

func (s *reportService) computeDashboard(ctx context.Context) (*DashboardCounters, error) {
	active := true
	products, err := s.listAllProducts(ctx, repository.ProductListFilter{OnlyActive: &active})
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.Levels.ListRows(ctx, uuid.Nil)
	if err != nil {
		return nil, err
	}
	totals := map[uuid.UUID]decimal.Decimal{}
	for _, r := range rows {
		totals[r.ProductID] = totals[r.ProductID].Add(r.Quantity)
	}

	c := &DashboardCounters{Products: len(products)}
	for _, p := range products {
		if p.Type == models.ProductTypeService {
			continue // услуги не складируются
		}
		switch classify(totals[p.ID], p.MinStockAlert) {
		case StatusOutOfStock:
			c.OutOfStock++
		case StatusLowStock:
			c.LowStock++
		}
	}
	return c, nil
}

func (s *reportService) FabricSummary(ctx context.Context) ([]FabricSummaryRow, error) {
	fabric := models.ProductTypeFabric
	products, err := s.listAllProducts(ctx, repository.ProductListFilter{Type: &fabric})
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.Levels.ListRows(ctx, uuid.Nil)
	if err != nil {
		return nil, err
	}
	totals := map[uuid.UUID]decimal.Decimal{}
	for _, r := range rows {
		totals[r.ProductID] = totals[r.ProductID].Add(r.Quantity)
	}

	out := make([]FabricSummaryRow, 0, len(products))
	for _, p := range products {
		total := totals[p.ID]
		out = append(out, FabricSummaryRow{
			ProductID:   p.ID,
			SKU:         p.SKU,
			Name:        p.Name,
			TotalMeters: total.StringFixed(1),
			MetersUsed:  p.FabricMetersUsed.StringFixed(1),
			Status:      classify(total, p.MinStockAlert),
		})
	}
	return out, nil
}

func (s *reportService) StockRows(ctx context.Context) ([]repository.StockLevelRow, error) {
	return s.repo.Levels.ListRows(ctx, uuid.Nil)
}
