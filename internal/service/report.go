package service

import (
	"context"

	"atelier-stock-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type StockStatus string

const (
	StatusInStock    StockStatus = "in_stock"
	StatusLowStock   StockStatus = "low_stock"
	StatusOutOfStock StockStatus = "out_of_stock"
)

// Порог «мало остатков» по умолчанию, когда у товара не задан свой.
var defaultLowStockThreshold = decimal.NewFromInt(5)

type WarehouseStock struct {
	WarehouseID   uuid.UUID       `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name"`
	Quantity      decimal.Decimal `json:"quantity"`
	Reserved      decimal.Decimal `json:"reserved"`
	Available     decimal.Decimal `json:"available"`
}

type ProductSummary struct {
	ProductID      uuid.UUID        `json:"product_id"`
	SKU            string           `json:"sku"`
	Name           string           `json:"name"`
	Type           string           `json:"type"`
	TotalQuantity  decimal.Decimal  `json:"total_quantity"`
	TotalReserved  decimal.Decimal  `json:"total_reserved"`
	TotalAvailable decimal.Decimal  `json:"total_available"`
	Status         StockStatus      `json:"status"`
	Warehouses     []WarehouseStock `json:"warehouses"`
}

type DashboardCounters struct {
	Products   int `json:"products"`
	LowStock   int `json:"low_stock"`
	OutOfStock int `json:"out_of_stock"`
}

type FabricSummaryRow struct {
	ProductID   uuid.UUID   `json:"product_id"`
	SKU         string      `json:"sku"`
	Name        string      `json:"name"`
	TotalMeters string      `json:"total_meters"` // один знак после запятой
	MetersUsed  string      `json:"meters_used"`
	Status      StockStatus `json:"status"`
}

// ReportService — только чтение производных представлений;
// склад он никогда не изменяет.
type ReportService interface {
	ProductSummary(ctx context.Context, productID uuid.UUID) (*ProductSummary, error)
	Dashboard(ctx context.Context) (*DashboardCounters, error)
	FabricSummary(ctx context.Context) ([]FabricSummaryRow, error)
	StockRows(ctx context.Context) ([]repository.StockLevelRow, error)
}
