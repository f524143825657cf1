package service

import (
	"context"

	"atelier-stock-service/internal/models"
	"atelier-stock-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AdjustInput struct {
	VariantID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal // > 0; знак задаёт Type
	Type        models.MovementType
	Reason      string
	ActorID     uuid.UUID
}

type TransferInput struct {
	VariantID       uuid.UUID
	FromWarehouseID uuid.UUID
	ToWarehouseID   uuid.UUID
	Quantity        decimal.Decimal
	Reason          string
	ActorID         uuid.UUID
}

type TransferResult struct {
	TransferID uuid.UUID          `json:"transfer_id"`
	From       *models.StockLevel `json:"from"`
	To         *models.StockLevel `json:"to"`
}

type ReserveInput struct {
	VariantID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal
	ActorID     uuid.UUID
}

type ConsumeInput struct {
	VariantID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal
	Reason      string
	ActorID     uuid.UUID
}

type ReceiveInput struct {
	VariantID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal
	Reason      string
	ActorID     uuid.UUID
}

type CountInput struct {
	VariantID   uuid.UUID
	WarehouseID uuid.UUID
	Counted     decimal.Decimal // абсолютный пересчитанный остаток, >= 0
	Reason      string
	ActorID     uuid.UUID
}

// StockService — единственный писатель stock_levels и stock_movements.
// Каждая операция — одна транзакция: строка журнала и новый остаток
// фиксируются вместе или не фиксируются вовсе.
type StockService interface {
	Adjust(ctx context.Context, in AdjustInput) (*models.StockLevel, error)
	Transfer(ctx context.Context, in TransferInput) (*TransferResult, error)
	Reserve(ctx context.Context, in ReserveInput) (*models.StockLevel, error)
	Release(ctx context.Context, in ReserveInput) (*models.StockLevel, error)
	Consume(ctx context.Context, in ConsumeInput) (*models.StockLevel, error)
	Receive(ctx context.Context, in ReceiveInput) (*models.StockLevel, error)
	ReturnStock(ctx context.Context, in ReceiveInput) (*models.StockLevel, error)
	CountInventory(ctx context.Context, in CountInput) (*models.StockLevel, error)

	GetLevel(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLevel, error)
	ListMovements(ctx context.Context, f repository.MovementListFilter) ([]models.StockMovement, int64, error)
}
