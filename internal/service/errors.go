package service

import "errors"

var (
	// ErrValidation — ошибка вызывающей стороны: неверная форма запроса,
	// дробное количество для штучного товара, пустая причина и т.п.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// ErrInsufficientStock — корректный бизнес-отказ, не баг.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNegativeStock — политика «жёсткий пол по нулю»: остаток не уходит в минус.
	ErrNegativeStock = errors.New("stock would go negative")
	// ErrConcurrencyConflict — транзиентный конфликт блокировок, повторяемый.
	ErrConcurrencyConflict = errors.New("concurrent stock update conflict")

	ErrSKUAlreadyExists    = errors.New("sku already exists")
	ErrCodeAlreadyExists   = errors.New("warehouse code already exists")
	ErrWarehouseInactive   = errors.New("warehouse is inactive")
	ErrVariantRequired     = errors.New("product has explicit variants, variant_id required")
	ErrSameWarehouse       = errors.New("source and destination warehouses must differ")
)
