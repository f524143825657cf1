package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Repository struct {
	DB         *gorm.DB
	Warehouses WarehouseRepo
	Products   ProductRepo
	Variants   VariantRepo
	Levels     StockLevelRepo
	Movements  MovementRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:         db,
		Warehouses: NewWarehouseRepo(db),
		Products:   NewProductRepo(db),
		Variants:   NewVariantRepo(db),
		Levels:     NewStockLevelRepo(db),
		Movements:  NewMovementRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// Глобальная транзакция на весь набор репо
func (r *Repository) WithTx(fn func(tx *Repository) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}

// SetLocalLockTimeout ограничивает ожидание блокировок строк внутри
// текущей транзакции. Работает только внутри WithTx.
func (r *Repository) SetLocalLockTimeout(ctx context.Context, ms int) error {
	if ms <= 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)).Error
}

// IsLockConflict распознаёт транзиентные конфликты блокировок:
// 55P03 lock_not_available, 40P01 deadlock_detected, 40001 serialization_failure.
func IsLockConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "55P03", "40P01", "40001":
		return true
	}
	return false
}
