package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"atelier-stock-service/internal/cache"
	"atelier-stock-service/internal/metrics"
	"atelier-stock-service/internal/models"
	"atelier-stock-service/internal/producer"
	"atelier-stock-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StockOptions struct {
	LockTimeoutMS int
	MaxRetries    int
	Cache         *cache.RedisClient         // может быть nil
	Producer      *producer.MovementProducer // может быть nil
}

type stockService struct {
	repo *repository.Repository
	log  *zap.Logger
	opts StockOptions
	now  func() time.Time
}

func NewStockService(repo *repository.Repository, log *zap.Logger, opts StockOptions) *stockService {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &stockService{
		repo: repo,
		log:  log,
		opts: opts,
		now:  time.Now,
	}
}

// runTx — одна атомарная операция движка: транзакция с ограниченным
// ожиданием блокировок и ограниченным числом повторов при конфликте.
func (s *stockService) runTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	var err error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		err = s.repo.WithTx(func(tx *repository.Repository) error {
			if e := tx.SetLocalLockTimeout(ctx, s.opts.LockTimeoutMS); e != nil {
				return e
			}
			return fn(tx)
		})
		if err == nil {
			return nil
		}
		if repository.IsLockConflict(err) {
			err = fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}

// resolveRefs проверяет справочные ссылки операции. Движок никогда
// не создаёт варианты сам — автосоздание делает каталог до вызова.
func (s *stockService) resolveRefs(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.ProductVariant, *models.Product, *models.Warehouse, error) {
	v, err := s.repo.Variants.GetByID(ctx, variantID)
	if err != nil {
		return nil, nil, nil, err
	}
	if v == nil {
		return nil, nil, nil, fmt.Errorf("%w: variant %s", ErrNotFound, variantID)
	}

	p, err := s.repo.Products.GetByID(ctx, v.ProductID)
	if err != nil {
		return nil, nil, nil, err
	}
	if p == nil {
		return nil, nil, nil, fmt.Errorf("%w: product %s", ErrNotFound, v.ProductID)
	}

	w, err := s.repo.Warehouses.GetByID(ctx, warehouseID)
	if err != nil {
		return nil, nil, nil, err
	}
	if w == nil {
		return nil, nil, nil, fmt.Errorf("%w: warehouse %s", ErrNotFound, warehouseID)
	}
	if !w.IsActive {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrWarehouseInactive, w.Code)
	}
	return v, p, w, nil
}

// checkQuantity — количество строго положительное; штучные товары
// принимают только целые значения, ткань — любые дробные.
func checkQuantity(t models.ProductType, q decimal.Decimal) error {
	if !q.IsPositive() {
		return fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}
	if !t.Fractional() && !q.IsInteger() {
		return fmt.Errorf("%w: product is tracked in whole units, got %s", ErrValidation, q)
	}
	return nil
}

func levelOrZero(l *models.StockLevel, variantID, warehouseID uuid.UUID) *models.StockLevel {
	if l != nil {
		return l
	}
	return &models.StockLevel{
		VariantID:   variantID,
		WarehouseID: warehouseID,
		Quantity:    decimal.Zero,
		Reserved:    decimal.Zero,
	}
}

// afterCommit — побочные эффекты уже зафиксированной операции:
// сброс кэша счётчиков и публикация движений. Ошибки здесь не
// откатывают склад, только логируются.
func (s *stockService) afterCommit(ctx context.Context, movements ...*models.StockMovement) {
	if s.opts.Cache != nil {
		if err := s.opts.Cache.InvalidateDashboard(ctx); err != nil {
			s.log.Warn("не удалось сбросить кэш дашборда", zap.Error(err))
		}
	}
	if s.opts.Producer != nil {
		for _, m := range movements {
			if m == nil {
				continue
			}
			if err := s.opts.Producer.PublishMovement(ctx, producer.MovementEvent{
				ID:          m.ID,
				VariantID:   m.VariantID,
				WarehouseID: m.WarehouseID,
				Type:        string(m.Type),
				Quantity:    m.Quantity,
				StockAfter:  m.StockAfter,
				ActorID:     m.ActorID,
				TransferID:  m.TransferID,
				CreatedAt:   m.CreatedAt,
			}); err != nil {
				s.log.Warn("не удалось опубликовать движение", zap.String("movement_id", m.ID.String()), zap.Error(err))
			}
		}
	}
}

func observe(op string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = "error"
	}
	metrics.StockOperations.WithLabelValues(op, outcome).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *stockService) Adjust(ctx context.Context, in AdjustInput) (level *models.StockLevel, err error) {
	defer observe("adjust", s.now(), &err)

	if in.Type != models.MovementAdjustmentPositive && in.Type != models.MovementAdjustmentNegative {
		return nil, fmt.Errorf("%w: adjust accepts adjustment_positive or adjustment_negative", ErrValidation)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required for manual adjustments", ErrValidation)
	}

	_, p, _, err := s.resolveRefs(ctx, in.VariantID, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if err = checkQuantity(p.Type, in.Quantity); err != nil {
		return nil, err
	}

	delta := in.Quantity
	if in.Type == models.MovementAdjustmentNegative {
		delta = delta.Neg()
	}

	var mv *models.StockMovement
	err = s.runTx(ctx, func(tx *repository.Repository) error {
		cur, _, err := tx.Levels.LockForUpdate(ctx, in.VariantID, in.WarehouseID)
		if err != nil {
			return err
		}

		after := cur.Quantity.Add(delta)
		if after.IsNegative() {
			return fmt.Errorf("%w: %s on hand, adjustment of %s", ErrNegativeStock, cur.Quantity, delta)
		}
		if after.LessThan(cur.Reserved) {
			return fmt.Errorf("%w: %s reserved, only %s would remain", ErrInsufficientStock, cur.Reserved, after)
		}

		mv = &models.StockMovement{
			VariantID:   in.VariantID,
			WarehouseID: in.WarehouseID,
			Type:        in.Type,
			Quantity:    delta,
			StockBefore: cur.Quantity,
			StockAfter:  after,
			Reason:      in.Reason,
			ActorID:     in.ActorID,
		}
		if err := tx.Movements.Append(ctx, mv); err != nil {
			return err
		}

		cur.Quantity = after
		if err := tx.Levels.Upsert(ctx, cur); err != nil {
			return err
		}

		// Расход ткани учитывается в той же транзакции — второй
		// независимой записи и дрейфа счётчика нет.
		if p.Type == models.ProductTypeFabric && in.Type == models.MovementAdjustmentNegative {
			if err := tx.Products.AddFabricMetersUsed(ctx, p.ID, in.Quantity); err != nil {
				return err
			}
		}

		level = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, mv)
	return level, nil
}

func (s *stockService) Transfer(ctx context.Context, in TransferInput) (res *TransferResult, err error) {
	defer observe("transfer", s.now(), &err)

	if in.FromWarehouseID == in.ToWarehouseID {
		return nil, fmt.Errorf("%w", ErrSameWarehouse)
	}

	_, p, _, err := s.resolveRefs(ctx, in.VariantID, in.FromWarehouseID)
	if err != nil {
		return nil, err
	}
	dst, err := s.repo.Warehouses.GetByID(ctx, in.ToWarehouseID)
	if err != nil {
		return nil, err
	}
	if dst == nil {
		return nil, fmt.Errorf("%w: warehouse %s", ErrNotFound, in.ToWarehouseID)
	}
	if !dst.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrWarehouseInactive, dst.Code)
	}
	if err = checkQuantity(p.Type, in.Quantity); err != nil {
		return nil, err
	}

	transferID := uuid.New()
	var outMv, inMv *models.StockMovement
	err = s.runTx(ctx, func(tx *repository.Repository) error {
		from, to, err := tx.Levels.LockPairForUpdate(ctx, in.VariantID, in.FromWarehouseID, in.ToWarehouseID)
		if err != nil {
			return err
		}

		if from.Available().LessThan(in.Quantity) {
			return fmt.Errorf("%w: %s available at source, %s requested", ErrInsufficientStock, from.Available(), in.Quantity)
		}

		fromAfter := from.Quantity.Sub(in.Quantity)
		toAfter := to.Quantity.Add(in.Quantity)

		outMv = &models.StockMovement{
			VariantID:   in.VariantID,
			WarehouseID: in.FromWarehouseID,
			Type:        models.MovementTransferOut,
			Quantity:    in.Quantity.Neg(),
			StockBefore: from.Quantity,
			StockAfter:  fromAfter,
			Reason:      in.Reason,
			ActorID:     in.ActorID,
			TransferID:  &transferID,
		}
		inMv = &models.StockMovement{
			VariantID:   in.VariantID,
			WarehouseID: in.ToWarehouseID,
			Type:        models.MovementTransferIn,
			Quantity:    in.Quantity,
			StockBefore: to.Quantity,
			StockAfter:  toAfter,
			Reason:      in.Reason,
			ActorID:     in.ActorID,
			TransferID:  &transferID,
		}
		if err := tx.Movements.Append(ctx, outMv); err != nil {
			return err
		}
		if err := tx.Movements.Append(ctx, inMv); err != nil {
			return err
		}

		from.Quantity = fromAfter
		to.Quantity = toAfter
		if err := tx.Levels.Upsert(ctx, from); err != nil {
			return err
		}
		if err := tx.Levels.Upsert(ctx, to); err != nil {
			return err
		}

		res = &TransferResult{TransferID: transferID, From: from, To: to}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, outMv, inMv)
	return res, nil
}

func (s *stockService) Reserve(ctx context.Context, in ReserveInput) (level *models.StockLevel, err error) {
	defer observe("reserve", s.now(), &err)

	_, p, _, err := s.resolveRefs(ctx, in.VariantID, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if err = checkQuantity(p.Type, in.Quantity); err != nil {
		return nil, err
	}

	var mv *models.StockMovement
	err = s.runTx(ctx, func(tx *repository.Repository) error {
		cur, _, err := tx.Levels.LockForUpdate(ctx, in.VariantID, in.WarehouseID)
		if err != nil {
			return err
		}

		newReserved := cur.Reserved.Add(in.Quantity)
		if newReserved.GreaterThan(cur.Quantity) {
			return fmt.Errorf("%w: %s on hand, %s already reserved", ErrInsufficientStock, cur.Quantity, cur.Reserved)
		}

		// Резерв не меняет on-hand: снимки before/after совпадают,
		// цепочка журнала остаётся непрерывной.
		mv = &models.StockMovement{
			VariantID:   in.VariantID,
			WarehouseID: in.WarehouseID,
			Type:        models.MovementReservation,
			Quantity:    in.Quantity,
			StockBefore: cur.Quantity,
			StockAfter:  cur.Quantity,
			ActorID:     in.ActorID,
		}
		if err := tx.Movements.Append(ctx, mv); err != nil {
			return err
		}

		cur.Reserved = newReserved
		if err := tx.Levels.Upsert(ctx, cur); err != nil {
			return err
		}
		level = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, mv)
	return level, nil
}

func (s *stockService) Release(ctx context.Context, in ReserveInput) (level *models.StockLevel, err error) {
	defer observe("release", s.now(), &err)

	_, p, _, err := s.resolveRefs(ctx, in.VariantID, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if err = checkQuantity(p.Type, in.Quantity); err != nil {
		return nil, err
	}

	var mv *models.StockMovement
	err = s.runTx(ctx, func(tx *repository.Repository) error {
		cur, _, err := tx.Levels.LockForUpdate(ctx, in.VariantID, in.WarehouseID)
		if err != nil {
			return err
		}

		released := in.Quantity
		if released.GreaterThan(cur.Reserved) {
			// Снятие больше резерва — баг вызывающей стороны:
			// опускаем до нуля и оставляем след в логе.
			s.log.Warn("снятие резерва больше зарезервированного",
				zap.String("variant_id", in.VariantID.String()),
				zap.String("warehouse_id", in.WarehouseID.String()),
				zap.String("requested", in.Quantity.String()),
				zap.String("reserved", cur.Reserved.String()),
				zap.String("actor_id", in.ActorID.String()))
			released = cur.Reserved
		}
		if released.IsZero() {
			level = cur
			return nil
		}

		mv = &models.StockMovement{
			VariantID:   in.VariantID,
			WarehouseID: in.WarehouseID,
			Type:        models.MovementReservationRelease,
			Quantity:    released.Neg(),
			StockBefore: cur.Quantity,
			StockAfter:  cur.Quantity,
			ActorID:     in.ActorID,
		}
		if err := tx.Movements.Append(ctx, mv); err != nil {
			return err
		}

		cur.Reserved = cur.Reserved.Sub(released)
		if err := tx.Levels.Upsert(ctx, cur); err != nil {
			return err
		}
		level = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, mv)
	return level, nil
}

func (s *stockService) Consume(ctx context.Context, in ConsumeInput) (level *models.StockLevel, err error) {
	defer observe("consume", s.now(), &err)

	_, p, _, err := s.resolveRefs(ctx, in.VariantID, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if err = checkQuantity(p.Type, in.Quantity); err != nil {
		return nil, err
	}

	var mv *models.StockMovement
	err = s.runTx(ctx, func(tx *repository.Repository) error {
		cur, _, err := tx.Levels.LockForUpdate(ctx, in.VariantID, in.WarehouseID)
		if err != nil {
			return err
		}

		if cur.Quantity.LessThan(in.Quantity) {
			return fmt.Errorf("%w: %s on hand, %s requested", ErrInsufficientStock, cur.Quantity, in.Quantity)
		}

		after := cur.Quantity.Sub(in.Quantity)
		// Резерв списывается вместе с продажей, но не ниже нуля.
		newReserved := cur.Reserved.Sub(in.Quantity)
		if newReserved.IsNegative() {
			newReserved = decimal.Zero
		}
		if after.LessThan(newReserved) {
			return fmt.Errorf("%w: %s reserved, only %s would remain", ErrInsufficientStock, newReserved, after)
		}

		mv = &models.StockMovement{
			VariantID:   in.VariantID,
			WarehouseID: in.WarehouseID,
			Type:        models.MovementSale,
			Quantity:    in.Quantity.Neg(),
			StockBefore: cur.Quantity,
			StockAfter:  after,
			Reason:      in.Reason,
			ActorID:     in.ActorID,
		}
		if err := tx.Movements.Append(ctx, mv); err != nil {
			return err
		}

		cur.Quantity = after
		cur.Reserved = newReserved
		if err := tx.Levels.Upsert(ctx, cur); err != nil {
			return err
		}

		if p.Type == models.ProductTypeFabric {
			if err := tx.Products.AddFabricMetersUsed(ctx, p.ID, in.Quantity); err != nil {
				return err
			}
		}

		level = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, mv)
	return level, nil
}

func (s *stockService) Receive(ctx context.Context, in ReceiveInput) (*models.StockLevel, error) {
	return s.addStock(ctx, in, models.MovementPurchase, "receive")
}

func (s *stockService) ReturnStock(ctx context.Context, in ReceiveInput) (*models.StockLevel, error) {
	return s.addStock(ctx, in, models.MovementReturn, "return")
}

// addStock — общий приходный путь: закупка и возврат покупателя.
func (s *stockService) addStock(ctx context.Context, in ReceiveInput, mt models.MovementType, op string) (level *models.StockLevel, err error) {
	defer observe(op, s.now(), &err)

	_, p, _, err := s.resolveRefs(ctx, in.VariantID, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if err = checkQuantity(p.Type, in.Quantity); err != nil {
		return nil, err
	}

	var mv *models.StockMovement
	err = s.runTx(ctx, func(tx *repository.Repository) error {
		cur, _, err := tx.Levels.LockForUpdate(ctx, in.VariantID, in.WarehouseID)
		if err != nil {
			return err
		}

		after := cur.Quantity.Add(in.Quantity)
		mv = &models.StockMovement{
			VariantID:   in.VariantID,
			WarehouseID: in.WarehouseID,
			Type:        mt,
			Quantity:    in.Quantity,
			StockBefore: cur.Quantity,
			StockAfter:  after,
			Reason:      in.Reason,
			ActorID:     in.ActorID,
		}
		if err := tx.Movements.Append(ctx, mv); err != nil {
			return err
		}

		cur.Quantity = after
		if err := tx.Levels.Upsert(ctx, cur); err != nil {
			return err
		}
		level = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, mv)
	return level, nil
}

func (s *stockService) CountInventory(ctx context.Context, in CountInput) (level *models.StockLevel, err error) {
	defer observe("count", s.now(), &err)

	if strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required for inventory counts", ErrValidation)
	}
	if in.Counted.IsNegative() {
		return nil, fmt.Errorf("%w: counted quantity must be >= 0", ErrValidation)
	}

	_, p, _, err := s.resolveRefs(ctx, in.VariantID, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if !p.Type.Fractional() && !in.Counted.IsInteger() {
		return nil, fmt.Errorf("%w: product is tracked in whole units, got %s", ErrValidation, in.Counted)
	}

	var mv *models.StockMovement
	err = s.runTx(ctx, func(tx *repository.Repository) error {
		cur, isInitial, err := tx.Levels.LockForUpdate(ctx, in.VariantID, in.WarehouseID)
		if err != nil {
			return err
		}

		delta := in.Counted.Sub(cur.Quantity)
		if delta.IsZero() {
			level = cur
			return nil
		}

		mt := models.MovementInventoryCount
		if isInitial {
			mt = models.MovementInitial
		}
		mv = &models.StockMovement{
			VariantID:   in.VariantID,
			WarehouseID: in.WarehouseID,
			Type:        mt,
			Quantity:    delta,
			StockBefore: cur.Quantity,
			StockAfter:  in.Counted,
			Reason:      in.Reason,
			ActorID:     in.ActorID,
		}
		if err := tx.Movements.Append(ctx, mv); err != nil {
			return err
		}

		cur.Quantity = in.Counted
		if cur.Reserved.GreaterThan(in.Counted) {
			// Физический пересчёт нашёл меньше, чем удержано под заказы.
			s.log.Warn("пересчёт ниже резерва, резерв урезан",
				zap.String("variant_id", in.VariantID.String()),
				zap.String("warehouse_id", in.WarehouseID.String()),
				zap.String("reserved", cur.Reserved.String()),
				zap.String("counted", in.Counted.String()))
			cur.Reserved = in.Counted
		}
		if err := tx.Levels.Upsert(ctx, cur); err != nil {
			return err
		}
		level = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, mv)
	return level, nil
}

func (s *stockService) GetLevel(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLevel, error) {
	v, err := s.repo.Variants.GetByID(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: variant %s", ErrNotFound, variantID)
	}
	w, err := s.repo.Warehouses.GetByID(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%w: warehouse %s", ErrNotFound, warehouseID)
	}
	l, err := s.repo.Levels.Get(ctx, variantID, warehouseID)
	if err != nil {
		return nil, err
	}
	return levelOrZero(l, variantID, warehouseID), nil
}

func (s *stockService) ListMovements(ctx context.Context, f repository.MovementListFilter) ([]models.StockMovement, int64, error) {
	return s.repo.Movements.List(ctx, f)
}
