package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"atelier-stock-service/internal/migrate"
	"atelier-stock-service/internal/models"
	"atelier-stock-service/internal/repository"
	"atelier-stock-service/internal/service"
	"atelier-stock-service/pkg/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type env struct {
	repos   *repository.Repository
	catalog service.CatalogService
	stock   service.StockService
	reports service.ReportService
	actor   uuid.UUID
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigrateStockDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repos := repository.New(db)
	log := zap.NewNop()
	return &env{
		repos:   repos,
		catalog: service.NewCatalogService(repos, log),
		stock: service.NewStockService(repos, log, service.StockOptions{
			LockTimeoutMS: 3000,
			MaxRetries:    5,
		}),
		reports: service.NewReportService(repos, log, nil),
		actor:   uuid.New(),
	}
}

func (e *env) mustWarehouse(t *testing.T, code string) *models.Warehouse {
	t.Helper()
	w, err := e.catalog.CreateWarehouse(context.Background(), service.WarehouseInput{Name: "Склад " + code, Code: code})
	if err != nil {
		t.Fatalf("create warehouse %s: %v", code, err)
	}
	return w
}

func (e *env) mustProduct(t *testing.T, sku string, pt models.ProductType) *models.Product {
	t.Helper()
	p, err := e.catalog.CreateProduct(context.Background(), service.ProductInput{SKU: sku, Name: "Товар " + sku, Type: pt})
	if err != nil {
		t.Fatalf("create product %s: %v", sku, err)
	}
	return p
}

func (e *env) mustVariant(t *testing.T, productID uuid.UUID) *models.ProductVariant {
	t.Helper()
	v, err := e.catalog.EnsureDefaultVariant(context.Background(), productID)
	if err != nil {
		t.Fatalf("ensure variant: %v", err)
	}
	return v
}

func TestStockService_FullFlow(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	main := e.mustWarehouse(t, "MAIN")
	shop := e.mustWarehouse(t, "SHOP")
	p := e.mustProduct(t, "SUIT-100", models.ProductTypePiece)
	v := e.mustVariant(t, p.ID)

	// Приход 10 на основной склад
	level, err := e.stock.Receive(ctx, service.ReceiveInput{
		VariantID: v.ID, WarehouseID: main.ID,
		Quantity: decimal.NewFromInt(10), Reason: "поставка", ActorID: e.actor,
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !level.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("after receive: expected 10, got %s", level.Quantity)
	}

	// Перемещение 4 в магазин
	res, err := e.stock.Transfer(ctx, service.TransferInput{
		VariantID: v.ID, FromWarehouseID: main.ID, ToWarehouseID: shop.ID,
		Quantity: decimal.NewFromInt(4), ActorID: e.actor,
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if !res.From.Quantity.Equal(decimal.NewFromInt(6)) || !res.To.Quantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("after transfer: from=%s to=%s", res.From.Quantity, res.To.Quantity)
	}
	if res.TransferID == uuid.Nil {
		t.Fatal("expected transfer id")
	}

	// Обе стороны перемещения делят transfer_id
	list, _, err := e.stock.ListMovements(ctx, repository.MovementListFilter{VariantID: &v.ID})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	var paired int
	for _, m := range list {
		if m.TransferID != nil && *m.TransferID == res.TransferID {
			paired++
		}
	}
	if paired != 2 {
		t.Fatalf("expected 2 movements sharing transfer id, got %d", paired)
	}

	// Резерв 3 в магазине
	level, err = e.stock.Reserve(ctx, service.ReserveInput{
		VariantID: v.ID, WarehouseID: shop.ID, Quantity: decimal.NewFromInt(3), ActorID: e.actor,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !level.Reserved.Equal(decimal.NewFromInt(3)) || !level.Available().Equal(decimal.NewFromInt(1)) {
		t.Fatalf("after reserve: %+v", level)
	}

	// Продажа 3: резерв схлопывается вместе с остатком
	level, err = e.stock.Consume(ctx, service.ConsumeInput{
		VariantID: v.ID, WarehouseID: shop.ID, Quantity: decimal.NewFromInt(3), Reason: "заказ 42", ActorID: e.actor,
	})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !level.Quantity.Equal(decimal.NewFromInt(1)) || !level.Reserved.IsZero() {
		t.Fatalf("after consume: %+v", level)
	}

	// Цепочка журнала непрерывна на каждом складе
	for _, wh := range []uuid.UUID{main.ID, shop.ID} {
		chain, err := e.repos.Movements.ChainForPair(ctx, v.ID, wh)
		if err != nil {
			t.Fatalf("ChainForPair: %v", err)
		}
		for i := 1; i < len(chain); i++ {
			if !chain[i-1].StockAfter.Equal(chain[i].StockBefore) {
				t.Fatalf("broken chain at %d for warehouse %s", i, wh)
			}
		}
	}
}

func TestStockService_AdjustFloorsAtZero(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	w := e.mustWarehouse(t, "MAIN")
	p := e.mustProduct(t, "BTN-001", models.ProductTypeAccessory)
	v := e.mustVariant(t, p.ID)

	if _, err := e.stock.Adjust(ctx, service.AdjustInput{
		VariantID: v.ID, WarehouseID: w.ID,
		Quantity: decimal.NewFromInt(5), Type: models.MovementAdjustmentPositive,
		Reason: "пересорт", ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Adjust +5: %v", err)
	}

	_, err := e.stock.Adjust(ctx, service.AdjustInput{
		VariantID: v.ID, WarehouseID: w.ID,
		Quantity: decimal.NewFromInt(6), Type: models.MovementAdjustmentNegative,
		Reason: "недостача", ActorID: e.actor,
	})
	if !errors.Is(err, service.ErrNegativeStock) {
		t.Fatalf("expected ErrNegativeStock, got %v", err)
	}

	// Без причины ручная корректировка не проходит
	_, err = e.stock.Adjust(ctx, service.AdjustInput{
		VariantID: v.ID, WarehouseID: w.ID,
		Quantity: decimal.NewFromInt(1), Type: models.MovementAdjustmentNegative,
		ActorID: e.actor,
	})
	if !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty reason, got %v", err)
	}
}

func TestStockService_FractionalQuantities(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	w := e.mustWarehouse(t, "MAIN")
	fabric := e.mustProduct(t, "FAB-100", models.ProductTypeFabric)
	fv := e.mustVariant(t, fabric.ID)
	piece := e.mustProduct(t, "SUIT-200", models.ProductTypePiece)
	pv := e.mustVariant(t, piece.ID)

	// Ткань принимает дробные метры
	level, err := e.stock.Receive(ctx, service.ReceiveInput{
		VariantID: fv.ID, WarehouseID: w.ID,
		Quantity: decimal.RequireFromString("12.5"), Reason: "рулон", ActorID: e.actor,
	})
	if err != nil {
		t.Fatalf("Receive fabric: %v", err)
	}
	if !level.Quantity.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("fabric quantity: %s", level.Quantity)
	}

	// Штучный товар дробные не принимает
	_, err = e.stock.Receive(ctx, service.ReceiveInput{
		VariantID: pv.ID, WarehouseID: w.ID,
		Quantity: decimal.RequireFromString("1.5"), ActorID: e.actor,
	})
	if !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected ErrValidation for fractional piece, got %v", err)
	}

	// Расход ткани копится на товаре в той же транзакции
	if _, err := e.stock.Consume(ctx, service.ConsumeInput{
		VariantID: fv.ID, WarehouseID: w.ID,
		Quantity: decimal.RequireFromString("2.5"), Reason: "заказ", ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Consume fabric: %v", err)
	}
	got, _ := e.repos.Products.GetByID(ctx, fabric.ID)
	if !got.FabricMetersUsed.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("fabric_meters_used: expected 2.5, got %s", got.FabricMetersUsed)
	}
}

func TestStockService_ReserveAndRelease(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	w := e.mustWarehouse(t, "MAIN")
	p := e.mustProduct(t, "DRESS-100", models.ProductTypePiece)
	v := e.mustVariant(t, p.ID)

	if _, err := e.stock.Receive(ctx, service.ReceiveInput{
		VariantID: v.ID, WarehouseID: w.ID, Quantity: decimal.NewFromInt(5), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	// Резерв сверх остатка отклоняется
	_, err := e.stock.Reserve(ctx, service.ReserveInput{
		VariantID: v.ID, WarehouseID: w.ID, Quantity: decimal.NewFromInt(6), ActorID: e.actor,
	})
	if !errors.Is(err, service.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if _, err := e.stock.Reserve(ctx, service.ReserveInput{
		VariantID: v.ID, WarehouseID: w.ID, Quantity: decimal.NewFromInt(2), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// Снятие больше резерва опускается до нуля, не в минус
	level, err := e.stock.Release(ctx, service.ReserveInput{
		VariantID: v.ID, WarehouseID: w.ID, Quantity: decimal.NewFromInt(10), ActorID: e.actor,
	})
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !level.Reserved.IsZero() || !level.Quantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("after release: %+v", level)
	}

	// Резервные движения не трогают on-hand: снимки совпадают
	chain, err := e.repos.Movements.ChainForPair(ctx, v.ID, w.ID)
	if err != nil {
		t.Fatalf("ChainForPair: %v", err)
	}
	for _, m := range chain {
		if m.Type == models.MovementReservation || m.Type == models.MovementReservationRelease {
			if !m.StockBefore.Equal(m.StockAfter) {
				t.Fatalf("reservation movement changed snapshots: %+v", m)
			}
		}
	}
}

func TestStockService_TransferValidation(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	main := e.mustWarehouse(t, "MAIN")
	p := e.mustProduct(t, "COAT-100", models.ProductTypePiece)
	v := e.mustVariant(t, p.ID)

	_, err := e.stock.Transfer(ctx, service.TransferInput{
		VariantID: v.ID, FromWarehouseID: main.ID, ToWarehouseID: main.ID,
		Quantity: decimal.NewFromInt(1), ActorID: e.actor,
	})
	if !errors.Is(err, service.ErrSameWarehouse) {
		t.Fatalf("expected ErrSameWarehouse, got %v", err)
	}

	shop := e.mustWarehouse(t, "SHOP")
	_, err = e.stock.Transfer(ctx, service.TransferInput{
		VariantID: v.ID, FromWarehouseID: main.ID, ToWarehouseID: shop.ID,
		Quantity: decimal.NewFromInt(1), ActorID: e.actor,
	})
	if !errors.Is(err, service.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock from empty source, got %v", err)
	}
}

func TestStockService_CountInventory(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	w := e.mustWarehouse(t, "MAIN")
	p := e.mustProduct(t, "SHIRT-100", models.ProductTypePiece)
	v := e.mustVariant(t, p.ID)

	// Первый пересчёт строки без истории — движение initial
	level, err := e.stock.CountInventory(ctx, service.CountInput{
		VariantID: v.ID, WarehouseID: w.ID,
		Counted: decimal.NewFromInt(8), Reason: "начальная инвентаризация", ActorID: e.actor,
	})
	if err != nil {
		t.Fatalf("CountInventory initial: %v", err)
	}
	if !level.Quantity.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("after initial count: %s", level.Quantity)
	}

	// Повторный пересчёт — inventory_count с дельтой
	level, err = e.stock.CountInventory(ctx, service.CountInput{
		VariantID: v.ID, WarehouseID: w.ID,
		Counted: decimal.NewFromInt(6), Reason: "пересчёт", ActorID: e.actor,
	})
	if err != nil {
		t.Fatalf("CountInventory recount: %v", err)
	}
	if !level.Quantity.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("after recount: %s", level.Quantity)
	}

	chain, err := e.repos.Movements.ChainForPair(ctx, v.ID, w.ID)
	if err != nil {
		t.Fatalf("ChainForPair: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(chain))
	}
	if chain[0].Type != models.MovementInitial || chain[1].Type != models.MovementInventoryCount {
		t.Fatalf("movement types: %s, %s", chain[0].Type, chain[1].Type)
	}
	if !chain[1].Quantity.Equal(decimal.NewFromInt(-2)) {
		t.Fatalf("recount delta: expected -2, got %s", chain[1].Quantity)
	}

	// Пересчёт без изменений не пишет движение
	if _, err := e.stock.CountInventory(ctx, service.CountInput{
		VariantID: v.ID, WarehouseID: w.ID,
		Counted: decimal.NewFromInt(6), Reason: "контрольный", ActorID: e.actor,
	}); err != nil {
		t.Fatalf("CountInventory no-op: %v", err)
	}
	chain, _ = e.repos.Movements.ChainForPair(ctx, v.ID, w.ID)
	if len(chain) != 2 {
		t.Fatalf("no-op count produced a movement: %d", len(chain))
	}
}

func TestStockService_InverseAdjustRestoresLevel(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	w := e.mustWarehouse(t, "MAIN")
	p := e.mustProduct(t, "HAT-100", models.ProductTypeAccessory)
	v := e.mustVariant(t, p.ID)

	if _, err := e.stock.Receive(ctx, service.ReceiveInput{
		VariantID: v.ID, WarehouseID: w.ID, Quantity: decimal.NewFromInt(7), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	for _, mt := range []models.MovementType{models.MovementAdjustmentPositive, models.MovementAdjustmentNegative} {
		if _, err := e.stock.Adjust(ctx, service.AdjustInput{
			VariantID: v.ID, WarehouseID: w.ID,
			Quantity: decimal.NewFromInt(3), Type: mt, Reason: "сверка", ActorID: e.actor,
		}); err != nil {
			t.Fatalf("Adjust %s: %v", mt, err)
		}
	}

	level, err := e.stock.GetLevel(ctx, v.ID, w.ID)
	if err != nil {
		t.Fatalf("GetLevel: %v", err)
	}
	if !level.Quantity.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("inverse adjust did not restore level: %s", level.Quantity)
	}

	// Дельты пары корректировок дают в сумме ноль
	chain, _ := e.repos.Movements.ChainForPair(ctx, v.ID, w.ID)
	var sum decimal.Decimal
	for _, m := range chain[1:] {
		sum = sum.Add(m.Quantity)
	}
	if !sum.IsZero() {
		t.Fatalf("adjustment deltas sum: %s", sum)
	}
}

func TestStockService_TransferRoundTrip(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	a := e.mustWarehouse(t, "WH-A")
	b := e.mustWarehouse(t, "WH-B")
	p := e.mustProduct(t, "VEST-100", models.ProductTypePiece)
	v := e.mustVariant(t, p.ID)

	if _, err := e.stock.Receive(ctx, service.ReceiveInput{
		VariantID: v.ID, WarehouseID: a.ID, Quantity: decimal.NewFromInt(9), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if _, err := e.stock.Transfer(ctx, service.TransferInput{
		VariantID: v.ID, FromWarehouseID: a.ID, ToWarehouseID: b.ID,
		Quantity: decimal.NewFromInt(4), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Transfer A->B: %v", err)
	}
	if _, err := e.stock.Transfer(ctx, service.TransferInput{
		VariantID: v.ID, FromWarehouseID: b.ID, ToWarehouseID: a.ID,
		Quantity: decimal.NewFromInt(4), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Transfer B->A: %v", err)
	}

	la, _ := e.stock.GetLevel(ctx, v.ID, a.ID)
	lb, _ := e.stock.GetLevel(ctx, v.ID, b.ID)
	if !la.Quantity.Equal(decimal.NewFromInt(9)) || !lb.Quantity.IsZero() {
		t.Fatalf("round trip broke quantities: a=%s b=%s", la.Quantity, lb.Quantity)
	}
	// Суммарный остаток по складам инвариантен к перемещениям
	if !la.Quantity.Add(lb.Quantity).Equal(decimal.NewFromInt(9)) {
		t.Fatalf("total changed: %s", la.Quantity.Add(lb.Quantity))
	}
}

func TestStockService_ConcurrentAdjusts(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	w := e.mustWarehouse(t, "MAIN")
	p := e.mustProduct(t, "BELT-100", models.ProductTypeAccessory)
	v := e.mustVariant(t, p.ID)

	const workers = 10
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.stock.Adjust(ctx, service.AdjustInput{
				VariantID: v.ID, WarehouseID: w.ID,
				Quantity: decimal.NewFromInt(1), Type: models.MovementAdjustmentPositive,
				Reason: "параллельный приход", ActorID: e.actor,
			})
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent Adjust: %v", err)
		}
	}

	level, err := e.stock.GetLevel(ctx, v.ID, w.ID)
	if err != nil {
		t.Fatalf("GetLevel: %v", err)
	}
	if !level.Quantity.Equal(decimal.NewFromInt(workers)) {
		t.Fatalf("lost update: expected %d, got %s", workers, level.Quantity)
	}

	// Под блокировкой строки цепочка остаётся непрерывной
	chain, err := e.repos.Movements.ChainForPair(ctx, v.ID, w.ID)
	if err != nil {
		t.Fatalf("ChainForPair: %v", err)
	}
	if len(chain) != workers {
		t.Fatalf("expected %d movements, got %d", workers, len(chain))
	}
	for i := 1; i < len(chain); i++ {
		if !chain[i-1].StockAfter.Equal(chain[i].StockBefore) {
			t.Fatalf("broken chain at %d", i)
		}
	}
}

func TestStockService_ConcurrentOppositeTransfers(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	a := e.mustWarehouse(t, "WH-A")
	b := e.mustWarehouse(t, "WH-B")
	p := e.mustProduct(t, "SKIRT-100", models.ProductTypePiece)
	v := e.mustVariant(t, p.ID)

	for _, wh := range []uuid.UUID{a.ID, b.ID} {
		if _, err := e.stock.Receive(ctx, service.ReceiveInput{
			VariantID: v.ID, WarehouseID: wh, Quantity: decimal.NewFromInt(10), ActorID: e.actor,
		}); err != nil {
			t.Fatalf("Receive: %v", err)
		}
	}

	// Встречные перемещения одной пары складов: блокировки берутся
	// в фиксированном порядке warehouse_id, AB/BA не взаимоблокируются.
	const rounds = 5
	var wg sync.WaitGroup
	errCh := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.stock.Transfer(ctx, service.TransferInput{
				VariantID: v.ID, FromWarehouseID: a.ID, ToWarehouseID: b.ID,
				Quantity: decimal.NewFromInt(1), ActorID: e.actor,
			})
			errCh <- err
		}()
		go func() {
			defer wg.Done()
			_, err := e.stock.Transfer(ctx, service.TransferInput{
				VariantID: v.ID, FromWarehouseID: b.ID, ToWarehouseID: a.ID,
				Quantity: decimal.NewFromInt(1), ActorID: e.actor,
			})
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent Transfer: %v", err)
		}
	}

	// Перемещения не создают и не уничтожают остаток
	la, err := e.stock.GetLevel(ctx, v.ID, a.ID)
	if err != nil {
		t.Fatalf("GetLevel a: %v", err)
	}
	lb, err := e.stock.GetLevel(ctx, v.ID, b.ID)
	if err != nil {
		t.Fatalf("GetLevel b: %v", err)
	}
	if !la.Quantity.Add(lb.Quantity).Equal(decimal.NewFromInt(20)) {
		t.Fatalf("total changed: a=%s b=%s", la.Quantity, lb.Quantity)
	}
	if !la.Quantity.Equal(decimal.NewFromInt(10)) || !lb.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("equal rounds must cancel out: a=%s b=%s", la.Quantity, lb.Quantity)
	}

	// Цепочка каждого склада непрерывна: приход + по движению на раунд
	for _, wh := range []uuid.UUID{a.ID, b.ID} {
		chain, err := e.repos.Movements.ChainForPair(ctx, v.ID, wh)
		if err != nil {
			t.Fatalf("ChainForPair: %v", err)
		}
		if len(chain) != 1+2*rounds {
			t.Fatalf("expected %d movements, got %d", 1+2*rounds, len(chain))
		}
		for i := 1; i < len(chain); i++ {
			if !chain[i-1].StockAfter.Equal(chain[i].StockBefore) {
				t.Fatalf("broken chain at %d for warehouse %s", i, wh)
			}
		}
	}
}

func TestStockService_GetLevelUnknownRefs(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	w := e.mustWarehouse(t, "MAIN")
	p := e.mustProduct(t, "TIE-100", models.ProductTypeAccessory)
	v := e.mustVariant(t, p.ID)

	if _, err := e.stock.GetLevel(ctx, uuid.New(), w.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown variant: expected ErrNotFound, got %v", err)
	}
	if _, err := e.stock.GetLevel(ctx, v.ID, uuid.New()); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown warehouse: expected ErrNotFound, got %v", err)
	}

	// Известная пара без движений — нулевой остаток, не ошибка
	level, err := e.stock.GetLevel(ctx, v.ID, w.ID)
	if err != nil {
		t.Fatalf("GetLevel: %v", err)
	}
	if !level.Quantity.IsZero() || !level.Reserved.IsZero() {
		t.Fatalf("expected zero level: %+v", level)
	}
}

func TestCatalogService_EnsureDefaultVariant(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	p := e.mustProduct(t, "SCARF-100", models.ProductTypeAccessory)

	first, err := e.catalog.EnsureDefaultVariant(ctx, p.ID)
	if err != nil {
		t.Fatalf("EnsureDefaultVariant: %v", err)
	}
	if first.SKU != "SCARF-100-01" {
		t.Fatalf("canonical sku: %s", first.SKU)
	}

	// Повторный вызов возвращает тот же вариант
	second, err := e.catalog.EnsureDefaultVariant(ctx, p.ID)
	if err != nil {
		t.Fatalf("EnsureDefaultVariant repeat: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same variant, got %s and %s", first.ID, second.ID)
	}

	// У товара с явными вариантами автосоздания нет
	withVariants := e.mustProduct(t, "SUIT-300", models.ProductTypePiece)
	if _, err := e.catalog.CreateVariant(ctx, service.VariantInput{
		ProductID: withVariants.ID, SKU: "SUIT-300-M", Size: "M",
	}); err != nil {
		t.Fatalf("CreateVariant: %v", err)
	}
	_, err = e.catalog.EnsureDefaultVariant(ctx, withVariants.ID)
	if !errors.Is(err, service.ErrVariantRequired) {
		t.Fatalf("expected ErrVariantRequired, got %v", err)
	}
}

func TestReportService_SummaryAndDashboard(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	main := e.mustWarehouse(t, "MAIN")
	shop := e.mustWarehouse(t, "SHOP")
	p := e.mustProduct(t, "SUIT-400", models.ProductTypePiece)
	v := e.mustVariant(t, p.ID)

	if _, err := e.stock.Receive(ctx, service.ReceiveInput{
		VariantID: v.ID, WarehouseID: main.ID, Quantity: decimal.NewFromInt(10), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if _, err := e.stock.Transfer(ctx, service.TransferInput{
		VariantID: v.ID, FromWarehouseID: main.ID, ToWarehouseID: shop.ID,
		Quantity: decimal.NewFromInt(4), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := e.stock.Reserve(ctx, service.ReserveInput{
		VariantID: v.ID, WarehouseID: shop.ID, Quantity: decimal.NewFromInt(2), ActorID: e.actor,
	}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	sum, err := e.reports.ProductSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("ProductSummary: %v", err)
	}
	if !sum.TotalQuantity.Equal(decimal.NewFromInt(10)) || !sum.TotalReserved.Equal(decimal.NewFromInt(2)) || !sum.TotalAvailable.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("summary totals: %+v", sum)
	}
	if len(sum.Warehouses) != 2 {
		t.Fatalf("expected 2 warehouses, got %d", len(sum.Warehouses))
	}
	if sum.Status != "in_stock" {
		t.Fatalf("status: %s", sum.Status)
	}

	// Товар без остатков попадает в out_of_stock
	empty := e.mustProduct(t, "COAT-400", models.ProductTypePiece)
	e.mustVariant(t, empty.ID)

	dash, err := e.reports.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.Products != 2 {
		t.Fatalf("dashboard products: %d", dash.Products)
	}
	if dash.OutOfStock != 1 {
		t.Fatalf("dashboard out_of_stock: %d", dash.OutOfStock)
	}
}
