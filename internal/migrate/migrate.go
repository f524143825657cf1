package migrate

import (
	"context"

	"atelier-stock-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto, uuid-ossp, pg_trgm
	CreateChecks           bool // CHECK-constraint'ы
	CreateIndexes          bool // индексы и UNIQUE
	CreateFKsViaSQL        bool // FK через Exec после AutoMigrate
	CreateUpdatedAtTrigger bool // триггеры updated_at
	CreateSearchIndexes    bool // GIN trgm для поиска по name/sku
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateFKsViaSQL:        true,
		CreateUpdatedAtTrigger: true,
		CreateSearchIndexes:    true,
	}
}

func MigrateStockDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы склада ателье")

	// Расширения
	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("pgcrypto error", zap.Error(err))
			return err
		}
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
			log.Error("uuid-ossp error", zap.Error(err))
			return err
		}
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error; err != nil {
			log.Error("pg_trgm error", zap.Error(err))
			return err
		}
		log.Info("Расширения созданы")
	}

	// Таблицы
	log.Info("Создание таблиц: warehouses, products, product_variants, stock_levels, stock_movements")
	if err := db.AutoMigrate(
		&models.Warehouse{},
		&models.Product{},
		&models.ProductVariant{},
		&models.StockLevel{},
		&models.StockMovement{},
	); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}
	log.Info("Таблицы созданы")

	// Триггеры updated_at
	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров updated_at")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_warehouses_updated ON warehouses;
CREATE TRIGGER trg_warehouses_updated BEFORE UPDATE ON warehouses
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_products_updated ON products;
CREATE TRIGGER trg_products_updated BEFORE UPDATE ON products
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_product_variants_updated ON product_variants;
CREATE TRIGGER trg_product_variants_updated BEFORE UPDATE ON product_variants
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_stock_levels_updated ON stock_levels;
CREATE TRIGGER trg_stock_levels_updated BEFORE UPDATE ON stock_levels
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`).Error; err != nil {
			log.Error("triggers error", zap.Error(err))
			return err
		}
		log.Info("Триггеры созданы")
	}

	// CHECK-и
	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")

		// Типы товара
		if err := db.Exec(`
ALTER TABLE products
	DROP CONSTRAINT IF EXISTS chk_products_type_allowed,
	ADD CONSTRAINT chk_products_type_allowed
	CHECK (type IN ('piece','fabric','accessory','service'));
`).Error; err != nil {
			log.Error("chk products.type", zap.Error(err))
			return err
		}

		// Цены, налог и порог — неотрицательные
		if err := db.Exec(`
ALTER TABLE products
	DROP CONSTRAINT IF EXISTS chk_products_money_non_negative,
	ADD CONSTRAINT chk_products_money_non_negative
	CHECK (cost_price >= 0 AND base_price >= 0 AND tax_rate >= 0 AND min_stock_alert >= 0 AND fabric_meters_used >= 0);
`).Error; err != nil {
			log.Error("chk products money", zap.Error(err))
			return err
		}

		// Жёсткий пол по нулю: остаток не уходит в минус, резерв в пределах остатка
		if err := db.Exec(`
ALTER TABLE stock_levels
	DROP CONSTRAINT IF EXISTS chk_stock_levels_non_negative,
	ADD CONSTRAINT chk_stock_levels_non_negative
	CHECK (quantity >= 0 AND reserved >= 0 AND reserved <= quantity);
`).Error; err != nil {
			log.Error("chk stock_levels", zap.Error(err))
			return err
		}

		// Движение с нулевой дельтой не пишем
		if err := db.Exec(`
ALTER TABLE stock_movements
	DROP CONSTRAINT IF EXISTS chk_stock_movements_quantity_non_zero,
	ADD CONSTRAINT chk_stock_movements_quantity_non_zero
	CHECK (quantity <> 0);
`).Error; err != nil {
			log.Error("chk stock_movements.quantity", zap.Error(err))
			return err
		}

		// Допустимые типы движений
		if err := db.Exec(`
ALTER TABLE stock_movements
	DROP CONSTRAINT IF EXISTS chk_stock_movements_type_allowed,
	ADD CONSTRAINT chk_stock_movements_type_allowed
	CHECK (type IN ('sale','return','purchase','adjustment_positive','adjustment_negative',
		'transfer_in','transfer_out','initial','reservation','reservation_release','inventory_count'));
`).Error; err != nil {
			log.Error("chk stock_movements.type", zap.Error(err))
			return err
		}

		log.Info("CHECK-и созданы")
	}

	// Индексы и уникальности
	if opt.CreateIndexes {
		log.Info("Создание индексов и уникальностей")

		// SKU уникальны без учёта регистра
		if err := db.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS ux_products_sku
ON products (lower(sku));
`).Error; err != nil {
			log.Error("ux products.sku", zap.Error(err))
			return err
		}
		if err := db.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS ux_product_variants_sku
ON product_variants (lower(sku));
`).Error; err != nil {
			log.Error("ux product_variants.sku", zap.Error(err))
			return err
		}
		if err := db.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS ux_warehouses_code
ON warehouses (lower(code));
`).Error; err != nil {
			log.Error("ux warehouses.code", zap.Error(err))
			return err
		}

		// Журнал читается по паре (variant, warehouse) в порядке времени
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_movements_pair_created
ON stock_movements (variant_id, warehouse_id, created_at);
`).Error; err != nil {
			log.Error("ix movements pair_created", zap.Error(err))
			return err
		}

		log.Info("Индексы созданы")
	}

	// Индексы для поиска (trgm) — опционально
	if opt.CreateSearchIndexes {
		log.Info("Создание GIN(trgm) индексов для поиска")
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS gin_products_name_trgm
ON products USING gin (name gin_trgm_ops);
`).Error; err != nil {
			log.Error("gin name", zap.Error(err))
			return err
		}
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS gin_products_sku_trgm
ON products USING gin (sku gin_trgm_ops);
`).Error; err != nil {
			log.Error("gin sku", zap.Error(err))
			return err
		}
		log.Info("GIN индексы созданы")
	}

	// Внешние ключи
	if opt.CreateFKsViaSQL {
		log.Info("Создание внешних ключей")

		if err := db.Exec(`
ALTER TABLE product_variants
  DROP CONSTRAINT IF EXISTS fk_product_variants_product,
  ADD CONSTRAINT fk_product_variants_product
    FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE;
`).Error; err != nil {
			log.Error("fk product_variants.product_id", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE stock_levels
  DROP CONSTRAINT IF EXISTS fk_stock_levels_variant,
  ADD CONSTRAINT fk_stock_levels_variant
    FOREIGN KEY (variant_id) REFERENCES product_variants(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("fk stock_levels.variant_id", zap.Error(err))
			return err
		}
		if err := db.Exec(`
ALTER TABLE stock_levels
  DROP CONSTRAINT IF EXISTS fk_stock_levels_warehouse,
  ADD CONSTRAINT fk_stock_levels_warehouse
    FOREIGN KEY (warehouse_id) REFERENCES warehouses(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("fk stock_levels.warehouse_id", zap.Error(err))
			return err
		}

		// Журнал — аудит: удалять ссылки из-под него нельзя
		if err := db.Exec(`
ALTER TABLE stock_movements
  DROP CONSTRAINT IF EXISTS fk_stock_movements_variant,
  ADD CONSTRAINT fk_stock_movements_variant
    FOREIGN KEY (variant_id) REFERENCES product_variants(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("fk stock_movements.variant_id", zap.Error(err))
			return err
		}
		if err := db.Exec(`
ALTER TABLE stock_movements
  DROP CONSTRAINT IF EXISTS fk_stock_movements_warehouse,
  ADD CONSTRAINT fk_stock_movements_warehouse
    FOREIGN KEY (warehouse_id) REFERENCES warehouses(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("fk stock_movements.warehouse_id", zap.Error(err))
			return err
		}

		log.Info("Внешние ключи созданы")
	}

	log.Info("Миграция базы склада успешно завершена")
	return nil
}
