package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductTypePiece     ProductType = "piece"
	ProductTypeFabric    ProductType = "fabric"
	ProductTypeAccessory ProductType = "accessory"
	ProductTypeService   ProductType = "service"
)

// Fractional — ткань ведётся в метрах (дробные количества),
// всё остальное — в целых штуках.
func (t ProductType) Fractional() bool { return t == ProductTypeFabric }

func (t ProductType) Valid() bool {
	switch t {
	case ProductTypePiece, ProductTypeFabric, ProductTypeAccessory, ProductTypeService:
		return true
	}
	return false
}

type Warehouse struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name               string     `gorm:"type:text;not null" json:"name"`
	Code               string     `gorm:"type:text;not null" json:"code"`
	StoreID            *uuid.UUID `gorm:"type:uuid;index" json:"store_id"` // nil — независимый склад
	IsMain             bool       `gorm:"not null;default:false" json:"is_main"`
	AcceptsOnlineStock bool       `gorm:"not null;default:false" json:"accepts_online_stock"`
	IsActive           bool       `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Warehouse) TableName() string { return "warehouses" }

type Product struct {
	ID   uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SKU  string      `gorm:"type:text;not null" json:"sku"`
	Name string      `gorm:"type:text;not null" json:"name"`
	Type ProductType `gorm:"type:text;not null;default:'piece'" json:"type"`

	CostPrice decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"cost_price"`
	BasePrice decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"base_price"`
	TaxRate   decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"tax_rate"`

	// Накопленный расход ткани в метрах; пишется только движком склада
	// в одной транзакции с расходным движением.
	FabricMetersUsed decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"fabric_meters_used"`
	MinStockAlert    decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"min_stock_alert"`

	IsActive bool `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

type ProductVariant struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	SKU       string    `gorm:"type:text;not null" json:"sku"`
	Size      string    `gorm:"type:text" json:"size"`
	Color     string    `gorm:"type:text" json:"color"`

	PriceOverride *decimal.Decimal `gorm:"type:numeric(20,4)" json:"price_override"`
	IsActive      bool             `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ProductVariant) TableName() string { return "product_variants" }

// StockLevel — текущий остаток одного варианта на одном складе.
// Отсутствие строки означает нулевой остаток. Пишется только движком склада.
type StockLevel struct {
	VariantID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"variant_id"`
	WarehouseID uuid.UUID `gorm:"type:uuid;primaryKey" json:"warehouse_id"`

	Quantity decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"quantity"`
	Reserved decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"reserved"`

	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (StockLevel) TableName() string { return "stock_levels" }

func (l *StockLevel) Available() decimal.Decimal {
	return l.Quantity.Sub(l.Reserved)
}

type MovementType string

const (
	MovementSale               MovementType = "sale"
	MovementReturn             MovementType = "return"
	MovementPurchase           MovementType = "purchase"
	MovementAdjustmentPositive MovementType = "adjustment_positive"
	MovementAdjustmentNegative MovementType = "adjustment_negative"
	MovementTransferIn         MovementType = "transfer_in"
	MovementTransferOut        MovementType = "transfer_out"
	MovementInitial            MovementType = "initial"
	MovementReservation        MovementType = "reservation"
	MovementReservationRelease MovementType = "reservation_release"
	MovementInventoryCount     MovementType = "inventory_count"
)

// StockMovement — строка журнала движений. Только вставка, никогда не
// обновляется и не удаляется. StockBefore/StockAfter — снимки quantity;
// для резервов quantity не меняется и снимки совпадают.
type StockMovement struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VariantID   uuid.UUID    `gorm:"type:uuid;not null;index:ix_movements_variant_warehouse,priority:1" json:"variant_id"`
	WarehouseID uuid.UUID    `gorm:"type:uuid;not null;index:ix_movements_variant_warehouse,priority:2" json:"warehouse_id"`
	Type        MovementType `gorm:"type:text;not null;index" json:"type"`

	Quantity    decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"quantity"` // со знаком
	StockBefore decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"stock_before"`
	StockAfter  decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"stock_after"`

	Reason  string    `gorm:"type:text" json:"reason"`
	ActorID uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`

	// Обе стороны перемещения делят один transfer_id.
	TransferID *uuid.UUID `gorm:"type:uuid;index" json:"transfer_id"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (StockMovement) TableName() string { return "stock_movements" }
