package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"atelier-stock-service/internal/export"
	"atelier-stock-service/internal/models"
	"atelier-stock-service/internal/repository"
	"atelier-stock-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const actorHeader = "X-Actor-ID"

type Handler struct {
	catalog service.CatalogService
	stock   service.StockService
	reports service.ReportService
	log     *zap.Logger
}

func NewHandler(catalog service.CatalogService, stock service.StockService, reports service.ReportService, log *zap.Logger) *Handler {
	return &Handler{catalog: catalog, stock: stock, reports: reports, log: log}
}

// respondError переводит ошибки сервисного слоя в HTTP-статусы.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrVariantRequired),
		errors.Is(err, service.ErrSameWarehouse):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrNegativeStock),
		errors.Is(err, service.ErrSKUAlreadyExists),
		errors.Is(err, service.ErrCodeAlreadyExists),
		errors.Is(err, service.ErrWarehouseInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConcurrencyConflict):
		// Повторы уже исчерпаны внутри движка.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	default:
		h.log.Error("внутренняя ошибка запроса", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) actorID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader(actorHeader)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %s header is required", service.ErrValidation, actorHeader)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID", service.ErrValidation, actorHeader)
	}
	return id, nil
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID", service.ErrValidation, name)
	}
	return id, nil
}

// resolveVariant принимает либо variant_id напрямую, либо product_id,
// для которого автоматически заводится канонический вариант.
func (h *Handler) resolveVariant(c *gin.Context, variantID, productID *uuid.UUID) (uuid.UUID, error) {
	if variantID != nil && *variantID != uuid.Nil {
		return *variantID, nil
	}
	if productID == nil || *productID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: variant_id or product_id is required", service.ErrValidation)
	}
	v, err := h.catalog.EnsureDefaultVariant(c.Request.Context(), *productID)
	if err != nil {
		return uuid.Nil, err
	}
	return v.ID, nil
}

// --- Склады ---

type warehouseRequest struct {
	Name               string     `json:"name" binding:"required"`
	Code               string     `json:"code" binding:"required"`
	StoreID            *uuid.UUID `json:"store_id"`
	IsMain             bool       `json:"is_main"`
	AcceptsOnlineStock bool       `json:"accepts_online_stock"`
}

func (h *Handler) CreateWarehouse(c *gin.Context) {
	var req warehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := h.catalog.CreateWarehouse(c.Request.Context(), service.WarehouseInput{
		Name:               req.Name,
		Code:               req.Code,
		StoreID:            req.StoreID,
		IsMain:             req.IsMain,
		AcceptsOnlineStock: req.AcceptsOnlineStock,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

type warehousePatchRequest struct {
	Name               *string    `json:"name"`
	StoreID            *uuid.UUID `json:"store_id"`
	IsMain             *bool      `json:"is_main"`
	AcceptsOnlineStock *bool      `json:"accepts_online_stock"`
	IsActive           *bool      `json:"is_active"`
}

func (h *Handler) UpdateWarehouse(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req warehousePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := h.catalog.UpdateWarehouse(c.Request.Context(), id, service.WarehousePatch{
		Name:               req.Name,
		StoreID:            req.StoreID,
		IsMain:             req.IsMain,
		AcceptsOnlineStock: req.AcceptsOnlineStock,
		IsActive:           req.IsActive,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) GetWarehouse(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	w, err := h.catalog.GetWarehouse(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) ListWarehouses(c *gin.Context) {
	onlyActive := c.Query("all") != "true"
	list, err := h.catalog.ListWarehouses(c.Request.Context(), onlyActive)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// --- Товары и варианты ---

type productRequest struct {
	SKU           string          `json:"sku" binding:"required"`
	Name          string          `json:"name" binding:"required"`
	Type          string          `json:"type" binding:"required"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	BasePrice     decimal.Decimal `json:"base_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	MinStockAlert decimal.Decimal `json:"min_stock_alert"`
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), service.ProductInput{
		SKU:           req.SKU,
		Name:          req.Name,
		Type:          models.ProductType(req.Type),
		CostPrice:     req.CostPrice,
		BasePrice:     req.BasePrice,
		TaxRate:       req.TaxRate,
		MinStockAlert: req.MinStockAlert,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type productPatchRequest struct {
	Name          *string          `json:"name"`
	CostPrice     *decimal.Decimal `json:"cost_price"`
	BasePrice     *decimal.Decimal `json:"base_price"`
	TaxRate       *decimal.Decimal `json:"tax_rate"`
	MinStockAlert *decimal.Decimal `json:"min_stock_alert"`
	IsActive      *bool            `json:"is_active"`
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req productPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.catalog.UpdateProduct(c.Request.Context(), id, service.ProductPatch{
		Name:          req.Name,
		CostPrice:     req.CostPrice,
		BasePrice:     req.BasePrice,
		TaxRate:       req.TaxRate,
		MinStockAlert: req.MinStockAlert,
		IsActive:      req.IsActive,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	p, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProducts(c *gin.Context) {
	f := repository.ProductListFilter{
		Query:  c.Query("q"),
		Limit:  intQuery(c, "limit", 20),
		Offset: intQuery(c, "offset", 0),
	}
	if t := c.Query("type"); t != "" {
		pt := models.ProductType(t)
		if !pt.Valid() {
			h.respondError(c, fmt.Errorf("%w: unknown product type %q", service.ErrValidation, t))
			return
		}
		f.Type = &pt
	}
	if c.Query("all") != "true" {
		active := true
		f.OnlyActive = &active
	}
	list, total, err := h.catalog.ListProducts(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": total})
}

type variantRequest struct {
	SKU           string           `json:"sku" binding:"required"`
	Size          string           `json:"size"`
	Color         string           `json:"color"`
	PriceOverride *decimal.Decimal `json:"price_override"`
}

func (h *Handler) CreateVariant(c *gin.Context) {
	productID, err := pathUUID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req variantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v, err := h.catalog.CreateVariant(c.Request.Context(), service.VariantInput{
		ProductID:     productID,
		SKU:           req.SKU,
		Size:          req.Size,
		Color:         req.Color,
		PriceOverride: req.PriceOverride,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) EnsureVariant(c *gin.Context) {
	productID, err := pathUUID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	v, err := h.catalog.EnsureDefaultVariant(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVariants(c *gin.Context) {
	productID, err := pathUUID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	list, err := h.catalog.ListVariants(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// --- Складские операции ---

type adjustRequest struct {
	VariantID   *uuid.UUID      `json:"variant_id"`
	ProductID   *uuid.UUID      `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	Direction   string          `json:"direction" binding:"required,oneof=increase decrease"`
	Reason      string          `json:"reason" binding:"required"`
}

func (h *Handler) Adjust(c *gin.Context) {
	actor, err := h.actorID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	variantID, err := h.resolveVariant(c, req.VariantID, req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	mt := models.MovementAdjustmentPositive
	if req.Direction == "decrease" {
		mt = models.MovementAdjustmentNegative
	}
	level, err := h.stock.Adjust(c.Request.Context(), service.AdjustInput{
		VariantID:   variantID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		Type:        mt,
		Reason:      req.Reason,
		ActorID:     actor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

type receiveRequest struct {
	VariantID   *uuid.UUID      `json:"variant_id"`
	ProductID   *uuid.UUID      `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason"`
}

func (h *Handler) Receive(c *gin.Context) {
	h.addStock(c, h.stock.Receive)
}

func (h *Handler) ReturnStock(c *gin.Context) {
	h.addStock(c, h.stock.ReturnStock)
}

func (h *Handler) addStock(c *gin.Context, op func(ctx context.Context, in service.ReceiveInput) (*models.StockLevel, error)) {
	actor, err := h.actorID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	variantID, err := h.resolveVariant(c, req.VariantID, req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	level, err := op(c.Request.Context(), service.ReceiveInput{
		VariantID:   variantID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		ActorID:     actor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

type transferRequest struct {
	VariantID       *uuid.UUID      `json:"variant_id"`
	ProductID       *uuid.UUID      `json:"product_id"`
	FromWarehouseID uuid.UUID       `json:"from_warehouse_id" binding:"required"`
	ToWarehouseID   uuid.UUID       `json:"to_warehouse_id" binding:"required"`
	Quantity        decimal.Decimal `json:"quantity"`
	Reason          string          `json:"reason"`
}

func (h *Handler) Transfer(c *gin.Context) {
	actor, err := h.actorID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	variantID, err := h.resolveVariant(c, req.VariantID, req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	res, err := h.stock.Transfer(c.Request.Context(), service.TransferInput{
		VariantID:       variantID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		Reason:          req.Reason,
		ActorID:         actor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type reserveRequest struct {
	VariantID   *uuid.UUID      `json:"variant_id"`
	ProductID   *uuid.UUID      `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
}

func (h *Handler) Reserve(c *gin.Context) {
	h.reserveOp(c, h.stock.Reserve)
}

func (h *Handler) Release(c *gin.Context) {
	h.reserveOp(c, h.stock.Release)
}

func (h *Handler) reserveOp(c *gin.Context, op func(ctx context.Context, in service.ReserveInput) (*models.StockLevel, error)) {
	actor, err := h.actorID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	variantID, err := h.resolveVariant(c, req.VariantID, req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	level, err := op(c.Request.Context(), service.ReserveInput{
		VariantID:   variantID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		ActorID:     actor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

type consumeRequest struct {
	VariantID   *uuid.UUID      `json:"variant_id"`
	ProductID   *uuid.UUID      `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason"`
}

func (h *Handler) Consume(c *gin.Context) {
	actor, err := h.actorID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	variantID, err := h.resolveVariant(c, req.VariantID, req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	level, err := h.stock.Consume(c.Request.Context(), service.ConsumeInput{
		VariantID:   variantID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		ActorID:     actor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

type countRequest struct {
	VariantID   *uuid.UUID      `json:"variant_id"`
	ProductID   *uuid.UUID      `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	Counted     decimal.Decimal `json:"counted"`
	Reason      string          `json:"reason" binding:"required"`
}

func (h *Handler) CountInventory(c *gin.Context) {
	actor, err := h.actorID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	variantID, err := h.resolveVariant(c, req.VariantID, req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	level, err := h.stock.CountInventory(c.Request.Context(), service.CountInput{
		VariantID:   variantID,
		WarehouseID: req.WarehouseID,
		Counted:     req.Counted,
		Reason:      req.Reason,
		ActorID:     actor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

// --- Остатки и журнал ---

func (h *Handler) GetLevel(c *gin.Context) {
	variantID, err := pathUUID(c, "variantId")
	if err != nil {
		h.respondError(c, err)
		return
	}
	warehouseID, err := pathUUID(c, "warehouseId")
	if err != nil {
		h.respondError(c, err)
		return
	}
	level, err := h.stock.GetLevel(c.Request.Context(), variantID, warehouseID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

func (h *Handler) ListMovements(c *gin.Context) {
	f := repository.MovementListFilter{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if raw := c.Query("variant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(c, fmt.Errorf("%w: variant_id must be a UUID", service.ErrValidation))
			return
		}
		f.VariantID = &id
	}
	if raw := c.Query("warehouse_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(c, fmt.Errorf("%w: warehouse_id must be a UUID", service.ErrValidation))
			return
		}
		f.WarehouseID = &id
	}
	if raw := c.Query("type"); raw != "" {
		mt := models.MovementType(raw)
		f.Type = &mt
	}
	list, total, err := h.stock.ListMovements(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": total})
}

// --- Отчёты ---

func (h *Handler) ProductSummary(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	sum, err := h.reports.ProductSummary(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) Dashboard(c *gin.Context) {
	counters, err := h.reports.Dashboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counters)
}

func (h *Handler) FabricSummary(c *gin.Context) {
	rows, err := h.reports.FabricSummary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *Handler) ExportStockXLSX(c *gin.Context) {
	rows, err := h.reports.StockRows(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	data, err := export.StockReportXLSX(rows, time.Now())
	if err != nil {
		h.respondError(c, err)
		return
	}
	filename := "stock_" + time.Now().Format("2006-01-02") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
