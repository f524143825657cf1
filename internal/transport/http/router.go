package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter собирает маршруты сервиса.
func NewRouter(h *Handler, log *zap.Logger, isDev bool) *gin.Engine {
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/warehouses", h.CreateWarehouse)
		api.GET("/warehouses", h.ListWarehouses)
		api.GET("/warehouses/:id", h.GetWarehouse)
		api.PATCH("/warehouses/:id", h.UpdateWarehouse)

		api.POST("/products", h.CreateProduct)
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.PATCH("/products/:id", h.UpdateProduct)
		api.POST("/products/:id/variants", h.CreateVariant)
		api.GET("/products/:id/variants", h.ListVariants)
		api.POST("/products/:id/ensure-variant", h.EnsureVariant)

		api.POST("/stock/adjust", h.Adjust)
		api.POST("/stock/receive", h.Receive)
		api.POST("/stock/return", h.ReturnStock)
		api.POST("/stock/transfer", h.Transfer)
		api.POST("/stock/reserve", h.Reserve)
		api.POST("/stock/release", h.Release)
		api.POST("/stock/consume", h.Consume)
		api.POST("/stock/count", h.CountInventory)
		api.GET("/stock/levels/:variantId/:warehouseId", h.GetLevel)
		api.GET("/stock/movements", h.ListMovements)

		api.GET("/reports/summary/:id", h.ProductSummary)
		api.GET("/reports/dashboard", h.Dashboard)
		api.GET("/reports/fabric", h.FabricSummary)
		api.GET("/reports/export", h.ExportStockXLSX)
	}

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("запрос завершился ошибкой",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Int("status", c.Writer.Status()),
			)
		}
	}
}
