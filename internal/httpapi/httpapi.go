package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tradeledger/backend/internal/config"
	"tradeledger/backend/internal/ledger"
	"tradeledger/backend/internal/lock"
	"tradeledger/backend/internal/service"
	"tradeledger/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	allowedOrigin string
	logger        logrus.FieldLogger
}

func New(svc *service.Service, allowedOrigin string, logger logrus.FieldLogger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
		logger:        logger.WithField("module", "httpapi"),
	}
}

func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLog(), a.secureHeaders())

	r.GET("/healthz", a.handleHealth)

	v1 := r.Group("/api/v1")

	v1.GET("/products", a.handleListProducts)
	v1.POST("/products", a.handleCreateProduct)
	v1.GET("/products/:id", a.handleGetProduct)
	v1.PATCH("/products/:id", a.handleUpdateProduct)
	v1.DELETE("/products/:id", a.handleDeleteProduct)
	v1.GET("/products/:id/stock-movements", a.handleProductStockMovements)

	v1.GET("/contacts", a.handleListContacts)
	v1.POST("/contacts", a.handleCreateContact)
	v1.GET("/contacts/:id", a.handleGetContact)
	v1.PATCH("/contacts/:id", a.handleUpdateContact)
	v1.DELETE("/contacts/:id", a.handleDeleteContact)
	v1.GET("/contacts/:id/stats", a.handleContactStats)

	v1.GET("/transactions", a.handleListTransactions)
	v1.POST("/transactions", a.handleCreateTransaction)
	v1.GET("/transactions/:id", a.handleGetTransaction)
	v1.PUT("/transactions/:id", a.handleUpdateTransaction)
	v1.DELETE("/transactions/:id", a.handleDeleteTransaction)

	v1.GET("/capital-movements", a.handleListCapitalMovements)
	v1.POST("/capital-movements", a.handleCreateCapitalMovement)
	v1.GET("/capital/summary", a.handleCapitalSummary)

	v1.GET("/stock-movements", a.handleStockMovements)
	v1.GET("/stock/verify", a.handleVerifyStock)
	v1.GET("/dashboard", a.handleDashboard)
	v1.GET("/export.xlsx", a.handleExport)

	return r
}

func (a *API) secureHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Access-Control-Allow-Origin", a.allowedOrigin)
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		h.Set("Vary", "Origin")

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (a *API) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		a.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(startedAt).String(),
		}).Info("request")
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return err
	}
	return nil
}

// bind decodes the request body and answers 400 itself on failure.
func (a *API) bind(c *gin.Context, dest any) bool {
	if err := decodeJSON(c.Request, dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// writeError maps domain errors to status codes. For 5xx responses the body
// carries a generic message; the cause only goes to the log.
func (a *API) writeError(c *gin.Context, err error) {
	var shortage *ledger.InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		c.JSON(http.StatusConflict, gin.H{
			"error":        shortage.Error(),
			"product_id":   shortage.ProductID,
			"product_name": shortage.ProductName,
			"available":    shortage.Available,
			"requested":    shortage.Requested,
			"shortfall":    shortage.Shortfall(),
		})
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidTransaction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, lock.ErrBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger busy, retry shortly"})
	default:
		config.LogError(a.logger, "httpapi", "writeError", c.Request.Method+" "+c.Request.URL.Path, nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func pathID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}
