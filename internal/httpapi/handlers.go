package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/ledger"
	"tradeledger/backend/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ledgerWriteResponse struct {
	Transaction domain.Transaction      `json:"transaction"`
	Previous    *domain.Transaction     `json:"previous,omitempty"`
	Movements   []domain.StockMovement  `json:"movements"`
	StockLevels map[string]int          `json:"stock_levels"`
	Profit      decimal.Decimal         `json:"profit"`
	Cost        decimal.Decimal         `json:"cost"`
	Capital     *domain.CapitalMovement `json:"capital,omitempty"`
}

func recordResponse(r *ledger.RecordResult) ledgerWriteResponse {
	return ledgerWriteResponse{
		Transaction: r.Transaction,
		Movements:   r.Movements,
		StockLevels: r.StockLevels,
		Profit:      r.Profit,
		Cost:        r.Cost,
		Capital:     r.Capital,
	}
}

func reviseResponse(r *ledger.ReviseResult) ledgerWriteResponse {
	previous := r.Previous
	return ledgerWriteResponse{
		Transaction: r.Transaction,
		Previous:    &previous,
		Movements:   r.Movements,
		StockLevels: r.StockLevels,
		Profit:      r.Profit,
		Cost:        r.Cost,
		Capital:     r.Capital,
	}
}

func (a *API) handleListProducts(c *gin.Context) {
	products, err := a.service.ListProducts(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.ProductCreateRequest
	if !a.bind(c, &req) {
		return
	}
	product, err := a.service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (a *API) handleGetProduct(c *gin.Context) {
	product, err := a.service.GetProduct(c.Request.Context(), pathID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	var req domain.ProductUpdateRequest
	if !a.bind(c, &req) {
		return
	}
	product, err := a.service.UpdateProduct(c.Request.Context(), pathID(c), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (a *API) handleDeleteProduct(c *gin.Context) {
	if err := a.service.DeleteProduct(c.Request.Context(), pathID(c)); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleProductStockMovements(c *gin.Context) {
	movements, err := a.service.ProductStockMovements(c.Request.Context(), pathID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock_movements": movements})
}

func (a *API) handleListContacts(c *gin.Context) {
	contacts, err := a.service.ListContacts(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

func (a *API) handleCreateContact(c *gin.Context) {
	var req domain.ContactCreateRequest
	if !a.bind(c, &req) {
		return
	}
	contact, err := a.service.CreateContact(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"contact": contact})
}

func (a *API) handleGetContact(c *gin.Context) {
	contact, err := a.service.GetContact(c.Request.Context(), pathID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

func (a *API) handleUpdateContact(c *gin.Context) {
	var req domain.ContactUpdateRequest
	if !a.bind(c, &req) {
		return
	}
	contact, err := a.service.UpdateContact(c.Request.Context(), pathID(c), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

func (a *API) handleDeleteContact(c *gin.Context) {
	if err := a.service.DeleteContact(c.Request.Context(), pathID(c)); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleContactStats(c *gin.Context) {
	stats, err := a.service.ContactStats(c.Request.Context(), pathID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (a *API) handleListTransactions(c *gin.Context) {
	txs, err := a.service.ListTransactions(c.Request.Context(), service.TransactionQuery{
		Type:      domain.TransactionType(c.Query("type")),
		ContactID: c.Query("contact_id"),
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (a *API) handleCreateTransaction(c *gin.Context) {
	var req domain.TransactionRequest
	if !a.bind(c, &req) {
		return
	}
	result, err := a.service.CreateTransaction(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, recordResponse(result))
}

func (a *API) handleGetTransaction(c *gin.Context) {
	tx, err := a.service.GetTransaction(c.Request.Context(), pathID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (a *API) handleUpdateTransaction(c *gin.Context) {
	var req domain.TransactionRequest
	if !a.bind(c, &req) {
		return
	}
	result, err := a.service.UpdateTransaction(c.Request.Context(), pathID(c), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviseResponse(result))
}

func (a *API) handleDeleteTransaction(c *gin.Context) {
	result, err := a.service.DeleteTransaction(c.Request.Context(), pathID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transaction":  result.Transaction,
		"stock_levels": result.StockLevels,
	})
}

func (a *API) handleListCapitalMovements(c *gin.Context) {
	movements, err := a.service.ListCapitalMovements(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capital_movements": movements})
}

func (a *API) handleCreateCapitalMovement(c *gin.Context) {
	var req domain.CapitalMovementRequest
	if !a.bind(c, &req) {
		return
	}
	movement, err := a.service.CreateCapitalMovement(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"capital_movement": movement})
}

func (a *API) handleCapitalSummary(c *gin.Context) {
	summary, err := a.service.CapitalSummary(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (a *API) handleStockMovements(c *gin.Context) {
	movements, err := a.service.StockMovements(c.Request.Context(), c.Query("product_id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock_movements": movements})
}

func (a *API) handleVerifyStock(c *gin.Context) {
	discrepancies, err := a.service.VerifyStock(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"consistent":    len(discrepancies) == 0,
		"discrepancies": discrepancies,
	})
}

func (a *API) handleDashboard(c *gin.Context) {
	dashboard, err := a.service.Dashboard(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dashboard": dashboard})
}

func (a *API) handleExport(c *gin.Context) {
	var buf bytes.Buffer
	if err := a.service.ExportWorkbook(c.Request.Context(), &buf); err != nil {
		a.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"ledger_%s.xlsx\"", time.Now().UTC().Format("20060102")))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
