package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category,omitempty"`
	CurrentStock int    `json:"current_stock"`
}

type ProductCreateRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Category    string `json:"category" validate:"max=100"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category    *string `json:"category,omitempty" validate:"omitempty,max=100"`
}

type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type ContactCreateRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,max=50"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
}

type ContactUpdateRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,min=1,max=50"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
}

type ContactStats struct {
	ContactID      string          `json:"contact_id"`
	TotalPurchases int             `json:"total_purchases"`
	TotalSales     int             `json:"total_sales"`
	PurchaseAmount decimal.Decimal `json:"purchase_amount"`
	SaleAmount     decimal.Decimal `json:"sale_amount"`
}

type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionSale     TransactionType = "sale"
)

type TransactionItem struct {
	ID            string           `json:"id"`
	ProductID     string           `json:"product_id"`
	Quantity      int              `json:"quantity"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	Total         decimal.Decimal  `json:"total"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
}

type Transaction struct {
	ID             string            `json:"id"`
	Type           TransactionType   `json:"type"`
	Date           time.Time         `json:"date"`
	ContactID      string            `json:"contact_id"`
	Items          []TransactionItem `json:"items"`
	PaymentMethod  string            `json:"payment_method"`
	TotalAmount    decimal.Decimal   `json:"total_amount"`
	ExchangeRate   *decimal.Decimal  `json:"exchange_rate,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	AdditionalInfo string            `json:"additional_info,omitempty"`
}

// ForeignTotal converts TotalAmount with the stored display rate.
func (t Transaction) ForeignTotal() (decimal.Decimal, bool) {
	if t.ExchangeRate == nil || !t.ExchangeRate.IsPositive() {
		return decimal.Zero, false
	}
	return t.TotalAmount.DivRound(*t.ExchangeRate, 2), true
}

type TransactionItemRequest struct {
	ID            string           `json:"id"`
	ProductID     string           `json:"product_id" validate:"required"`
	Quantity      int              `json:"quantity" validate:"gt=0"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
}

type TransactionRequest struct {
	Type           TransactionType          `json:"type" validate:"required,oneof=purchase sale"`
	Date           time.Time                `json:"date"`
	ContactID      string                   `json:"contact_id" validate:"required"`
	PaymentMethod  string                   `json:"payment_method" validate:"omitempty,oneof=cash credit bank_transfer other"`
	Items          []TransactionItemRequest `json:"items" validate:"required,min=1,dive"`
	ExchangeRate   *decimal.Decimal         `json:"exchange_rate,omitempty"`
	Notes          string                   `json:"notes" validate:"max=2000"`
	AdditionalInfo string                   `json:"additional_info" validate:"max=2000"`
}

type StockMovement struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	Quantity      int       `json:"quantity"`
	BalanceAfter  int       `json:"balance_after"`
}

type CapitalMovementType string

const (
	CapitalInvestment CapitalMovementType = "investment"
	CapitalWithdrawal CapitalMovementType = "withdrawal"
	CapitalProfit     CapitalMovementType = "profit"
	CapitalLoss       CapitalMovementType = "loss"
)

type CapitalOrigin string

const (
	CapitalOriginDerived CapitalOrigin = "derived"
	CapitalOriginManual  CapitalOrigin = "manual"
)

type CapitalMovement struct {
	ID                  string              `json:"id"`
	Date                time.Time           `json:"date"`
	Type                CapitalMovementType `json:"type"`
	Amount              decimal.Decimal     `json:"amount"`
	Description         string              `json:"description,omitempty"`
	SourceTransactionID string              `json:"source_transaction_id,omitempty"`
	Origin              CapitalOrigin       `json:"origin"`
}

type CapitalMovementRequest struct {
	Type        CapitalMovementType `json:"type" validate:"required,oneof=investment withdrawal profit loss"`
	Date        time.Time           `json:"date"`
	Amount      decimal.Decimal     `json:"amount"`
	Description string              `json:"description" validate:"max=2000"`
}

type CapitalSummary struct {
	TotalInvestments decimal.Decimal `json:"total_investments"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	TotalLoss        decimal.Decimal `json:"total_loss"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
}

type Dashboard struct {
	TotalProducts       int             `json:"total_products"`
	TotalContacts       int             `json:"total_contacts"`
	LowStockProducts    int             `json:"low_stock_products"`
	LowStockThreshold   int             `json:"low_stock_threshold"`
	PurchaseCount       int             `json:"purchase_count"`
	SaleCount           int             `json:"sale_count"`
	TotalPurchaseAmount decimal.Decimal `json:"total_purchase_amount"`
	TotalSaleAmount     decimal.Decimal `json:"total_sale_amount"`
	Capital             CapitalSummary  `json:"capital"`
	RecentTransactions  []Transaction   `json:"recent_transactions"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

type StockDiscrepancy struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	CurrentStock   int    `json:"current_stock"`
	MovementsTotal int    `json:"movements_total"`
}

const (
	PaymentCash         = "cash"
	PaymentCredit       = "credit"
	PaymentBankTransfer = "bank_transfer"
	PaymentOther        = "other"
)
