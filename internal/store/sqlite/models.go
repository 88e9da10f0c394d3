package sqlite

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
)

// Rows key on Seq, which keeps insertion order; ID is the entity id.
type productRow struct {
	Seq          uint   `gorm:"primaryKey"`
	ID           string `gorm:"size:64;uniqueIndex;not null"`
	Name         string `gorm:"size:200;not null"`
	Description  string `gorm:"size:2000"`
	Category     string `gorm:"size:100"`
	CurrentStock int    `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (productRow) TableName() string { return "products" }

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Category:     r.Category,
		CurrentStock: r.CurrentStock,
	}
}

type contactRow struct {
	Seq       uint   `gorm:"primaryKey"`
	ID        string `gorm:"size:64;uniqueIndex;not null"`
	Name      string `gorm:"size:200;not null"`
	Phone     string `gorm:"size:50"`
	Email     string `gorm:"size:200"`
	Address   string `gorm:"size:500"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (contactRow) TableName() string { return "contacts" }

func (r contactRow) toDomain() domain.Contact {
	return domain.Contact{ID: r.ID, Name: r.Name, Phone: r.Phone, Email: r.Email, Address: r.Address}
}

// Decimals are stored as text so SQLite's numeric affinity never rounds them.
type transactionRow struct {
	Seq            uint                     `gorm:"primaryKey"`
	ID             string                   `gorm:"size:64;uniqueIndex;not null"`
	Type           string                   `gorm:"size:16;index;not null"`
	Date           time.Time                `gorm:"index;not null"`
	ContactID      string                   `gorm:"size:64;index;not null"`
	PaymentMethod  string                   `gorm:"size:32;not null"`
	TotalAmount    decimal.Decimal          `gorm:"type:text;not null"`
	ExchangeRate   decimal.NullDecimal      `gorm:"type:text"`
	Notes          string                   `gorm:"size:2000"`
	AdditionalInfo string                   `gorm:"size:2000"`
	Items          []domain.TransactionItem `gorm:"type:text;serializer:json"`
}

func (transactionRow) TableName() string { return "transactions" }

func newTransactionRow(tx domain.Transaction) transactionRow {
	row := transactionRow{
		ID:             tx.ID,
		Type:           string(tx.Type),
		Date:           tx.Date.UTC(),
		ContactID:      tx.ContactID,
		PaymentMethod:  tx.PaymentMethod,
		TotalAmount:    tx.TotalAmount,
		Notes:          tx.Notes,
		AdditionalInfo: tx.AdditionalInfo,
		Items:          tx.Items,
	}
	if tx.ExchangeRate != nil {
		row.ExchangeRate = decimal.NewNullDecimal(*tx.ExchangeRate)
	}
	return row
}

func (r transactionRow) toDomain() domain.Transaction {
	tx := domain.Transaction{
		ID:             r.ID,
		Type:           domain.TransactionType(r.Type),
		Date:           r.Date.UTC(),
		ContactID:      r.ContactID,
		PaymentMethod:  r.PaymentMethod,
		TotalAmount:    r.TotalAmount,
		Notes:          r.Notes,
		AdditionalInfo: r.AdditionalInfo,
		Items:          r.Items,
	}
	if tx.Items == nil {
		tx.Items = []domain.TransactionItem{}
	}
	if r.ExchangeRate.Valid {
		rate := r.ExchangeRate.Decimal
		tx.ExchangeRate = &rate
	}
	return tx
}

type stockMovementRow struct {
	Seq           uint      `gorm:"primaryKey"`
	ID            string    `gorm:"size:64;uniqueIndex;not null"`
	ProductID     string    `gorm:"size:64;index;not null"`
	TransactionID string    `gorm:"size:64;index;not null"`
	Date          time.Time `gorm:"not null"`
	Quantity      int       `gorm:"not null"`
	BalanceAfter  int       `gorm:"not null"`
}

func (stockMovementRow) TableName() string { return "stock_movements" }

func (r stockMovementRow) toDomain() domain.StockMovement {
	return domain.StockMovement{
		ID:            r.ID,
		ProductID:     r.ProductID,
		TransactionID: r.TransactionID,
		Date:          r.Date.UTC(),
		Quantity:      r.Quantity,
		BalanceAfter:  r.BalanceAfter,
	}
}

type capitalMovementRow struct {
	Seq                 uint            `gorm:"primaryKey"`
	ID                  string          `gorm:"size:64;uniqueIndex;not null"`
	Date                time.Time       `gorm:"not null"`
	Type                string          `gorm:"size:16;not null"`
	Amount              decimal.Decimal `gorm:"type:text;not null"`
	Description         string
	SourceTransactionID string `gorm:"size:64;index"`
	Origin              string `gorm:"size:16;not null"`
}

func (capitalMovementRow) TableName() string { return "capital_movements" }

func newCapitalMovementRow(m domain.CapitalMovement) capitalMovementRow {
	return capitalMovementRow{
		ID:                  m.ID,
		Date:                m.Date.UTC(),
		Type:                string(m.Type),
		Amount:              m.Amount,
		Description:         m.Description,
		SourceTransactionID: m.SourceTransactionID,
		Origin:              string(m.Origin),
	}
}

func (r capitalMovementRow) toDomain() domain.CapitalMovement {
	return domain.CapitalMovement{
		ID:                  r.ID,
		Date:                r.Date.UTC(),
		Type:                domain.CapitalMovementType(r.Type),
		Amount:              r.Amount,
		Description:         r.Description,
		SourceTransactionID: r.SourceTransactionID,
		Origin:              domain.CapitalOrigin(r.Origin),
	}
}
