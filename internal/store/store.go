package store

import (
	"context"
	"errors"
	"fmt"

	"tradeledger/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrStaleStock means a product's stock moved after the change set was
	// planned. The write can be planned again against fresh levels.
	ErrStaleStock = errors.New("stock changed concurrently")
)

type TransactionFilter struct {
	Type       domain.TransactionType
	ContactID  string
	ProductIDs []string
}

// Matches reports whether tx passes every non-empty criterion of the filter.
func (f TransactionFilter) Matches(tx domain.Transaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.ContactID != "" && tx.ContactID != f.ContactID {
		return false
	}
	if len(f.ProductIDs) == 0 {
		return true
	}
	for _, item := range tx.Items {
		for _, id := range f.ProductIDs {
			if item.ProductID == id {
				return true
			}
		}
	}
	return false
}

// LedgerChanges is the full effect of one ledger write. Implementations must
// apply it atomically and in this order: unlink capital, clear movements,
// stock levels, new movements, transaction put/delete, new capital rows.
//
// ExpectedStock holds the levels the plan was computed from. Before writing,
// implementations compare them with the stored levels and fail with
// ErrStaleStock on any difference.
type LedgerChanges struct {
	ExpectedStock       map[string]int
	UnlinkCapitalOf     string
	ClearMovementsOf    string
	StockLevels         map[string]int
	Movements           []domain.StockMovement
	PutTransaction      *domain.Transaction
	DeleteTransactionID string
	Capital             []domain.CapitalMovement
}

func (c LedgerChanges) IsEmpty() bool {
	return c.UnlinkCapitalOf == "" &&
		c.ClearMovementsOf == "" &&
		len(c.StockLevels) == 0 &&
		len(c.Movements) == 0 &&
		c.PutTransaction == nil &&
		c.DeleteTransactionID == "" &&
		len(c.Capital) == 0
}

// CheckExpectedStock compares planned levels with the stored ones. A product
// missing from actual counts as changed.
func CheckExpectedStock(expected, actual map[string]int) error {
	for productID, want := range expected {
		got, ok := actual[productID]
		if !ok {
			return fmt.Errorf("%w: product %s is gone", ErrStaleStock, productID)
		}
		if got != want {
			return fmt.Errorf("%w: product %s is at %d, planned from %d", ErrStaleStock, productID, got, want)
		}
	}
	return nil
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListContacts(ctx context.Context) ([]domain.Contact, error)
	GetContact(ctx context.Context, id string) (*domain.Contact, error)
	CreateContact(ctx context.Context, contact domain.Contact) (*domain.Contact, error)
	UpdateContact(ctx context.Context, contact domain.Contact) (*domain.Contact, error)
	DeleteContact(ctx context.Context, id string) error

	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	ListStockMovements(ctx context.Context, productID string) ([]domain.StockMovement, error)
	ListCapitalMovements(ctx context.Context) ([]domain.CapitalMovement, error)
	CreateCapitalMovement(ctx context.Context, movement domain.CapitalMovement) (*domain.CapitalMovement, error)

	ApplyLedgerChanges(ctx context.Context, changes LedgerChanges) error
}
