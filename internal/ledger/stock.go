package ledger

import (
	"fmt"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/xid"
)

// InsufficientStockError rejects a sale item whose quantity exceeds the
// product's running balance at record time.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Unwrap() error {
	return store.ErrInsufficientStock
}

// QuantityChange is the signed stock effect of one item of a transaction.
func QuantityChange(txType domain.TransactionType, quantity int) int {
	if txType == domain.TransactionSale {
		return -quantity
	}
	return quantity
}

// stockBook is the working copy of stock levels for one ledger write.
// Nothing in it is visible to readers until the change set is committed.
type stockBook struct {
	products map[string]domain.Product
	levels   map[string]int
}

func newStockBook(products map[string]domain.Product) *stockBook {
	levels := make(map[string]int, len(products))
	for id, product := range products {
		levels[id] = product.CurrentStock
	}
	return &stockBook{products: products, levels: levels}
}

func (b *stockBook) has(productID string) bool {
	_, ok := b.products[productID]
	return ok
}

// revert takes an applied item back out. There is no lower bound.
func (b *stockBook) revert(txType domain.TransactionType, item domain.TransactionItem) bool {
	if !b.has(item.ProductID) {
		return false
	}
	b.levels[item.ProductID] -= QuantityChange(txType, item.Quantity)
	return true
}

// apply projects one item forward and returns the movement it produces.
// A nil movement means the product is unknown and the item was skipped.
func (b *stockBook) apply(tx domain.Transaction, item domain.TransactionItem, guard bool) (*domain.StockMovement, error) {
	product, ok := b.products[item.ProductID]
	if !ok {
		return nil, nil
	}

	current := b.levels[item.ProductID]
	if guard && tx.Type == domain.TransactionSale && current < item.Quantity {
		return nil, &InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   current,
			Requested:   item.Quantity,
		}
	}

	change := QuantityChange(tx.Type, item.Quantity)
	balance := current + change
	b.levels[item.ProductID] = balance

	return &domain.StockMovement{
		ID:            xid.New(),
		ProductID:     item.ProductID,
		TransactionID: tx.ID,
		Date:          tx.Date,
		Quantity:      change,
		BalanceAfter:  balance,
	}, nil
}

// changed returns the levels that differ from the snapshot the book started with.
func (b *stockBook) changed() map[string]int {
	out := make(map[string]int)
	for id, level := range b.levels {
		if b.products[id].CurrentStock != level {
			out[id] = level
		}
	}
	return out
}
