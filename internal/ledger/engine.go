package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/lock"
	"tradeledger/backend/internal/store"
)

var ErrDuplicateTransaction = errors.New("transaction already recorded")

const (
	lockAttempts   = 3
	commitAttempts = 3
)

type RecordResult struct {
	Transaction domain.Transaction
	Movements   []domain.StockMovement
	StockLevels map[string]int
	Profit      decimal.Decimal
	Cost        decimal.Decimal
	Capital     *domain.CapitalMovement
}

type ReviseResult struct {
	// Applied is false when the transaction id was unknown.
	Applied     bool
	Previous    domain.Transaction
	Transaction domain.Transaction
	Movements   []domain.StockMovement
	StockLevels map[string]int
	Profit      decimal.Decimal
	Cost        decimal.Decimal
	Capital     *domain.CapitalMovement
}

type RetractResult struct {
	Applied     bool
	Transaction domain.Transaction
	StockLevels map[string]int
}

type Engine struct {
	repo   store.Repository
	locker lock.Locker
	linker CapitalLinker
	logger logrus.FieldLogger
}

func NewEngine(repo store.Repository, locker lock.Locker, linker CapitalLinker, logger logrus.FieldLogger) *Engine {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		repo:   repo,
		locker: locker,
		linker: linker,
		logger: logger.WithField("module", "ledger"),
	}
}

// Record writes a new transaction. A sale that would take any product below
// zero fails with *InsufficientStockError and changes nothing.
func (e *Engine) Record(ctx context.Context, tx domain.Transaction) (*RecordResult, error) {
	if tx.ID == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if err := checkItems(tx); err != nil {
		return nil, err
	}

	existing, release, err := e.acquire(ctx, tx.ID, &tx)
	if err != nil {
		return nil, err
	}
	defer release()
	if existing != nil {
		return nil, ErrDuplicateTransaction
	}

	var result *RecordResult
	err = e.commit(ctx, "Record", tx.ID, func() (store.LedgerChanges, map[string]domain.Product, error) {
		products, err := e.products(ctx, "Record", tx.ID, &tx)
		if err != nil {
			return store.LedgerChanges{}, nil, err
		}

		var purchases []domain.Transaction
		if tx.Type == domain.TransactionSale {
			purchases, err = e.repo.ListTransactions(ctx, store.TransactionFilter{
				Type:       domain.TransactionPurchase,
				ProductIDs: productIDs(&tx),
			})
			if err != nil {
				return store.LedgerChanges{}, nil, fmt.Errorf("list purchases: %w", err)
			}
		}

		changes, planned, err := planRecord(tx, products, purchases, e.linker)
		if err != nil {
			e.logger.WithFields(logrus.Fields{"func": "Record", "transaction_id": tx.ID}).Info(err.Error())
			return store.LedgerChanges{}, nil, err
		}
		result = planned
		return changes, products, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Revise replaces a recorded transaction with next. Unknown ids are a no-op.
func (e *Engine) Revise(ctx context.Context, next domain.Transaction) (*ReviseResult, error) {
	if next.ID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if err := checkItems(next); err != nil {
		return nil, err
	}

	old, release, err := e.acquire(ctx, next.ID, &next)
	if err != nil {
		return nil, err
	}
	defer release()
	if old == nil {
		e.logger.WithFields(logrus.Fields{"func": "Revise", "transaction_id": next.ID}).Warn("transaction not found, nothing to revise")
		return &ReviseResult{}, nil
	}

	var result *ReviseResult
	err = e.commit(ctx, "Revise", next.ID, func() (store.LedgerChanges, map[string]domain.Product, error) {
		products, err := e.products(ctx, "Revise", next.ID, old, &next)
		if err != nil {
			return store.LedgerChanges{}, nil, err
		}
		changes, planned := planRevise(*old, next, products, e.linker)
		result = planned
		return changes, products, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Retract deletes a recorded transaction and its stock effect. A capital row
// derived from it stays in the ledger. Unknown ids are a no-op.
func (e *Engine) Retract(ctx context.Context, id string) (*RetractResult, error) {
	if id == "" {
		return nil, store.ErrInvalidTransaction
	}

	old, release, err := e.acquire(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	defer release()
	if old == nil {
		e.logger.WithFields(logrus.Fields{"func": "Retract", "transaction_id": id}).Warn("transaction not found, nothing to retract")
		return &RetractResult{}, nil
	}

	var result *RetractResult
	err = e.commit(ctx, "Retract", id, func() (store.LedgerChanges, map[string]domain.Product, error) {
		products, err := e.products(ctx, "Retract", id, old)
		if err != nil {
			return store.LedgerChanges{}, nil, err
		}
		changes, planned := planRetract(*old, products)
		result = planned
		return changes, products, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// commit plans and applies one write. The change set carries the stock levels
// it was planned from; another process may move them before the store sees
// the write, in which case the store answers ErrStaleStock and the write is
// planned again. Past commitAttempts the caller gets lock.ErrBusy.
func (e *Engine) commit(ctx context.Context, fn, txID string, plan func() (store.LedgerChanges, map[string]domain.Product, error)) error {
	for attempt := 1; ; attempt++ {
		changes, products, err := plan()
		if err != nil {
			return err
		}
		changes.ExpectedStock = expectedStock(products, changes.StockLevels)

		err = e.repo.ApplyLedgerChanges(ctx, changes)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrStaleStock) {
			return fmt.Errorf("commit %s %s: %w", strings.ToLower(fn), txID, err)
		}
		if attempt == commitAttempts {
			return fmt.Errorf("%w: %w", lock.ErrBusy, err)
		}
		e.logger.WithFields(logrus.Fields{
			"func":           fn,
			"transaction_id": txID,
			"attempt":        attempt,
		}).Warn(err.Error() + ", planning again")
	}
}

// expectedStock is the stored level of every product the plan writes.
func expectedStock(products map[string]domain.Product, levels map[string]int) map[string]int {
	if len(levels) == 0 {
		return nil
	}
	expected := make(map[string]int, len(levels))
	for productID := range levels {
		if product, ok := products[productID]; ok {
			expected[productID] = product.CurrentStock
		}
	}
	return expected
}

// checkItems rejects quantities below one and negative prices.
func checkItems(tx domain.Transaction) error {
	for _, item := range tx.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity must be positive", store.ErrInvalidTransaction, item.ProductID)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %s unit price must not be negative", store.ErrInvalidTransaction, item.ProductID)
		}
		if item.PurchasePrice != nil && item.PurchasePrice.IsNegative() {
			return fmt.Errorf("%w: item %s purchase price must not be negative", store.ErrInvalidTransaction, item.ProductID)
		}
	}
	return nil
}

func (e *Engine) StockMovements(ctx context.Context, productID string) ([]domain.StockMovement, error) {
	return e.repo.ListStockMovements(ctx, productID)
}

func (e *Engine) Product(ctx context.Context, id string) (*domain.Product, error) {
	return e.repo.GetProduct(ctx, id)
}

func (e *Engine) CapitalMovements(ctx context.Context) ([]domain.CapitalMovement, error) {
	return e.repo.ListCapitalMovements(ctx)
}

// Currency is the display currency used in derived capital descriptions.
func (e *Engine) Currency() string {
	return e.linker.Currency()
}

// acquire locks the transaction id and every product of both the stored and
// the incoming version. The stored version is read again under the lock; if
// its product set moved in between, the lock is retaken.
func (e *Engine) acquire(ctx context.Context, id string, next *domain.Transaction) (*domain.Transaction, func(), error) {
	stored, err := e.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < lockAttempts; attempt++ {
		keys := []string{lock.TransactionKey(id)}
		for _, productID := range productIDs(stored, next) {
			keys = append(keys, lock.ProductKey(productID))
		}

		release, err := e.locker.Lock(ctx, keys...)
		if err != nil {
			return nil, nil, fmt.Errorf("lock transaction %s: %w", id, err)
		}

		current, err := e.lookup(ctx, id)
		if err != nil {
			release()
			return nil, nil, err
		}
		if slices.Equal(productIDs(stored), productIDs(current)) {
			return current, release, nil
		}
		release()
		stored = current
	}
	return nil, nil, fmt.Errorf("%w: transaction %s kept changing", lock.ErrBusy, id)
}

func (e *Engine) lookup(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := e.repo.GetTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (e *Engine) products(ctx context.Context, fn, txID string, txs ...*domain.Transaction) (map[string]domain.Product, error) {
	ids := productIDs(txs...)
	products, err := e.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			e.logger.WithFields(logrus.Fields{
				"func":           fn,
				"transaction_id": txID,
				"product_id":     id,
			}).Warn("product not found, skipping its items")
		}
	}
	return products, nil
}

func planRecord(tx domain.Transaction, products map[string]domain.Product, purchases []domain.Transaction, linker CapitalLinker) (store.LedgerChanges, *RecordResult, error) {
	tx.Items = slices.Clone(tx.Items)
	book := newStockBook(products)

	movements := make([]domain.StockMovement, 0, len(tx.Items))
	for _, item := range tx.Items {
		movement, err := book.apply(tx, item, true)
		if err != nil {
			return store.LedgerChanges{}, nil, err
		}
		if movement != nil {
			movements = append(movements, *movement)
		}
	}

	result := &RecordResult{Movements: movements, Profit: decimal.Zero, Cost: decimal.Zero}
	changes := store.LedgerChanges{Movements: movements}

	if tx.Type == domain.TransactionSale {
		attributePurchasePrices(tx.Items, MaxPurchasePrices(purchases), book)
		result.Profit, result.Cost = Profit(tx)
		if capital, ok := linker.Link(tx, products, result.Profit, result.Cost); ok {
			changes.Capital = []domain.CapitalMovement{capital}
			result.Capital = &capital
		}
	}

	result.Transaction = tx
	result.StockLevels = book.changed()
	changes.StockLevels = result.StockLevels
	changes.PutTransaction = &tx
	return changes, result, nil
}

func planRevise(old, next domain.Transaction, products map[string]domain.Product, linker CapitalLinker) (store.LedgerChanges, *ReviseResult) {
	next.Items = slices.Clone(next.Items)
	book := newStockBook(products)
	for _, item := range old.Items {
		book.revert(old.Type, item)
	}

	changes := store.LedgerChanges{ClearMovementsOf: old.ID}
	if old.Type == domain.TransactionSale {
		changes.UnlinkCapitalOf = old.ID
	}

	result := &ReviseResult{Applied: true, Previous: old, Profit: decimal.Zero, Cost: decimal.Zero}
	if next.Type == domain.TransactionSale {
		result.Profit, result.Cost = Profit(next)
		if capital, ok := linker.Link(next, products, result.Profit, result.Cost); ok {
			changes.Capital = []domain.CapitalMovement{capital}
			result.Capital = &capital
		}
	}

	movements := make([]domain.StockMovement, 0, len(next.Items))
	for _, item := range next.Items {
		// The forward pass of a revision is unguarded, so apply cannot fail here.
		movement, _ := book.apply(next, item, false)
		if movement != nil {
			movements = append(movements, *movement)
		}
	}

	result.Transaction = next
	result.Movements = movements
	result.StockLevels = book.changed()
	changes.StockLevels = result.StockLevels
	changes.Movements = movements
	changes.PutTransaction = &next
	return changes, result
}

func planRetract(old domain.Transaction, products map[string]domain.Product) (store.LedgerChanges, *RetractResult) {
	book := newStockBook(products)
	for _, item := range old.Items {
		book.revert(old.Type, item)
	}

	levels := book.changed()
	return store.LedgerChanges{
			ClearMovementsOf:    old.ID,
			StockLevels:         levels,
			DeleteTransactionID: old.ID,
		}, &RetractResult{
			Applied:     true,
			Transaction: old,
			StockLevels: levels,
		}
}

// productIDs returns the sorted distinct product ids referenced by txs.
func productIDs(txs ...*domain.Transaction) []string {
	var ids []string
	for _, tx := range txs {
		if tx == nil {
			continue
		}
		for _, item := range tx.Items {
			ids = append(ids, item.ProductID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
