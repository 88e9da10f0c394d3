// Package storetest holds behaviour every store.Repository implementation must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
)

func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Run("ProductLifecycle", func(t *testing.T) { productLifecycle(t, newRepo(t)) })
	t.Run("ContactLifecycle", func(t *testing.T) { contactLifecycle(t, newRepo(t)) })
	t.Run("LedgerChanges", func(t *testing.T) { ledgerChanges(t, newRepo(t)) })
	t.Run("StaleStock", func(t *testing.T) { staleStock(t, newRepo(t)) })
	t.Run("TransactionFilters", func(t *testing.T) { transactionFilters(t, newRepo(t)) })
	t.Run("ManualCapital", func(t *testing.T) { manualCapital(t, newRepo(t)) })
}

func staleStock(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product, err := repo.CreateProduct(ctx, domain.Product{Name: "Washer"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := repo.ApplyLedgerChanges(ctx, store.LedgerChanges{StockLevels: map[string]int{product.ID: 10}}); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// Planned from 10, but another writer already took the level to 4.
	if err := repo.ApplyLedgerChanges(ctx, store.LedgerChanges{
		ExpectedStock: map[string]int{product.ID: 10},
		StockLevels:   map[string]int{product.ID: 4},
	}); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	err = repo.ApplyLedgerChanges(ctx, store.LedgerChanges{
		ExpectedStock: map[string]int{product.ID: 10},
		StockLevels:   map[string]int{product.ID: 4},
		Movements: []domain.StockMovement{{
			ID: "m-stale", ProductID: product.ID, TransactionID: "tx-stale", Date: date, Quantity: -6, BalanceAfter: 4,
		}},
		PutTransaction: &domain.Transaction{
			ID: "tx-stale", Type: domain.TransactionSale, Date: date, ContactID: "c-1", PaymentMethod: domain.PaymentCash,
			Items: []domain.TransactionItem{{ID: "i-1", ProductID: product.ID, Quantity: 6}},
		},
	})
	if !errors.Is(err, store.ErrStaleStock) {
		t.Fatalf("expected stale stock, got %v", err)
	}
	if _, err := repo.GetTransaction(ctx, "tx-stale"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected stale write to leave no transaction, got %v", err)
	}
	if movements, _ := repo.ListStockMovements(ctx, product.ID); len(movements) != 0 {
		t.Fatalf("expected stale write to leave no movements, got %+v", movements)
	}

	err = repo.ApplyLedgerChanges(ctx, store.LedgerChanges{
		ExpectedStock: map[string]int{"ghost": 0},
		StockLevels:   map[string]int{"ghost": 1},
	})
	if !errors.Is(err, store.ErrStaleStock) {
		t.Fatalf("expected a vanished product to count as stale, got %v", err)
	}

	got, err := repo.GetProduct(ctx, product.ID)
	if err != nil || got.CurrentStock != 4 {
		t.Fatalf("expected stock 4, got %+v %v", got, err)
	}
}

func productLifecycle(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	if _, err := repo.CreateProduct(ctx, domain.Product{Name: "  "}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected blank name to be rejected, got %v", err)
	}

	created, err := repo.CreateProduct(ctx, domain.Product{Name: "Hex Nut", Category: "hardware"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.ID == "" || created.CurrentStock != 0 {
		t.Fatalf("unexpected created product: %+v", created)
	}
	if _, err := repo.CreateProduct(ctx, domain.Product{ID: created.ID, Name: "Dup"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected duplicate id to be rejected, got %v", err)
	}

	if err := repo.ApplyLedgerChanges(ctx, store.LedgerChanges{StockLevels: map[string]int{created.ID: 7}}); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	updated, err := repo.UpdateProduct(ctx, domain.Product{ID: created.ID, Name: "Hex Nut M6", CurrentStock: 999})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Name != "Hex Nut M6" || updated.CurrentStock != 7 {
		t.Fatalf("expected rename with stock kept at 7, got %+v", updated)
	}

	byID, err := repo.GetProductsByIDs(ctx, []string{created.ID, "missing"})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if len(byID) != 1 || byID[created.ID].Name != "Hex Nut M6" {
		t.Fatalf("unexpected lookup: %+v", byID)
	}

	if _, err := repo.UpdateProduct(ctx, domain.Product{ID: "missing", Name: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := repo.DeleteProduct(ctx, created.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if _, err := repo.GetProduct(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted product to be gone, got %v", err)
	}
	if err := repo.DeleteProduct(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func contactLifecycle(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	first, err := repo.CreateContact(ctx, domain.Contact{Name: "Ege Trading", Phone: "555"})
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	if _, err := repo.CreateContact(ctx, domain.Contact{Name: "Delta Parts", Phone: "556"}); err != nil {
		t.Fatalf("create contact: %v", err)
	}

	contacts, err := repo.ListContacts(ctx)
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != 2 || contacts[0].Name != "Ege Trading" {
		t.Fatalf("expected insertion order, got %+v", contacts)
	}

	first.Email = "orders@ege.example"
	if _, err := repo.UpdateContact(ctx, *first); err != nil {
		t.Fatalf("update contact: %v", err)
	}
	got, err := repo.GetContact(ctx, first.ID)
	if err != nil || got.Email != "orders@ege.example" {
		t.Fatalf("unexpected contact after update: %+v %v", got, err)
	}

	if err := repo.DeleteContact(ctx, first.ID); err != nil {
		t.Fatalf("delete contact: %v", err)
	}
	if _, err := repo.GetContact(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected contact gone, got %v", err)
	}
}

func ledgerChanges(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product, err := repo.CreateProduct(ctx, domain.Product{Name: "Cable"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	date := time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)
	rate := decimal.RequireFromString("34.25")
	price := decimal.RequireFromString("2.50")
	tx := domain.Transaction{
		ID: "tx-1", Type: domain.TransactionSale, Date: date, ContactID: "c-1", PaymentMethod: domain.PaymentCash,
		TotalAmount: decimal.RequireFromString("12.40"), ExchangeRate: &rate,
		Items: []domain.TransactionItem{{
			ID: "item-1", ProductID: product.ID, Quantity: 4, UnitPrice: decimal.RequireFromString("3.10"),
			Total: decimal.RequireFromString("12.40"), PurchasePrice: &price,
		}},
	}

	err = repo.ApplyLedgerChanges(ctx, store.LedgerChanges{
		StockLevels: map[string]int{product.ID: -4, "ghost": 10},
		Movements: []domain.StockMovement{{
			ID: "m-1", ProductID: product.ID, TransactionID: "tx-1", Date: date, Quantity: -4, BalanceAfter: -4,
		}},
		PutTransaction: &tx,
		Capital: []domain.CapitalMovement{{
			ID: "cap-1", Date: date, Type: domain.CapitalProfit, Amount: decimal.RequireFromString("2.40"),
			Description: "Transaction No: tx-1", SourceTransactionID: "tx-1", Origin: domain.CapitalOriginDerived,
		}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	stored, err := repo.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if !stored.TotalAmount.Equal(tx.TotalAmount) || stored.ExchangeRate == nil || !stored.ExchangeRate.Equal(rate) {
		t.Fatalf("money fields did not round-trip: %+v", stored)
	}
	if len(stored.Items) != 1 || stored.Items[0].PurchasePrice == nil || !stored.Items[0].PurchasePrice.Equal(price) {
		t.Fatalf("items did not round-trip: %+v", stored.Items)
	}
	if !stored.Date.Equal(date) {
		t.Fatalf("expected date %s, got %s", date, stored.Date)
	}

	got, err := repo.GetProduct(ctx, product.ID)
	if err != nil || got.CurrentStock != -4 {
		t.Fatalf("expected stock -4, got %+v %v", got, err)
	}

	// Revision: capital and movements are replaced, the transaction is overwritten in place.
	revised := tx
	revised.Items = []domain.TransactionItem{{
		ID: "item-1", ProductID: product.ID, Quantity: 1, UnitPrice: decimal.RequireFromString("3.10"), Total: decimal.RequireFromString("3.10"),
	}}
	revised.TotalAmount = decimal.RequireFromString("3.10")
	revised.ExchangeRate = nil
	err = repo.ApplyLedgerChanges(ctx, store.LedgerChanges{
		UnlinkCapitalOf:  "tx-1",
		ClearMovementsOf: "tx-1",
		StockLevels:      map[string]int{product.ID: -1},
		Movements: []domain.StockMovement{{
			ID: "m-2", ProductID: product.ID, TransactionID: "tx-1", Date: date, Quantity: -1, BalanceAfter: -1,
		}},
		PutTransaction: &revised,
	})
	if err != nil {
		t.Fatalf("apply revision: %v", err)
	}

	movements, err := repo.ListStockMovements(ctx, product.ID)
	if err != nil || len(movements) != 1 || movements[0].ID != "m-2" {
		t.Fatalf("expected only the new movement, got %+v %v", movements, err)
	}
	capital, err := repo.ListCapitalMovements(ctx)
	if err != nil || len(capital) != 0 {
		t.Fatalf("expected linked capital removed, got %+v %v", capital, err)
	}
	all, err := repo.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil || len(all) != 1 || all[0].ExchangeRate != nil || all[0].Items[0].Quantity != 1 {
		t.Fatalf("expected single revised transaction, got %+v %v", all, err)
	}

	err = repo.ApplyLedgerChanges(ctx, store.LedgerChanges{
		ClearMovementsOf:    "tx-1",
		StockLevels:         map[string]int{product.ID: 0},
		DeleteTransactionID: "tx-1",
	})
	if err != nil {
		t.Fatalf("apply retract: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, "tx-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected transaction deleted, got %v", err)
	}
	if movements, _ := repo.ListStockMovements(ctx, ""); len(movements) != 0 {
		t.Fatalf("expected no movements, got %d", len(movements))
	}

	if err := repo.ApplyLedgerChanges(ctx, store.LedgerChanges{PutTransaction: &domain.Transaction{}}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected id-less transaction rejected, got %v", err)
	}
}

func transactionFilters(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	put := func(id string, txType domain.TransactionType, contactID, productID string, offset int) {
		t.Helper()
		tx := domain.Transaction{
			ID: id, Type: txType, Date: day.AddDate(0, 0, offset), ContactID: contactID, PaymentMethod: domain.PaymentCash,
			TotalAmount: decimal.NewFromInt(1),
			Items: []domain.TransactionItem{{
				ID: id + "-1", ProductID: productID, Quantity: 1, UnitPrice: decimal.NewFromInt(1), Total: decimal.NewFromInt(1),
			}},
		}
		if err := repo.ApplyLedgerChanges(ctx, store.LedgerChanges{PutTransaction: &tx}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	put("late-purchase", domain.TransactionPurchase, "c-1", "p-1", 5)
	put("early-purchase", domain.TransactionPurchase, "c-2", "p-2", 1)
	put("sale", domain.TransactionSale, "c-1", "p-1", 3)

	all, err := repo.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "early-purchase" || all[2].ID != "late-purchase" {
		t.Fatalf("expected date order, got %v", ids(all))
	}

	purchases, _ := repo.ListTransactions(ctx, store.TransactionFilter{Type: domain.TransactionPurchase})
	if len(purchases) != 2 {
		t.Fatalf("expected 2 purchases, got %v", ids(purchases))
	}
	byContact, _ := repo.ListTransactions(ctx, store.TransactionFilter{ContactID: "c-1"})
	if len(byContact) != 2 {
		t.Fatalf("expected 2 for c-1, got %v", ids(byContact))
	}
	byProduct, _ := repo.ListTransactions(ctx, store.TransactionFilter{Type: domain.TransactionPurchase, ProductIDs: []string{"p-1"}})
	if len(byProduct) != 1 || byProduct[0].ID != "late-purchase" {
		t.Fatalf("expected late-purchase only, got %v", ids(byProduct))
	}
}

func manualCapital(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	if _, err := repo.CreateCapitalMovement(ctx, domain.CapitalMovement{Amount: decimal.NewFromInt(-1)}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected negative amount rejected, got %v", err)
	}
	created, err := repo.CreateCapitalMovement(ctx, domain.CapitalMovement{
		Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Type: domain.CapitalInvestment,
		Amount: decimal.NewFromInt(1000), Origin: domain.CapitalOriginManual,
	})
	if err != nil {
		t.Fatalf("create capital: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	list, err := repo.ListCapitalMovements(ctx)
	if err != nil || len(list) != 1 || list[0].Origin != domain.CapitalOriginManual || list[0].SourceTransactionID != "" {
		t.Fatalf("unexpected capital list: %+v %v", list, err)
	}
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.ID)
	}
	return out
}
