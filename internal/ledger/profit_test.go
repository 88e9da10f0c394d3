package ledger

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
)

func TestMaxPurchasePricesIgnoresSales(t *testing.T) {
	purchases := []domain.Transaction{
		newTx("p1", domain.TransactionPurchase, 0, line{"a", 1, "10"}, line{"b", 1, "4"}),
		newTx("p2", domain.TransactionPurchase, 1, line{"a", 1, "12.50"}),
		newTx("s1", domain.TransactionSale, 2, line{"a", 1, "99"}),
	}

	prices := MaxPurchasePrices(purchases)
	if !prices["a"].Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected 12.50 for a, got %s", prices["a"])
	}
	if !prices["b"].Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected 4 for b, got %s", prices["b"])
	}
	if _, ok := prices["c"]; ok {
		t.Fatalf("expected no price for c")
	}
}

func TestProfitCountsOnlyResolvedItems(t *testing.T) {
	tx := newTx("s1", domain.TransactionSale, 0, line{"a", 2, "10"}, line{"b", 1, "5"})
	tx.Items[0].PurchasePrice = ptr(decimal.NewFromInt(6))

	profit, cost := Profit(tx)
	if !cost.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("expected cost 12, got %s", cost)
	}
	if !profit.Equal(decimal.NewFromInt(13)) {
		t.Fatalf("expected profit 13, got %s", profit)
	}
}

func TestCapitalLinkerDescribesSale(t *testing.T) {
	linker := NewCapitalLinker("USD")
	tx := newTx("s-42", domain.TransactionSale, 0, line{"a", 2, "10"})
	tx.Items[0].PurchasePrice = ptr(decimal.NewFromInt(4))
	products := map[string]domain.Product{"a": {ID: "a", Name: "Steel Bolt"}}

	profit, cost := Profit(tx)
	movement, ok := linker.Link(tx, products, profit, cost)
	if !ok {
		t.Fatalf("expected a capital row")
	}
	if movement.SourceTransactionID != "s-42" || movement.Origin != domain.CapitalOriginDerived {
		t.Fatalf("unexpected link fields: %+v", movement)
	}
	if !movement.Date.Equal(tx.Date) {
		t.Fatalf("expected transaction date, got %s", movement.Date)
	}
	for _, want := range []string{"Transaction No: s-42", "Steel Bolt: 2 pcs", "$12.00", "$20.00"} {
		if !strings.Contains(movement.Description, want) {
			t.Fatalf("description %q missing %q", movement.Description, want)
		}
	}
}

func TestCapitalLinkerSkipsPurchasesAndBreakEven(t *testing.T) {
	linker := NewCapitalLinker("TRY")
	purchase := newTx("p1", domain.TransactionPurchase, 0, line{"a", 1, "10"})
	if _, ok := linker.Link(purchase, nil, decimal.NewFromInt(10), decimal.Zero); ok {
		t.Fatalf("purchases never produce capital rows")
	}
	sale := newTx("s1", domain.TransactionSale, 0, line{"a", 1, "10"})
	if _, ok := linker.Link(sale, nil, decimal.Zero, decimal.NewFromInt(10)); ok {
		t.Fatalf("break-even sales never produce capital rows")
	}
}

func TestNewCapitalLinkerFallsBackOnUnknownCurrency(t *testing.T) {
	if got := NewCapitalLinker("XXZ").Currency(); got != DefaultCurrency {
		t.Fatalf("expected %s, got %s", DefaultCurrency, got)
	}
}
