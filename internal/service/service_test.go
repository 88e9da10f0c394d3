package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"tradeledger/backend/internal/cache"
	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/ledger"
	"tradeledger/backend/internal/lock"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/store/memory"
)

var fixedNow = time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)

// memoryCache is a SummaryCache kept in process that records invalidations.
type memoryCache struct {
	mu          sync.Mutex
	values      map[string][]byte
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
		c.invalidated = append(c.invalidated, key)
	}
	return nil
}

type fixture struct {
	svc     *Service
	repo    *memory.Store
	cache   *memoryCache
	contact domain.Contact
	bolt    domain.Product
	cable   domain.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := memory.New()
	engine := ledger.NewEngine(repo, lock.NewLocal(), ledger.NewCapitalLinker("TRY"), logger)
	summaries := newMemoryCache()
	svc := New(repo, engine, summaries, logger, Options{
		LowStockThreshold: 5,
		Now:               func() time.Time { return fixedNow },
	})

	ctx := context.Background()
	contact, err := svc.CreateContact(ctx, domain.ContactCreateRequest{Name: "Anadolu Supply", Phone: "+90 212 555 0101"})
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	bolt, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Steel Bolt", Category: "hardware"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	cable, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Copper Cable"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return &fixture{svc: svc, repo: repo, cache: summaries, contact: contact, bolt: bolt, cable: cable}
}

func (f *fixture) request(txType domain.TransactionType, items ...domain.TransactionItemRequest) domain.TransactionRequest {
	return domain.TransactionRequest{Type: txType, ContactID: f.contact.ID, Items: items}
}

func item(productID string, qty int, price string) domain.TransactionItemRequest {
	return domain.TransactionItemRequest{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := f.svc.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return product.CurrentStock
}

func TestCreateProductStartsAtZeroStock(t *testing.T) {
	f := newFixture(t)
	if f.bolt.CurrentStock != 0 || f.bolt.ID == "" {
		t.Fatalf("unexpected new product %+v", f.bolt)
	}

	_, err := f.svc.CreateProduct(context.Background(), domain.ProductCreateRequest{Name: "   "})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected blank name to be rejected, got %v", err)
	}
}

func TestUpdateProductKeepsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 7, "2"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	name := "Steel Bolt M10"
	updated, err := f.svc.UpdateProduct(ctx, f.bolt.ID, domain.ProductUpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Name != name || updated.CurrentStock != 7 || updated.Category != "hardware" {
		t.Fatalf("unexpected updated product %+v", updated)
	}

	if _, err := f.svc.UpdateProduct(ctx, "missing", domain.ProductUpdateRequest{Name: &name}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContactValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateContact(ctx, domain.ContactCreateRequest{Name: "No Phone"})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected missing phone to be rejected, got %v", err)
	}
	_, err = f.svc.CreateContact(ctx, domain.ContactCreateRequest{Name: "Bad Mail", Phone: "1", Email: "not-an-email"})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected bad email to be rejected, got %v", err)
	}

	blank := " "
	_, err = f.svc.UpdateContact(ctx, f.contact.ID, domain.ContactUpdateRequest{Phone: &blank})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected blank phone to be rejected, got %v", err)
	}
}

func TestCreateTransactionComputesTotalsAndDefaults(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.CreateTransaction(context.Background(), f.request(domain.TransactionPurchase,
		item(f.bolt.ID, 10, "5.50"),
		item(f.cable.ID, 3, "12"),
	))
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	tx := result.Transaction
	if tx.ID == "" {
		t.Fatalf("expected generated transaction id")
	}
	if !tx.Date.Equal(fixedNow) {
		t.Fatalf("expected date to default to now, got %s", tx.Date)
	}
	if tx.PaymentMethod != domain.PaymentCash {
		t.Fatalf("expected cash payment by default, got %s", tx.PaymentMethod)
	}
	if !tx.TotalAmount.Equal(decimal.RequireFromString("91")) {
		t.Fatalf("expected total 91, got %s", tx.TotalAmount)
	}
	if !tx.Items[0].Total.Equal(decimal.RequireFromString("55")) {
		t.Fatalf("expected item total 55, got %s", tx.Items[0].Total)
	}
	if tx.Items[0].ID == "" || tx.Items[0].ID == tx.Items[1].ID {
		t.Fatalf("expected distinct item ids, got %+v", tx.Items)
	}
	if f.stock(t, f.bolt.ID) != 10 || f.stock(t, f.cable.ID) != 3 {
		t.Fatalf("unexpected stock after purchase")
	}
}

func TestCreateTransactionRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	zero := decimal.Zero

	cases := map[string]domain.TransactionRequest{
		"unknown contact": {Type: domain.TransactionPurchase, ContactID: "nobody", Items: []domain.TransactionItemRequest{item(f.bolt.ID, 1, "1")}},
		"unknown product": f.request(domain.TransactionPurchase, item("ghost", 1, "1")),
		"zero quantity":   f.request(domain.TransactionPurchase, item(f.bolt.ID, 0, "1")),
		"negative price":  f.request(domain.TransactionPurchase, item(f.bolt.ID, 1, "-1")),
		"no items":        f.request(domain.TransactionPurchase),
		"bad type":        f.request(domain.TransactionType("refund"), item(f.bolt.ID, 1, "1")),
		"bad payment": {
			Type: domain.TransactionPurchase, ContactID: f.contact.ID, PaymentMethod: "barter",
			Items: []domain.TransactionItemRequest{item(f.bolt.ID, 1, "1")},
		},
		"zero exchange rate": {
			Type: domain.TransactionPurchase, ContactID: f.contact.ID, ExchangeRate: &zero,
			Items: []domain.TransactionItemRequest{item(f.bolt.ID, 1, "1")},
		},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateTransaction(context.Background(), req)
			if !errors.Is(err, store.ErrInvalidTransaction) {
				t.Fatalf("expected invalid transaction, got %v", err)
			}
		})
	}

	txs, err := f.svc.ListTransactions(context.Background(), TransactionQuery{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected nothing recorded, got %d transactions", len(txs))
	}
}

func TestCreateSaleResolvesPurchasePriceItself(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 10, "100"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	sale := item(f.bolt.ID, 2, "150")
	bogus := decimal.RequireFromString("1")
	sale.PurchasePrice = &bogus
	result, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionSale, sale))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	if !result.Profit.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected profit 100 from stored purchase price, got %s", result.Profit)
	}
	if result.Capital == nil || result.Capital.Type != domain.CapitalProfit {
		t.Fatalf("expected a linked profit row, got %+v", result.Capital)
	}
}

func TestCreateSaleBeyondStockFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 2, "10"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	_, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionSale, item(f.bolt.ID, 5, "20")))
	var shortage *ledger.InsufficientStockError
	if !errors.As(err, &shortage) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if shortage.Available != 2 || shortage.Requested != 5 {
		t.Fatalf("unexpected shortage %+v", shortage)
	}
	if f.stock(t, f.bolt.ID) != 2 {
		t.Fatalf("expected stock untouched")
	}
}

func TestUpdateTransactionKeepsStoredPurchasePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 10, "100"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	sale, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionSale, item(f.bolt.ID, 2, "150")))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	// A dearer purchase afterwards must not reprice the existing sale.
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 5, "200"))); err != nil {
		t.Fatalf("second purchase: %v", err)
	}

	edit := item(f.bolt.ID, 3, "150")
	edit.ID = sale.Transaction.Items[0].ID
	revised, err := f.svc.UpdateTransaction(ctx, sale.Transaction.ID, f.request(domain.TransactionSale, edit))
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if !revised.Profit.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected profit 150 at the stored price, got %s", revised.Profit)
	}
	if f.stock(t, f.bolt.ID) != 12 {
		t.Fatalf("expected stock 12, got %d", f.stock(t, f.bolt.ID))
	}

	capital, err := f.svc.ListCapitalMovements(ctx)
	if err != nil {
		t.Fatalf("list capital: %v", err)
	}
	if len(capital) != 1 || !capital[0].Amount.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected the linked row to be replaced, got %+v", capital)
	}
}

func TestUpdateAndDeleteUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateTransaction(ctx, "missing", f.request(domain.TransactionPurchase, item(f.bolt.ID, 1, "1"))); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if _, err := f.svc.DeleteTransaction(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestDeleteTransactionRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	purchase, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 4, "3")))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if _, err := f.svc.DeleteTransaction(ctx, purchase.Transaction.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.stock(t, f.bolt.ID) != 0 {
		t.Fatalf("expected stock back at zero")
	}
	if _, err := f.svc.GetTransaction(ctx, purchase.Transaction.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted transaction to be gone, got %v", err)
	}
	movements, err := f.svc.ProductStockMovements(ctx, f.bolt.ID)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("expected movements removed, got %d", len(movements))
	}
}

func TestListTransactionsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 4, "3"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionSale, item(f.bolt.ID, 1, "5"))); err != nil {
		t.Fatalf("sale: %v", err)
	}

	sales, err := f.svc.ListTransactions(ctx, TransactionQuery{Type: domain.TransactionSale})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sales) != 1 || sales[0].Type != domain.TransactionSale {
		t.Fatalf("expected one sale, got %+v", sales)
	}

	if _, err := f.svc.ListTransactions(ctx, TransactionQuery{Type: "refund"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected unknown type to be rejected, got %v", err)
	}

	stats, err := f.svc.ContactStats(ctx, f.contact.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPurchases != 1 || stats.TotalSales != 1 || !stats.SaleAmount.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("unexpected contact stats %+v", stats)
	}
}

func TestCapitalSummaryBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []domain.CapitalMovementRequest{
		{Type: domain.CapitalInvestment, Amount: decimal.RequireFromString("1000")},
		{Type: domain.CapitalWithdrawal, Amount: decimal.RequireFromString("150")},
		{Type: domain.CapitalLoss, Amount: decimal.RequireFromString("25.50")},
	} {
		created, err := f.svc.CreateCapitalMovement(ctx, req)
		if err != nil {
			t.Fatalf("create capital movement: %v", err)
		}
		if created.Origin != domain.CapitalOriginManual || !created.Date.Equal(fixedNow) {
			t.Fatalf("unexpected manual row %+v", created)
		}
	}
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 5, "10"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionSale, item(f.bolt.ID, 2, "30"))); err != nil {
		t.Fatalf("sale: %v", err)
	}

	summary, err := f.svc.CapitalSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !summary.TotalProfit.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("expected profit 40, got %s", summary.TotalProfit)
	}
	if !summary.CurrentBalance.Equal(decimal.RequireFromString("864.5")) {
		t.Fatalf("expected balance 864.5, got %s", summary.CurrentBalance)
	}

	if _, err := f.svc.CreateCapitalMovement(ctx, domain.CapitalMovementRequest{Type: domain.CapitalInvestment, Amount: decimal.Zero}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected zero amount to be rejected, got %v", err)
	}
}

func TestSummariesAreCachedUntilAWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if first.TotalProducts != 2 || first.LowStockProducts != 2 {
		t.Fatalf("unexpected dashboard %+v", first)
	}

	// Writing behind the service's back leaves the cached copy in place.
	if _, err := f.repo.CreateProduct(ctx, domain.Product{Name: "Hidden"}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	cached, err := f.svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if cached.TotalProducts != 2 {
		t.Fatalf("expected cached dashboard, got %d products", cached.TotalProducts)
	}

	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 9, "1"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !slices.Contains(f.cache.invalidated, cache.DashboardKey) || !slices.Contains(f.cache.invalidated, cache.CapitalSummaryKey) {
		t.Fatalf("expected both summaries invalidated, got %v", f.cache.invalidated)
	}

	fresh, err := f.svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if fresh.TotalProducts != 3 || fresh.PurchaseCount != 1 || fresh.LowStockProducts != 2 {
		t.Fatalf("unexpected fresh dashboard %+v", fresh)
	}
	if len(fresh.RecentTransactions) != 1 || !fresh.GeneratedAt.Equal(fixedNow) {
		t.Fatalf("unexpected recent transactions %+v", fresh.RecentTransactions)
	}
}

func TestRecentTransactionsNewestFirst(t *testing.T) {
	var txs []domain.Transaction
	for day := 1; day <= 7; day++ {
		txs = append(txs, domain.Transaction{ID: string(rune('a' + day)), Date: fixedNow.AddDate(0, 0, day%4)})
	}

	recent := recentTransactions(txs, 5)
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent transactions, got %d", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].Date.After(recent[i-1].Date) {
			t.Fatalf("expected newest first, got %s before %s", recent[i-1].Date, recent[i].Date)
		}
	}
}

func TestVerifyStockReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 6, "1"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	discrepancies, err := f.svc.VerifyStock(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(discrepancies) != 0 {
		t.Fatalf("expected consistent stock, got %+v", discrepancies)
	}

	if err := f.repo.ApplyLedgerChanges(ctx, store.LedgerChanges{StockLevels: map[string]int{f.cable.ID: 4}}); err != nil {
		t.Fatalf("force stock: %v", err)
	}
	discrepancies, err = f.svc.VerifyStock(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(discrepancies) != 1 || discrepancies[0].ProductID != f.cable.ID || discrepancies[0].CurrentStock != 4 || discrepancies[0].MovementsTotal != 0 {
		t.Fatalf("unexpected discrepancies %+v", discrepancies)
	}
}

func TestExportWorkbookWritesEverySheet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rate := decimal.RequireFromString("32.5")
	req := f.request(domain.TransactionPurchase, item(f.bolt.ID, 10, "65"))
	req.ExchangeRate = &rate
	if _, err := f.svc.CreateTransaction(ctx, req); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	var buf bytes.Buffer
	if err := f.svc.ExportWorkbook(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer book.Close()

	want := []string{"Products", "Transactions", "Stock Movements", "Capital"}
	if got := book.GetSheetList(); !slices.Equal(got, want) {
		t.Fatalf("expected sheets %v, got %v", want, got)
	}

	rows, err := book.GetRows("Transactions")
	if err != nil {
		t.Fatalf("read transactions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[1][1] != "purchase" || rows[1][6] != "650.00" || rows[1][9] != "20.00" {
		t.Fatalf("unexpected transaction row %v", rows[1])
	}

	products, err := book.GetRows("Products")
	if err != nil {
		t.Fatalf("read products: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("expected two product rows, got %d", len(products)-1)
	}
}

func TestExportWorkbookKeepsExactAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// More digits than a float64 can carry.
	amount := decimal.RequireFromString("1234567890123456.78")
	if _, err := f.svc.CreateCapitalMovement(ctx, domain.CapitalMovementRequest{Type: domain.CapitalInvestment, Amount: amount, Description: "seed"}); err != nil {
		t.Fatalf("capital: %v", err)
	}
	if _, err := f.svc.CreateTransaction(ctx, f.request(domain.TransactionPurchase, item(f.bolt.ID, 3, "0.1"))); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	var buf bytes.Buffer
	if err := f.svc.ExportWorkbook(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer book.Close()

	capital, err := book.GetRows("Capital")
	if err != nil {
		t.Fatalf("read capital: %v", err)
	}
	if len(capital) != 3 {
		t.Fatalf("expected header, one movement and the balance row, got %v", capital)
	}
	if capital[1][3] != "1234567890123456.78" || capital[2][1] != "balance" || capital[2][3] != "1234567890123456.78" {
		t.Fatalf("expected exact amounts, got %v", capital)
	}

	txs, err := book.GetRows("Transactions")
	if err != nil {
		t.Fatalf("read transactions: %v", err)
	}
	if txs[1][6] != "0.30" {
		t.Fatalf("expected total 0.30, got %q", txs[1][6])
	}
}
