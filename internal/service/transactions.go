package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/ledger"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/xid"
)

type TransactionQuery struct {
	Type      domain.TransactionType
	ContactID string
}

func (s *Service) ListTransactions(ctx context.Context, query TransactionQuery) ([]domain.Transaction, error) {
	if query.Type != "" && query.Type != domain.TransactionPurchase && query.Type != domain.TransactionSale {
		return nil, invalid("unknown transaction type %q", query.Type)
	}
	return s.repo.ListTransactions(ctx, store.TransactionFilter{
		Type:      query.Type,
		ContactID: strings.TrimSpace(query.ContactID),
	})
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// CreateTransaction records a new purchase or sale. Purchase prices on sale
// items are resolved by the ledger, so any the caller sent are dropped.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (*ledger.RecordResult, error) {
	tx, err := s.buildTransaction(ctx, xid.New(), req, nil)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Record(ctx, tx)
	if err != nil {
		return nil, err
	}
	s.invalidateSummaries(ctx)
	return result, nil
}

// UpdateTransaction revises a recorded transaction. Sale items keep the
// purchase price already stored for them unless the request sets one.
func (s *Service) UpdateTransaction(ctx context.Context, id string, req domain.TransactionRequest) (*ledger.ReviseResult, error) {
	id = strings.TrimSpace(id)
	previous, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.buildTransaction(ctx, id, req, previous)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Revise(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !result.Applied {
		// Removed between the read above and the ledger write.
		return nil, store.ErrNotFound
	}
	s.invalidateSummaries(ctx)
	return result, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) (*ledger.RetractResult, error) {
	result, err := s.engine.Retract(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if !result.Applied {
		return nil, store.ErrNotFound
	}
	s.invalidateSummaries(ctx)
	return result, nil
}

func (s *Service) buildTransaction(ctx context.Context, id string, req domain.TransactionRequest, previous *domain.Transaction) (domain.Transaction, error) {
	req.ContactID = strings.TrimSpace(req.ContactID)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
	}
	if err := s.check(req); err != nil {
		return domain.Transaction{}, err
	}
	if req.ExchangeRate != nil && !req.ExchangeRate.IsPositive() {
		return domain.Transaction{}, invalid("exchange rate must be positive")
	}

	if _, err := s.repo.GetContact(ctx, req.ContactID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Transaction{}, invalid("unknown contact %s", req.ContactID)
		}
		return domain.Transaction{}, err
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.Transaction{}, err
	}

	var storedPrices map[string]domain.TransactionItem
	if previous != nil && previous.Type == domain.TransactionSale {
		storedPrices = make(map[string]domain.TransactionItem, len(previous.Items))
		for _, item := range previous.Items {
			storedPrices[item.ID] = item
		}
	}

	date := req.Date
	if date.IsZero() {
		date = s.now()
	}

	tx := domain.Transaction{
		ID:             id,
		Type:           req.Type,
		Date:           date.UTC(),
		ContactID:      req.ContactID,
		PaymentMethod:  req.PaymentMethod,
		TotalAmount:    decimal.Zero,
		Notes:          strings.TrimSpace(req.Notes),
		AdditionalInfo: strings.TrimSpace(req.AdditionalInfo),
		Items:          make([]domain.TransactionItem, 0, len(req.Items)),
	}
	if req.ExchangeRate != nil {
		rate := *req.ExchangeRate
		tx.ExchangeRate = &rate
	}

	seen := make(map[string]struct{}, len(req.Items))
	for i, r := range req.Items {
		if _, ok := products[r.ProductID]; !ok {
			return domain.Transaction{}, invalid("item %d: unknown product %s", i, r.ProductID)
		}
		if r.UnitPrice.IsNegative() {
			return domain.Transaction{}, invalid("item %d: unit price must not be negative", i)
		}

		itemID := strings.TrimSpace(r.ID)
		if _, dup := seen[itemID]; itemID == "" || dup {
			itemID = xid.New()
		}
		seen[itemID] = struct{}{}

		item := domain.TransactionItem{
			ID:        itemID,
			ProductID: r.ProductID,
			Quantity:  r.Quantity,
			UnitPrice: r.UnitPrice,
			Total:     r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity))),
		}

		if tx.Type == domain.TransactionSale && previous != nil {
			switch {
			case r.PurchasePrice != nil:
				if r.PurchasePrice.IsNegative() {
					return domain.Transaction{}, invalid("item %d: purchase price must not be negative", i)
				}
				price := *r.PurchasePrice
				item.PurchasePrice = &price
			default:
				if stored, ok := storedPrices[itemID]; ok && stored.ProductID == item.ProductID && stored.PurchasePrice != nil {
					price := *stored.PurchasePrice
					item.PurchasePrice = &price
				}
			}
		}

		tx.Items = append(tx.Items, item)
		tx.TotalAmount = tx.TotalAmount.Add(item.Total)
	}

	return tx, nil
}

func (s *Service) ContactStats(ctx context.Context, id string) (domain.ContactStats, error) {
	id = strings.TrimSpace(id)
	if _, err := s.repo.GetContact(ctx, id); err != nil {
		return domain.ContactStats{}, err
	}

	txs, err := s.repo.ListTransactions(ctx, store.TransactionFilter{ContactID: id})
	if err != nil {
		return domain.ContactStats{}, err
	}

	stats := domain.ContactStats{ContactID: id, PurchaseAmount: decimal.Zero, SaleAmount: decimal.Zero}
	for _, tx := range txs {
		switch tx.Type {
		case domain.TransactionPurchase:
			stats.TotalPurchases++
			stats.PurchaseAmount = stats.PurchaseAmount.Add(tx.TotalAmount)
		case domain.TransactionSale:
			stats.TotalSales++
			stats.SaleAmount = stats.SaleAmount.Add(tx.TotalAmount)
		}
	}
	return stats, nil
}

// recentTransactions returns up to limit transactions, newest date first.
func recentTransactions(txs []domain.Transaction, limit int) []domain.Transaction {
	sorted := slices.Clone(txs)
	slices.SortStableFunc(sorted, func(a, b domain.Transaction) int {
		return b.Date.Compare(a.Date)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
