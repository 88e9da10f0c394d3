package service

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/cache"
	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
)

const recentTransactionLimit = 5

func (s *Service) ListCapitalMovements(ctx context.Context) ([]domain.CapitalMovement, error) {
	return s.engine.CapitalMovements(ctx)
}

// CreateCapitalMovement records a manual entry. Manual rows are never tied
// to a transaction and survive every later ledger write.
func (s *Service) CreateCapitalMovement(ctx context.Context, req domain.CapitalMovementRequest) (domain.CapitalMovement, error) {
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.CapitalMovement{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.CapitalMovement{}, invalid("amount must be positive")
	}

	date := req.Date
	if date.IsZero() {
		date = s.now()
	}

	created, err := s.repo.CreateCapitalMovement(ctx, domain.CapitalMovement{
		Date:        date.UTC(),
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		Origin:      domain.CapitalOriginManual,
	})
	if err != nil {
		return domain.CapitalMovement{}, err
	}
	s.invalidateSummaries(ctx)
	return *created, nil
}

func (s *Service) CapitalSummary(ctx context.Context) (domain.CapitalSummary, error) {
	var summary domain.CapitalSummary
	if s.cached(ctx, cache.CapitalSummaryKey, &summary) {
		return summary, nil
	}

	summary, err := s.capitalSummary(ctx)
	if err != nil {
		return domain.CapitalSummary{}, err
	}
	s.remember(ctx, cache.CapitalSummaryKey, summary)
	return summary, nil
}

func (s *Service) capitalSummary(ctx context.Context) (domain.CapitalSummary, error) {
	movements, err := s.engine.CapitalMovements(ctx)
	if err != nil {
		return domain.CapitalSummary{}, err
	}
	return summarizeCapital(movements), nil
}

func summarizeCapital(movements []domain.CapitalMovement) domain.CapitalSummary {
	summary := domain.CapitalSummary{
		TotalInvestments: decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		TotalProfit:      decimal.Zero,
		TotalLoss:        decimal.Zero,
	}
	for _, m := range movements {
		switch m.Type {
		case domain.CapitalInvestment:
			summary.TotalInvestments = summary.TotalInvestments.Add(m.Amount)
		case domain.CapitalWithdrawal:
			summary.TotalWithdrawals = summary.TotalWithdrawals.Add(m.Amount)
		case domain.CapitalProfit:
			summary.TotalProfit = summary.TotalProfit.Add(m.Amount)
		case domain.CapitalLoss:
			summary.TotalLoss = summary.TotalLoss.Add(m.Amount)
		}
	}
	summary.CurrentBalance = summary.TotalInvestments.
		Sub(summary.TotalWithdrawals).
		Add(summary.TotalProfit).
		Sub(summary.TotalLoss)
	return summary
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	var dashboard domain.Dashboard
	if s.cached(ctx, cache.DashboardKey, &dashboard) {
		return dashboard, nil
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	contacts, err := s.repo.ListContacts(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	txs, err := s.repo.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return domain.Dashboard{}, err
	}
	capital, err := s.capitalSummary(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}

	dashboard = domain.Dashboard{
		TotalProducts:       len(products),
		TotalContacts:       len(contacts),
		LowStockThreshold:   s.lowStockThreshold,
		TotalPurchaseAmount: decimal.Zero,
		TotalSaleAmount:     decimal.Zero,
		Capital:             capital,
		RecentTransactions:  recentTransactions(txs, recentTransactionLimit),
		GeneratedAt:         s.now().UTC(),
	}
	for _, p := range products {
		if p.CurrentStock < s.lowStockThreshold {
			dashboard.LowStockProducts++
		}
	}
	for _, tx := range txs {
		switch tx.Type {
		case domain.TransactionPurchase:
			dashboard.PurchaseCount++
			dashboard.TotalPurchaseAmount = dashboard.TotalPurchaseAmount.Add(tx.TotalAmount)
		case domain.TransactionSale:
			dashboard.SaleCount++
			dashboard.TotalSaleAmount = dashboard.TotalSaleAmount.Add(tx.TotalAmount)
		}
	}

	s.remember(ctx, cache.DashboardKey, dashboard)
	return dashboard, nil
}

// VerifyStock compares each product's stored level with the sum of its
// movements. An empty result means the two agree everywhere.
func (s *Service) VerifyStock(ctx context.Context) ([]domain.StockDiscrepancy, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	movements, err := s.engine.StockMovements(ctx, "")
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int, len(products))
	for _, m := range movements {
		totals[m.ProductID] += m.Quantity
	}

	discrepancies := make([]domain.StockDiscrepancy, 0)
	for _, p := range products {
		if totals[p.ID] == p.CurrentStock {
			continue
		}
		discrepancies = append(discrepancies, domain.StockDiscrepancy{
			ProductID:      p.ID,
			ProductName:    p.Name,
			CurrentStock:   p.CurrentStock,
			MovementsTotal: totals[p.ID],
		})
	}
	slices.SortFunc(discrepancies, func(a, b domain.StockDiscrepancy) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	if len(discrepancies) > 0 {
		s.logger.WithField("func", "VerifyStock").Warnf("%d product(s) disagree with their movements", len(discrepancies))
	}
	return discrepancies, nil
}

func (s *Service) cached(ctx context.Context, key string, dest any) bool {
	hit, err := s.summaries.Get(ctx, key, dest)
	if err != nil {
		s.logger.WithField("func", "cached").Warn("summary cache read failed: " + err.Error())
		return false
	}
	return hit
}

func (s *Service) remember(ctx context.Context, key string, value any) {
	if err := s.summaries.Set(ctx, key, value, s.summaryTTL); err != nil {
		s.logger.WithField("func", "remember").Warn("summary cache write failed: " + err.Error())
	}
}
