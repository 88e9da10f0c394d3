package ledger

import (
	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
)

// MaxPurchasePrices returns, per product, the highest unit price paid on any
// stored purchase. The highest price is used rather than the latest one.
func MaxPurchasePrices(purchases []domain.Transaction) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, tx := range purchases {
		if tx.Type != domain.TransactionPurchase {
			continue
		}
		for _, item := range tx.Items {
			if current, ok := out[item.ProductID]; !ok || item.UnitPrice.GreaterThan(current) {
				out[item.ProductID] = item.UnitPrice
			}
		}
	}
	return out
}

// attributePurchasePrices fills PurchasePrice on the sale items whose product
// is known and has purchase history. Other items keep whatever they carry.
func attributePurchasePrices(items []domain.TransactionItem, prices map[string]decimal.Decimal, book *stockBook) {
	for i := range items {
		if !book.has(items[i].ProductID) {
			continue
		}
		price, ok := prices[items[i].ProductID]
		if !ok {
			continue
		}
		items[i].PurchasePrice = &price
	}
}

// Profit returns totalAmount minus the cost of every item with a resolved
// purchase price, along with that cost.
func Profit(tx domain.Transaction) (profit, cost decimal.Decimal) {
	cost = decimal.Zero
	for _, item := range tx.Items {
		if item.PurchasePrice == nil {
			continue
		}
		cost = cost.Add(item.PurchasePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return tx.TotalAmount.Sub(cost), cost
}
