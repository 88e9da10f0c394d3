package ledger

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/xid"
)

const DefaultCurrency = "TRY"

// CapitalLinker builds the capital rows derived from sale transactions.
type CapitalLinker struct {
	currency string
}

func NewCapitalLinker(currency string) CapitalLinker {
	if money.GetCurrency(currency) == nil {
		currency = DefaultCurrency
	}
	return CapitalLinker{currency: currency}
}

func (l CapitalLinker) Currency() string {
	if l.currency == "" {
		return DefaultCurrency
	}
	return l.currency
}

// Link returns the profit or loss row for a sale, or false when the sale
// broke even. Products are used for names in the breakdown only.
func (l CapitalLinker) Link(tx domain.Transaction, products map[string]domain.Product, profit, cost decimal.Decimal) (domain.CapitalMovement, bool) {
	if tx.Type != domain.TransactionSale || profit.IsZero() {
		return domain.CapitalMovement{}, false
	}

	movementType := domain.CapitalProfit
	if profit.IsNegative() {
		movementType = domain.CapitalLoss
	}

	return domain.CapitalMovement{
		ID:                  xid.New(),
		Date:                tx.Date,
		Type:                movementType,
		Amount:              profit.Abs(),
		Description:         l.describe(tx, products, movementType, profit.Abs(), cost),
		SourceTransactionID: tx.ID,
		Origin:              domain.CapitalOriginDerived,
	}, true
}

func (l CapitalLinker) describe(tx domain.Transaction, products map[string]domain.Product, movementType domain.CapitalMovementType, amount, cost decimal.Decimal) string {
	outcome, label := "profit", "Profit"
	if movementType == domain.CapitalLoss {
		outcome, label = "loss", "Loss"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transaction No: %s\n", tx.ID)
	fmt.Fprintf(&b, "%s from sale of %d item(s)\n", outcome, len(tx.Items))
	fmt.Fprintf(&b, "Total Sale: %s\n", FormatMoney(tx.TotalAmount, l.Currency()))
	fmt.Fprintf(&b, "Total Cost: %s\n", FormatMoney(cost, l.Currency()))
	fmt.Fprintf(&b, "%s: %s\n\n", label, FormatMoney(amount, l.Currency()))
	b.WriteString("Item Details:")
	for _, item := range tx.Items {
		name := item.ProductID
		if product, ok := products[item.ProductID]; ok {
			name = product.Name
		}
		purchase := "-"
		if item.PurchasePrice != nil {
			purchase = FormatMoney(*item.PurchasePrice, l.Currency())
		}
		fmt.Fprintf(&b, "\n%s: %d pcs, Purchase: %s, Sale: %s", name, item.Quantity, purchase, FormatMoney(item.UnitPrice, l.Currency()))
	}
	return b.String()
}

// FormatMoney renders a major-unit amount in the given ISO currency.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := *money.New(0, currency).Currency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
