package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"tradeledger/backend/internal/store"
)

const (
	sheetProducts     = "Products"
	sheetTransactions = "Transactions"
	sheetMovements    = "Stock Movements"
	sheetCapital      = "Capital"
)

// ExportWorkbook writes the whole ledger as an xlsx workbook with one sheet
// per record kind. Money goes out as fixed two-place text so no amount passes
// through float64.
func (s *Service) ExportWorkbook(ctx context.Context, w io.Writer) error {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return err
	}
	txs, err := s.repo.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return err
	}
	movements, err := s.engine.StockMovements(ctx, "")
	if err != nil {
		return err
	}
	capital, err := s.engine.CapitalMovements(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetProducts); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetTransactions, sheetMovements, sheetCapital} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	names := make(map[string]string, len(products))
	rows := make([][]any, 0, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
		rows = append(rows, []any{p.ID, p.Name, p.Category, p.CurrentStock})
	}
	if err := writeSheet(f, sheetProducts, []string{"ID", "Name", "Category", "Stock"}, rows); err != nil {
		return err
	}

	currency := s.engine.Currency()
	rows = make([][]any, 0, len(txs))
	for _, tx := range txs {
		rate, foreign := "", ""
		if tx.ExchangeRate != nil {
			rate = tx.ExchangeRate.String()
		}
		if total, ok := tx.ForeignTotal(); ok {
			foreign = total.StringFixed(2)
		}
		rows = append(rows, []any{
			tx.ID, string(tx.Type), tx.Date.Format(time.DateOnly), tx.ContactID, tx.PaymentMethod,
			len(tx.Items), tx.TotalAmount.StringFixed(2), currency, rate, foreign, tx.Notes,
		})
	}
	header := []string{"ID", "Type", "Date", "Contact", "Payment", "Items", "Total", "Currency", "Exchange Rate", "Foreign Total", "Notes"}
	if err := writeSheet(f, sheetTransactions, header, rows); err != nil {
		return err
	}

	rows = make([][]any, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, []any{m.Date.Format(time.DateOnly), m.ProductID, names[m.ProductID], m.TransactionID, m.Quantity, m.BalanceAfter})
	}
	header = []string{"Date", "Product ID", "Product", "Transaction", "Quantity", "Balance After"}
	if err := writeSheet(f, sheetMovements, header, rows); err != nil {
		return err
	}

	rows = make([][]any, 0, len(capital)+1)
	for _, m := range capital {
		rows = append(rows, []any{
			m.Date.Format(time.DateOnly), string(m.Type), string(m.Origin), m.Amount.StringFixed(2), m.SourceTransactionID, m.Description,
		})
	}
	summary := summarizeCapital(capital)
	rows = append(rows, []any{"", "balance", "", summary.CurrentBalance.StringFixed(2), "", ""})
	header = []string{"Date", "Type", "Origin", "Amount", "Transaction", "Description"}
	if err := writeSheet(f, sheetCapital, header, rows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	s.logger.WithField("func", "ExportWorkbook").Infof("exported %d products, %d transactions", len(products), len(txs))
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	for col, title := range header {
		if err := setCell(f, sheet, col+1, 1, title); err != nil {
			return err
		}
	}
	for i, row := range rows {
		for col, value := range row {
			if err := setCell(f, sheet, col+1, i+2, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
	}
	return nil
}
