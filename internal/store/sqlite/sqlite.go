package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/xid"
)

// Store keeps the ledger in a single SQLite file.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// One connection: SQLite has a single writer and the pragmas below are per connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}

	if err := db.AutoMigrate(
		&productRow{},
		&contactRow{},
		&transactionRow{},
		&stockMovementRow{},
		&capitalMovementRow{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toDomain())
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	product := row.toDomain()
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []productRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ID] = row.toDomain()
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New()
	}

	row := productRow{
		ID:           product.ID,
		Name:         product.Name,
		Description:  product.Description,
		Category:     product.Category,
		CurrentStock: product.CurrentStock,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := row.toDomain()
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res := s.db.WithContext(ctx).Model(&productRow{}).Where("id = ?", product.ID).Updates(map[string]any{
		"name":        product.Name,
		"description": product.Description,
		"category":    product.Category,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&productRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	var rows []contactRow
	if err := s.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	contacts := make([]domain.Contact, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, row.toDomain())
	}
	return contacts, nil
}

func (s *Store) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	var row contactRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	contact := row.toDomain()
	return &contact, nil
}

func (s *Store) CreateContact(ctx context.Context, contact domain.Contact) (*domain.Contact, error) {
	if strings.TrimSpace(contact.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if contact.ID == "" {
		contact.ID = xid.New()
	}

	row := contactRow{ID: contact.ID, Name: contact.Name, Phone: contact.Phone, Email: contact.Email, Address: contact.Address}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := row.toDomain()
	return &created, nil
}

func (s *Store) UpdateContact(ctx context.Context, contact domain.Contact) (*domain.Contact, error) {
	res := s.db.WithContext(ctx).Model(&contactRow{}).Where("id = ?", contact.ID).Updates(map[string]any{
		"name":    contact.Name,
		"phone":   contact.Phone,
		"email":   contact.Email,
		"address": contact.Address,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	updated := contact
	return &updated, nil
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&contactRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListTransactions filters type and contact in SQL. Items live in a JSON
// column, so the product filter runs on the decoded rows.
func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	query := s.db.WithContext(ctx).Model(&transactionRow{})
	if filter.Type != "" {
		query = query.Where("type = ?", string(filter.Type))
	}
	if filter.ContactID != "" {
		query = query.Where("contact_id = ?", filter.ContactID)
	}

	var rows []transactionRow
	if err := query.Order("date ASC").Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx := row.toDomain()
		if !filter.Matches(tx) {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var row transactionRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	tx := row.toDomain()
	return &tx, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string) ([]domain.StockMovement, error) {
	query := s.db.WithContext(ctx).Model(&stockMovementRow{})
	if productID != "" {
		query = query.Where("product_id = ?", productID)
	}
	var rows []stockMovementRow
	if err := query.Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	movements := make([]domain.StockMovement, 0, len(rows))
	for _, row := range rows {
		movements = append(movements, row.toDomain())
	}
	return movements, nil
}

func (s *Store) ListCapitalMovements(ctx context.Context) ([]domain.CapitalMovement, error) {
	var rows []capitalMovementRow
	if err := s.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	movements := make([]domain.CapitalMovement, 0, len(rows))
	for _, row := range rows {
		movements = append(movements, row.toDomain())
	}
	return movements, nil
}

func (s *Store) CreateCapitalMovement(ctx context.Context, movement domain.CapitalMovement) (*domain.CapitalMovement, error) {
	if movement.Amount.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if movement.ID == "" {
		movement.ID = xid.New()
	}
	row := newCapitalMovementRow(movement)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	created := row.toDomain()
	return &created, nil
}

func (s *Store) ApplyLedgerChanges(ctx context.Context, changes store.LedgerChanges) error {
	if changes.PutTransaction != nil && changes.PutTransaction.ID == "" {
		return store.ErrInvalidTransaction
	}
	if changes.IsEmpty() {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes.ExpectedStock) > 0 {
			ids := make([]string, 0, len(changes.ExpectedStock))
			for id := range changes.ExpectedStock {
				ids = append(ids, id)
			}
			var rows []productRow
			if err := tx.Select("id", "current_stock").Where("id IN ?", ids).Find(&rows).Error; err != nil {
				return fmt.Errorf("read stock: %w", err)
			}
			levels := make(map[string]int, len(rows))
			for _, row := range rows {
				levels[row.ID] = row.CurrentStock
			}
			if err := store.CheckExpectedStock(changes.ExpectedStock, levels); err != nil {
				return err
			}
		}

		if changes.UnlinkCapitalOf != "" {
			if err := tx.Where("source_transaction_id = ?", changes.UnlinkCapitalOf).Delete(&capitalMovementRow{}).Error; err != nil {
				return fmt.Errorf("unlink capital: %w", err)
			}
		}

		if changes.ClearMovementsOf != "" {
			if err := tx.Where("transaction_id = ?", changes.ClearMovementsOf).Delete(&stockMovementRow{}).Error; err != nil {
				return fmt.Errorf("clear movements: %w", err)
			}
		}

		for productID, level := range changes.StockLevels {
			if err := tx.Model(&productRow{}).Where("id = ?", productID).Update("current_stock", level).Error; err != nil {
				return fmt.Errorf("set stock %s: %w", productID, err)
			}
		}

		if len(changes.Movements) > 0 {
			rows := make([]stockMovementRow, 0, len(changes.Movements))
			for _, m := range changes.Movements {
				rows = append(rows, stockMovementRow{
					ID:            m.ID,
					ProductID:     m.ProductID,
					TransactionID: m.TransactionID,
					Date:          m.Date.UTC(),
					Quantity:      m.Quantity,
					BalanceAfter:  m.BalanceAfter,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert movements: %w", err)
			}
		}

		if changes.PutTransaction != nil {
			if err := putTransaction(tx, *changes.PutTransaction); err != nil {
				return err
			}
		}

		if changes.DeleteTransactionID != "" {
			if err := tx.Where("id = ?", changes.DeleteTransactionID).Delete(&transactionRow{}).Error; err != nil {
				return fmt.Errorf("delete transaction: %w", err)
			}
		}

		for _, m := range changes.Capital {
			row := newCapitalMovementRow(m)
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert capital: %w", err)
			}
		}
		return nil
	})
}

// putTransaction reuses the stored Seq on revision so list order is stable.
func putTransaction(tx *gorm.DB, t domain.Transaction) error {
	row := newTransactionRow(t)

	var existing transactionRow
	err := tx.Select("seq").Where("id = ?", t.ID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	case err != nil:
		return fmt.Errorf("find transaction: %w", err)
	default:
		row.Seq = existing.Seq
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
