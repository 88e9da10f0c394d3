package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates missing tables and indexes. It is safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const productColumns = `id, name, description, category, current_stock`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CurrentStock)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, category, current_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, product.ID, product.Name, product.Description, product.Category, product.CurrentStock)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Description, product.Category))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM products WHERE id = $1`, id)
}

const contactColumns = `id, name, phone, email, address`

func scanContact(row rowScanner) (domain.Contact, error) {
	var c domain.Contact
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address)
	return c, err
}

func (s *Store) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]domain.Contact, 0, 32)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *Store) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateContact(ctx context.Context, contact domain.Contact) (*domain.Contact, error) {
	if strings.TrimSpace(contact.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if contact.ID == "" {
		contact.ID = xid.New()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, name, phone, email, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, contact.ID, contact.Name, contact.Phone, contact.Email, contact.Address)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := contact
	return &created, nil
}

func (s *Store) UpdateContact(ctx context.Context, contact domain.Contact) (*domain.Contact, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET name = $2, phone = $3, email = $4, address = $5, updated_at = now()
		WHERE id = $1
	`, contact.ID, contact.Name, contact.Phone, contact.Email, contact.Address)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := contact
	return &updated, nil
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM contacts WHERE id = $1`, id)
}

func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("t.type = $%d", len(args)))
	}
	if filter.ContactID != "" {
		args = append(args, filter.ContactID)
		where = append(where, fmt.Sprintf("t.contact_id = $%d", len(args)))
	}
	if len(filter.ProductIDs) > 0 {
		args = append(args, filter.ProductIDs)
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM transaction_items i
			WHERE i.transaction_id = t.id AND i.product_id = ANY($%d)
		)`, len(args)))
	}

	query := `
		SELECT t.id, t.type, t.date, t.contact_id, t.payment_method, t.total_amount,
			t.exchange_rate, t.notes, t.additional_info
		FROM transactions t`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY t.date, t.seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadItems(ctx, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT id, type, date, contact_id, payment_method, total_amount,
			exchange_rate, notes, additional_info
		FROM transactions
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	txs := []domain.Transaction{tx}
	if err := s.loadItems(ctx, txs); err != nil {
		return nil, err
	}
	return &txs[0], nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx       domain.Transaction
		txType   string
		exchange decimal.NullDecimal
	)
	err := row.Scan(&tx.ID, &txType, &tx.Date, &tx.ContactID, &tx.PaymentMethod, &tx.TotalAmount,
		&exchange, &tx.Notes, &tx.AdditionalInfo)
	if err != nil {
		return tx, err
	}
	tx.Type = domain.TransactionType(txType)
	tx.Date = tx.Date.UTC()
	if exchange.Valid {
		rate := exchange.Decimal
		tx.ExchangeRate = &rate
	}
	return tx, nil
}

func (s *Store) loadItems(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	ids := make([]string, len(txs))
	index := make(map[string]int, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
		index[tx.ID] = i
		txs[i].Items = make([]domain.TransactionItem, 0, 4)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, id, product_id, quantity, unit_price, total, purchase_price
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			txID     string
			item     domain.TransactionItem
			purchase decimal.NullDecimal
		)
		if err := rows.Scan(&txID, &item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Total, &purchase); err != nil {
			return err
		}
		if purchase.Valid {
			price := purchase.Decimal
			item.PurchasePrice = &price
		}
		i := index[txID]
		txs[i].Items = append(txs[i].Items, item)
	}
	return rows.Err()
}

func (s *Store) ListStockMovements(ctx context.Context, productID string) ([]domain.StockMovement, error) {
	query := `
		SELECT id, product_id, transaction_id, date, quantity, balance_after
		FROM stock_movements`
	var args []any
	if productID != "" {
		query += "\n\t\tWHERE product_id = $1"
		args = append(args, productID)
	}
	query += "\n\t\tORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 64)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.TransactionID, &m.Date, &m.Quantity, &m.BalanceAfter); err != nil {
			return nil, err
		}
		m.Date = m.Date.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *Store) ListCapitalMovements(ctx context.Context) ([]domain.CapitalMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, type, amount, description, COALESCE(source_transaction_id, ''), origin
		FROM capital_movements
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CapitalMovement, 0, 32)
	for rows.Next() {
		var (
			m      domain.CapitalMovement
			kind   string
			origin string
		)
		if err := rows.Scan(&m.ID, &m.Date, &kind, &m.Amount, &m.Description, &m.SourceTransactionID, &origin); err != nil {
			return nil, err
		}
		m.Type = domain.CapitalMovementType(kind)
		m.Origin = domain.CapitalOrigin(origin)
		m.Date = m.Date.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *Store) CreateCapitalMovement(ctx context.Context, movement domain.CapitalMovement) (*domain.CapitalMovement, error) {
	if movement.Amount.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if movement.ID == "" {
		movement.ID = xid.New()
	}
	if err := insertCapital(ctx, s.db, movement); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := movement
	return &created, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCapital(ctx context.Context, db execer, m domain.CapitalMovement) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO capital_movements (id, date, type, amount, description, source_transaction_id, origin)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, m.ID, m.Date, string(m.Type), m.Amount, m.Description, nullIfEmpty(m.SourceTransactionID), string(m.Origin))
	return err
}

// ApplyLedgerChanges commits the change set in one serializable transaction.
// The product rows it writes are locked first and must still hold the
// planned levels; a serialization failure is reported as stale stock too.
func (s *Store) ApplyLedgerChanges(ctx context.Context, changes store.LedgerChanges) error {
	if changes.PutTransaction != nil && changes.PutTransaction.ID == "" {
		return store.ErrInvalidTransaction
	}
	if changes.IsEmpty() {
		return nil
	}

	err := s.applyLedgerChanges(ctx, changes)
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", store.ErrStaleStock, err)
	}
	return err
}

func (s *Store) applyLedgerChanges(ctx context.Context, changes store.LedgerChanges) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if len(changes.ExpectedStock) > 0 {
		levels, err := lockStockLevels(ctx, pgTx, changes.ExpectedStock)
		if err != nil {
			return err
		}
		if err := store.CheckExpectedStock(changes.ExpectedStock, levels); err != nil {
			return err
		}
	}

	if changes.UnlinkCapitalOf != "" {
		if _, err := pgTx.ExecContext(ctx, `DELETE FROM capital_movements WHERE source_transaction_id = $1`, changes.UnlinkCapitalOf); err != nil {
			return fmt.Errorf("unlink capital: %w", err)
		}
	}

	if changes.ClearMovementsOf != "" {
		if _, err := pgTx.ExecContext(ctx, `DELETE FROM stock_movements WHERE transaction_id = $1`, changes.ClearMovementsOf); err != nil {
			return fmt.Errorf("clear movements: %w", err)
		}
	}

	for productID, level := range changes.StockLevels {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET current_stock = $2, updated_at = now() WHERE id = $1
		`, productID, level); err != nil {
			return fmt.Errorf("set stock %s: %w", productID, err)
		}
	}

	for _, m := range changes.Movements {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, transaction_id, date, quantity, balance_after)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, m.ID, m.ProductID, m.TransactionID, m.Date, m.Quantity, m.BalanceAfter); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
	}

	if changes.PutTransaction != nil {
		if err := putTransaction(ctx, pgTx, *changes.PutTransaction); err != nil {
			return err
		}
	}

	if changes.DeleteTransactionID != "" {
		if _, err := pgTx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, changes.DeleteTransactionID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
	}

	for _, m := range changes.Capital {
		if err := insertCapital(ctx, pgTx, m); err != nil {
			return fmt.Errorf("insert capital: %w", err)
		}
	}

	return pgTx.Commit()
}

// lockStockLevels reads the stock of the given products with row locks held
// until the transaction ends. Rows are locked in id order.
func lockStockLevels(ctx context.Context, pgTx *sql.Tx, expected map[string]int) (map[string]int, error) {
	ids := make([]string, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, current_stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock stock: %w", err)
	}
	defer rows.Close()

	levels := make(map[string]int, len(ids))
	for rows.Next() {
		var (
			id    string
			level int
		)
		if err := rows.Scan(&id, &level); err != nil {
			return nil, err
		}
		levels[id] = level
	}
	return levels, rows.Err()
}

func putTransaction(ctx context.Context, pgTx *sql.Tx, tx domain.Transaction) error {
	var exchange any
	if tx.ExchangeRate != nil {
		exchange = *tx.ExchangeRate
	}

	// Upsert keeps seq, so a revised transaction holds its list position.
	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO transactions (id, type, date, contact_id, payment_method, total_amount, exchange_rate, notes, additional_info)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id)
		DO UPDATE SET type = EXCLUDED.type, date = EXCLUDED.date, contact_id = EXCLUDED.contact_id,
			payment_method = EXCLUDED.payment_method, total_amount = EXCLUDED.total_amount,
			exchange_rate = EXCLUDED.exchange_rate, notes = EXCLUDED.notes,
			additional_info = EXCLUDED.additional_info
	`, tx.ID, string(tx.Type), tx.Date, tx.ContactID, tx.PaymentMethod, tx.TotalAmount, exchange, tx.Notes, tx.AdditionalInfo); err != nil {
		return fmt.Errorf("put transaction: %w", err)
	}

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, tx.ID); err != nil {
		return fmt.Errorf("replace items: %w", err)
	}
	for position, item := range tx.Items {
		var purchase any
		if item.PurchasePrice != nil {
			purchase = *item.PurchasePrice
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, position, id, product_id, quantity, unit_price, total, purchase_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, tx.ID, position, item.ID, item.ProductID, item.Quantity, item.UnitPrice, item.Total, purchase); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	return nil
}

func (s *Store) deleteByID(ctx context.Context, query string, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure matches serialization_failure and deadlock_detected.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
