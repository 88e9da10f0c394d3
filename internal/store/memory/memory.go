package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	productOrder     []string
	contacts         map[string]domain.Contact
	contactOrder     []string
	transactionsByID map[string]*domain.Transaction
	transactionOrder []string
	stockMovements   []domain.StockMovement
	capitalMovements []domain.CapitalMovement
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		contacts:         make(map[string]domain.Contact),
		transactionsByID: make(map[string]*domain.Transaction),
		stockMovements:   make([]domain.StockMovement, 0, 64),
		capitalMovements: make([]domain.CapitalMovement, 0, 16),
	}
}

// NewSeeded returns a store with a small demo catalogue. Products start at
// zero stock; stock only ever comes from recorded transactions.
func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{Name: "Steel Bolt M8", Category: "hardware"},
		{Name: "Copper Wire 2.5mm", Category: "electrical"},
		{Name: "LED Panel 60x60", Category: "electrical"},
		{Name: "PVC Pipe 50mm", Category: "plumbing"},
	} {
		p.ID = xid.New()
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}
	for _, c := range []domain.Contact{
		{Name: "Anadolu Supply", Phone: "+90 212 555 0101"},
		{Name: "Marmara Retail", Phone: "+90 216 555 0202"},
	} {
		c.ID = xid.New()
		s.contacts[c.ID] = c
		s.contactOrder = append(s.contactOrder, c.ID)
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		products = append(products, s.products[id])
	}
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}

	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)
	created := product
	return &created, nil
}

// UpdateProduct changes descriptive fields only; CurrentStock belongs to the ledger.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CurrentStock = existing.CurrentStock
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	s.productOrder = removeID(s.productOrder, id)
	return nil
}

func (s *Store) ListContacts(_ context.Context) ([]domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contacts := make([]domain.Contact, 0, len(s.contactOrder))
	for _, id := range s.contactOrder {
		contacts = append(contacts, s.contacts[id])
	}
	return contacts, nil
}

func (s *Store) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, ok := s.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &contact, nil
}

func (s *Store) CreateContact(_ context.Context, contact domain.Contact) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(contact.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if contact.ID == "" {
		contact.ID = xid.New()
	}
	if _, exists := s.contacts[contact.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}

	s.contacts[contact.ID] = contact
	s.contactOrder = append(s.contactOrder, contact.ID)
	created := contact
	return &created, nil
}

func (s *Store) UpdateContact(_ context.Context, contact domain.Contact) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[contact.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.contacts[contact.ID] = contact
	updated := contact
	return &updated, nil
}

func (s *Store) DeleteContact(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.contacts, id)
	s.contactOrder = removeID(s.contactOrder, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, len(s.transactionOrder))
	for _, id := range s.transactionOrder {
		tx := s.transactionsByID[id]
		if !filter.Matches(*tx) {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	slices.SortStableFunc(out, func(a, b domain.Transaction) int {
		return a.Date.Compare(b.Date)
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockMovement, 0, len(s.stockMovements))
	for _, m := range s.stockMovements {
		if productID != "" && m.ProductID != productID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) ListCapitalMovements(_ context.Context) ([]domain.CapitalMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CapitalMovement, len(s.capitalMovements))
	copy(out, s.capitalMovements)
	return out, nil
}

func (s *Store) CreateCapitalMovement(_ context.Context, movement domain.CapitalMovement) (*domain.CapitalMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.Amount.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if movement.ID == "" {
		movement.ID = xid.New()
	}
	s.capitalMovements = append(s.capitalMovements, movement)
	created := movement
	return &created, nil
}

// ApplyLedgerChanges holds the write lock for the whole change set, so
// readers never observe a half-applied ledger write.
func (s *Store) ApplyLedgerChanges(_ context.Context, changes store.LedgerChanges) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if changes.PutTransaction != nil && changes.PutTransaction.ID == "" {
		return store.ErrInvalidTransaction
	}

	levels := make(map[string]int, len(changes.ExpectedStock))
	for productID := range changes.ExpectedStock {
		if product, ok := s.products[productID]; ok {
			levels[productID] = product.CurrentStock
		}
	}
	if err := store.CheckExpectedStock(changes.ExpectedStock, levels); err != nil {
		return err
	}

	if changes.UnlinkCapitalOf != "" {
		kept := s.capitalMovements[:0]
		for _, m := range s.capitalMovements {
			if m.SourceTransactionID == changes.UnlinkCapitalOf {
				continue
			}
			kept = append(kept, m)
		}
		s.capitalMovements = kept
	}

	if changes.ClearMovementsOf != "" {
		kept := s.stockMovements[:0]
		for _, m := range s.stockMovements {
			if m.TransactionID == changes.ClearMovementsOf {
				continue
			}
			kept = append(kept, m)
		}
		s.stockMovements = kept
	}

	for productID, level := range changes.StockLevels {
		product, ok := s.products[productID]
		if !ok {
			continue
		}
		product.CurrentStock = level
		s.products[productID] = product
	}

	s.stockMovements = append(s.stockMovements, changes.Movements...)

	if changes.PutTransaction != nil {
		tx := cloneTransaction(changes.PutTransaction)
		if _, exists := s.transactionsByID[tx.ID]; !exists {
			s.transactionOrder = append(s.transactionOrder, tx.ID)
		}
		s.transactionsByID[tx.ID] = tx
	}

	if changes.DeleteTransactionID != "" {
		delete(s.transactionsByID, changes.DeleteTransactionID)
		s.transactionOrder = removeID(s.transactionOrder, changes.DeleteTransactionID)
	}

	s.capitalMovements = append(s.capitalMovements, changes.Capital...)
	return nil
}

func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(candidate string) bool {
		return candidate == id
	})
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.TransactionItem, len(src.Items))
	for i, item := range src.Items {
		if item.PurchasePrice != nil {
			price := *item.PurchasePrice
			item.PurchasePrice = &price
		}
		dupItems[i] = item
	}
	dup.Items = dupItems
	if src.ExchangeRate != nil {
		rate := *src.ExchangeRate
		dup.ExchangeRate = &rate
	}
	return &dup
}
