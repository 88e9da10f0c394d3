package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRepositoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return openTemp(t)
	})
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, err := s.CreateProduct(ctx, domain.Product{Name: "Valve"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.ApplyLedgerChanges(ctx, store.LedgerChanges{StockLevels: map[string]int{created.ID: 12}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.GetProduct(ctx, created.ID)
	if err != nil || got.CurrentStock != 12 {
		t.Fatalf("expected stock 12 after reopen, got %+v %v", got, err)
	}
}

func TestOpenReportsPragmaFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	garbage := []byte(strings.Repeat("not a sqlite database ", 64))
	if err := os.WriteFile(path, garbage, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	s, err := Open(path)
	if err == nil {
		_ = s.Close()
		t.Fatalf("expected open to fail on a file that is not a database")
	}
	if !strings.Contains(err.Error(), "PRAGMA journal_mode") {
		t.Fatalf("expected the failing pragma to be named, got %v", err)
	}
}
