package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

// newTestStore creates a fresh in-memory database with the schema applied.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	for _, id := range []string{"store-a", "store-b"} {
		if _, err := s.CreateStore(ctx, domain.Store{ID: id, Name: id, Active: true}); err != nil {
			t.Fatalf("create store %s: %v", id, err)
		}
	}
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:        "prod-1",
		Name:      "Phone One",
		CostPrice: decimal.NewFromInt(100),
		ProfitBOB: decimal.NewFromInt(50),
		Active:    true,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateExchangeRate(ctx, domain.ExchangeRate{Rate: decimal.NewFromInt(7), CreatedBy: "test"}); err != nil {
		t.Fatalf("create rate: %v", err)
	}
	units := []domain.Unit{
		{ScanCode: "U1", ProductID: "prod-1", StoreID: "store-a"},
		{ScanCode: "U2", ProductID: "prod-1", StoreID: "store-a"},
		{ScanCode: "U3", ProductID: "prod-1", StoreID: "store-a"},
		{ScanCode: "U4", ProductID: "prod-1", StoreID: "store-a"},
	}
	if _, err := s.AssignUnits(ctx, units); err != nil {
		t.Fatalf("assign units: %v", err)
	}
}

func TestAssignUnitsRejectsExistingScanCode(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	_, err := s.AssignUnits(context.Background(), []domain.Unit{
		{ScanCode: "U9", ProductID: "prod-1", StoreID: "store-a"},
		{ScanCode: "U1", ProductID: "prod-1", StoreID: "store-b"},
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := s.GetUnit(context.Background(), "U9"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected batch must not persist U9, got %v", err)
	}
}

func TestTransferThenSaleUpdatesCounts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	if _, err := s.CreateTransfer(ctx, domain.Transfer{
		OriginStoreID:      "store-a",
		DestinationStoreID: "store-b",
		EmployeeID:         "emp-1",
		Items:              []domain.TransferItem{{ScanCode: "U1"}, {ScanCode: "U2"}},
	}); err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreID:       "store-b",
		EmployeeID:    "emp-1",
		PaymentMethod: "cash",
		Items:         []domain.SaleItem{{ScanCode: "U1", DeviceCodes: []string{"IMEI-1"}}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !sale.TotalBOB.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("expected total 750, got %s", sale.TotalBOB)
	}

	byStore, err := s.CountAvailableByStore(ctx, "prod-1")
	if err != nil {
		t.Fatalf("count by store: %v", err)
	}
	if byStore["store-a"] != 2 || byStore["store-b"] != 1 {
		t.Fatalf("unexpected counts: %+v", byStore)
	}

	stored, err := s.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if len(stored.Items) != 1 || stored.Items[0].DeviceCodes[0] != "IMEI-1" {
		t.Fatalf("unexpected stored items: %+v", stored.Items)
	}
	if !stored.Items[0].UnitPriceBOB.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("expected unit price snapshot 750, got %s", stored.Items[0].UnitPriceBOB)
	}
}

func TestSaleConflictLeavesLedgerUntouched(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	if _, err := s.CreateSale(ctx, domain.Sale{
		StoreID: "store-a", EmployeeID: "emp-1", PaymentMethod: "cash",
		Items: []domain.SaleItem{{ScanCode: "U3"}},
	}); err != nil {
		t.Fatalf("first sale: %v", err)
	}

	_, err := s.CreateSale(ctx, domain.Sale{
		StoreID: "store-a", EmployeeID: "emp-1", PaymentMethod: "cash",
		Items: []domain.SaleItem{{ScanCode: "U4"}, {ScanCode: "U3"}, {ScanCode: "NOPE"}},
	})
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if len(conflict.Units) != 2 {
		t.Fatalf("expected sold and missing units reported, got %+v", conflict.Units)
	}

	unit, err := s.GetUnit(ctx, "U4")
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if unit.Sold {
		t.Fatalf("U4 must stay unsold after rejected batch")
	}
}

func TestDeassignKeepsReferencedUnits(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	if _, err := s.CreateSale(ctx, domain.Sale{
		StoreID: "store-a", EmployeeID: "emp-1", PaymentMethod: "card",
		Items: []domain.SaleItem{{ScanCode: "U1"}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	result, err := s.DeassignUnits(ctx, "store-a", "prod-1")
	if err != nil {
		t.Fatalf("deassign: %v", err)
	}
	if result.Deleted != 3 || result.Retained != 1 {
		t.Fatalf("unexpected deassign result: %+v", result)
	}
	if _, err := s.GetUnit(ctx, "U1"); err != nil {
		t.Fatalf("sold unit must be retained: %v", err)
	}
}

func TestDeleteStoreRefusesStoreWithHistory(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	deleted, err := s.DeleteStore(ctx, "store-b")
	if err != nil {
		t.Fatalf("delete empty store: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected no units deleted, got %d", deleted)
	}

	if _, err := s.CreateStore(ctx, domain.Store{ID: "store-b", Name: "B again", Active: true}); err != nil {
		t.Fatalf("recreate store: %v", err)
	}
	if _, err := s.CreateTransfer(ctx, domain.Transfer{
		OriginStoreID: "store-a", DestinationStoreID: "store-b", EmployeeID: "emp-1",
		Items: []domain.TransferItem{{ScanCode: "U2"}},
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := s.DeleteStore(ctx, "store-b"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting store with transfers, got %v", err)
	}
}

func TestSaleReportRowsFollowCreationOrder(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, code := range []string{"U2", "U1"} {
		if _, err := s.CreateSale(ctx, domain.Sale{
			StoreID: "store-a", EmployeeID: "emp-1", PaymentMethod: "cash",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Items:     []domain.SaleItem{{ScanCode: code}},
		}); err != nil {
			t.Fatalf("sale %s: %v", code, err)
		}
	}

	rows, err := s.ListSaleReportRows(ctx, "store-a", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("report rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first, err := time.Parse(time.RFC3339Nano, rows[0].SoldAt)
	if err != nil {
		t.Fatalf("stored timestamp should parse: %v", err)
	}
	if !first.Equal(base) {
		t.Fatalf("expected earliest sale first, got %s", rows[0].SoldAt)
	}
}
