package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

func TestConcurrentSalesOfOneUnitHaveOneWinner(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateSale(ctx, domain.Sale{
				StoreID:       "store-centro",
				EmployeeID:    "emp-vendedor",
				PaymentMethod: "cash",
				Items:         []domain.SaleItem{{ScanCode: "GA15-0001"}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one sale to win, got %d", wins)
	}
}

func TestRejectedTransferLeavesEveryUnitInPlace(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	_, err := repo.CreateTransfer(ctx, domain.Transfer{
		OriginStoreID:      "store-centro",
		DestinationStoreID: "store-norte",
		EmployeeID:         "emp-admin",
		Items: []domain.TransferItem{
			{ScanCode: "GA15-0001"},
			{ScanCode: "RDM-0002"},
		},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	unit, err := repo.GetUnit(ctx, "GA15-0001")
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if unit.StoreID != "store-centro" {
		t.Fatalf("expected GA15-0001 to stay at store-centro, got %s", unit.StoreID)
	}
}

func TestSaleReportRowsFollowYearBounds(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	soldAt := time.Date(2024, time.March, 3, 15, 0, 0, 0, time.UTC)
	if _, err := repo.CreateSale(ctx, domain.Sale{
		StoreID:       "store-norte",
		EmployeeID:    "emp-admin",
		PaymentMethod: "qr",
		CreatedAt:     soldAt,
		Items:         []domain.SaleItem{{ScanCode: "RDM-0002"}, {ScanCode: "IP13-0001"}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	rows, err := repo.ListSaleReportRows(ctx, "store-norte",
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected one row per sold unit, got %d", len(rows))
	}

	rows, err = repo.ListSaleReportRows(ctx, "store-centro",
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows for other store, got %d", len(rows))
	}
}

func TestDeleteStoreWithHistoryIsRefused(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	if _, err := repo.CreateSale(ctx, domain.Sale{
		StoreID:       "store-norte",
		EmployeeID:    "emp-admin",
		PaymentMethod: "cash",
		Items:         []domain.SaleItem{{ScanCode: "IP13-0001"}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if _, err := repo.DeleteStore(ctx, "store-norte"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting store with sales, got %v", err)
	}
	if _, err := repo.GetStore(ctx, "store-norte"); err != nil {
		t.Fatalf("expected store to remain, got %v", err)
	}
}

func TestDeleteStoreWithoutHistoryRemovesUnits(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	created, err := repo.CreateStore(ctx, domain.Store{Name: "Tienda Sur", Active: true})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := repo.AssignUnits(ctx, []domain.Unit{
		{ScanCode: "SUR-0001", ProductID: "prod-galaxy-a15", StoreID: created.ID},
		{ScanCode: "SUR-0002", ProductID: "prod-galaxy-a15", StoreID: created.ID},
	}); err != nil {
		t.Fatalf("assign units: %v", err)
	}

	deleted, err := repo.DeleteStore(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete store: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 units deleted, got %d", deleted)
	}
	if _, err := repo.GetUnit(ctx, "SUR-0001"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unit to be gone, got %v", err)
	}
}
