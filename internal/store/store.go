package store

import (
	"context"
	"time"

	"celustock/backend/internal/domain"
)

type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListStores(ctx context.Context) ([]domain.Store, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	DeleteStore(ctx context.Context, id string) (int, error)

	AssignUnits(ctx context.Context, units []domain.Unit) ([]domain.Unit, error)
	QueryUnits(ctx context.Context, filter domain.UnitFilter) ([]domain.Unit, error)
	GetUnit(ctx context.Context, scanCode string) (*domain.Unit, error)
	DeleteUnit(ctx context.Context, scanCode string) error
	DeassignUnits(ctx context.Context, storeID string, productID string) (domain.DeassignResult, error)

	CountAvailable(ctx context.Context, productID string, storeID string) (int, error)
	CountAvailableByProduct(ctx context.Context, storeID string) (map[string]int, error)
	CountAvailableByStore(ctx context.Context, productID string) (map[string]int, error)

	CreateTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error)
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, filter domain.MovementFilter) ([]domain.Transfer, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.MovementFilter) ([]domain.Sale, error)
	ListSaleReportRows(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SaleReportRow, error)

	CreateExchangeRate(ctx context.Context, rate domain.ExchangeRate) (*domain.ExchangeRate, error)
	LatestExchangeRate(ctx context.Context) (*domain.ExchangeRate, error)
	ListExchangeRates(ctx context.Context, limit int) ([]domain.ExchangeRate, error)

	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	GetEmployee(ctx context.Context, id string) (*domain.Employee, error)
	GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, id string, receivedBy string, receivedAt time.Time, units []domain.Unit) (*domain.PurchaseOrder, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// UniqueStrings returns the distinct non-empty values in first-seen order.
func UniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
