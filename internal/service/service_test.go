package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"celustock/backend/internal/cache"
	"celustock/backend/internal/domain"
	"celustock/backend/internal/reporting"
	"celustock/backend/internal/store"
	"celustock/backend/internal/store/memory"
)

func newTestService() *Service {
	logger, _ := test.NewNullLogger()
	repo := memory.NewSeeded()
	reporter := reporting.NewEngine(cache.NoopReportCache{}, time.Minute, logger)
	return New(repo, reporter, cache.NoopLocker{}, time.Second, logger)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		EmployeeID: "emp-admin",
		Username:   "admin",
		Role:       domain.RoleAdmin,
		StoreID:    "store-centro",
	})
}

func salesCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		EmployeeID: "emp-vendedor",
		Username:   "vendedor",
		Role:       domain.RoleSales,
		StoreID:    "store-centro",
	})
}

// seedPricedProduct creates a product costing 100 with 50 profit, sets the rate
// to 7 and assigns the given scan codes at store-centro.
func seedPricedProduct(t *testing.T, svc *Service, codes ...string) domain.Product {
	t.Helper()
	ctx := adminCtx()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:      "Moto G24",
		Brand:     "Motorola",
		CostPrice: decimal.NewFromInt(100),
		ProfitBOB: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := svc.CreateExchangeRate(ctx, domain.ExchangeRateCreateRequest{Rate: decimal.NewFromInt(7)}); err != nil {
		t.Fatalf("create rate: %v", err)
	}
	if len(codes) > 0 {
		if _, err := svc.AssignUnits(ctx, domain.UnitAssignRequest{
			ProductID: product.ID,
			StoreID:   "store-centro",
			ScanCodes: codes,
		}); err != nil {
			t.Fatalf("assign units: %v", err)
		}
	}
	return product
}

func TestSalePricesUnitsWithLatestRate(t *testing.T) {
	svc := newTestService()
	seedPricedProduct(t, svc, "MG24-1", "MG24-2")

	sale, err := svc.CreateSale(salesCtx(), domain.SaleCreateRequest{
		StoreID:       "store-centro",
		PaymentMethod: "cash",
		Items: []domain.SaleItemRequest{
			{ScanCode: "MG24-1", DeviceCodes: []string{" 351234567890123 "}},
			{ScanCode: "MG24-2"},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !sale.TotalBOB.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected total 1500, got %s", sale.TotalBOB)
	}
	if !sale.Items[0].UnitPriceBOB.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("expected unit price 750, got %s", sale.Items[0].UnitPriceBOB)
	}
	if sale.ItemCount != 2 || sale.EmployeeID != "emp-vendedor" {
		t.Fatalf("unexpected sale header: %+v", sale)
	}
	if sale.Items[0].DeviceCodes[0] != "351234567890123" {
		t.Fatalf("expected trimmed device code, got %q", sale.Items[0].DeviceCodes[0])
	}

	unit, err := svc.GetUnit(adminCtx(), "MG24-1")
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if !unit.Sold || unit.SoldAt == nil {
		t.Fatalf("expected unit sold with timestamp, got %+v", unit)
	}
}

func TestTransferThenSaleKeepsCountsConsistent(t *testing.T) {
	svc := newTestService()
	product := seedPricedProduct(t, svc, "C1", "C2", "C3", "C4", "C5")
	ctx := adminCtx()

	if _, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OriginStoreID:      "store-centro",
		DestinationStoreID: "store-norte",
		ScanCodes:          []string{"C1", "C2"},
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		StoreID:       "store-norte",
		PaymentMethod: "card",
		Items:         []domain.SaleItemRequest{{ScanCode: "C1"}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	centro, err := svc.AvailableCount(ctx, product.ID, "store-centro")
	if err != nil {
		t.Fatalf("count centro: %v", err)
	}
	norte, err := svc.AvailableCount(ctx, product.ID, "store-norte")
	if err != nil {
		t.Fatalf("count norte: %v", err)
	}
	all, err := svc.AvailableCount(ctx, product.ID, "")
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if centro.Available != 3 || norte.Available != 1 || all.Available != 4 {
		t.Fatalf("expected 3/1/4, got %d/%d/%d", centro.Available, norte.Available, all.Available)
	}
}

func TestTransferRejectsSameStore(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransfer(adminCtx(), domain.TransferCreateRequest{
		OriginStoreID:      "store-centro",
		DestinationStoreID: "store-centro",
		ScanCodes:          []string{"GA15-0001"},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransferRejectsWholeBatchWhenUnitSold(t *testing.T) {
	svc := newTestService()
	seedPricedProduct(t, svc, "S1", "S2")
	ctx := adminCtx()

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		StoreID:       "store-centro",
		PaymentMethod: "qr",
		Items:         []domain.SaleItemRequest{{ScanCode: "S1"}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	_, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OriginStoreID:      "store-centro",
		DestinationStoreID: "store-norte",
		ScanCodes:          []string{"S2", "S1", "RDM-0002"},
	})
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	reasons := map[string]string{}
	for _, unit := range conflict.Units {
		reasons[unit.ScanCode] = unit.Reason
	}
	if reasons["S1"] != store.ReasonSold || reasons["RDM-0002"] != store.ReasonNotAtOrigin || len(reasons) != 2 {
		t.Fatalf("unexpected conflict reasons: %+v", conflict.Units)
	}

	unit, err := svc.GetUnit(ctx, "S2")
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if unit.StoreID != "store-centro" {
		t.Fatalf("rejected batch must not move S2, now at %s", unit.StoreID)
	}
}

func TestAssignUnitsRejectsExistingScanCode(t *testing.T) {
	svc := newTestService()

	_, err := svc.AssignUnits(adminCtx(), domain.UnitAssignRequest{
		ProductID: "prod-galaxy-a15",
		StoreID:   "store-norte",
		ScanCodes: []string{"GA15-0099", "GA15-0001"},
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if _, err := svc.GetUnit(adminCtx(), "GA15-0099"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected batch must not persist GA15-0099, got %v", err)
	}
}

func TestAssignUnitsRejectsInactiveProduct(t *testing.T) {
	svc := newTestService()
	inactive := false

	if _, err := svc.UpdateProduct(adminCtx(), "prod-iphone-13", domain.ProductUpdateRequest{Active: &inactive}); err != nil {
		t.Fatalf("deactivate product: %v", err)
	}
	_, err := svc.AssignUnit(adminCtx(), "prod-iphone-13", "store-centro", "IP13-0100")
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSalesEmployeeIsPinnedToHomeStore(t *testing.T) {
	svc := newTestService()
	ctx := salesCtx()

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		StoreID:       "store-norte",
		PaymentMethod: "cash",
		Items:         []domain.SaleItemRequest{{ScanCode: "RDM-0002"}},
	})
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for foreign store sale, got %v", err)
	}

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OriginStoreID:      "store-norte",
		DestinationStoreID: "store-centro",
		ScanCodes:          []string{"RDM-0002"},
	})
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for foreign origin, got %v", err)
	}

	count, err := svc.AvailableCount(ctx, "prod-redmi-13c", "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.StoreID != "store-centro" || count.Available != 1 {
		t.Fatalf("expected home store count of 1, got %+v", count)
	}

	if _, err := svc.StockByStore(ctx, ""); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for cross-store stock, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "X"}); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for catalog change, got %v", err)
	}
	if _, err := svc.Dashboard(ctx, 0, ""); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for dashboard, got %v", err)
	}
}

func TestSalesEmployeeCanTransferFromHomeStore(t *testing.T) {
	svc := newTestService()

	transfer, err := svc.CreateTransfer(salesCtx(), domain.TransferCreateRequest{
		OriginStoreID:      "store-centro",
		DestinationStoreID: "store-norte",
		ScanCodes:          []string{"GA15-0001"},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if transfer.EmployeeID != "emp-vendedor" || transfer.Items[0].ProductID != "prod-galaxy-a15" {
		t.Fatalf("unexpected transfer: %+v", transfer)
	}
	if _, err := svc.GetTransfer(salesCtx(), transfer.ID); err != nil {
		t.Fatalf("origin store employee should read transfer: %v", err)
	}
}

func TestOperationsRequireActor(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		StoreID:       "store-centro",
		PaymentMethod: "cash",
		Items:         []domain.SaleItemRequest{{ScanCode: "GA15-0001"}},
	})
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error without actor, got %v", err)
	}
}

func TestSaleOverrideTotalIsRecorded(t *testing.T) {
	svc := newTestService()
	seedPricedProduct(t, svc, "O1")
	override := decimal.RequireFromString("700.50")

	sale, err := svc.CreateSale(adminCtx(), domain.SaleCreateRequest{
		StoreID:          "store-centro",
		PaymentMethod:    "cash",
		Items:            []domain.SaleItemRequest{{ScanCode: "O1"}},
		TotalOverrideBOB: &override,
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if !sale.TotalOverridden || !sale.TotalBOB.Equal(override) {
		t.Fatalf("expected overridden total 700.50, got %s (%t)", sale.TotalBOB, sale.TotalOverridden)
	}
	if !sale.Items[0].UnitPriceBOB.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("line price should keep catalog price, got %s", sale.Items[0].UnitPriceBOB)
	}

	negative := decimal.NewFromInt(-1)
	_, err = svc.CreateSale(adminCtx(), domain.SaleCreateRequest{
		StoreID:          "store-centro",
		PaymentMethod:    "cash",
		Items:            []domain.SaleItemRequest{{ScanCode: "GA15-0001"}},
		TotalOverrideBOB: &negative,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for negative override, got %v", err)
	}
}

func TestSaleRejectsRepeatedScanCode(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(adminCtx(), domain.SaleCreateRequest{
		StoreID:       "store-centro",
		PaymentMethod: "cash",
		Items:         []domain.SaleItemRequest{{ScanCode: "GA15-0001"}, {ScanCode: "GA15-0001"}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteUnitRefusesSoldUnit(t *testing.T) {
	svc := newTestService()
	seedPricedProduct(t, svc, "D1", "D2")
	ctx := adminCtx()

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		StoreID:       "store-centro",
		PaymentMethod: "cash",
		Items:         []domain.SaleItemRequest{{ScanCode: "D1"}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	if err := svc.DeleteUnit(ctx, "D1"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting sold unit, got %v", err)
	}
	if err := svc.DeleteUnit(ctx, "D2"); err != nil {
		t.Fatalf("delete unsold unit: %v", err)
	}
}

func TestDeassignRetainsReferencedUnits(t *testing.T) {
	svc := newTestService()
	product := seedPricedProduct(t, svc, "R1", "R2", "R3")
	ctx := adminCtx()

	if _, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OriginStoreID:      "store-centro",
		DestinationStoreID: "store-norte",
		ScanCodes:          []string{"R1"},
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OriginStoreID:      "store-norte",
		DestinationStoreID: "store-centro",
		ScanCodes:          []string{"R1"},
	}); err != nil {
		t.Fatalf("transfer back: %v", err)
	}

	result, err := svc.DeassignUnits(ctx, "store-centro", product.ID)
	if err != nil {
		t.Fatalf("deassign: %v", err)
	}
	if result.Deleted != 2 || result.Retained != 1 {
		t.Fatalf("expected 2 deleted and 1 retained, got %+v", result)
	}
}

func TestDashboardAggregatesCurrentYear(t *testing.T) {
	svc := newTestService()
	product := seedPricedProduct(t, svc, "Y1", "Y2", "Y3")
	ctx := adminCtx()

	for _, items := range [][]domain.SaleItemRequest{
		{{ScanCode: "Y1"}, {ScanCode: "Y2"}},
		{{ScanCode: "GA15-0001"}},
	} {
		if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{StoreID: "store-centro", PaymentMethod: "cash", Items: items}); err != nil {
			t.Fatalf("sale: %v", err)
		}
	}

	report, err := svc.Dashboard(ctx, 0, "store-centro")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if report.SalesCount != 2 || report.UnitsSold != 3 {
		t.Fatalf("expected 2 sales and 3 units, got %d/%d", report.SalesCount, report.UnitsSold)
	}
	// 2 x 750 plus the Galaxy at 150*7+200.
	if !report.TotalSales.Equal(decimal.NewFromInt(2750)) {
		t.Fatalf("expected total sales 2750, got %s", report.TotalSales)
	}
	if !report.TotalIncome.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected income 300, got %s", report.TotalIncome)
	}
	if report.TopProducts[0].ProductID != product.ID || report.TopProducts[0].Name != "Moto G24" {
		t.Fatalf("unexpected leader: %+v", report.TopProducts[0])
	}
}

func TestReceivePurchaseOrderAssignsUnits(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "Importadora Andina"})
	if err != nil {
		t.Fatalf("supplier: %v", err)
	}
	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		StoreID:    "store-norte",
		SupplierID: supplier.ID,
		Items:      []domain.PurchaseOrderItem{{ProductID: "prod-redmi-13c", Qty: 2, UnitCost: decimal.NewFromInt(118)}},
	})
	if err != nil {
		t.Fatalf("purchase order: %v", err)
	}

	_, err = svc.ReceivePurchaseOrder(ctx, po.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{
		Items: []domain.PurchaseOrderReceiveItem{{ProductID: "prod-redmi-13c", ScanCodes: []string{"RDM-0100"}}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for short receipt, got %v", err)
	}

	received, err := svc.ReceivePurchaseOrder(ctx, po.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{
		Items: []domain.PurchaseOrderReceiveItem{{ProductID: "prod-redmi-13c", ScanCodes: []string{"RDM-0100", "RDM-0101"}}},
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.PurchaseOrder.Status != domain.PurchaseOrderReceived || len(received.Units) != 2 {
		t.Fatalf("unexpected receipt: %+v", received)
	}

	count, err := svc.AvailableCount(ctx, "prod-redmi-13c", "store-norte")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.Available != 3 {
		t.Fatalf("expected 3 redmi units at norte, got %d", count.Available)
	}

	_, err = svc.ReceivePurchaseOrder(ctx, po.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{
		Items: []domain.PurchaseOrderReceiveItem{{ProductID: "prod-redmi-13c", ScanCodes: []string{"RDM-0102", "RDM-0103"}}},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict receiving twice, got %v", err)
	}
}

func TestReceiptDenormalizesSale(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateSale(salesCtx(), domain.SaleCreateRequest{
		StoreID:       "store-centro",
		PaymentMethod: "cash",
		CustomerName:  "Ana",
		Items:         []domain.SaleItemRequest{{ScanCode: "GA15-0002", DeviceCodes: []string{"IMEI-A"}}},
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	receipt, err := svc.Receipt(salesCtx(), sale.ID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if receipt.StoreName != "Tienda Centro" || len(receipt.Lines) != 1 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if receipt.Lines[0].Brand != "Samsung" || receipt.Lines[0].DeviceCodes[0] != "IMEI-A" {
		t.Fatalf("unexpected receipt line: %+v", receipt.Lines[0])
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	employee, err := svc.Authenticate(ctx, "Vendedor", "vendedor123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if employee.Role != domain.RoleSales || employee.StoreID != "store-centro" {
		t.Fatalf("unexpected employee: %+v", employee)
	}

	if _, err := svc.Authenticate(ctx, "vendedor", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestCreateEmployeeRejectsDuplicateUsername(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateEmployee(adminCtx(), domain.EmployeeCreateRequest{
		Username: "vendedor",
		FullName: "Otro Vendedor",
		Password: "password123",
		Role:     domain.RoleSales,
		StoreID:  "store-norte",
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestAdminCannotDemoteSelf(t *testing.T) {
	svc := newTestService()
	role := domain.RoleSales

	_, err := svc.UpdateEmployee(adminCtx(), "emp-admin", domain.EmployeeUpdateRequest{Role: &role})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type refusingLocker struct{}

func (refusingLocker) Obtain(_ context.Context, _ string, _ time.Duration) (func(), error) {
	return nil, cache.ErrLockNotObtained
}

func TestBatchProceedsWhenLockUnavailable(t *testing.T) {
	logger, hook := test.NewNullLogger()
	svc := New(memory.NewSeeded(), nil, refusingLocker{}, time.Second, logger)

	if _, err := svc.CreateTransfer(adminCtx(), domain.TransferCreateRequest{
		OriginStoreID:      "store-centro",
		DestinationStoreID: "store-norte",
		ScanCodes:          []string{"GA15-0003"},
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["key"] == "celustock:batch:store-centro" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected lock warning to be logged")
	}
}

func TestAuditLogRecordsMutations(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.CreateStore(ctx, domain.StoreCreateRequest{Name: "Tienda Sur"}); err != nil {
		t.Fatalf("create store: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, "", "", 10)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	if len(logs) == 0 || logs[0].Action != "store_create" || logs[0].ActorID != "emp-admin" {
		t.Fatalf("unexpected audit logs: %+v", logs)
	}
}

func TestActorForEmployeeReflectsStoredRecord(t *testing.T) {
	svc := newTestService()
	home := "store-norte"
	active := false

	if _, err := svc.UpdateEmployee(adminCtx(), "emp-vendedor", domain.EmployeeUpdateRequest{StoreID: &home}); err != nil {
		t.Fatalf("move employee: %v", err)
	}
	actor, err := svc.ActorForEmployee(context.Background(), "emp-vendedor")
	if err != nil {
		t.Fatalf("actor for employee: %v", err)
	}
	if actor.StoreID != "store-norte" || actor.Role != domain.RoleSales {
		t.Fatalf("expected stored identity, got %+v", actor)
	}

	if _, err := svc.UpdateEmployee(adminCtx(), "emp-vendedor", domain.EmployeeUpdateRequest{Active: &active}); err != nil {
		t.Fatalf("deactivate employee: %v", err)
	}
	if _, err := svc.ActorForEmployee(context.Background(), "emp-vendedor"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for inactive employee, got %v", err)
	}
	if _, err := svc.ActorForEmployee(context.Background(), "emp-missing"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for missing employee, got %v", err)
	}
}

func TestSaleRejectsRepeatedOrBlankDeviceCodes(t *testing.T) {
	svc := newTestService()
	seedPricedProduct(t, svc, "MG-1")

	for _, codes := range [][]string{{"IMEI-1", "IMEI-1"}, {"IMEI-1", "  "}} {
		_, err := svc.CreateSale(adminCtx(), domain.SaleCreateRequest{
			StoreID:       "store-centro",
			PaymentMethod: "cash",
			Items:         []domain.SaleItemRequest{{ScanCode: "MG-1", DeviceCodes: codes}},
		})
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("device codes %q: expected validation error, got %v", codes, err)
		}
	}

	sale, err := svc.CreateSale(adminCtx(), domain.SaleCreateRequest{
		StoreID:       "store-centro",
		PaymentMethod: "cash",
		Items:         []domain.SaleItemRequest{{ScanCode: "MG-1", DeviceCodes: []string{" IMEI-1 ", "IMEI-2"}}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	got := sale.Items[0].DeviceCodes
	if len(got) != 2 || got[0] != "IMEI-1" || got[1] != "IMEI-2" {
		t.Fatalf("expected device codes kept in order, got %q", got)
	}
}
