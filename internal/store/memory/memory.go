package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	stores             map[string]domain.Store
	units              map[string]domain.Unit
	unitRefs           map[string]int
	transfersByID      map[string]domain.Transfer
	salesByID          map[string]domain.Sale
	rates              []domain.ExchangeRate
	employeesByID      map[string]domain.Employee
	employeeByUsername map[string]string
	suppliersByID      map[string]domain.Supplier
	purchaseOrdersByID map[string]domain.PurchaseOrder
	auditLogs          []domain.AuditLog
}

func New() *Store {
	return &Store{
		products:           make(map[string]domain.Product),
		stores:             make(map[string]domain.Store),
		units:              make(map[string]domain.Unit),
		unitRefs:           make(map[string]int),
		transfersByID:      make(map[string]domain.Transfer),
		salesByID:          make(map[string]domain.Sale),
		employeesByID:      make(map[string]domain.Employee),
		employeeByUsername: make(map[string]string),
		suppliersByID:      make(map[string]domain.Supplier),
		purchaseOrdersByID: make(map[string]domain.PurchaseOrder),
	}
}

// seedEmployees builds the demo accounts. Passwords come from SEED_ADMIN_PASSWORD
// and SEED_SALES_PASSWORD; the dev defaults are only meant for local runs.
func seedEmployees(now time.Time) []domain.Employee {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	salesPwd := envOr("SEED_SALES_PASSWORD", "vendedor123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SALES_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_SALES_PASSWORD to override")
	}

	employees := make([]domain.Employee, 0, 2)
	for _, e := range []struct {
		id       string
		username string
		fullName string
		password string
		role     string
	}{
		{"emp-admin", "admin", "Administrador", adminPwd, domain.RoleAdmin},
		{"emp-vendedor", "vendedor", "Vendedor Centro", salesPwd, domain.RoleSales},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(e.password), bcrypt.MinCost)
		if err != nil {
			logrus.WithField("module", "memory-store").Fatalf("failed to hash seed password for %s: %v", e.username, err)
		}
		employees = append(employees, domain.Employee{
			ID:           e.id,
			Username:     e.username,
			FullName:     e.fullName,
			PasswordHash: string(hash),
			Role:         e.role,
			StoreID:      "store-centro",
			Active:       true,
			CreatedAt:    now,
		})
	}
	return employees
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with two shops, a small phone catalog, a few units,
// an exchange rate and the demo employees.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, st := range []domain.Store{
		{ID: "store-centro", Name: "Tienda Centro", Address: "Av. Principal 120", Phone: "70000001"},
		{ID: "store-norte", Name: "Tienda Norte", Address: "Calle Norte 45", Phone: "70000002"},
	} {
		st.Active = true
		st.CreatedAt = now
		s.stores[st.ID] = st
	}

	for _, p := range []domain.Product{
		{ID: "prod-galaxy-a15", Name: "Galaxy A15", Brand: "Samsung", Color: "Negro", Specs: "128GB / 4GB RAM", CostPrice: decimal.NewFromInt(150), ProfitBOB: decimal.NewFromInt(200)},
		{ID: "prod-redmi-13c", Name: "Redmi 13C", Brand: "Xiaomi", Color: "Azul", Specs: "256GB / 8GB RAM", CostPrice: decimal.NewFromInt(120), ProfitBOB: decimal.NewFromInt(150)},
		{ID: "prod-iphone-13", Name: "iPhone 13", Brand: "Apple", Color: "Blanco", Specs: "128GB", CostPrice: decimal.NewFromInt(520), ProfitBOB: decimal.NewFromInt(600)},
	} {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	for _, u := range []domain.Unit{
		{ScanCode: "GA15-0001", ProductID: "prod-galaxy-a15", StoreID: "store-centro"},
		{ScanCode: "GA15-0002", ProductID: "prod-galaxy-a15", StoreID: "store-centro"},
		{ScanCode: "GA15-0003", ProductID: "prod-galaxy-a15", StoreID: "store-centro"},
		{ScanCode: "RDM-0001", ProductID: "prod-redmi-13c", StoreID: "store-centro"},
		{ScanCode: "RDM-0002", ProductID: "prod-redmi-13c", StoreID: "store-norte"},
		{ScanCode: "IP13-0001", ProductID: "prod-iphone-13", StoreID: "store-norte"},
	} {
		u.CreatedAt = now
		s.units[u.ScanCode] = u
	}

	s.rates = append(s.rates, domain.ExchangeRate{
		ID:        "rate-seed",
		Rate:      decimal.RequireFromString("6.96"),
		CreatedBy: "system",
		CreatedAt: now,
	})

	for _, e := range seedEmployees(now) {
		s.employeesByID[e.ID] = e
		s.employeeByUsername[e.Username] = e.ID
	}

	return s
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s", store.ErrDuplicate, product.ID)
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		stores = append(stores, st)
	}
	slices.SortFunc(stores, func(a, b domain.Store) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return stores, nil
}

func (s *Store) GetStore(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if _, exists := s.stores[st.ID]; exists {
		return nil, fmt.Errorf("%w: store %s", store.ErrDuplicate, st.ID)
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.stores[st.ID] = st
	return &st, nil
}

func (s *Store) UpdateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.stores[st.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	st.CreatedAt = existing.CreatedAt
	s.stores[st.ID] = st
	return &st, nil
}

func (s *Store) DeleteStore(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[id]; !ok {
		return 0, store.ErrNotFound
	}
	if s.storeHasHistoryLocked(id) {
		return 0, fmt.Errorf("%w: store %s has sales, transfers, employees or purchase orders", store.ErrConflict, id)
	}

	referenced := make([]store.UnitConflict, 0)
	for code, unit := range s.units {
		if unit.StoreID == id && (unit.Sold || s.unitRefs[code] > 0) {
			referenced = append(referenced, store.UnitConflict{ScanCode: code, Reason: store.ReasonReferenced})
		}
	}
	if len(referenced) > 0 {
		return 0, &store.ConflictError{Units: referenced}
	}

	deleted := 0
	for code, unit := range s.units {
		if unit.StoreID == id {
			delete(s.units, code)
			deleted++
		}
	}
	delete(s.stores, id)
	return deleted, nil
}

func (s *Store) storeHasHistoryLocked(id string) bool {
	for _, sale := range s.salesByID {
		if sale.StoreID == id {
			return true
		}
	}
	for _, transfer := range s.transfersByID {
		if transfer.OriginStoreID == id || transfer.DestinationStoreID == id {
			return true
		}
	}
	for _, employee := range s.employeesByID {
		if employee.StoreID == id {
			return true
		}
	}
	for _, po := range s.purchaseOrdersByID {
		if po.StoreID == id {
			return true
		}
	}
	return false
}

func (s *Store) AssignUnits(_ context.Context, units []domain.Unit) ([]domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.assignLocked(units)
}

// assignLocked inserts a batch of units all-or-nothing. Callers hold s.mu.
func (s *Store) assignLocked(units []domain.Unit) ([]domain.Unit, error) {
	if len(units) == 0 {
		return nil, store.Validation("no units to assign")
	}

	seen := make(map[string]struct{}, len(units))
	duplicates := make([]string, 0)
	for _, unit := range units {
		if unit.ScanCode == "" {
			return nil, store.Validation("scan code is required")
		}
		if _, ok := s.products[unit.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, unit.ProductID)
		}
		if _, ok := s.stores[unit.StoreID]; !ok {
			return nil, fmt.Errorf("%w: store %s", store.ErrNotFound, unit.StoreID)
		}
		_, inBatch := seen[unit.ScanCode]
		_, inLedger := s.units[unit.ScanCode]
		if inBatch || inLedger {
			duplicates = append(duplicates, unit.ScanCode)
		}
		seen[unit.ScanCode] = struct{}{}
	}
	if len(duplicates) > 0 {
		return nil, fmt.Errorf("%w: scan codes %s", store.ErrDuplicate, strings.Join(duplicates, ","))
	}

	now := time.Now().UTC()
	created := make([]domain.Unit, 0, len(units))
	for _, unit := range units {
		unit.Sold = false
		unit.SoldAt = nil
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = now
		}
		s.units[unit.ScanCode] = unit
		created = append(created, unit)
	}
	return created, nil
}

func (s *Store) QueryUnits(_ context.Context, filter domain.UnitFilter) ([]domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var codes map[string]struct{}
	if len(filter.ScanCodes) > 0 {
		codes = make(map[string]struct{}, len(filter.ScanCodes))
		for _, code := range filter.ScanCodes {
			codes[code] = struct{}{}
		}
	}

	units := make([]domain.Unit, 0, 32)
	for _, unit := range s.units {
		if filter.ProductID != "" && unit.ProductID != filter.ProductID {
			continue
		}
		if filter.StoreID != "" && unit.StoreID != filter.StoreID {
			continue
		}
		if filter.Sold != nil && unit.Sold != *filter.Sold {
			continue
		}
		if codes != nil {
			if _, ok := codes[unit.ScanCode]; !ok {
				continue
			}
		}
		units = append(units, cloneUnit(unit))
	}
	slices.SortFunc(units, func(a, b domain.Unit) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ScanCode, b.ScanCode)
	})
	if filter.Limit > 0 && len(units) > filter.Limit {
		units = units[:filter.Limit]
	}
	return units, nil
}

func (s *Store) GetUnit(_ context.Context, scanCode string) (*domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.units[scanCode]
	if !ok {
		return nil, store.ErrNotFound
	}
	unit = cloneUnit(unit)
	return &unit, nil
}

func (s *Store) DeleteUnit(_ context.Context, scanCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[scanCode]
	if !ok {
		return store.ErrNotFound
	}
	if unit.Sold {
		return &store.ConflictError{Units: []store.UnitConflict{{ScanCode: scanCode, Reason: store.ReasonSold}}}
	}
	if s.unitRefs[scanCode] > 0 {
		return &store.ConflictError{Units: []store.UnitConflict{{ScanCode: scanCode, Reason: store.ReasonReferenced}}}
	}
	delete(s.units, scanCode)
	return nil
}

func (s *Store) DeassignUnits(_ context.Context, storeID string, productID string) (domain.DeassignResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := domain.DeassignResult{StoreID: storeID, ProductID: productID}
	for code, unit := range s.units {
		if unit.StoreID != storeID || unit.ProductID != productID {
			continue
		}
		if unit.Sold || s.unitRefs[code] > 0 {
			result.Retained++
			continue
		}
		delete(s.units, code)
		result.Deleted++
	}
	return result, nil
}

func (s *Store) CountAvailable(_ context.Context, productID string, storeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, unit := range s.units {
		if unit.Sold || unit.ProductID != productID {
			continue
		}
		if storeID != "" && unit.StoreID != storeID {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) CountAvailableByProduct(_ context.Context, storeID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, unit := range s.units {
		if unit.Sold {
			continue
		}
		if storeID != "" && unit.StoreID != storeID {
			continue
		}
		counts[unit.ProductID]++
	}
	return counts, nil
}

func (s *Store) CountAvailableByStore(_ context.Context, productID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, unit := range s.units {
		if unit.Sold {
			continue
		}
		if productID != "" && unit.ProductID != productID {
			continue
		}
		counts[unit.StoreID]++
	}
	return counts, nil
}

func (s *Store) CreateTransfer(_ context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transfer.OriginStoreID == transfer.DestinationStoreID {
		return nil, store.Validation("origin and destination must differ")
	}
	codes := transferCodes(transfer.Items)
	if err := store.CheckBatchCodes(codes); err != nil {
		return nil, err
	}
	if _, ok := s.stores[transfer.OriginStoreID]; !ok {
		return nil, fmt.Errorf("%w: store %s", store.ErrNotFound, transfer.OriginStoreID)
	}
	if _, ok := s.stores[transfer.DestinationStoreID]; !ok {
		return nil, fmt.Errorf("%w: store %s", store.ErrNotFound, transfer.DestinationStoreID)
	}
	if err := store.CheckUnitStates(codes, s.units, transfer.OriginStoreID, store.ReasonNotAtOrigin); err != nil {
		return nil, err
	}

	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}
	items := make([]domain.TransferItem, 0, len(codes))
	for i, code := range codes {
		unit := s.units[code]
		items = append(items, domain.TransferItem{ScanCode: code, ProductID: unit.ProductID, Position: i + 1})
		unit.StoreID = transfer.DestinationStoreID
		s.units[code] = unit
		s.unitRefs[code]++
	}
	transfer.Items = items

	s.transfersByID[transfer.ID] = cloneTransfer(transfer)
	return &transfer, nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	transfer = cloneTransfer(transfer)
	return &transfer, nil
}

func (s *Store) ListTransfers(_ context.Context, filter domain.MovementFilter) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := make([]domain.Transfer, 0, len(s.transfersByID))
	for _, transfer := range s.transfersByID {
		if filter.StoreID != "" && transfer.OriginStoreID != filter.StoreID && transfer.DestinationStoreID != filter.StoreID {
			continue
		}
		if !inRange(transfer.CreatedAt, filter.From, filter.To) {
			continue
		}
		transfers = append(transfers, cloneTransfer(transfer))
	}
	slices.SortFunc(transfers, func(a, b domain.Transfer) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(transfers) > filter.Limit {
		transfers = transfers[:filter.Limit]
	}
	return transfers, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := saleCodes(sale.Items)
	if err := store.CheckBatchCodes(codes); err != nil {
		return nil, err
	}
	if _, ok := s.stores[sale.StoreID]; !ok {
		return nil, fmt.Errorf("%w: store %s", store.ErrNotFound, sale.StoreID)
	}
	if err := store.CheckUnitStates(codes, s.units, sale.StoreID, store.ReasonNotAtStore); err != nil {
		return nil, err
	}

	for i := range sale.Items {
		sale.Items[i].ProductID = s.units[sale.Items[i].ScanCode].ProductID
		sale.Items[i].Position = i + 1
	}
	if sale.ExchangeRate.IsZero() {
		if latest, ok := s.latestRateLocked(); ok {
			sale.ExchangeRate = latest.Rate
		}
	}
	if err := store.PriceSale(&sale, s.products); err != nil {
		return nil, err
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	soldAt := sale.CreatedAt
	for _, code := range codes {
		unit := s.units[code]
		unit.Sold = true
		unit.SoldAt = &soldAt
		s.units[code] = unit
		s.unitRefs[code]++
	}
	sale.OverrideTotal = nil

	s.salesByID[sale.ID] = cloneSale(sale)
	return &sale, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale = cloneSale(sale)
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.MovementFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.StoreID != "" && sale.StoreID != filter.StoreID {
			continue
		}
		if !inRange(sale.CreatedAt, filter.From, filter.To) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) ListSaleReportRows(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.SaleReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		if !inRange(sale.CreatedAt, from, to) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	rows := make([]domain.SaleReportRow, 0, len(sales)*2)
	for _, sale := range sales {
		for _, item := range sale.Items {
			rows = append(rows, domain.SaleReportRow{
				SaleID:    sale.ID,
				SoldAt:    sale.CreatedAt.UTC().Format(time.RFC3339Nano),
				TotalBOB:  sale.TotalBOB,
				ProductID: item.ProductID,
				Position:  item.Position,
				ProfitBOB: item.ProfitBOB,
			})
		}
	}
	return rows, nil
}

func (s *Store) CreateExchangeRate(_ context.Context, rate domain.ExchangeRate) (*domain.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rate.ID == "" {
		rate.ID = xid.New("rate")
	}
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = time.Now().UTC()
	}
	s.rates = append(s.rates, rate)
	return &rate, nil
}

func (s *Store) LatestExchangeRate(_ context.Context) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, ok := s.latestRateLocked()
	if !ok {
		return nil, store.ErrNotFound
	}
	return &latest, nil
}

func (s *Store) latestRateLocked() (domain.ExchangeRate, bool) {
	if len(s.rates) == 0 {
		return domain.ExchangeRate{}, false
	}
	latest := s.rates[0]
	for _, rate := range s.rates[1:] {
		if !rate.CreatedAt.Before(latest.CreatedAt) {
			latest = rate
		}
	}
	return latest, true
}

func (s *Store) ListExchangeRates(_ context.Context, limit int) ([]domain.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := slices.Clone(s.rates)
	slices.Reverse(rates)
	slices.SortStableFunc(rates, func(a, b domain.ExchangeRate) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(rates) > limit {
		rates = rates[:limit]
	}
	return rates, nil
}

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	employee.Username = strings.ToLower(strings.TrimSpace(employee.Username))
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if _, exists := s.employeeByUsername[employee.Username]; exists {
		return nil, fmt.Errorf("%w: username %s", store.ErrDuplicate, employee.Username)
	}
	if _, exists := s.employeesByID[employee.ID]; exists {
		return nil, fmt.Errorf("%w: employee %s", store.ErrDuplicate, employee.ID)
	}
	if _, ok := s.stores[employee.StoreID]; !ok {
		return nil, fmt.Errorf("%w: store %s", store.ErrNotFound, employee.StoreID)
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}
	s.employeesByID[employee.ID] = employee
	s.employeeByUsername[employee.Username] = employee.ID
	return &employee, nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, ok := s.employeesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &employee, nil
}

func (s *Store) GetEmployeeByUsername(_ context.Context, username string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.employeeByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	employee := s.employeesByID[id]
	return &employee, nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]domain.Employee, 0, len(s.employeesByID))
	for _, employee := range s.employeesByID {
		employees = append(employees, employee)
	}
	slices.SortFunc(employees, func(a, b domain.Employee) int {
		return strings.Compare(a.Username, b.Username)
	})
	return employees, nil
}

func (s *Store) UpdateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.employeesByID[employee.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.stores[employee.StoreID]; !ok {
		return nil, fmt.Errorf("%w: store %s", store.ErrNotFound, employee.StoreID)
	}
	employee.Username = existing.Username
	employee.CreatedAt = existing.CreatedAt
	s.employeesByID[employee.ID] = employee
	return &employee, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if _, exists := s.suppliersByID[supplier.ID]; exists {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrDuplicate, supplier.ID)
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(po.Items) == 0 {
		return nil, store.Validation("purchase order has no items")
	}
	if _, ok := s.stores[po.StoreID]; !ok {
		return nil, fmt.Errorf("%w: store %s", store.ErrNotFound, po.StoreID)
	}
	if _, ok := s.suppliersByID[po.SupplierID]; !ok {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, po.SupplierID)
	}
	for _, item := range po.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	if po.Status == "" {
		po.Status = domain.PurchaseOrderDraft
	}
	s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	return &po, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrdersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	po = clonePurchaseOrder(po)
	return &po, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if storeID != "" && po.StoreID != storeID {
			continue
		}
		if status != "" && po.Status != status {
			continue
		}
		pos = append(pos, clonePurchaseOrder(po))
	}
	slices.SortFunc(pos, func(a, b domain.PurchaseOrder) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(pos) > limit {
		pos = pos[:limit]
	}
	return pos, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, id string, receivedBy string, receivedAt time.Time, units []domain.Unit) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrdersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status == domain.PurchaseOrderReceived {
		return nil, fmt.Errorf("%w: purchase order %s already received", store.ErrConflict, id)
	}
	for i := range units {
		units[i].StoreID = po.StoreID
	}
	if _, err := s.assignLocked(units); err != nil {
		return nil, err
	}

	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &receivedAt
	s.purchaseOrdersByID[id] = clonePurchaseOrder(po)

	received := clonePurchaseOrder(po)
	return &received, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, 64)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func transferCodes(items []domain.TransferItem) []string {
	codes := make([]string, 0, len(items))
	for _, item := range items {
		codes = append(codes, item.ScanCode)
	}
	return codes
}

func saleCodes(items []domain.SaleItem) []string {
	codes := make([]string, 0, len(items))
	for _, item := range items {
		codes = append(codes, item.ScanCode)
	}
	return codes
}

func cloneUnit(src domain.Unit) domain.Unit {
	if src.SoldAt != nil {
		soldAt := *src.SoldAt
		src.SoldAt = &soldAt
	}
	return src
}

func cloneTransfer(src domain.Transfer) domain.Transfer {
	src.Items = slices.Clone(src.Items)
	return src
}

func cloneSale(src domain.Sale) domain.Sale {
	items := make([]domain.SaleItem, len(src.Items))
	for i, item := range src.Items {
		item.DeviceCodes = slices.Clone(item.DeviceCodes)
		if item.DeviceCodes == nil {
			item.DeviceCodes = []string{}
		}
		items[i] = item
	}
	src.Items = items
	src.OverrideTotal = nil
	return src
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	src.Items = slices.Clone(src.Items)
	if src.ReceivedAt != nil {
		receivedAt := *src.ReceivedAt
		src.ReceivedAt = &receivedAt
	}
	return src
}
