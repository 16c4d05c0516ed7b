package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

func (s *Store) CreateExchangeRate(ctx context.Context, rate domain.ExchangeRate) (*domain.ExchangeRate, error) {
	if rate.ID == "" {
		rate.ID = xid.New("rate")
	}
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (id, rate, created_by, created_at) VALUES (?,?,?,?)
	`, rate.ID, rate.Rate.String(), rate.CreatedBy, formatTime(rate.CreatedAt))
	if err != nil {
		return nil, classify(err)
	}
	return &rate, nil
}

func scanRate(row rowScanner) (domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	var createdAt string
	if err := row.Scan(&rate.ID, &rate.Rate, &rate.CreatedBy, &createdAt); err != nil {
		return domain.ExchangeRate{}, classify(err)
	}
	rate.CreatedAt = parseTime(createdAt)
	return rate, nil
}

func (s *Store) LatestExchangeRate(ctx context.Context) (*domain.ExchangeRate, error) {
	rate, err := scanRate(s.db.QueryRowContext(ctx, `
		SELECT id, rate, created_by, created_at FROM exchange_rates ORDER BY created_at DESC, id DESC LIMIT 1
	`))
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (s *Store) ListExchangeRates(ctx context.Context, limit int) ([]domain.ExchangeRate, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rate, created_by, created_at FROM exchange_rates ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	rates := make([]domain.ExchangeRate, 0, limit)
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return rates, nil
}

const employeeColumns = `id, username, full_name, password_hash, role, store_id, active, created_at`

func scanEmployee(row rowScanner) (domain.Employee, error) {
	var e domain.Employee
	var createdAt string
	if err := row.Scan(&e.ID, &e.Username, &e.FullName, &e.PasswordHash, &e.Role, &e.StoreID, &e.Active, &createdAt); err != nil {
		return domain.Employee{}, classify(err)
	}
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	employee.Username = strings.ToLower(strings.TrimSpace(employee.Username))
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`) VALUES (?,?,?,?,?,?,?,?)
	`, employee.ID, employee.Username, employee.FullName, employee.PasswordHash, employee.Role, employee.StoreID, employee.Active, formatTime(employee.CreatedAt))
	if err != nil {
		return nil, classify(err)
	}
	return &employee, nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	e, err := scanEmployee(s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	e, err := scanEmployee(s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE username = ?`, username))
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY username ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 16)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return employees, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE employees
		SET full_name = ?, password_hash = ?, role = ?, store_id = ?, active = ?
		WHERE id = ?
	`, employee.FullName, employee.PasswordHash, employee.Role, employee.StoreID, employee.Active, employee.ID)
	if err != nil {
		return nil, classify(err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, classify(err)
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetEmployee(ctx, employee.ID)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, entry.ID, entry.StoreID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, formatTime(entry.CreatedAt))
	return classify(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	args := []any{storeID}
	where, args := rangeClause("created_at", from, to, args)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE (?1 = '' OR store_id = ?1)`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorID, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &createdAt); err != nil {
			return nil, classify(err)
		}
		entry.CreatedAt = parseTime(createdAt)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return logs, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, created_at) VALUES (?,?,?,?,?)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Email, formatTime(supplier.CreatedAt))
	if err != nil {
		return nil, classify(err)
	}
	return &supplier, nil
}

func scanSupplier(row rowScanner) (domain.Supplier, error) {
	var item domain.Supplier
	var createdAt string
	if err := row.Scan(&item.ID, &item.Name, &item.Phone, &item.Email, &createdAt); err != nil {
		return domain.Supplier{}, classify(err)
	}
	item.CreatedAt = parseTime(createdAt)
	return item, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	item, err := scanSupplier(s.db.QueryRowContext(ctx, `SELECT id, name, phone, email, created_at FROM suppliers WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone, email, created_at FROM suppliers ORDER BY name ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		item, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if len(po.Items) == 0 {
		return nil, store.Validation("purchase order has no items")
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, store_id, supplier_id, status, created_by, created_at)
		VALUES (?,?,?,?,?,?)
	`, po.ID, po.StoreID, po.SupplierID, po.Status, po.CreatedBy, formatTime(po.CreatedAt))
	if err != nil {
		return nil, classify(err)
	}
	for _, item := range po.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, qty, unit_cost) VALUES (?,?,?,?)
		`, po.ID, item.ProductID, item.Qty, item.UnitCost.String()); err != nil {
			return nil, classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return &po, nil
}

const purchaseOrderColumns = `id, store_id, supplier_id, status, created_by, created_at, received_by, received_at`

func scanPurchaseOrder(row rowScanner) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var createdAt string
	var receivedAt sql.NullString
	if err := row.Scan(&po.ID, &po.StoreID, &po.SupplierID, &po.Status, &po.CreatedBy, &createdAt, &po.ReceivedBy, &receivedAt); err != nil {
		return domain.PurchaseOrder{}, classify(err)
	}
	po.CreatedAt = parseTime(createdAt)
	po.ReceivedAt = parseNullTime(receivedAt)
	return po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	items, err := purchaseOrderItems(ctx, s.db, []string{po.ID})
	if err != nil {
		return nil, err
	}
	po.Items = items[po.ID]
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE (?1 = '' OR store_id = ?1) AND (?2 = '' OR status = ?2)
		ORDER BY created_at DESC, id DESC
		LIMIT ?3
	`, storeID, status, limit)
	if err != nil {
		return nil, classify(err)
	}
	result := make([]domain.PurchaseOrder, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, classify(err)
	}
	_ = rows.Close()

	items, err := purchaseOrderItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = items[result[i].ID]
	}
	return result, nil
}

func purchaseOrderItems(ctx context.Context, q queryer, ids []string) (map[string][]domain.PurchaseOrderItem, error) {
	itemMap := make(map[string][]domain.PurchaseOrderItem, len(ids))
	if len(ids) == 0 {
		return itemMap, nil
	}
	placeholders, args := inClause(ids)
	rows, err := q.QueryContext(ctx, `
		SELECT purchase_order_id, product_id, qty, unit_cost
		FROM purchase_order_items
		WHERE purchase_order_id IN (`+placeholders+`)
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var poID string
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&poID, &item.ProductID, &item.Qty, &item.UnitCost); err != nil {
			return nil, classify(err)
		}
		itemMap[poID] = append(itemMap[poID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return itemMap, nil
}

func (s *Store) ReceivePurchaseOrder(ctx context.Context, id string, receivedBy string, receivedAt time.Time, units []domain.Unit) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	po, err := scanPurchaseOrder(tx.QueryRowContext(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if po.Status == domain.PurchaseOrderReceived {
		return nil, fmt.Errorf("%w: purchase order %s already received", store.ErrConflict, id)
	}
	items, err := purchaseOrderItems(ctx, tx, []string{po.ID})
	if err != nil {
		return nil, err
	}
	po.Items = items[po.ID]

	for i := range units {
		units[i].StoreID = po.StoreID
	}
	if _, err := assignUnitsTx(ctx, tx, units); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = ?, received_at = ?, received_by = ? WHERE id = ?
	`, domain.PurchaseOrderReceived, nullTimeText(&receivedAt), receivedBy, id); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &receivedAt
	return &po, nil
}
