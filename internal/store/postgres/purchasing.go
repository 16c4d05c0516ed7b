package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

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
		INSERT INTO suppliers (id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Email), supplier.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var item domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &item.Phone, &item.Email, &item.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), created_at
		FROM suppliers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var item domain.Supplier
		if err := rows.Scan(&item.ID, &item.Name, &item.Phone, &item.Email, &item.CreatedAt); err != nil {
			return nil, classify(err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, store_id, supplier_id, status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, po.ID, po.StoreID, po.SupplierID, po.Status, po.CreatedBy, po.CreatedAt)
	if err != nil {
		return nil, notFoundOnForeignKey(err)
	}

	for _, item := range po.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, qty, unit_cost)
			VALUES ($1,$2,$3,$4)
		`, po.ID, item.ProductID, item.Qty, item.UnitCost)
		if err != nil {
			return nil, notFoundOnForeignKey(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	saved := po
	return &saved, nil
}

// notFoundOnForeignKey reports a missing referenced store, supplier or product
// as ErrNotFound rather than a conflict.
func notFoundOnForeignKey(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.Detail)
	}
	return classify(err)
}

func scanPurchaseOrder(row rowScanner) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var receivedAt sql.NullTime
	var receivedBy sql.NullString
	if err := row.Scan(&po.ID, &po.StoreID, &po.SupplierID, &po.Status, &po.CreatedBy, &po.CreatedAt, &receivedAt, &receivedBy); err != nil {
		return domain.PurchaseOrder{}, classify(err)
	}
	po.CreatedAt = po.CreatedAt.UTC()
	po.ReceivedAt = timePtr(receivedAt)
	po.ReceivedBy = receivedBy.String
	return po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT id, store_id, supplier_id, status, created_by, created_at, received_at, received_by
		FROM purchase_orders
		WHERE id = $1
	`, id))
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
		SELECT id, store_id, supplier_id, status, created_by, created_at, received_at, received_by
		FROM purchase_orders
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, storeID, status, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := make([]domain.PurchaseOrder, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	items, err := purchaseOrderItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = items[result[i].ID]
	}
	return result, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func purchaseOrderItems(ctx context.Context, q queryer, ids []string) (map[string][]domain.PurchaseOrderItem, error) {
	itemMap := make(map[string][]domain.PurchaseOrderItem, len(ids))
	if len(ids) == 0 {
		return itemMap, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT purchase_order_id, product_id, qty, unit_cost
		FROM purchase_order_items
		WHERE purchase_order_id = ANY($1)
		ORDER BY id ASC
	`, ids)
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

// ReceivePurchaseOrder marks the order received and creates its units at the
// order's store in the same transaction.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, id string, receivedBy string, receivedAt time.Time, units []domain.Unit) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	po, err := scanPurchaseOrder(tx.QueryRowContext(ctx, `
		SELECT id, store_id, supplier_id, status, created_by, created_at, received_at, received_by
		FROM purchase_orders
		WHERE id = $1
		FOR UPDATE
	`, id))
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

	res, err := tx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_at = $3, received_by = $4
		WHERE id = $1 AND status <> $2
	`, id, domain.PurchaseOrderReceived, receivedAt, receivedBy)
	if err != nil {
		return nil, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, classify(err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: purchase order %s already received", store.ErrConflict, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &receivedAt
	return &po, nil
}
