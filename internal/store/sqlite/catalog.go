package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

const productColumns = `id, name, brand, color, specs, cost_price, profit_bob, active, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Brand, &p.Color, &p.Specs, &p.CostPrice, &p.ProfitBOB, &p.Active, &createdAt, &updatedAt); err != nil {
		return domain.Product{}, classify(err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = 1 OR ?
		ORDER BY name, id
	`, includeInactive)
	if err != nil {
		return nil, classify(err)
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
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`, product.ID, product.Name, product.Brand, product.Color, product.Specs,
		product.CostPrice.String(), product.ProfitBOB.String(), product.Active,
		formatTime(product.CreatedAt), formatTime(product.UpdatedAt))
	if err != nil {
		return nil, classify(err)
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, brand = ?, color = ?, specs = ?, cost_price = ?, profit_bob = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, product.Name, product.Brand, product.Color, product.Specs, product.CostPrice.String(), product.ProfitBOB.String(),
		product.Active, formatTime(time.Now()), product.ID)
	if err != nil {
		return nil, classify(err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, classify(err)
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func scanStore(row rowScanner) (domain.Store, error) {
	var st domain.Store
	var createdAt string
	if err := row.Scan(&st.ID, &st.Name, &st.Address, &st.Phone, &st.Active, &createdAt); err != nil {
		return domain.Store{}, classify(err)
	}
	st.CreatedAt = parseTime(createdAt)
	return st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, address, phone, active, created_at FROM stores ORDER BY name, id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 8)
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return stores, nil
}

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	st, err := scanStore(s.db.QueryRowContext(ctx, `SELECT id, name, address, phone, active, created_at FROM stores WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, address, phone, active, created_at)
		VALUES (?,?,?,?,?,?)
	`, st.ID, st.Name, st.Address, st.Phone, st.Active, formatTime(st.CreatedAt))
	if err != nil {
		return nil, classify(err)
	}
	return &st, nil
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stores SET name = ?, address = ?, phone = ?, active = ? WHERE id = ?
	`, st.Name, st.Address, st.Phone, st.Active, st.ID)
	if err != nil {
		return nil, classify(err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, classify(err)
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetStore(ctx, st.ID)
}

func (s *Store) DeleteStore(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE id = ?`, id).Scan(&exists); err != nil {
		return 0, classify(err)
	}

	var hasHistory bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sales WHERE store_id = ?1)
			OR EXISTS (SELECT 1 FROM transfers WHERE origin_store_id = ?1 OR destination_store_id = ?1)
			OR EXISTS (SELECT 1 FROM employees WHERE store_id = ?1)
			OR EXISTS (SELECT 1 FROM purchase_orders WHERE store_id = ?1)
	`, id).Scan(&hasHistory)
	if err != nil {
		return 0, classify(err)
	}
	if hasHistory {
		return 0, fmt.Errorf("%w: store %s has sales, transfers, employees or purchase orders", store.ErrConflict, id)
	}

	referenced, err := referencedUnits(ctx, tx, `u.store_id = ?`, id)
	if err != nil {
		return 0, err
	}
	if len(referenced) > 0 {
		return 0, &store.ConflictError{Units: referenced}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM units WHERE store_id = ?`, id)
	if err != nil {
		return 0, classify(err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = ?`, id); err != nil {
		return 0, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(err)
	}
	return int(deleted), nil
}

// referencedUnits lists units matching where that are sold or appear in any
// transfer or sale line.
func referencedUnits(ctx context.Context, tx *sql.Tx, where string, args ...any) ([]store.UnitConflict, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT u.scan_code
		FROM units u
		WHERE `+where+`
		  AND (u.sold = 1
		    OR EXISTS (SELECT 1 FROM transfer_items ti WHERE ti.scan_code = u.scan_code)
		    OR EXISTS (SELECT 1 FROM sale_items si WHERE si.scan_code = u.scan_code))
		ORDER BY u.scan_code
	`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	conflicts := make([]store.UnitConflict, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, classify(err)
		}
		conflicts = append(conflicts, store.UnitConflict{ScanCode: code, Reason: store.ReasonReferenced})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return conflicts, nil
}
