package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand, color, specs, cost_price, profit_bob, active, created_at, updated_at
		FROM products
		WHERE active = true OR $1
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Brand, &p.Color, &p.Specs, &p.CostPrice, &p.ProfitBOB, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, classify(err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT id, name, brand, color, specs, cost_price, profit_bob, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, brand, color, specs, cost_price, profit_bob, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING created_at, updated_at
	`, product.ID, product.Name, product.Brand, product.Color, product.Specs, product.CostPrice, product.ProfitBOB, product.Active).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, color = $4, specs = $5, cost_price = $6, profit_bob = $7, active = $8, updated_at = now()
		WHERE id = $1
		RETURNING id, name, brand, color, specs, cost_price, profit_bob, active, created_at, updated_at
	`, product.ID, product.Name, product.Brand, product.Color, product.Specs, product.CostPrice, product.ProfitBOB, product.Active))
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func scanStore(row rowScanner) (domain.Store, error) {
	var st domain.Store
	if err := row.Scan(&st.ID, &st.Name, &st.Address, &st.Phone, &st.Active, &st.CreatedAt); err != nil {
		return domain.Store{}, classify(err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, phone, active, created_at
		FROM stores
		ORDER BY name, id
	`)
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
	st, err := scanStore(s.db.QueryRowContext(ctx, `
		SELECT id, name, address, phone, active, created_at
		FROM stores
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO stores (id, name, address, phone, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING created_at
	`, st.ID, st.Name, st.Address, st.Phone, st.Active).Scan(&st.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	updated, err := scanStore(s.db.QueryRowContext(ctx, `
		UPDATE stores
		SET name = $2, address = $3, phone = $4, active = $5
		WHERE id = $1
		RETURNING id, name, address, phone, active, created_at
	`, st.ID, st.Name, st.Address, st.Phone, st.Active))
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteStore removes a store and its never-moved units. Stores with any
// history are refused so that sales and transfers keep their references.
func (s *Store) DeleteStore(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM stores WHERE id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
		return 0, classify(err)
	}

	var hasHistory bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sales WHERE store_id = $1)
			OR EXISTS (SELECT 1 FROM transfers WHERE origin_store_id = $1 OR destination_store_id = $1)
			OR EXISTS (SELECT 1 FROM employees WHERE store_id = $1)
			OR EXISTS (SELECT 1 FROM purchase_orders WHERE store_id = $1)
	`, id).Scan(&hasHistory)
	if err != nil {
		return 0, classify(err)
	}
	if hasHistory {
		return 0, fmt.Errorf("%w: store %s has sales, transfers, employees or purchase orders", store.ErrConflict, id)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT u.scan_code
		FROM units u
		WHERE u.store_id = $1
		  AND (u.sold
		    OR EXISTS (SELECT 1 FROM transfer_items ti WHERE ti.scan_code = u.scan_code)
		    OR EXISTS (SELECT 1 FROM sale_items si WHERE si.scan_code = u.scan_code))
		ORDER BY u.scan_code
		FOR UPDATE OF u
	`, id)
	if err != nil {
		return 0, classify(err)
	}
	referenced := make([]store.UnitConflict, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			_ = rows.Close()
			return 0, classify(err)
		}
		referenced = append(referenced, store.UnitConflict{ScanCode: code, Reason: store.ReasonReferenced})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, classify(err)
	}
	_ = rows.Close()
	if len(referenced) > 0 {
		return 0, &store.ConflictError{Units: referenced}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM units WHERE store_id = $1`, id)
	if err != nil {
		return 0, classify(err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id); err != nil {
		return 0, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(err)
	}
	return int(deleted), nil
}
