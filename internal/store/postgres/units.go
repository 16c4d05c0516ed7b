package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

func scanUnit(row rowScanner) (domain.Unit, error) {
	var u domain.Unit
	var soldAt sql.NullTime
	if err := row.Scan(&u.ScanCode, &u.ProductID, &u.StoreID, &u.Sold, &u.CreatedAt, &soldAt); err != nil {
		return domain.Unit{}, classify(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.SoldAt = timePtr(soldAt)
	return u, nil
}

func (s *Store) AssignUnits(ctx context.Context, units []domain.Unit) ([]domain.Unit, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := assignUnitsTx(ctx, tx, units)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return created, nil
}

// assignUnitsTx inserts a batch of new units inside tx. Any existing scan code
// rejects the whole batch with ErrDuplicate.
func assignUnitsTx(ctx context.Context, tx *sql.Tx, units []domain.Unit) ([]domain.Unit, error) {
	if len(units) == 0 {
		return nil, store.Validation("no units to assign")
	}
	codes := make([]string, 0, len(units))
	seen := make(map[string]struct{}, len(units))
	duplicates := make([]string, 0)
	for _, unit := range units {
		if unit.ScanCode == "" {
			return nil, store.Validation("scan code is required")
		}
		if _, ok := seen[unit.ScanCode]; ok {
			duplicates = append(duplicates, unit.ScanCode)
		}
		seen[unit.ScanCode] = struct{}{}
		codes = append(codes, unit.ScanCode)
	}

	rows, err := tx.QueryContext(ctx, `SELECT scan_code FROM units WHERE scan_code = ANY($1) ORDER BY scan_code`, codes)
	if err != nil {
		return nil, classify(err)
	}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			_ = rows.Close()
			return nil, classify(err)
		}
		duplicates = append(duplicates, code)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, classify(err)
	}
	_ = rows.Close()
	if len(duplicates) > 0 {
		return nil, fmt.Errorf("%w: scan codes %s", store.ErrDuplicate, strings.Join(duplicates, ","))
	}

	for _, id := range store.UniqueStrings(unitProductIDs(units)) {
		var ok bool
		if err := tx.QueryRowContext(ctx, `SELECT true FROM products WHERE id = $1`, id).Scan(&ok); err != nil {
			return nil, fmt.Errorf("product %s: %w", id, classify(err))
		}
	}
	for _, id := range store.UniqueStrings(unitStoreIDs(units)) {
		var ok bool
		if err := tx.QueryRowContext(ctx, `SELECT true FROM stores WHERE id = $1`, id).Scan(&ok); err != nil {
			return nil, fmt.Errorf("store %s: %w", id, classify(err))
		}
	}

	now := time.Now().UTC()
	created := make([]domain.Unit, 0, len(units))
	for _, unit := range units {
		unit.Sold = false
		unit.SoldAt = nil
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO units (scan_code, product_id, store_id, sold, created_at)
			VALUES ($1,$2,$3,false,$4)
		`, unit.ScanCode, unit.ProductID, unit.StoreID, unit.CreatedAt)
		if err != nil {
			return nil, classify(err)
		}
		created = append(created, unit)
	}
	return created, nil
}

func unitProductIDs(units []domain.Unit) []string {
	ids := make([]string, 0, len(units))
	for _, unit := range units {
		ids = append(ids, unit.ProductID)
	}
	return ids
}

func unitStoreIDs(units []domain.Unit) []string {
	ids := make([]string, 0, len(units))
	for _, unit := range units {
		ids = append(ids, unit.StoreID)
	}
	return ids
}

func (s *Store) QueryUnits(ctx context.Context, filter domain.UnitFilter) ([]domain.Unit, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.StoreID != "" {
		args = append(args, filter.StoreID)
		clauses = append(clauses, fmt.Sprintf("store_id = $%d", len(args)))
	}
	if filter.Sold != nil {
		args = append(args, *filter.Sold)
		clauses = append(clauses, fmt.Sprintf("sold = $%d", len(args)))
	}
	if len(filter.ScanCodes) > 0 {
		args = append(args, filter.ScanCodes)
		clauses = append(clauses, fmt.Sprintf("scan_code = ANY($%d)", len(args)))
	}

	query := `SELECT scan_code, product_id, store_id, sold, created_at, sold_at FROM units`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, scan_code"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	units := make([]domain.Unit, 0, 32)
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return units, nil
}

func (s *Store) GetUnit(ctx context.Context, scanCode string) (*domain.Unit, error) {
	unit, err := scanUnit(s.db.QueryRowContext(ctx, `
		SELECT scan_code, product_id, store_id, sold, created_at, sold_at
		FROM units
		WHERE scan_code = $1
	`, scanCode))
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (s *Store) DeleteUnit(ctx context.Context, scanCode string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var sold, referenced bool
	err = tx.QueryRowContext(ctx, `
		SELECT u.sold,
			EXISTS (SELECT 1 FROM transfer_items ti WHERE ti.scan_code = u.scan_code)
			OR EXISTS (SELECT 1 FROM sale_items si WHERE si.scan_code = u.scan_code)
		FROM units u
		WHERE u.scan_code = $1
		FOR UPDATE OF u
	`, scanCode).Scan(&sold, &referenced)
	if err != nil {
		return classify(err)
	}
	if sold {
		return &store.ConflictError{Units: []store.UnitConflict{{ScanCode: scanCode, Reason: store.ReasonSold}}}
	}
	if referenced {
		return &store.ConflictError{Units: []store.UnitConflict{{ScanCode: scanCode, Reason: store.ReasonReferenced}}}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE scan_code = $1`, scanCode); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

func (s *Store) DeassignUnits(ctx context.Context, storeID string, productID string) (domain.DeassignResult, error) {
	result := domain.DeassignResult{StoreID: storeID, ProductID: productID}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return result, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM units WHERE store_id = $1 AND product_id = $2
	`, storeID, productID).Scan(&total); err != nil {
		return result, classify(err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM units u
		WHERE u.store_id = $1 AND u.product_id = $2 AND u.sold = false
		  AND NOT EXISTS (SELECT 1 FROM transfer_items ti WHERE ti.scan_code = u.scan_code)
		  AND NOT EXISTS (SELECT 1 FROM sale_items si WHERE si.scan_code = u.scan_code)
	`, storeID, productID)
	if err != nil {
		return result, classify(err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return result, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return result, classify(err)
	}
	result.Deleted = int(deleted)
	result.Retained = total - result.Deleted
	return result, nil
}

func (s *Store) CountAvailable(ctx context.Context, productID string, storeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM units
		WHERE product_id = $1 AND sold = false AND ($2 = '' OR store_id = $2)
	`, productID, storeID).Scan(&count)
	if err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (s *Store) CountAvailableByProduct(ctx context.Context, storeID string) (map[string]int, error) {
	return s.countGrouped(ctx, `
		SELECT product_id, count(*)
		FROM units
		WHERE sold = false AND ($1 = '' OR store_id = $1)
		GROUP BY product_id
	`, storeID)
}

func (s *Store) CountAvailableByStore(ctx context.Context, productID string) (map[string]int, error) {
	return s.countGrouped(ctx, `
		SELECT store_id, count(*)
		FROM units
		WHERE sold = false AND ($1 = '' OR product_id = $1)
		GROUP BY store_id
	`, productID)
}

func (s *Store) countGrouped(ctx context.Context, query string, arg string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, classify(err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return counts, nil
}

// lockUnits reads the given units with row locks, in scan code order so that
// concurrent batches acquire locks in the same sequence.
func lockUnits(ctx context.Context, tx *sql.Tx, codes []string) (map[string]domain.Unit, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT scan_code, product_id, store_id, sold, created_at, sold_at
		FROM units
		WHERE scan_code = ANY($1)
		ORDER BY scan_code
		FOR UPDATE
	`, codes)
	if err != nil {
		return nil, classify(err)
	}
	units := make(map[string]domain.Unit, len(codes))
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		units[unit.ScanCode] = unit
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, classify(err)
	}
	_ = rows.Close()
	return units, nil
}
