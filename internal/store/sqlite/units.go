package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

const unitColumns = `scan_code, product_id, store_id, sold, created_at, sold_at`

func scanUnit(row rowScanner) (domain.Unit, error) {
	var u domain.Unit
	var createdAt string
	var soldAt sql.NullString
	if err := row.Scan(&u.ScanCode, &u.ProductID, &u.StoreID, &u.Sold, &createdAt, &soldAt); err != nil {
		return domain.Unit{}, classify(err)
	}
	u.CreatedAt = parseTime(createdAt)
	u.SoldAt = parseNullTime(soldAt)
	return u, nil
}

func (s *Store) AssignUnits(ctx context.Context, units []domain.Unit) ([]domain.Unit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
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

	existing, err := loadUnits(ctx, tx, codes)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if _, ok := existing[code]; ok {
			duplicates = append(duplicates, code)
		}
	}
	if len(duplicates) > 0 {
		return nil, fmt.Errorf("%w: scan codes %s", store.ErrDuplicate, strings.Join(duplicates, ","))
	}

	for _, unit := range units {
		var ok int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, unit.ProductID).Scan(&ok); err != nil {
			return nil, fmt.Errorf("product %s: %w", unit.ProductID, classify(err))
		}
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE id = ?`, unit.StoreID).Scan(&ok); err != nil {
			return nil, fmt.Errorf("store %s: %w", unit.StoreID, classify(err))
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
			VALUES (?,?,?,0,?)
		`, unit.ScanCode, unit.ProductID, unit.StoreID, formatTime(unit.CreatedAt))
		if err != nil {
			return nil, classify(err)
		}
		created = append(created, unit)
	}
	return created, nil
}

// loadUnits reads the given units. Inside a transaction the single connection
// already excludes every other writer.
func loadUnits(ctx context.Context, q queryer, codes []string) (map[string]domain.Unit, error) {
	units := make(map[string]domain.Unit, len(codes))
	if len(codes) == 0 {
		return units, nil
	}
	placeholders, args := inClause(codes)
	rows, err := q.QueryContext(ctx, `SELECT `+unitColumns+` FROM units WHERE scan_code IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units[unit.ScanCode] = unit
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return units, nil
}

func (s *Store) QueryUnits(ctx context.Context, filter domain.UnitFilter) ([]domain.Unit, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4+len(filter.ScanCodes))
	if filter.ProductID != "" {
		clauses = append(clauses, "product_id = ?")
		args = append(args, filter.ProductID)
	}
	if filter.StoreID != "" {
		clauses = append(clauses, "store_id = ?")
		args = append(args, filter.StoreID)
	}
	if filter.Sold != nil {
		clauses = append(clauses, "sold = ?")
		args = append(args, *filter.Sold)
	}
	if len(filter.ScanCodes) > 0 {
		placeholders, codeArgs := inClause(filter.ScanCodes)
		clauses = append(clauses, "scan_code IN ("+placeholders+")")
		args = append(args, codeArgs...)
	}

	query := `SELECT ` + unitColumns + ` FROM units`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, scan_code"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
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
	unit, err := scanUnit(s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE scan_code = ?`, scanCode))
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (s *Store) DeleteUnit(ctx context.Context, scanCode string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	unit, err := scanUnit(tx.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE scan_code = ?`, scanCode))
	if err != nil {
		return err
	}
	if unit.Sold {
		return &store.ConflictError{Units: []store.UnitConflict{{ScanCode: scanCode, Reason: store.ReasonSold}}}
	}
	referenced, err := referencedUnits(ctx, tx, `u.scan_code = ?`, scanCode)
	if err != nil {
		return err
	}
	if len(referenced) > 0 {
		return &store.ConflictError{Units: referenced}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE scan_code = ?`, scanCode); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

func (s *Store) DeassignUnits(ctx context.Context, storeID string, productID string) (domain.DeassignResult, error) {
	result := domain.DeassignResult{StoreID: storeID, ProductID: productID}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM units WHERE store_id = ? AND product_id = ?`, storeID, productID).Scan(&total); err != nil {
		return result, classify(err)
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM units
		WHERE store_id = ? AND product_id = ? AND sold = 0
		  AND NOT EXISTS (SELECT 1 FROM transfer_items ti WHERE ti.scan_code = units.scan_code)
		  AND NOT EXISTS (SELECT 1 FROM sale_items si WHERE si.scan_code = units.scan_code)
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
		SELECT count(*) FROM units
		WHERE product_id = ?1 AND sold = 0 AND (?2 = '' OR store_id = ?2)
	`, productID, storeID).Scan(&count)
	if err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (s *Store) CountAvailableByProduct(ctx context.Context, storeID string) (map[string]int, error) {
	return s.countGrouped(ctx, `
		SELECT product_id, count(*) FROM units
		WHERE sold = 0 AND (?1 = '' OR store_id = ?1)
		GROUP BY product_id
	`, storeID)
}

func (s *Store) CountAvailableByStore(ctx context.Context, productID string) (map[string]int, error) {
	return s.countGrouped(ctx, `
		SELECT store_id, count(*) FROM units
		WHERE sold = 0 AND (?1 = '' OR product_id = ?1)
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
