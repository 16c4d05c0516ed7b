package postgres

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
		INSERT INTO exchange_rates (id, rate, created_by, created_at)
		VALUES ($1,$2,$3,$4)
	`, rate.ID, rate.Rate, rate.CreatedBy, rate.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &rate, nil
}

func (s *Store) LatestExchangeRate(ctx context.Context) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	err := s.db.QueryRowContext(ctx, `
		SELECT id, rate, created_by, created_at
		FROM exchange_rates
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&rate.ID, &rate.Rate, &rate.CreatedBy, &rate.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	rate.CreatedAt = rate.CreatedAt.UTC()
	return &rate, nil
}

func (s *Store) ListExchangeRates(ctx context.Context, limit int) ([]domain.ExchangeRate, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rate, created_by, created_at
		FROM exchange_rates
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	rates := make([]domain.ExchangeRate, 0, limit)
	for rows.Next() {
		var rate domain.ExchangeRate
		if err := rows.Scan(&rate.ID, &rate.Rate, &rate.CreatedBy, &rate.CreatedAt); err != nil {
			return nil, classify(err)
		}
		rate.CreatedAt = rate.CreatedAt.UTC()
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
	if err := row.Scan(&e.ID, &e.Username, &e.FullName, &e.PasswordHash, &e.Role, &e.StoreID, &e.Active, &e.CreatedAt); err != nil {
		return domain.Employee{}, classify(err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
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
		INSERT INTO employees (id, username, full_name, password_hash, role, store_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, employee.ID, employee.Username, employee.FullName, employee.PasswordHash, employee.Role, employee.StoreID, employee.Active, employee.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %s", store.ErrDuplicate, employee.Username)
		}
		return nil, notFoundOnForeignKey(err)
	}
	return &employee, nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	e, err := scanEmployee(s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	e, err := scanEmployee(s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE username = $1`, username))
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
	updated, err := scanEmployee(s.db.QueryRowContext(ctx, `
		UPDATE employees
		SET full_name = $2, password_hash = $3, role = $4, store_id = $5, active = $6
		WHERE id = $1
		RETURNING `+employeeColumns, employee.ID, employee.FullName, employee.PasswordHash, employee.Role, employee.StoreID, employee.Active))
	if err != nil {
		return nil, err
	}
	return &updated, nil
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, nullIfEmpty(entry.StoreID), entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return classify(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, nullIfZero(from), nullIfZero(to), limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var entryStore sql.NullString
		if err := rows.Scan(&entry.ID, &entryStore, &entry.ActorID, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, classify(err)
		}
		entry.StoreID = entryStore.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return logs, nil
}
