package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// CreateExchangeRate records a new rate. Only the latest one prices sales;
// older rows remain as history.
func (s *Service) CreateExchangeRate(ctx context.Context, req domain.ExchangeRateCreateRequest) (domain.ExchangeRate, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	if req.Rate.Sign() <= 0 {
		return domain.ExchangeRate{}, store.Validation("rate must be positive")
	}

	created, err := s.repo.CreateExchangeRate(ctx, domain.ExchangeRate{
		ID:        xid.New("rate"),
		Rate:      req.Rate.Round(4),
		CreatedBy: actor.EmployeeID,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.ExchangeRate{}, err
	}

	s.logAudit(ctx, "", "exchange_rate_create", "exchange_rate", created.ID, "rate="+created.Rate.String())
	return *created, nil
}

func (s *Service) CurrentExchangeRate(ctx context.Context) (domain.ExchangeRate, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.ExchangeRate{}, err
	}
	latest, err := s.repo.LatestExchangeRate(ctx)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	return *latest, nil
}

func (s *Service) ListExchangeRates(ctx context.Context, limit int) ([]domain.ExchangeRate, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return s.repo.ListExchangeRates(ctx, limit)
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Employee{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.FullName = strings.TrimSpace(req.FullName)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	req.StoreID = strings.TrimSpace(req.StoreID)
	if err := s.validateRequest(req); err != nil {
		return domain.Employee{}, err
	}
	if strings.ContainsAny(req.Username, " \t\r\n") {
		return domain.Employee{}, store.Validation("username must not contain spaces")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return domain.Employee{}, fmt.Errorf("hashing password: %w", err)
	}

	created, err := s.repo.CreateEmployee(ctx, domain.Employee{
		ID:           xid.New("emp"),
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: hash,
		Role:         req.Role,
		StoreID:      req.StoreID,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.Employee{}, err
	}

	s.logAudit(ctx, created.StoreID, "employee_create", "employee", created.ID, fmt.Sprintf("username=%s,role=%s", created.Username, created.Role))
	return *created, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, req domain.EmployeeUpdateRequest) (domain.Employee, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Employee{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Employee{}, err
	}

	existing, err := s.repo.GetEmployee(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Employee{}, err
	}

	updated := *existing
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return domain.Employee{}, store.Validation("full name must not be empty")
		}
		updated.FullName = name
	}
	if req.Role != nil {
		updated.Role = strings.ToLower(strings.TrimSpace(*req.Role))
	}
	if req.StoreID != nil {
		storeID := strings.TrimSpace(*req.StoreID)
		if _, err := s.repo.GetStore(ctx, storeID); err != nil {
			return domain.Employee{}, fmt.Errorf("store %s: %w", storeID, err)
		}
		updated.StoreID = storeID
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Password != nil {
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return domain.Employee{}, fmt.Errorf("hashing password: %w", err)
		}
		updated.PasswordHash = hash
	}
	if updated.ID == actor.EmployeeID && (!updated.Active || updated.Role != domain.RoleAdmin) {
		return domain.Employee{}, store.Validation("admins cannot deactivate or demote themselves")
	}

	saved, err := s.repo.UpdateEmployee(ctx, updated)
	if err != nil {
		return domain.Employee{}, err
	}

	s.logAudit(ctx, saved.StoreID, "employee_update", "employee", saved.ID, fmt.Sprintf("role=%s,store=%s,active=%t,password_changed=%t", saved.Role, saved.StoreID, saved.Active, req.Password != nil))
	return *saved, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListEmployees(ctx)
}

// Authenticate checks a username and password. Unknown users, wrong passwords
// and inactive accounts all return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.Employee, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.Employee{}, ErrInvalidCredentials
	}

	employee, err := s.repo.GetEmployeeByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Employee{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Employee{}, err
	}
	if !VerifyPassword(employee.PasswordHash, password) || !employee.Active {
		return domain.Employee{}, ErrInvalidCredentials
	}
	return *employee, nil
}

// ActorForEmployee returns the current identity of a signed-in employee from
// the stored record, so role, home store and active changes apply to existing
// sessions. Missing or inactive employees return ErrInvalidCredentials.
func (s *Service) ActorForEmployee(ctx context.Context, employeeID string) (domain.Actor, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return domain.Actor{}, ErrInvalidCredentials
	}
	employee, err := s.repo.GetEmployee(ctx, employeeID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Actor{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Actor{}, err
	}
	if !employee.Active {
		return domain.Actor{}, ErrInvalidCredentials
	}
	return domain.Actor{
		EmployeeID: employee.ID,
		Username:   employee.Username,
		Role:       employee.Role,
		StoreID:    employee.StoreID,
	}, nil
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
