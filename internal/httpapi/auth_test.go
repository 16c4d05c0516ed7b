package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/service"
)

type authenticatorStub struct {
	employee domain.Employee
	err      error
	stored   *domain.Actor
}

func (s authenticatorStub) Authenticate(_ context.Context, _ string, _ string) (domain.Employee, error) {
	return s.employee, s.err
}

func (s authenticatorStub) ActorForEmployee(_ context.Context, employeeID string) (domain.Actor, error) {
	if s.stored == nil || s.stored.EmployeeID != employeeID {
		return domain.Actor{}, service.ErrInvalidCredentials
	}
	return *s.stored, nil
}

func TestLoginTokenCarriesEmployeeIdentity(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, authenticatorStub{employee: domain.Employee{
		ID:       "emp-7",
		Username: "lucia",
		Role:     domain.RoleSales,
		StoreID:  "store-norte",
		Active:   true,
	}})

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "lucia", Password: "x"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.EmployeeID != "emp-7" || actor.Role != domain.RoleSales || actor.StoreID != "store-norte" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginPropagatesInvalidCredentials(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, authenticatorStub{err: service.ErrInvalidCredentials})

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "lucia", Password: "bad"})
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	stub := authenticatorStub{employee: domain.Employee{ID: "emp-1", Role: domain.RoleAdmin, StoreID: "store-centro"}}
	issuer := NewAuthManager("secret-one", time.Hour, stub)
	verifier := NewAuthManager("secret-two", time.Hour, stub)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	token, err := manager.sign(domain.Employee{ID: "emp-1", Role: domain.RoleAdmin}, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	token, err := manager.sign(domain.Employee{ID: "emp-1", Role: "cashier"}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	claims := employeeClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "emp-1",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}

func TestAuthorizeUsesStoredRoleAndStore(t *testing.T) {
	stub := authenticatorStub{
		employee: domain.Employee{ID: "emp-7", Username: "lucia", Role: domain.RoleAdmin, StoreID: "store-centro"},
		stored:   &domain.Actor{EmployeeID: "emp-7", Username: "lucia", Role: domain.RoleSales, StoreID: "store-norte"},
	}
	manager := NewAuthManager("test-secret", time.Hour, stub)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "lucia", Password: "x"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.Authorize(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if actor.Role != domain.RoleSales || actor.StoreID != "store-norte" {
		t.Fatalf("expected stored identity, got %+v", actor)
	}
}

func TestAuthorizeRejectsUnknownEmployee(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, authenticatorStub{
		employee: domain.Employee{ID: "emp-gone", Role: domain.RoleSales, StoreID: "store-centro"},
	})

	resp, err := manager.Login(context.Background(), domain.LoginRequest{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := manager.Authorize(context.Background(), resp.AccessToken); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for missing employee, got %v", err)
	}
}

func TestAuthorizeRejectsMalformedToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, authenticatorStub{})
	if _, err := manager.Authorize(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
