package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"celustock/backend/internal/domain"
)

// Authenticator verifies employee credentials and resolves the stored
// identity behind a token subject.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, password string) (domain.Employee, error)
	ActorForEmployee(ctx context.Context, employeeID string) (domain.Actor, error)
}

var ErrInvalidToken = errors.New("invalid or expired token")

type AuthManager struct {
	secret        []byte
	tokenTTL      time.Duration
	authenticator Authenticator
}

type employeeClaims struct {
	jwtlib.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
	StoreID  string `json:"store_id"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, authenticator Authenticator) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:        []byte(secret),
		tokenTTL:      tokenTTL,
		authenticator: authenticator,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	employee, err := a.authenticator.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(employee, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		EmployeeID:  employee.ID,
		Role:        employee.Role,
		StoreID:     employee.StoreID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &employeeClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Role != domain.RoleAdmin && claims.Role != domain.RoleSales {
		return domain.Actor{}, fmt.Errorf("%w: unknown role", ErrInvalidToken)
	}

	return domain.Actor{
		EmployeeID: sub,
		Username:   claims.Username,
		Role:       claims.Role,
		StoreID:    claims.StoreID,
	}, nil
}

// Authorize parses a bearer token and loads the employee it names. Role and
// store come from the stored employee, never from the token claims.
func (a *AuthManager) Authorize(ctx context.Context, tokenStr string) (domain.Actor, error) {
	claimed, err := a.ParseToken(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	return a.authenticator.ActorForEmployee(ctx, claimed.EmployeeID)
}

func (a *AuthManager) sign(employee domain.Employee, expiresAt time.Time) (string, error) {
	claims := employeeClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   employee.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "celustock",
		},
		Username: employee.Username,
		Role:     employee.Role,
		StoreID:  employee.StoreID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
