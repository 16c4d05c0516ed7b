package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"celustock/backend/internal/cache"
	"celustock/backend/internal/domain"
	"celustock/backend/internal/reporting"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	reporter *reporting.Engine
	locker   cache.Locker
	lockTTL  time.Duration
	validate *validator.Validate
	logger   logrus.FieldLogger
	now      func() time.Time
}

func New(repo store.Repository, reporter *reporting.Engine, locker cache.Locker, lockTTL time.Duration, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if reporter == nil {
		reporter = reporting.NewEngine(nil, 0, logger)
	}
	if locker == nil {
		locker = cache.NoopLocker{}
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}

	return &Service{
		repo:     repo,
		reporter: reporter,
		locker:   locker,
		lockTTL:  lockTTL,
		validate: validator.New(),
		logger:   logger.WithField("module", "service"),
		now:      time.Now,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.EmployeeID == "" {
		return domain.Actor{}, store.Permission("authenticated employee required")
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsAdmin() {
		return domain.Actor{}, store.Permission("admin role required")
	}
	return actor, nil
}

// scopeStore resolves the store an actor may read. Admins keep the requested
// scope, where empty means every store. Restricted employees are pinned to
// their home store.
func scopeStore(actor domain.Actor, storeID string) (string, error) {
	storeID = strings.TrimSpace(storeID)
	if actor.IsAdmin() {
		return storeID, nil
	}
	if storeID == "" || storeID == actor.StoreID {
		return actor.StoreID, nil
	}
	return "", store.Permission("employee %s may only access store %s", actor.EmployeeID, actor.StoreID)
}

func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
		}
		return store.Validation("%s", strings.Join(parts, ","))
	}
	return store.Validation("%v", err)
}

// withStoreLock runs fn while holding the distributed batch lock for storeID.
// The database transaction stays authoritative: when the lock cannot be taken
// the batch still runs and only a warning is logged.
func (s *Service) withStoreLock(ctx context.Context, storeID string, fn func() error) error {
	key := "celustock:batch:" + storeID
	release, err := s.locker.Obtain(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("batch lock not obtained, relying on store transaction")
		return fn()
	}
	defer release()
	return fn()
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{EmployeeID: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		StoreID:    storeID,
		ActorID:    actor.EmployeeID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).Warn("failed to write audit log")
	}
}

func trimCodes(codes []string) []string {
	trimmed := make([]string, 0, len(codes))
	for _, code := range codes {
		trimmed = append(trimmed, strings.TrimSpace(code))
	}
	return trimmed
}

func parseDay(raw string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, store.Validation("date must be YYYY-MM-DD")
	}
	return parsed.UTC(), nil
}
