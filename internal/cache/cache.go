package cache

import (
	"context"
	"errors"
	"time"

	"celustock/backend/internal/domain"
)

var ErrLockNotObtained = errors.New("lock not obtained")

// ReportCache holds dashboards of closed periods. It is never the source of
// truth for stock or sales.
type ReportCache interface {
	GetDashboard(ctx context.Context, key string) (*domain.DashboardReport, bool, error)
	SetDashboard(ctx context.Context, key string, value *domain.DashboardReport, ttl time.Duration) error
}

// Locker serializes batch submissions across server instances. The returned
// func releases the lock.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type NoopReportCache struct{}

func (NoopReportCache) GetDashboard(_ context.Context, _ string) (*domain.DashboardReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetDashboard(_ context.Context, _ string, _ *domain.DashboardReport, _ time.Duration) error {
	return nil
}

type NoopLocker struct{}

func (NoopLocker) Obtain(_ context.Context, _ string, _ time.Duration) (func(), error) {
	return func() {}, nil
}
