package service

import (
	"context"
	"strings"
	"time"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

// Dashboard aggregates a calendar year of sales. Year 0 means the current
// year; an empty storeID covers every store.
func (s *Service) Dashboard(ctx context.Context, year int, storeID string) (domain.DashboardReport, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.DashboardReport{}, err
	}
	if year == 0 {
		year = s.now().UTC().Year()
	}
	if year < 2000 || year > 9999 {
		return domain.DashboardReport{}, store.Validation("year %d out of range", year)
	}
	storeID = strings.TrimSpace(storeID)
	if storeID != "" {
		if _, err := s.repo.GetStore(ctx, storeID); err != nil {
			return domain.DashboardReport{}, err
		}
	}

	products, err := s.repo.ListProducts(ctx, true)
	if err != nil {
		return domain.DashboardReport{}, err
	}
	names := make(map[string]string, len(products))
	for _, product := range products {
		names[product.ID] = product.Name
	}

	report, err := s.reporter.Dashboard(ctx, s.repo, year, storeID, names)
	if err != nil {
		return domain.DashboardReport{}, err
	}
	return *report, nil
}

// ListAuditLogs returns the audit trail of one UTC day, the last 24 hours when
// date is empty.
func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		day, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		from = day
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, strings.TrimSpace(storeID), from, to, limit)
}
