package service

import (
	"context"
	"fmt"
	"strings"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

// AssignUnits registers a batch of scan codes as stock of one product at one
// store. Scan codes are unique across every store, so a code already in the
// ledger rejects the whole batch with ErrDuplicate.
func (s *Service) AssignUnits(ctx context.Context, req domain.UnitAssignRequest) (domain.UnitAssignResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.UnitAssignResponse{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.ScanCodes = trimCodes(req.ScanCodes)
	if err := s.validateRequest(req); err != nil {
		return domain.UnitAssignResponse{}, err
	}
	if err := store.CheckBatchCodes(req.ScanCodes); err != nil {
		return domain.UnitAssignResponse{}, err
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.UnitAssignResponse{}, fmt.Errorf("product %s: %w", req.ProductID, err)
	}
	if !product.Active {
		return domain.UnitAssignResponse{}, store.Validation("product %s is inactive", product.ID)
	}

	units := make([]domain.Unit, 0, len(req.ScanCodes))
	for _, code := range req.ScanCodes {
		units = append(units, domain.Unit{ScanCode: code, ProductID: req.ProductID, StoreID: req.StoreID})
	}
	created, err := s.repo.AssignUnits(ctx, units)
	if err != nil {
		return domain.UnitAssignResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "units_assign", "product", req.ProductID, fmt.Sprintf("units=%d", len(created)))
	return domain.UnitAssignResponse{Units: created}, nil
}

func (s *Service) AssignUnit(ctx context.Context, productID string, storeID string, scanCode string) (domain.Unit, error) {
	resp, err := s.AssignUnits(ctx, domain.UnitAssignRequest{
		ProductID: productID,
		StoreID:   storeID,
		ScanCodes: []string{scanCode},
	})
	if err != nil {
		return domain.Unit{}, err
	}
	return resp.Units[0], nil
}

// QueryUnits reads the ledger live. Restricted employees only see their home
// store.
func (s *Service) QueryUnits(ctx context.Context, filter domain.UnitFilter) ([]domain.Unit, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := scopeStore(actor, filter.StoreID)
	if err != nil {
		return nil, err
	}
	filter.StoreID = scope
	filter.ProductID = strings.TrimSpace(filter.ProductID)
	filter.ScanCodes = store.UniqueStrings(trimCodes(filter.ScanCodes))
	if filter.Limit < 1 || filter.Limit > 1000 {
		filter.Limit = 500
	}
	return s.repo.QueryUnits(ctx, filter)
}

func (s *Service) GetUnit(ctx context.Context, scanCode string) (domain.Unit, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Unit{}, err
	}
	unit, err := s.repo.GetUnit(ctx, strings.TrimSpace(scanCode))
	if err != nil {
		return domain.Unit{}, err
	}
	if _, err := scopeStore(actor, unit.StoreID); err != nil {
		return domain.Unit{}, err
	}
	return *unit, nil
}

// DeleteUnit is the manual correction path for a mistyped scan code. Sold or
// moved units are part of the history and are refused with ErrConflict.
func (s *Service) DeleteUnit(ctx context.Context, scanCode string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	scanCode = strings.TrimSpace(scanCode)
	if scanCode == "" {
		return store.Validation("scan code is required")
	}

	unit, err := s.repo.GetUnit(ctx, scanCode)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUnit(ctx, scanCode); err != nil {
		return err
	}

	s.logAudit(ctx, unit.StoreID, "unit_delete", "unit", scanCode, "product="+unit.ProductID)
	return nil
}

// DeassignUnits removes a product's unsold, never moved units from a store.
// Units that appear in a sale or transfer are kept and reported as retained.
func (s *Service) DeassignUnits(ctx context.Context, storeID string, productID string) (domain.DeassignResult, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.DeassignResult{}, err
	}
	storeID = strings.TrimSpace(storeID)
	productID = strings.TrimSpace(productID)
	if storeID == "" || productID == "" {
		return domain.DeassignResult{}, store.Validation("store and product are required")
	}
	if _, err := s.repo.GetStore(ctx, storeID); err != nil {
		return domain.DeassignResult{}, err
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return domain.DeassignResult{}, err
	}

	result, err := s.repo.DeassignUnits(ctx, storeID, productID)
	if err != nil {
		return domain.DeassignResult{}, err
	}

	s.logAudit(ctx, storeID, "units_deassign", "product", productID, fmt.Sprintf("deleted=%d,retained=%d", result.Deleted, result.Retained))
	return result, nil
}
