package service

import (
	"context"
	"fmt"
	"strings"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, includeInactive && actor.IsAdmin())
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)
	req.Color = strings.TrimSpace(req.Color)
	req.Specs = strings.TrimSpace(req.Specs)
	if err := s.validateRequest(req); err != nil {
		return domain.Product{}, err
	}
	if req.CostPrice.Sign() < 0 || req.ProfitBOB.Sign() < 0 {
		return domain.Product{}, store.Validation("cost price and profit must not be negative")
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:        xid.New("prod"),
		Name:      req.Name,
		Brand:     req.Brand,
		Color:     req.Color,
		Specs:     req.Specs,
		CostPrice: req.CostPrice.Round(2),
		ProfitBOB: req.ProfitBOB.Round(2),
		Active:    true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "", "product_create", "product", created.ID, fmt.Sprintf("name=%s,cost=%s,profit=%s", created.Name, created.CostPrice, created.ProfitBOB))
	return *created, nil
}

// UpdateProduct applies a partial update. Setting active=false is the soft
// delete: units stay in the ledger and past sales keep their snapshots.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.Validation("name must not be empty")
		}
		updated.Name = name
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Color != nil {
		updated.Color = strings.TrimSpace(*req.Color)
	}
	if req.Specs != nil {
		updated.Specs = strings.TrimSpace(*req.Specs)
	}
	if req.CostPrice != nil {
		if req.CostPrice.Sign() < 0 {
			return domain.Product{}, store.Validation("cost price must not be negative")
		}
		updated.CostPrice = req.CostPrice.Round(2)
	}
	if req.ProfitBOB != nil {
		if req.ProfitBOB.Sign() < 0 {
			return domain.Product{}, store.Validation("profit must not be negative")
		}
		updated.ProfitBOB = req.ProfitBOB.Round(2)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "", "product_update", "product", saved.ID, fmt.Sprintf("cost=%s,profit=%s,active=%t", saved.CostPrice, saved.ProfitBOB, saved.Active))
	return *saved, nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListStores(ctx)
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validateRequest(req); err != nil {
		return domain.Store{}, err
	}

	created, err := s.repo.CreateStore(ctx, domain.Store{
		ID:      xid.New("store"),
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
		Active:  true,
	})
	if err != nil {
		return domain.Store{}, err
	}

	s.logAudit(ctx, created.ID, "store_create", "store", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateStore(ctx context.Context, id string, req domain.StoreUpdateRequest) (domain.Store, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Store{}, err
	}

	existing, err := s.repo.GetStore(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Store{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Store{}, store.Validation("name must not be empty")
		}
		updated.Name = name
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateStore(ctx, updated)
	if err != nil {
		return domain.Store{}, err
	}

	s.logAudit(ctx, saved.ID, "store_update", "store", saved.ID, fmt.Sprintf("name=%s,active=%t", saved.Name, saved.Active))
	return *saved, nil
}

// DeleteStore removes a store with no history, together with its never moved
// units. Stores with sales, transfers, employees or purchase orders can only be
// deactivated.
func (s *Service) DeleteStore(ctx context.Context, id string) (domain.StoreDeleteResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.StoreDeleteResponse{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.StoreDeleteResponse{}, store.Validation("store id is required")
	}

	deleted, err := s.repo.DeleteStore(ctx, id)
	if err != nil {
		return domain.StoreDeleteResponse{}, err
	}

	s.logAudit(ctx, "", "store_delete", "store", id, fmt.Sprintf("units_deleted=%d", deleted))
	return domain.StoreDeleteResponse{StoreID: id, UnitsDeleted: deleted}, nil
}
