package service

import (
	"context"
	"fmt"
	"strings"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validateRequest(req); err != nil {
		return domain.Supplier{}, err
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "", "supplier_create", "supplier", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	req.StoreID = strings.TrimSpace(req.StoreID)
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
	}
	if err := s.validateRequest(req); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	seen := make(map[string]struct{}, len(req.Items))
	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if _, ok := seen[item.ProductID]; ok {
			return domain.PurchaseOrderResponse{}, store.Validation("product %s appears more than once", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		if item.UnitCost.Sign() < 0 {
			return domain.PurchaseOrderResponse{}, store.Validation("unit cost must not be negative")
		}
		item.UnitCost = item.UnitCost.Round(2)
		items = append(items, item)
	}

	saved, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		ID:         xid.New("po"),
		StoreID:    req.StoreID,
		SupplierID: req.SupplierID,
		Status:     domain.PurchaseOrderDraft,
		CreatedBy:  actor.EmployeeID,
		CreatedAt:  s.now().UTC(),
		Items:      items,
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, saved.StoreID, "purchase_order_create", "purchase_order", saved.ID, fmt.Sprintf("supplier=%s,items=%d", saved.SupplierID, len(saved.Items)))
	return domain.PurchaseOrderResponse{PurchaseOrder: *saved}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.GetPurchaseOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != domain.PurchaseOrderDraft && status != domain.PurchaseOrderReceived {
		return nil, store.Validation("unknown status %q", status)
	}
	if limit < 1 || limit > 500 {
		limit = 200
	}
	return s.repo.ListPurchaseOrders(ctx, strings.TrimSpace(storeID), status, limit)
}

// ReceivePurchaseOrder books the delivered units into the order's store. Every
// ordered unit needs exactly one scan code; the units are assigned and the
// order is marked received in one transaction.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.PurchaseOrderResponse{}, store.Validation("purchase order id is required")
	}
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
		req.Items[i].ScanCodes = trimCodes(req.Items[i].ScanCodes)
	}
	if err := s.validateRequest(req); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	if po.Status == domain.PurchaseOrderReceived {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: purchase order %s already received", store.ErrConflict, id)
	}

	ordered := make(map[string]int, len(po.Items))
	for _, item := range po.Items {
		ordered[item.ProductID] += item.Qty
	}
	received := make(map[string]int, len(req.Items))
	units := make([]domain.Unit, 0)
	codes := make([]string, 0)
	for _, item := range req.Items {
		if _, ok := ordered[item.ProductID]; !ok {
			return domain.PurchaseOrderResponse{}, store.Validation("product %s is not on purchase order %s", item.ProductID, id)
		}
		received[item.ProductID] += len(item.ScanCodes)
		for _, code := range item.ScanCodes {
			codes = append(codes, code)
			units = append(units, domain.Unit{ScanCode: code, ProductID: item.ProductID, StoreID: po.StoreID})
		}
	}
	for productID, qty := range ordered {
		if received[productID] != qty {
			return domain.PurchaseOrderResponse{}, store.Validation("product %s: ordered %d units, received %d scan codes", productID, qty, received[productID])
		}
	}
	if err := store.CheckBatchCodes(codes); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	saved, err := s.repo.ReceivePurchaseOrder(ctx, id, actor.EmployeeID, s.now().UTC(), units)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, saved.StoreID, "purchase_order_receive", "purchase_order", saved.ID, fmt.Sprintf("units=%d", len(units)))
	return domain.PurchaseOrderResponse{PurchaseOrder: *saved, Units: units}, nil
}
