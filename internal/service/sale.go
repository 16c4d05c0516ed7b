package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

// CreateSale sells a batch of units at one store. Prices come from the catalog
// and the latest exchange rate, read inside the same transaction that marks
// the units sold. An operator override replaces the computed total as given.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	req.StoreID = strings.TrimSpace(req.StoreID)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if !actor.IsAdmin() && req.StoreID != actor.StoreID {
		return domain.Sale{}, store.Permission("employee %s may only sell at store %s", actor.EmployeeID, actor.StoreID)
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Sale{}, err
	}
	if req.TotalOverrideBOB != nil && req.TotalOverrideBOB.Sign() < 0 {
		return domain.Sale{}, store.Validation("total override must not be negative")
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	codes := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		code := strings.TrimSpace(item.ScanCode)
		deviceCodes := trimCodes(item.DeviceCodes)
		if len(store.UniqueStrings(deviceCodes)) != len(deviceCodes) {
			return domain.Sale{}, store.Validation("device codes of unit %s must be non-empty and distinct", code)
		}
		codes = append(codes, code)
		items = append(items, domain.SaleItem{
			ScanCode:    code,
			DeviceCodes: deviceCodes,
		})
	}
	if err := store.CheckBatchCodes(codes); err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		StoreID:       req.StoreID,
		EmployeeID:    actor.EmployeeID,
		PaymentMethod: req.PaymentMethod,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CreatedAt:     s.now().UTC(),
		Items:         items,
		OverrideTotal: req.TotalOverrideBOB,
	}

	var created *domain.Sale
	err = s.withStoreLock(ctx, sale.StoreID, func() error {
		var createErr error
		created, createErr = s.repo.CreateSale(ctx, sale)
		return createErr
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"sale_id":    created.ID,
		"store_id":   created.StoreID,
		"units":      created.ItemCount,
		"total_bob":  created.TotalBOB.String(),
		"overridden": created.TotalOverridden,
	}).Info("sale committed")
	s.logAudit(ctx, created.StoreID, "sale_create", "sale", created.ID, fmt.Sprintf("units=%d,total=%s,overridden=%t,rate=%s", created.ItemCount, created.TotalBOB, created.TotalOverridden, created.ExchangeRate))
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	if _, err := scopeStore(actor, sale.StoreID); err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.MovementFilter) ([]domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := scopeStore(actor, filter.StoreID)
	if err != nil {
		return nil, err
	}
	filter.StoreID = scope
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListSales(ctx, filter)
}

// Receipt denormalizes a sale for document rendering. Product and employee
// rows that were removed since the sale fall back to their ids.
func (s *Service) Receipt(ctx context.Context, saleID string) (domain.SaleReceipt, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return domain.SaleReceipt{}, err
	}

	receipt := domain.SaleReceipt{
		Sale:         sale,
		EmployeeName: sale.EmployeeID,
		Lines:        make([]domain.ReceiptLine, 0, len(sale.Items)),
	}

	st, err := s.repo.GetStore(ctx, sale.StoreID)
	if err != nil {
		return domain.SaleReceipt{}, err
	}
	receipt.StoreName = st.Name
	receipt.StoreAddress = st.Address
	receipt.StorePhone = st.Phone

	employee, err := s.repo.GetEmployee(ctx, sale.EmployeeID)
	switch {
	case err == nil:
		receipt.EmployeeName = employee.FullName
	case !errors.Is(err, store.ErrNotFound):
		return domain.SaleReceipt{}, err
	}

	products := make(map[string]*domain.Product)
	for _, item := range sale.Items {
		product, ok := products[item.ProductID]
		if !ok {
			product, err = s.repo.GetProduct(ctx, item.ProductID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return domain.SaleReceipt{}, err
			}
			products[item.ProductID] = product
		}

		line := domain.ReceiptLine{
			ScanCode:     item.ScanCode,
			ProductID:    item.ProductID,
			ProductName:  item.ProductID,
			DeviceCodes:  item.DeviceCodes,
			UnitPriceBOB: item.UnitPriceBOB,
		}
		if product != nil {
			line.ProductName = product.Name
			line.Brand = product.Brand
			line.Color = product.Color
			line.Specs = product.Specs
		}
		receipt.Lines = append(receipt.Lines, line)
	}
	return receipt, nil
}
