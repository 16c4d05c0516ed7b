package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

// AvailableCount counts unsold units of a product. An empty storeID means all
// stores and is only honoured for admins. Counts are never stored.
func (s *Service) AvailableCount(ctx context.Context, productID string, storeID string) (domain.StockCountResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	scope, err := scopeStore(actor, storeID)
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.StockCountResponse{}, store.Validation("product id is required")
	}

	count, err := s.repo.CountAvailable(ctx, productID, scope)
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	return domain.StockCountResponse{ProductID: productID, StoreID: scope, Available: count}, nil
}

// StockByProduct lists active products with their available count and current
// selling price.
func (s *Service) StockByProduct(ctx context.Context, storeID string) (domain.StockListResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockListResponse{}, err
	}
	scope, err := scopeStore(actor, storeID)
	if err != nil {
		return domain.StockListResponse{}, err
	}

	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return domain.StockListResponse{}, err
	}
	counts, err := s.repo.CountAvailableByProduct(ctx, scope)
	if err != nil {
		return domain.StockListResponse{}, err
	}
	rate, err := s.currentRate(ctx)
	if err != nil {
		return domain.StockListResponse{}, err
	}

	resp := domain.StockListResponse{
		StoreID:      scope,
		ExchangeRate: rate,
		Products:     make([]domain.ProductStock, 0, len(products)),
	}
	for _, product := range products {
		price := decimal.Zero
		if rate.Sign() > 0 {
			price = product.FinalPrice(rate)
		}
		resp.Products = append(resp.Products, domain.ProductStock{
			Product:       product,
			Available:     counts[product.ID],
			FinalPriceBOB: price,
		})
	}
	return resp, nil
}

// StockByStore breaks a product's available units down per store, or every
// product's when productID is empty.
func (s *Service) StockByStore(ctx context.Context, productID string) ([]domain.StoreStock, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountAvailableByStore(ctx, strings.TrimSpace(productID))
	if err != nil {
		return nil, err
	}

	result := make([]domain.StoreStock, 0, len(stores))
	for _, st := range stores {
		result = append(result, domain.StoreStock{
			StoreID:   st.ID,
			StoreName: st.Name,
			Available: counts[st.ID],
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Available > result[j].Available
	})
	return result, nil
}

// currentRate returns zero when no rate was ever recorded.
func (s *Service) currentRate(ctx context.Context) (decimal.Decimal, error) {
	latest, err := s.repo.LatestExchangeRate(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return latest.Rate, nil
}
