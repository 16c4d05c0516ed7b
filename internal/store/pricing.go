package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"celustock/backend/internal/domain"
)

// PriceSale fills unit prices, profit snapshots, item count and the total of a
// sale from the catalog rows of its units. An operator override replaces the
// computed total without being checked against catalog prices.
func PriceSale(sale *domain.Sale, products map[string]domain.Product) error {
	if sale.ExchangeRate.Sign() <= 0 && sale.OverrideTotal == nil {
		return Validation("no exchange rate configured")
	}

	total := decimal.Zero
	for i := range sale.Items {
		item := &sale.Items[i]
		product, ok := products[item.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %s for unit %s", ErrNotFound, item.ProductID, item.ScanCode)
		}
		item.UnitPriceBOB = product.FinalPrice(sale.ExchangeRate)
		item.ProfitBOB = product.ProfitBOB
		if item.DeviceCodes == nil {
			item.DeviceCodes = []string{}
		}
		total = total.Add(item.UnitPriceBOB)
	}

	sale.ItemCount = len(sale.Items)
	sale.TotalBOB = total
	sale.TotalOverridden = false
	if sale.OverrideTotal != nil {
		if sale.OverrideTotal.Sign() < 0 {
			return Validation("total override must not be negative")
		}
		sale.TotalBOB = sale.OverrideTotal.Round(2)
		sale.TotalOverridden = true
	}
	return nil
}

// CheckUnitStates compares locked units against the expected store and returns
// a ConflictError naming every unit that cannot take part in the batch.
func CheckUnitStates(scanCodes []string, units map[string]domain.Unit, expectedStoreID string, wrongStoreReason string) error {
	conflicts := make([]UnitConflict, 0)
	for _, code := range scanCodes {
		unit, ok := units[code]
		switch {
		case !ok:
			conflicts = append(conflicts, UnitConflict{ScanCode: code, Reason: ReasonNotFound})
		case unit.Sold:
			conflicts = append(conflicts, UnitConflict{ScanCode: code, Reason: ReasonSold})
		case unit.StoreID != expectedStoreID:
			conflicts = append(conflicts, UnitConflict{ScanCode: code, Reason: wrongStoreReason})
		}
	}
	if len(conflicts) > 0 {
		return &ConflictError{Units: conflicts}
	}
	return nil
}

// CheckBatchCodes rejects empty or repeated scan codes inside one batch.
func CheckBatchCodes(scanCodes []string) error {
	if len(scanCodes) == 0 {
		return Validation("batch must contain at least one unit")
	}
	seen := make(map[string]struct{}, len(scanCodes))
	for _, code := range scanCodes {
		if code == "" {
			return Validation("scan code is required")
		}
		if _, ok := seen[code]; ok {
			return Validation("scan code %s appears more than once in the batch", code)
		}
		seen[code] = struct{}{}
	}
	return nil
}
