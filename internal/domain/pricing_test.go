package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFinalPriceAppliesRateAndProfit(t *testing.T) {
	got := FinalPrice(decimal.NewFromInt(100), decimal.RequireFromString("7.0"), decimal.NewFromInt(50))
	if !got.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("expected 750, got %s", got)
	}
}

func TestFinalPriceRoundsToCents(t *testing.T) {
	product := Product{CostPrice: decimal.RequireFromString("199.99"), ProfitBOB: decimal.RequireFromString("120.5")}
	got := product.FinalPrice(decimal.RequireFromString("6.96"))
	// 199.99 * 6.96 = 1391.9304
	if got.String() != "1512.43" {
		t.Fatalf("expected 1512.43, got %s", got)
	}
}
