package domain

import "github.com/shopspring/decimal"

// FinalPrice converts a foreign-currency cost into the local selling price:
// cost * rate + profit, rounded to cents.
func FinalPrice(cost decimal.Decimal, rate decimal.Decimal, profit decimal.Decimal) decimal.Decimal {
	return cost.Mul(rate).Add(profit).Round(2)
}

func (p Product) FinalPrice(rate decimal.Decimal) decimal.Decimal {
	return FinalPrice(p.CostPrice, rate, p.ProfitBOB)
}
