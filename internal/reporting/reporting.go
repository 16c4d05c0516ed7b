package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"celustock/backend/internal/cache"
	"celustock/backend/internal/domain"
)

const topProductsLimit = 5

// timestampLayouts are the encodings sale timestamps arrive in from the
// repositories: RFC 3339 from memory and SQLite, the Postgres text cast, and
// the bare forms left behind by older imports.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// SalesSource reads the sale lines of a period ordered by sale creation,
// sale id and line position.
type SalesSource interface {
	ListSaleReportRows(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SaleReportRow, error)
}

type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewEngine(reportCache cache.ReportCache, cacheTTL time.Duration, logger logrus.FieldLogger) *Engine {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		cache:    reportCache,
		cacheTTL: cacheTTL,
		logger:   logger.WithField("module", "reporting"),
		now:      time.Now,
	}
}

// Dashboard builds the yearly dashboard for one store, or for every store when
// storeID is empty. Only years that have already ended are cached.
func (e *Engine) Dashboard(ctx context.Context, source SalesSource, year int, storeID string, productNames map[string]string) (*domain.DashboardReport, error) {
	if year < 1 {
		return nil, fmt.Errorf("invalid report year %d", year)
	}

	closed := year < e.now().UTC().Year()
	cacheKey := buildCacheKey(year, storeID)
	if closed {
		cached, ok, err := e.cache.GetDashboard(ctx, cacheKey)
		if err != nil {
			e.logger.WithError(err).WithField("key", cacheKey).Warn("dashboard cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	rows, err := source.ListSaleReportRows(ctx, storeID, from, to)
	if err != nil {
		return nil, err
	}

	report := Aggregate(year, storeID, rows, productNames, e.logger)

	if closed {
		if err := e.cache.SetDashboard(ctx, cacheKey, report, e.cacheTTL); err != nil {
			e.logger.WithError(err).WithField("key", cacheKey).Warn("dashboard cache write failed")
		}
	}
	return report, nil
}

// Aggregate folds sale lines into monthly buckets. Each sale total counts once,
// income is the sum of the line profit snapshots, and products are ranked by
// units sold. Equal counts keep the order in which the products were first
// seen in rows. Rows with an unreadable timestamp are skipped and logged.
func Aggregate(year int, storeID string, rows []domain.SaleReportRow, productNames map[string]string, logger logrus.FieldLogger) *domain.DashboardReport {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	report := &domain.DashboardReport{
		Year:        year,
		StoreID:     storeID,
		Months:      make([]domain.MonthSummary, 12),
		TotalSales:  decimal.Zero,
		TotalIncome: decimal.Zero,
		TopProducts: []domain.TopProduct{},
	}
	for i := range report.Months {
		report.Months[i] = domain.MonthSummary{
			Month:       i + 1,
			TotalSales:  decimal.Zero,
			TotalIncome: decimal.Zero,
		}
	}

	countedSales := make(map[string]struct{})
	productOrder := make([]string, 0)
	productUnits := make(map[string]int)

	for _, row := range rows {
		soldAt, ok := parseTimestamp(row.SoldAt)
		if !ok || soldAt.Year() != year {
			logger.WithFields(logrus.Fields{
				"sale_id":   row.SaleID,
				"position":  row.Position,
				"timestamp": row.SoldAt,
			}).Warn("skipping sale line with unusable timestamp")
			report.SkippedRows++
			continue
		}

		month := &report.Months[soldAt.Month()-1]
		if _, seen := countedSales[row.SaleID]; !seen {
			countedSales[row.SaleID] = struct{}{}
			month.TotalSales = month.TotalSales.Add(row.TotalBOB)
			report.TotalSales = report.TotalSales.Add(row.TotalBOB)
			report.SalesCount++
		}

		month.TotalIncome = month.TotalIncome.Add(row.ProfitBOB)
		month.Units++
		report.TotalIncome = report.TotalIncome.Add(row.ProfitBOB)
		report.UnitsSold++

		if _, seen := productUnits[row.ProductID]; !seen {
			productOrder = append(productOrder, row.ProductID)
		}
		productUnits[row.ProductID]++
	}

	ranking := make([]domain.TopProduct, 0, len(productOrder))
	for _, productID := range productOrder {
		name := productNames[productID]
		if name == "" {
			name = productID
		}
		ranking = append(ranking, domain.TopProduct{
			ProductID: productID,
			Name:      name,
			Units:     productUnits[productID],
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Units > ranking[j].Units
	})
	if len(ranking) > topProductsLimit {
		ranking = ranking[:topProductsLimit]
	}
	report.TopProducts = ranking

	return report
}

// parseTimestamp returns the instant in UTC so month buckets line up with the
// UTC year bounds used to query the rows.
func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func buildCacheKey(year int, storeID string) string {
	if storeID == "" {
		storeID = "all"
	}
	return fmt.Sprintf("celustock:dashboard:%d:%s", year, storeID)
}
