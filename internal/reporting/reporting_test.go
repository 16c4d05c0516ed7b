package reporting

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/xuri/excelize/v2"

	"celustock/backend/internal/domain"
)

type rowSourceStub struct {
	rows  []domain.SaleReportRow
	calls int
	err   error
}

func (s *rowSourceStub) ListSaleReportRows(_ context.Context, _ string, _ time.Time, _ time.Time) ([]domain.SaleReportRow, error) {
	s.calls++
	return s.rows, s.err
}

type memoryReportCache struct {
	items map[string]*domain.DashboardReport
	sets  int
}

func (c *memoryReportCache) GetDashboard(_ context.Context, key string) (*domain.DashboardReport, bool, error) {
	report, ok := c.items[key]
	return report, ok, nil
}

func (c *memoryReportCache) SetDashboard(_ context.Context, key string, value *domain.DashboardReport, _ time.Duration) error {
	c.items[key] = value
	c.sets++
	return nil
}

func row(saleID string, soldAt string, total int64, productID string, position int, profit int64) domain.SaleReportRow {
	return domain.SaleReportRow{
		SaleID:    saleID,
		SoldAt:    soldAt,
		TotalBOB:  decimal.NewFromInt(total),
		ProductID: productID,
		Position:  position,
		ProfitBOB: decimal.NewFromInt(profit),
	}
}

func TestAggregateCountsSaleTotalOncePerSale(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rows := []domain.SaleReportRow{
		row("sale-1", "2025-03-10T12:00:00Z", 1500, "prod-a", 1, 50),
		row("sale-1", "2025-03-10T12:00:00Z", 1500, "prod-b", 2, 70),
		row("sale-2", "2025-03-11 09:30:00+00", 800, "prod-a", 1, 50),
	}

	report := Aggregate(2025, "", rows, nil, logger)

	march := report.Months[2]
	if !march.TotalSales.Equal(decimal.NewFromInt(2300)) {
		t.Fatalf("expected march sales 2300, got %s", march.TotalSales)
	}
	if !march.TotalIncome.Equal(decimal.NewFromInt(170)) {
		t.Fatalf("expected march income 170, got %s", march.TotalIncome)
	}
	if march.Units != 3 || report.UnitsSold != 3 {
		t.Fatalf("expected 3 units, got month=%d year=%d", march.Units, report.UnitsSold)
	}
	if report.SalesCount != 2 {
		t.Fatalf("expected 2 sales, got %d", report.SalesCount)
	}
	if len(report.Months) != 12 || report.Months[0].Month != 1 || report.Months[11].Month != 12 {
		t.Fatalf("expected 12 month buckets")
	}
	if !report.Months[0].TotalSales.IsZero() {
		t.Fatalf("expected empty january")
	}
}

func TestAggregateSkipsMalformedTimestamps(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rows := []domain.SaleReportRow{
		row("sale-1", "not-a-date", 900, "prod-a", 1, 40),
		row("sale-2", "2025-07-01", 500, "prod-a", 1, 40),
	}

	report := Aggregate(2025, "store-1", rows, nil, logger)

	if report.SkippedRows != 1 {
		t.Fatalf("expected 1 skipped row, got %d", report.SkippedRows)
	}
	if !report.TotalSales.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected only the readable sale counted, got %s", report.TotalSales)
	}
	if len(hook.Entries) != 1 || hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("expected one warning, got %d entries", len(hook.Entries))
	}
	if hook.LastEntry().Data["sale_id"] != "sale-1" {
		t.Fatalf("expected skipped sale id in log fields, got %+v", hook.LastEntry().Data)
	}
}

func TestAggregateTopProductsKeepsFirstSeenOrderOnTies(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rows := []domain.SaleReportRow{
		row("s1", "2025-01-05T10:00:00Z", 100, "p-c", 1, 1),
		row("s2", "2025-01-06T10:00:00Z", 100, "p-a", 1, 1),
		row("s3", "2025-01-07T10:00:00Z", 100, "p-b", 1, 1),
		row("s4", "2025-01-08T10:00:00Z", 100, "p-d", 1, 1),
		row("s5", "2025-01-09T10:00:00Z", 100, "p-e", 1, 1),
		row("s6", "2025-01-10T10:00:00Z", 100, "p-f", 1, 1),
		row("s7", "2025-02-01T10:00:00Z", 100, "p-f", 1, 1),
	}
	names := map[string]string{"p-f": "Phone F"}

	report := Aggregate(2025, "", rows, names, logger)

	if len(report.TopProducts) != 5 {
		t.Fatalf("expected top 5, got %d", len(report.TopProducts))
	}
	want := []string{"p-f", "p-c", "p-a", "p-b", "p-d"}
	for i, productID := range want {
		if report.TopProducts[i].ProductID != productID {
			t.Fatalf("rank %d: expected %s, got %s", i+1, productID, report.TopProducts[i].ProductID)
		}
	}
	if report.TopProducts[0].Name != "Phone F" || report.TopProducts[0].Units != 2 {
		t.Fatalf("unexpected leader: %+v", report.TopProducts[0])
	}
	if report.TopProducts[1].Name != "p-c" {
		t.Fatalf("expected product id as fallback name, got %q", report.TopProducts[1].Name)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rows := []domain.SaleReportRow{
		row("s1", "2025-04-05T10:00:00Z", 300, "p-a", 1, 30),
		row("s1", "2025-04-05T10:00:00Z", 300, "p-b", 2, 20),
		row("s2", "2025-05-05T10:00:00Z", 200, "p-b", 1, 20),
	}

	first := Aggregate(2025, "", rows, nil, logger)
	second := Aggregate(2025, "", rows, nil, logger)

	for i := range first.Months {
		if !first.Months[i].TotalSales.Equal(second.Months[i].TotalSales) || first.Months[i].Units != second.Months[i].Units {
			t.Fatalf("month %d differs between runs", i+1)
		}
	}
	for i := range first.TopProducts {
		if first.TopProducts[i] != second.TopProducts[i] {
			t.Fatalf("ranking differs at %d", i)
		}
	}
}

func TestDashboardCachesOnlyClosedYears(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reportCache := &memoryReportCache{items: map[string]*domain.DashboardReport{}}
	engine := NewEngine(reportCache, time.Minute, logger)
	engine.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	source := &rowSourceStub{rows: []domain.SaleReportRow{
		row("s1", "2025-04-05T10:00:00Z", 300, "p-a", 1, 30),
	}}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.Dashboard(ctx, source, 2025, "", nil); err != nil {
			t.Fatalf("dashboard: %v", err)
		}
	}
	if source.calls != 1 || reportCache.sets != 1 {
		t.Fatalf("expected closed year served from cache, calls=%d sets=%d", source.calls, reportCache.sets)
	}

	source.rows = nil
	for i := 0; i < 2; i++ {
		if _, err := engine.Dashboard(ctx, source, 2026, "store-1", nil); err != nil {
			t.Fatalf("dashboard: %v", err)
		}
	}
	if source.calls != 3 || reportCache.sets != 1 {
		t.Fatalf("expected open year recomputed, calls=%d sets=%d", source.calls, reportCache.sets)
	}
}

func TestDashboardPropagatesSourceErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	engine := NewEngine(nil, 0, logger)
	source := &rowSourceStub{err: errors.New("boom")}

	if _, err := engine.Dashboard(context.Background(), source, 2025, "", nil); err == nil {
		t.Fatalf("expected source error")
	}
}

func TestWriteXLSXProducesReadableWorkbook(t *testing.T) {
	logger, _ := test.NewNullLogger()
	report := Aggregate(2025, "", []domain.SaleReportRow{
		row("s1", "2025-02-05T10:00:00Z", 750, "p-a", 1, 50),
	}, map[string]string{"p-a": "Galaxy A15"}, logger)

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, report); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	month, err := f.GetCellValue(monthsSheet, "A3")
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if month != "February" {
		t.Fatalf("expected February on row 3, got %q", month)
	}
	name, err := f.GetCellValue(topSheet, "B2")
	if err != nil {
		t.Fatalf("read top product: %v", err)
	}
	if name != "Galaxy A15" {
		t.Fatalf("expected top product name, got %q", name)
	}
}
