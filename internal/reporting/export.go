package reporting

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"celustock/backend/internal/domain"
)

const (
	monthsSheet = "Months"
	topSheet    = "Top products"
)

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// WriteXLSX renders the dashboard as a workbook with the monthly buckets on the
// first sheet and the product ranking on the second.
func WriteXLSX(w io.Writer, report *domain.DashboardReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", monthsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(topSheet); err != nil {
		return err
	}

	if err := setRow(f, monthsSheet, 1, "Month", "Total sales (BOB)", "Income (BOB)", "Units"); err != nil {
		return err
	}
	for i, month := range report.Months {
		name := fmt.Sprint(month.Month)
		if month.Month >= 1 && month.Month <= 12 {
			name = monthNames[month.Month-1]
		}
		if err := setRow(f, monthsSheet, i+2, name, month.TotalSales.InexactFloat64(), month.TotalIncome.InexactFloat64(), month.Units); err != nil {
			return err
		}
	}
	totalRow := len(report.Months) + 2
	if err := setRow(f, monthsSheet, totalRow, "Total", report.TotalSales.InexactFloat64(), report.TotalIncome.InexactFloat64(), report.UnitsSold); err != nil {
		return err
	}
	if err := setRow(f, monthsSheet, totalRow+1, "Sales", report.SalesCount); err != nil {
		return err
	}

	if err := setRow(f, topSheet, 1, "Rank", "Product", "Units"); err != nil {
		return err
	}
	for i, top := range report.TopProducts {
		if err := setRow(f, topSheet, i+2, i+1, top.Name, top.Units); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}
