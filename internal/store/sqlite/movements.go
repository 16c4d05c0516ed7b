package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
	"celustock/backend/internal/xid"
)

func (s *Store) CreateTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	if transfer.OriginStoreID == transfer.DestinationStoreID {
		return nil, store.Validation("origin and destination must differ")
	}
	codes := make([]string, 0, len(transfer.Items))
	for _, item := range transfer.Items {
		codes = append(codes, item.ScanCode)
	}
	if err := store.CheckBatchCodes(codes); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range []string{transfer.OriginStoreID, transfer.DestinationStoreID} {
		var ok int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE id = ?`, id).Scan(&ok); err != nil {
			return nil, fmt.Errorf("store %s: %w", id, classify(err))
		}
	}

	units, err := loadUnits(ctx, tx, codes)
	if err != nil {
		return nil, err
	}
	if err := store.CheckUnitStates(codes, units, transfer.OriginStoreID, store.ReasonNotAtOrigin); err != nil {
		return nil, err
	}

	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfers (id, origin_store_id, destination_store_id, employee_id, note, created_at)
		VALUES (?,?,?,?,?,?)
	`, transfer.ID, transfer.OriginStoreID, transfer.DestinationStoreID, transfer.EmployeeID, transfer.Note, formatTime(transfer.CreatedAt))
	if err != nil {
		return nil, classify(err)
	}

	items := make([]domain.TransferItem, 0, len(codes))
	for i, code := range codes {
		item := domain.TransferItem{ScanCode: code, ProductID: units[code].ProductID, Position: i + 1}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transfer_items (transfer_id, position, scan_code, product_id) VALUES (?,?,?,?)
		`, transfer.ID, item.Position, item.ScanCode, item.ProductID); err != nil {
			return nil, classify(err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE units SET store_id = ? WHERE scan_code = ?`, transfer.DestinationStoreID, code); err != nil {
			return nil, classify(err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	transfer.Items = items
	return &transfer, nil
}

const transferColumns = `id, origin_store_id, destination_store_id, employee_id, note, created_at`

func scanTransfer(row rowScanner) (domain.Transfer, error) {
	var t domain.Transfer
	var createdAt string
	if err := row.Scan(&t.ID, &t.OriginStoreID, &t.DestinationStoreID, &t.EmployeeID, &t.Note, &createdAt); err != nil {
		return domain.Transfer{}, classify(err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.Items = []domain.TransferItem{}
	return t, nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	transfer, err := scanTransfer(s.db.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	transfers := []domain.Transfer{transfer}
	if err := s.attachTransferItems(ctx, transfers); err != nil {
		return nil, err
	}
	return &transfers[0], nil
}

func (s *Store) ListTransfers(ctx context.Context, filter domain.MovementFilter) ([]domain.Transfer, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	args := []any{filter.StoreID}
	where, args := rangeClause("created_at", filter.From, filter.To, args)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM transfers
		WHERE (?1 = '' OR origin_store_id = ?1 OR destination_store_id = ?1)`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, classify(err)
	}
	transfers := make([]domain.Transfer, 0, limit)
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, classify(err)
	}
	_ = rows.Close()

	if err := s.attachTransferItems(ctx, transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

func (s *Store) attachTransferItems(ctx context.Context, transfers []domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	ids := make([]string, 0, len(transfers))
	index := make(map[string]int, len(transfers))
	for i, t := range transfers {
		ids = append(ids, t.ID)
		index[t.ID] = i
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, `
		SELECT transfer_id, position, scan_code, product_id
		FROM transfer_items
		WHERE transfer_id IN (`+placeholders+`)
		ORDER BY transfer_id, position
	`, args...)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var transferID string
		var item domain.TransferItem
		if err := rows.Scan(&transferID, &item.Position, &item.ScanCode, &item.ProductID); err != nil {
			return classify(err)
		}
		i := index[transferID]
		transfers[i].Items = append(transfers[i].Items, item)
	}
	return classify(rows.Err())
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	codes := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		codes = append(codes, item.ScanCode)
	}
	if err := store.CheckBatchCodes(codes); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var ok int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE id = ?`, sale.StoreID).Scan(&ok); err != nil {
		return nil, fmt.Errorf("store %s: %w", sale.StoreID, classify(err))
	}

	units, err := loadUnits(ctx, tx, codes)
	if err != nil {
		return nil, err
	}
	if err := store.CheckUnitStates(codes, units, sale.StoreID, store.ReasonNotAtStore); err != nil {
		return nil, err
	}

	if sale.ExchangeRate.IsZero() {
		var rate decimal.Decimal
		err := tx.QueryRowContext(ctx, `SELECT rate FROM exchange_rates ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&rate)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, classify(err)
		}
		sale.ExchangeRate = rate
	}

	products := make(map[string]domain.Product, len(codes))
	for i := range sale.Items {
		productID := units[sale.Items[i].ScanCode].ProductID
		sale.Items[i].ProductID = productID
		sale.Items[i].Position = i + 1
		if _, seen := products[productID]; seen {
			continue
		}
		p, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, productID))
		if err != nil {
			return nil, err
		}
		products[productID] = p
	}
	if err := store.PriceSale(&sale, products); err != nil {
		return nil, err
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	soldAt := formatTime(sale.CreatedAt)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, store_id, employee_id, payment_method, customer_name, customer_phone,
			exchange_rate, total_bob, total_overridden, item_count, created_at
		)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`, sale.ID, sale.StoreID, sale.EmployeeID, sale.PaymentMethod, sale.CustomerName, sale.CustomerPhone,
		sale.ExchangeRate.String(), sale.TotalBOB.String(), sale.TotalOverridden, sale.ItemCount, soldAt)
	if err != nil {
		return nil, classify(err)
	}

	for _, item := range sale.Items {
		deviceCodes, err := encodeDeviceCodes(item.DeviceCodes)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, position, scan_code, product_id, unit_price_bob, profit_bob, device_codes)
			VALUES (?,?,?,?,?,?,?)
		`, sale.ID, item.Position, item.ScanCode, item.ProductID, item.UnitPriceBOB.String(), item.ProfitBOB.String(), deviceCodes); err != nil {
			return nil, classify(err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE units SET sold = 1, sold_at = ? WHERE scan_code = ?`, soldAt, item.ScanCode); err != nil {
			return nil, classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	sale.OverrideTotal = nil
	return &sale, nil
}

const saleColumns = `id, store_id, employee_id, payment_method, customer_name, customer_phone,
	exchange_rate, total_bob, total_overridden, item_count, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var createdAt string
	err := row.Scan(&sale.ID, &sale.StoreID, &sale.EmployeeID, &sale.PaymentMethod, &sale.CustomerName, &sale.CustomerPhone,
		&sale.ExchangeRate, &sale.TotalBOB, &sale.TotalOverridden, &sale.ItemCount, &createdAt)
	if err != nil {
		return domain.Sale{}, classify(err)
	}
	sale.CreatedAt = parseTime(createdAt)
	sale.Items = []domain.SaleItem{}
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	sales := []domain.Sale{sale}
	if err := s.attachSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.MovementFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	args := []any{filter.StoreID}
	where, args := rangeClause("created_at", filter.From, filter.To, args)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE (?1 = '' OR store_id = ?1)`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, classify(err)
	}
	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, classify(err)
	}
	_ = rows.Close()

	if err := s.attachSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) attachSaleItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, position, scan_code, product_id, unit_price_bob, profit_bob, device_codes
		FROM sale_items
		WHERE sale_id IN (`+placeholders+`)
		ORDER BY sale_id, position
	`, args...)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var saleID, deviceCodes string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.Position, &item.ScanCode, &item.ProductID, &item.UnitPriceBOB, &item.ProfitBOB, &deviceCodes); err != nil {
			return classify(err)
		}
		item.DeviceCodes = decodeDeviceCodes(deviceCodes)
		i := index[saleID]
		sales[i].Items = append(sales[i].Items, item)
	}
	return classify(rows.Err())
}

func (s *Store) ListSaleReportRows(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SaleReportRow, error) {
	args := []any{storeID}
	where, args := rangeClause("s.created_at", from, to, args)
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, s.total_bob, si.product_id, si.position, si.profit_bob
		FROM sales s
		JOIN sale_items si ON si.sale_id = s.id
		WHERE (?1 = '' OR s.store_id = ?1)`+where+`
		ORDER BY s.created_at, s.id, si.position
	`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	report := make([]domain.SaleReportRow, 0, 256)
	for rows.Next() {
		var row domain.SaleReportRow
		if err := rows.Scan(&row.SaleID, &row.SoldAt, &row.TotalBOB, &row.ProductID, &row.Position, &row.ProfitBOB); err != nil {
			return nil, classify(err)
		}
		report = append(report, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return report, nil
}
