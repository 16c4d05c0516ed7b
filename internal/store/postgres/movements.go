package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	for _, id := range []string{transfer.OriginStoreID, transfer.DestinationStoreID} {
		var ok bool
		if err := pgTx.QueryRowContext(ctx, `SELECT true FROM stores WHERE id = $1`, id).Scan(&ok); err != nil {
			return nil, fmt.Errorf("store %s: %w", id, classify(err))
		}
	}

	units, err := lockUnits(ctx, pgTx, codes)
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transfers (id, origin_store_id, destination_store_id, employee_id, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, transfer.ID, transfer.OriginStoreID, transfer.DestinationStoreID, transfer.EmployeeID, transfer.Note, transfer.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}

	items := make([]domain.TransferItem, 0, len(codes))
	for i, code := range codes {
		item := domain.TransferItem{ScanCode: code, ProductID: units[code].ProductID, Position: i + 1}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transfer_items (transfer_id, position, scan_code, product_id)
			VALUES ($1,$2,$3,$4)
		`, transfer.ID, item.Position, item.ScanCode, item.ProductID)
		if err != nil {
			return nil, classify(err)
		}
		items = append(items, item)
	}

	res, err := pgTx.ExecContext(ctx, `
		UPDATE units
		SET store_id = $1
		WHERE scan_code = ANY($2) AND store_id = $3 AND sold = false
	`, transfer.DestinationStoreID, codes, transfer.OriginStoreID)
	if err != nil {
		return nil, classify(err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return nil, classify(err)
	}
	if int(moved) != len(codes) {
		return nil, fmt.Errorf("%w: moved %d of %d units", store.ErrTransient, moved, len(codes))
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classify(err)
	}
	transfer.Items = items
	return &transfer, nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	var transfer domain.Transfer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, origin_store_id, destination_store_id, employee_id, note, created_at
		FROM transfers
		WHERE id = $1
	`, id).Scan(&transfer.ID, &transfer.OriginStoreID, &transfer.DestinationStoreID, &transfer.EmployeeID, &transfer.Note, &transfer.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	transfer.CreatedAt = transfer.CreatedAt.UTC()

	items, err := s.transferItems(ctx, []string{transfer.ID})
	if err != nil {
		return nil, err
	}
	transfer.Items = items[transfer.ID]
	if transfer.Items == nil {
		transfer.Items = []domain.TransferItem{}
	}
	return &transfer, nil
}

func (s *Store) ListTransfers(ctx context.Context, filter domain.MovementFilter) ([]domain.Transfer, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, origin_store_id, destination_store_id, employee_id, note, created_at
		FROM transfers
		WHERE ($1 = '' OR origin_store_id = $1 OR destination_store_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, filter.StoreID, nullIfZero(filter.From), nullIfZero(filter.To), limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var transfer domain.Transfer
		if err := rows.Scan(&transfer.ID, &transfer.OriginStoreID, &transfer.DestinationStoreID, &transfer.EmployeeID, &transfer.Note, &transfer.CreatedAt); err != nil {
			return nil, classify(err)
		}
		transfer.CreatedAt = transfer.CreatedAt.UTC()
		transfers = append(transfers, transfer)
		ids = append(ids, transfer.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	items, err := s.transferItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range transfers {
		transfers[i].Items = items[transfers[i].ID]
		if transfers[i].Items == nil {
			transfers[i].Items = []domain.TransferItem{}
		}
	}
	return transfers, nil
}

func (s *Store) transferItems(ctx context.Context, ids []string) (map[string][]domain.TransferItem, error) {
	result := make(map[string][]domain.TransferItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT transfer_id, position, scan_code, product_id
		FROM transfer_items
		WHERE transfer_id = ANY($1)
		ORDER BY transfer_id, position
	`, ids)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var transferID string
		var item domain.TransferItem
		if err := rows.Scan(&transferID, &item.Position, &item.ScanCode, &item.ProductID); err != nil {
			return nil, classify(err)
		}
		result[transferID] = append(result[transferID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	codes := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		codes = append(codes, item.ScanCode)
	}
	if err := store.CheckBatchCodes(codes); err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var ok bool
	if err := pgTx.QueryRowContext(ctx, `SELECT true FROM stores WHERE id = $1`, sale.StoreID).Scan(&ok); err != nil {
		return nil, fmt.Errorf("store %s: %w", sale.StoreID, classify(err))
	}

	units, err := lockUnits(ctx, pgTx, codes)
	if err != nil {
		return nil, err
	}
	if err := store.CheckUnitStates(codes, units, sale.StoreID, store.ReasonNotAtStore); err != nil {
		return nil, err
	}

	if sale.ExchangeRate.IsZero() {
		var rate decimal.Decimal
		err := pgTx.QueryRowContext(ctx, `
			SELECT rate FROM exchange_rates ORDER BY created_at DESC, id DESC LIMIT 1
		`).Scan(&rate)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, classify(err)
		}
		sale.ExchangeRate = rate
	}

	productIDs := make([]string, 0, len(codes))
	for i := range sale.Items {
		sale.Items[i].ProductID = units[sale.Items[i].ScanCode].ProductID
		sale.Items[i].Position = i + 1
		productIDs = append(productIDs, sale.Items[i].ProductID)
	}
	products, err := productsByID(ctx, pgTx, store.UniqueStrings(productIDs))
	if err != nil {
		return nil, err
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, store_id, employee_id, payment_method, customer_name, customer_phone,
			exchange_rate, total_bob, total_overridden, item_count, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.StoreID, sale.EmployeeID, sale.PaymentMethod, nullIfEmpty(sale.CustomerName), nullIfEmpty(sale.CustomerPhone),
		sale.ExchangeRate, sale.TotalBOB, sale.TotalOverridden, sale.ItemCount, sale.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}

	for _, item := range sale.Items {
		deviceCodes, err := encodeDeviceCodes(item.DeviceCodes)
		if err != nil {
			return nil, err
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, position, scan_code, product_id, unit_price_bob, profit_bob, device_codes)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, item.Position, item.ScanCode, item.ProductID, item.UnitPriceBOB, item.ProfitBOB, deviceCodes)
		if err != nil {
			return nil, classify(err)
		}
	}

	res, err := pgTx.ExecContext(ctx, `
		UPDATE units
		SET sold = true, sold_at = $1
		WHERE scan_code = ANY($2) AND store_id = $3 AND sold = false
	`, sale.CreatedAt, codes, sale.StoreID)
	if err != nil {
		return nil, classify(err)
	}
	marked, err := res.RowsAffected()
	if err != nil {
		return nil, classify(err)
	}
	if int(marked) != len(codes) {
		return nil, fmt.Errorf("%w: marked %d of %d units", store.ErrTransient, marked, len(codes))
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classify(err)
	}
	sale.OverrideTotal = nil
	return &sale, nil
}

func productsByID(ctx context.Context, tx *sql.Tx, ids []string) (map[string]domain.Product, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, brand, color, specs, cost_price, profit_bob, active, created_at, updated_at
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, classify(err)
	}
	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, classify(err)
	}
	_ = rows.Close()
	return products, nil
}

const saleColumns = `id, store_id, employee_id, payment_method, customer_name, customer_phone,
	exchange_rate, total_bob, total_overridden, item_count, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var customerName, customerPhone sql.NullString
	err := row.Scan(&sale.ID, &sale.StoreID, &sale.EmployeeID, &sale.PaymentMethod, &customerName, &customerPhone,
		&sale.ExchangeRate, &sale.TotalBOB, &sale.TotalOverridden, &sale.ItemCount, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, classify(err)
	}
	sale.CustomerName = customerName.String
	sale.CustomerPhone = customerPhone.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	items, err := s.saleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	if sale.Items == nil {
		sale.Items = []domain.SaleItem{}
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.MovementFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR store_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, filter.StoreID, nullIfZero(filter.From), nullIfZero(filter.To), limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	items, err := s.saleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []domain.SaleItem{}
		}
	}
	return sales, nil
}

func (s *Store) saleItems(ctx context.Context, ids []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, position, scan_code, product_id, unit_price_bob, profit_bob, device_codes
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var saleID, deviceCodes string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.Position, &item.ScanCode, &item.ProductID, &item.UnitPriceBOB, &item.ProfitBOB, &deviceCodes); err != nil {
			return nil, classify(err)
		}
		item.DeviceCodes = decodeDeviceCodes(deviceCodes)
		result[saleID] = append(result[saleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// ListSaleReportRows returns one row per sale line in sale creation order. The
// timestamp is read as text so the aggregator decides what it can parse.
func (s *Store) ListSaleReportRows(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SaleReportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at::text, s.total_bob, si.product_id, si.position, si.profit_bob
		FROM sales s
		JOIN sale_items si ON si.sale_id = s.id
		WHERE ($1 = '' OR s.store_id = $1)
		  AND ($2::timestamptz IS NULL OR s.created_at >= $2)
		  AND ($3::timestamptz IS NULL OR s.created_at < $3)
		ORDER BY s.created_at, s.id, si.position
	`, strings.TrimSpace(storeID), nullIfZero(from), nullIfZero(to))
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
