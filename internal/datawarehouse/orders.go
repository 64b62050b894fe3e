package datawarehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/straye-as/order-sync/internal/domain"
	"github.com/straye-as/order-sync/internal/normalize"
	"go.uber.org/zap"
)

// Column names of the order invoicing view
const (
	ColSalesOrderNumber = "SALES_ORDER_NUMBER"
	ColCustomerName     = "CUSTOMER_NAME"
	ColCustomerAccount  = "CUSTOMER_ACCOUNT"
	ColCustomerPONumber = "CUSTOMER_PO_NUMBER"
	ColCustomerNumber   = "CUSTOMER_NUMBER"
	ColARDivisionNumber = "AR_DIVISION_NUMBER"
	ColSalesOrderDate   = "SALES_ORDER_DATE"
	ColPostingDate      = "POSTING_DATE"
	ColInvoiceNumber    = "INVOICE_NUMBER"
	ColGrossSales       = "GROSS_SALES"
	ColNetSales         = "NET_SALES"
	ColItemCode         = "ITEM_CODE"
	ColItemDescription  = "ITEM_CODE_DESC"
	ColQtyOrdered       = "QTY_ORDERED"
	ColQtyShipped       = "QTY_SHIPPED"
	ColUnitPrice        = "UNIT_PRICE"
	ColDiscount         = "DISCOUNT"
	ColDeduction        = "DEDUCTION"
	ColComment          = "INVOICE_DETAIL_COMMENT"
)

var orderColumns = []string{
	ColSalesOrderNumber, ColCustomerName, ColCustomerAccount, ColCustomerPONumber,
	ColCustomerNumber, ColARDivisionNumber, ColSalesOrderDate, ColPostingDate,
	ColInvoiceNumber, ColGrossSales, ColNetSales, ColItemCode, ColItemDescription,
	ColQtyOrdered, ColQtyShipped, ColUnitPrice, ColDiscount, ColDeduction, ColComment,
}

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Querier runs a read-only query
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*ResultSet, error)
}

// FetchResult is the outcome of one order fetch
type FetchResult struct {
	Rows []domain.WarehouseRow
	// Rejected counts rows dropped because a date failed the strict policy
	Rejected int
}

// OrderSource reads order line rows from the invoicing view
type OrderSource struct {
	querier Querier
	query   string
	policy  normalize.DatePolicy
	logger  *zap.Logger
}

// NewOrderSource validates the view name and prepares the order query
func NewOrderSource(querier Querier, view string, policy normalize.DatePolicy, logger *zap.Logger) (*OrderSource, error) {
	quoted, err := QuoteIdentifier(view)
	if err != nil {
		return nil, err
	}
	return &OrderSource{
		querier: querier,
		query:   buildOrderQuery(quoted),
		policy:  policy,
		logger:  logger,
	}, nil
}

// QuoteIdentifier validates a dotted object name and bracket-quotes each part
func QuoteIdentifier(name string) (string, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 3 {
		return "", fmt.Errorf("invalid view name %q", name)
	}
	for i, p := range parts {
		if !identPart.MatchString(p) {
			return "", fmt.Errorf("invalid view name %q", name)
		}
		parts[i] = "[" + p + "]"
	}
	return strings.Join(parts, "."), nil
}

func buildOrderQuery(view string) string {
	return "SELECT " + strings.Join(orderColumns, ", ") +
		" FROM " + view +
		" WHERE " + ColSalesOrderDate + " IS NOT NULL AND " + ColSalesOrderDate + " >= @since" +
		" ORDER BY " + ColSalesOrderNumber
}

// Query returns the SQL text issued by FetchOrderRows
func (s *OrderSource) Query() string {
	return s.query
}

// WindowStart returns the first day of a trailing window of days ending at now
func WindowStart(now time.Time, days int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -days)
}

// FetchOrderRows returns every line row with a non-null order date on or after since
func (s *OrderSource) FetchOrderRows(ctx context.Context, since time.Time) (*FetchResult, error) {
	s.logger.Info("Fetching orders from data warehouse",
		zap.String("since", since.Format(normalize.ISODateLayout)),
	)

	rs, err := s.querier.Query(ctx, s.query, sql.Named("since", since.Format(normalize.ISODateLayout)))
	if err != nil {
		return nil, err
	}

	result := &FetchResult{Rows: make([]domain.WarehouseRow, 0, rs.Len())}
	for i := 0; i < rs.Len(); i++ {
		row, err := MapRow(rs.Record(i), s.policy)
		if err != nil {
			result.Rejected++
			s.logger.Warn("Rejecting warehouse row",
				zap.String("order_number", normalize.String(rs.Record(i)[ColSalesOrderNumber])),
				zap.Error(err),
			)
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	s.logger.Info("Fetched warehouse rows",
		zap.Int("rows", len(result.Rows)),
		zap.Int("rejected", result.Rejected),
	)
	return result, nil
}

// MapRow converts a record keyed by column name into a WarehouseRow.
// Column lookup is case-insensitive; missing columns yield zero values.
func MapRow(record map[string]any, policy normalize.DatePolicy) (domain.WarehouseRow, error) {
	upper := make(map[string]any, len(record))
	for k, v := range record {
		upper[strings.ToUpper(k)] = v
	}
	str := func(col string) string { return strings.TrimSpace(normalize.String(upper[col])) }

	orderDate, err := normalize.DateString(upper[ColSalesOrderDate], policy)
	if err != nil {
		return domain.WarehouseRow{}, fmt.Errorf("%s: %w", ColSalesOrderDate, err)
	}
	postingDate, err := normalize.DateString(upper[ColPostingDate], policy)
	if err != nil {
		return domain.WarehouseRow{}, fmt.Errorf("%s: %w", ColPostingDate, err)
	}

	return domain.WarehouseRow{
		SalesOrderNumber: str(ColSalesOrderNumber),
		CustomerName:     str(ColCustomerName),
		CustomerAccount:  str(ColCustomerAccount),
		CustomerPONumber: str(ColCustomerPONumber),
		CustomerNumber:   str(ColCustomerNumber),
		ARDivisionNumber: str(ColARDivisionNumber),
		SalesOrderDate:   orderDate,
		PostingDate:      postingDate,
		InvoiceNumber:    str(ColInvoiceNumber),
		GrossSales:       normalize.Float(upper[ColGrossSales]),
		NetSales:         normalize.Float(upper[ColNetSales]),
		ItemCode:         str(ColItemCode),
		ItemDescription:  normalize.String(upper[ColItemDescription]),
		QtyOrdered:       normalize.Float(upper[ColQtyOrdered]),
		QtyShipped:       normalize.Float(upper[ColQtyShipped]),
		UnitPrice:        normalize.Float(upper[ColUnitPrice]),
		Discount:         normalize.Float(upper[ColDiscount]),
		Deduction:        normalize.Float(upper[ColDeduction]),
		Comment:          normalize.String(upper[ColComment]),
	}, nil
}

// SQL Server error numbers worth retrying: deadlock victim, login timeout,
// database unavailable and resource throttling.
var transientErrorNumbers = map[int32]bool{
	1205:  true,
	-2:    true,
	4060:  true,
	40197: true,
	40501: true,
	40613: true,
	49918: true,
}

// IsTransient reports whether a warehouse error is connectivity-class and worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		return transientErrorNumbers[sqlErr.Number]
	}
	return false
}

// IsConnectRetryable reports whether a failed connection attempt is worth repeating.
// Server errors retry only when transient, so rejected logins fail at once; network
// and driver failures always retry. Cancellation never does.
func IsConnectRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		return transientErrorNumbers[sqlErr.Number]
	}
	return true
}
