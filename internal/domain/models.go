package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Warehouse-side types
// ============================================================================

// WarehouseRow is one line item as returned by the warehouse order query.
// Dates are already normalized to YYYY-MM-DD (or left as the raw string when
// the lenient date policy could not parse them). A nil PostingDate means the
// order has not posted yet.
type WarehouseRow struct {
	SalesOrderNumber string
	CustomerName     string
	CustomerAccount  string
	CustomerPONumber string
	CustomerNumber   string
	ARDivisionNumber string
	SalesOrderDate   *string
	PostingDate      *string
	InvoiceNumber    string
	GrossSales       float64
	NetSales         float64

	ItemCode        string
	ItemDescription string
	QtyOrdered      float64
	QtyShipped      float64
	UnitPrice       float64
	Discount        float64
	Deduction       float64
	Comment         string
}

// OrderHeader holds the order-level fields of an aggregated order
type OrderHeader struct {
	SalesOrderNumber string
	CustomerName     string
	CustomerAccount  string
	CustomerPONumber string
	CustomerNumber   string
	ARDivisionNumber string
	SalesOrderDate   *string
	PostingDate      *string
	InvoiceNumber    string
	GrossSales       float64
	NetSales         float64
}

// LineItem holds the item-level fields of one warehouse row
type LineItem struct {
	ProductCode string
	Description string
	QtyOrdered  float64
	QtyShipped  float64
	UnitPrice   float64
	Discount    float64
	Deduction   float64
	Comment     string
}

// AggregatedOrder is one logical order built from every warehouse row sharing
// an order number. The header comes from the first row seen.
type AggregatedOrder struct {
	Header OrderHeader
	Items  []LineItem
	// HeaderConflicts counts later rows whose header fields differ from the first row
	HeaderConflicts int
}

// HeaderFromRow copies the order-level fields of a warehouse row
func HeaderFromRow(row WarehouseRow) OrderHeader {
	return OrderHeader{
		SalesOrderNumber: row.SalesOrderNumber,
		CustomerName:     row.CustomerName,
		CustomerAccount:  row.CustomerAccount,
		CustomerPONumber: row.CustomerPONumber,
		CustomerNumber:   row.CustomerNumber,
		ARDivisionNumber: row.ARDivisionNumber,
		SalesOrderDate:   row.SalesOrderDate,
		PostingDate:      row.PostingDate,
		InvoiceNumber:    row.InvoiceNumber,
		GrossSales:       row.GrossSales,
		NetSales:         row.NetSales,
	}
}

// LineItemFromRow copies the item-level fields of a warehouse row
func LineItemFromRow(row WarehouseRow) LineItem {
	return LineItem{
		ProductCode: row.ItemCode,
		Description: row.ItemDescription,
		QtyOrdered:  row.QtyOrdered,
		QtyShipped:  row.QtyShipped,
		UnitPrice:   row.UnitPrice,
		Discount:    row.Discount,
		Deduction:   row.Deduction,
		Comment:     row.Comment,
	}
}

// Equal reports whether two headers carry the same values
func (h OrderHeader) Equal(other OrderHeader) bool {
	return h.SalesOrderNumber == other.SalesOrderNumber &&
		h.CustomerName == other.CustomerName &&
		h.CustomerAccount == other.CustomerAccount &&
		h.CustomerPONumber == other.CustomerPONumber &&
		h.CustomerNumber == other.CustomerNumber &&
		h.ARDivisionNumber == other.ARDivisionNumber &&
		equalDate(h.SalesOrderDate, other.SalesOrderDate) &&
		equalDate(h.PostingDate, other.PostingDate) &&
		h.InvoiceNumber == other.InvoiceNumber &&
		h.GrossSales == other.GrossSales &&
		h.NetSales == other.NetSales
}

func equalDate(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IsPosted reports whether the order carries a posting date
func (h OrderHeader) IsPosted() bool {
	return h.PostingDate != nil && *h.PostingDate != ""
}

// ============================================================================
// Order status
// ============================================================================

// OrderStatus is the CRM-side order status. It is always derived from the
// posting date and never taken from input.
type OrderStatus string

const (
	OrderStatusOpen   OrderStatus = "Open"
	OrderStatusClosed OrderStatus = "Closed"
)

// StatusFor derives the order status from the posting date
func StatusFor(postingDate *string) OrderStatus {
	if postingDate != nil && *postingDate != "" {
		return OrderStatusClosed
	}
	return OrderStatusOpen
}

// ============================================================================
// Accounts
// ============================================================================

// AccountKey builds the composite natural key of a CRM account.
// Both parts are trimmed; comparison is exact after trimming.
func AccountKey(customerNumber, divisionNumber string) string {
	return strings.TrimSpace(customerNumber) + "|" + strings.TrimSpace(divisionNumber)
}

// AccountRef identifies a CRM account
type AccountRef struct {
	ID   string
	Name string
}

// AccountIndex maps composite account keys to CRM accounts.
// It is built once per cycle and is not safe for concurrent use.
type AccountIndex struct {
	entries map[string]AccountRef
}

// NewAccountIndex creates an empty index
func NewAccountIndex() *AccountIndex {
	return &AccountIndex{entries: make(map[string]AccountRef)}
}

// Get looks up an account by customer and division number
func (i *AccountIndex) Get(customerNumber, divisionNumber string) (AccountRef, bool) {
	ref, ok := i.entries[AccountKey(customerNumber, divisionNumber)]
	return ref, ok
}

// Put stores an account under its composite key, replacing any previous entry
func (i *AccountIndex) Put(customerNumber, divisionNumber string, ref AccountRef) {
	i.entries[AccountKey(customerNumber, divisionNumber)] = ref
}

// Len returns the number of indexed accounts
func (i *AccountIndex) Len() int {
	return len(i.entries)
}

// ============================================================================
// Sync run history
// ============================================================================

// SyncRunStatus represents the outcome of one sync cycle
type SyncRunStatus string

const (
	SyncRunStatusRunning SyncRunStatus = "running"
	SyncRunStatusSuccess SyncRunStatus = "success"
	SyncRunStatusFailed  SyncRunStatus = "failed"
	SyncRunStatusSkipped SyncRunStatus = "skipped"
)

// SyncRun is the persisted record of one sync cycle
type SyncRun struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	StartedAt      time.Time     `gorm:"not null;index" json:"startedAt"`
	FinishedAt     *time.Time    `json:"finishedAt,omitempty"`
	Status         SyncRunStatus `gorm:"type:varchar(20);not null" json:"status"`
	WindowStart    string        `gorm:"type:varchar(10)" json:"windowStart"`
	RowsFetched    int           `json:"rowsFetched"`
	OrdersSeen     int           `json:"ordersSeen"`
	OrdersCreated  int           `json:"ordersCreated"`
	OrdersUpdated  int           `json:"ordersUpdated"`
	ItemsCreated   int           `json:"itemsCreated"`
	ItemsUpdated   int           `json:"itemsUpdated"`
	OrdersSkipped  int           `json:"ordersSkipped"`
	ItemsSkipped   int           `json:"itemsSkipped"`
	Failures       int           `json:"failures"`
	ErrorMessage   string        `gorm:"type:text" json:"errorMessage,omitempty"`
	DurationMillis int64         `json:"durationMs"`
}

// TableName sets the table name for SyncRun
func (SyncRun) TableName() string {
	return "sync_runs"
}
