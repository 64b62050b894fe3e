package service

import (
	"strings"

	"github.com/straye-as/order-sync/internal/domain"
)

// OrderBatch is the set of aggregated orders of one cycle
type OrderBatch struct {
	// Orders in the order their number was first seen
	Orders []*domain.AggregatedOrder
	// Rows is the number of input rows
	Rows int
	// SkippedRows counts rows excluded for an empty order number
	SkippedRows int

	byNumber map[string]*domain.AggregatedOrder
}

// Lookup returns the aggregated order with the given number
func (b *OrderBatch) Lookup(orderNumber string) (*domain.AggregatedOrder, bool) {
	o, ok := b.byNumber[strings.TrimSpace(orderNumber)]
	return o, ok
}

// Len returns the number of distinct orders
func (b *OrderBatch) Len() int {
	return len(b.Orders)
}

// Conflicts returns the orders whose rows disagreed on header fields
func (b *OrderBatch) Conflicts() []*domain.AggregatedOrder {
	var out []*domain.AggregatedOrder
	for _, o := range b.Orders {
		if o.HeaderConflicts > 0 {
			out = append(out, o)
		}
	}
	return out
}

// AggregateOrders groups line rows into one order per distinct order number.
// The header of each order comes from its first row; every row contributes one
// line item in input order. Rows without an order number are counted and dropped.
func AggregateOrders(rows []domain.WarehouseRow) *OrderBatch {
	batch := &OrderBatch{
		Rows:     len(rows),
		byNumber: make(map[string]*domain.AggregatedOrder),
	}

	for _, row := range rows {
		row.SalesOrderNumber = strings.TrimSpace(row.SalesOrderNumber)
		if row.SalesOrderNumber == "" {
			batch.SkippedRows++
			continue
		}

		header := domain.HeaderFromRow(row)
		order, ok := batch.byNumber[row.SalesOrderNumber]
		if !ok {
			order = &domain.AggregatedOrder{Header: header}
			batch.byNumber[row.SalesOrderNumber] = order
			batch.Orders = append(batch.Orders, order)
		} else if !order.Header.Equal(header) {
			order.HeaderConflicts++
		}

		order.Items = append(order.Items, domain.LineItemFromRow(row))
	}

	return batch
}
