package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/straye-as/order-sync/internal/crm"
	"github.com/straye-as/order-sync/internal/domain"
	"github.com/straye-as/order-sync/internal/logger"
	"github.com/straye-as/order-sync/internal/metrics"
	"go.uber.org/zap"
)

// ReconcileResult counts the writes of one reconciliation pass
type ReconcileResult struct {
	OrdersCreated int
	OrdersUpdated int
	ItemsCreated  int
	ItemsUpdated  int

	// Diagnostics
	OrdersSkipped int
	ItemsSkipped  int
	Failures      int
}

// Add accumulates other into r
func (r *ReconcileResult) Add(other ReconcileResult) {
	r.OrdersCreated += other.OrdersCreated
	r.OrdersUpdated += other.OrdersUpdated
	r.ItemsCreated += other.ItemsCreated
	r.ItemsUpdated += other.ItemsUpdated
	r.OrdersSkipped += other.OrdersSkipped
	r.ItemsSkipped += other.ItemsSkipped
	r.Failures += other.Failures
}

// OrderReconciler creates or updates CRM orders and their line items from aggregated orders
type OrderReconciler struct {
	crm      CRM
	writer   *RecordWriter
	accounts *AccountResolver
	logger   *zap.Logger
}

// NewOrderReconciler creates an OrderReconciler
func NewOrderReconciler(c CRM, writer *RecordWriter, accounts *AccountResolver, logger *zap.Logger) *OrderReconciler {
	return &OrderReconciler{crm: c, writer: writer, accounts: accounts, logger: logger}
}

// Reconcile processes every order in sequence. A failing order or item is logged
// and skipped; it never stops the remaining orders.
func (r *OrderReconciler) Reconcile(ctx context.Context, orders []*domain.AggregatedOrder, index *domain.AccountIndex) ReconcileResult {
	var result ReconcileResult
	for _, order := range orders {
		r.reconcileOrder(ctx, order, index, &result)
	}

	r.logger.Info("Reconciliation completed",
		zap.Int("orders_created", result.OrdersCreated),
		zap.Int("orders_updated", result.OrdersUpdated),
		zap.Int("items_created", result.ItemsCreated),
		zap.Int("items_updated", result.ItemsUpdated),
		zap.Int("orders_skipped", result.OrdersSkipped),
		zap.Int("items_skipped", result.ItemsSkipped),
		zap.Int("failures", result.Failures),
	)
	return result
}

func (r *OrderReconciler) reconcileOrder(ctx context.Context, order *domain.AggregatedOrder, index *domain.AccountIndex, result *ReconcileResult) {
	h := order.Header
	log := logger.WithOrder(r.logger, h.SalesOrderNumber, h.InvoiceNumber)

	customerNumber := strings.TrimSpace(h.CustomerNumber)
	divisionNumber := strings.TrimSpace(h.ARDivisionNumber)
	if customerNumber == "" || divisionNumber == "" {
		log.Warn("Skipping order", zap.Error(domain.ErrMissingIdentity))
		metrics.RecordSkip("order", "missing_identity")
		result.OrdersSkipped++
		return
	}

	account, err := r.resolveAccount(ctx, index, h.CustomerName, customerNumber, divisionNumber, log)
	if err != nil {
		log.Error("Skipping order, account unresolved", zap.Error(err))
		metrics.RecordSkip("order", "account_unresolved")
		result.OrdersSkipped++
		result.Failures++
		return
	}

	existingID, err := r.findOrder(ctx, h)
	if err != nil {
		metrics.RecordSkip("order", "lookup_failed")
		result.OrdersSkipped++
		result.Failures++
		return
	}

	orderID := existingID
	if existingID == "" {
		if strings.TrimSpace(h.InvoiceNumber) != "" {
			// Orders are matched by invoice once invoiced, so a record written while the
			// order was still open is not found here and a second one is created.
			log.Warn("Invoiced order not found by invoice number, creating a new order record")
		}
		orderID, err = r.writer.Create(ctx, crm.ObjectSalesOrder, OrderFields(h, account.ID),
			zap.String("order_number", h.SalesOrderNumber), zap.String("invoice_number", h.InvoiceNumber))
		if err != nil {
			log.Error("Skipping order items",
				zap.Int("items", len(order.Items)),
				zap.Error(fmt.Errorf("%w: %w", ErrOrderNotWritten, err)))
			result.OrdersSkipped++
			result.Failures++
			return
		}
		result.OrdersCreated++
	} else {
		err = r.writer.Update(ctx, crm.ObjectSalesOrder, existingID, OrderUpdateFields(h, account.ID),
			zap.String("order_number", h.SalesOrderNumber), zap.String("invoice_number", h.InvoiceNumber))
		if err != nil {
			result.Failures++
		} else {
			result.OrdersUpdated++
		}
	}

	if len(order.Items) == 0 {
		log.Info("Order has no items")
		return
	}

	for _, item := range order.Items {
		r.reconcileItem(ctx, orderID, item, log, result)
	}
}

// resolveAccount returns the order's account, creating it when neither the index
// nor the CRM knows the customer identity
func (r *OrderReconciler) resolveAccount(ctx context.Context, index *domain.AccountIndex, customerName, customerNumber, divisionNumber string, log *zap.Logger) (domain.AccountRef, error) {
	ref, found, err := r.accounts.Resolve(ctx, index, customerNumber, divisionNumber)
	if err != nil {
		return domain.AccountRef{}, fmt.Errorf("%w: %w", ErrAccountUnresolved, err)
	}
	if found {
		log.Debug("Using existing account", zap.String("record_id", ref.ID), zap.String("account_name", ref.Name))
		return ref, nil
	}

	ref, err = r.accounts.CreateIfMissing(ctx, index, customerName, customerNumber, divisionNumber)
	if err != nil {
		return domain.AccountRef{}, fmt.Errorf("%w: %w", ErrAccountUnresolved, err)
	}
	log.Info("Created account", zap.String("record_id", ref.ID), zap.String("account_name", ref.Name))
	return ref, nil
}

// findOrder matches by invoice number when the order has one, otherwise by order number
func (r *OrderReconciler) findOrder(ctx context.Context, h domain.OrderHeader) (string, error) {
	var id string
	if invoice := strings.TrimSpace(h.InvoiceNumber); invoice != "" {
		err := r.writer.Lookup(ctx, "find order by invoice", func(ctx context.Context) error {
			var err error
			id, err = r.crm.FindOrderByInvoice(ctx, invoice)
			return err
		}, zap.String("order_number", h.SalesOrderNumber), zap.String("invoice_number", invoice))
		return id, err
	}

	err := r.writer.Lookup(ctx, "find order by number", func(ctx context.Context) error {
		var err error
		id, err = r.crm.FindOrderByNumber(ctx, h.SalesOrderNumber)
		return err
	}, zap.String("order_number", h.SalesOrderNumber))
	return id, err
}

func (r *OrderReconciler) reconcileItem(ctx context.Context, orderID string, item domain.LineItem, log *zap.Logger, result *ReconcileResult) {
	code := strings.TrimSpace(item.ProductCode)
	if code == "" {
		log.Warn("Skipping item", zap.Error(domain.ErrMissingProductCode))
		metrics.RecordSkip("item", "missing_product_code")
		result.ItemsSkipped++
		return
	}
	item.ProductCode = code

	logFields := []zap.Field{
		zap.String("parent_id", orderID),
		zap.String("product_code", code),
	}

	var existingID string
	err := r.writer.Lookup(ctx, "find line item", func(ctx context.Context) error {
		var err error
		existingID, err = r.crm.FindLineItem(ctx, orderID, code)
		return err
	}, logFields...)
	if err != nil {
		metrics.RecordSkip("item", "lookup_failed")
		result.ItemsSkipped++
		result.Failures++
		return
	}

	if existingID == "" {
		if _, err := r.writer.Create(ctx, crm.ObjectSalesOrderItem, ItemFields(item, orderID), logFields...); err != nil {
			result.Failures++
			return
		}
		result.ItemsCreated++
		return
	}

	if err := r.writer.Update(ctx, crm.ObjectSalesOrderItem, existingID, ItemUpdateFields(item, orderID), logFields...); err != nil {
		result.Failures++
		return
	}
	result.ItemsUpdated++
}
