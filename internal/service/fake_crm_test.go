package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/straye-as/order-sync/internal/crm"
	"github.com/straye-as/order-sync/internal/domain"
	"github.com/straye-as/order-sync/internal/retry"
	"github.com/straye-as/order-sync/internal/service"
	"go.uber.org/zap"
)

// fakeCRM is an in-memory CRM keeping records per object type and counting calls
type fakeCRM struct {
	mu      sync.Mutex
	nextID  int
	records map[string]map[string]crm.Fields
	calls   map[string]int
	updates map[string][]crm.Fields

	createErr func(objectType string, fields crm.Fields) error
	updateErr func(objectType, id string, fields crm.Fields) error
	lookupErr func(operation string) error
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		records: map[string]map[string]crm.Fields{
			crm.ObjectAccount:        {},
			crm.ObjectSalesOrder:     {},
			crm.ObjectSalesOrderItem: {},
		},
		calls:   make(map[string]int),
		updates: make(map[string][]crm.Fields),
	}
}

func (f *fakeCRM) seedAccount(name, customerNumber, divisionNumber string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newID(crm.ObjectAccount)
	f.records[crm.ObjectAccount][id] = crm.Fields{
		crm.FieldName:                  name,
		crm.FieldAccountCustomerNumber: customerNumber,
		crm.FieldAccountDivisionNumber: divisionNumber,
	}
	return id
}

func (f *fakeCRM) newID(objectType string) string {
	f.nextID++
	return fmt.Sprintf("%s-%03d", strings.TrimSuffix(objectType, "__c"), f.nextID)
}

func (f *fakeCRM) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeCRM) snapshot(objectType string) map[string]crm.Fields {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]crm.Fields, len(f.records[objectType]))
	for id, fields := range f.records[objectType] {
		out[id] = fields
	}
	return out
}

func (f *fakeCRM) lookup(operation string) error {
	f.calls[operation]++
	if f.lookupErr != nil {
		return f.lookupErr(operation)
	}
	return nil
}

func (f *fakeCRM) findBy(objectType string, match func(crm.Fields) bool) string {
	for id, fields := range f.records[objectType] {
		if match(fields) {
			return id
		}
	}
	return ""
}

func (f *fakeCRM) QueryAccounts(ctx context.Context) ([]crm.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup("QueryAccounts"); err != nil {
		return nil, err
	}
	var out []crm.Account
	for id, fields := range f.records[crm.ObjectAccount] {
		out = append(out, toAccount(id, fields))
	}
	return out, nil
}

func (f *fakeCRM) FindAccount(ctx context.Context, customerNumber, divisionNumber string) (*crm.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup("FindAccount"); err != nil {
		return nil, err
	}
	id := f.findBy(crm.ObjectAccount, func(fields crm.Fields) bool {
		return fields[crm.FieldAccountCustomerNumber] == customerNumber &&
			fields[crm.FieldAccountDivisionNumber] == divisionNumber
	})
	if id == "" {
		return nil, nil
	}
	account := toAccount(id, f.records[crm.ObjectAccount][id])
	return &account, nil
}

func (f *fakeCRM) FindOrderByInvoice(ctx context.Context, invoiceNumber string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup("FindOrderByInvoice"); err != nil {
		return "", err
	}
	return f.findBy(crm.ObjectSalesOrder, func(fields crm.Fields) bool {
		return fields[crm.FieldOrderInvoiceNumber] == invoiceNumber
	}), nil
}

func (f *fakeCRM) FindOrderByNumber(ctx context.Context, orderNumber string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup("FindOrderByNumber"); err != nil {
		return "", err
	}
	return f.findBy(crm.ObjectSalesOrder, func(fields crm.Fields) bool {
		return fields[crm.FieldOrderNumber] == orderNumber
	}), nil
}

func (f *fakeCRM) FindLineItem(ctx context.Context, parentID, productCode string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup("FindLineItem"); err != nil {
		return "", err
	}
	return f.findBy(crm.ObjectSalesOrderItem, func(fields crm.Fields) bool {
		return fields[crm.FieldItemParent] == parentID && fields[crm.FieldItemProductCode] == productCode
	}), nil
}

func (f *fakeCRM) Create(ctx context.Context, objectType string, fields crm.Fields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Create "+objectType]++
	if f.createErr != nil {
		if err := f.createErr(objectType, fields); err != nil {
			return "", err
		}
	}
	id := f.newID(objectType)
	stored := make(crm.Fields, len(fields))
	for k, v := range fields {
		stored[k] = v
	}
	f.records[objectType][id] = stored
	return id, nil
}

func (f *fakeCRM) Update(ctx context.Context, objectType, id string, fields crm.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Update "+objectType]++
	if f.updateErr != nil {
		if err := f.updateErr(objectType, id, fields); err != nil {
			return err
		}
	}
	stored, ok := f.records[objectType][id]
	if !ok {
		return &crm.RejectionError{StatusCode: 404, Details: []crm.ErrorDetail{{ErrorCode: "NOT_FOUND"}}}
	}
	for k, v := range fields {
		stored[k] = v
	}
	f.updates[objectType] = append(f.updates[objectType], fields)
	return nil
}

func toAccount(id string, fields crm.Fields) crm.Account {
	str := func(name string) string {
		s, _ := fields[name].(string)
		return s
	}
	return crm.Account{
		ID:             id,
		Name:           str(crm.FieldName),
		CustomerNumber: str(crm.FieldAccountCustomerNumber),
		DivisionNumber: str(crm.FieldAccountDivisionNumber),
	}
}

// syncHarness wires the reconciliation services against a fakeCRM
type syncHarness struct {
	crm        *fakeCRM
	writer     *service.RecordWriter
	resolver   *service.AccountResolver
	reconciler *service.OrderReconciler
}

func newSyncHarness(t *testing.T, fake *fakeCRM) *syncHarness {
	t.Helper()
	return newSyncHarnessWithLogger(t, fake, zap.NewNop())
}

func newSyncHarnessWithLogger(t *testing.T, fake *fakeCRM, logger *zap.Logger) *syncHarness {
	t.Helper()
	policy := retry.NewPolicy(3, time.Millisecond, crm.IsTransient, logger)
	writer := service.NewRecordWriter(fake, policy, logger)
	resolver := service.NewAccountResolver(fake, writer, logger)
	return &syncHarness{
		crm:        fake,
		writer:     writer,
		resolver:   resolver,
		reconciler: service.NewOrderReconciler(fake, writer, resolver, logger),
	}
}

// run executes one reconciliation pass the way a cycle does: fresh index, aggregate, reconcile
func (h *syncHarness) run(t *testing.T, rows []domain.WarehouseRow) service.ReconcileResult {
	t.Helper()
	ctx := context.Background()
	index, err := h.resolver.LoadAccountIndex(ctx)
	if err != nil {
		t.Fatalf("load account index: %v", err)
	}
	batch := service.AggregateOrders(rows)
	return h.reconciler.Reconcile(ctx, batch.Orders, index)
}

func datePtr(s string) *string {
	return &s
}

func row(order, customer, div, item string, qty float64) domain.WarehouseRow {
	return domain.WarehouseRow{
		SalesOrderNumber: order,
		CustomerName:     "Customer " + customer,
		CustomerNumber:   customer,
		ARDivisionNumber: div,
		SalesOrderDate:   datePtr("2026-10-01"),
		ItemCode:         item,
		ItemDescription:  "Item " + item,
		QtyOrdered:       qty,
		QtyShipped:       0,
		UnitPrice:        12.5,
	}
}
