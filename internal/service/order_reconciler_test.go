package service_test

import (
	"testing"

	"github.com/straye-as/order-sync/internal/crm"
	"github.com/straye-as/order-sync/internal/domain"
	"github.com/straye-as/order-sync/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func rejection(code string) error {
	return &crm.RejectionError{StatusCode: 400, Details: []crm.ErrorDetail{{ErrorCode: code, Message: "invalid"}}}
}

func findOrderRecord(t *testing.T, fake *fakeCRM, orderNumber string) crm.Fields {
	t.Helper()
	for _, fields := range fake.snapshot(crm.ObjectSalesOrder) {
		if fields[crm.FieldOrderNumber] == orderNumber {
			return fields
		}
	}
	t.Fatalf("order %s not found", orderNumber)
	return nil
}

func findItemRecord(t *testing.T, fake *fakeCRM, productCode string) crm.Fields {
	t.Helper()
	for _, fields := range fake.snapshot(crm.ObjectSalesOrderItem) {
		if fields[crm.FieldItemProductCode] == productCode {
			return fields
		}
	}
	t.Fatalf("item %s not found", productCode)
	return nil
}

func TestOrderReconciler_EndToEnd(t *testing.T) {
	fake := newFakeCRM()
	accountID := fake.seedAccount("Customer C1", "C1", "D1")
	h := newSyncHarness(t, fake)

	rows := []domain.WarehouseRow{
		row("5001", "C1", "D1", "A", 10),
		row("5001", "C1", "D1", "B", 3),
	}

	t.Run("first run creates order and items", func(t *testing.T) {
		result := h.run(t, rows)

		assert.Equal(t, service.ReconcileResult{OrdersCreated: 1, ItemsCreated: 2}, result)
		assert.Equal(t, 0, fake.count("Create "+crm.ObjectAccount))
		assert.Equal(t, 0, fake.count("FindAccount"))
		assert.Equal(t, 1, fake.count("FindOrderByNumber"))
		assert.Equal(t, 0, fake.count("FindOrderByInvoice"))

		order := findOrderRecord(t, fake, "5001")
		assert.Equal(t, "Open", order[crm.FieldOrderStatus])
		assert.Equal(t, accountID, order[crm.FieldOrderAccount])
		assert.Equal(t, "Customer C1 - 5001", order[crm.FieldName])
		assert.Equal(t, service.OrderTypePerformance, order[crm.FieldOrderType])
		assert.Nil(t, order[crm.FieldOrderPostingDate])

		assert.Len(t, fake.snapshot(crm.ObjectSalesOrderItem), 2)
		assert.Equal(t, 10.0, findItemRecord(t, fake, "A")[crm.FieldItemQtyOrdered])
		assert.Equal(t, 3.0, findItemRecord(t, fake, "B")[crm.FieldItemQtyOrdered])
	})

	t.Run("second run only updates", func(t *testing.T) {
		result := h.run(t, rows)

		assert.Equal(t, service.ReconcileResult{OrdersUpdated: 1, ItemsUpdated: 2}, result)
		assert.Len(t, fake.snapshot(crm.ObjectSalesOrder), 1)
		assert.Len(t, fake.snapshot(crm.ObjectSalesOrderItem), 2)

		require.Len(t, fake.updates[crm.ObjectSalesOrder], 1)
		update := fake.updates[crm.ObjectSalesOrder][0]
		assert.Equal(t, "Open", update[crm.FieldOrderStatus])
		assert.Len(t, update, len(service.OrderUpdatableFields))
	})
}

func TestOrderReconciler_Idempotent(t *testing.T) {
	fake := newFakeCRM()
	fake.seedAccount("Customer C1", "C1", "D1")
	h := newSyncHarness(t, fake)

	rows := []domain.WarehouseRow{
		row("6001", "C1", "D1", "A", 1),
		row("6002", "C1", "D1", "A", 2),
		row("6002", "C1", "D1", "B", 2),
	}
	h.run(t, rows)

	createsBefore := fake.count("Create "+crm.ObjectSalesOrder) + fake.count("Create "+crm.ObjectSalesOrderItem)
	result := h.run(t, rows)
	createsAfter := fake.count("Create "+crm.ObjectSalesOrder) + fake.count("Create "+crm.ObjectSalesOrderItem)

	assert.Equal(t, createsBefore, createsAfter)
	assert.Equal(t, 0, result.OrdersCreated)
	assert.Equal(t, 0, result.ItemsCreated)
	assert.Equal(t, 2, result.OrdersUpdated)
	assert.Equal(t, 3, result.ItemsUpdated)

	for _, update := range fake.updates[crm.ObjectSalesOrder] {
		for field := range update {
			assert.Contains(t, service.OrderUpdatableFields, field)
		}
	}
	for _, update := range fake.updates[crm.ObjectSalesOrderItem] {
		for field := range update {
			assert.Contains(t, service.ItemUpdatableFields, field)
		}
	}
}

func TestOrderReconciler_StatusFlipsOnPosting(t *testing.T) {
	fake := newFakeCRM()
	fake.seedAccount("Customer C1", "C1", "D1")
	h := newSyncHarness(t, fake)

	open := row("7001", "C1", "D1", "A", 5)
	open.InvoiceNumber = "INV-7001"
	h.run(t, []domain.WarehouseRow{open})
	assert.Equal(t, "Open", findOrderRecord(t, fake, "7001")[crm.FieldOrderStatus])

	posted := open
	posted.PostingDate = datePtr("2026-10-05")
	posted.CustomerPONumber = "PO-99"
	result := h.run(t, []domain.WarehouseRow{posted})

	assert.Equal(t, 0, result.OrdersCreated)
	assert.Equal(t, 1, result.OrdersUpdated)
	assert.Len(t, fake.snapshot(crm.ObjectSalesOrder), 1)
	assert.Equal(t, 2, fake.count("FindOrderByInvoice"))
	assert.Equal(t, 0, fake.count("FindOrderByNumber"))

	order := findOrderRecord(t, fake, "7001")
	assert.Equal(t, "Closed", order[crm.FieldOrderStatus])
	assert.Equal(t, "2026-10-05", order[crm.FieldOrderPostingDate])
	assert.Equal(t, "PO-99", order[crm.FieldOrderCustomerPO])
}

func TestOrderReconciler_InvoiceAddedAfterOpenCreatesSecondOrder(t *testing.T) {
	fake := newFakeCRM()
	fake.seedAccount("Customer C1", "C1", "D1")
	core, logs := observer.New(zapcore.WarnLevel)
	h := newSyncHarnessWithLogger(t, fake, zap.New(core))

	open := row("7101", "C1", "D1", "A", 2)
	h.run(t, []domain.WarehouseRow{open})
	assert.Equal(t, 0, logs.FilterMessage("Invoiced order not found by invoice number, creating a new order record").Len())

	posted := open
	posted.InvoiceNumber = "INV-7101"
	posted.PostingDate = datePtr("2026-10-06")
	result := h.run(t, []domain.WarehouseRow{posted})

	assert.Equal(t, service.ReconcileResult{OrdersCreated: 1, ItemsCreated: 1}, result)
	assert.Equal(t, 1, fake.count("FindOrderByNumber"))
	assert.Equal(t, 1, fake.count("FindOrderByInvoice"))
	assert.Len(t, fake.snapshot(crm.ObjectSalesOrder), 2)
	assert.Len(t, fake.snapshot(crm.ObjectSalesOrderItem), 2)

	warnings := logs.FilterMessage("Invoiced order not found by invoice number, creating a new order record").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "7101", warnings[0].ContextMap()["order_number"])
	assert.Equal(t, "INV-7101", warnings[0].ContextMap()["invoice_number"])
}

func TestOrderReconciler_QuantityOrderedIsImmutable(t *testing.T) {
	fake := newFakeCRM()
	fake.seedAccount("Customer C1", "C1", "D1")
	h := newSyncHarness(t, fake)

	first := row("8001", "C1", "D1", "A", 10)
	h.run(t, []domain.WarehouseRow{first})

	second := first
	second.QtyOrdered = 99
	second.QtyShipped = 4
	result := h.run(t, []domain.WarehouseRow{second})
	assert.Equal(t, 1, result.ItemsUpdated)

	item := findItemRecord(t, fake, "A")
	assert.Equal(t, 10.0, item[crm.FieldItemQtyOrdered])
	assert.Equal(t, 4.0, item[crm.FieldItemQtyShipped])

	require.Len(t, fake.updates[crm.ObjectSalesOrderItem], 1)
	assert.NotContains(t, fake.updates[crm.ObjectSalesOrderItem][0], crm.FieldItemQtyOrdered)
}

func TestOrderReconciler_MissingIdentity(t *testing.T) {
	fake := newFakeCRM()
	h := newSyncHarness(t, fake)

	t.Run("empty customer number", func(t *testing.T) {
		result := h.run(t, []domain.WarehouseRow{row("9001", "", "D1", "A", 1)})

		assert.Equal(t, 0, result.OrdersCreated)
		assert.Equal(t, 0, result.OrdersUpdated)
		assert.Equal(t, 0, result.ItemsCreated)
		assert.Equal(t, 0, result.ItemsUpdated)
		assert.Equal(t, 1, result.OrdersSkipped)
	})

	t.Run("blank division number", func(t *testing.T) {
		result := h.run(t, []domain.WarehouseRow{row("9002", "C1", "   ", "A", 1)})
		assert.Equal(t, 1, result.OrdersSkipped)
	})

	assert.Equal(t, 0, fake.count("FindAccount"))
	assert.Equal(t, 0, fake.count("Create "+crm.ObjectAccount))
	assert.Equal(t, 0, fake.count("FindOrderByNumber"))
	assert.Equal(t, 0, fake.count("Create "+crm.ObjectSalesOrder))
}

func TestOrderReconciler_CreatesMissingAccountOnce(t *testing.T) {
	fake := newFakeCRM()
	h := newSyncHarness(t, fake)

	result := h.run(t, []domain.WarehouseRow{
		row("1001", "C9", "D9", "A", 1),
		row("1002", "C9", "D9", "A", 1),
	})

	assert.Equal(t, 2, result.OrdersCreated)
	assert.Equal(t, 1, fake.count("Create "+crm.ObjectAccount))
	assert.Equal(t, 1, fake.count("FindAccount"))

	accounts := fake.snapshot(crm.ObjectAccount)
	require.Len(t, accounts, 1)
	var accountID string
	for id, fields := range accounts {
		accountID = id
		assert.Equal(t, "Customer C9", fields[crm.FieldName])
		assert.Equal(t, service.AccountRegionNone, fields[crm.FieldAccountRegion])
		assert.Equal(t, service.AccountTypeDistributor, fields[crm.FieldAccountCustomerType])
		assert.Equal(t, "C9", fields[crm.FieldAccountCustomerNumber])
		assert.Equal(t, "D9", fields[crm.FieldAccountDivisionNumber])
	}
	assert.Equal(t, accountID, findOrderRecord(t, fake, "1001")[crm.FieldOrderAccount])
	assert.Equal(t, accountID, findOrderRecord(t, fake, "1002")[crm.FieldOrderAccount])
}

func TestOrderReconciler_FailureIsolation(t *testing.T) {
	t.Run("failed account creation skips the order", func(t *testing.T) {
		fake := newFakeCRM()
		fake.createErr = func(objectType string, fields crm.Fields) error {
			if objectType == crm.ObjectAccount {
				return rejection("REQUIRED_FIELD_MISSING")
			}
			return nil
		}
		h := newSyncHarness(t, fake)

		result := h.run(t, []domain.WarehouseRow{row("2001", "C1", "D1", "A", 1)})

		assert.Equal(t, 1, result.OrdersSkipped)
		assert.Equal(t, 1, result.Failures)
		assert.Equal(t, 1, fake.count("Create "+crm.ObjectAccount))
		assert.Equal(t, 0, fake.count("FindOrderByNumber"))
		assert.Equal(t, 0, fake.count("Create "+crm.ObjectSalesOrder))
	})

	t.Run("failed order creation skips its items but not the next order", func(t *testing.T) {
		fake := newFakeCRM()
		fake.seedAccount("Customer C1", "C1", "D1")
		fake.createErr = func(objectType string, fields crm.Fields) error {
			if objectType == crm.ObjectSalesOrder && fields[crm.FieldOrderNumber] == "2002" {
				return rejection("FIELD_CUSTOM_VALIDATION_EXCEPTION")
			}
			return nil
		}
		h := newSyncHarness(t, fake)

		result := h.run(t, []domain.WarehouseRow{
			row("2002", "C1", "D1", "A", 1),
			row("2002", "C1", "D1", "B", 1),
			row("2003", "C1", "D1", "A", 1),
		})

		assert.Equal(t, 1, result.OrdersCreated)
		assert.Equal(t, 1, result.ItemsCreated)
		assert.Equal(t, 1, result.OrdersSkipped)
		assert.Equal(t, 1, result.Failures)
		assert.Equal(t, 1, fake.count("FindLineItem"))
	})

	t.Run("failed order update still reconciles items", func(t *testing.T) {
		fake := newFakeCRM()
		fake.seedAccount("Customer C1", "C1", "D1")
		h := newSyncHarness(t, fake)
		rows := []domain.WarehouseRow{
			row("2004", "C1", "D1", "A", 1),
			row("2004", "C1", "D1", "B", 1),
		}
		h.run(t, rows)

		fake.updateErr = func(objectType, id string, fields crm.Fields) error {
			if objectType == crm.ObjectSalesOrder {
				return rejection("ENTITY_IS_LOCKED")
			}
			return nil
		}
		result := h.run(t, rows)

		assert.Equal(t, 0, result.OrdersUpdated)
		assert.Equal(t, 1, result.Failures)
		assert.Equal(t, 2, result.ItemsUpdated)
	})

	t.Run("failed item does not stop siblings", func(t *testing.T) {
		fake := newFakeCRM()
		fake.seedAccount("Customer C1", "C1", "D1")
		fake.createErr = func(objectType string, fields crm.Fields) error {
			if objectType == crm.ObjectSalesOrderItem && fields[crm.FieldItemProductCode] == "A" {
				return rejection("STRING_TOO_LONG")
			}
			return nil
		}
		h := newSyncHarness(t, fake)

		result := h.run(t, []domain.WarehouseRow{
			row("2005", "C1", "D1", "A", 1),
			row("2005", "C1", "D1", "B", 1),
		})

		assert.Equal(t, 1, result.OrdersCreated)
		assert.Equal(t, 1, result.ItemsCreated)
		assert.Equal(t, 1, result.Failures)
	})

	t.Run("order lookup failure skips the order", func(t *testing.T) {
		fake := newFakeCRM()
		fake.seedAccount("Customer C1", "C1", "D1")
		fake.lookupErr = func(operation string) error {
			if operation == "FindOrderByNumber" {
				return &crm.APIError{StatusCode: 500, Body: "boom"}
			}
			return nil
		}
		h := newSyncHarness(t, fake)

		result := h.run(t, []domain.WarehouseRow{row("2006", "C1", "D1", "A", 1)})

		assert.Equal(t, 1, result.OrdersSkipped)
		assert.Equal(t, 1, result.Failures)
		assert.Equal(t, 0, fake.count("Create "+crm.ObjectSalesOrder))
	})
}

func TestOrderReconciler_SkipsEmptyProductCode(t *testing.T) {
	fake := newFakeCRM()
	fake.seedAccount("Customer C1", "C1", "D1")
	h := newSyncHarness(t, fake)

	result := h.run(t, []domain.WarehouseRow{
		row("3001", "C1", "D1", "  ", 1),
		row("3001", "C1", "D1", "B", 1),
	})

	assert.Equal(t, 1, result.OrdersCreated)
	assert.Equal(t, 1, result.ItemsCreated)
	assert.Equal(t, 1, result.ItemsSkipped)
	assert.Equal(t, 1, fake.count("FindLineItem"))
}

func TestReconcileResult_Add(t *testing.T) {
	total := service.ReconcileResult{OrdersCreated: 1, ItemsCreated: 2}
	total.Add(service.ReconcileResult{OrdersCreated: 1, OrdersUpdated: 3, Failures: 1})

	assert.Equal(t, service.ReconcileResult{OrdersCreated: 2, OrdersUpdated: 3, ItemsCreated: 2, Failures: 1}, total)
}
