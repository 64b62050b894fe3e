package service

import (
	"github.com/straye-as/order-sync/internal/crm"
	"github.com/straye-as/order-sync/internal/domain"
)

// Fixed values written on record creation
const (
	OrderTypePerformance = "Performance"
	ItemPlaceholderName  = "TempName"

	AccountRegionNone      = "None"
	AccountTypeDistributor = "Warehouse Distributor"
	AccountDescriptionAuto = "Script-created"
)

// OrderUpdatableFields are the order fields refreshed on an existing order.
// They are the fields expected to change as an order moves from open to posted.
var OrderUpdatableFields = []string{
	crm.FieldOrderPostingDate,
	crm.FieldOrderStatus,
	crm.FieldOrderCustomerPO,
}

// ItemUpdatableFields are the line item fields refreshed on an existing item.
// Quantity ordered is recorded at creation only.
var ItemUpdatableFields = []string{
	crm.FieldItemDescription,
	crm.FieldItemQtyShipped,
	crm.FieldItemUnitPrice,
	crm.FieldItemDiscount,
	crm.FieldItemDeduction,
	crm.FieldItemComment,
}

// AccountFields builds the create payload of a new account
func AccountFields(customerName, customerNumber, divisionNumber string) crm.Fields {
	return crm.Fields{
		crm.FieldName:                  customerName,
		crm.FieldAccountRegion:         AccountRegionNone,
		crm.FieldAccountCustomerType:   AccountTypeDistributor,
		crm.FieldAccountDescription:    AccountDescriptionAuto,
		crm.FieldAccountDivisionNumber: divisionNumber,
		crm.FieldAccountCustomerNumber: customerNumber,
	}
}

// OrderFields builds the full payload of an order. The status is derived from the posting date.
func OrderFields(h domain.OrderHeader, accountID string) crm.Fields {
	return crm.Fields{
		crm.FieldName:                h.CustomerName + " - " + h.SalesOrderNumber,
		crm.FieldOrderNumber:         h.SalesOrderNumber,
		crm.FieldOrderAccount:        accountID,
		crm.FieldOrderDate:           optional(h.SalesOrderDate),
		crm.FieldOrderPostingDate:    optional(h.PostingDate),
		crm.FieldOrderInvoiceNumber:  h.InvoiceNumber,
		crm.FieldOrderType:           OrderTypePerformance,
		crm.FieldOrderCustomerPO:     h.CustomerPONumber,
		crm.FieldOrderCustomerNumber: h.CustomerNumber,
		crm.FieldOrderStatus:         string(domain.StatusFor(h.PostingDate)),
	}
}

// OrderUpdateFields projects the order payload through OrderUpdatableFields
func OrderUpdateFields(h domain.OrderHeader, accountID string) crm.Fields {
	return OrderFields(h, accountID).Only(OrderUpdatableFields)
}

// ItemFields builds the full payload of a line item under parentID
func ItemFields(item domain.LineItem, parentID string) crm.Fields {
	return crm.Fields{
		crm.FieldItemProductCode: item.ProductCode,
		crm.FieldItemDescription: item.Description,
		crm.FieldItemQtyOrdered:  item.QtyOrdered,
		crm.FieldItemQtyShipped:  item.QtyShipped,
		crm.FieldItemUnitPrice:   item.UnitPrice,
		crm.FieldItemDiscount:    item.Discount,
		crm.FieldItemDeduction:   item.Deduction,
		crm.FieldItemComment:     item.Comment,
		crm.FieldItemParent:      parentID,
		crm.FieldName:            ItemPlaceholderName,
	}
}

// ItemUpdateFields projects the item payload through ItemUpdatableFields
func ItemUpdateFields(item domain.LineItem, parentID string) crm.Fields {
	return ItemFields(item, parentID).Only(ItemUpdatableFields)
}

// optional turns a missing date into a JSON null
func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
