package crm

// Object types
const (
	ObjectAccount        = "Account"
	ObjectSalesOrder     = "Sales_Order__c"
	ObjectSalesOrderItem = "Sales_Order_Item__c"
)

// Account fields
const (
	FieldID                    = "Id"
	FieldName                  = "Name"
	FieldAccountCustomerNumber = "LOP_Customer_Number__c"
	FieldAccountDivisionNumber = "AR_Div_Number__c"
	FieldAccountRegion         = "Region__c"
	FieldAccountCustomerType   = "Customer_Type__c"
	FieldAccountDescription    = "Description"
)

// Sales order fields
const (
	FieldOrderNumber         = "Sales_Order_Number__c"
	FieldOrderAccount        = "Account_Name__c"
	FieldOrderDate           = "Sales_Order_Date__c"
	FieldOrderPostingDate    = "Posting_Date__c"
	FieldOrderInvoiceNumber  = "Invoice_Number__c"
	FieldOrderType           = "Order_Type__c"
	FieldOrderCustomerPO     = "Customer_Purchase_Order_Number__c"
	FieldOrderCustomerNumber = "Account_ID__c"
	FieldOrderStatus         = "Order_Status__c"
)

// Sales order item fields. The parent lookup shares its API name with the
// order number field on Sales_Order__c.
const (
	FieldItemParent      = "Sales_Order_Number__c"
	FieldItemProductCode = "Product_Code__c"
	FieldItemDescription = "Product_Description__c"
	FieldItemQtyOrdered  = "Quantity_Ordered__c"
	FieldItemQtyShipped  = "Quantity_Shipped__c"
	FieldItemUnitPrice   = "Unit_Price__c"
	FieldItemDiscount    = "Discount_Dollars__c"
	FieldItemDeduction   = "Deduction_Dollars__c"
	FieldItemComment     = "LOP_Order_Comments__c"
)

// Fields is a record payload keyed by field API name. A nil value is sent as JSON null.
type Fields map[string]any

// Only returns a copy holding just the allowed fields that are present
func (f Fields) Only(allowed []string) Fields {
	out := make(Fields, len(allowed))
	for _, name := range allowed {
		if v, ok := f[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Account is the subset of Account fields the sync reads
type Account struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CustomerNumber string `json:"LOP_Customer_Number__c"`
	DivisionNumber string `json:"AR_Div_Number__c"`
}

// recordID is used to decode point queries that only select Id
type recordID struct {
	ID string `json:"Id"`
}
