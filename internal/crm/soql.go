package crm

import "strings"

var soqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Quote renders s as a single-quoted SOQL string literal
func Quote(s string) string {
	return "'" + soqlEscaper.Replace(s) + "'"
}

const (
	accountScanQuery = "SELECT Id, Name, LOP_Customer_Number__c, AR_Div_Number__c FROM Account WHERE IsDeleted = FALSE"
)

func accountByCustomerQuery(customerNumber, divisionNumber string) string {
	return "SELECT Id, Name FROM Account WHERE LOP_Customer_Number__c = " + Quote(customerNumber) +
		" AND AR_Div_Number__c = " + Quote(divisionNumber) + " LIMIT 1"
}

func orderByInvoiceQuery(invoiceNumber string) string {
	return "SELECT Id FROM Sales_Order__c WHERE Invoice_Number__c = " + Quote(invoiceNumber) + " LIMIT 1"
}

func orderByNumberQuery(orderNumber string) string {
	return "SELECT Id FROM Sales_Order__c WHERE Sales_Order_Number__c = " + Quote(orderNumber) + " LIMIT 1"
}

func lineItemQuery(parentID, productCode string) string {
	return "SELECT Id FROM Sales_Order_Item__c WHERE Sales_Order_Number__c = " + Quote(parentID) +
		" AND Product_Code__c = " + Quote(productCode) + " LIMIT 1"
}
