package service

import (
	"context"

	"github.com/straye-as/order-sync/internal/crm"
)

// CRM is the set of CRM operations the reconciliation depends on.
// *crm.Client implements it.
type CRM interface {
	QueryAccounts(ctx context.Context) ([]crm.Account, error)
	FindAccount(ctx context.Context, customerNumber, divisionNumber string) (*crm.Account, error)
	FindOrderByInvoice(ctx context.Context, invoiceNumber string) (string, error)
	FindOrderByNumber(ctx context.Context, orderNumber string) (string, error)
	FindLineItem(ctx context.Context, parentID, productCode string) (string, error)
	Create(ctx context.Context, objectType string, fields crm.Fields) (string, error)
	Update(ctx context.Context, objectType, id string, fields crm.Fields) error
}

var _ CRM = (*crm.Client)(nil)
