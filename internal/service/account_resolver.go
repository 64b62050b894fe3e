package service

import (
	"context"
	"strings"

	"github.com/straye-as/order-sync/internal/crm"
	"github.com/straye-as/order-sync/internal/domain"
	"go.uber.org/zap"
)

// AccountResolver finds or creates CRM accounts by customer and division number.
// Lookups consult the cycle's AccountIndex first, then the CRM. The index is
// passed in by the caller and updated in place.
type AccountResolver struct {
	crm    CRM
	writer *RecordWriter
	logger *zap.Logger
}

// NewAccountResolver creates an AccountResolver
func NewAccountResolver(c CRM, writer *RecordWriter, logger *zap.Logger) *AccountResolver {
	return &AccountResolver{crm: c, writer: writer, logger: logger}
}

// LoadAccountIndex builds a fresh index from a full scan of non-deleted accounts.
// Accounts without a customer number cannot be keyed and are skipped.
func (r *AccountResolver) LoadAccountIndex(ctx context.Context) (*domain.AccountIndex, error) {
	var accounts []crm.Account
	err := r.writer.Lookup(ctx, "query accounts", func(ctx context.Context) error {
		var err error
		accounts, err = r.crm.QueryAccounts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	index := domain.NewAccountIndex()
	skipped := 0
	for _, a := range accounts {
		if strings.TrimSpace(a.CustomerNumber) == "" {
			skipped++
			continue
		}
		index.Put(a.CustomerNumber, a.DivisionNumber, domain.AccountRef{ID: a.ID, Name: a.Name})
	}

	r.logger.Info("Loaded account index",
		zap.Int("accounts", len(accounts)),
		zap.Int("indexed", index.Len()),
		zap.Int("skipped_without_customer_number", skipped),
	)
	return index, nil
}

// Resolve returns the account for the customer identity and whether it was found.
// Empty identity parts yield not-found without any remote call. A failed remote
// lookup is returned as an error rather than reported as not-found.
func (r *AccountResolver) Resolve(ctx context.Context, index *domain.AccountIndex, customerNumber, divisionNumber string) (domain.AccountRef, bool, error) {
	customerNumber = strings.TrimSpace(customerNumber)
	divisionNumber = strings.TrimSpace(divisionNumber)
	if customerNumber == "" || divisionNumber == "" {
		return domain.AccountRef{}, false, nil
	}

	if ref, ok := index.Get(customerNumber, divisionNumber); ok {
		return ref, true, nil
	}

	var account *crm.Account
	err := r.writer.Lookup(ctx, "find account", func(ctx context.Context) error {
		var err error
		account, err = r.crm.FindAccount(ctx, customerNumber, divisionNumber)
		return err
	}, zap.String("account_key", domain.AccountKey(customerNumber, divisionNumber)))
	if err != nil {
		return domain.AccountRef{}, false, err
	}
	if account == nil {
		return domain.AccountRef{}, false, nil
	}

	ref := domain.AccountRef{ID: account.ID, Name: account.Name}
	index.Put(customerNumber, divisionNumber, ref)
	r.logger.Debug("Account found by remote lookup",
		zap.String("account_key", domain.AccountKey(customerNumber, divisionNumber)),
		zap.String("record_id", ref.ID),
	)
	return ref, true, nil
}

// CreateIfMissing creates an account for a customer identity that Resolve did not find
// and adds it to the index. It is attempted once per order.
func (r *AccountResolver) CreateIfMissing(ctx context.Context, index *domain.AccountIndex, customerName, customerNumber, divisionNumber string) (domain.AccountRef, error) {
	customerNumber = strings.TrimSpace(customerNumber)
	divisionNumber = strings.TrimSpace(divisionNumber)
	customerName = strings.TrimSpace(customerName)

	id, err := r.writer.Create(ctx, crm.ObjectAccount, AccountFields(customerName, customerNumber, divisionNumber),
		zap.String("account_key", domain.AccountKey(customerNumber, divisionNumber)),
		zap.String("customer_name", customerName),
	)
	if err != nil {
		return domain.AccountRef{}, err
	}

	ref := domain.AccountRef{ID: id, Name: customerName}
	index.Put(customerNumber, divisionNumber, ref)
	return ref, nil
}
