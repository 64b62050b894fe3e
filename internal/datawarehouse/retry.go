package datawarehouse

import (
	"context"

	"github.com/straye-as/order-sync/internal/retry"
)

// RetryingQuerier runs every query through a retry policy
type RetryingQuerier struct {
	querier Querier
	policy  *retry.Policy
}

// NewRetryingQuerier wraps querier with policy. A nil policy makes a single attempt.
func NewRetryingQuerier(querier Querier, policy *retry.Policy) *RetryingQuerier {
	return &RetryingQuerier{querier: querier, policy: policy}
}

func (q *RetryingQuerier) Query(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	if q.policy == nil {
		return q.querier.Query(ctx, query, args...)
	}

	var rs *ResultSet
	err := q.policy.Do(ctx, "warehouse.query", func(ctx context.Context) error {
		var err error
		rs, err = q.querier.Query(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}
