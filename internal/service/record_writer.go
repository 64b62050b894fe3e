package service

import (
	"context"
	"errors"

	"github.com/straye-as/order-sync/internal/crm"
	"github.com/straye-as/order-sync/internal/metrics"
	"github.com/straye-as/order-sync/internal/retry"
	"go.uber.org/zap"
)

// RecordWriter applies the failure policy to every CRM call:
// rejections are permanent, transport failures are retried by the policy,
// anything else is permanent immediately. Failures are logged here with the
// caller's identifying fields and returned so the caller can skip the record.
type RecordWriter struct {
	crm    CRM
	policy *retry.Policy
	logger *zap.Logger
}

// NewRecordWriter creates a RecordWriter. policy.Retryable should classify transport errors.
func NewRecordWriter(c CRM, policy *retry.Policy, logger *zap.Logger) *RecordWriter {
	return &RecordWriter{crm: c, policy: policy, logger: logger}
}

// Create inserts a record and returns its id
func (w *RecordWriter) Create(ctx context.Context, objectType string, fields crm.Fields, logFields ...zap.Field) (string, error) {
	var id string
	err := w.policy.Do(ctx, "create "+objectType, func(ctx context.Context) error {
		var err error
		id, err = w.crm.Create(ctx, objectType, fields)
		return err
	})
	if err != nil {
		w.logFailure("create", objectType, err, logFields)
		return "", err
	}

	metrics.RecordWrite(objectType, metrics.OutcomeCreated)
	w.logger.Info("Created CRM record",
		append(logFields, zap.String("object_type", objectType), zap.String("record_id", id))...)
	return id, nil
}

// Update patches fields of an existing record
func (w *RecordWriter) Update(ctx context.Context, objectType, id string, fields crm.Fields, logFields ...zap.Field) error {
	err := w.policy.Do(ctx, "update "+objectType, func(ctx context.Context) error {
		return w.crm.Update(ctx, objectType, id, fields)
	})
	logFields = append(logFields, zap.String("record_id", id))
	if err != nil {
		w.logFailure("update", objectType, err, logFields)
		return err
	}

	metrics.RecordWrite(objectType, metrics.OutcomeUpdated)
	w.logger.Info("Updated CRM record", append(logFields, zap.String("object_type", objectType))...)
	return nil
}

// Lookup runs a read under the retry policy. Failures are logged and returned.
func (w *RecordWriter) Lookup(ctx context.Context, operation string, fn func(ctx context.Context) error, logFields ...zap.Field) error {
	err := w.policy.Do(ctx, operation, fn)
	if err != nil {
		w.logger.Error("CRM lookup failed",
			append(logFields, zap.String("operation", operation), zap.Error(err))...)
	}
	return err
}

func (w *RecordWriter) logFailure(op, objectType string, err error, logFields []zap.Field) {
	fields := append(logFields, zap.String("object_type", objectType), zap.String("op", op), zap.Error(err))

	var rej *crm.RejectionError
	switch {
	case errors.As(err, &rej):
		metrics.RecordWrite(objectType, metrics.OutcomeRejected)
		w.logger.Error("CRM rejected record", append(fields, zap.Strings("error_codes", rej.ErrorCodes()))...)
	case crm.IsTransient(err):
		metrics.RecordWrite(objectType, metrics.OutcomeFailed)
		w.logger.Error("CRM write failed after retries", append(fields, zap.Int("max_attempts", w.policy.MaxAttempts))...)
	default:
		metrics.RecordWrite(objectType, metrics.OutcomeFailed)
		w.logger.Error("CRM write failed", fields...)
	}
}
