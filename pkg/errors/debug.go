package errors

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// pgFault is the subset of a Postgres error both drivers expose.
type pgFault struct {
	code, constraint, table, column, detail, message string
}

func pgFaultOf(err error) (pgFault, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return pgFault{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return pgFault{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgFault{}, false
}

// SQLSTATE codes the API maps to client errors.
var sqlStateCodes = map[string]Code{
	"23505": CodeConflict,      // unique_violation
	"23503": CodeValidation,    // foreign_key_violation
	"23514": CodeStateConflict, // check_violation
	"40001": CodeDependency,    // serialization_failure
	"40P01": CodeDependency,    // deadlock_detected
	"57014": CodeDependency,    // query_canceled
}

// stockConstraints are the CHECK constraints guarding stock and balances.
var stockConstraints = map[string]Code{
	"skus_stock_non_negative":      CodeInsufficientStock,
	"skus_reserved_within_stock":   CodeInsufficientStock,
	"vendors_balance_non_negative": CodeInsufficientBalance,
}

// Classify returns err as a typed error. Typed errors pass through; database
// and context failures are mapped onto the closest code; anything else is
// internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if fault, ok := pgFaultOf(err); ok {
		if code, ok := stockConstraints[fault.constraint]; ok {
			return Wrap(code, err, MetadataFor(code).PublicMessage)
		}
		if code, ok := sqlStateCodes[fault.code]; ok {
			return Wrap(code, err, MetadataFor(code).PublicMessage)
		}
		return Wrap(CodeDependency, err, "database error")
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeDependency, err, "operation timed out")
	}
	return Wrap(CodeInternal, err, "unexpected error")
}

// LogFields flattens err for structured logs: its code, the unwrap chain and
// any Postgres diagnostics found along it.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
	}
	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}
	if fault, ok := pgFaultOf(err); ok {
		for k, v := range map[string]string{
			"pg_code":       fault.code,
			"pg_constraint": fault.constraint,
			"pg_table":      fault.table,
			"pg_column":     fault.column,
			"pg_detail":     fault.detail,
			"pg_message":    fault.message,
		} {
			if v != "" {
				fields[k] = v
			}
		}
	}
	return fields
}
