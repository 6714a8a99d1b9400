package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeInsufficientBalance, status: http.StatusUnprocessableEntity, publicMsg: "insufficient balance", detailsOK: true},
		{code: CodePaymentGateway, status: http.StatusBadGateway, publicMsg: "payment gateway error", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	err := fmt.Errorf("reserve: %w", New(CodeInsufficientStock, "sku short"))
	if !IsCode(err, CodeInsufficientStock) {
		t.Fatalf("expected wrapped insufficient stock code")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("unexpected match for not found")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatalf("nil error must not match")
	}
}

func TestClassifyMapsDatabaseFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"typed passes through", fmt.Errorf("x: %w", New(CodeNotFound, "gone")), CodeNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}, CodeConflict},
		{"stock check", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "23514", ConstraintName: "skus_reserved_within_stock"}), CodeInsufficientStock},
		{"balance check via pq", &pq.Error{Code: "23514", Constraint: "vendors_balance_non_negative"}, CodeInsufficientBalance},
		{"other check", &pgconn.PgError{Code: "23514", ConstraintName: "skus_price_non_negative"}, CodeStateConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, CodeDependency},
		{"unknown sqlstate", &pgconn.PgError{Code: "XX000"}, CodeDependency},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), CodeDependency},
		{"plain", stdErrors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Code() != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Code())
			}
			if !stdErrors.Is(got, tt.err) && As(tt.err) == nil {
				t.Fatalf("classified error lost its cause")
			}
		})
	}
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}
}

func TestLogFieldsIncludesChainAndPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "payments_order_id_key", TableName: "payments"}
	fields := LogFields(Wrap(CodeConflict, pgErr, "create payment"))
	if fields["error_code"] != CodeConflict {
		t.Fatalf("missing error_code: %v", fields)
	}
	if fields["pg_constraint"] != "payments_order_id_key" || fields["pg_table"] != "payments" {
		t.Fatalf("missing pg diagnostics: %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty diagnostics should be omitted: %v", fields)
	}
	if chain, ok := fields["error_chain"].([]string); !ok || len(chain) != 2 {
		t.Fatalf("unexpected chain %v", fields["error_chain"])
	}
	if fields := LogFields(stdErrors.New("flat")); fields["error_chain"] != nil {
		t.Fatalf("single error should not report a chain: %v", fields)
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("connection refused"), "load cart")
	if got := err.Error(); got != "DEPENDENCY_ERROR: load cart: connection refused" {
		t.Fatalf("unexpected message %q", got)
	}
}
