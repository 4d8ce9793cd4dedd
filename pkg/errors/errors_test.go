package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
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
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeTxConflict, status: http.StatusConflict, publicMsg: "concurrent update detected, try again", retryable: true},
		{code: CodeIntegrity, status: http.StatusConflict, publicMsg: "referenced record no longer exists", detailsOK: true},
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

	base.WithDetails(map[string]any{"field": "foo"})
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

func TestHasCodeFollowsWrapping(t *testing.T) {
	inner := New(CodeTxConflict, "retry")
	outer := fmt.Errorf("issue: %w", inner)
	if !HasCode(outer, CodeTxConflict) {
		t.Fatalf("expected wrapped code to be found")
	}
	if HasCode(outer, CodeConflict) {
		t.Fatalf("unexpected code match")
	}
	if HasCode(nil, CodeInternal) {
		t.Fatalf("nil error should not match")
	}
}

func TestDumpReadsPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "equipment_stock_check", TableName: "equipment", Message: "check violation"}
	err := Wrap(CodeInternal, fmt.Errorf("decrement stock: %w", pgErr), "stock update failed")

	dump := Dump(err)
	if dump.Driver != "pgx" || dump.PGConstraint != "equipment_stock_check" || dump.Code != CodeInternal {
		t.Fatalf("unexpected dump %+v", dump)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected the wrapped chain, got %v", dump.Chain)
	}
	fields := dump.Fields()
	if fields["pg_table"] != "equipment" {
		t.Fatalf("expected pg_table field, got %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
}

func TestDumpWithoutDriverError(t *testing.T) {
	fields := Dump(stdErrors.New("boom")).Fields()
	if _, ok := fields["pg_driver"]; ok {
		t.Fatalf("unexpected pg fields %v", fields)
	}
	if fields["error"] != "boom" {
		t.Fatalf("unexpected top message %v", fields["error"])
	}
}

func TestWithReasonBuildsDetails(t *testing.T) {
	err := New(CodeConflict, "insufficient stock").WithReason("insufficient_stock", "available", 2, "requested", 5, "dangling")
	details, ok := err.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", err.Details())
	}
	if details["reason"] != "insufficient_stock" || details["available"] != 2 || details["requested"] != 5 {
		t.Fatalf("unexpected details %v", details)
	}
	if _, ok := details["dangling"]; ok {
		t.Fatalf("key without value should be dropped")
	}
	if got := Reason(fmt.Errorf("issue: %w", err)); got != "insufficient_stock" {
		t.Fatalf("expected reason through wrapping, got %q", got)
	}
	if Reason(stdErrors.New("plain")) != "" {
		t.Fatalf("untyped errors carry no reason")
	}
}

func TestIsMatchesCodeSentinel(t *testing.T) {
	inner := Newf(CodeNotFound, "equipment %s not found", "helmet")
	outer := Wrap(CodeDependency, inner, "load catalogue")

	if !stdErrors.Is(outer, New(CodeNotFound, "")) {
		t.Fatalf("expected code sentinel to match inner error")
	}
	if stdErrors.Is(outer, New(CodeNotFound, "other message")) {
		t.Fatalf("a sentinel with a message must not match by code")
	}
	if !HasCode(outer, CodeNotFound) || !HasCode(outer, CodeDependency) {
		t.Fatalf("expected both codes in the chain")
	}
	if CodeOf(outer) != CodeDependency {
		t.Fatalf("expected outermost code, got %s", CodeOf(outer))
	}
	if CodeOf(stdErrors.New("boom")) != CodeInternal {
		t.Fatalf("untyped errors map to internal")
	}
	if inner.Message() != "equipment helmet not found" {
		t.Fatalf("unexpected message %q", inner.Message())
	}
}
