package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
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
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStaleVersion, status: http.StatusConflict, publicMsg: "stale version", detailsOK: true},
		{code: CodeCanceled, status: 499, publicMsg: "request canceled", retryable: true},
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
	base := New(CodeValidation, "missing cart id")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing cart id" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	if base.WithDetails("x").DetailsPublic() {
		t.Fatal("plain details should not be public")
	}
	if !New(CodeDependency, "down").WithPublicDetails("x").DetailsPublic() {
		t.Fatal("expected public details")
	}

	cause := stdErrors.New("redis down")
	wrapped := Wrap(CodeDependency, cause, "add item")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("expected wrapped error to unwrap to cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: add item: redis down" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	typed := New(CodeNotFound, "cart missing")
	chained := fmt.Errorf("handler: %w", typed)
	if got := As(chained); got != typed {
		t.Fatalf("expected typed error, got %v", got)
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("expected nil for untyped error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "untyped", err: stdErrors.New("boom"), want: true},
		{name: "dependency", err: New(CodeDependency, "push failed"), want: true},
		{name: "not found", err: New(CodeNotFound, "cart gone"), want: false},
		{name: "validation", err: New(CodeValidation, "bad payload"), want: false},
		{name: "canceled", err: fmt.Errorf("store: %w", context.Canceled), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDumpFields(t *testing.T) {
	err := fmt.Errorf("mark processed: %w", Wrap(CodeConflict, stdErrors.New("duplicate key value"), "ledger insert"))
	fields := Dump(err).Fields()
	if fields["error_code"] != CodeConflict {
		t.Fatalf("expected conflict code, got %v", fields["error_code"])
	}
	chain, ok := fields["error_chain"].([]string)
	if !ok || len(chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %v", fields["error_chain"])
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatal("empty pg fields should be omitted")
	}
}
