package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", Invalid("bad %s", "value"), http.StatusBadRequest},
		{"not found", NotFound("alert"), http.StatusNotFound},
		{"forbidden", Forbidden("not owner"), http.StatusForbidden},
		{"conflict", Conflict("alert is no longer %s", "active"), http.StatusConflict},
		{"unavailable", Unavailable("query", errors.New("conn refused")), http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("rollup: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestUnavailable_KeepsCause(t *testing.T) {
	cause := errors.New("conn refused")
	err := Unavailable("list samples", cause)
	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected ErrUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to stay in the chain")
	}
	if Unavailable("again", err) != err {
		t.Error("expected already-unavailable error to pass through unchanged")
	}
	if Unavailable("nil", nil) != nil {
		t.Error("expected nil for nil cause")
	}
}

func TestToHTTP_UnavailableIsRetryable(t *testing.T) {
	he := ToHTTP(Unavailable("rollup", context.DeadlineExceeded))
	if he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", he.Code)
	}
	body, ok := he.Message.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map body, got %T", he.Message)
	}
	if body["retryable"] != true {
		t.Errorf("expected retryable=true, got %v", body["retryable"])
	}
}

func TestToHTTP_HidesInternalDetail(t *testing.T) {
	he := ToHTTP(errors.New("pq: secret detail"))
	if he.Message != "internal server error" {
		t.Errorf("expected generic message, got %v", he.Message)
	}
}
