package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotFound, "brief xyz not found")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}

	if err.Message != "brief xyz not found" {
		t.Errorf("Message = %v, want 'brief xyz not found'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("original error")
	err := Wrap(underlying, ErrCodeMalformed, "task queue is malformed")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if !strings.Contains(err.Error(), "original error") {
		t.Error("Error string should include underlying error")
	}

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should see the underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "test"); err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodePathNotAllowed, "path not allowed").
		WithContext("path", "/etc/passwd").
		WithContext("bases", 2)

	errStr := err.Error()
	want := "[PATH_NOT_ALLOWED] path not allowed {bases: 2, path: /etc/passwd}"
	if errStr != want {
		t.Errorf("Error() = %q, want %q", errStr, want)
	}
}

func TestClientMessage(t *testing.T) {
	err := New(ErrCodeUnauthorized, "jwt parse failed")
	if err.ClientMessage() != "jwt parse failed" {
		t.Errorf("ClientMessage() = %q", err.ClientMessage())
	}

	err.WithUserMessage("Token expired")
	if err.ClientMessage() != "Token expired" {
		t.Errorf("ClientMessage() = %q, want user message", err.ClientMessage())
	}
}

func TestIsCode_ThroughWrapping(t *testing.T) {
	inner := New(ErrCodeForbidden, "not authorized")
	outer := fmt.Errorf("verify: %w", inner)

	if !IsCode(outer, ErrCodeForbidden) {
		t.Error("IsCode should find code through fmt.Errorf wrapping")
	}
	if IsCode(outer, ErrCodeUnauthorized) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(errors.New("plain"), ErrCodeForbidden) {
		t.Error("IsCode matched a plain error")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}
	if GetCode(errors.New("plain")) != ErrCodeInternal {
		t.Error("plain errors should map to INTERNAL")
	}
	if GetCode(New(ErrCodeTimeout, "slow")) != ErrCodeTimeout {
		t.Error("GetCode should return the structured code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodePathNotAllowed, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeMalformed, http.StatusInternalServerError},
		{ErrCodeUpstream, http.StatusBadGateway},
		{ErrCodeTimeout, http.StatusGatewayTimeout},
		{ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := HTTPStatus(New(tt.code, "x")); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}

	if got := HTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("plain error status = %d, want 500", got)
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrCodeInternal, "boom")
	trace := err.StackTrace()
	if !strings.Contains(trace, "TestStackTrace") {
		t.Errorf("stack trace should mention the calling test, got:\n%s", trace)
	}
}
