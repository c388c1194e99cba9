package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "release not found")
		if err.Error() != "[NOT_FOUND] release not found" {
			t.Errorf("expected [NOT_FOUND] release not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("connection reset")
		err := Wrap(original, CodeUnavailable, "pypi request failed")
		expected := "[UNAVAILABLE] pypi request failed: connection reset"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidationError, "weights must sum to 1.0")
		if !IsCode(err, CodeValidationError) {
			t.Error("expected IsCode to return true for CodeValidationError")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		err := fmt.Errorf("snapshot: %w", New(CodeSyntax, "invalid syntax"))
		if !IsCode(err, CodeSyntax) {
			t.Error("expected IsCode to see through fmt.Errorf wrapping")
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := AddContext(New(CodeNotFound, "missing"), CtxPackage, "requests")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatal("expected DomainError")
		}
		if de.Context[CtxPackage] != "requests" {
			t.Errorf("expected package context, got %v", de.Context)
		}

		plain := AddContext(errors.New("boom"), CtxPath, "a.py")
		if !IsCode(plain, CodeInternal) {
			t.Error("expected plain errors to be wrapped as internal")
		}
	})
}
