package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeToolNotFound, "Tool 'x' not found")
		if err.Error() != "[TOOL_NOT_FOUND] Tool 'x' not found" {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("boom")
		err := Wrap(original, CodeToolExecution, "Tool 'x' execution failed")
		expected := "[EXECUTION_ERROR] Tool 'x' execution failed: boom"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidationError, "invalid input")
		if !IsCode(err, CodeValidationError) {
			t.Error("expected IsCode to return true for CodeValidationError")
		}
		if IsCode(err, CodeToolNotFound) {
			t.Error("expected IsCode to return false for CodeToolNotFound")
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		err := fmt.Errorf("load: %w", New(CodeConfiguration, "bad file"))
		if !IsCode(err, CodeConfiguration) {
			t.Error("expected IsCode to see through fmt wrapping")
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := AddContext(New(CodeValidationError, "bad"), CtxParameter, "limit")
		v, ok := ContextValue(err, CtxParameter)
		if !ok || v != "limit" {
			t.Fatalf("expected parameter context, got %v %v", v, ok)
		}

		plain := AddContext(errors.New("x"), CtxTool, "t")
		if !IsCode(plain, CodeInternal) {
			t.Error("expected plain error to be wrapped as internal")
		}
	})
}
