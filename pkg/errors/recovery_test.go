package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestRecover_WithPanic tests the Recover function when a panic occurs
func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		panic("test panic message")
	}

	err := testFunc()
	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "TestOperation" {
		t.Errorf("Expected operation 'TestOperation', got '%s'", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
	if panicErr.Error() != "panic in TestOperation: test panic message" {
		t.Errorf("unexpected message: %s", panicErr.Error())
	}
}

// TestRecover_WithExistingError tests Recover when function has existing error and panic occurs
func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("original error")

	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		err = originalErr
		panic("panic after error")
	}

	err := testFunc()
	if !errors.Is(err, originalErr) {
		t.Errorf("expected wrapped original error, got %v", err)
	}
	if !strings.Contains(err.Error(), "panic in TestOperation") {
		t.Errorf("Error message should contain panic info: %s", err.Error())
	}
}

func TestSafeExecute(t *testing.T) {
	testCases := []struct {
		name       string
		fn         func() error
		wantPanic  bool
		wantErrMsg string
	}{
		{
			name: "success",
			fn:   func() error { return nil },
		},
		{
			name:       "returned error passes through",
			fn:         func() error { return fmt.Errorf("plain failure") },
			wantErrMsg: "plain failure",
		},
		{
			name:       "string panic",
			fn:         func() error { panic("unexpected nil pointer") },
			wantPanic:  true,
			wantErrMsg: "panic in tree 3: unexpected nil pointer",
		},
		{
			name:       "error panic",
			fn:         func() error { panic(errors.New("index out of range")) },
			wantPanic:  true,
			wantErrMsg: "panic in tree 3: index out of range",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := SafeExecute("tree 3", tc.fn)
			if tc.wantErrMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			if err.Error() != tc.wantErrMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tc.wantErrMsg)
			}
			var panicErr *PanicError
			if errors.As(err, &panicErr) != tc.wantPanic {
				t.Errorf("PanicError = %v, want %v", panicErr != nil, tc.wantPanic)
			}
			if tc.wantPanic && panicErr.StackTrace == "" {
				t.Error("expected captured stack trace")
			}
		})
	}
}
