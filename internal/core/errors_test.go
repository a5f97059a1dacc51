package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("post: %w", ErrTransientNetwork), ErrCodeTransientNetwork},
		{fmt.Errorf("decode: %w", ErrProtocolDecode), ErrCodeProtocolDecode},
		{ErrUnauthenticated, ErrCodeUnauthenticated},
		{fmt.Errorf("send: %w", ErrRejected), ErrCodeRejected},
		{coreError(ErrCodeTooLarge, "too big", ErrTooLarge), ErrCodeTooLarge},
		{context.DeadlineExceeded, ErrCodeTransientNetwork},
		{errors.New("boom"), ErrCodeTransientNetwork},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(fmt.Errorf("x: %w", ErrTransientNetwork)) {
		t.Fatalf("wrapped transient error not detected")
	}
	if IsTransient(context.Canceled) {
		t.Fatalf("cancellation must not be retried")
	}
	if IsTransient(ErrRejected) {
		t.Fatalf("rejection must not be retried")
	}
}

func TestCoreErrorUnwrap(t *testing.T) {
	err := NewError("send failed", fmt.Errorf("dial: %w", ErrTransientNetwork))
	if err.Code != ErrCodeTransientNetwork {
		t.Fatalf("code = %q", err.Code)
	}
	if !errors.Is(err, ErrTransientNetwork) {
		t.Fatalf("CoreError should unwrap to its cause")
	}
}
