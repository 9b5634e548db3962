package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", NotFound("chat %d not found", 7), KindNotFound},
		{"wrapped", fmt.Errorf("gateway: %w", ConnectionError(cause, "session unavailable")), KindConnection},
		{"deadline", context.DeadlineExceeded, KindConnection},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, test := range tests {
		if got := KindOf(test.err); got != test.want {
			t.Errorf("%s: KindOf = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("AUTH_KEY_UNREGISTERED")
	err := AuthError(cause, "session credential rejected")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if err.Error() != "session credential rejected" {
		t.Errorf("Error() = %q", err.Error())
	}
	if KindAuth.Retryable() || !KindConnection.Retryable() {
		t.Error("only connection errors are retryable")
	}
}
