package errors

import (
	"fmt"
	"testing"
)

func TestWeaveError(t *testing.T) {
	err := New(ErrCodeSessionNotFound, "session 'x' not found")
	if err.Error() != "SESSION_NOT_FOUND: session 'x' not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := Wrap(cause, ErrCodeNotConnected, "not connected to host 'y'")

	if err.Unwrap() != cause {
		t.Error("Unwrap did not return the cause")
	}
	if !Is(err, ErrCodeNotConnected) {
		t.Error("Is failed on wrapped error")
	}
}

func TestIsWalksWrappedErrors(t *testing.T) {
	inner := AuthDenied("identity mismatch")
	outer := fmt.Errorf("handshake failed: %w", inner)

	if !Is(outer, ErrCodeAuthDenied) {
		t.Error("Is failed to unwrap fmt-wrapped error")
	}
	if Is(outer, ErrCodeRPCTimeout) {
		t.Error("Is matched the wrong code")
	}
	if Is(nil, ErrCodeAuthDenied) {
		t.Error("Is(nil) must be false")
	}
}

func TestGetCode(t *testing.T) {
	if code := GetCode(SessionNotFound("abc")); code != ErrCodeSessionNotFound {
		t.Errorf("GetCode = %s", code)
	}
	if code := GetCode(fmt.Errorf("plain")); code != "" {
		t.Errorf("GetCode on plain error = %s", code)
	}
}

func TestWithDetail(t *testing.T) {
	err := PortRangeExhausted(9500, 9510)
	if err.Details["start"] != 9500 || err.Details["end"] != 9510 {
		t.Errorf("unexpected details: %v", err.Details)
	}
	if err.Message != "all ports in range are in use" {
		t.Errorf("unexpected message: %s", err.Message)
	}
}
