package antigravity

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewAuthError_StatusByKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindMalformedRequest, http.StatusBadRequest},
		{KindProviderDenied, http.StatusBadRequest},
		{KindExchangeFailure, http.StatusInternalServerError},
		{KindIdentityResolution, http.StatusInternalServerError},
		{KindStorageFailure, http.StatusInternalServerError},
		{KindTimeout, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := NewAuthError(tt.kind, "msg", nil).StatusCode; got != tt.want {
				t.Fatalf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("callback: %w", NewAuthError(KindStorageFailure, "Failed to store account", cause))

	if got := KindOf(err); got != KindStorageFailure {
		t.Fatalf("KindOf = %q, want %q", got, KindStorageFailure)
	}
	if !IsAuthError(err) {
		t.Fatal("expected IsAuthError to be true")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through errors.Is")
	}
	if KindOf(cause) != "" {
		t.Fatal("plain error must not carry a kind")
	}
}
