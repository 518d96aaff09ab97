package backend

import (
	"errors"
	"net/http"
	"testing"
)

func TestAsBackendError(t *testing.T) {
	plain := errors.New("connection refused")
	tests := []struct {
		name       string
		in         error
		wantStatus int
		wantSame   bool
	}{
		{name: "nil", in: nil, wantSame: true},
		{name: "plain error is wrapped", in: plain},
		{name: "backend error kept", in: &BackendError{Status: http.StatusConflict, Message: "exists"}, wantStatus: http.StatusConflict, wantSame: true},
		{name: "validation kept", in: Invalid("email", "bad"), wantSame: true},
		{name: "no session kept", in: ErrNoSession, wantSame: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsBackendError(tt.in)
			if tt.wantSame {
				if got != tt.in {
					t.Fatalf("expected %v to pass through, got %v", tt.in, got)
				}
			} else {
				var be *BackendError
				if !errors.As(got, &be) || !errors.Is(got, tt.in) {
					t.Fatalf("expected wrapped BackendError, got %#v", got)
				}
			}
			if s := StatusOf(got); s != tt.wantStatus {
				t.Errorf("status = %d, want %d", s, tt.wantStatus)
			}
		})
	}
}

func TestBackendErrorMessage(t *testing.T) {
	if got := (&BackendError{Status: http.StatusNotFound}).Error(); got != "Not Found" {
		t.Errorf("got %q", got)
	}
	if got := (&BackendError{Status: 400, Message: "Invalid login credentials"}).Error(); got != "Invalid login credentials" {
		t.Errorf("got %q", got)
	}
}
