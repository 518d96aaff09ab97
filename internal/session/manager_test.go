package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/iliyamo/campus-marketplace/internal/backend"
	"github.com/iliyamo/campus-marketplace/internal/backend/backendtest"
	"github.com/iliyamo/campus-marketplace/internal/config"
)

func newManager(t *testing.T) (*Manager, *backendtest.Auth) {
	t.Helper()
	auth := backendtest.NewAuth()
	m := New(auth, config.DefaultMarket())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Close)
	return m, auth
}

func TestDomainRejectedBeforeBackendCall(t *testing.T) {
	emails := []string{
		"a@gmail.com",
		"a@nitc.ac.in.evil.com",
		"@nitc.ac.in",
		"",
		"a@nitcXac.in",
	}
	for _, email := range emails {
		t.Run("signup "+email, func(t *testing.T) {
			m, auth := newManager(t)
			before := auth.Total()
			_, err := m.SignUp(context.Background(), email, "secret1")
			if !backend.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if auth.Total() != before {
				t.Errorf("backend was called")
			}
		})
		t.Run("login "+email, func(t *testing.T) {
			m, auth := newManager(t)
			before := auth.Total()
			if err := m.Login(context.Background(), email, "secret1"); !backend.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if auth.Total() != before {
				t.Errorf("backend was called")
			}
		})
	}
}

func TestSignUpRequiresConfirmation(t *testing.T) {
	m, auth := newManager(t)

	notice, err := m.SignUp(context.Background(), "A@NITC.ac.in", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	if notice != NoticeConfirmEmail {
		t.Errorf("notice = %q", notice)
	}
	if m.State() != Unauthenticated {
		t.Errorf("expected no local session before confirmation, got %v", m.State())
	}

	err = m.Login(context.Background(), "a@nitc.ac.in", "secret1")
	var be *backend.BackendError
	if !errors.As(err, &be) || be.Status != http.StatusBadRequest {
		t.Fatalf("expected backend error for unconfirmed login, got %v", err)
	}

	auth.Confirm("a@nitc.ac.in")
	if err := m.Login(context.Background(), "a@nitc.ac.in", "secret1"); err != nil {
		t.Fatal(err)
	}
	if m.State() != Authenticated || m.Email() != "a@nitc.ac.in" {
		t.Errorf("expected authenticated a@nitc.ac.in, got %v %q", m.State(), m.Email())
	}
	if m.Banner() != "Logged in as: a@nitc.ac.in" {
		t.Errorf("banner = %q", m.Banner())
	}
}

func TestSignUpWithPreConfirmedSession(t *testing.T) {
	m, auth := newManager(t)
	auth.AutoConfirm = true

	if _, err := m.SignUp(context.Background(), "b@nitc.ac.in", "secret1"); err != nil {
		t.Fatal(err)
	}
	if m.State() != Authenticated {
		t.Errorf("expected Authenticated, got %v", m.State())
	}
}

func TestStateTransitions(t *testing.T) {
	auth := backendtest.NewAuth()
	auth.AutoConfirm = true
	m := New(auth, config.DefaultMarket())
	if m.State() != Unknown {
		t.Fatalf("expected Unknown before Start, got %v", m.State())
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	var seen []State
	unsub := m.Subscribe(func(s State, _ *backend.Session) { seen = append(seen, s) })
	defer unsub()

	if m.State() != Unauthenticated {
		t.Fatalf("expected Unauthenticated after empty fetch, got %v", m.State())
	}
	if _, err := m.SignUp(context.Background(), "c@nitc.ac.in", "secret1"); err != nil {
		t.Fatal(err)
	}
	sess := m.Session()

	// external expiry
	auth.Emit(backend.EventSignedOut, nil)
	if m.State() != Unauthenticated || m.Session() != nil {
		t.Fatalf("expected session cleared by SIGNED_OUT")
	}
	// external restore
	auth.Emit(backend.EventTokenRefreshed, sess)
	if m.State() != Authenticated {
		t.Fatalf("expected Authenticated after restore")
	}
	if err := m.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.State() != Unauthenticated {
		t.Fatalf("expected Unauthenticated after SignOut")
	}
	if len(seen) == 0 || seen[len(seen)-1] != Unauthenticated {
		t.Errorf("subscriber saw %v", seen)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	auth := backendtest.NewAuth()
	m := New(auth, config.DefaultMarket())
	_ = m.Start(context.Background())
	_ = m.Start(context.Background())
	if auth.Listeners() != 1 {
		t.Fatalf("expected 1 listener, got %d", auth.Listeners())
	}
	m.Close()
	if auth.Listeners() != 0 {
		t.Fatalf("expected listener removed, got %d", auth.Listeners())
	}

	auth.Emit(backend.EventSignedIn, &backend.Session{User: backend.User{Email: "x@nitc.ac.in"}})
	if m.State() == Authenticated {
		t.Errorf("closed manager still follows session changes")
	}
}

func TestRequestPasswordReset(t *testing.T) {
	m, auth := newManager(t)

	if _, err := m.RequestPasswordReset(context.Background(), "  "); !backend.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if auth.Count("RequestPasswordReset") != 0 {
		t.Fatal("backend called for empty email")
	}

	notice, err := m.RequestPasswordReset(context.Background(), "a@nitc.ac.in")
	if err != nil || notice != NoticeResetSent {
		t.Fatalf("got %q, %v", notice, err)
	}
	if len(auth.Resets) != 1 || auth.Resets[0] != config.DefaultMarket().ResetRedirect {
		t.Errorf("redirect not passed: %v", auth.Resets)
	}

	auth.ResetErr = errors.New("smtp down")
	if _, err := m.RequestPasswordReset(context.Background(), "a@nitc.ac.in"); backend.StatusOf(err) != 0 || err == nil {
		t.Errorf("expected wrapped backend error, got %v", err)
	}
}
