package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/queue"
	"github.com/iliyamo/campus-marketplace/internal/utils"
)

const testSecret = "test-secret"

func testConfig() config.Config {
	return config.Config{
		PublicURL:        "http://api.test",
		JWTSecret:        testSecret,
		AccessTTLMin:     15,
		RefreshTTLDays:   7,
		EmailTokenTTLMin: 60,
		BcryptCost:       4,
		Market:           config.DefaultMarket(),
	}
}

func bearer(t *testing.T, uid uint64, email string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, uid, email, 5)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

// do serves one request through e. body is sent as JSON when non-empty.
func do(e *echo.Echo, method, target, body, auth string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type fakeMailer struct {
	mu     sync.Mutex
	events []queue.MailEvent
}

func (m *fakeMailer) Publish(_ context.Context, ev queue.MailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}
