package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/middleware"
	"github.com/iliyamo/campus-marketplace/internal/queue"
	"github.com/iliyamo/campus-marketplace/internal/repository"
	"github.com/iliyamo/campus-marketplace/internal/utils"
)

var userCols = []string{"id", "email", "password_hash", "confirmed_at", "created_at", "updated_at"}

type authFixture struct {
	e    *echo.Echo
	mock sqlmock.Sqlmock
	mail *fakeMailer
}

func newAuthFixture(t *testing.T, autoConfirm bool) authFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	cfg.AutoConfirm = autoConfirm
	mail := &fakeMailer{}
	h := NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), repository.NewEmailTokenRepo(db), mail)

	e := echo.New()
	g := e.Group("/auth/v1")
	g.POST("/signup", h.SignUp)
	g.POST("/token", h.Token)
	g.POST("/recover", h.Recover)
	g.GET("/verify", h.Verify)
	g.GET("/user", h.GetUser, middleware.JWTAuth(testSecret))
	return authFixture{e: e, mock: mock, mail: mail}
}

func TestSignUpRejectsForeignDomain(t *testing.T) {
	f := newAuthFixture(t, false)
	rec := do(f.e, http.MethodPost, "/auth/v1/signup", `{"email":"a@gmail.com","password":"secret1"}`, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSignUpSendsConfirmation(t *testing.T) {
	f := newAuthFixture(t, false)
	now := time.Now().UTC()

	f.mock.ExpectExec(`INSERT INTO users \(email, password_hash\) VALUES`).
		WithArgs("a@nitc.ac.in", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(5, 1))
	f.mock.ExpectQuery(`FROM users WHERE id=\?`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(uint64(5), "a@nitc.ac.in", "h", nil, now, now))
	f.mock.ExpectExec(`INSERT INTO email_tokens`).
		WithArgs(int64(5), "signup", sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := do(f.e, http.MethodPost, "/auth/v1/signup", `{"email":" A@nitc.ac.in ","password":"secret1"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "access_token") {
		t.Error("unconfirmed sign-up returned a session")
	}
	if len(f.mail.events) != 1 {
		t.Fatalf("expected one mail, got %d", len(f.mail.events))
	}
	ev := f.mail.events[0]
	if ev.Kind != queue.MailSignupConfirmation || ev.To != "a@nitc.ac.in" {
		t.Errorf("unexpected mail %+v", ev)
	}
	link, err := url.Parse(ev.ActionURL)
	if err != nil || link.Path != "/auth/v1/verify" || link.Query().Get("type") != "signup" || link.Query().Get("token") == "" {
		t.Errorf("unexpected action url %q", ev.ActionURL)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSignUpAutoConfirmReturnsSession(t *testing.T) {
	f := newAuthFixture(t, true)
	now := time.Now().UTC()

	f.mock.ExpectExec(`confirmed_at\) VALUES`).WillReturnResult(sqlmock.NewResult(6, 1))
	f.mock.ExpectQuery(`FROM users WHERE id=\?`).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(uint64(6), "b@nitc.ac.in", "h", now, now, now))
	f.mock.ExpectExec(`INSERT INTO refresh_tokens`).WillReturnResult(sqlmock.NewResult(1, 1))

	rec := do(f.e, http.MethodPost, "/auth/v1/signup", `{"email":"b@nitc.ac.in","password":"secret1"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var sess sessionResp
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	claims, err := utils.ParseAccessToken(testSecret, sess.AccessToken)
	if err != nil || claims.Email != "b@nitc.ac.in" {
		t.Fatalf("bad access token: %v %+v", err, claims)
	}
	if len(f.mail.events) != 0 {
		t.Error("auto-confirmed sign-up sent mail")
	}
}

func TestPasswordGrant(t *testing.T) {
	hash, err := utils.HashPassword("secret1", 4)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()

	tests := []struct {
		name      string
		password  string
		confirmed bool
		wantCode  int
		wantMsg   string
	}{
		{name: "wrong password", password: "nope123", confirmed: true, wantCode: http.StatusBadRequest, wantMsg: "Invalid login credentials"},
		{name: "unconfirmed", password: "secret1", wantCode: http.StatusBadRequest, wantMsg: "Email not confirmed"},
		{name: "ok", password: "secret1", confirmed: true, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t, false)
			var confirmedAt any
			if tt.confirmed {
				confirmedAt = now
			}
			f.mock.ExpectQuery(`FROM users WHERE email=\?`).
				WithArgs("a@nitc.ac.in").
				WillReturnRows(sqlmock.NewRows(userCols).AddRow(uint64(1), "a@nitc.ac.in", hash, confirmedAt, now, now))
			if tt.wantCode == http.StatusOK {
				f.mock.ExpectExec(`INSERT INTO refresh_tokens`).
					WithArgs(int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(1, 1))
			}

			body := `{"email":"a@nitc.ac.in","password":"` + tt.password + `"}`
			rec := do(f.e, http.MethodPost, "/auth/v1/token?grant_type=password", body, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			if tt.wantMsg != "" && !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body = %s", rec.Body.String())
			}
			if err := f.mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestRefreshGrantRejectsRevoked(t *testing.T) {
	f := newAuthFixture(t, false)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`FROM refresh_tokens`).
		WithArgs(utils.HashToken("old")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(uint64(1), time.Now().UTC().Add(time.Hour), time.Now().UTC()))
	f.mock.ExpectRollback()

	rec := do(f.e, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", `{"refresh_token":"old"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnsupportedGrant(t *testing.T) {
	f := newAuthFixture(t, false)
	if rec := do(f.e, http.MethodPost, "/auth/v1/token?grant_type=magic", `{}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecoverUnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t, false)
	f.mock.ExpectQuery(`FROM users WHERE email=\?`).
		WithArgs("ghost@nitc.ac.in").
		WillReturnRows(sqlmock.NewRows(userCols))

	rec := do(f.e, http.MethodPost, "/auth/v1/recover", `{"email":"ghost@nitc.ac.in"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(f.mail.events) != 0 {
		t.Error("mail sent for unknown address")
	}
}

func TestRecoverRedirectAllowList(t *testing.T) {
	const reset = "http://localhost:5173/reset-password"

	tests := []struct {
		name       string
		redirectTo string
		want       string
	}{
		{name: "default", redirectTo: "", want: reset},
		{name: "allowed", redirectTo: reset, want: reset},
		{name: "foreign target replaced", redirectTo: "https://evil.example/steal", want: reset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t, false)
			now := time.Now().UTC()
			f.mock.ExpectQuery(`FROM users WHERE email=\?`).
				WillReturnRows(sqlmock.NewRows(userCols).AddRow(uint64(2), "a@nitc.ac.in", "h", now, now, now))
			f.mock.ExpectExec(`INSERT INTO email_tokens`).
				WithArgs(int64(2), "recovery", sqlmock.AnyArg(), tt.want, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))

			body := `{"email":"a@nitc.ac.in","redirect_to":"` + tt.redirectTo + `"}`
			rec := do(f.e, http.MethodPost, "/auth/v1/recover", body, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if len(f.mail.events) != 1 || f.mail.events[0].Kind != queue.MailPasswordRecovery {
				t.Fatalf("events = %+v", f.mail.events)
			}
			if strings.Contains(f.mail.events[0].ActionURL, "redirect_to") {
				t.Errorf("mailed link carries a redirect target: %s", f.mail.events[0].ActionURL)
			}
			if err := f.mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestVerifyRedirectsOnlyToStoredTarget(t *testing.T) {
	const reset = "http://localhost:5173/reset-password"

	tests := []struct {
		name     string
		accept   string
		wantCode int
	}{
		{name: "browser", wantCode: http.StatusSeeOther},
		{name: "api client", accept: echo.MIMEApplicationJSON, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t, false)
			now := time.Now().UTC()
			f.mock.ExpectBegin()
			f.mock.ExpectQuery(`FROM email_tokens`).
				WithArgs(utils.HashToken("abc"), "recovery").
				WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "redirect_to", "expires_at", "used_at"}).
					AddRow(uint64(1), uint64(2), utils.HashToken("abc"), reset, now.Add(time.Hour), nil))
			f.mock.ExpectExec(`UPDATE email_tokens SET used_at`).WillReturnResult(sqlmock.NewResult(0, 1))
			f.mock.ExpectCommit()
			f.mock.ExpectQuery(`FROM users WHERE id=\?`).
				WithArgs(int64(2)).
				WillReturnRows(sqlmock.NewRows(userCols).AddRow(uint64(2), "a@nitc.ac.in", "h", now, now, now))
			f.mock.ExpectExec(`INSERT INTO refresh_tokens`).WillReturnResult(sqlmock.NewResult(1, 1))

			target := "/auth/v1/verify?type=recovery&token=abc&redirect_to=" + url.QueryEscape("https://evil.example/steal")
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.accept != "" {
				req.Header.Set(echo.HeaderAccept, tt.accept)
			}
			rec := httptest.NewRecorder()
			f.e.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			loc := rec.Header().Get(echo.HeaderLocation)
			if tt.wantCode == http.StatusSeeOther && !strings.HasPrefix(loc, reset+"#access_token=") {
				t.Errorf("location = %q", loc)
			}
			if strings.Contains(loc, "evil.example") {
				t.Errorf("redirected to the query target: %q", loc)
			}
			if err := f.mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestVerifyInvalidToken(t *testing.T) {
	f := newAuthFixture(t, false)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`FROM email_tokens`).WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "redirect_to", "expires_at", "used_at"}))
	f.mock.ExpectRollback()

	if rec := do(f.e, http.MethodGet, "/auth/v1/verify?type=signup&token=abc", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := do(f.e, http.MethodGet, "/auth/v1/verify?type=magiclink&token=abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetUserRequiresBearer(t *testing.T) {
	f := newAuthFixture(t, false)
	if rec := do(f.e, http.MethodGet, "/auth/v1/user", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	now := time.Now().UTC()
	f.mock.ExpectQuery(`FROM users WHERE id=\?`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(uint64(3), "c@nitc.ac.in", "h", now, now, now))
	rec := do(f.e, http.MethodGet, "/auth/v1/user", "", bearer(t, 3, "c@nitc.ac.in"))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"email":"c@nitc.ac.in"`) {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}
