package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/model"
	"github.com/iliyamo/campus-marketplace/internal/queue"
	"github.com/iliyamo/campus-marketplace/internal/repository"
	"github.com/iliyamo/campus-marketplace/internal/utils"
)

// Mailer hands account mail to the delivery pipeline.
type Mailer interface {
	Publish(ctx context.Context, ev queue.MailEvent) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg         config.Config
	Users       *repository.UserRepo
	Tokens      *repository.TokenRepo
	EmailTokens *repository.EmailTokenRepo
	Mail        Mailer
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, et *repository.EmailTokenRepo, mail Mailer) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, EmailTokens: et, Mail: mail}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type recoverReq struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}
type updateUserReq struct {
	Password string `json:"password"`
}

type userPart struct {
	ID          uint64     `json:"id"`
	Email       string     `json:"email"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// sessionResp is the session payload shared by sign-up, token and verify.
type sessionResp struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         userPart `json:"user"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, ConfirmedAt: u.ConfirmedAt}
}

// issueSession signs an access token and stores a fresh refresh token.
func (h *AuthHandler) issueSession(ctx context.Context, u model.User) (sessionResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Email, h.Cfg.AccessTTLMin)
	if err != nil {
		return sessionResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return sessionResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return sessionResp{}, err
	}
	return sessionResp{
		AccessToken:  access.Token,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(access.Exp).Seconds()),
		ExpiresAt:    access.Exp.Unix(),
		RefreshToken: refresh.Raw, // raw back to client
		User:         toUserPart(u),
	}, nil
}

// sendLink stores a one-time email token and publishes the mail carrying it.
// Publishing is best effort: a broker outage is logged and the request still
// succeeds.
func (h *AuthHandler) sendLink(ctx context.Context, u model.User, kind model.EmailTokenKind, redirectTo string) error {
	raw, err := utils.NewEmailToken()
	if err != nil {
		return err
	}
	exp := time.Now().UTC().Add(time.Duration(h.Cfg.EmailTokenTTLMin) * time.Minute)
	if err := h.EmailTokens.Store(ctx, model.EmailToken{
		UserID:     u.ID,
		Kind:       kind,
		TokenHash:  utils.HashToken(raw),
		RedirectTo: redirectTo,
		ExpiresAt:  exp,
	}); err != nil {
		return err
	}

	q := url.Values{"type": {string(kind)}, "token": {raw}}
	mailKind := queue.MailSignupConfirmation
	if kind == model.EmailTokenRecovery {
		mailKind = queue.MailPasswordRecovery
	}
	ev := queue.MailEvent{
		Kind:      mailKind,
		To:        u.Email,
		ActionURL: h.Cfg.PublicURL + "/auth/v1/verify?" + q.Encode(),
		ExpiresAt: exp.Format(time.RFC3339),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if h.Mail == nil {
		return nil
	}
	if err := h.Mail.Publish(ctx, ev); err != nil {
		slog.Warn("auth: publish mail failed", "kind", ev.Kind, "err", err)
	}
	return nil
}

// SignUp creates an account for an institutional address. Without
// auto-confirmation the user must follow the emailed link before logging in.
func (h *AuthHandler) SignUp(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "email/password required")
	}
	if !h.Cfg.Market.AllowsEmail(req.Email) {
		return fail(c, http.StatusUnprocessableEntity, "only "+h.Cfg.Market.EmailDomain+" addresses can sign up")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, h.Cfg.BcryptCost, h.Cfg.AutoConfirm)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return fail(c, http.StatusConflict, "email already exists")
		case errors.Is(err, utils.ErrWeakPassword):
			return fail(c, http.StatusUnprocessableEntity, err.Error())
		}
		return fail(c, http.StatusInternalServerError, "create user failed")
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "load user failed")
	}

	if h.Cfg.AutoConfirm {
		sess, err := h.issueSession(ctx, u)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "issue session failed")
		}
		return c.JSON(http.StatusOK, sess)
	}
	if err := h.sendLink(ctx, u, model.EmailTokenSignup, ""); err != nil {
		return fail(c, http.StatusInternalServerError, "send confirmation failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserPart(u)})
}

// Verify consumes a signup or recovery link. Both issue a session; when the
// link was issued with a redirect target the browser is sent there with the
// session in the URL fragment, unless the caller accepts JSON. Query
// parameters cannot change the target.
func (h *AuthHandler) Verify(c echo.Context) error {
	kind := model.EmailTokenKind(c.QueryParam("type"))
	if kind != model.EmailTokenSignup && kind != model.EmailTokenRecovery {
		return fail(c, http.StatusBadRequest, "unsupported verify type")
	}
	raw := strings.TrimSpace(c.QueryParam("token"))
	if raw == "" {
		return fail(c, http.StatusBadRequest, "token required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	tok, err := h.EmailTokens.Consume(ctx, kind, utils.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return fail(c, http.StatusUnauthorized, "link is invalid or has expired")
		}
		return fail(c, http.StatusInternalServerError, "verify failed")
	}
	if kind == model.EmailTokenSignup {
		if err := h.Users.Confirm(ctx, tok.UserID); err != nil {
			return fail(c, http.StatusInternalServerError, "confirm failed")
		}
	}
	u, err := h.Users.GetByID(ctx, tok.UserID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "load user failed")
	}
	sess, err := h.issueSession(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue session failed")
	}

	// Only the target stored with the token is honored; it was checked
	// against the allow-list when the link was issued. API clients asking
	// for JSON get the session in the body instead.
	redirect := tok.RedirectTo
	wantsJSON := strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
	if redirect != "" && !wantsJSON && h.Cfg.Market.AllowsRedirect(redirect) {
		frag := url.Values{
			"access_token":  {sess.AccessToken},
			"refresh_token": {sess.RefreshToken},
			"expires_at":    {strconv.FormatInt(sess.ExpiresAt, 10)},
			"token_type":    {sess.TokenType},
			"type":          {string(kind)},
		}
		return c.Redirect(http.StatusSeeOther, redirect+"#"+frag.Encode())
	}
	return c.JSON(http.StatusOK, sess)
}

// Token implements the password and refresh_token grants.
func (h *AuthHandler) Token(c echo.Context) error {
	switch c.QueryParam("grant_type") {
	case "password":
		return h.passwordGrant(c)
	case "refresh_token":
		return h.refreshGrant(c)
	default:
		return fail(c, http.StatusBadRequest, "unsupported grant_type")
	}
}

func (h *AuthHandler) passwordGrant(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "email/password required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(c, http.StatusBadRequest, "Invalid login credentials")
		}
		return fail(c, http.StatusInternalServerError, "query failed")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusBadRequest, "Invalid login credentials")
	}
	if !u.Confirmed() {
		return fail(c, http.StatusBadRequest, "Email not confirmed")
	}

	sess, err := h.issueSession(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue session failed")
	}
	return c.JSON(http.StatusOK, sess)
}

// refreshGrant validates by hash, revokes the old token and issues a new pair.
func (h *AuthHandler) refreshGrant(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refresh_token required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	next, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue refresh failed")
	}
	uid, err := h.Tokens.Rotate(ctx, utils.HashToken(strings.TrimSpace(req.RefreshToken)), utils.HashToken(next.Raw), next.Exp)
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return fail(c, http.StatusUnauthorized, "Invalid Refresh Token")
		}
		return fail(c, http.StatusInternalServerError, "refresh failed")
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "load user failed")
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Email, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue access failed")
	}
	return c.JSON(http.StatusOK, sessionResp{
		AccessToken:  access.Token,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(access.Exp).Seconds()),
		ExpiresAt:    access.Exp.Unix(),
		RefreshToken: next.Raw,
		User:         toUserPart(u),
	})
}

// Logout revokes every refresh token of the current user (protected).
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return fail(c, http.StatusInternalServerError, "logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Recover mails a password recovery link. The response is the same whether
// or not the address has an account.
func (h *AuthHandler) Recover(c echo.Context) error {
	var req recoverReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return fail(c, http.StatusBadRequest, "email required")
	}
	redirect := strings.TrimSpace(req.RedirectTo)
	if !h.Cfg.Market.AllowsRedirect(redirect) {
		if redirect != "" {
			slog.Warn("auth: redirect_to not allowed, using default", "redirect_to", redirect)
		}
		redirect = h.Cfg.Market.ResetRedirect
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusOK, echo.Map{})
	case err != nil:
		return fail(c, http.StatusInternalServerError, "query failed")
	}
	if err := h.sendLink(ctx, u, model.EmailTokenRecovery, redirect); err != nil {
		return fail(c, http.StatusInternalServerError, "send recovery failed")
	}
	return c.JSON(http.StatusOK, echo.Map{})
}

// GetUser returns the account behind the bearer token.
func (h *AuthHandler) GetUser(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return unauthorized(c)
		}
		return fail(c, http.StatusInternalServerError, "load user failed")
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

// UpdateUser changes the password of the current user.
func (h *AuthHandler) UpdateUser(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil || req.Password == "" {
		return fail(c, http.StatusBadRequest, "password required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.UpdatePassword(ctx, uid, req.Password, h.Cfg.BcryptCost); err != nil {
		switch {
		case errors.Is(err, utils.ErrWeakPassword):
			return fail(c, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, sql.ErrNoRows):
			return unauthorized(c)
		}
		return fail(c, http.StatusInternalServerError, "update failed")
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "load user failed")
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}
