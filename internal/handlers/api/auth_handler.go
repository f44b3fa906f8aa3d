package api

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/realmgate/realmgate/internal/oauth"
)

// AuthHandler fronts the authorization-code surface used by the login
// UI collaborator: it authenticates the user the same way the device
// verification surface does and hands back a one-time code.
type AuthHandler struct {
	engine *oauth.Engine
}

func NewAuthHandler(engine *oauth.Engine) *AuthHandler {
	return &AuthHandler{engine: engine}
}

type authorizeRequest struct {
	ClientID      string `form:"client_id"`
	RedirectURI   string `form:"redirect_uri"`
	Scope         string `form:"scope"`
	State         string `form:"state"`
	Nonce         string `form:"nonce"`
	CodeChallenge string `form:"code_challenge"`
	Username      string `form:"username"`
	Password      string `form:"password"`
	TOTP          string `form:"totp"`
}

// PostAuthorize serves POST /realms/:realm/authorize.
func (h *AuthHandler) PostAuthorize(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)

	var req authorizeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}
	if req.ClientID == "" || req.RedirectURI == "" || req.Username == "" || req.Password == "" {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}

	cc := oauth.ClientContext{IPAddress: ctx.IP(), UserAgent: ctx.Get(fiber.HeaderUserAgent)}
	user, err := h.engine.VerifyDeviceUser(ctx.Context(), realm, req.Username, req.Password, req.TOTP, cc)
	if err != nil {
		return writeOAuthError(ctx, err)
	}

	code, err := h.engine.CreateAuthorizationCode(ctx.Context(), realm, user.ID, oauth.AuthorizeRequest{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		Scope:         req.Scope,
		State:         req.State,
		Nonce:         req.Nonce,
		CodeChallenge: req.CodeChallenge,
	})
	if err != nil {
		return writeOAuthError(ctx, err)
	}
	return ctx.Redirect(appendCodeQuery(req.RedirectURI, code, req.State), fiber.StatusFound)
}

// PostConsent serves POST /realms/:realm/consent, resolving a
// suspended authorization request by its one-time consent token.
func (h *AuthHandler) PostConsent(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)

	var req ConsentDecisionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}
	if req.ConsentToken == "" {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}

	code, pending, err := h.engine.ResumeAfterConsent(ctx.Context(), realm, req.ConsentToken, req.Approved)
	if err != nil {
		if errors.Is(err, oauth.ErrAccessDenied) && pending != nil {
			return ctx.Redirect(appendErrorQuery(pending.RedirectURI, "access_denied", pending.State), fiber.StatusFound)
		}
		return writeOAuthError(ctx, err)
	}
	return ctx.Redirect(appendCodeQuery(pending.RedirectURI, code, pending.State), fiber.StatusFound)
}

func appendCodeQuery(redirectURI, code, state string) string {
	query := url.Values{"code": {code}}
	if state != "" {
		query.Set("state", state)
	}
	return appendQuery(redirectURI, query)
}

func appendErrorQuery(redirectURI, errCode, state string) string {
	query := url.Values{"error": {errCode}}
	if state != "" {
		query.Set("state", state)
	}
	return appendQuery(redirectURI, query)
}

func appendQuery(redirectURI string, query url.Values) string {
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	return redirectURI + sep + query.Encode()
}
