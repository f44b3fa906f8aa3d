package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/realmgate/realmgate/internal/oauth"
)

// TokenHandler fronts the token endpoint.
type TokenHandler struct {
	engine *oauth.Engine
}

func NewTokenHandler(engine *oauth.Engine) *TokenHandler {
	return &TokenHandler{engine: engine}
}

// PostToken serves POST /realms/:realm/token for every grant type.
func (h *TokenHandler) PostToken(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)

	var req oauth.TokenRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}
	if req.GrantType == "" {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}

	resp, err := h.engine.IssueToken(ctx.Context(), realm, req, oauth.ClientContext{
		IPAddress: ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return writeOAuthError(ctx, err)
	}

	ctx.Set(fiber.HeaderCacheControl, "no-store")
	ctx.Set("Pragma", "no-cache")
	return ctx.JSON(resp)
}
