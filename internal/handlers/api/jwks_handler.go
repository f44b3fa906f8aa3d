package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/realmgate/realmgate/internal/keys"
)

// JWKSHandler publishes each realm's public signing keys so relying
// parties can verify tokens without calling back.
type JWKSHandler struct {
	provider *keys.Provider
}

func NewJWKSHandler(provider *keys.Provider) *JWKSHandler {
	return &JWKSHandler{provider: provider}
}

// GetJWKS serves GET /realms/:realm/.well-known/jwks.json.
func (h *JWKSHandler) GetJWKS(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)
	jwks, err := h.provider.JWKS(ctx.Context(), realm.ID)
	if err != nil {
		return err
	}
	ctx.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return ctx.JSON(jwks)
}
