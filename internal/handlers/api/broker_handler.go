package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/realmgate/realmgate/internal/broker"
	"github.com/realmgate/realmgate/internal/oauth"
	"github.com/realmgate/realmgate/internal/users"
)

// BrokerHandler fronts external identity provider login.
type BrokerHandler struct {
	broker *broker.Broker
}

func NewBrokerHandler(b *broker.Broker) *BrokerHandler {
	return &BrokerHandler{broker: b}
}

// GetBrokerLogin serves GET /realms/:realm/broker/:alias/login,
// redirecting the browser to the external provider.
func (h *BrokerHandler) GetBrokerLogin(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)
	alias := ctx.Params("alias")

	req := oauth.AuthorizeRequest{
		ClientID:      ctx.Query("client_id"),
		RedirectURI:   ctx.Query("redirect_uri"),
		Scope:         ctx.Query("scope"),
		State:         ctx.Query("state"),
		Nonce:         ctx.Query("nonce"),
		CodeChallenge: ctx.Query("code_challenge"),
	}
	if req.ClientID == "" || req.RedirectURI == "" {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}

	authURL, err := h.broker.InitiateLogin(ctx.Context(), realm, alias, req)
	if err != nil {
		if errors.Is(err, broker.ErrProviderNotFound) {
			return fiber.ErrNotFound
		}
		return err
	}
	return ctx.Redirect(authURL, fiber.StatusFound)
}

// GetBrokerCallback serves GET /realms/:realm/broker/:alias/callback,
// completing the brokered login and sending the browser back to the
// relying party with a local authorization code.
func (h *BrokerHandler) GetBrokerCallback(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)
	alias := ctx.Params("alias")

	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}

	result, err := h.broker.HandleCallback(ctx.Context(), realm, alias, code, state)
	if err != nil {
		switch {
		case errors.Is(err, broker.ErrInvalidState):
			return writeOAuthError(ctx, oauth.ErrInvalidRequest)
		case errors.Is(err, broker.ErrProviderNotFound):
			return fiber.ErrNotFound
		case errors.Is(err, broker.ErrUserNotLinked),
			errors.Is(err, users.ErrUserDisabled):
			return writeOAuthError(ctx, oauth.ErrAccessDenied)
		case errors.Is(err, broker.ErrExchangeFailed),
			errors.Is(err, broker.ErrUserInfoFailed):
			return fiber.ErrBadGateway
		default:
			return writeOAuthError(ctx, err)
		}
	}
	return ctx.Redirect(broker.RedirectURL(result), fiber.StatusFound)
}
