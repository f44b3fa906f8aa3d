package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/realmgate/realmgate/internal/audit"
	"github.com/realmgate/realmgate/internal/clients"
	"github.com/realmgate/realmgate/internal/oauth"
	"github.com/realmgate/realmgate/internal/tokens"
)

// SessionHandler fronts logout and token revocation.
type SessionHandler struct {
	clientReg *clients.Registry
	tokenMgr  *tokens.Manager
}

func NewSessionHandler(clientReg *clients.Registry, tokenMgr *tokens.Manager) *SessionHandler {
	return &SessionHandler{clientReg: clientReg, tokenMgr: tokenMgr}
}

// PostLogout serves POST /realms/:realm/logout. It revokes the session
// behind the presented refresh token, which invalidates every token in
// its rotation chain and fires backchannel logout.
func (h *SessionHandler) PostLogout(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)

	var req LogoutRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}
	if req.RefreshToken == "" {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}
	client, err := h.clientReg.Authenticate(ctx.Context(), realm.ID, req.ClientID, req.ClientSecret)
	if err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidClient)
	}

	_, session, err := h.tokenMgr.ResolveRefreshToken(ctx.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) || errors.Is(err, tokens.ErrSessionNotFound) {
			return writeOAuthError(ctx, oauth.ErrInvalidGrant)
		}
		return err
	}
	if session.RealmID != realm.ID || session.ClientID != client.ID {
		return writeOAuthError(ctx, oauth.ErrInvalidGrant)
	}

	if err := h.tokenMgr.RevokeSession(ctx.Context(), realm, session); err != nil {
		return err
	}
	audit.RecordEvent(ctx.Context(), audit.EventTypeLogout, audit.EventRecord{
		RealmID:  realm.ID,
		UserID:   session.UserID,
		ClientID: client.ClientID,
		IP:       ctx.IP(),
	})
	return ctx.SendStatus(fiber.StatusNoContent)
}

// PostRevoke serves POST /realms/:realm/revoke per RFC 7009. Refresh
// tokens take the whole session down; access tokens are blacklisted by
// jti for their remaining lifetime. Unknown tokens succeed silently.
func (h *SessionHandler) PostRevoke(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)

	var req RevokeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}
	if req.Token == "" {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}
	client, err := h.clientReg.Authenticate(ctx.Context(), realm.ID, req.ClientID, req.ClientSecret)
	if err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidClient)
	}

	if req.TokenTypeHint != "access_token" {
		_, session, err := h.tokenMgr.ResolveRefreshToken(ctx.Context(), req.Token)
		if err == nil {
			if session.RealmID != realm.ID || session.ClientID != client.ID {
				return ctx.SendStatus(fiber.StatusOK)
			}
			if err := h.tokenMgr.RevokeSession(ctx.Context(), realm, session); err != nil {
				return err
			}
			return ctx.SendStatus(fiber.StatusOK)
		}
		if !errors.Is(err, tokens.ErrTokenNotFound) && !errors.Is(err, tokens.ErrSessionNotFound) {
			return err
		}
	}

	if err := h.tokenMgr.RevokeAccessTokenString(ctx.Context(), req.Token); err != nil && !errors.Is(err, tokens.ErrTokenNotFound) {
		return err
	}
	return ctx.SendStatus(fiber.StatusOK)
}
