package oauth

import (
	"context"
	"errors"

	"github.com/realmgate/realmgate/internal/audit"
	"github.com/realmgate/realmgate/internal/realms"
	"github.com/realmgate/realmgate/internal/tokens"
	"github.com/realmgate/realmgate/model"
)

// refreshGrant rotates the presented refresh token and mints a fresh
// access token under the same session. Reuse of a rotated token has
// already revoked the session inside the lifecycle manager by the time
// the error surfaces here.
func (e *Engine) refreshGrant(ctx context.Context, realm *model.Realm, client *model.Client, req TokenRequest, cc ClientContext) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest
	}

	// the binding check runs before rotation so a token presented
	// under the wrong client never burns the legitimate holder's chain
	_, boundSession, err := e.tokenMgr.ResolveRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) || errors.Is(err, tokens.ErrSessionNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	if boundSession.RealmID != realm.ID || boundSession.ClientID != client.ID {
		return nil, ErrInvalidGrant
	}

	newSecret, token, session, err := e.tokenMgr.Rotate(ctx, realm, req.RefreshToken, realms.RefreshTokenLifespan(realm))
	if err != nil {
		if errors.Is(err, tokens.ErrTokenReused) {
			audit.RecordEvent(ctx, audit.EventTypeTokenReplay, audit.EventRecord{
				RealmID:  realm.ID,
				ClientID: client.ClientID,
				IP:       cc.IPAddress,
				Reason:   "refresh token reuse, session revoked",
			})
			return nil, err
		}
		if errors.Is(err, tokens.ErrTokenNotFound) ||
			errors.Is(err, tokens.ErrTokenExpired) ||
			errors.Is(err, tokens.ErrSessionRevoked) ||
			errors.Is(err, tokens.ErrSessionNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	user, err := e.userService.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, ErrInvalidGrant
	}
	if !user.Enabled {
		return nil, ErrInvalidGrant
	}

	resp, err := e.mintTokens(ctx, realm, client, user, session, token.Scope, "")
	if err != nil {
		return nil, err
	}
	resp.RefreshToken = newSecret

	audit.RecordEvent(ctx, audit.EventTypeTokenRefresh, audit.EventRecord{
		RealmID:  realm.ID,
		UserID:   user.ID,
		Username: user.Username,
		ClientID: client.ClientID,
		IP:       cc.IPAddress,
	})
	return resp, nil
}
