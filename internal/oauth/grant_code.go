package oauth

import (
	"context"
	"errors"

	"github.com/realmgate/realmgate/internal/common"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/model"
)

// authorizationCodeGrant exchanges a one-time code for tokens. The
// code is consumed before any validation so a concurrent replay always
// loses, whatever parameters it carries.
func (e *Engine) authorizationCodeGrant(ctx context.Context, realm *model.Realm, client *model.Client, req TokenRequest, cc ClientContext) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest
	}
	code, err := e.authCodes.Take(ctx, req.Code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}

	if code.RealmID != realm.ID || code.ClientID != client.ID {
		return nil, ErrInvalidGrant
	}
	if code.RedirectURI != "" && !common.ConstantTimeEquals(code.RedirectURI, req.RedirectURI) {
		return nil, ErrInvalidGrant
	}

	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, ErrInvalidGrant
		}
		if !common.ConstantTimeEquals(common.S256Challenge(req.CodeVerifier), code.CodeChallenge) {
			return nil, ErrInvalidGrant
		}
	} else if client.Public {
		// codes issued to public clients always carry a challenge;
		// one without is not honored
		return nil, ErrInvalidGrant
	}

	user, err := e.userService.GetByID(ctx, code.UserID)
	if err != nil || !user.Enabled {
		return nil, ErrInvalidGrant
	}

	return e.finishGrant(ctx, realm, client, user, code.Scope, code.Nonce, req.GrantType, cc)
}
