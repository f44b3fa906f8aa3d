package oauth

import (
	"context"

	"github.com/realmgate/realmgate/internal/audit"
	"github.com/realmgate/realmgate/model"
)

// clientCredentialsGrant issues a token for the client itself. No user
// context exists and no refresh token is minted by policy.
func (e *Engine) clientCredentialsGrant(ctx context.Context, realm *model.Realm, client *model.Client, req TokenRequest, cc ClientContext) (*TokenResponse, error) {
	if client.Public {
		return nil, ErrInvalidClient
	}
	scope, err := e.resolveScope(client, req.Scope)
	if err != nil {
		return nil, err
	}
	resp, err := e.mintTokens(ctx, realm, client, nil, nil, scope, "")
	if err != nil {
		return nil, err
	}
	audit.RecordLogin(ctx, audit.LoginRecord{
		RealmID:   realm.ID,
		ClientID:  client.ClientID,
		GrantType: req.GrantType,
		IP:        cc.IPAddress,
		UserAgent: cc.UserAgent,
		Success:   true,
	})
	return resp, nil
}
