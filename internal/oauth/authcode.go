package oauth

import (
	"context"
	"time"

	"github.com/realmgate/realmgate/internal/consent"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
)

// AuthorizationCode is the one-time artifact binding an authenticated
// browser user to a pending token exchange. Only the HMAC hash of the
// code handed to the client is used as the storage key.
type AuthorizationCode struct {
	RealmID       uint      `redis:"realm_id"`
	ClientID      uint      `redis:"client_id"`
	UserID        uint      `redis:"user_id"`
	RedirectURI   string    `redis:"redirect_uri"`
	Scope         string    `redis:"scope"`
	Nonce         string    `redis:"nonce"`
	CodeChallenge string    `redis:"code_challenge"`
	CreatedAt     time.Time `redis:"created_at"`
}

// AuthorizeRequest is what the login UI collaborator submits after it
// has authenticated the browser user.
type AuthorizeRequest struct {
	ClientID      string
	RedirectURI   string
	Scope         string
	State         string
	Nonce         string
	CodeChallenge string
}

// CreateAuthorizationCode validates the authorize parameters and mints
// a one-time code. When the client requires consent that the user has
// not granted for the full requested scope set, the request is
// suspended and ConsentRequiredError carries the capability token to
// resume it.
func (e *Engine) CreateAuthorizationCode(ctx context.Context, realm *model.Realm, userID uint, req AuthorizeRequest) (string, error) {
	client, err := e.clientReg.GetByClientID(ctx, realm.ID, req.ClientID)
	if err != nil {
		return "", ErrInvalidClient
	}
	if err := e.clientReg.CheckGrant(client, model.GrantTypeAuthorizationCode); err != nil {
		return "", ErrUnauthorizedClient
	}
	if err := e.clientReg.MatchRedirectURI(client, req.RedirectURI); err != nil {
		return "", ErrInvalidRequest
	}
	// public clients must bind the code to a PKCE challenge
	if client.Public && req.CodeChallenge == "" {
		return "", ErrInvalidRequest
	}
	scope, err := e.resolveScope(client, req.Scope)
	if err != nil {
		return "", err
	}

	if client.ConsentRequired {
		ok, err := e.consentMgr.HasConsent(ctx, userID, client.ID, SplitScope(scope))
		if err != nil {
			return "", err
		}
		if !ok {
			token, err := e.consentMgr.StoreConsentRequest(ctx, consent.PendingRequest{
				RealmID:       realm.ID,
				UserID:        userID,
				ClientID:      client.ID,
				RedirectURI:   req.RedirectURI,
				Scope:         scope,
				State:         req.State,
				Nonce:         req.Nonce,
				CodeChallenge: req.CodeChallenge,
			})
			if err != nil {
				return "", err
			}
			return "", &ConsentRequiredError{ConsentToken: token}
		}
	}

	return e.mintAuthorizationCode(ctx, AuthorizationCode{
		RealmID:       realm.ID,
		ClientID:      client.ID,
		UserID:        userID,
		RedirectURI:   req.RedirectURI,
		Scope:         scope,
		Nonce:         req.Nonce,
		CodeChallenge: req.CodeChallenge,
	})
}

// ResumeAfterConsent consumes a suspended consent request, records the
// user's decision and, when approved, continues the flow with a fresh
// authorization code.
func (e *Engine) ResumeAfterConsent(ctx context.Context, realm *model.Realm, consentToken string, approved bool) (string, *consent.PendingRequest, error) {
	pending, err := e.consentMgr.TakeConsentRequest(ctx, consentToken)
	if err != nil {
		return "", nil, ErrInvalidRequest
	}
	if pending.RealmID != realm.ID {
		return "", nil, ErrInvalidRequest
	}
	if !approved {
		return "", pending, ErrAccessDenied
	}
	if err := e.consentMgr.GrantConsent(ctx, realm.ID, pending.UserID, pending.ClientID, SplitScope(pending.Scope)); err != nil {
		return "", nil, err
	}
	code, err := e.mintAuthorizationCode(ctx, AuthorizationCode{
		RealmID:       pending.RealmID,
		ClientID:      pending.ClientID,
		UserID:        pending.UserID,
		RedirectURI:   pending.RedirectURI,
		Scope:         pending.Scope,
		Nonce:         pending.Nonce,
		CodeChallenge: pending.CodeChallenge,
	})
	return code, pending, err
}

func (e *Engine) mintAuthorizationCode(ctx context.Context, code AuthorizationCode) (string, error) {
	code.CreatedAt = time.Now()
	return e.authCodes.Issue(ctx, code, params.AuthorizationCodeExpiration)
}
