package oauth

import (
	"context"
	"strings"

	"github.com/realmgate/realmgate/internal/audit"
	"github.com/realmgate/realmgate/internal/bruteforce"
	"github.com/realmgate/realmgate/internal/clients"
	"github.com/realmgate/realmgate/internal/consent"
	"github.com/realmgate/realmgate/internal/device"
	"github.com/realmgate/realmgate/internal/keys"
	"github.com/realmgate/realmgate/internal/realms"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/internal/tokens"
	"github.com/realmgate/realmgate/internal/users"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
)

// Engine is the token endpoint dispatcher. All grant types converge on
// finishGrant, which resolves a session, mints the signed token set
// and records the login event.
type Engine struct {
	masterKey   string
	baseURL     string
	userService *users.UserService
	clientReg   *clients.Registry
	brute       *bruteforce.Engine
	tokenMgr    *tokens.Manager
	deviceFlow  *device.Flow
	consentMgr  *consent.Manager
	keyProvider *keys.Provider
	authCodes   *store.OneTime[AuthorizationCode]
	mfaStore    *store.OneTime[MFAChallenge]
}

type EngineConfig struct {
	MasterKey   string
	BaseURL     string
	UserService *users.UserService
	ClientReg   *clients.Registry
	BruteForce  *bruteforce.Engine
	TokenMgr    *tokens.Manager
	DeviceFlow  *device.Flow
	ConsentMgr  *consent.Manager
	KeyProvider *keys.Provider
	Storage     store.Storage
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		masterKey:   cfg.MasterKey,
		baseURL:     cfg.BaseURL,
		userService: cfg.UserService,
		clientReg:   cfg.ClientReg,
		brute:       cfg.BruteForce,
		tokenMgr:    cfg.TokenMgr,
		deviceFlow:  cfg.DeviceFlow,
		consentMgr:  cfg.ConsentMgr,
		keyProvider: cfg.KeyProvider,
		authCodes:   store.NewOneTime[AuthorizationCode](cfg.Storage, params.AuthCodeKeyPrefix, cfg.MasterKey),
		mfaStore:    store.NewOneTime[MFAChallenge](cfg.Storage, params.MFAChallengeKeyPrefix, cfg.MasterKey),
	}
}

// IssueToken is the single entry point of the token endpoint. A grant
// type the server does not implement at all is unsupported_grant_type;
// one the client is merely not allowed to use is unauthorized_client.
func (e *Engine) IssueToken(ctx context.Context, realm *model.Realm, req TokenRequest, cc ClientContext) (*TokenResponse, error) {
	switch req.GrantType {
	case model.GrantTypePassword, model.GrantTypeClientCredentials,
		model.GrantTypeRefreshToken, model.GrantTypeAuthorizationCode,
		model.GrantTypeDeviceCode:
	default:
		return nil, ErrUnsupportedGrantType
	}

	client, err := e.authenticateClient(ctx, realm, req)
	if err != nil {
		return nil, err
	}
	if err := e.clientReg.CheckGrant(client, req.GrantType); err != nil {
		return nil, ErrUnauthorizedClient
	}

	switch req.GrantType {
	case model.GrantTypePassword:
		return e.passwordGrant(ctx, realm, client, req, cc)
	case model.GrantTypeClientCredentials:
		return e.clientCredentialsGrant(ctx, realm, client, req, cc)
	case model.GrantTypeRefreshToken:
		return e.refreshGrant(ctx, realm, client, req, cc)
	case model.GrantTypeAuthorizationCode:
		return e.authorizationCodeGrant(ctx, realm, client, req, cc)
	default:
		return e.deviceGrant(ctx, realm, client, req, cc)
	}
}

// authenticateClient resolves the client and, for confidential
// clients, verifies the secret. Failures collapse into invalid_client.
func (e *Engine) authenticateClient(ctx context.Context, realm *model.Realm, req TokenRequest) (*model.Client, error) {
	if req.ClientID == "" {
		return nil, ErrInvalidRequest
	}
	client, err := e.clientReg.GetByClientID(ctx, realm.ID, req.ClientID)
	if err != nil {
		return nil, ErrInvalidClient
	}
	if client.Public {
		return client, nil
	}
	client, err = e.clientReg.Authenticate(ctx, realm.ID, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// resolveScope validates the requested scope against the client's
// allowed set, defaulting to the whole set when the request is silent.
func (e *Engine) resolveScope(client *model.Client, requested string) (string, error) {
	if requested == "" {
		return client.DefaultScope, nil
	}
	allowed := SplitScope(client.DefaultScope)
	scopes := SplitScope(requested)
	for _, s := range scopes {
		if !scopeContains(allowed, s) {
			return "", ErrInvalidScope
		}
	}
	return strings.Join(scopes, " "), nil
}

// finishGrant is the shared success path: session, signed access
// token, optional ID token and refresh token, login event.
func (e *Engine) finishGrant(ctx context.Context, realm *model.Realm, client *model.Client, user *model.User, scope, nonce, grantType string, cc ClientContext) (*TokenResponse, error) {
	session, err := e.tokenMgr.CreateSession(ctx, realm, user.ID, client.ID, cc.IPAddress, realms.SSOSessionLifespan(realm))
	if err != nil {
		return nil, err
	}
	resp, err := e.mintTokens(ctx, realm, client, user, session, scope, nonce)
	if err != nil {
		return nil, err
	}
	if client.UseRefreshTokens {
		refreshToken, _, err := e.tokenMgr.IssueRefreshToken(ctx, session, scope, realms.RefreshTokenLifespan(realm))
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = refreshToken
	}
	audit.RecordLogin(ctx, audit.LoginRecord{
		RealmID:   realm.ID,
		UserID:    user.ID,
		Username:  user.Username,
		ClientID:  client.ClientID,
		GrantType: grantType,
		IP:        cc.IPAddress,
		UserAgent: cc.UserAgent,
		Success:   true,
	})
	return resp, nil
}

// mintTokens signs the access token and, when openid is granted, the
// ID token. Refresh tokens are the caller's concern: a fresh grant
// starts a chain, a refresh exchange continues one.
func (e *Engine) mintTokens(ctx context.Context, realm *model.Realm, client *model.Client, user *model.User, session *model.Session, scope, nonce string) (*TokenResponse, error) {
	lifespan := realms.AccessTokenLifespan(realm)
	sid := ""
	if session != nil {
		sid = session.SID
	}
	accessToken, err := e.keyProvider.Sign(ctx, realm.ID, e.buildAccessClaims(realm, client, user, sid, scope, lifespan))
	if err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(lifespan.Seconds()),
		Scope:       scope,
	}

	if user != nil && scopeContains(SplitScope(scope), "openid") {
		idToken, err := e.keyProvider.Sign(ctx, realm.ID, e.buildIDClaims(realm, client, user, sid, scope, nonce, lifespan))
		if err != nil {
			return nil, err
		}
		resp.IDToken = idToken
	}
	return resp, nil
}

// recordFailure notes a failed attempt for audit and, when a known
// user was targeted, for the lockout engine.
func (e *Engine) recordFailure(ctx context.Context, realm *model.Realm, user *model.User, req TokenRequest, cc ClientContext, reason string) {
	record := audit.LoginRecord{
		RealmID:   realm.ID,
		Username:  req.Username,
		ClientID:  req.ClientID,
		GrantType: req.GrantType,
		IP:        cc.IPAddress,
		UserAgent: cc.UserAgent,
		Reason:    reason,
	}
	if user != nil {
		record.UserID = user.ID
		record.Username = user.Username
	}
	audit.RecordLogin(ctx, record)
}
