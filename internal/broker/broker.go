package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/realmgate/realmgate/internal/audit"
	"github.com/realmgate/realmgate/internal/common"
	"github.com/realmgate/realmgate/internal/oauth"
	"github.com/realmgate/realmgate/internal/users"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Broker federates realm logins to external OIDC/OAuth2 providers and
// maps external identities onto local users.
type Broker struct {
	masterKey  string
	baseURL    string
	providers  ProviderRepository
	links      LinkRepository
	userRepo   users.UserRepository
	engine     *oauth.Engine
	httpClient *http.Client
}

type Config struct {
	MasterKey  string
	BaseURL    string
	Providers  ProviderRepository
	Links      LinkRepository
	UserRepo   users.UserRepository
	Engine     *oauth.Engine
	HTTPClient *http.Client
}

func New(cfg Config) *Broker {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: params.ExternalHTTPTimeout}
	}
	return &Broker{
		masterKey:  cfg.MasterKey,
		baseURL:    cfg.BaseURL,
		providers:  cfg.Providers,
		links:      cfg.Links,
		userRepo:   cfg.UserRepo,
		engine:     cfg.Engine,
		httpClient: httpClient,
	}
}

// userInfo is the subset of OIDC userinfo claims the broker consumes.
type userInfo struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// CallbackResult is what the boundary layer needs to send the browser
// back to the relying party.
type CallbackResult struct {
	RedirectURI string
	Code        string
	State       string
	UserID      uint
}

func (b *Broker) callbackURL(realm *model.Realm, alias string) string {
	return b.baseURL + "/realms/" + realm.Name + "/broker/" + alias + "/callback"
}

func (b *Broker) oauthConfig(realm *model.Realm, provider *model.IdentityProvider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		RedirectURL:  b.callbackURL(realm, provider.Alias),
		Scopes:       strings.Fields(provider.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.AuthURL,
			TokenURL: provider.TokenURL,
		},
	}
}

// InitiateLogin builds the external provider's authorization URL. The
// relying party's own OAuth parameters ride along in the signed state.
func (b *Broker) InitiateLogin(ctx context.Context, realm *model.Realm, alias string, req oauth.AuthorizeRequest) (string, error) {
	provider, err := b.providers.GetByAlias(ctx, realm.ID, alias)
	if err != nil {
		return "", err
	}
	state, err := encodeState(b.masterKey, loginState{
		RealmID:       realm.ID,
		Alias:         alias,
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		Scope:         req.Scope,
		State:         req.State,
		Nonce:         req.Nonce,
		CodeChallenge: req.CodeChallenge,
	})
	if err != nil {
		return "", err
	}
	return b.oauthConfig(realm, provider).AuthCodeURL(state), nil
}

// HandleCallback completes a brokered login: verifies the state,
// exchanges the provider code, resolves or provisions the local user
// and mints a local authorization code for the original relying party.
func (b *Broker) HandleCallback(ctx context.Context, realm *model.Realm, alias, code, encodedState string) (*CallbackResult, error) {
	state, err := decodeState(b.masterKey, encodedState)
	if err != nil {
		return nil, err
	}
	if state.RealmID != realm.ID || state.Alias != alias {
		return nil, ErrInvalidState
	}
	provider, err := b.providers.GetByAlias(ctx, realm.ID, alias)
	if err != nil {
		return nil, err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, params.ExternalHTTPTimeout)
	defer cancel()
	exchangeCtx = context.WithValue(exchangeCtx, oauth2.HTTPClient, b.httpClient)
	token, err := b.oauthConfig(realm, provider).Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	info, err := b.fetchUserInfo(ctx, provider, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if info.Subject == "" {
		return nil, ErrMissingSubject
	}

	user, err := b.resolveUser(ctx, realm, provider, info)
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, users.ErrUserDisabled
	}

	localCode, err := b.engine.CreateAuthorizationCode(ctx, realm, user.ID, oauth.AuthorizeRequest{
		ClientID:      state.ClientID,
		RedirectURI:   state.RedirectURI,
		Scope:         state.Scope,
		State:         state.State,
		Nonce:         state.Nonce,
		CodeChallenge: state.CodeChallenge,
	})
	if err != nil {
		return nil, err
	}

	audit.RecordEvent(ctx, audit.EventTypeBrokerLogin, audit.EventRecord{
		RealmID:  realm.ID,
		UserID:   user.ID,
		Username: user.Username,
		ClientID: state.ClientID,
		Reason:   alias,
	})
	return &CallbackResult{
		RedirectURI: state.RedirectURI,
		Code:        localCode,
		State:       state.State,
		UserID:      user.ID,
	}, nil
}

// fetchUserInfo GETs the provider's userinfo endpoint. The request is
// idempotent so transient failures get a bounded retry.
func (b *Broker) fetchUserInfo(ctx context.Context, provider *model.IdentityProvider, accessToken string) (*userInfo, error) {
	var lastErr error
	for attempt := 0; attempt <= params.UserInfoMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		info, err := b.getUserInfo(ctx, provider.UserInfoURL, accessToken)
		if err == nil {
			return info, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrUserInfoFailed, lastErr)
}

func (b *Broker) getUserInfo(ctx context.Context, userInfoURL, accessToken string) (*userInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, params.ExternalHTTPTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

// resolveUser maps the external identity to a local user: an existing
// link wins, then email linking when the provider is trusted, then
// provisioning unless the provider is link-only.
func (b *Broker) resolveUser(ctx context.Context, realm *model.Realm, provider *model.IdentityProvider, info *userInfo) (*model.User, error) {
	link, err := b.links.Get(ctx, realm.ID, provider.Alias, info.Subject)
	if err == nil {
		user, err := b.userRepo.GetByID(ctx, link.UserID)
		if err != nil {
			return nil, err
		}
		if provider.SyncProfile {
			b.syncProfile(ctx, user, info)
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user, err := b.matchByEmail(ctx, realm, provider, info)
	if errors.Is(err, users.ErrUserNotFound) {
		if provider.LinkOnly {
			return nil, ErrUserNotLinked
		}
		user, err = b.provisionUser(ctx, realm, provider, info)
	}
	if err != nil {
		return nil, err
	}

	err = b.links.Create(ctx, &model.FederatedIdentity{
		RealmID:         realm.ID,
		ProviderAlias:   provider.Alias,
		ExternalSubject: info.Subject,
		UserID:          user.ID,
		ExternalEmail:   info.Email,
	})
	if errors.Is(err, ErrIdentityLinked) {
		// a concurrent callback linked first; follow its link
		link, err := b.links.Get(ctx, realm.ID, provider.Alias, info.Subject)
		if err != nil {
			return nil, err
		}
		return b.userRepo.GetByID(ctx, link.UserID)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// matchByEmail links to an existing local account only when the
// provider is trusted and asserts a verified email.
func (b *Broker) matchByEmail(ctx context.Context, realm *model.Realm, provider *model.IdentityProvider, info *userInfo) (*model.User, error) {
	if !provider.TrustEmail || info.Email == "" || !info.EmailVerified {
		return nil, users.ErrUserNotFound
	}
	return b.userRepo.GetByEmail(ctx, realm.ID, info.Email)
}

func (b *Broker) provisionUser(ctx context.Context, realm *model.Realm, provider *model.IdentityProvider, info *userInfo) (*model.User, error) {
	username := info.PreferredUsername
	if username == "" {
		username = provider.Alias + "." + info.Subject
	}
	// brokered accounts get an unguessable local password
	randomSecret, err := common.GenerateSecret(params.OneTimeSecretLength)
	if err != nil {
		return nil, err
	}
	passwordHash, err := users.HashPassword(randomSecret)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		RealmID:       realm.ID,
		Username:      username,
		Email:         info.Email,
		FullName:      info.Name,
		PasswordHash:  passwordHash,
		Enabled:       true,
		EmailVerified: provider.TrustEmail && info.EmailVerified,
	}
	if err := b.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	audit.RecordEvent(ctx, audit.EventTypeUserProvision, audit.EventRecord{
		RealmID:  realm.ID,
		UserID:   user.ID,
		Username: user.Username,
		Reason:   provider.Alias,
	})
	return user, nil
}

// syncProfile is best effort; a stale name never fails a login.
func (b *Broker) syncProfile(ctx context.Context, user *model.User, info *userInfo) {
	columns := map[string]interface{}{}
	if info.Name != "" && info.Name != user.FullName {
		columns["full_name"] = info.Name
		user.FullName = info.Name
	}
	if info.Email != "" && info.EmailVerified {
		if info.Email != user.Email {
			columns["email"] = info.Email
			user.Email = info.Email
		}
		if !user.EmailVerified {
			columns["email_verified"] = true
			user.EmailVerified = true
		}
	}
	if len(columns) > 0 {
		b.userRepo.Updates(ctx, user.ID, columns)
	}
}

// RedirectURL assembles the final relying-party redirect from a
// callback result.
func RedirectURL(result *CallbackResult) string {
	query := url.Values{"code": {result.Code}}
	if result.State != "" {
		query.Set("state", result.State)
	}
	sep := "?"
	if strings.Contains(result.RedirectURI, "?") {
		sep = "&"
	}
	return result.RedirectURI + sep + query.Encode()
}
