package broker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/realmgate/realmgate/internal/broker"
	"github.com/realmgate/realmgate/internal/clients"
	"github.com/realmgate/realmgate/internal/consent"
	"github.com/realmgate/realmgate/internal/oauth"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/internal/users"
	"github.com/realmgate/realmgate/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeProviderRepo struct {
	providers map[string]*model.IdentityProvider
}

func (r *fakeProviderRepo) GetByAlias(ctx context.Context, realmID uint, alias string) (*model.IdentityProvider, error) {
	provider, ok := r.providers[alias]
	if !ok || provider.RealmID != realmID || !provider.Enabled {
		return nil, broker.ErrProviderNotFound
	}
	return provider, nil
}

func (r *fakeProviderRepo) Create(ctx context.Context, provider *model.IdentityProvider) error {
	r.providers[provider.Alias] = provider
	return nil
}

type fakeLinkRepo struct {
	links map[string]*model.FederatedIdentity
}

func linkKey(realmID uint, alias, subject string) string {
	return alias + "/" + subject
}

func (r *fakeLinkRepo) Get(ctx context.Context, realmID uint, alias, externalSubject string) (*model.FederatedIdentity, error) {
	link, ok := r.links[linkKey(realmID, alias, externalSubject)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return link, nil
}

func (r *fakeLinkRepo) Create(ctx context.Context, link *model.FederatedIdentity) error {
	key := linkKey(link.RealmID, link.ProviderAlias, link.ExternalSubject)
	if _, ok := r.links[key]; ok {
		return broker.ErrIdentityLinked
	}
	r.links[key] = link
	return nil
}

type fakeUserRepo struct {
	users map[uint]*model.User
}

func (r *fakeUserRepo) GetByID(ctx context.Context, userID uint) (*model.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, realmID uint, username string) (*model.User, error) {
	for _, user := range r.users {
		if user.RealmID == realmID && user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, users.ErrUserNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, realmID uint, email string) (*model.User, error) {
	for _, user := range r.users {
		if user.RealmID == realmID && user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, users.ErrUserNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == 0 {
		user.ID = model.GenerateID()
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Updates(ctx context.Context, userID uint, columns map[string]interface{}) error {
	user, ok := r.users[userID]
	if !ok {
		return users.ErrUserNotFound
	}
	if v, ok := columns["full_name"]; ok {
		user.FullName = v.(string)
	}
	if v, ok := columns["email"]; ok {
		user.Email = v.(string)
	}
	if v, ok := columns["email_verified"]; ok {
		user.EmailVerified = v.(bool)
	}
	return nil
}

type fakeClientRepo struct {
	byID map[uint]*model.Client
}

func (r *fakeClientRepo) GetByID(ctx context.Context, id uint) (*model.Client, error) {
	client, ok := r.byID[id]
	if !ok {
		return nil, clients.ErrClientNotFound
	}
	return client, nil
}

func (r *fakeClientRepo) GetByClientID(ctx context.Context, realmID uint, clientID string) (*model.Client, error) {
	for _, client := range r.byID {
		if client.RealmID == realmID && client.ClientID == clientID {
			return client, nil
		}
	}
	return nil, clients.ErrClientNotFound
}

func (r *fakeClientRepo) Create(ctx context.Context, client *model.Client) error {
	r.byID[client.ID] = client
	return nil
}

type fakeConsentRepo struct{}

func (r *fakeConsentRepo) Get(ctx context.Context, userID, clientID uint) (*model.ConsentRecord, error) {
	return nil, nil
}

func (r *fakeConsentRepo) Upsert(ctx context.Context, record *model.ConsentRecord) error {
	return nil
}

func (r *fakeConsentRepo) Delete(ctx context.Context, userID, clientID uint) error {
	return nil
}

// providerServer fakes the external IdP's token and userinfo
// endpoints.
func providerServer(t *testing.T, info map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "provider-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type brokerEnv struct {
	broker       *broker.Broker
	realm        *model.Realm
	provider     *model.IdentityProvider
	providerRepo *fakeProviderRepo
	userRepo     *fakeUserRepo
	linkRepo     *fakeLinkRepo
	authorize    oauth.AuthorizeRequest
}

func newBrokerEnv(t *testing.T, server *httptest.Server) *brokerEnv {
	t.Helper()
	realm := &model.Realm{ID: 1, Name: "test-realm", Enabled: true}
	provider := &model.IdentityProvider{
		ID:           5,
		RealmID:      1,
		Alias:        "github",
		Enabled:      true,
		ClientID:     "gh-client",
		ClientSecret: "gh-secret",
		AuthURL:      server.URL + "/authorize",
		TokenURL:     server.URL + "/token",
		UserInfoURL:  server.URL + "/userinfo",
		Scopes:       "openid email",
	}
	webApp := &model.Client{
		ID:           2,
		RealmID:      1,
		ClientID:     "web-app",
		Name:         "Web App",
		SecretHash:   "unused",
		GrantTypes:   "authorization_code",
		RedirectURIs: "https://app.example.com/callback",
		DefaultScope: "openid profile email",
	}

	userRepo := &fakeUserRepo{users: map[uint]*model.User{
		10: {ID: 10, RealmID: 1, Username: "alice", Email: "alice@example.com", FullName: "Alice Doe", Enabled: true},
	}}
	linkRepo := &fakeLinkRepo{links: make(map[string]*model.FederatedIdentity)}

	storage := store.NewMemoryStorage()
	engine := oauth.NewEngine(oauth.EngineConfig{
		MasterKey:   "master-key",
		BaseURL:     "https://auth.example.com",
		UserService: users.NewUserService(userRepo),
		ClientReg:   clients.NewRegistry(&fakeClientRepo{byID: map[uint]*model.Client{webApp.ID: webApp}}),
		ConsentMgr:  consent.NewManager(&fakeConsentRepo{}, storage, "master-key"),
		Storage:     storage,
	})

	providerRepo := &fakeProviderRepo{providers: map[string]*model.IdentityProvider{provider.Alias: provider}}
	b := broker.New(broker.Config{
		MasterKey:  "master-key",
		BaseURL:    "https://auth.example.com",
		Providers:  providerRepo,
		Links:      linkRepo,
		UserRepo:   userRepo,
		Engine:     engine,
		HTTPClient: server.Client(),
	})
	return &brokerEnv{
		broker:       b,
		realm:        realm,
		provider:     provider,
		providerRepo: providerRepo,
		userRepo:     userRepo,
		linkRepo:     linkRepo,
		authorize: oauth.AuthorizeRequest{
			ClientID:    "web-app",
			RedirectURI: "https://app.example.com/callback",
			Scope:       "openid profile",
			State:       "rp-state",
		},
	}
}

// loginState starts a brokered login and returns the state parameter
// the provider would echo back on the callback.
func (env *brokerEnv) loginState(t *testing.T) string {
	t.Helper()
	authURL, err := env.broker.InitiateLogin(context.Background(), env.realm, "github", env.authorize)
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestInitiateLoginBuildsProviderURL(t *testing.T) {
	server := providerServer(t, nil)
	env := newBrokerEnv(t, server)

	authURL, err := env.broker.InitiateLogin(context.Background(), env.realm, "github", env.authorize)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authURL, env.provider.AuthURL))
	query := parsed.Query()
	require.Equal(t, "gh-client", query.Get("client_id"))
	require.Equal(t, "https://auth.example.com/realms/test-realm/broker/github/callback", query.Get("redirect_uri"))
	require.Equal(t, "openid email", query.Get("scope"))
	require.NotEmpty(t, query.Get("state"))
}

func TestInitiateLoginUnknownProvider(t *testing.T) {
	server := providerServer(t, nil)
	env := newBrokerEnv(t, server)

	_, err := env.broker.InitiateLogin(context.Background(), env.realm, "gitlab", env.authorize)
	require.ErrorIs(t, err, broker.ErrProviderNotFound)
}

func TestCallbackProvisionsNewUser(t *testing.T) {
	server := providerServer(t, map[string]any{
		"sub":                "ext-123",
		"email":              "jdoe@example.com",
		"email_verified":     true,
		"name":               "John Doe",
		"preferred_username": "jdoe",
	})
	env := newBrokerEnv(t, server)
	state := env.loginState(t)

	result, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", state)
	require.NoError(t, err)
	require.NotEmpty(t, result.Code)
	require.Equal(t, "https://app.example.com/callback", result.RedirectURI)
	require.Equal(t, "rp-state", result.State)

	user, err := env.userRepo.GetByUsername(context.Background(), 1, "jdoe")
	require.NoError(t, err)
	require.Equal(t, "John Doe", user.FullName)
	require.NotEmpty(t, user.PasswordHash)
	require.False(t, user.EmailVerified) // provider is not trusted

	link, err := env.linkRepo.Get(context.Background(), 1, "github", "ext-123")
	require.NoError(t, err)
	require.Equal(t, user.ID, link.UserID)

	redirect := broker.RedirectURL(result)
	require.Contains(t, redirect, "https://app.example.com/callback?code=")
	require.Contains(t, redirect, "state=rp-state")
}

func TestCallbackRepeatLoginFollowsLink(t *testing.T) {
	server := providerServer(t, map[string]any{
		"sub":                "ext-123",
		"preferred_username": "jdoe",
	})
	env := newBrokerEnv(t, server)

	first, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", env.loginState(t))
	require.NoError(t, err)
	second, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", env.loginState(t))
	require.NoError(t, err)

	require.Equal(t, first.UserID, second.UserID)
	require.Len(t, env.linkRepo.links, 1)
}

func TestCallbackLinksByTrustedEmail(t *testing.T) {
	server := providerServer(t, map[string]any{
		"sub":            "ext-alice",
		"email":          "alice@example.com",
		"email_verified": true,
	})
	env := newBrokerEnv(t, server)
	env.provider.TrustEmail = true

	result, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", env.loginState(t))
	require.NoError(t, err)
	require.Equal(t, uint(10), result.UserID)

	link, err := env.linkRepo.Get(context.Background(), 1, "github", "ext-alice")
	require.NoError(t, err)
	require.Equal(t, uint(10), link.UserID)
}

func TestCallbackUntrustedEmailNeverLinks(t *testing.T) {
	server := providerServer(t, map[string]any{
		"sub":            "ext-alice",
		"email":          "alice@example.com",
		"email_verified": true,
	})
	env := newBrokerEnv(t, server)

	result, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", env.loginState(t))
	require.NoError(t, err)
	require.NotEqual(t, uint(10), result.UserID)
}

func TestCallbackLinkOnlyRejectsUnknownIdentity(t *testing.T) {
	server := providerServer(t, map[string]any{"sub": "ext-999"})
	env := newBrokerEnv(t, server)
	env.provider.LinkOnly = true

	_, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", env.loginState(t))
	require.ErrorIs(t, err, broker.ErrUserNotLinked)
}

func TestCallbackRejectsForgedState(t *testing.T) {
	server := providerServer(t, map[string]any{"sub": "ext-123"})
	env := newBrokerEnv(t, server)
	state := env.loginState(t)

	_, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", state+"x")
	require.ErrorIs(t, err, broker.ErrInvalidState)

	_, err = env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", "not-a-state")
	require.ErrorIs(t, err, broker.ErrInvalidState)
}

func TestCallbackStateBoundToProvider(t *testing.T) {
	server := providerServer(t, map[string]any{"sub": "ext-123"})
	env := newBrokerEnv(t, server)
	env.providerRepo.providers["gitlab"] = &model.IdentityProvider{
		ID: 6, RealmID: 1, Alias: "gitlab", Enabled: true,
		ClientID: "gl-client", ClientSecret: "gl-secret",
		AuthURL:     server.URL + "/authorize",
		TokenURL:    server.URL + "/token",
		UserInfoURL: server.URL + "/userinfo",
	}

	// a state minted for github cannot complete a gitlab callback
	state := env.loginState(t)
	_, err := env.broker.HandleCallback(context.Background(), env.realm, "gitlab", "provider-code", state)
	require.ErrorIs(t, err, broker.ErrInvalidState)
}

func TestCallbackExchangeFailure(t *testing.T) {
	server := providerServer(t, map[string]any{"sub": "ext-123"})
	env := newBrokerEnv(t, server)
	state := env.loginState(t)

	_, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "wrong-code", state)
	require.ErrorIs(t, err, broker.ErrExchangeFailed)
}

func TestCallbackDisabledUser(t *testing.T) {
	server := providerServer(t, map[string]any{"sub": "ext-alice"})
	env := newBrokerEnv(t, server)
	env.linkRepo.links[linkKey(1, "github", "ext-alice")] = &model.FederatedIdentity{
		RealmID: 1, ProviderAlias: "github", ExternalSubject: "ext-alice", UserID: 10,
	}
	env.userRepo.users[10].Enabled = false

	_, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", env.loginState(t))
	require.ErrorIs(t, err, users.ErrUserDisabled)
}

func TestCallbackSyncsProfile(t *testing.T) {
	server := providerServer(t, map[string]any{
		"sub":            "ext-alice",
		"name":           "Alice Updated",
		"email":          "alice@example.com",
		"email_verified": true,
	})
	env := newBrokerEnv(t, server)
	env.provider.SyncProfile = true
	env.linkRepo.links[linkKey(1, "github", "ext-alice")] = &model.FederatedIdentity{
		RealmID: 1, ProviderAlias: "github", ExternalSubject: "ext-alice", UserID: 10,
	}

	result, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", env.loginState(t))
	require.NoError(t, err)
	require.Equal(t, uint(10), result.UserID)
	require.Equal(t, "Alice Updated", env.userRepo.users[10].FullName)
	require.True(t, env.userRepo.users[10].EmailVerified)
}

func TestCallbackMissingSubject(t *testing.T) {
	server := providerServer(t, map[string]any{"email": "nobody@example.com"})
	env := newBrokerEnv(t, server)

	_, err := env.broker.HandleCallback(context.Background(), env.realm, "github", "provider-code", env.loginState(t))
	require.ErrorIs(t, err, broker.ErrMissingSubject)
}

func TestRedirectURLAppendsToExistingQuery(t *testing.T) {
	redirect := broker.RedirectURL(&broker.CallbackResult{
		RedirectURI: "https://app.example.com/cb?tenant=acme",
		Code:        "abc",
		State:       "s1",
	})
	require.True(t, strings.HasPrefix(redirect, "https://app.example.com/cb?tenant=acme&"))
	require.Contains(t, redirect, "code=abc")
	require.Contains(t, redirect, "state=s1")
}
