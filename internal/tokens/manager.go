package tokens

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/realmgate/realmgate/internal/clients"
	"github.com/realmgate/realmgate/internal/common"
	"github.com/realmgate/realmgate/internal/keys"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
)

// RevokedToken is a blacklist entry for an access token revoked before
// its natural expiry. The entry's TTL equals the token's remaining
// lifetime, so the blacklist never outlives what it guards.
type RevokedToken struct {
	JTI       string    `redis:"jti"`
	RevokedAt time.Time `redis:"revoked_at"`
}

// Manager owns session and refresh-token lifecycle: minting, rotation,
// revocation and backchannel logout delivery.
type Manager struct {
	masterKey    string
	baseURL      string
	sessionRepo  SessionRepository
	refreshRepo  RefreshTokenRepository
	clientRepo   clients.ClientRepository
	keyProvider  *keys.Provider
	revokedStore store.Store[RevokedToken]
	httpClient   *http.Client
}

type Config struct {
	MasterKey   string
	BaseURL     string
	SessionRepo SessionRepository
	RefreshRepo RefreshTokenRepository
	ClientRepo  clients.ClientRepository
	KeyProvider *keys.Provider
	Storage     store.Storage
	HTTPClient  *http.Client
}

func NewManager(cfg Config) *Manager {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: params.BackchannelTimeout}
	}
	return &Manager{
		masterKey:    cfg.MasterKey,
		baseURL:      cfg.BaseURL,
		sessionRepo:  cfg.SessionRepo,
		refreshRepo:  cfg.RefreshRepo,
		clientRepo:   cfg.ClientRepo,
		keyProvider:  cfg.KeyProvider,
		revokedStore: store.New[RevokedToken](cfg.Storage, params.RevokedTokenKeyPrefix),
		httpClient:   httpClient,
	}
}

func (m *Manager) hashToken(secret string) string {
	return common.CalculateHash(m.masterKey, secret)
}

// CreateSession opens a session binding user and client for the
// lifetime of the realm's SSO window.
func (m *Manager) CreateSession(ctx context.Context, realm *model.Realm, userID, clientID uint, ip string, lifespan time.Duration) (*model.Session, error) {
	session := &model.Session{
		SID:       uuid.NewString(),
		RealmID:   realm.ID,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ip,
		ExpiresAt: time.Now().Add(lifespan),
	}
	if err := m.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// IssueRefreshToken mints an opaque refresh token for the session and
// persists only its hash. The returned secret is the client's copy.
func (m *Manager) IssueRefreshToken(ctx context.Context, session *model.Session, scope string, lifespan time.Duration) (string, *model.RefreshToken, error) {
	secret, err := common.GenerateSecret(params.RefreshTokenLength)
	if err != nil {
		return "", nil, err
	}
	token := &model.RefreshToken{
		RealmID:   session.RealmID,
		SessionID: session.ID,
		TokenHash: m.hashToken(secret),
		Scope:     scope,
		ExpiresAt: time.Now().Add(lifespan),
	}
	if err := m.refreshRepo.Create(ctx, token); err != nil {
		return "", nil, err
	}
	return secret, token, nil
}

// Rotate exchanges a presented refresh token for its successor. The
// revoked flag transition is a single conditional update; losing it
// means the token was already used, which is treated as theft: the
// session and its whole chain are revoked and ErrTokenReused returned.
func (m *Manager) Rotate(ctx context.Context, realm *model.Realm, presented string, lifespan time.Duration) (string, *model.RefreshToken, *model.Session, error) {
	current, err := m.refreshRepo.GetByHash(ctx, m.hashToken(presented))
	if err != nil {
		return "", nil, nil, err
	}
	session, err := m.sessionRepo.GetByID(ctx, current.SessionID)
	if err != nil {
		return "", nil, nil, err
	}
	if session.Revoked || time.Now().After(session.ExpiresAt) {
		return "", nil, nil, ErrSessionRevoked
	}
	if time.Now().After(current.ExpiresAt) {
		return "", nil, nil, ErrTokenExpired
	}

	secret, err := common.GenerateSecret(params.RefreshTokenLength)
	if err != nil {
		return "", nil, nil, err
	}
	next := &model.RefreshToken{
		ID:        model.GenerateID(),
		RealmID:   current.RealmID,
		SessionID: current.SessionID,
		TokenHash: m.hashToken(secret),
		Scope:     current.Scope,
		ExpiresAt: time.Now().Add(lifespan),
	}

	won, err := m.refreshRepo.MarkRotated(ctx, current.TokenHash, next.ID)
	if err != nil {
		return "", nil, nil, err
	}
	if !won {
		if err := m.RevokeSession(ctx, realm, session); err != nil {
			return "", nil, nil, err
		}
		return "", nil, nil, ErrTokenReused
	}
	if err := m.refreshRepo.Create(ctx, next); err != nil {
		return "", nil, nil, err
	}
	return secret, next, session, nil
}

// ResolveRefreshToken maps a presented refresh token to its session
// without rotating it. Used by the logout path.
func (m *Manager) ResolveRefreshToken(ctx context.Context, presented string) (*model.RefreshToken, *model.Session, error) {
	token, err := m.refreshRepo.GetByHash(ctx, m.hashToken(presented))
	if err != nil {
		return nil, nil, err
	}
	session, err := m.sessionRepo.GetByID(ctx, token.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return token, session, nil
}

// RevokeSession revokes the session and every token in its chains,
// then fires best-effort backchannel logout. Delivery failure never
// fails the local revoke.
func (m *Manager) RevokeSession(ctx context.Context, realm *model.Realm, session *model.Session) error {
	if err := m.sessionRepo.Revoke(ctx, session.ID); err != nil {
		return err
	}
	if err := m.refreshRepo.RevokeBySession(ctx, session.ID); err != nil {
		return err
	}
	m.notifyBackchannelLogout(realm, session)
	return nil
}

// RevokeAccessToken blacklists an access token by jti for its
// remaining lifetime. Already-expired tokens are ignored.
func (m *Manager) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		return nil
	}
	entry := RevokedToken{JTI: jti, RevokedAt: time.Now()}
	return m.revokedStore.Set(ctx, jti, entry, remaining)
}

// IsAccessTokenRevoked reports whether a jti sits on the blacklist.
func (m *Manager) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := m.revokedStore.Get(ctx, jti)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PurgeExpired drops sessions and refresh tokens past their expiry.
// Revocation state of live rows is untouched.
func (m *Manager) PurgeExpired(ctx context.Context) error {
	cutoff := time.Now()
	if _, err := m.refreshRepo.DeleteExpired(ctx, cutoff); err != nil {
		return err
	}
	_, err := m.sessionRepo.DeleteExpired(ctx, cutoff)
	return err
}

// RevokeAccessTokenString verifies a presented access token JWT and
// blacklists its jti. Tokens that fail verification map to
// ErrTokenNotFound so the revoke endpoint can ignore them.
func (m *Manager) RevokeAccessTokenString(ctx context.Context, tokenStr string) error {
	var claims jwt.RegisteredClaims
	if err := m.keyProvider.Verify(ctx, tokenStr, &claims); err != nil {
		return ErrTokenNotFound
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return ErrTokenNotFound
	}
	return m.RevokeAccessToken(ctx, claims.ID, claims.ExpiresAt.Time)
}
