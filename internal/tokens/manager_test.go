package tokens_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/realmgate/realmgate/internal/keys"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/internal/tokens"
	"github.com/realmgate/realmgate/model"
	"github.com/stretchr/testify/require"
)

type fakeSessionRepo struct {
	sessions map[uint]*model.Session
	nextID   uint
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uint]*model.Session), nextID: 1}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if session.ID == 0 {
		session.ID = r.nextID
		r.nextID++
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id uint) (*model.Session, error) {
	session, ok := r.sessions[id]
	if !ok {
		return nil, tokens.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) Revoke(ctx context.Context, id uint) error {
	if session, ok := r.sessions[id]; ok {
		session.Revoked = true
	}
	return nil
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, session := range r.sessions {
		if session.ExpiresAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeRefreshRepo struct {
	tokens map[string]*model.RefreshToken
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: make(map[string]*model.RefreshToken)}
}

func (r *fakeRefreshRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	if token.ID == 0 {
		token.ID = model.GenerateID()
	}
	r.tokens[token.TokenHash] = token
	return nil
}

func (r *fakeRefreshRepo) GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, tokens.ErrTokenNotFound
	}
	copied := *token
	return &copied, nil
}

func (r *fakeRefreshRepo) MarkRotated(ctx context.Context, tokenHash string, supersededBy uint) (bool, error) {
	token, ok := r.tokens[tokenHash]
	if !ok || token.Revoked {
		return false, nil
	}
	token.Revoked = true
	token.SupersededBy = supersededBy
	return true, nil
}

func (r *fakeRefreshRepo) RevokeBySession(ctx context.Context, sessionID uint) error {
	for _, token := range r.tokens {
		if token.SessionID == sessionID {
			token.Revoked = true
		}
	}
	return nil
}

func (r *fakeRefreshRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for hash, token := range r.tokens {
		if token.ExpiresAt.Before(cutoff) {
			delete(r.tokens, hash)
			n++
		}
	}
	return n, nil
}

type fakeClientRepo struct {
	byID map[uint]*model.Client
}

func (r *fakeClientRepo) GetByID(ctx context.Context, id uint) (*model.Client, error) {
	client, ok := r.byID[id]
	if !ok {
		return nil, tokens.ErrSessionNotFound
	}
	return client, nil
}

func (r *fakeClientRepo) GetByClientID(ctx context.Context, realmID uint, clientID string) (*model.Client, error) {
	for _, client := range r.byID {
		if client.RealmID == realmID && client.ClientID == clientID {
			return client, nil
		}
	}
	return nil, tokens.ErrSessionNotFound
}

func (r *fakeClientRepo) Create(ctx context.Context, client *model.Client) error {
	r.byID[client.ID] = client
	return nil
}

type fakeKeyRepo struct {
	keys []*model.SigningKey
}

func (r *fakeKeyRepo) GetActive(ctx context.Context, realmID uint) (*model.SigningKey, error) {
	for _, k := range r.keys {
		if k.RealmID == realmID && k.Active {
			return k, nil
		}
	}
	return nil, keys.ErrNoActiveKey
}

func (r *fakeKeyRepo) GetByKID(ctx context.Context, kid string) (*model.SigningKey, error) {
	for _, k := range r.keys {
		if k.KID == kid {
			return k, nil
		}
	}
	return nil, keys.ErrKeyNotFound
}

func (r *fakeKeyRepo) ListByRealm(ctx context.Context, realmID uint) ([]*model.SigningKey, error) {
	return r.keys, nil
}

func (r *fakeKeyRepo) Rotate(ctx context.Context, realmID uint, newKey *model.SigningKey) error {
	for _, k := range r.keys {
		k.Active = false
	}
	newKey.RealmID = realmID
	newKey.Active = true
	r.keys = append(r.keys, newKey)
	return nil
}

type testEnv struct {
	manager  *tokens.Manager
	sessions *fakeSessionRepo
	refresh  *fakeRefreshRepo
	keys     *keys.Provider
	realm    *model.Realm
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sessions := newFakeSessionRepo()
	refresh := newFakeRefreshRepo()
	provider := keys.NewProvider(&fakeKeyRepo{})
	_, err := provider.EnsureActiveKey(context.Background(), 1)
	require.NoError(t, err)

	// web-app has no backchannel logout URI, so revocation stays local
	clientRepo := &fakeClientRepo{byID: map[uint]*model.Client{
		2: {ID: 2, RealmID: 1, ClientID: "web-app"},
	}}
	manager := tokens.NewManager(tokens.Config{
		MasterKey:   "master-key",
		BaseURL:     "https://auth.example.com",
		SessionRepo: sessions,
		RefreshRepo: refresh,
		ClientRepo:  clientRepo,
		KeyProvider: provider,
		Storage:     store.NewMemoryStorage(),
	})
	return &testEnv{
		manager:  manager,
		sessions: sessions,
		refresh:  refresh,
		keys:     provider,
		realm:    &model.Realm{ID: 1, Name: "test-realm"},
	}
}

func TestCreateSessionAndIssueRefreshToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	session, err := env.manager.CreateSession(ctx, env.realm, 10, 2, "203.0.113.7", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, session.SID)
	require.Equal(t, uint(1), session.RealmID)

	secret, token, err := env.manager.IssueRefreshToken(ctx, session, "openid profile", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEqual(t, secret, token.TokenHash)
	require.Equal(t, session.ID, token.SessionID)

	resolved, resolvedSession, err := env.manager.ResolveRefreshToken(ctx, secret)
	require.NoError(t, err)
	require.Equal(t, token.ID, resolved.ID)
	require.Equal(t, session.ID, resolvedSession.ID)
}

func TestRotateIssuesSuccessorAndRevokesCurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	session, err := env.manager.CreateSession(ctx, env.realm, 10, 2, "203.0.113.7", time.Hour)
	require.NoError(t, err)
	secret, token, err := env.manager.IssueRefreshToken(ctx, session, "openid", time.Hour)
	require.NoError(t, err)

	nextSecret, next, gotSession, err := env.manager.Rotate(ctx, env.realm, secret, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, secret, nextSecret)
	require.Equal(t, session.ID, gotSession.ID)
	require.Equal(t, token.Scope, next.Scope)

	old := env.refresh.tokens[token.TokenHash]
	require.True(t, old.Revoked)
	require.Equal(t, next.ID, old.SupersededBy)

	// the successor rotates fine
	_, _, _, err = env.manager.Rotate(ctx, env.realm, nextSecret, time.Hour)
	require.NoError(t, err)
}

func TestRotateReuseRevokesSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	session, err := env.manager.CreateSession(ctx, env.realm, 10, 2, "203.0.113.7", time.Hour)
	require.NoError(t, err)
	secret, _, err := env.manager.IssueRefreshToken(ctx, session, "openid", time.Hour)
	require.NoError(t, err)

	nextSecret, _, _, err := env.manager.Rotate(ctx, env.realm, secret, time.Hour)
	require.NoError(t, err)

	// replaying the rotated token is treated as theft
	_, _, _, err = env.manager.Rotate(ctx, env.realm, secret, time.Hour)
	require.ErrorIs(t, err, tokens.ErrTokenReused)

	require.True(t, env.sessions.sessions[session.ID].Revoked)
	_, _, _, err = env.manager.Rotate(ctx, env.realm, nextSecret, time.Hour)
	require.ErrorIs(t, err, tokens.ErrSessionRevoked)
}

func TestRotateRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	session, err := env.manager.CreateSession(ctx, env.realm, 10, 2, "203.0.113.7", time.Hour)
	require.NoError(t, err)
	secret, _, err := env.manager.IssueRefreshToken(ctx, session, "openid", -time.Minute)
	require.NoError(t, err)

	_, _, _, err = env.manager.Rotate(ctx, env.realm, secret, time.Hour)
	require.ErrorIs(t, err, tokens.ErrTokenExpired)
}

func TestRotateRejectsExpiredSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	session, err := env.manager.CreateSession(ctx, env.realm, 10, 2, "203.0.113.7", -time.Minute)
	require.NoError(t, err)
	secret, _, err := env.manager.IssueRefreshToken(ctx, session, "openid", time.Hour)
	require.NoError(t, err)

	_, _, _, err = env.manager.Rotate(ctx, env.realm, secret, time.Hour)
	require.ErrorIs(t, err, tokens.ErrSessionRevoked)
}

func TestRevokeSessionRevokesChain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	session, err := env.manager.CreateSession(ctx, env.realm, 10, 2, "203.0.113.7", time.Hour)
	require.NoError(t, err)
	secret, _, err := env.manager.IssueRefreshToken(ctx, session, "openid", time.Hour)
	require.NoError(t, err)

	require.NoError(t, env.manager.RevokeSession(ctx, env.realm, session))

	_, _, _, err = env.manager.Rotate(ctx, env.realm, secret, time.Hour)
	require.ErrorIs(t, err, tokens.ErrSessionRevoked)
	for _, token := range env.refresh.tokens {
		require.True(t, token.Revoked)
	}
}

func TestAccessTokenBlacklist(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	revoked, err := env.manager.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, env.manager.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err = env.manager.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// already expired tokens are not worth blacklisting
	require.NoError(t, env.manager.RevokeAccessToken(ctx, "jti-2", time.Now().Add(-time.Minute)))
	revoked, err = env.manager.IsAccessTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokeAccessTokenString(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tokenStr, err := env.keys.Sign(ctx, 1, jwt.RegisteredClaims{
		ID:        "jti-signed",
		Subject:   "10",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	require.NoError(t, err)

	require.NoError(t, env.manager.RevokeAccessTokenString(ctx, tokenStr))
	revoked, err := env.manager.IsAccessTokenRevoked(ctx, "jti-signed")
	require.NoError(t, err)
	require.True(t, revoked)

	require.ErrorIs(t, env.manager.RevokeAccessTokenString(ctx, "not-a-jwt"), tokens.ErrTokenNotFound)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	live, err := env.manager.CreateSession(ctx, env.realm, 10, 2, "203.0.113.7", time.Hour)
	require.NoError(t, err)
	stale, err := env.manager.CreateSession(ctx, env.realm, 10, 2, "203.0.113.7", -time.Hour)
	require.NoError(t, err)
	_, _, err = env.manager.IssueRefreshToken(ctx, stale, "openid", -time.Hour)
	require.NoError(t, err)

	require.NoError(t, env.manager.PurgeExpired(ctx))
	require.Contains(t, env.sessions.sessions, live.ID)
	require.NotContains(t, env.sessions.sessions, stale.ID)
	require.Empty(t, env.refresh.tokens)
}
