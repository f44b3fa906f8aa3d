package consent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
)

// PendingRequest carries the suspended OAuth parameters of an
// authorization flow that paused for a consent decision. It lives
// behind a one-time capability token; only the token's hash is stored.
type PendingRequest struct {
	RealmID       uint      `redis:"realm_id"`
	UserID        uint      `redis:"user_id"`
	ClientID      uint      `redis:"client_id"`
	RedirectURI   string    `redis:"redirect_uri"`
	Scope         string    `redis:"scope"`
	State         string    `redis:"state"`
	Nonce         string    `redis:"nonce"`
	CodeChallenge string    `redis:"code_challenge"`
	CreatedAt     time.Time `redis:"created_at"`
}

type Manager struct {
	repo    ConsentRepository
	pending *store.OneTime[PendingRequest]
}

// HasConsent reports whether every requested scope is covered by the
// stored grant. A superset request always demands fresh consent.
func (m *Manager) HasConsent(ctx context.Context, userID, clientID uint, requestedScopes []string) (bool, error) {
	record, err := m.repo.Get(ctx, userID, clientID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	granted := make(map[string]bool)
	for _, s := range strings.Fields(record.Scopes) {
		granted[s] = true
	}
	for _, s := range requestedScopes {
		if !granted[s] {
			return false, nil
		}
	}
	return true, nil
}

// GrantConsent replaces the stored scope set wholesale. Scopes dropped
// from a re-grant are revoked, not retained.
func (m *Manager) GrantConsent(ctx context.Context, realmID, userID, clientID uint, scopes []string) error {
	record := &model.ConsentRecord{
		RealmID:  realmID,
		UserID:   userID,
		ClientID: clientID,
		Scopes:   strings.Join(scopes, " "),
	}
	return m.repo.Upsert(ctx, record)
}

func (m *Manager) RevokeConsent(ctx context.Context, userID, clientID uint) error {
	return m.repo.Delete(ctx, userID, clientID)
}

// StoreConsentRequest suspends an OAuth request behind a one-time
// capability token with a 10 minute TTL.
func (m *Manager) StoreConsentRequest(ctx context.Context, req PendingRequest) (string, error) {
	req.CreatedAt = time.Now()
	return m.pending.Issue(ctx, req, params.ConsentRequestExpiration)
}

// TakeConsentRequest retrieves and deletes the suspended request.
// A second retrieval, or one past the TTL, fails.
func (m *Manager) TakeConsentRequest(ctx context.Context, token string) (*PendingRequest, error) {
	req, err := m.pending.Take(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if time.Since(req.CreatedAt) > params.ConsentRequestExpiration {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

func NewManager(repo ConsentRepository, storage store.Storage, masterKey string) *Manager {
	return &Manager{
		repo:    repo,
		pending: store.NewOneTime[PendingRequest](storage, params.ConsentRequestKeyPrefix, masterKey),
	}
}
