package consent_test

import (
	"context"
	"testing"

	"github.com/realmgate/realmgate/internal/consent"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/model"
	"github.com/stretchr/testify/require"
)

type fakeConsentRepo struct {
	records map[[2]uint]*model.ConsentRecord
}

func newFakeConsentRepo() *fakeConsentRepo {
	return &fakeConsentRepo{records: make(map[[2]uint]*model.ConsentRecord)}
}

func (r *fakeConsentRepo) Get(ctx context.Context, userID, clientID uint) (*model.ConsentRecord, error) {
	return r.records[[2]uint{userID, clientID}], nil
}

func (r *fakeConsentRepo) Upsert(ctx context.Context, record *model.ConsentRecord) error {
	r.records[[2]uint{record.UserID, record.ClientID}] = record
	return nil
}

func (r *fakeConsentRepo) Delete(ctx context.Context, userID, clientID uint) error {
	delete(r.records, [2]uint{userID, clientID})
	return nil
}

func newTestManager() *consent.Manager {
	return consent.NewManager(newFakeConsentRepo(), store.NewMemoryStorage(), "master-key")
}

func TestHasConsentSubset(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	require.NoError(t, mgr.GrantConsent(ctx, 1, 10, 20, []string{"openid", "profile", "email"}))

	ok, err := mgr.HasConsent(ctx, 10, 20, []string{"openid", "email"})
	require.NoError(t, err)
	require.True(t, ok)

	// any scope outside the granted set demands fresh consent
	ok, err = mgr.HasConsent(ctx, 10, 20, []string{"openid", "offline_access"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = mgr.HasConsent(ctx, 10, 99, []string{"openid"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantConsentReplacesScopes(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	require.NoError(t, mgr.GrantConsent(ctx, 1, 10, 20, []string{"openid", "profile", "email"}))
	require.NoError(t, mgr.GrantConsent(ctx, 1, 10, 20, []string{"openid"}))

	ok, err := mgr.HasConsent(ctx, 10, 20, []string{"profile"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = mgr.HasConsent(ctx, 10, 20, []string{"openid"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRevokeConsent(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	require.NoError(t, mgr.GrantConsent(ctx, 1, 10, 20, []string{"openid"}))
	require.NoError(t, mgr.RevokeConsent(ctx, 10, 20))

	ok, err := mgr.HasConsent(ctx, 10, 20, []string{"openid"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConsentRequestOneTime(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	token, err := mgr.StoreConsentRequest(ctx, consent.PendingRequest{
		RealmID:     1,
		UserID:      10,
		ClientID:    20,
		RedirectURI: "https://rp.example.com/cb",
		Scope:       "openid profile",
		State:       "xyz",
	})
	require.NoError(t, err)

	pending, err := mgr.TakeConsentRequest(ctx, token)
	require.NoError(t, err)
	require.Equal(t, uint(10), pending.UserID)
	require.Equal(t, "openid profile", pending.Scope)
	require.Equal(t, "xyz", pending.State)

	_, err = mgr.TakeConsentRequest(ctx, token)
	require.ErrorIs(t, err, consent.ErrRequestNotFound)
}

func TestConsentRequestUnknownToken(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	_, err := mgr.TakeConsentRequest(ctx, "forged-token")
	require.ErrorIs(t, err, consent.ErrRequestNotFound)
}
