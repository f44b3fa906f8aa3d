package device_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/realmgate/realmgate/internal/device"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
	"github.com/stretchr/testify/require"
)

func newTestFlow() (*device.Flow, *model.Realm, *model.Client) {
	flow := device.NewFlow(store.NewMemoryStorage(), "master-key", "https://auth.example.com")
	realm := &model.Realm{ID: 1, Name: "test-realm", Enabled: true}
	client := &model.Client{
		ID:         2,
		RealmID:    1,
		ClientID:   "tv-app",
		Public:     true,
		GrantTypes: model.GrantTypeDeviceCode,
	}
	return flow, realm, client
}

func TestInitiateIssuesCodes(t *testing.T) {
	ctx := context.Background()
	flow, realm, client := newTestFlow()

	authz, err := flow.Initiate(ctx, realm, client, "openid")
	require.NoError(t, err)
	require.NotEmpty(t, authz.DeviceCode)
	require.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}$`, authz.UserCode)
	require.Equal(t, "https://auth.example.com/realms/test-realm/device/verify", authz.VerificationURI)
	require.Contains(t, authz.VerificationURIComplete, "user_code="+authz.UserCode)
	require.Equal(t, int(params.DeviceCodeExpiration.Seconds()), authz.ExpiresIn)
	require.Equal(t, int(params.DevicePollInterval.Seconds()), authz.Interval)
}

func TestPollPendingThenApproved(t *testing.T) {
	ctx := context.Background()
	flow, realm, client := newTestFlow()

	authz, err := flow.Initiate(ctx, realm, client, "openid")
	require.NoError(t, err)

	_, err = flow.Poll(ctx, realm, client, authz.DeviceCode)
	require.ErrorIs(t, err, device.ErrAuthorizationPending)

	// an immediate re-poll violates the advertised interval
	_, err = flow.Poll(ctx, realm, client, authz.DeviceCode)
	require.ErrorIs(t, err, device.ErrSlowDown)

	require.NoError(t, flow.Approve(ctx, realm, authz.UserCode, 42))

	// approval lifts the interval guard for the winning poll
	dc, err := flow.Poll(ctx, realm, client, authz.DeviceCode)
	require.NoError(t, err)
	require.Equal(t, uint(42), dc.UserID)
	require.Equal(t, "openid", dc.Scope)
}

func TestPollConsumedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	flow, realm, client := newTestFlow()

	authz, err := flow.Initiate(ctx, realm, client, "openid")
	require.NoError(t, err)
	require.NoError(t, flow.Approve(ctx, realm, authz.UserCode, 42))

	_, err = flow.Poll(ctx, realm, client, authz.DeviceCode)
	require.NoError(t, err)

	_, err = flow.Poll(ctx, realm, client, authz.DeviceCode)
	require.ErrorIs(t, err, device.ErrCodeConsumed)
}

func TestPollDenied(t *testing.T) {
	ctx := context.Background()
	flow, realm, client := newTestFlow()

	authz, err := flow.Initiate(ctx, realm, client, "openid")
	require.NoError(t, err)
	require.NoError(t, flow.Deny(ctx, realm, authz.UserCode))

	_, err = flow.Poll(ctx, realm, client, authz.DeviceCode)
	require.ErrorIs(t, err, device.ErrAccessDenied)

	// denial deletes the entry
	_, err = flow.Poll(ctx, realm, client, authz.DeviceCode)
	require.ErrorIs(t, err, device.ErrCodeNotFound)
}

func TestApproveIsFinal(t *testing.T) {
	ctx := context.Background()
	flow, realm, client := newTestFlow()

	authz, err := flow.Initiate(ctx, realm, client, "openid")
	require.NoError(t, err)
	require.NoError(t, flow.Approve(ctx, realm, authz.UserCode, 42))

	require.ErrorIs(t, flow.Deny(ctx, realm, authz.UserCode), device.ErrAlreadyDecided)
	require.ErrorIs(t, flow.Approve(ctx, realm, authz.UserCode, 7), device.ErrAlreadyDecided)
}

func TestConcurrentDecisionsAdmitOne(t *testing.T) {
	ctx := context.Background()
	flow, realm, client := newTestFlow()

	authz, err := flow.Initiate(ctx, realm, client, "openid")
	require.NoError(t, err)

	errs := make(chan error, 2)
	var start sync.WaitGroup
	start.Add(1)
	go func() {
		start.Wait()
		errs <- flow.Approve(ctx, realm, authz.UserCode, 42)
	}()
	go func() {
		start.Wait()
		errs <- flow.Deny(ctx, realm, authz.UserCode)
	}()
	start.Done()

	var won, lost int
	for i := 0; i < 2; i++ {
		if err := <-errs; err == nil {
			won++
		} else {
			require.ErrorIs(t, err, device.ErrAlreadyDecided)
			lost++
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, lost)
}

func TestPollUnknownAndForeignCodes(t *testing.T) {
	ctx := context.Background()
	flow, realm, client := newTestFlow()

	_, err := flow.Poll(ctx, realm, client, "no-such-code")
	require.ErrorIs(t, err, device.ErrCodeNotFound)

	authz, err := flow.Initiate(ctx, realm, client, "openid")
	require.NoError(t, err)

	otherClient := &model.Client{ID: 99, RealmID: 1, ClientID: "other"}
	_, err = flow.Poll(ctx, realm, otherClient, authz.DeviceCode)
	require.ErrorIs(t, err, device.ErrClientMismatch)

	otherRealm := &model.Realm{ID: 5, Name: "other-realm"}
	_, err = flow.Poll(ctx, otherRealm, client, authz.DeviceCode)
	require.ErrorIs(t, err, device.ErrClientMismatch)
}

func TestApproveUnknownUserCode(t *testing.T) {
	ctx := context.Background()
	flow, realm, _ := newTestFlow()

	err := flow.Approve(ctx, realm, "XXXX-XXXX", 42)
	require.ErrorIs(t, err, device.ErrUserCodeNotFound)
}

func TestUserCodeForgivingInput(t *testing.T) {
	ctx := context.Background()
	flow, realm, client := newTestFlow()

	authz, err := flow.Initiate(ctx, realm, client, "openid")
	require.NoError(t, err)

	sloppy := "  " + strings.ToLower(strings.ReplaceAll(authz.UserCode, "-", " ")) + "  "
	require.NoError(t, flow.Approve(ctx, realm, sloppy, 42))
}
