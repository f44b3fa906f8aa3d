package oauth

import (
	"context"
	"errors"

	"github.com/realmgate/realmgate/internal/audit"
	"github.com/realmgate/realmgate/internal/device"
	"github.com/realmgate/realmgate/model"
)

// InitiateDeviceAuthorization starts a device flow for a client
// allowed to use the device grant.
func (e *Engine) InitiateDeviceAuthorization(ctx context.Context, realm *model.Realm, req TokenRequest) (*device.Authorization, error) {
	client, err := e.authenticateClient(ctx, realm, req)
	if err != nil {
		return nil, err
	}
	if err := e.clientReg.CheckGrant(client, model.GrantTypeDeviceCode); err != nil {
		return nil, ErrUnauthorizedClient
	}
	scope, err := e.resolveScope(client, req.Scope)
	if err != nil {
		return nil, err
	}
	return e.deviceFlow.Initiate(ctx, realm, client, scope)
}

// VerifyDeviceUser authenticates the human approving a device code on
// the verification surface, with the same lockout accounting as the
// password grant. Realms requiring TOTP demand the code inline here.
func (e *Engine) VerifyDeviceUser(ctx context.Context, realm *model.Realm, username, password, totpCode string, cc ClientContext) (*model.User, error) {
	user, err := e.userService.GetByUsername(ctx, realm.ID, username)
	if err != nil || !user.Enabled {
		return nil, ErrInvalidGrant
	}
	if err := e.brute.CheckLocked(realm, user); err != nil {
		return nil, err
	}
	if err := e.userService.VerifyPassword(user, password); err != nil {
		if err := e.brute.RecordFailure(ctx, realm, user.ID, cc.IPAddress); err != nil {
			return nil, err
		}
		return nil, ErrInvalidGrant
	}
	if realm.RequireTOTP && user.TOTPSecret != "" && !validateTOTP(user, totpCode) {
		if err := e.brute.RecordFailure(ctx, realm, user.ID, cc.IPAddress); err != nil {
			return nil, err
		}
		return nil, ErrInvalidGrant
	}
	if err := e.brute.ResetFailures(ctx, realm, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// deviceGrant services token-endpoint polling for the device flow.
// State transitions happen in the flow; this maps its outcomes onto
// wire errors and mints tokens for the single winning poll.
func (e *Engine) deviceGrant(ctx context.Context, realm *model.Realm, client *model.Client, req TokenRequest, cc ClientContext) (*TokenResponse, error) {
	if req.DeviceCode == "" {
		return nil, ErrInvalidRequest
	}
	dc, err := e.deviceFlow.Poll(ctx, realm, client, req.DeviceCode)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrAuthorizationPending):
			return nil, ErrAuthorizationPending
		case errors.Is(err, device.ErrSlowDown):
			return nil, ErrSlowDown
		case errors.Is(err, device.ErrCodeExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, device.ErrAccessDenied):
			e.recordFailure(ctx, realm, nil, req, cc, "device authorization denied")
			return nil, ErrAccessDenied
		case errors.Is(err, device.ErrCodeNotFound),
			errors.Is(err, device.ErrCodeConsumed),
			errors.Is(err, device.ErrClientMismatch):
			return nil, ErrInvalidGrant
		default:
			return nil, err
		}
	}

	user, err := e.userService.GetByID(ctx, dc.UserID)
	if err != nil || !user.Enabled {
		return nil, ErrInvalidGrant
	}

	audit.RecordEvent(ctx, audit.EventTypeDeviceApproved, audit.EventRecord{
		RealmID:  realm.ID,
		UserID:   user.ID,
		Username: user.Username,
		ClientID: client.ClientID,
		IP:       cc.IPAddress,
	})
	return e.finishGrant(ctx, realm, client, user, dc.Scope, "", req.GrantType, cc)
}
