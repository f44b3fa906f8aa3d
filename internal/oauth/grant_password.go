package oauth

import (
	"context"
	"errors"

	"github.com/realmgate/realmgate/internal/users"
	"github.com/realmgate/realmgate/model"
)

// passwordGrant authenticates the user's credentials with the
// brute-force engine consulted before and after the attempt. The MFA
// step pauses the grant behind an mfa_token when realm policy demands
// a TOTP code that the request did not carry.
func (e *Engine) passwordGrant(ctx context.Context, realm *model.Realm, client *model.Client, req TokenRequest, cc ClientContext) (*TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, ErrInvalidRequest
	}

	user, err := e.userService.GetByUsername(ctx, realm.ID, req.Username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			e.recordFailure(ctx, realm, nil, req, cc, "unknown user")
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	if !user.Enabled {
		e.recordFailure(ctx, realm, user, req, cc, "user disabled")
		return nil, ErrInvalidGrant
	}

	if err := e.brute.CheckLocked(realm, user); err != nil {
		e.recordFailure(ctx, realm, user, req, cc, "account locked")
		return nil, err
	}

	if err := e.userService.VerifyPassword(user, req.Password); err != nil {
		if err := e.brute.RecordFailure(ctx, realm, user.ID, cc.IPAddress); err != nil {
			return nil, err
		}
		e.recordFailure(ctx, realm, user, req, cc, "bad password")
		return nil, ErrInvalidGrant
	}

	if realm.RequireTOTP {
		if err := e.checkMFA(ctx, realm, client, user, req, cc); err != nil {
			return nil, err
		}
	}

	if err := e.brute.ResetFailures(ctx, realm, user.ID); err != nil {
		return nil, err
	}

	scope, err := e.resolveScope(client, req.Scope)
	if err != nil {
		return nil, err
	}
	return e.finishGrant(ctx, realm, client, user, scope, "", req.GrantType, cc)
}

// checkMFA drives the second factor of the password grant. A request
// without a TOTP code receives mfa_required with a fresh mfa_token; a
// resubmission must present both the matching token and a valid code.
func (e *Engine) checkMFA(ctx context.Context, realm *model.Realm, client *model.Client, user *model.User, req TokenRequest, cc ClientContext) error {
	if user.TOTPSecret == "" {
		e.recordFailure(ctx, realm, user, req, cc, "totp not enrolled")
		return ErrInvalidGrant
	}

	if req.TOTP == "" {
		mfaToken, err := e.issueMFAToken(ctx, realm, client, user)
		if err != nil {
			return err
		}
		return &MFARequiredError{MFAToken: mfaToken}
	}

	if req.MFAToken == "" {
		e.recordFailure(ctx, realm, user, req, cc, "missing mfa token")
		return ErrInvalidRequest
	}
	if err := e.verifyMFAToken(ctx, realm, client, user, req.MFAToken); err != nil {
		e.recordFailure(ctx, realm, user, req, cc, "invalid mfa token")
		return err
	}

	if !validateTOTP(user, req.TOTP) {
		if err := e.brute.RecordFailure(ctx, realm, user.ID, cc.IPAddress); err != nil {
			return err
		}
		e.recordFailure(ctx, realm, user, req, cc, "invalid totp")
		return ErrInvalidGrant
	}
	return nil
}
