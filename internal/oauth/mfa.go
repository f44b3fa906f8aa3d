package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
)

// MFAChallenge is the server half of a paused password grant. The
// mfa_token handed to the client references it by one-time secret.
type MFAChallenge struct {
	RealmID   uint      `redis:"realm_id"`
	UserID    uint      `redis:"user_id"`
	ClientID  uint      `redis:"client_id"`
	CreatedAt time.Time `redis:"created_at"`
}

type mfaTokenClaims struct {
	ChallengeID string `json:"cid"`
	jwt.RegisteredClaims
}

// issueMFAToken suspends the grant and returns a short-lived signed
// token the client must echo back together with a TOTP code.
func (e *Engine) issueMFAToken(ctx context.Context, realm *model.Realm, client *model.Client, user *model.User) (string, error) {
	challenge := MFAChallenge{
		RealmID:   realm.ID,
		UserID:    user.ID,
		ClientID:  client.ID,
		CreatedAt: time.Now(),
	}
	secret, err := e.mfaStore.Issue(ctx, challenge, params.MFATokenExpiration)
	if err != nil {
		return "", err
	}
	claims := mfaTokenClaims{
		ChallengeID: secret,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(params.MFATokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(e.masterKey))
}

// verifyMFAToken consumes the challenge behind the presented
// mfa_token. The challenge is one-time: a second resubmission with the
// same token fails even with a valid TOTP code.
func (e *Engine) verifyMFAToken(ctx context.Context, realm *model.Realm, client *model.Client, user *model.User, mfaToken string) error {
	var claims mfaTokenClaims
	token, err := jwt.ParseWithClaims(mfaToken, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(e.masterKey), nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidGrant
	}
	challenge, err := e.mfaStore.Take(ctx, claims.ChallengeID)
	if err != nil {
		return ErrInvalidGrant
	}
	if challenge.RealmID != realm.ID || challenge.UserID != user.ID || challenge.ClientID != client.ID {
		return ErrInvalidGrant
	}
	return nil
}

func validateTOTP(user *model.User, code string) bool {
	if user.TOTPSecret == "" || code == "" {
		return false
	}
	return totp.Validate(code, user.TOTPSecret)
}
