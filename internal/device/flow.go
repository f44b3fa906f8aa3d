package device

import (
	"context"
	"errors"
	"time"

	"github.com/realmgate/realmgate/internal/common"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
)

// DeviceCode is the stored state of one device authorization. The
// store key is the HMAC hash of the device code; the human-entered
// user code indexes into it via a second key prefix.
type DeviceCode struct {
	RealmID   uint      `redis:"realm_id"`
	ClientID  uint      `redis:"client_id"`
	Scope     string    `redis:"scope"`
	UserCode  string    `redis:"user_code"`
	UserID    uint      `redis:"user_id"`
	Approved  int       `redis:"approved"` // 0 pending, 1 approved, 2 denied
	Decided   int       `redis:"decided"`
	Consumed  int       `redis:"consumed"`
	CreatedAt time.Time `redis:"created_at"`
	ExpiresAt time.Time `redis:"expires_at"`
	LastPoll  time.Time `redis:"last_poll"`
}

const (
	decisionPending  = 0
	decisionApproved = 1
	decisionDenied   = 2
)

// Authorization is the device initiation response payload.
type Authorization struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// userCodeRef points a human-entered user code at the device code
// entry it belongs to.
type userCodeRef struct {
	Key string `redis:"key"`
}

type Flow struct {
	masterKey string
	baseURL   string
	codes     store.Store[DeviceCode]
	userCodes store.Store[userCodeRef]
}

func NewFlow(storage store.Storage, masterKey, baseURL string) *Flow {
	return &Flow{
		masterKey: masterKey,
		baseURL:   baseURL,
		codes:     store.New[DeviceCode](storage, params.DeviceCodeKeyPrefix),
		userCodes: store.New[userCodeRef](storage, params.UserCodeKeyPrefix),
	}
}

func (f *Flow) codeKey(deviceCode string) string {
	return common.CalculateHash(f.masterKey, deviceCode)
}

// Initiate starts a device authorization for a client that supports
// the device grant. Keys outlive the protocol expiry by a grace period
// so a late poll sees expired_token rather than an unknown code.
func (f *Flow) Initiate(ctx context.Context, realm *model.Realm, client *model.Client, scope string) (*Authorization, error) {
	deviceCode, err := common.GenerateSecret(params.DeviceCodeLength)
	if err != nil {
		return nil, err
	}
	userCode, err := GenerateUserCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dc := DeviceCode{
		RealmID:   realm.ID,
		ClientID:  client.ID,
		Scope:     scope,
		UserCode:  userCode,
		CreatedAt: now,
		ExpiresAt: now.Add(params.DeviceCodeExpiration),
	}
	storeTTL := params.DeviceCodeExpiration + 5*time.Minute
	key := f.codeKey(deviceCode)
	if err := f.codes.Set(ctx, key, dc, storeTTL); err != nil {
		return nil, err
	}
	if err := f.userCodes.Set(ctx, NormalizeUserCode(userCode), userCodeRef{Key: key}, storeTTL); err != nil {
		return nil, err
	}

	verificationURI := f.baseURL + "/realms/" + realm.Name + "/device/verify"
	return &Authorization{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURI + "?user_code=" + userCode,
		ExpiresIn:               int(params.DeviceCodeExpiration.Seconds()),
		Interval:                int(params.DevicePollInterval.Seconds()),
	}, nil
}

func (f *Flow) getByUserCode(ctx context.Context, realm *model.Realm, userCode string) (string, *DeviceCode, error) {
	ref, err := f.userCodes.Get(ctx, NormalizeUserCode(userCode))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrUserCodeNotFound
	}
	if err != nil {
		return "", nil, err
	}
	key := ref.Key
	dc, err := f.codes.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrUserCodeNotFound
	}
	if err != nil {
		return "", nil, err
	}
	if dc.RealmID != realm.ID {
		return "", nil, ErrUserCodeNotFound
	}
	if time.Now().After(dc.ExpiresAt) {
		return "", nil, ErrCodeExpired
	}
	return key, &dc, nil
}

// Approve binds the authenticated user to the pending code. The
// verification UI collaborator calls this after login. The decision
// slot is claimed with an atomic counter increment, so exactly one of
// two racing decisions lands.
func (f *Flow) Approve(ctx context.Context, realm *model.Realm, userCode string, userID uint) error {
	key, err := f.claimDecision(ctx, realm, userCode)
	if err != nil {
		return err
	}
	if err := f.codes.SetAttr(ctx, key, "user_id", userID); err != nil {
		return err
	}
	return f.codes.SetAttr(ctx, key, "approved", decisionApproved)
}

func (f *Flow) Deny(ctx context.Context, realm *model.Realm, userCode string) error {
	key, err := f.claimDecision(ctx, realm, userCode)
	if err != nil {
		return err
	}
	return f.codes.SetAttr(ctx, key, "approved", decisionDenied)
}

func (f *Flow) claimDecision(ctx context.Context, realm *model.Realm, userCode string) (string, error) {
	key, dc, err := f.getByUserCode(ctx, realm, userCode)
	if err != nil {
		return "", err
	}
	if dc.Approved != decisionPending {
		return "", ErrAlreadyDecided
	}
	decided, err := f.codes.IncrAttr(ctx, key, "decided", 1)
	if err != nil {
		return "", err
	}
	if decided != 1 {
		return "", ErrAlreadyDecided
	}
	return key, nil
}

// Poll is the token-endpoint half of the flow. On approval the code is
// consumed with an atomic counter increment: exactly one concurrent
// poll observes 1 and issues tokens, every other observes a replay.
func (f *Flow) Poll(ctx context.Context, realm *model.Realm, client *model.Client, deviceCode string) (*DeviceCode, error) {
	key := f.codeKey(deviceCode)
	dc, err := f.codes.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	if dc.RealmID != realm.ID || dc.ClientID != client.ID {
		return nil, ErrClientMismatch
	}
	if time.Now().After(dc.ExpiresAt) {
		return nil, ErrCodeExpired
	}

	switch dc.Approved {
	case decisionDenied:
		f.codes.Delete(ctx, key)
		return nil, ErrAccessDenied
	case decisionPending:
		// the advertised interval binds only while the decision is
		// outstanding; the winning poll after approval is never
		// penalized for arriving early
		lastPoll := dc.LastPoll
		if err := f.codes.SetAttr(ctx, key, "last_poll", time.Now()); err != nil {
			return nil, err
		}
		if !lastPoll.IsZero() && time.Since(lastPoll) < params.DevicePollInterval {
			return nil, ErrSlowDown
		}
		return nil, ErrAuthorizationPending
	}

	uses, err := f.codes.IncrAttr(ctx, key, "consumed", 1)
	if err != nil {
		return nil, err
	}
	if uses != 1 {
		return nil, ErrCodeConsumed
	}
	return &dc, nil
}
