package broker

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/realmgate/realmgate/internal/common"
	"github.com/realmgate/realmgate/params"
)

// loginState carries the suspended OAuth parameters through the
// external provider round trip. It is signed, not stored: any node
// holding the master key can complete a login another node started.
type loginState struct {
	RealmID       uint   `json:"rid"`
	Alias         string `json:"idp"`
	ClientID      string `json:"cid"`
	RedirectURI   string `json:"ruri"`
	Scope         string `json:"scope"`
	State         string `json:"state"`
	Nonce         string `json:"nonce,omitempty"`
	CodeChallenge string `json:"cc,omitempty"`
	ExpiresAt     int64  `json:"exp"`
}

func encodeState(masterKey string, state loginState) (string, error) {
	state.ExpiresAt = time.Now().Add(params.BrokerStateExpiration).Unix()
	return signState(masterKey, state)
}

func signState(masterKey string, state loginState) (string, error) {
	blob, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(blob)
	return payload + "." + common.CalculateHash(masterKey, payload), nil
}

func decodeState(masterKey, encoded string) (*loginState, error) {
	payload, sig, ok := strings.Cut(encoded, ".")
	if !ok {
		return nil, ErrInvalidState
	}
	if !common.ConstantTimeEquals(common.CalculateHash(masterKey, payload), sig) {
		return nil, ErrInvalidState
	}
	blob, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrInvalidState
	}
	var state loginState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, ErrInvalidState
	}
	if time.Now().Unix() > state.ExpiresAt {
		return nil, ErrInvalidState
	}
	return &state, nil
}
