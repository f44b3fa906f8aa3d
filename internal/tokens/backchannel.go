package tokens

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
	"github.com/valyala/bytebufferpool"
)

const backchannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"

type logoutTokenClaims struct {
	Events map[string]struct{} `json:"events"`
	SID    string              `json:"sid"`
	jwt.RegisteredClaims
}

// notifyBackchannelLogout delivers a signed logout token to the
// session's client if it registered a logout URI. Delivery runs in the
// background with a bounded retry and only ever logs failures.
func (m *Manager) notifyBackchannelLogout(realm *model.Realm, session *model.Session) {
	client, err := m.clientRepo.GetByID(context.Background(), session.ClientID)
	if err != nil || client.BackchannelLogout == "" {
		return
	}

	claims := logoutTokenClaims{
		Events: map[string]struct{}{backchannelLogoutEvent: {}},
		SID:    session.SID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   m.baseURL + "/realms/" + realm.Name,
			Subject:  strconv.FormatUint(uint64(session.UserID), 10),
			Audience: jwt.ClaimStrings{client.ClientID},
			IssuedAt: jwt.NewNumericDate(time.Now()),
			ID:       uuid.NewString(),
		},
	}
	logoutToken, err := m.keyProvider.Sign(context.Background(), realm.ID, claims)
	if err != nil {
		slog.Warn("Failed to sign logout token", "realm", realm.Name, "client", client.ClientID, "error", err)
		return
	}

	go m.deliverLogoutToken(client.BackchannelLogout, client.ClientID, logoutToken)
}

func (m *Manager) deliverLogoutToken(logoutURI, clientID, logoutToken string) {
	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)
	body.WriteString("logout_token=")
	body.WriteString(url.QueryEscape(logoutToken))

	for attempt := 0; attempt <= params.BackchannelMaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), params.BackchannelTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, logoutURI, bytes.NewReader(body.B))
		if err != nil {
			cancel()
			slog.Warn("Invalid backchannel logout request", "client", clientID, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := m.httpClient.Do(req)
		cancel()
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 300 {
				return
			}
			slog.Warn("Backchannel logout rejected", "client", clientID, "status", resp.StatusCode, "attempt", attempt)
		} else {
			slog.Warn("Backchannel logout delivery failed", "client", clientID, "attempt", attempt, "error", err)
		}
	}
}
