package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/realmgate/realmgate/model"
)

var auditRepo AuditEventRepository
var initOnce sync.Once

func Initialize(repo AuditEventRepository) {
	initOnce.Do(func() {
		auditRepo = repo
	})
}

const (
	EventTypeLoginSuccess   = "login_success"
	EventTypeLoginFailure   = "login_failure"
	EventTypeTokenRefresh   = "token_refresh"
	EventTypeTokenReplay    = "token_replay"
	EventTypeLogout         = "logout"
	EventTypeDeviceApproved = "device_approved"
	EventTypeDeviceDenied   = "device_denied"
	EventTypeConsentGranted = "consent_granted"
	EventTypeConsentRevoked = "consent_revoked"
	EventTypeBrokerLogin    = "broker_login"
	EventTypeUserProvision  = "user_provisioned"
)

type LoginRecord struct {
	RealmID   uint
	UserID    uint
	Username  string
	ClientID  string
	GrantType string
	IP        string
	UserAgent string
	Success   bool
	Reason    string
}

type EventRecord struct {
	RealmID  uint
	UserID   uint
	Username string
	ClientID string
	IP       string
	Reason   string
}

// RecordLogin is fire-and-forget; a failed write never fails the
// grant that produced it.
func RecordLogin(ctx context.Context, rec LoginRecord) {
	eventType := EventTypeLoginFailure
	if rec.Success {
		eventType = EventTypeLoginSuccess
	}
	record(ctx, &model.AuditEvent{
		RealmID:   rec.RealmID,
		UserID:    rec.UserID,
		Username:  rec.Username,
		ClientID:  rec.ClientID,
		EventType: eventType,
		GrantType: rec.GrantType,
		IP:        rec.IP,
		UserAgent: rec.UserAgent,
		Reason:    rec.Reason,
	})
}

func RecordEvent(ctx context.Context, eventType string, rec EventRecord) {
	record(ctx, &model.AuditEvent{
		RealmID:   rec.RealmID,
		UserID:    rec.UserID,
		Username:  rec.Username,
		ClientID:  rec.ClientID,
		EventType: eventType,
		IP:        rec.IP,
		Reason:    rec.Reason,
	})
}

func record(ctx context.Context, event *model.AuditEvent) {
	if auditRepo == nil {
		return
	}
	if err := auditRepo.RecordEvent(ctx, event); err != nil {
		slog.Warn("Failed to record audit event", "type", event.EventType, "error", err)
	}
}
