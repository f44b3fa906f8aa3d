package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/realmgate/realmgate/internal/audit"
	"github.com/realmgate/realmgate/internal/device"
	"github.com/realmgate/realmgate/internal/oauth"
)

// DeviceHandler fronts device authorization initiation and the
// verification surface where the human decides.
type DeviceHandler struct {
	engine *oauth.Engine
	flow   *device.Flow
}

func NewDeviceHandler(engine *oauth.Engine, flow *device.Flow) *DeviceHandler {
	return &DeviceHandler{engine: engine, flow: flow}
}

// PostDeviceAuthorization serves POST /realms/:realm/device.
func (h *DeviceHandler) PostDeviceAuthorization(ctx *fiber.Ctx) error {
	realm := CurrentRealm(ctx)

	var req oauth.TokenRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}

	authz, err := h.engine.InitiateDeviceAuthorization(ctx.Context(), realm, req)
	if err != nil {
		return writeOAuthError(ctx, err)
	}
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	return ctx.JSON(authz)
}

// PostDeviceApprove serves POST /realms/:realm/device/approve: the
// user authenticates and binds themselves to the pending user code.
func (h *DeviceHandler) PostDeviceApprove(ctx *fiber.Ctx) error {
	return h.decide(ctx, true)
}

// PostDeviceDeny serves POST /realms/:realm/device/deny.
func (h *DeviceHandler) PostDeviceDeny(ctx *fiber.Ctx) error {
	return h.decide(ctx, false)
}

func (h *DeviceHandler) decide(ctx *fiber.Ctx, approve bool) error {
	realm := CurrentRealm(ctx)

	var req DeviceApprovalRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}
	if req.UserCode == "" || req.Username == "" || req.Password == "" {
		return writeOAuthError(ctx, oauth.ErrInvalidRequest)
	}

	cc := oauth.ClientContext{IPAddress: ctx.IP(), UserAgent: ctx.Get(fiber.HeaderUserAgent)}
	user, err := h.engine.VerifyDeviceUser(ctx.Context(), realm, req.Username, req.Password, req.TOTP, cc)
	if err != nil {
		return writeOAuthError(ctx, err)
	}

	if approve {
		err = h.flow.Approve(ctx.Context(), realm, req.UserCode, user.ID)
	} else {
		err = h.flow.Deny(ctx.Context(), realm, req.UserCode)
		if err == nil {
			audit.RecordEvent(ctx.Context(), audit.EventTypeDeviceDenied, audit.EventRecord{
				RealmID:  realm.ID,
				UserID:   user.ID,
				Username: user.Username,
				IP:       cc.IPAddress,
			})
		}
	}
	switch {
	case err == nil:
		return ctx.JSON(fiber.Map{"status": "ok"})
	case errors.Is(err, device.ErrUserCodeNotFound), errors.Is(err, device.ErrCodeExpired):
		return writeOAuthError(ctx, oauth.ErrInvalidGrant)
	case errors.Is(err, device.ErrAlreadyDecided):
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_decided"})
	default:
		return err
	}
}
