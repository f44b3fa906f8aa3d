package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/realmgate/realmgate/internal/bruteforce"
	"github.com/realmgate/realmgate/internal/oauth"
	"github.com/realmgate/realmgate/internal/realms"
	"github.com/realmgate/realmgate/internal/tokens"
)

// writeOAuthError maps engine errors onto the OAuth2 wire format.
// Lockouts and token replays deliberately collapse into invalid_grant
// so probing callers learn nothing about account state.
func writeOAuthError(ctx *fiber.Ctx, err error) error {
	var protoErr *oauth.ProtocolError
	if errors.As(err, &protoErr) {
		return ctx.Status(protoErr.Status).JSON(protoErr)
	}

	var mfaErr *oauth.MFARequiredError
	if errors.As(err, &mfaErr) {
		return ctx.Status(fiber.StatusUnauthorized).JSON(mfaRequiredResponse{
			Error:    "mfa_required",
			MFAToken: mfaErr.MFAToken,
		})
	}

	var consentErr *oauth.ConsentRequiredError
	if errors.As(err, &consentErr) {
		return ctx.Status(fiber.StatusForbidden).JSON(consentRequiredResponse{
			Error:        "consent_required",
			ConsentToken: consentErr.ConsentToken,
		})
	}

	var lockedErr *bruteforce.LockedError
	if errors.As(err, &lockedErr) {
		return ctx.Status(oauth.ErrInvalidGrant.Status).JSON(oauth.ErrInvalidGrant)
	}
	if errors.Is(err, tokens.ErrTokenReused) {
		return ctx.Status(oauth.ErrInvalidGrant.Status).JSON(oauth.ErrInvalidGrant)
	}
	if errors.Is(err, realms.ErrRealmNotFound) {
		return fiber.ErrNotFound
	}

	slog.Error("Token endpoint error", "path", ctx.Path(), "error", err)
	return fiber.ErrInternalServerError
}

// ErrorHandler is the app-level fallback for errors no handler mapped.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if code == fiber.StatusInternalServerError {
		slog.Error("Unhandled error", "path", ctx.Path(), "code", code, "error", err)
	}
	return ctx.Status(code).JSON(fiber.Map{"error": fiber.NewError(code).Message})
}
