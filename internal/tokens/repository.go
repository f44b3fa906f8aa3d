package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/realmgate/realmgate/model"
	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id uint) (*model.Session, error)
	Revoke(ctx context.Context, id uint) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	// MarkRotated flips revoked from false to true and links the
	// successor, as a single conditional update. It reports whether
	// this caller won the transition.
	MarkRotated(ctx context.Context, tokenHash string, supersededBy uint) (bool, error)
	RevokeBySession(ctx context.Context, sessionID uint) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id uint) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return &session, err
}

func (r *sessionRepository) Revoke(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Update("revoked", true).Error
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&model.Session{})
	return res.RowsAffected, res.Error
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db}
}

type refreshTokenRepository struct {
	db *gorm.DB
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *refreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	return &token, err
}

func (r *refreshTokenRepository) MarkRotated(ctx context.Context, tokenHash string, supersededBy uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", tokenHash, false).
		Updates(map[string]interface{}{
			"revoked":       true,
			"superseded_by": supersededBy,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *refreshTokenRepository) RevokeBySession(ctx context.Context, sessionID uint) error {
	return r.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("session_id = ? AND revoked = ?", sessionID, false).
		Update("revoked", true).Error
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&model.RefreshToken{})
	return res.RowsAffected, res.Error
}

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db}
}
