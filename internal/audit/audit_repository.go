package audit

import (
	"context"
	"time"

	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
	"gorm.io/gorm"
)

type AuditEventRepository interface {
	RecordEvent(ctx context.Context, event *model.AuditEvent) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditEventRepository struct {
	db *gorm.DB
}

func (r *auditEventRepository) RecordEvent(ctx context.Context, event *model.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.AuditEvent{})
	return res.RowsAffected, res.Error
}

func NewAuditEventRepository(db *gorm.DB) AuditEventRepository {
	return &auditEventRepository{db}
}

// PurgeStale removes events past the audit retention window.
func PurgeStale(ctx context.Context) error {
	if auditRepo == nil {
		return nil
	}
	_, err := auditRepo.DeleteOlderThan(ctx, time.Now().Add(-params.AuditRetentionPeriod))
	return err
}
