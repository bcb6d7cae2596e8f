package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
)

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// auditTrail writes best-effort audit entries; a failed write is logged, never returned.
type auditTrail struct {
	repo   auditRepository
	logger *zap.Logger
}

func (a auditTrail) record(ctx context.Context, principal models.Principal, action, resource, resourceID string, details map[string]interface{}) {
	if a.repo == nil {
		return
	}
	entry := &models.AuditLog{
		ActorID:    principal.PrincipalID,
		ActorRole:  principal.Role,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			doc := string(raw)
			entry.Details = &doc
		}
	}
	if err := a.repo.Create(ctx, entry); err != nil && a.logger != nil {
		a.logger.Warn("failed to record audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}
