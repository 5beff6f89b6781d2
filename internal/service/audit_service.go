package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, entityType, entityID, userID string, limit, skip int) ([]models.AuditLog, error)
}

// AuditService records and queries the audit trail.
type AuditService struct {
	repo   auditRepository
	logger *zap.Logger
}

// NewAuditService constructs an AuditService instance.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record writes an audit entry. Failures are logged and swallowed so the
// originating request never fails on the trail.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit entry",
			zap.String("action", entry.Action),
			zap.String("entity_type", entry.EntityType),
			zap.Error(err))
	}
}

// List returns audit entries, admins only.
func (s *AuditService) List(ctx context.Context, claims *models.JWTClaims, filter models.AuditFilter) ([]models.AuditLog, error) {
	if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can read the audit trail")
	}
	entries, err := s.repo.List(ctx, filter.EntityType, filter.EntityID, filter.UserID, filter.Limit, filter.Skip)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	return entries, nil
}
