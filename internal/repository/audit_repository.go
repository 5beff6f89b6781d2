package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aulalabs/aula-api/internal/models"
)

// AuditRepository handles persistence of audit trail records.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create persists an audit record.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, details, old_values, new_values, ip_address, created_at)
        VALUES (:id, :action, :entity_type, :entity_id, :user_id, :details, :old_values, :new_values, :ip_address, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// List returns audit records filtered by entity and user, newest first.
func (r *AuditRepository) List(ctx context.Context, entityType, entityID, userID string, limit, skip int) ([]models.AuditLog, error) {
	var conditions []string
	var args []interface{}

	if entityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, entityType)
	}
	if entityID != "" {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)+1))
		args = append(args, entityID)
	}
	if userID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, userID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT id, action, entity_type, entity_id, user_id, details, old_values, new_values, ip_address, created_at
        FROM audit_logs%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, limit, skip)
	var entries []models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
