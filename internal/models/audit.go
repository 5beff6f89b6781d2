package models

import "time"

// AuditLog is an audit trail record. Writes are best-effort: a failed audit
// insert never fails the request that produced it.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Details    JSONMap   `db:"details" json:"details,omitempty"`
	OldValues  JSONMap   `db:"old_values" json:"old_values,omitempty"`
	NewValues  JSONMap   `db:"new_values" json:"new_values,omitempty"`
	IPAddress  *string   `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter narrows audit trail listings.
type AuditFilter struct {
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id"`
	UserID     string `form:"user_id"`
	Limit      int    `form:"limit"`
	Skip       int    `form:"skip"`
}
