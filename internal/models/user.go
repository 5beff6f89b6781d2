package models

import (
	"database/sql/driver"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleEditor  UserRole = "editor"
	RoleStudent UserRole = "student"
)

// UserStatus represents the account lifecycle state.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// UserPreferences holds per-user notification and privacy settings.
type UserPreferences struct {
	NotificationsEmail bool   `json:"notifications_email"`
	NotificationsPush  bool   `json:"notifications_push"`
	NotificationsInApp bool   `json:"notifications_inapp"`
	DigestFrequency    string `json:"digest_frequency"`
	PrivacyShowEmail   bool   `json:"privacy_show_email"`
}

func (p UserPreferences) Value() (driver.Value, error) { return jsonbValue(p) }
func (p *UserPreferences) Scan(src interface{}) error  { return jsonbScan(src, p) }

// DefaultUserPreferences mirrors the defaults applied on registration.
func DefaultUserPreferences() UserPreferences {
	return UserPreferences{
		NotificationsEmail: true,
		NotificationsPush:  true,
		NotificationsInApp: true,
		DigestFrequency:    "daily",
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string          `db:"id" json:"id"`
	Email        string          `db:"email" json:"email"`
	PasswordHash string          `db:"password_hash" json:"-"`
	FirstName    string          `db:"first_name" json:"first_name"`
	LastName     string          `db:"last_name" json:"last_name"`
	Role         UserRole        `db:"role" json:"role"`
	Status       UserStatus      `db:"status" json:"status"`
	Language     string          `db:"language" json:"language"`
	Timezone     string          `db:"timezone" json:"timezone"`
	AvatarURL    *string         `db:"avatar_url" json:"avatar_url,omitempty"`
	Phone        *string         `db:"phone" json:"phone,omitempty"`
	Preferences  UserPreferences `db:"preferences" json:"preferences"`
	LastLogin    *time.Time      `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role   UserRole
	Status UserStatus
	Search string
	Skip   int
	Limit  int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Skip       int `json:"skip"`
	Limit      int `json:"limit"`
	TotalCount int `json:"total_count"`
}
