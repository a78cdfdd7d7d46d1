package moderation

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// Permission represents a moderation action that can be performed
type Permission string

const (
	PermissionViewReports   Permission = "view_reports"
	PermissionReviewReport  Permission = "review_report"
	PermissionRejectReport  Permission = "reject_report"
	PermissionProcessReport Permission = "process_report"
	PermissionViewAuditLog  Permission = "view_audit_log"
	PermissionManageTerms   Permission = "manage_terms"
)

// AllPermissions returns all available permissions
func AllPermissions() []Permission {
	return []Permission{
		PermissionViewReports,
		PermissionReviewReport,
		PermissionRejectReport,
		PermissionProcessReport,
		PermissionViewAuditLog,
		PermissionManageTerms,
	}
}

// RoleName is a platform-wide moderation role. Room roles are separate, see RoomRole.
type RoleName string

const (
	RoleAdmin     RoleName = "admin"
	RoleModerator RoleName = "moderator"
)

// Role defines a set of permissions for moderators
type Role struct {
	Name        RoleName     `json:"-"` // Set from map key during loading
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// HasPermission checks if this role has the given permission
func (r *Role) HasPermission(perm Permission) bool {
	return slices.Contains(r.Permissions, perm)
}

// ModeratorUser represents a user with moderation privileges
type ModeratorUser struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name,omitempty"`
	Role   RoleName `json:"role"`
	Note   string   `json:"note,omitempty"`
}

// RolesConfig is the moderator roster loaded from JSON
type RolesConfig struct {
	Roles map[RoleName]*Role `json:"roles"`
	Users []ModeratorUser    `json:"users"`
}

// Validate checks that every user references a defined role.
func (c *RolesConfig) Validate() error {
	if c.Roles == nil {
		c.Roles = make(map[RoleName]*Role)
	}

	for _, user := range c.Users {
		if user.UserID == "" {
			return &ConfigError{Field: "users", Message: "user entry without user_id"}
		}
		if _, ok := c.Roles[user.Role]; !ok {
			return &ConfigError{
				Field:   "users",
				Message: "user " + user.UserID + " references unknown role: " + string(user.Role),
			}
		}
	}

	for name, role := range c.Roles {
		role.Name = name
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "moderation config error in " + e.Field + ": " + e.Message
}

// Roles resolves platform moderator roles from a JSON roster.
// With no roster configured every lookup returns false.
type Roles struct {
	mu         sync.RWMutex
	config     *RolesConfig
	configPath string

	userRoles map[string]*Role
}

// NewRoles loads the roster at configPath. An empty path or a missing file
// yields a disabled roster.
func NewRoles(configPath string) (*Roles, error) {
	r := &Roles{
		configPath: configPath,
		userRoles:  make(map[string]*Role),
	}

	if configPath == "" {
		log.Info().Msg("moderation: no roles config provided, roster disabled")
		return r, nil
	}

	if err := r.load(); err != nil {
		return nil, fmt.Errorf("failed to load moderation roles: %w", err)
	}

	return r, nil
}

func (r *Roles) load() error {
	data, err := os.ReadFile(r.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", r.configPath).Msg("moderation: roles file not found, roster disabled")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config RolesConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	userRoles := make(map[string]*Role, len(config.Users))
	for _, user := range config.Users {
		userRoles[user.UserID] = config.Roles[user.Role]
	}

	r.mu.Lock()
	r.config = &config
	r.userRoles = userRoles
	r.mu.Unlock()

	log.Info().
		Int("roles", len(config.Roles)).
		Int("users", len(config.Users)).
		Str("path", r.configPath).
		Msg("moderation: roles loaded")

	return nil
}

// Reload re-reads the roster from disk.
func (r *Roles) Reload() error {
	if r.configPath == "" {
		return nil
	}
	return r.load()
}

// IsEnabled returns true if a roster with at least one user is loaded
func (r *Roles) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config != nil && len(r.config.Users) > 0
}

// IsAdmin returns true if the user has the admin role
func (r *Roles) IsAdmin(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.userRoles[userID]
	return ok && role.Name == RoleAdmin
}

// IsModerator returns true for moderators and admins
func (r *Roles) IsModerator(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.userRoles[userID]
	return ok
}

// HasPermission returns true if the user's role grants permission
func (r *Roles) HasPermission(userID string, permission Permission) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.userRoles[userID]
	if !ok {
		return false
	}
	return role.HasPermission(permission)
}

// GetRole returns a copy of the user's role, if any
func (r *Roles) GetRole(userID string) (*Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.userRoles[userID]
	if !ok {
		return nil, false
	}
	roleCopy := *role
	return &roleCopy, true
}

// ListModerators returns a copy of the configured roster
func (r *Roles) ListModerators() []ModeratorUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.config == nil {
		return nil
	}
	return slices.Clone(r.config.Users)
}
