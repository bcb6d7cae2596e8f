package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent    UserRole = "Student"
	RoleCounsellor UserRole = "Counsellor"
	RoleAdmin      UserRole = "Admin"
	RoleSuperadmin UserRole = "Superadmin"
)

// ParseRole maps a stored role onto the enumeration. Matching ignores case
// and surrounding whitespace so "SuperAdmin" and "superadmin" both resolve.
func ParseRole(raw string) (UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "student":
		return RoleStudent, true
	case "counsellor":
		return RoleCounsellor, true
	case "admin":
		return RoleAdmin, true
	case "superadmin":
		return RoleSuperadmin, true
	default:
		return "", false
	}
}

// User is a row of the users table: the principal to role lookup.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Principal is an authenticated caller with a resolved role.
type Principal struct {
	PrincipalID string   `json:"principal_id"`
	Email       string   `json:"email"`
	Role        UserRole `json:"role"`
}

// Is reports whether the principal holds one of the roles.
func (p Principal) Is(roles ...UserRole) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
