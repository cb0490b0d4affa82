package models

import "time"

// Role is the closed set of principal roles.
type Role string

const (
	RoleOwner Role = "OWNER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// Principal represents a user of the system, either a card owner or an administrator
type Principal struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Not serialized
	Role         Role      `json:"role"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName is the name printed on cards issued to the principal.
func (p *Principal) FullName() string {
	return p.FirstName + " " + p.LastName
}

// IsAdmin reports whether the principal has the ADMIN role.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
