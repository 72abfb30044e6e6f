package model

type Role string

const (
	RoleMember    Role = "user"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// CanScan reports whether the role may operate the issue/return desk.
func (r Role) CanScan() bool { return r == RoleLibrarian || r == RoleAdmin }

// Actor is the authenticated caller as handed over by the request boundary.
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}
