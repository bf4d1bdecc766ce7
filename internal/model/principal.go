package model

// Role is the single authorization axis this service needs.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Principal is the authenticated caller, resolved once at the HTTP
// boundary and passed into every core operation. Core logic never
// re-derives identity from transport state.
type Principal struct {
	ID   int  `json:"id"`
	Role Role `json:"role"`
}

// Staff reports whether the principal may perform admin/teacher actions.
func (p Principal) Staff() bool {
	return p.Role == RoleTeacher || p.Role == RoleAdmin
}
