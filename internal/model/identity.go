package model

// Role is the account role carried by a verified identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
	RoleParent  Role = "parent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin, RoleParent:
		return true
	}
	return false
}

// CanSupervise reports whether the role may monitor students and send notifications.
func (r Role) CanSupervise() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// Identity is the verified identity descriptor supplied by the identity provider.
type Identity struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Grade *int   `json:"grade,omitempty"`
}

// GradeLevel returns the identity's grade and whether one is set.
func (i Identity) GradeLevel() (int, bool) {
	if i.Grade == nil {
		return 0, false
	}
	return *i.Grade, true
}
