package domain

// Role is the coarse authorization role carried by a principal.
type Role string

const (
	RoleCitizen  Role = "CITIZEN"
	RoleEmployee Role = "EMPLOYEE"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleCitizen, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role processes complaints on behalf of a department.
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

// Principal is the verified actor of a request. It is supplied by the identity
// provider on every call and never persisted.
type Principal struct {
	ID           UserID
	Role         Role
	DepartmentID *DepartmentID
}

func (p Principal) IsAdmin() bool    { return p.Role == RoleAdmin }
func (p Principal) IsCitizen() bool  { return p.Role == RoleCitizen }
func (p Principal) IsEmployee() bool { return p.Role == RoleEmployee }

// InDepartment reports whether the principal belongs to dept. Both sides must be set.
func (p Principal) InDepartment(dept *DepartmentID) bool {
	if p.DepartmentID == nil || dept == nil {
		return false
	}
	return *p.DepartmentID == *dept
}
