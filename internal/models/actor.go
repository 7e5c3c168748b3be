package models

// Actor is the resolved identity a request runs as.
type Actor struct {
	ID   uint64
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the actor manages tasks rather than working on them.
func (a Actor) IsStaff() bool {
	return a.HasRole(RoleAdmin, RoleEngineer)
}
