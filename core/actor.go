package core

// Role is the closed set of user roles.
type Role string

const (
	RoleParent     Role = "PARENT"
	RoleStudent    Role = "STUDENT"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var AllRoles = []Role{RoleParent, RoleStudent, RoleSuperAdmin}

func (r Role) IsValid() bool {
	switch r {
	case RoleParent, RoleStudent, RoleSuperAdmin:
		return true
	}
	return false
}

// CanManage reports whether the role may manage family data (assign, grade, configure).
func (r Role) CanManage() bool {
	return r == RoleParent || r == RoleSuperAdmin
}

// Actor is the authenticated user performing a request.
// It is built once per request and handed to every service call; services never read it from anywhere else.
type Actor struct {
	UserID   string
	Name     string
	Email    string
	Role     Role
	FamilyID string
}

// RequireManager fails with a PermissionError unless the actor may manage family data.
func (a Actor) RequireManager() error {
	if !a.Role.CanManage() {
		return NewPermissionError("only parents can do this")
	}
	return nil
}

// OwnsFamily reports whether the actor may see data of the given family.
func (a Actor) OwnsFamily(familyID string) bool {
	return familyID != "" && a.FamilyID == familyID
}
