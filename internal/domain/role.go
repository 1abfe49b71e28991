package domain

// Role is the coarse authorization role on a profile. Closed set; every
// branch on it should switch over both values.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient:
		return true
	}
	return false
}

// AppRole is the finer-grained application role on a user record. It is a
// display/feature signal only; admin access derives from Role, not AppRole.
type AppRole string

const (
	AppRoleAdmin  AppRole = "Admin"
	AppRoleEditor AppRole = "Editor"
	AppRoleViewer AppRole = "Viewer"
)

func (r AppRole) Valid() bool {
	switch r {
	case AppRoleAdmin, AppRoleEditor, AppRoleViewer:
		return true
	}
	return false
}
