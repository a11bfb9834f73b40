package auth

// Role is the closed enumeration of roles. Dynamic role strings from
// callers go through ParseRole; everything else compares typed values.
type Role string

const (
	// RoleCustomer is an end customer booking appointments at a branch
	RoleCustomer Role = "customer"
	// RoleStaff is an attendant managing their own schedule at a branch
	RoleStaff Role = "staff"
	// RoleAdmin manages services, staff, and schedules for a branch
	RoleAdmin Role = "admin"
	// RoleOwner holds blanket authority across every branch
	RoleOwner Role = "owner"
)

// RoleScope marks whether a role binds to a tenant or applies globally
type RoleScope string

const (
	// ScopeTenant roles are only valid with a tenant id
	ScopeTenant RoleScope = "tenant"
	// ScopeGlobal roles are only valid without one
	ScopeGlobal RoleScope = "global"
)

// Permission names a discrete action the guard can check
type Permission string

const (
	PermissionViewSchedule    Permission = "schedule.view"
	PermissionBookAppointment Permission = "appointment.book"
	PermissionManageSchedule  Permission = "schedule.manage"
	PermissionManageServices  Permission = "service.manage"
	PermissionManageStaff     Permission = "staff.manage"
	PermissionManageTenant    Permission = "tenant.manage"
)

// rolePermissions is the explicit implication table. Authorization checks
// consult this, never flat role equality.
var rolePermissions = map[Role][]Permission{
	RoleCustomer: {
		PermissionViewSchedule,
		PermissionBookAppointment,
	},
	RoleStaff: {
		PermissionViewSchedule,
		PermissionBookAppointment,
		PermissionManageSchedule,
	},
	RoleAdmin: {
		PermissionViewSchedule,
		PermissionBookAppointment,
		PermissionManageSchedule,
		PermissionManageServices,
		PermissionManageStaff,
	},
	RoleOwner: {
		PermissionViewSchedule,
		PermissionBookAppointment,
		PermissionManageSchedule,
		PermissionManageServices,
		PermissionManageStaff,
		PermissionManageTenant,
	},
}

var roleHierarchy = map[Role]int{
	RoleCustomer: 0,
	RoleStaff:    1,
	RoleAdmin:    2,
	RoleOwner:    3,
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// Scope returns the static scope classification of the role
func (r Role) Scope() RoleScope {
	if r == RoleOwner {
		return ScopeGlobal
	}
	return ScopeTenant
}

// IsGlobal reports whether the role carries blanket, tenant-less authority
func (r Role) IsGlobal() bool {
	return r.Scope() == ScopeGlobal
}

// Grants checks the implication table for the permission
func (r Role) Grants(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{
		RoleCustomer,
		RoleStaff,
		RoleAdmin,
		RoleOwner,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
