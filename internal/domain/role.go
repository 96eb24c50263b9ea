package domain

// Role constants define the closed set of account roles.
const (
	RoleStandard = "standard"
	RoleAdmin    = "admin"
	RoleMerchant = "merchant"
)

// ValidRoles returns the set of valid user roles.
func ValidRoles() []string {
	return []string{RoleStandard, RoleAdmin, RoleMerchant}
}

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// Account status values. Only active accounts may authenticate.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// IsValidStatus checks whether s is a known account status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}
