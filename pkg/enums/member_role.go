package enums

import "fmt"

// MemberRole is the account-level permission role.
type MemberRole string

const (
	MemberRoleAdmin      MemberRole = "admin"
	MemberRoleManager    MemberRole = "manager"
	MemberRoleTechnician MemberRole = "technician"
)

var validMemberRoles = []MemberRole{
	MemberRoleAdmin,
	MemberRoleManager,
	MemberRoleTechnician,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the role may run destructive operations such as
// deleting issuance records.
func (m MemberRole) IsPrivileged() bool {
	return m == MemberRoleAdmin || m == MemberRoleManager
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
