package models

type Role string

const (
	RoleGrandLeader                 Role = "grand_leaders"
	RoleRFDBProductionLeader        Role = "rfdb_production_leaders"
	RoleRFDBQCLeader                Role = "rfdb_qc_leaders"
	RoleRFDBAttriQCLeader           Role = "rfdb_attri_qc_leaders"
	RoleRFDBPathAssociationQCLeader Role = "rfdb_path_association_qc_leaders"
	RoleSILOCProductionLeader       Role = "siloc_production_leaders"
	RoleSILOCQCLeader               Role = "siloc_qc_leaders"
	RoleRFDBProductionUser          Role = "rfdb_production_users"
	RoleRFDBQCUser                  Role = "rfdb_qc_users"
	RoleSILOCProductionUser         Role = "siloc_production_users"
	RoleSILOCQCUser                 Role = "siloc_qc_users"
)

var knownRoles = map[Role]struct{}{
	RoleGrandLeader:                 {},
	RoleRFDBProductionLeader:        {},
	RoleRFDBQCLeader:                {},
	RoleRFDBAttriQCLeader:           {},
	RoleRFDBPathAssociationQCLeader: {},
	RoleSILOCProductionLeader:       {},
	RoleSILOCQCLeader:               {},
	RoleRFDBProductionUser:          {},
	RoleRFDBQCUser:                  {},
	RoleSILOCProductionUser:         {},
	RoleSILOCQCUser:                 {},
}

func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := knownRoles[r]
	return r, ok
}

func (r Role) IsGrandLeader() bool {
	return r == RoleGrandLeader
}

// CanImport reports whether the role may bulk load work units.
func (r Role) CanImport() bool {
	return r.IsGrandLeader()
}

// Employee is a logged-in identity: the employee id doubles as the
// datastore login name.
type Employee struct {
	EmpID string `json:"emp_id"`
	Role  Role   `json:"role"`
}
