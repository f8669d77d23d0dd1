package models

type Project string

const (
	ProjectRFDB         Project = "rfdb_project"
	ProjectTurnManeuver Project = "turn_maneuver_project"
)

// RowOwnership maps a role to the column holding the employee id that owns
// a row for that role. Roles absent from the map have no row restriction.
type RowOwnership map[Role]string

var rowOwnership = map[Project]RowOwnership{
	ProjectRFDB: {
		RoleRFDBProductionLeader:        "rfdb_production_team_leader_emp_id",
		RoleSILOCProductionLeader:       "siloc_production_team_leader_emp_id",
		RoleSILOCQCLeader:               "siloc_qc_team_leader_emp_id",
		RoleRFDBQCLeader:                "rfdb_qc_team_leader_emp_id",
		RoleRFDBAttriQCLeader:           "rfdb_attri_qc_team_leader_emp_id",
		RoleRFDBPathAssociationQCLeader: "rfdb_path_association_qc_team_leader_emp_id",
	},
	ProjectTurnManeuver: {
		RoleRFDBProductionLeader:  "rfdb_production_team_leader_emp_id",
		RoleRFDBQCLeader:          "rfdb_qc_team_leader_emp_id",
		RoleRFDBProductionUser:    "rfdb_production_emp_id",
		RoleRFDBQCUser:            "rfdb_qc_emp_id",
		RoleSILOCQCLeader:         "siloc_team_leader_emp_id",
		RoleSILOCProductionLeader: "siloc_team_leader_emp_id",
		RoleSILOCProductionUser:   "siloc_emp_id",
		RoleSILOCQCUser:           "siloc_emp_id",
	},
}

// OwnershipFor returns the ownership map of a project. Unknown projects have
// no row restrictions.
func OwnershipFor(p Project) RowOwnership {
	return rowOwnership[p]
}
