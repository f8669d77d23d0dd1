package models

import "fmt"

// TableKind selects one of the supported work-unit tables.
type TableKind string

const (
	TableProduction   TableKind = "production_inputs"
	TableTurnManeuver TableKind = "tm_production_inputs"
)

type ColumnKind int

const (
	KindText ColumnKind = iota
	KindNumeric
	KindDate
)

// Schema describes the layout of a work-unit table. It is resolved once per
// session from the TableKind.
type Schema struct {
	Kind    TableKind
	DBName  string
	Table   string
	Project Project
	Columns []string
	// Hidden columns are fetched but never shown or edited.
	Hidden    FieldSet
	Dropdowns map[string][]string
	Dates     FieldSet
	// NameFields pairs an employee-id column with the column holding the
	// employee name.
	NameFields map[string]string
}

const KeyField = "s_no"

// ConflictChannel carries the legacy 4-field edit signal.
const ConflictChannel = "edit_conflict"

func (s *Schema) Channel() string {
	return s.Table + "_update"
}

func (s *Schema) HasColumn(field string) bool {
	for _, c := range s.Columns {
		if c == field {
			return true
		}
	}
	return false
}

// VisibleColumns returns the grid columns in display order.
func (s *Schema) VisibleColumns() []string {
	cols := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if !s.Hidden.Has(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Allowed reports whether value is acceptable for a dropdown-constrained
// column. Empty always is.
func (s *Schema) Allowed(field, value string) bool {
	options, ok := s.Dropdowns[field]
	if !ok || value == "" {
		return true
	}
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

func ParseTableKind(s string) (TableKind, error) {
	switch TableKind(s) {
	case TableProduction, TableTurnManeuver:
		return TableKind(s), nil
	}
	switch s {
	case `"public"."production_inputs"`, "public.production_inputs":
		return TableProduction, nil
	case `"public"."tm_production_inputs"`, "public.tm_production_inputs":
		return TableTurnManeuver, nil
	}
	return "", fmt.Errorf("unsupported table %q", s)
}

func SchemaFor(kind TableKind) (*Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported table %q", kind)
	}
	return s, nil
}

var (
	IntersectionTypeValues = []string{
		"Valid In-In TM Location",
		"Valid In-In Ramp Extension (Data not available)",
		"Invalid In-In No TM Location",
		"Invalid In-In Duplicate Nodes",
		"Invalid In-In Bifurcation Ramp Extension (Data available)",
		"Invalid In-In Bifurcation Highway Ramp",
		"In-Out /Out-In",
	}
	TurnManeuverExtractionTypeValues = []string{"Auto", "Manual", "U-Turn", "In-Out"}
	RFDBProductionStatusValues       = []string{"Completed", "Inprogress", "Yet to start", "Hold", "Doubt_Case"}
	RFDBQCStatusValues               = []string{
		"Completed", "Inprogress", "Yet to start", "Hold", "QC_Rejected",
		"Rework_Inprogress", "Rework_Completed", "Doubt_Case",
	}
	SILOCStatusValues    = []string{"Completed", "Inprogress", "Yet to start", "Hold", "Doubt_Case"}
	DeliveryStatusValues = []string{"Delivered", "Undelivered", "Hold"}
)

var dropdowns = map[string][]string{
	"intersection_type":             IntersectionTypeValues,
	"turn_maneuver_extraction_type": TurnManeuverExtractionTypeValues,
	"rfdb_production_status":        RFDBProductionStatusValues,
	"rfdb_qc_status":                RFDBQCStatusValues,
	"siloc_status":                  SILOCStatusValues,
	"delivery_status":               DeliveryStatusValues,
}

var dateColumns = NewFieldSet(
	"wu_received_date", "rfdb_allotted_date", "rfdb_completed_date",
	"rfdb_qc_allotted_date", "rfdb_qc_completed_date", "siloc_allotted_date",
	"siloc_completed_date", "delivery_date",
)

var schemas = map[TableKind]*Schema{
	TableProduction: {
		Kind:      TableProduction,
		DBName:    "public",
		Table:     "production_inputs",
		Project:   ProjectRFDB,
		Columns:   productionColumns,
		Hidden:    NewFieldSet("geom", "last_updated"),
		Dropdowns: dropdowns,
		Dates:     dateColumns,
		NameFields: map[string]string{
			"rfdb_production_emp_id":                  "rfdb_production_done_by",
			"siloc_production_emp_id":                 "siloc_production_done_by",
			"siloc_qc_emp_id":                         "siloc_qc_done_by",
			"rfdb_path_association_production_emp_id": "rfdb_path_association_production_done_by",
			"rfdb_qc_emp_id":                          "rfdb_qc_done_by",
			"rfdb_attri_qc_emp_id":                    "rfdb_attri_qc_done_by",
			"rfdb_roadtype_qc_emp_id":                 "rfdb_roadtype_qc_done_by",
			"rfdb_qa_emp_id":                          "rfdb_qa_done_by",
			"rfdb_path_association_qc_emp_id":         "rfdb_path_association_qc_done_by",
		},
	},
	TableTurnManeuver: {
		Kind:      TableTurnManeuver,
		DBName:    "public",
		Table:     "tm_production_inputs",
		Project:   ProjectTurnManeuver,
		Columns:   turnManeuverColumns,
		Hidden:    NewFieldSet("geom", "last_updated"),
		Dropdowns: dropdowns,
		Dates:     dateColumns,
		NameFields: map[string]string{
			"rfdb_production_emp_id": "rfdb_production_done_by",
			"rfdb_qc_emp_id":         "rfdb_qc_done_by",
			"siloc_emp_id":           "siloc_done_by",
		},
	},
}

var productionColumns = []string{
	"geom", "s_no", "project", "wu_received_date", "work_unit_id", "length_mi", "subcountry",
	"rough_road_type", "rfdb_production_team_leader_emp_id", "rfdb_production_team_leader_emp_name",
	"rfdb_production_emp_id", "rfdb_production_done_by", "rfdb_allotted_date", "rfdb_completed_date",
	"rfdb_production_time_taken", "rfdb_production_status", "rfdb_production_actual_road_type",
	"rfdb_production_remarks", "siloc_production_team_leader_emp_id",
	"siloc_production_team_leader_emp_name", "siloc_production_emp_id", "siloc_production_done_by",
	"siloc_production_allotted_date", "siloc_production_completed_date",
	"siloc_production_time_taken", "siloc_production_sign_count",
	"siloc_production_autodetection_status", "siloc_production_status", "siloc_production_remarks",
	"siloc_qc_team_leader_emp_id", "siloc_qc_team_leader_emp_name", "siloc_qc_emp_id",
	"siloc_qc_done_by", "siloc_qc_allotted_date", "siloc_qc_completed_date", "siloc_qc_time_taken",
	"siloc_qc_sign_count", "siloc_qc_status", "siloc_qc_remarks",
	"rfdb_path_association_production_team_leader_emp_id",
	"rfdb_path_association_production_team_leader_emp_name",
	"rfdb_path_association_production_emp_id", "rfdb_path_association_production_done_by",
	"rfdb_path_association_production_allotted_date",
	"rfdb_path_association_production_completed_date", "rfdb_path_association_production_time_taken",
	"rfdb_path_association_production_status", "rfdb_path_association_production_remarks",
	"rfdb_qc_team_leader_emp_id", "rfdb_qc_team_leader_emp_name", "rfdb_qc_emp_id", "rfdb_qc_done_by",
	"rfdb_qc_allotted_date", "rfdb_qc_completed_date", "rfdb_qc_time_taken", "rfdb_qc_status",
	"rfdb_qc_remarks", "rfdb_attri_qc_team_leader_emp_id", "rfdb_attri_qc_team_leader_emp_name",
	"rfdb_attri_qc_emp_id", "rfdb_attri_qc_done_by", "rfdb_attri_qc_allotted_date",
	"rfdb_attri_qc_completed_date", "rfdb_attri_qc_time_taken", "rfdb_attri_qc_status",
	"rfdb_attri_qc_remarks", "rfdb_roadtype_qc_emp_id", "rfdb_roadtype_qc_done_by",
	"rfdb_roadtype_qc_allotted_date", "rfdb_roadtype_qc_completed_date",
	"rfdb_roadtype_qc_time_taken", "rfdb_roadtype_qc_status", "rfdb_roadtype_qc_remarks",
	"rfdb_qa_emp_id", "rfdb_qa_done_by", "rfdb_qa_allotted_date", "rfdb_qa_completed_date",
	"rfdb_qa_time_taken", "rfdb_qa_status", "rfdb_qa_remarks",
	"rfdb_path_association_qc_team_leader_emp_id", "rfdb_path_association_qc_team_leader_emp_name",
	"rfdb_path_association_qc_emp_id", "rfdb_path_association_qc_done_by",
	"rfdb_path_association_qc_allotted_date", "rfdb_path_association_qc_completed_date",
	"rfdb_path_association_qc_time_taken", "rfdb_path_association_qc_status",
	"rfdb_path_association_qc_remarks", "rfdb_qc_actual_road_type", "delivery_status",
	"delivered_date",
}

var turnManeuverColumns = []string{
	"geom", "s_no", "project", "wu_received_date", "wu_intersection_node_id",
	"associated_work_unit_ids", "subcountry", "priority", "intersection_type",
	"extracted_work_unit_id", "turn_maneuver_extraction_type", "auto_turn_maneuver_path_count",
	"manual_turn_maneuver_path_count", "production_total_tm_path_count",
	"production_intersection_type", "rfdb_production_team_leader_emp_id",
	"rfdb_production_team_leader_emp_name", "rfdb_production_emp_id", "rfdb_production_done_by",
	"rfdb_allotted_date", "rfdb_completed_date", "rfdb_production_extraction_time_taken",
	"rfdb_production_correction_time_taken", "rfdb_production_time_taken", "rfdb_production_status",
	"rfdb_ssd_jira_id", "rfdb_production_hold_reason", "rfdb_production_remarks",
	"rfdb_qc_team_leader_emp_id", "rfdb_qc_team_leader_emp_name", "rfdb_qc_emp_id", "rfdb_qc_done_by",
	"rfdb_qc_allotted_date", "rfdb_qc_completed_date", "rfdb_qc_first_review_time_taken",
	"rfdb_qc_second_review_time_taken", "rfdb_qc_time_taken", "rfdb_qc_total_tm_path_count",
	"rfdb_billing_intersection_type", "rfdb_qc_status", "rfdb_qc_total_errors_marked",
	"rfdb_qc_ssd_jira_id", "rfdb_qc_hold_reason", "rfdb_qc_remarks", "siloc_team_leader_emp_id",
	"siloc_team_leader_emp_name", "siloc_emp_id", "siloc_done_by", "siloc_allotted_date",
	"siloc_completed_date", "siloc_time_taken", "siloc_sign_count", "siloc_status", "siloc_remarks",
	"siloc_ssd_jira_id", "siloc_hold_reason", "delivery_plugin_version_used",
	"delivery_extraction_guide_used", "delivery_status", "delivery_date",
}
