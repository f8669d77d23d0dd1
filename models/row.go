package models

import "strings"

// Row is one work unit as displayed: column name to text value. An empty
// string is NULL.
type Row map[string]string

func (r Row) Key() string {
	return r[KeyField]
}

func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// CellRef identifies a cell independent of its position in the grid.
type CellRef struct {
	Key   string `json:"s_no"`
	Field string `json:"field"`
}

// PendingEdit is a cell mutation with its previous value captured.
type PendingEdit struct {
	Key   string `json:"s_no"`
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Filter scopes a full fetch. An empty subcountry fetches everything.
type Filter struct {
	Subcountry string `json:"subcountry"`
}

const AllSubcountries = "All subcountry"

func (f Filter) Scoped() bool {
	return f.Subcountry != "" && f.Subcountry != AllSubcountries
}

// NormalizeValue maps user input to the stored text form: blanks and the
// literal "none" are NULL.
func NormalizeValue(v string) string {
	t := strings.TrimSpace(v)
	if t == "" || strings.EqualFold(t, "none") {
		return ""
	}
	return v
}
