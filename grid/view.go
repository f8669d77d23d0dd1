package grid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"workportal/models"
)

var numericTypes = map[string]bool{
	"smallint": true, "integer": true, "bigint": true,
	"numeric": true, "real": true, "double precision": true,
}

func columnKinds(schema *models.Schema, types map[string]string) map[string]models.ColumnKind {
	kinds := make(map[string]models.ColumnKind, len(schema.Columns))
	for _, c := range schema.Columns {
		switch {
		case schema.Dates.Has(c), types[c] == "date", strings.HasPrefix(types[c], "timestamp"):
			kinds[c] = models.KindDate
		case numericTypes[types[c]]:
			kinds[c] = models.KindNumeric
		default:
			kinds[c] = models.KindText
		}
	}
	return kinds
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "02-01-2006", "01/02/2006"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// less compares two cell values by column kind, falling back to text when a
// value does not parse.
func less(kind models.ColumnKind, a, b string) bool {
	switch kind {
	case models.KindNumeric:
		fa, errA := strconv.ParseFloat(a, 64)
		fb, errB := strconv.ParseFloat(b, 64)
		if errA == nil && errB == nil {
			return fa < fb
		}
	case models.KindDate:
		ta, okA := parseDate(a)
		tb, okB := parseDate(b)
		if okA && okB {
			return ta.Before(tb)
		}
	}
	return a < b
}

// Sort orders the rows by a column. Positions change, selection does not.
func (g *Grid) Sort(field string, desc bool) error {
	if !g.cfg.Schema.HasColumn(field) {
		return fmt.Errorf("%w: %s", models.ErrUnknownColumn, field)
	}
	g.sortField = field
	g.sortDesc = desc
	g.sortRows()
	return nil
}

func (g *Grid) sortRows() {
	kind := g.kinds[g.sortField]
	field := g.sortField
	sort.SliceStable(g.rows, func(i, j int) bool {
		a, b := g.rows[i][field], g.rows[j][field]
		if g.sortDesc {
			return less(kind, b, a)
		}
		return less(kind, a, b)
	})
	g.reindex()
}

// SetColumnFilter shows only rows whose value in field is one of values. An
// empty list removes the filter.
func (g *Grid) SetColumnFilter(field string, values []string) error {
	if !g.cfg.Schema.HasColumn(field) {
		return fmt.Errorf("%w: %s", models.ErrUnknownColumn, field)
	}
	if len(values) == 0 {
		delete(g.columnFilters, field)
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	g.columnFilters[field] = set
	return nil
}

func (g *Grid) ClearColumnFilters() {
	g.columnFilters = make(map[string]map[string]struct{})
}

func (g *Grid) visible(row models.Row, except string) bool {
	for field, allowed := range g.columnFilters {
		if field == except {
			continue
		}
		if _, ok := allowed[row[field]]; !ok {
			return false
		}
	}
	return true
}

// ColumnValues lists the distinct values of field among rows passing every
// other column filter: blanks first, then numbers, then text.
func (g *Grid) ColumnValues(field string) []string {
	seen := make(map[string]struct{})
	var values []string
	for _, row := range g.rows {
		if !g.visible(row, field) {
			continue
		}
		v := row[field]
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}

	rank := func(v string) (int, float64) {
		if strings.TrimSpace(v) == "" || strings.EqualFold(v, "none") {
			return 0, 0
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return 1, f
		}
		return 2, 0
	}
	sort.SliceStable(values, func(i, j int) bool {
		ri, fi := rank(values[i])
		rj, fj := rank(values[j])
		if ri != rj {
			return ri < rj
		}
		if ri == 1 {
			return fi < fj
		}
		return values[i] < values[j]
	})
	return values
}

// Select replaces the selection, or extends it when add is set. Cells are
// tracked by row key and field so they survive sorting and refreshes.
func (g *Grid) Select(refs []models.CellRef, add bool) {
	if !add {
		g.selection = make(map[models.CellRef]struct{}, len(refs))
	}
	for _, ref := range refs {
		if _, ok := g.index[ref.Key]; ok && g.cfg.Schema.HasColumn(ref.Field) {
			g.selection[ref] = struct{}{}
		}
	}
}

// Selection returns the selected cells in display order.
func (g *Grid) Selection() []models.CellRef {
	colPos := make(map[string]int, len(g.cfg.Schema.Columns))
	for i, c := range g.cfg.Schema.Columns {
		colPos[c] = i
	}
	refs := make([]models.CellRef, 0, len(g.selection))
	for ref := range g.selection {
		if i, ok := g.index[ref.Key]; ok && g.visible(g.rows[i], "") {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		ri, rj := g.index[refs[i].Key], g.index[refs[j].Key]
		if ri != rj {
			return ri < rj
		}
		return colPos[refs[i].Field] < colPos[refs[j].Field]
	})
	return refs
}

type Cell struct {
	Value    string `json:"value"`
	Editable bool   `json:"editable"`
	Selected bool   `json:"selected,omitempty"`
}

type ViewRow struct {
	Key   string          `json:"s_no"`
	Cells map[string]Cell `json:"cells"`
}

type View struct {
	Table     models.TableKind `json:"table"`
	Columns   []string         `json:"columns"`
	Rows      []ViewRow        `json:"rows"`
	Filter    models.Filter    `json:"filter"`
	SortField string           `json:"sort_field,omitempty"`
	SortDesc  bool             `json:"sort_desc,omitempty"`
	CanUndo   bool             `json:"can_undo"`
	CanRedo   bool             `json:"can_redo"`
}

// View renders the visible rows with per-cell editability.
func (g *Grid) View() View {
	cols := g.cfg.Schema.VisibleColumns()
	v := View{
		Table:     g.cfg.Schema.Kind,
		Columns:   cols,
		Filter:    g.filter,
		SortField: g.sortField,
		SortDesc:  g.sortDesc,
		CanUndo:   g.cfg.Stack.CanUndo(),
		CanRedo:   g.cfg.Stack.CanRedo(),
	}
	for _, row := range g.rows {
		if !g.visible(row, "") {
			continue
		}
		vr := ViewRow{Key: row.Key(), Cells: make(map[string]Cell, len(cols))}
		for _, c := range cols {
			ref := models.CellRef{Key: vr.Key, Field: c}
			_, selected := g.selection[ref]
			vr.Cells[c] = Cell{
				Value:    row[c],
				Editable: g.cfg.Policy.CanEdit(g.request(row, c)),
				Selected: selected,
			}
		}
		v.Rows = append(v.Rows, vr)
	}
	return v
}
