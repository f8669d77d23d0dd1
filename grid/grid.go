// Package grid keeps the in-memory mirror of the rows a session shows and
// funnels every cell write through one validated path.
package grid

import (
	"context"
	"errors"
	"fmt"

	"workportal/access"
	"workportal/editlog"
	"workportal/models"

	"github.com/golang/glog"
)

// Store is the datastore side of the grid.
type Store interface {
	ColumnTypes(ctx context.Context) (map[string]string, error)
	FetchRows(ctx context.Context, filter models.Filter) ([]models.Row, error)
	FetchRowsByKey(ctx context.Context, keys []string) ([]models.Row, error)
	UpdateCell(ctx context.Context, key, field, value string) error
	AnnounceEdit(ctx context.Context, key, field, editor, requester string) error
}

// CellTracker is told which cells the user has open for editing.
type CellTracker interface {
	Open(ref models.CellRef)
	Close(ref models.CellRef)
}

type Config struct {
	Employee models.Employee
	Schema   *models.Schema
	Policy   *access.Policy
	Store    Store
	Stack    *editlog.Stack
	Tracker  CellTracker
	// OnEmployeeID is called after an employee id cell is written while its
	// paired name cell is empty.
	OnEmployeeID func(key, nameField, empID string)
}

// Grid is owned by a single goroutine, the session loop. None of its methods
// are safe for concurrent use.
type Grid struct {
	cfg   Config
	kinds map[string]models.ColumnKind

	filter models.Filter
	rows   []models.Row
	index  map[string]int

	open          map[models.CellRef]string
	selection     map[models.CellRef]struct{}
	columnFilters map[string]map[string]struct{}
	sortField     string
	sortDesc      bool
}

func New(cfg Config) *Grid {
	return &Grid{
		cfg:           cfg,
		index:         make(map[string]int),
		open:          make(map[models.CellRef]string),
		selection:     make(map[models.CellRef]struct{}),
		columnFilters: make(map[string]map[string]struct{}),
	}
}

func (g *Grid) Schema() *models.Schema {
	return g.cfg.Schema
}

func (g *Grid) Stack() *editlog.Stack {
	return g.cfg.Stack
}

// Load replaces the grid contents with a full fetch.
func (g *Grid) Load(ctx context.Context, filter models.Filter) error {
	if g.kinds == nil {
		types, err := g.cfg.Store.ColumnTypes(ctx)
		if err != nil {
			return err
		}
		g.kinds = columnKinds(g.cfg.Schema, types)
	}

	rows, err := g.cfg.Store.FetchRows(ctx, filter)
	if err != nil {
		return err
	}
	g.filter = filter
	g.rows = rows
	g.reindex()
	if g.sortField != "" {
		g.sortRows()
	}

	// selection survives the reload for rows that still exist
	for ref := range g.selection {
		if _, ok := g.index[ref.Key]; !ok {
			delete(g.selection, ref)
		}
	}
	glog.V(1).Infof("loaded %d rows of %s (subcountry %q)", len(rows), g.cfg.Schema.Table, filter.Subcountry)
	return nil
}

func (g *Grid) reload(ctx context.Context) {
	if err := g.Load(ctx, g.filter); err != nil {
		glog.Errorf("reload of %s failed: %v", g.cfg.Schema.Table, err)
	}
}

func (g *Grid) reindex() {
	g.index = make(map[string]int, len(g.rows))
	for i, r := range g.rows {
		g.index[r.Key()] = i
	}
}

func (g *Grid) Len() int {
	return len(g.rows)
}

func (g *Grid) Filter() models.Filter {
	return g.filter
}

// Row returns a copy of the row with the given key.
func (g *Grid) Row(key string) (models.Row, bool) {
	i, ok := g.index[key]
	if !ok {
		return nil, false
	}
	return g.rows[i].Clone(), true
}

func (g *Grid) request(row models.Row, field string) access.Request {
	return access.Request{
		Role:    g.cfg.Employee.Role,
		Table:   g.cfg.Schema.Kind,
		Project: g.cfg.Schema.Project,
		Field:   field,
		Row:     row,
		EmpID:   g.cfg.Employee.EmpID,
	}
}

// Editable reports whether the local user may write the cell.
func (g *Grid) Editable(key, field string) bool {
	i, ok := g.index[key]
	if !ok {
		return false
	}
	return g.cfg.Policy.CanEdit(g.request(g.rows[i], field))
}

// ApplyNotice re-reads the named rows and overwrites them in place. Keys not
// in the grid are ignored; no row is ever added.
func (g *Grid) ApplyNotice(ctx context.Context, keys []string) error {
	var present []string
	for _, k := range keys {
		if _, ok := g.index[k]; ok {
			present = append(present, k)
		}
	}
	if len(present) == 0 {
		return nil
	}

	rows, err := g.cfg.Store.FetchRowsByKey(ctx, present)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if i, ok := g.index[row.Key()]; ok {
			g.rows[i] = row
		}
	}
	glog.V(2).Infof("refreshed rows %v", present)
	return nil
}

// BeginEdit marks a cell as open, returns its current value and announces
// the edit to other sessions.
func (g *Grid) BeginEdit(ctx context.Context, ref models.CellRef) (string, error) {
	i, ok := g.index[ref.Key]
	if !ok {
		return "", models.ErrRowNotFound
	}
	if !g.cfg.Schema.HasColumn(ref.Field) {
		return "", fmt.Errorf("%w: %s", models.ErrUnknownColumn, ref.Field)
	}
	if !g.cfg.Policy.CanEdit(g.request(g.rows[i], ref.Field)) {
		return "", &models.PrivilegeError{Role: g.cfg.Employee.Role, Key: ref.Key, Field: ref.Field}
	}

	value := g.rows[i][ref.Field]
	g.open[ref] = value
	if g.cfg.Tracker != nil {
		g.cfg.Tracker.Open(ref)
	}

	me := g.cfg.Employee.EmpID
	if err := g.cfg.Store.AnnounceEdit(ctx, ref.Key, ref.Field, me, me); err != nil {
		glog.Warningf("announce edit of (%s, %s): %v", ref.Key, ref.Field, err)
	}
	return value, nil
}

func (g *Grid) EndEdit(ref models.CellRef) {
	if _, ok := g.open[ref]; !ok {
		return
	}
	delete(g.open, ref)
	if g.cfg.Tracker != nil {
		g.cfg.Tracker.Close(ref)
	}
}

func (g *Grid) OpenCells() []models.CellRef {
	refs := make([]models.CellRef, 0, len(g.open))
	for ref := range g.open {
		refs = append(refs, ref)
	}
	return refs
}

// HandleCellEdit is the single write path for interactive edits. An
// unchanged value is a no-op; otherwise the edit is checked, persisted and
// recorded for undo.
func (g *Grid) HandleCellEdit(ctx context.Context, key, field, value string) error {
	edit, changed, err := g.edit(ctx, key, field, value)
	if err != nil || !changed {
		return err
	}
	if !g.cfg.Stack.Replaying() {
		g.cfg.Stack.Push(editlog.CellEdit{Edit: edit})
	}
	return nil
}

// ApplyCell implements editlog.Applier. Undo and redo write through the same
// checks as interactive edits. Rows that are gone or filtered out are skipped.
func (g *Grid) ApplyCell(ctx context.Context, key, field, value string) (bool, error) {
	i, ok := g.index[key]
	if !ok || !g.visible(g.rows[i], "") {
		return false, nil
	}
	_, _, err := g.edit(ctx, key, field, value)
	return true, err
}

func (g *Grid) Undo(ctx context.Context) (editlog.Command, error) {
	return g.cfg.Stack.Undo(ctx, g)
}

func (g *Grid) Redo(ctx context.Context) (editlog.Command, error) {
	return g.cfg.Stack.Redo(ctx, g)
}

func (g *Grid) edit(ctx context.Context, key, field, value string) (models.PendingEdit, bool, error) {
	i, ok := g.index[key]
	if !ok {
		return models.PendingEdit{}, false, models.ErrRowNotFound
	}
	if !g.cfg.Schema.HasColumn(field) || g.cfg.Schema.Hidden.Has(field) {
		return models.PendingEdit{}, false, fmt.Errorf("%w: %s", models.ErrUnknownColumn, field)
	}

	row := g.rows[i]
	value = models.NormalizeValue(value)
	old := row[field]
	if old == value && !g.cfg.Stack.Replaying() {
		return models.PendingEdit{}, false, nil
	}

	if !g.cfg.Schema.Allowed(field, value) {
		return models.PendingEdit{}, false, fmt.Errorf("%w: %q for %s", models.ErrInvalidValue, value, field)
	}
	if !g.cfg.Policy.CanEdit(g.request(row, field)) {
		return models.PendingEdit{}, false, &models.PrivilegeError{Role: g.cfg.Employee.Role, Key: key, Field: field}
	}

	if err := g.cfg.Store.UpdateCell(ctx, key, field, value); err != nil {
		glog.Errorf("update %s of row %s failed: %v", field, key, err)
		g.reload(ctx)
		return models.PendingEdit{}, false, err
	}

	row[field] = value
	g.EndEdit(models.CellRef{Key: key, Field: field})
	g.afterWrite(row, key, field, value)
	return models.PendingEdit{Key: key, Field: field, Old: old, New: value}, true, nil
}

func (g *Grid) afterWrite(row models.Row, key, field, value string) {
	if g.cfg.OnEmployeeID == nil || value == "" {
		return
	}
	nameField, ok := g.cfg.Schema.NameFields[field]
	if !ok || row[nameField] != "" {
		return
	}
	g.cfg.OnEmployeeID(key, nameField, value)
}

// FillDerived writes a value computed from another cell, such as an employee
// name looked up from an id. It only fills empty cells, skips the access
// check and is not recorded for undo.
func (g *Grid) FillDerived(ctx context.Context, key, field, value string) (bool, error) {
	i, ok := g.index[key]
	if !ok || value == "" {
		return false, nil
	}
	row := g.rows[i]
	if row[field] != "" {
		return false, nil
	}
	if err := g.cfg.Store.UpdateCell(ctx, key, field, value); err != nil {
		if errors.Is(err, models.ErrRowNotFound) {
			return false, nil
		}
		return false, err
	}
	row[field] = value
	return true, nil
}
