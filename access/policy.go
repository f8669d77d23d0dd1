// Package access decides which cells a role may write.
package access

import (
	"strconv"
	"strings"

	"workportal/models"

	"github.com/golang/glog"
)

type Request struct {
	Role    models.Role
	Table   models.TableKind
	Project models.Project
	Field   string
	// Row may be nil or empty when no row context is available.
	Row   models.Row
	EmpID string
}

type Policy struct {
	// StrictRowContext denies row-restricted roles when the row or the
	// requester id is missing instead of falling back to allow.
	StrictRowContext bool
}

func NewPolicy(strictRowContext bool) *Policy {
	return &Policy{StrictRowContext: strictRowContext}
}

func (p *Policy) CanEdit(req Request) bool {
	if !p.FieldAllowed(req.Table, req.Role, req.Field) {
		return false
	}
	if req.Role.IsGrandLeader() {
		return true
	}

	ownerField, restricted := p.OwnerField(req.Project, req.Role)
	if !restricted {
		return true
	}

	if len(req.Row) == 0 || req.EmpID == "" {
		return p.missingRowContext(req)
	}
	// a row without the ownership column has no owner
	return NormalizeID(req.Row[ownerField]) == NormalizeID(req.EmpID)
}

// missingRowContext allows by default. StrictRowContext turns it into a deny.
func (p *Policy) missingRowContext(req Request) bool {
	glog.V(1).Infof("no row context for %s on %s, strict=%t", req.Role, req.Field, p.StrictRowContext)
	return !p.StrictRowContext
}

// FieldAllowed is the field-level half of CanEdit, used where no row is
// involved (conflict signals, paste pre-checks).
func (p *Policy) FieldAllowed(table models.TableKind, role models.Role, field string) bool {
	return models.EditableFields(table, role).Has(field)
}

func (p *Policy) OwnerField(project models.Project, role models.Role) (string, bool) {
	if role.IsGrandLeader() {
		return "", false
	}
	field, ok := models.OwnershipFor(project)[role]
	return field, ok
}

// EditableFields lists the writable columns of a role in schema order.
func (p *Policy) EditableFields(schema *models.Schema, role models.Role) []string {
	set := models.EditableFields(schema.Kind, role)
	fields := make([]string, 0, len(set))
	for _, c := range schema.Columns {
		if set.Has(c) {
			fields = append(fields, c)
		}
	}
	return fields
}

// NormalizeID makes numeric and textual employee ids comparable:
// " 1001", "1001" and "1001.0" are the same id.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	if f, err := strconv.ParseFloat(id, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return id
}
