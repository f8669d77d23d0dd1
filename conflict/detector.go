// Package conflict turns edit signals from other sessions into user alerts.
package conflict

import (
	"fmt"
	"sync"

	"workportal/access"
	"workportal/models"
	"workportal/notify"

	"github.com/golang/glog"
)

type AlertKind string

const (
	AlertPrivilegeDenied AlertKind = "privilege_denied"
	AlertConflict        AlertKind = "conflict"
)

type Alert struct {
	Kind    AlertKind `json:"kind"`
	Key     string    `json:"s_no"`
	Field   string    `json:"field"`
	Editor  string    `json:"editor,omitempty"`
	Message string    `json:"message"`
}

// Err converts the alert to the matching taxonomy error.
func (a Alert) Err(role models.Role) error {
	if a.Kind == AlertPrivilegeDenied {
		return &models.PrivilegeError{Role: role, Key: a.Key, Field: a.Field}
	}
	return &models.ConflictError{Editor: a.Editor, Key: a.Key, Field: a.Field}
}

// Detector tracks the cells the local user has open and checks every edit
// signal against them. Handle runs on the edit bus goroutine, never on the
// session loop.
type Detector struct {
	emp    models.Employee
	table  models.TableKind
	policy *access.Policy
	alerts *notify.Bus[Alert]

	mu   sync.Mutex
	open map[models.CellRef]struct{}
}

func NewDetector(emp models.Employee, table models.TableKind, policy *access.Policy, alerts *notify.Bus[Alert]) *Detector {
	return &Detector{
		emp:    emp,
		table:  table,
		policy: policy,
		alerts: alerts,
		open:   make(map[models.CellRef]struct{}),
	}
}

func (d *Detector) Open(ref models.CellRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open[ref] = struct{}{}
}

func (d *Detector) Close(ref models.CellRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, ref)
}

func (d *Detector) IsOpen(ref models.CellRef) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.open[ref]
	return ok
}

// Handle is the edit bus subscriber. A failure while evaluating a signal is
// logged and the signal discarded.
func (d *Detector) Handle(sig notify.EditSignal) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("conflict check of %+v failed: %v", sig, r)
		}
	}()

	alert, ok := d.Evaluate(sig)
	if !ok {
		return
	}
	glog.Warningf("%s: %s", alert.Kind, alert.Message)
	d.alerts.Publish(alert)
}

// Evaluate decides which alert, if any, a signal raises for the local user.
func (d *Detector) Evaluate(sig notify.EditSignal) (Alert, bool) {
	requester := access.NormalizeID(sig.RequestingUser)
	editor := access.NormalizeID(sig.EditingUser)
	me := access.NormalizeID(d.emp.EmpID)

	if requester == me && !d.policy.FieldAllowed(d.table, d.emp.Role, sig.Field) {
		return Alert{
			Kind:    AlertPrivilegeDenied,
			Key:     sig.Key,
			Field:   sig.Field,
			Message: fmt.Sprintf("no privilege to edit column %s", sig.Field),
		}, true
	}

	if editor == me {
		return Alert{}, false
	}
	if d.IsOpen(models.CellRef{Key: sig.Key, Field: sig.Field}) {
		return Alert{
			Kind:    AlertConflict,
			Key:     sig.Key,
			Field:   sig.Field,
			Editor:  sig.EditingUser,
			Message: fmt.Sprintf("user %s is editing (%s, %s)", sig.EditingUser, sig.Key, sig.Field),
		}, true
	}
	return Alert{}, false
}
