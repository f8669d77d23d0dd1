// Package roster holds the employee list used to authenticate logins and to
// resolve each employee's role.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"workportal/access"
	"workportal/models"

	"github.com/golang/glog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid employee id or password")
	ErrUnknownRole        = errors.New("employee has no known designation")
)

type Entry struct {
	EmpID        string
	Name         string
	Role         models.Role
	PasswordHash string
}

type Roster struct {
	entries map[string]Entry
	// privileged logs in as a grand leader without a roster entry; the
	// datastore verifies its password.
	privileged string
}

func Load(path, privileged string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return Parse(f, privileged)
}

// Parse reads a CSV with the columns employee_id, name, category (or
// designation) and password_hash. Lines with an unknown category are kept;
// those employees cannot log in.
func Parse(r io.Reader, privileged string) (*Roster, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("roster is empty")
	}

	pos := make(map[string]int)
	for i, h := range records[0] {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := pos["category"]; !ok {
		if i, ok := pos["designation"]; ok {
			pos["category"] = i
		}
	}
	for _, c := range []string{"employee_id", "category", "password_hash"} {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("roster is missing column %s", c)
		}
	}

	get := func(rec []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ro := &Roster{entries: make(map[string]Entry, len(records)-1), privileged: privileged}
	for n, rec := range records[1:] {
		id := access.NormalizeID(get(rec, "employee_id"))
		if id == "" {
			continue
		}
		role, ok := models.ParseRole(strings.ToLower(get(rec, "category")))
		if !ok {
			glog.Warningf("roster line %d: unknown category %q for %s", n+2, get(rec, "category"), id)
		}
		ro.entries[id] = Entry{
			EmpID:        id,
			Name:         get(rec, "name"),
			Role:         role,
			PasswordHash: get(rec, "password_hash"),
		}
	}
	glog.Infof("roster loaded with %d employees", len(ro.entries))
	return ro, nil
}

func (r *Roster) Len() int {
	return len(r.entries)
}

func (r *Roster) Lookup(empID string) (Entry, bool) {
	e, ok := r.entries[access.NormalizeID(empID)]
	return e, ok
}

// Authenticate checks the password against the roster and returns the
// employee identity. The privileged identity is not in the roster and is
// returned as a grand leader; its password is checked at connect time.
func (r *Roster) Authenticate(empID, password string) (models.Employee, error) {
	empID = strings.TrimSpace(empID)
	if r.privileged != "" && strings.EqualFold(empID, r.privileged) {
		return models.Employee{EmpID: r.privileged, Role: models.RoleGrandLeader}, nil
	}

	e, ok := r.Lookup(empID)
	if !ok || e.PasswordHash == "" {
		return models.Employee{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(password)); err != nil {
		return models.Employee{}, ErrInvalidCredentials
	}
	if _, known := models.ParseRole(string(e.Role)); !known {
		return models.Employee{}, ErrUnknownRole
	}
	return models.Employee{EmpID: e.EmpID, Role: e.Role}, nil
}
