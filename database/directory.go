package database

import (
	"context"

	"gorm.io/gorm"
)

// Directory resolves employee ids against public.employee. It runs on its own
// connection so lookups never wait on the session connection.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// EmployeeName returns "" without error when the id is unknown.
func (d *Directory) EmployeeName(ctx context.Context, empID string) (string, error) {
	var names []string
	err := d.db.WithContext(ctx).
		Raw("SELECT employee_name::text FROM public.employee WHERE employee_id::text = ? LIMIT 1", empID).
		Scan(&names).Error
	if err != nil {
		return "", translateError("employee lookup", err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

func (d *Directory) Close() {
	closeDB(d.db)
}
