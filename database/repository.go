package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"workportal/models"

	"github.com/golang/glog"
	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"
)

// castTypes are the information_schema data types a text value may be cast
// to on update. Anything else is written as text.
var castTypes = map[string]string{
	"smallint":                    "smallint",
	"integer":                     "integer",
	"bigint":                      "bigint",
	"numeric":                     "numeric",
	"real":                        "real",
	"double precision":            "double precision",
	"boolean":                     "boolean",
	"date":                        "date",
	"time without time zone":      "time",
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestamptz",
	"interval":                    "interval",
}

// Repository reads and writes the rows of one work-unit table.
type Repository struct {
	m      *Manager
	schema *models.Schema

	mu    sync.Mutex
	types map[string]string
}

func NewRepository(m *Manager, schema *models.Schema) *Repository {
	return &Repository{m: m, schema: schema}
}

func (r *Repository) Schema() *models.Schema {
	return r.schema
}

func (r *Repository) table() string {
	return pgx.Identifier{r.schema.DBName, r.schema.Table}.Sanitize()
}

// ColumnTypes returns column name to data_type, read once per repository.
func (r *Repository) ColumnTypes(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.types != nil {
		return r.types, nil
	}

	type columnType struct {
		ColumnName string
		DataType   string
	}
	var cols []columnType
	err := r.m.ReadOnlyTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`SELECT column_name, data_type FROM information_schema.columns
			WHERE table_schema = ? AND table_name = ?`, r.schema.DBName, r.schema.Table).
			Scan(&cols).Error
	})
	if err != nil {
		return nil, err
	}

	types := make(map[string]string, len(cols))
	for _, c := range cols {
		types[c.ColumnName] = c.DataType
	}
	r.types = types
	return types, nil
}

func (r *Repository) selectList() string {
	cols := r.schema.VisibleColumns()
	parts := make([]string, len(cols))
	for i, c := range cols {
		id := pgx.Identifier{c}.Sanitize()
		parts[i] = fmt.Sprintf("%s::text AS %s", id, id)
	}
	return strings.Join(parts, ", ")
}

// FetchRows returns every visible row ordered by s_no, optionally scoped to a
// subcountry.
func (r *Repository) FetchRows(ctx context.Context, filter models.Filter) ([]models.Row, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", r.selectList(), r.table())
	var args []any
	if filter.Scoped() {
		query += " WHERE subcountry = ?"
		args = append(args, filter.Subcountry)
	}
	query += " ORDER BY " + pgx.Identifier{models.KeyField}.Sanitize()

	var rows []models.Row
	err := r.m.ReadOnlyTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		rows, err = r.scanRows(tx, query, args...)
		return err
	})
	return rows, err
}

// FetchRow re-reads a single row. ErrRowNotFound when it no longer exists.
func (r *Repository) FetchRow(ctx context.Context, key string) (models.Row, error) {
	rows, err := r.FetchRowsByKey(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrRowNotFound
	}
	return rows[0], nil
}

// FetchRowsByKey re-reads the named rows. Keys that no longer exist are
// absent from the result.
func (r *Repository) FetchRowsByKey(ctx context.Context, keys []string) ([]models.Row, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	types, err := r.ColumnTypes(ctx)
	if err != nil {
		return nil, err
	}

	query := r.byKeyQuery(types[models.KeyField], len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	var rows []models.Row
	err = r.m.ReadOnlyTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		rows, err = r.scanRows(tx, query, args...)
		return err
	})
	return rows, err
}

// byKeyQuery selects n rows by key. The parameters take the key's type so
// the s_no index stays usable.
func (r *Repository) byKeyQuery(keyType string, n int) string {
	key := pgx.Identifier{models.KeyField}.Sanitize()
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IN %s ORDER BY %s",
		r.selectList(), r.table(), key, inList(castValue(keyType), n), key)
}

// inList repeats placeholder n times as a parenthesised SQL list.
func inList(placeholder string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = placeholder
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (r *Repository) scanRows(tx *gorm.DB, query string, args ...any) ([]models.Row, error) {
	cursor, err := tx.Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	cols := r.schema.VisibleColumns()
	var rows []models.Row
	for cursor.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := cursor.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(models.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i].String
		}
		rows = append(rows, row)
	}
	return rows, cursor.Err()
}

// UpdateCell writes one cell and notifies the table channel in the same
// transaction, so listeners only hear about committed values. An empty value
// stores NULL.
func (r *Repository) UpdateCell(ctx context.Context, key, field, value string) error {
	if !r.schema.HasColumn(field) || r.schema.Hidden.Has(field) {
		return &models.TransactionError{Op: "update", Err: fmt.Errorf("unknown column %q", field)}
	}
	types, err := r.ColumnTypes(ctx)
	if err != nil {
		return err
	}

	keyID := pgx.Identifier{models.KeyField}.Sanitize()
	query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		r.table(), pgx.Identifier{field}.Sanitize(), castValue(types[field]),
		keyID, castValue(types[models.KeyField]))

	return r.m.Transaction(ctx, func(tx *gorm.DB) error {
		result := tx.Exec(query, value, key)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrRowNotFound
		}
		if err := tx.Exec("SELECT pg_notify(?, ?)", r.schema.Channel(), key).Error; err != nil {
			return err
		}
		glog.V(2).Infof("updated %s.%s of row %s", r.schema.Table, field, key)
		return nil
	})
}

// castValue renders the placeholder of a text parameter converted to the
// column type. Empty text becomes NULL.
func castValue(dataType string) string {
	if cast, ok := castTypes[dataType]; ok {
		return "NULLIF(?::text, '')::" + cast
	}
	return "NULLIF(?::text, '')"
}

// AnnounceEdit publishes the four-field edit signal on edit_conflict.
func (r *Repository) AnnounceEdit(ctx context.Context, key, field, editor, requester string) error {
	payload := strings.Join([]string{key, field, editor, requester}, ",")
	_, err := r.m.Cursor(ctx, r.m.cfg.CursorRetries).Exec(ctx, "SELECT pg_notify(?, ?)", models.ConflictChannel, payload)
	return err
}

// Subcountries lists the distinct non-null subcountries of the table.
func (r *Repository) Subcountries(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT subcountry::text FROM %s WHERE subcountry IS NOT NULL ORDER BY 1", r.table())
	var names []string
	err := r.m.Cursor(ctx, r.m.cfg.CursorRetries).Query(ctx, &names, query)
	return names, err
}
