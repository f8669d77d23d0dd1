package database

import (
	"context"
	"fmt"
	"strings"

	"workportal/models"

	"github.com/golang/glog"
	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportStore is the write side of a bulk import into one table.
type ImportStore struct {
	repo *Repository
}

func NewImportStore(repo *Repository) *ImportStore {
	return &ImportStore{repo: repo}
}

// ExistingKeys returns the s_no and work_unit_id values already stored.
func (s *ImportStore) ExistingKeys(ctx context.Context) (map[string]bool, map[string]bool, error) {
	type keyRow struct {
		SNo        string
		WorkUnitID string
	}
	var rows []keyRow
	query := fmt.Sprintf("SELECT s_no::text AS s_no, work_unit_id::text AS work_unit_id FROM %s", s.repo.table())
	err := s.repo.m.ReadOnlyTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Raw(query).Scan(&rows).Error
	})
	if err != nil {
		return nil, nil, err
	}

	sNos := make(map[string]bool, len(rows))
	workUnits := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.SNo != "" {
			sNos[r.SNo] = true
		}
		if r.WorkUnitID != "" {
			workUnits[r.WorkUnitID] = true
		}
	}
	return sNos, workUnits, nil
}

// InsertRows inserts all rows in one transaction, emptying the table first
// when truncate is set so a failed insert also rolls the truncate back. The
// geom column carries hex encoded WKB; every other value is text cast to the
// column type.
func (s *ImportStore) InsertRows(ctx context.Context, columns []string, rows [][]string, truncate bool) error {
	types, err := s.repo.ColumnTypes(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		ids[i] = pgx.Identifier{c}.Sanitize()
		if c == "geom" {
			placeholders[i] = "?"
		} else {
			placeholders[i] = castValue(types[c])
		}
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.repo.table(), strings.Join(ids, ", "), strings.Join(placeholders, ", "))

	return s.repo.m.Transaction(ctx, func(tx *gorm.DB) error {
		if truncate {
			if err := tx.Exec("TRUNCATE TABLE " + s.repo.table() + " CASCADE").Error; err != nil {
				return fmt.Errorf("truncate: %w", err)
			}
		}
		for n, row := range rows {
			args := make([]any, len(row))
			for i, v := range row {
				if columns[i] == "geom" {
					args[i] = clause.Expr{SQL: "ST_SetSRID(ST_GeomFromWKB(decode(?, 'hex')), 4326)", Vars: []any{v}}
				} else {
					args[i] = v
				}
			}
			if err := tx.Exec(query, args...).Error; err != nil {
				return fmt.Errorf("row %d: %w", n+1, err)
			}
		}
		glog.Infof("inserted %d rows into %s", len(rows), s.repo.schema.Table)
		return nil
	})
}

// Notify tells open sessions that rows were added. Payloads are split to
// stay under the server's notification size limit.
func (s *ImportStore) Notify(ctx context.Context, keys []string) error {
	payloads := splitPayload(keys, maxPayload)
	if len(payloads) == 0 {
		return nil
	}
	return s.repo.m.Transaction(ctx, func(tx *gorm.DB) error {
		for _, p := range payloads {
			if err := tx.Exec("SELECT pg_notify(?, ?)", s.repo.schema.Channel(), p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ImportStore) Schema() *models.Schema {
	return s.repo.schema
}

const maxPayload = 7900

func splitPayload(keys []string, limit int) []string {
	var payloads []string
	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 && b.Len()+1+len(k) > limit {
			payloads = append(payloads, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
	}
	if b.Len() > 0 {
		payloads = append(payloads, b.String())
	}
	return payloads
}
