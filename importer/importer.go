// Package importer bulk loads work units from a CSV file into a work-unit
// table.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"workportal/models"

	"github.com/golang/glog"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
)

// RequiredColumns are the columns an import writes. Every one must be
// present in the file and non-empty on every line.
var RequiredColumns = []string{
	"geom", "s_no", "project", "wu_received_date", "work_unit_id", "length_mi", "subcountry", "rough_road_type",
}

var ErrCancelled = fmt.Errorf("import cancelled: %w", models.ErrNotConfirmed)

type Store interface {
	Schema() *models.Schema
	ExistingKeys(ctx context.Context) (map[string]bool, map[string]bool, error)
	// InsertRows writes rows atomically. With truncate set the table is
	// emptied in the same transaction.
	InsertRows(ctx context.Context, columns []string, rows [][]string, truncate bool) error
	Notify(ctx context.Context, keys []string) error
}

type Options struct {
	// Truncate empties the table first. It only happens when Confirm agrees.
	Truncate bool
	Confirm  func(table string) bool
}

type Result struct {
	Inserted  int
	Truncated bool
	Keys      []string
}

// ValidationError rejects the whole file. Line counts the header as line 1.
type ValidationError struct {
	Line   int
	Column string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("invalid import file: %s", e.Reason)
	}
	return fmt.Sprintf("invalid import file: line %d, column %s: %s", e.Line, e.Column, e.Reason)
}

// Run validates the whole file before anything is written; a rejected file
// leaves the table untouched.
func Run(ctx context.Context, store Store, r io.Reader, opts Options) (Result, error) {
	rows, err := parse(r)
	if err != nil {
		return Result{}, err
	}

	table := store.Schema().Table
	truncate := false
	if opts.Truncate {
		if opts.Confirm == nil || !opts.Confirm(table) {
			return Result{}, ErrCancelled
		}
		truncate = true
	}

	// after a truncate nothing stored can collide
	if !truncate {
		sNos, workUnits, err := store.ExistingKeys(ctx)
		if err != nil {
			return Result{}, err
		}
		if err := checkCollisions(rows, sNos, workUnits); err != nil {
			return Result{}, err
		}
	}

	values := make([][]string, len(rows))
	keys := make([]string, len(rows))
	for i, row := range rows {
		values[i] = row.values
		keys[i] = row.values[keyIndex]
	}
	if err := store.InsertRows(ctx, RequiredColumns, values, truncate); err != nil {
		return Result{}, fmt.Errorf("insert into %s: %w", table, err)
	}
	if truncate {
		glog.Infof("truncated %s before import", table)
	}
	if err := store.Notify(ctx, keys); err != nil {
		glog.Warningf("import notification for %s failed: %v", table, err)
	}

	glog.Infof("imported %d work units into %s", len(rows), table)
	return Result{Inserted: len(rows), Truncated: truncate, Keys: keys}, nil
}

const (
	geomIndex     = 0
	keyIndex      = 1
	workUnitIndex = 4
)

type record struct {
	line   int
	values []string
}

func parse(r io.Reader) ([]record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ValidationError{Reason: "file is empty"}
	}
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := positions[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Reason: "missing required columns: " + strings.Join(missing, ", ")}
	}

	var rows []record
	seenKeys := make(map[string]int)
	seenWorkUnits := make(map[string]int)
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ValidationError{Reason: err.Error()}
		}
		if blank(fields) {
			continue
		}

		values := make([]string, len(RequiredColumns))
		for i, c := range RequiredColumns {
			p := positions[c]
			v := ""
			if p < len(fields) {
				v = strings.TrimSpace(fields[p])
			}
			if models.NormalizeValue(v) == "" {
				return nil, &ValidationError{Line: line, Column: c, Reason: "value is required"}
			}
			values[i] = v
		}

		geom, err := geometryHex(values[geomIndex])
		if err != nil {
			return nil, &ValidationError{Line: line, Column: "geom", Reason: err.Error()}
		}
		values[geomIndex] = geom

		if prev, ok := seenKeys[values[keyIndex]]; ok {
			return nil, &ValidationError{Line: line, Column: "s_no", Reason: fmt.Sprintf("duplicate of line %d", prev)}
		}
		if prev, ok := seenWorkUnits[values[workUnitIndex]]; ok {
			return nil, &ValidationError{Line: line, Column: "work_unit_id", Reason: fmt.Sprintf("duplicate of line %d", prev)}
		}
		seenKeys[values[keyIndex]] = line
		seenWorkUnits[values[workUnitIndex]] = line
		rows = append(rows, record{line: line, values: values})
	}

	if len(rows) == 0 {
		return nil, &ValidationError{Reason: "file has no data rows"}
	}
	return rows, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func checkCollisions(rows []record, sNos, workUnits map[string]bool) error {
	for _, row := range rows {
		if sNos[row.values[keyIndex]] {
			return &ValidationError{Line: row.line, Column: "s_no", Reason: "already stored"}
		}
		if workUnits[row.values[workUnitIndex]] {
			return &ValidationError{Line: row.line, Column: "work_unit_id", Reason: "already stored"}
		}
	}
	return nil
}

// geometryHex accepts WKT or hex encoded WKB and returns hex WKB. Only
// multilinestrings are work units.
func geometryHex(v string) (string, error) {
	var geom orb.Geometry
	if raw, err := hex.DecodeString(v); err == nil {
		geom, err = wkb.Unmarshal(raw)
		if err != nil {
			return "", fmt.Errorf("bad wkb: %w", err)
		}
	} else {
		geom, err = wkt.Unmarshal(v)
		if err != nil {
			return "", fmt.Errorf("bad wkt: %w", err)
		}
	}

	mls, ok := geom.(orb.MultiLineString)
	if !ok {
		return "", fmt.Errorf("geometry is %s, want MultiLineString", geom.GeoJSONType())
	}
	if len(mls) == 0 {
		return "", errors.New("geometry is empty")
	}

	raw, err := wkb.Marshal(mls)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
