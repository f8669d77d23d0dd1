package importer

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"workportal/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	existingKeys      map[string]bool
	existingWorkUnits map[string]bool

	truncated     bool
	truncateAsked bool
	keysChecked   bool
	inserted    [][]string
	columns     []string
	notified    []string
	insertErr   error
}

func (s *fakeStore) Schema() *models.Schema {
	schema, _ := models.SchemaFor(models.TableProduction)
	return schema
}

func (s *fakeStore) ExistingKeys(ctx context.Context) (map[string]bool, map[string]bool, error) {
	s.keysChecked = true
	return s.existingKeys, s.existingWorkUnits, nil
}

// InsertRows commits nothing on failure, truncate included.
func (s *fakeStore) InsertRows(ctx context.Context, columns []string, rows [][]string, truncate bool) error {
	s.truncateAsked = s.truncateAsked || truncate
	if s.insertErr != nil {
		return s.insertErr
	}
	if truncate {
		s.truncated = true
		s.inserted = nil
	}
	s.columns = columns
	s.inserted = append(s.inserted, rows...)
	return nil
}

func (s *fakeStore) Notify(ctx context.Context, keys []string) error {
	s.notified = append(s.notified, keys...)
	return nil
}

const header = "geom,s_no,project,wu_received_date,work_unit_id,length_mi,subcountry,rough_road_type\n"

const line1 = `"MULTILINESTRING((76.9 8.5, 77.0 8.6))",1,rfdb,2024-05-01,WU-1,10.5,Kerala,paved` + "\n"
const line2 = `"MULTILINESTRING((73.8 15.4, 73.9 15.5), (73.9 15.5, 74.0 15.6))",2,rfdb,2024-05-01,WU-2,2,Goa,unpaved` + "\n"

func TestImportValidFile(t *testing.T) {
	store := &fakeStore{}
	res, err := Run(context.Background(), store, strings.NewReader(header+line1+line2), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Inserted)
	assert.False(t, res.Truncated)
	assert.True(t, store.keysChecked)
	assert.Equal(t, RequiredColumns, store.columns)
	assert.Equal(t, []string{"1", "2"}, store.notified)

	require.Len(t, store.inserted, 2)
	raw, err := hex.DecodeString(store.inserted[0][0])
	require.NoError(t, err)
	geom, err := wkb.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, orb.MultiLineString{{{76.9, 8.5}, {77.0, 8.6}}}, geom)
	assert.Equal(t, []string{"1", "rfdb", "2024-05-01", "WU-1", "10.5", "Kerala", "paved"}, store.inserted[0][1:])
}

func TestImportAcceptsHexWKB(t *testing.T) {
	raw, err := wkb.Marshal(orb.MultiLineString{{{1, 2}, {3, 4}}})
	require.NoError(t, err)
	file := header + hex.EncodeToString(raw) + ",7,rfdb,2024-05-01,WU-7,1,Goa,paved\n"

	store := &fakeStore{}
	res, err := Run(context.Background(), store, strings.NewReader(file), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, hex.EncodeToString(raw), store.inserted[0][0])
}

func TestImportRejectsWholeFile(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		existing map[string]bool
		column   string
	}{
		{
			name:   "missing subcountry value",
			file:   header + line1 + `"MULTILINESTRING((1 1, 2 2))",2,rfdb,2024-05-01,WU-2,2,,paved` + "\n",
			column: "subcountry",
		},
		{
			name:   "none counts as missing",
			file:   header + `"MULTILINESTRING((1 1, 2 2))",2,rfdb,2024-05-01,WU-2,2,None,paved` + "\n",
			column: "subcountry",
		},
		{
			name:   "linestring is not a work unit",
			file:   header + `"LINESTRING(1 1, 2 2)",3,rfdb,2024-05-01,WU-3,2,Goa,paved` + "\n",
			column: "geom",
		},
		{
			name:   "unparseable geometry",
			file:   header + `"MULTILINESTRING((1 1, 2",3,rfdb,2024-05-01,WU-3,2,Goa,paved` + "\n",
			column: "geom",
		},
		{
			name:   "duplicate s_no in file",
			file:   header + line1 + `"MULTILINESTRING((1 1, 2 2))",1,rfdb,2024-05-01,WU-9,2,Goa,paved` + "\n",
			column: "s_no",
		},
		{
			name:   "duplicate work unit in file",
			file:   header + line1 + `"MULTILINESTRING((1 1, 2 2))",9,rfdb,2024-05-01,WU-1,2,Goa,paved` + "\n",
			column: "work_unit_id",
		},
		{
			name:     "s_no already stored",
			file:     header + line1 + line2,
			existing: map[string]bool{"2": true},
			column:   "s_no",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{existingKeys: tt.existing}
			_, err := Run(context.Background(), store, strings.NewReader(tt.file), Options{})

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.column, vErr.Column)
			assert.Empty(t, store.inserted)
			assert.Empty(t, store.notified)
			assert.False(t, store.truncated)
		})
	}
}

func TestImportMissingColumns(t *testing.T) {
	file := "geom,s_no,project\n" + `"MULTILINESTRING((1 1, 2 2))",1,rfdb` + "\n"
	_, err := Run(context.Background(), &fakeStore{}, strings.NewReader(file), Options{})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reason, "wu_received_date")
	assert.Contains(t, vErr.Reason, "rough_road_type")
}

func TestImportEmptyFile(t *testing.T) {
	for _, file := range []string{"", header, header + ",,,,,,,\n"} {
		_, err := Run(context.Background(), &fakeStore{}, strings.NewReader(file), Options{})
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	}
}

func TestImportTruncateNeedsConfirmation(t *testing.T) {
	store := &fakeStore{}
	_, err := Run(context.Background(), store, strings.NewReader(header+line1), Options{
		Truncate: true,
		Confirm:  func(string) bool { return false },
	})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, store.truncated)
	assert.Empty(t, store.inserted)

	store = &fakeStore{}
	_, err = Run(context.Background(), store, strings.NewReader(header+line1), Options{Truncate: true})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, store.truncated)
}

func TestImportTruncateSkipsCollisionCheck(t *testing.T) {
	var asked string
	store := &fakeStore{existingKeys: map[string]bool{"1": true}}
	res, err := Run(context.Background(), store, strings.NewReader(header+line1), Options{
		Truncate: true,
		Confirm:  func(table string) bool { asked = table; return true },
	})
	require.NoError(t, err)

	assert.Equal(t, "production_inputs", asked)
	assert.True(t, res.Truncated)
	assert.True(t, store.truncated)
	assert.False(t, store.keysChecked)
	assert.Len(t, store.inserted, 1)
}

func TestImportInsertFailure(t *testing.T) {
	tests := []struct {
		name     string
		truncate bool
	}{
		{name: "append", truncate: false},
		{name: "after confirmed truncate", truncate: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{insertErr: errors.New("permission denied for table production_inputs")}
			res, err := Run(context.Background(), store, strings.NewReader(header+line1), Options{
				Truncate: tt.truncate,
				Confirm:  func(string) bool { return true },
			})

			assert.ErrorContains(t, err, "permission denied")
			assert.Equal(t, tt.truncate, store.truncateAsked)
			assert.False(t, store.truncated, "a failed insert keeps the table")
			assert.False(t, res.Truncated)
			assert.Empty(t, store.notified)
		})
	}
}
