package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditableFieldsAreSchemaColumns(t *testing.T) {
	for kind, roles := range editableFields {
		schema, err := SchemaFor(kind)
		require.NoError(t, err)

		for role, fields := range roles {
			for field := range fields {
				assert.True(t, schema.HasColumn(field), "%s/%s: %s is not a column", kind, role, field)
				assert.False(t, IsSystemField(field), "%s/%s: %s is a system field", kind, role, field)
				assert.False(t, schema.Hidden.Has(field), "%s/%s: %s is hidden", kind, role, field)
			}
		}
	}
}

func TestOwnershipColumnsExist(t *testing.T) {
	tests := []struct {
		kind    TableKind
		project Project
	}{
		{TableProduction, ProjectRFDB},
		{TableTurnManeuver, ProjectTurnManeuver},
	}

	for _, tt := range tests {
		schema, err := SchemaFor(tt.kind)
		require.NoError(t, err)
		assert.Equal(t, tt.project, schema.Project)

		for role, col := range OwnershipFor(tt.project) {
			assert.True(t, schema.HasColumn(col), "%s: ownership column %s missing", role, col)
		}
	}
}

func TestParseTableKind(t *testing.T) {
	tests := []struct {
		input   string
		want    TableKind
		wantErr bool
	}{
		{"production_inputs", TableProduction, false},
		{`"public"."production_inputs"`, TableProduction, false},
		{"public.tm_production_inputs", TableTurnManeuver, false},
		{"employees", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTableKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchemaHelpers(t *testing.T) {
	schema, err := SchemaFor(TableTurnManeuver)
	require.NoError(t, err)

	assert.Equal(t, "tm_production_inputs_update", schema.Channel())
	assert.NotContains(t, schema.VisibleColumns(), "geom")
	assert.Contains(t, schema.VisibleColumns(), KeyField)

	assert.True(t, schema.Allowed("rfdb_qc_status", "QC_Rejected"))
	assert.True(t, schema.Allowed("rfdb_qc_status", ""))
	assert.False(t, schema.Allowed("rfdb_qc_status", "Shipped"))
	assert.True(t, schema.Allowed("rfdb_production_remarks", "anything"))
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "", NormalizeValue("   "))
	assert.Equal(t, "", NormalizeValue("None"))
	assert.Equal(t, "Hold", NormalizeValue("Hold"))
}

func TestFilterScoped(t *testing.T) {
	assert.False(t, Filter{}.Scoped())
	assert.False(t, Filter{Subcountry: AllSubcountries}.Scoped())
	assert.True(t, Filter{Subcountry: "Kerala"}.Scoped())
}
