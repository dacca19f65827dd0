package schema_test

import (
	"testing"

	"github.com/embedkit/embedkit/schema"
	"github.com/stretchr/testify/require"
)

func usersTable() schema.Table {
	return schema.Table{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Kind: schema.KindInt, Primary: true, AutoIncrement: true},
			{Name: "email", Kind: schema.KindText, Unique: true},
			{Name: "role", Kind: schema.KindText, Default: "user", Union: []any{"admin", "user"}},
			{Name: "is_active", Kind: schema.KindBool, Default: true},
			{Name: "created_at", Kind: schema.KindDate},
		},
	}
}

func TestValidateAcceptsWellFormedTable(t *testing.T) {
	require.NoError(t, usersTable().Validate())
}

func TestValidateRejectsEmptyName(t *testing.T) {
	tbl := usersTable()
	tbl.Name = ""
	require.ErrorContains(t, tbl.Validate(), "empty-name")
}

func TestValidateRejectsNoColumns(t *testing.T) {
	tbl := schema.Table{Name: "empty"}
	require.ErrorContains(t, tbl.Validate(), "no-columns")
}

func TestValidateRejectsNoPrimary(t *testing.T) {
	tbl := schema.Table{Name: "t", Columns: []schema.Column{{Name: "a", Kind: schema.KindText}}}
	require.ErrorContains(t, tbl.Validate(), "no-primary")
}

func TestValidateRejectsDuplicateColumns(t *testing.T) {
	tbl := schema.Table{Name: "t", Columns: []schema.Column{
		{Name: "id", Kind: schema.KindInt, Primary: true},
		{Name: "id", Kind: schema.KindText},
	}}
	require.ErrorContains(t, tbl.Validate(), "duplicate-columns")
}

func TestValidateRejectsAutoIncrementOnNonInt(t *testing.T) {
	tbl := schema.Table{Name: "t", Columns: []schema.Column{
		{Name: "id", Kind: schema.KindText, Primary: true, AutoIncrement: true},
	}}
	require.Error(t, tbl.Validate())
}

func TestProjectInsertShapeOptionality(t *testing.T) {
	shape := schema.ProjectInsert(usersTable())

	required := map[string]bool{}
	for _, f := range shape.Fields {
		required[f.Column.Name] = f.Required
	}

	require.False(t, required["id"], "autoincrement columns are optional on insert")
	require.True(t, required["email"], "plain columns are required on insert")
	require.False(t, required["role"], "defaulted columns are optional on insert")
	require.False(t, required["is_active"], "defaulted columns are optional on insert")
	require.True(t, required["created_at"])
}

func TestProjectSelectShapePopulatesDefaults(t *testing.T) {
	shape := schema.ProjectSelect(usersTable())

	required := map[string]bool{}
	for _, f := range shape.Fields {
		required[f.Column.Name] = f.Required
	}

	require.True(t, required["role"], "default-bearing columns are always present in results")
	require.True(t, required["is_active"])
}

func TestValidateInsertRowEnforcesUnion(t *testing.T) {
	tbl := usersTable()
	err := schema.ValidateInsertRow(tbl, schema.Row{
		"email":      "a@x.com",
		"role":       "superuser",
		"created_at": 0,
	})
	require.ErrorContains(t, err, "union")
}

func TestValidateInsertRowRejectsMissingRequired(t *testing.T) {
	tbl := usersTable()
	err := schema.ValidateInsertRow(tbl, schema.Row{"role": "user"})
	require.ErrorContains(t, err, "missing required field")
}

func TestValidateInsertRowAccepts(t *testing.T) {
	tbl := usersTable()
	err := schema.ValidateInsertRow(tbl, schema.Row{
		"email":      "a@x.com",
		"created_at": 0,
	})
	require.NoError(t, err)
}
