package schema

import "fmt"

// Table is (name, [column]) with the invariants from spec.md §3:
// non-empty name, at least one column, exactly one or more primary
// columns, unique column names, autoIncrement implies int+primary.
type Table struct {
	Name    string
	Columns []Column
}

// PrimaryColumns returns the table's primary-key columns in declaration order.
func (t Table) PrimaryColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.Primary {
			out = append(out, c)
		}
	}
	return out
}

// Column looks up a column by name, case-sensitively (SQLite identifiers
// are compared case-insensitively by the engine, but the schema model
// treats declared names as canonical).
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate enforces the Table-level invariants from spec.md §3. It returns
// a plain error whose text starts with the violated invariant's tag, to keep
// this package free of the errs import cycle; lifecycle.Connect and
// Manager.EnsureSchema wrap it as an *errs.Error of kind InvalidSchema.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("empty-name: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("no-columns: table %q must declare at least one column", t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	primaries := 0
	for _, c := range t.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate-columns: table %q declares %q more than once", t.Name, c.Name)
		}
		seen[c.Name] = true

		if err := c.validate(); err != nil {
			return fmt.Errorf("invalid column in table %q: %w", t.Name, err)
		}
		if c.AutoIncrement && c.Kind != KindInt {
			return fmt.Errorf("autoinc-nonint: column %q must be kind=int to autoincrement", c.Name)
		}
		if c.Primary {
			primaries++
		}
	}
	if primaries == 0 {
		return fmt.Errorf("no-primary: table %q must declare at least one primary column", t.Name)
	}
	return nil
}
