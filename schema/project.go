package schema

import (
	"fmt"
)

// Row is the runtime representation of one logical row. embedkit is a
// runtime-only projector (per the design note in spec.md §9: "a
// runtime-only implementation can still enforce union constraints with
// explicit validation at insert/update") rather than a compile-time
// per-table generic type, so every façade operation exchanges Rows keyed
// by column name.
type Row map[string]any

// FieldSpec describes one column's optionality within a derived row shape.
type FieldSpec struct {
	Column   Column
	Required bool
}

// RowShape is a table's derived Insert or Select shape (spec.md §3).
type RowShape struct {
	TableName string
	Fields    []FieldSpec
}

func (s RowShape) field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Column.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ProjectInsert derives the Insert shape: every column is required unless
// it has autoIncrement, a default, or is nullable (spec.md §3).
func ProjectInsert(t Table) RowShape {
	shape := RowShape{TableName: t.Name}
	for _, c := range t.Columns {
		optional := c.AutoIncrement || c.HasDefault() || c.Nullable
		shape.Fields = append(shape.Fields, FieldSpec{Column: c, Required: !optional})
	}
	return shape
}

// ProjectSelect derives the Select shape: identical to Insert except
// default-bearing columns become required in results, since the engine
// always populates them (spec.md §3).
func ProjectSelect(t Table) RowShape {
	shape := RowShape{TableName: t.Name}
	for _, c := range t.Columns {
		optional := (c.AutoIncrement || c.Nullable) && !c.HasDefault()
		shape.Fields = append(shape.Fields, FieldSpec{Column: c, Required: !optional})
	}
	return shape
}

// ValidateInsertRow checks row against the table's Insert shape: required
// fields present, every present value honoring its column's union
// constraint and, for json columns, its Shape.
func ValidateInsertRow(t Table, row Row) error {
	shape := ProjectInsert(t)
	for _, f := range shape.Fields {
		v, present := row[f.Column.Name]
		if !present {
			if f.Required {
				return fmt.Errorf("missing required field %q", f.Column.Name)
			}
			continue
		}
		if err := validateValue(f.Column, v); err != nil {
			return fmt.Errorf("field %q: %w", f.Column.Name, err)
		}
	}
	return nil
}

// ValidateUpdateValues checks a partial update's values map: every key
// must be a real column on the table and honor its union/shape constraint,
// but nothing is required (an update may touch any subset of columns).
func ValidateUpdateValues(t Table, values Row) error {
	for name, v := range values {
		col, ok := t.Column(name)
		if !ok {
			return fmt.Errorf("unknown column %q", name)
		}
		if err := validateValue(col, v); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

func validateValue(col Column, v any) error {
	if v == nil {
		if col.Primary || !col.Nullable {
			return fmt.Errorf("null not allowed")
		}
		return nil
	}
	if !col.AllowsValue(v) {
		return fmt.Errorf("value %v not permitted by union constraint %v", v, col.Union)
	}
	if col.Kind == KindJSON && col.Shape != nil {
		if err := col.Shape.Validate(v); err != nil {
			return fmt.Errorf("json shape: %w", err)
		}
	}
	return nil
}
