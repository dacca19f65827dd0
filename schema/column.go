// Package schema implements the closed, algebraic description of tables,
// columns, and nested JSON shapes described in spec.md §3, together with
// the rules by which that description projects onto a normalized row type.
//
// Grounded on the teacher's database.Table/database.Column model
// (database/interface.go), generalized from its single untyped "Type
// string" column to the closed Kind sum type spec.md §3 requires, and
// extended with the union/default/autoincrement attributes the teacher's
// migration-diff domain never needed.
package schema

import "fmt"

// Kind is the closed set of storage kinds a column can declare.
type Kind int

const (
	KindInt Kind = iota
	KindReal
	KindText
	KindDate
	KindBool
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	case KindJSON:
		return "json"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// StorageType is the SQLite column affinity this Kind maps onto (§4.1).
func (k Kind) StorageType() string {
	switch k {
	case KindInt, KindBool, KindDate:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText, KindJSON:
		return "TEXT"
	default:
		return "TEXT"
	}
}

// Column is a tagged record: (name, kind, flags) per spec.md §3.
type Column struct {
	Name string
	Kind Kind

	Primary  bool
	Unique   bool
	Nullable bool

	// AutoIncrement is only meaningful (and only legal) on a KindInt
	// Primary column.
	AutoIncrement bool

	// Default, when non-nil, is the column's engine-side DEFAULT value
	// (before literal formatting — see ddl.formatDefaultLiteral).
	Default any

	// Union restricts the column to a closed set of literal values; nil
	// means unrestricted. Only meaningful for KindInt, KindReal, KindText.
	Union []any

	// Shape describes a KindJSON column's structure; nil for other kinds.
	Shape *JSONShape
}

// validate checks a single column's own invariants, independent of its
// table. Table-level invariants (unique primaries, duplicate names, …)
// live in Table.Validate.
func (c Column) validate() error {
	if c.Name == "" {
		return fmt.Errorf("column name must not be empty")
	}
	if c.Primary && c.Nullable {
		return fmt.Errorf("column %q: primary columns cannot be nullable", c.Name)
	}
	if c.AutoIncrement && (c.Kind != KindInt || !c.Primary) {
		return fmt.Errorf("column %q: autoIncrement requires kind=int and primary", c.Name)
	}
	if len(c.Union) > 0 && c.Kind == KindJSON {
		return fmt.Errorf("column %q: union constraints are not valid on json columns", c.Name)
	}
	if c.Kind == KindJSON && c.Shape == nil {
		return fmt.Errorf("column %q: json columns require a Shape", c.Name)
	}
	if c.Kind != KindJSON && c.Shape != nil {
		return fmt.Errorf("column %q: only json columns may declare a Shape", c.Name)
	}
	return nil
}

// HasDefault reports whether the column declares an engine-populated
// default value (kind-specific Default field collapsed to one check).
func (c Column) HasDefault() bool {
	return c.Default != nil
}

// AllowsValue reports whether v is permitted by the column's union
// constraint. A column with no union constraint allows any value.
func (c Column) AllowsValue(v any) bool {
	if len(c.Union) == 0 {
		return true
	}
	for _, allowed := range c.Union {
		if allowed == v {
			return true
		}
	}
	return false
}
