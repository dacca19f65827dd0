// Package ddl emits CREATE TABLE/INDEX statements from a schema.Table and
// supports schema export/import and diffing, grounded on the teacher's
// database/sqlite/generator.go (CreateTable/FormatColumnDefinition build SQL
// via strings.Builder, one column per line) and
// database/sqlite/introspector.go (table_info/index_list-driven
// reconstruction).
package ddl

import (
	"fmt"
	"strings"

	"github.com/embedkit/embedkit/schema"
)

// CreateTable renders the CREATE TABLE statement for t, per the storage-type
// mapping and column-attribute rules in spec.md §4.1.
func CreateTable(t schema.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(t.Name))

	for i, col := range t.Columns {
		sb.WriteString("  ")
		sb.WriteString(formatColumn(col))
		if i < len(t.Columns)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(")")
	return sb.String()
}

// DropTable renders the DROP TABLE statement for t.
func DropTable(t schema.Table) string {
	return fmt.Sprintf("DROP TABLE %s", quoteIdent(t.Name))
}

func formatColumn(col schema.Column) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", quoteIdent(col.Name), col.Kind.StorageType())

	if col.Primary {
		sb.WriteString(" PRIMARY KEY")
		if col.AutoIncrement {
			sb.WriteString(" AUTOINCREMENT")
		}
	}
	if col.Unique && !col.Primary {
		sb.WriteString(" UNIQUE")
	}
	if !col.Nullable && !col.Primary {
		sb.WriteString(" NOT NULL")
	}
	if col.HasDefault() {
		fmt.Fprintf(&sb, " DEFAULT %s", formatDefaultLiteral(col))
	}
	return sb.String()
}

func formatDefaultLiteral(col schema.Column) string {
	switch v := col.Default.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CreateIndex renders a CREATE [UNIQUE] INDEX statement.
func CreateIndex(tableName, indexName string, columns []string, unique bool) string {
	uniqueStr := ""
	if unique {
		uniqueStr = "UNIQUE "
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		uniqueStr, quoteIdent(indexName), quoteIdent(tableName), strings.Join(quoted, ", "))
}

// DropIndex renders a DROP INDEX statement.
func DropIndex(indexName string) string {
	return fmt.Sprintf("DROP INDEX %s", quoteIdent(indexName))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
