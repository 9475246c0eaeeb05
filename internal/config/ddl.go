package config

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// TableFromDDL derives a table config from a CREATE TABLE statement.
func TableFromDDL(ddl string) (Table, error) {
	stmt, err := sqlparser.Parse(ddl)
	if err != nil {
		return Table{}, fmt.Errorf("config: parse ddl: %w", err)
	}
	create, ok := stmt.(*sqlparser.DDL)
	if !ok || create.Action != sqlparser.CreateStr || create.TableSpec == nil {
		return Table{}, fmt.Errorf("config: not a CREATE TABLE statement")
	}

	t := Table{Name: create.Table.Name.String()}
	for _, idx := range create.TableSpec.Indexes {
		if idx.Info.Primary && len(idx.Columns) == 1 {
			t.PrimaryKey = idx.Columns[0].Column.String()
		}
	}
	for _, col := range create.TableSpec.Columns {
		ft, err := fieldType(col.Type.Type)
		if err != nil {
			return Table{}, fmt.Errorf("config: column %s: %w", col.Name.String(), err)
		}
		f := Field{
			Name:     col.Name.String(),
			Type:     ft,
			Nullable: !bool(col.Type.NotNull),
		}
		if t.PrimaryKey == "" && strings.Contains(sqlparser.String(col), "primary key") {
			t.PrimaryKey = f.Name
		}
		t.Fields = append(t.Fields, f)
	}
	if t.PrimaryKey == "" {
		return Table{}, fmt.Errorf("config: table %s has no single column primary key", t.Name)
	}
	for i := range t.Fields {
		if t.Fields[i].Name == t.PrimaryKey {
			t.Fields[i].Nullable = false
		}
	}
	return t, nil
}

func fieldType(sqlType string) (string, error) {
	switch strings.ToLower(sqlType) {
	case "int", "integer", "bigint", "smallint", "tinyint", "mediumint":
		return "integer", nil
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext", "enum":
		return "string", nil
	case "float", "double", "decimal", "numeric", "real":
		return "float", nil
	case "date", "datetime", "timestamp", "time":
		return "timestamp", nil
	case "bool", "boolean", "bit":
		return "bool", nil
	}
	return "", fmt.Errorf("unsupported column type %q", sqlType)
}
