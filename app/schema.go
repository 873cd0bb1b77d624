package main

import (
	"sort"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// schema is the loaded catalog of sqlite_schema: every table and index
// definition, keyed for lookup by name and by the table each index
// belongs to.
type schema struct {
	objects []*schemaRecord
	tables  map[string]*schemaRecord
	indexes map[string][]*schemaRecord // table name -> its indexes
}

// loadSchema reads and decodes every row of the schema table (always
// rooted at page 1) into a queryable catalog.
func loadSchema(db *database) (*schema, error) {
	rows, err := walkTable(db, 1, func(db *database, p *page) ([]*schemaRecord, error) {
		return readPageCells(db, p, func(offset int) (*schemaRecord, error) {
			payload, err := leafTablePayload(p, offset)
			if err != nil {
				return nil, err
			}
			_, values, err := decodeRecord(payload)
			if err != nil {
				return nil, err
			}
			return decodeSchemaRecord(values)
		})
	})
	if err != nil {
		return nil, err
	}

	s := &schema{
		objects: rows,
		tables:  make(map[string]*schemaRecord),
		indexes: make(map[string][]*schemaRecord),
	}
	for _, obj := range rows {
		switch obj.Type {
		case "table":
			s.tables[obj.Name] = obj
		case "index":
			s.indexes[obj.TblName] = append(s.indexes[obj.TblName], obj)
		}
	}
	return s, nil
}

// tableNames returns every user table's name, sorted alphabetically —
// the `.tables` command's output order, independent of schema storage
// order.
func (s *schema) tableNames() []string {
	var names []string
	for _, obj := range s.objects {
		if obj.Type == "table" {
			names = append(names, obj.Name)
		}
	}
	sort.Strings(names)
	return names
}

// table looks up a table's schema row by name, case-sensitively (table
// names in CREATE TABLE are matched as written, per the format).
func (s *schema) table(name string) (*schemaRecord, bool) {
	obj, ok := s.tables[name]
	return obj, ok
}

// tableColumns parses a table's CREATE TABLE statement into its column
// names, in declaration order, by normalizing SQLite-specific syntax
// and delegating to sqlparser.
func tableColumns(createSQL string) ([]string, error) {
	normalized := normalizeSQLiteToMySQL(createSQL)
	stmt, err := sqlparser.Parse(normalized)
	if err != nil {
		return nil, NewDatabaseError("parse_table_schema", err, map[string]interface{}{
			"sql": createSQL,
		})
	}

	ddl, ok := stmt.(*sqlparser.DDL)
	if !ok || ddl.Action != "create" || ddl.TableSpec == nil {
		return nil, NewDatabaseError("parse_table_schema", ErrDecodeError, map[string]interface{}{
			"sql": createSQL,
		})
	}

	columns := make([]string, len(ddl.TableSpec.Columns))
	for i, col := range ddl.TableSpec.Columns {
		columns[i] = col.Name.String()
	}
	return columns, nil
}

// indexColumn parses a CREATE INDEX statement's single indexed column
// name out of its parenthesised column list. Only single-column indexes
// are supported: the first listed column is returned.
func indexColumn(createSQL string) (string, error) {
	lp := strings.Index(createSQL, "(")
	rp := -1
	if lp >= 0 {
		rp = strings.Index(createSQL[lp:], ")")
	}
	var fields []string
	if rp > 0 {
		first := strings.Split(createSQL[lp+1:lp+rp], ",")[0]
		fields = strings.Fields(strings.NewReplacer("`", " ", "\"", " ").Replace(first))
	}
	if len(fields) == 0 {
		return "", NewDatabaseError("parse_index_schema", ErrDecodeError, map[string]interface{}{
			"sql": createSQL,
		})
	}
	return fields[0], nil
}

// findIndexOnColumn looks for any index on table whose single indexed
// column matches columnName, case-insensitively. This replaces naming a
// specific index: any CREATE INDEX that covers the WHERE column is
// eligible, not one hardcoded index name.
func findIndexOnColumn(s *schema, tableName, columnName string) (*schemaRecord, bool) {
	candidates := s.indexes[tableName]
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	for _, idx := range candidates {
		col, err := indexColumn(idx.SQL)
		if err != nil {
			continue
		}
		if strings.EqualFold(col, columnName) {
			return idx, true
		}
	}
	return nil, false
}

// normalizeSQLiteToMySQL rewrites the handful of SQLite DDL spellings
// sqlparser's MySQL-flavored grammar doesn't accept.
func normalizeSQLiteToMySQL(sql string) string {
	normalized := strings.ReplaceAll(sql, "primary key autoincrement", "AUTO_INCREMENT PRIMARY KEY")
	normalized = strings.ReplaceAll(normalized, "PRIMARY KEY AUTOINCREMENT", "AUTO_INCREMENT PRIMARY KEY")
	normalized = strings.ReplaceAll(normalized, "\"", "`")
	return normalized
}
