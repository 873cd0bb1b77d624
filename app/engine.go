package main

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// engine is the narrow query executor: it resolves a schema once at
// open and dispatches each command against it, choosing between a full
// table scan and an index-accelerated lookup per query.
type engine struct {
	db        *database
	schema    *schema
	formatter outputFormatter
}

// openEngine opens the database file and loads its schema, ready to
// execute commands against it.
func openEngine(path string, opts ...DatabaseOption) (*engine, error) {
	db, err := openDatabase(path, opts...)
	if err != nil {
		return nil, err
	}
	s, err := loadSchema(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &engine{db: db, schema: s, formatter: consoleFormatter{}}, nil
}

// UseJSONOutput switches the engine to emit each row as a JSON object
// instead of the default '|'-joined line.
func (e *engine) UseJSONOutput() {
	e.formatter = jsonFormatter{}
}

func (e *engine) Close() error {
	return e.db.Close()
}

// DBInfo reports the page size and table count for the .dbinfo command.
// The table count here is the raw cell count of the schema page, per
// the format: every schema object (tables, indexes, triggers, views)
// counts, matching what the on-disk page actually holds.
func (e *engine) DBInfo() (pageSize int, objectCount int, err error) {
	p, err := e.db.readPage(1)
	if err != nil {
		return 0, 0, err
	}
	return e.db.pageSize, int(p.cellCount), nil
}

// TableNames returns every user table's name, sorted alphabetically.
func (e *engine) TableNames() []string {
	return e.schema.tableNames()
}

// ExecuteSelect parses and runs a SELECT statement, writing one line per
// result row (or one count line for COUNT(*)) via emit.
func (e *engine) ExecuteSelect(query string, emit func(string)) error {
	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return NewDatabaseError("parse_query", ErrUnsupportedQuery, map[string]interface{}{"query": query})
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return NewDatabaseError("execute_query", ErrUnsupportedQuery, map[string]interface{}{"query": query})
	}

	tableName := extractTableName(sel)
	if tableName == "" {
		return NewDatabaseError("execute_query", ErrUnsupportedQuery, map[string]interface{}{"query": query})
	}

	obj, ok := e.schema.table(tableName)
	if !ok {
		return NewDatabaseError("execute_query", ErrTableNotFound, map[string]interface{}{"table": tableName})
	}

	columns, err := tableColumns(obj.SQL)
	if err != nil {
		return err
	}

	var columnNames []string
	var star, count bool
	for _, expr := range sel.SelectExprs {
		switch se := expr.(type) {
		case *sqlparser.StarExpr:
			star = true
		case *sqlparser.AliasedExpr:
			switch inner := se.Expr.(type) {
			case *sqlparser.FuncExpr:
				if strings.ToLower(inner.Name.String()) != "count" {
					return NewDatabaseError("execute_query", ErrUnsupportedQuery, map[string]interface{}{"function": inner.Name.String()})
				}
				count = true
			case *sqlparser.ColName:
				columnNames = append(columnNames, inner.Name.String())
			default:
				return NewDatabaseError("execute_query", ErrUnsupportedQuery, nil)
			}
		default:
			return NewDatabaseError("execute_query", ErrUnsupportedQuery, nil)
		}
	}

	whereCol, whereVal, hasWhere, err := parseEqualityWhere(sel)
	if err != nil {
		return err
	}

	if count && !hasWhere {
		n, err := countTableRows(e.db, int(obj.RootPage))
		if err != nil {
			return err
		}
		emit(e.formatter.FormatCount(n))
		return nil
	}

	rows, err := e.rowsFor(obj, columns, tableName, whereCol, whereVal, hasWhere)
	if err != nil {
		return err
	}

	switch {
	case count:
		emit(e.formatter.FormatCount(len(rows)))
	case star:
		for _, row := range rows {
			emit(e.formatter.FormatRow(columns, row))
		}
	case len(columnNames) > 0:
		for _, row := range rows {
			projected := make(map[string]value, len(columnNames))
			for _, name := range columnNames {
				v, ok := lookupColumn(row, columns, name)
				if !ok {
					return NewDatabaseError("execute_query", ErrColumnNotFound, map[string]interface{}{"column": name})
				}
				projected[name] = v
			}
			emit(e.formatter.FormatRow(columnNames, projected))
		}
	default:
		return NewDatabaseError("execute_query", ErrUnsupportedQuery, nil)
	}

	return nil
}

// rowsFor produces the decoded rows a query needs, preferring an index
// lookup when the WHERE clause is a plain equality on an indexed column
// and falling back to a full table scan otherwise.
func (e *engine) rowsFor(obj *schemaRecord, columns []string, tableName, whereCol, whereVal string, hasWhere bool) ([]map[string]value, error) {
	if hasWhere {
		if idx, ok := findIndexOnColumn(e.schema, tableName, whereCol); ok {
			return e.rowsViaIndex(obj, idx, columns, whereVal)
		}
	}
	return e.rowsViaScan(obj, columns, whereCol, whereVal, hasWhere)
}

func (e *engine) rowsViaScan(obj *schemaRecord, columns []string, whereCol, whereVal string, hasWhere bool) ([]map[string]value, error) {
	type cellOut struct {
		row map[string]value
	}
	results, err := walkTable(e.db, int(obj.RootPage), func(db *database, p *page) ([]cellOut, error) {
		pointers, err := p.cellPointers()
		if err != nil {
			return nil, err
		}
		out := make([]cellOut, 0, len(pointers))
		for _, offset := range pointers {
			rowid, err := p.rowID(offset)
			if err != nil {
				return nil, err
			}
			payload, err := leafTablePayload(p, offset)
			if err != nil {
				return nil, err
			}
			_, values, err := decodeRecord(payload)
			if err != nil {
				return nil, err
			}
			row := decodeUserRow(values, columns, rowid)
			if hasWhere {
				v, ok := lookupColumn(row, columns, whereCol)
				if !ok || !strings.EqualFold(v.Text(), whereVal) {
					continue
				}
			}
			out = append(out, cellOut{row: row})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]value, len(results))
	for i, r := range results {
		rows[i] = r.row
	}
	return rows, nil
}

func (e *engine) rowsViaIndex(obj, idx *schemaRecord, columns []string, whereVal string) ([]map[string]value, error) {
	matches, err := searchIndex(e.db, int(idx.RootPage), []byte(whereVal))
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]value, 0, len(matches))
	for _, m := range matches {
		payload, found, err := findByRowid(e.db, int(obj.RootPage), m.rowid)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		_, values, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		rows = append(rows, decodeUserRow(values, columns, m.rowid))
	}
	return rows, nil
}

func lookupColumn(row map[string]value, columns []string, name string) (value, bool) {
	for _, c := range columns {
		if strings.EqualFold(c, name) {
			v, ok := row[c]
			return v, ok
		}
	}
	return value{}, false
}

// parseEqualityWhere extracts a single `col = 'value'` condition, the
// only WHERE shape this engine executes.
func parseEqualityWhere(sel *sqlparser.Select) (col, val string, ok bool, err error) {
	if sel.Where == nil {
		return "", "", false, nil
	}
	cmp, ok := sel.Where.Expr.(*sqlparser.ComparisonExpr)
	if !ok || cmp.Operator != "=" {
		return "", "", false, NewDatabaseError("parse_where", ErrUnsupportedQuery, nil)
	}
	colName, ok := cmp.Left.(*sqlparser.ColName)
	if !ok {
		return "", "", false, NewDatabaseError("parse_where", ErrUnsupportedQuery, nil)
	}
	sqlVal, ok := cmp.Right.(*sqlparser.SQLVal)
	if !ok {
		return "", "", false, NewDatabaseError("parse_where", ErrUnsupportedQuery, nil)
	}
	return colName.Name.String(), string(sqlVal.Val), true, nil
}

func extractTableName(stmt *sqlparser.Select) string {
	if len(stmt.From) == 0 {
		return ""
	}
	aliased, ok := stmt.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return ""
	}
	table, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return ""
	}
	return table.Name.String()
}
