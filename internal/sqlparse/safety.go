package sqlparse

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Finding reports a destructive operation discovered in migration SQL.
type Finding struct {
	// Code identifies the kind of destructive operation.
	Code string

	// Object is the table or column the operation targets, when known.
	Object string

	// Line is the 1-based line of the statement in the original input.
	Line int

	// Message is a human-readable description of the risk.
	Message string
}

// Destructive scans sql for operations that irreversibly delete data:
// DROP TABLE, TRUNCATE, DELETE without a WHERE clause, and ALTER TABLE
// DROP COLUMN. Statements that parse as PostgreSQL are inspected
// through the AST. Statements that do not are matched by leading
// keyword so other dialects still get coverage.
func Destructive(sql string) []Finding {
	var findings []Finding
	for _, stmt := range Executable(sql) {
		tree, err := pg_query.Parse(stmt.SQL)
		if err != nil {
			findings = append(findings, scanKeywords(stmt)...)
			continue
		}
		for _, raw := range tree.Stmts {
			if raw.Stmt == nil {
				continue
			}
			findings = append(findings, destructiveNode(raw.Stmt, stmt.Line)...)
		}
	}
	return findings
}

func destructiveNode(stmt *pg_query.Node, line int) []Finding {
	var findings []Finding

	switch node := stmt.Node.(type) {
	case *pg_query.Node_DropStmt:
		drop := node.DropStmt
		if drop.RemoveType == pg_query.ObjectType_OBJECT_TABLE {
			name := objectName(drop.Objects)
			cascade := ""
			if drop.Behavior == pg_query.DropBehavior_DROP_CASCADE {
				cascade = " CASCADE"
			}
			findings = append(findings, Finding{
				Code:    "dangerous_drop_table",
				Object:  name,
				Line:    line,
				Message: fmt.Sprintf("DROP TABLE %s%s permanently deletes all data in the table", name, cascade),
			})
		}

	case *pg_query.Node_TruncateStmt:
		names := strings.Join(relationNames(node.TruncateStmt.Relations), ", ")
		findings = append(findings, Finding{
			Code:    "dangerous_truncate",
			Object:  names,
			Line:    line,
			Message: fmt.Sprintf("TRUNCATE %s deletes all rows and cannot be selectively undone", names),
		})

	case *pg_query.Node_DeleteStmt:
		del := node.DeleteStmt
		if del.WhereClause == nil {
			name := rangeVarName(del.Relation)
			findings = append(findings, Finding{
				Code:    "dangerous_delete_all",
				Object:  name,
				Line:    line,
				Message: fmt.Sprintf("DELETE FROM %s without a WHERE clause removes every row", name),
			})
		}

	case *pg_query.Node_AlterTableStmt:
		alter := node.AlterTableStmt
		table := rangeVarName(alter.Relation)
		for _, cmd := range alter.Cmds {
			if cmd.Node == nil {
				continue
			}
			alterCmd, ok := cmd.Node.(*pg_query.Node_AlterTableCmd)
			if !ok || alterCmd.AlterTableCmd.Subtype != pg_query.AlterTableType_AT_DropColumn {
				continue
			}
			column := alterCmd.AlterTableCmd.Name
			findings = append(findings, Finding{
				Code:    "dangerous_drop_column",
				Object:  table + "." + column,
				Line:    line,
				Message: fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s permanently deletes the column's data", table, column),
			})
		}
	}

	return findings
}

var whereRe = regexp.MustCompile(`\bWHERE\b`)

// scanKeywords is the fallback for statements pg_query cannot parse,
// such as SQLite-specific syntax.
func scanKeywords(stmt Statement) []Finding {
	upper := strings.ToUpper(stmt.SQL)
	switch {
	case strings.HasPrefix(upper, "DROP TABLE"):
		return []Finding{{
			Code:    "dangerous_drop_table",
			Line:    stmt.Line,
			Message: "DROP TABLE permanently deletes all data in the table",
		}}
	case strings.HasPrefix(upper, "TRUNCATE"):
		return []Finding{{
			Code:    "dangerous_truncate",
			Line:    stmt.Line,
			Message: "TRUNCATE deletes all rows and cannot be selectively undone",
		}}
	case strings.HasPrefix(upper, "DELETE") && !whereRe.MatchString(upper):
		return []Finding{{
			Code:    "dangerous_delete_all",
			Line:    stmt.Line,
			Message: "DELETE without a WHERE clause removes every row",
		}}
	}
	return nil
}

// Helpers to extract names from AST nodes.

func objectName(objects []*pg_query.Node) string {
	if len(objects) == 0 {
		return "unknown"
	}

	// Qualified names arrive as a list of string nodes.
	if list, ok := objects[0].Node.(*pg_query.Node_List); ok {
		var parts []string
		for _, item := range list.List.Items {
			if str, ok := item.Node.(*pg_query.Node_String_); ok {
				parts = append(parts, str.String_.Sval)
			}
		}
		return strings.Join(parts, ".")
	}

	return "unknown"
}

func relationNames(relations []*pg_query.Node) []string {
	names := make([]string, 0, len(relations))
	for _, rel := range relations {
		if rangeVar, ok := rel.Node.(*pg_query.Node_RangeVar); ok {
			names = append(names, rangeVarName(rangeVar.RangeVar))
			continue
		}
		names = append(names, "unknown")
	}
	return names
}

func rangeVarName(rv *pg_query.RangeVar) string {
	if rv == nil {
		return "unknown"
	}
	if rv.Schemaname != "" {
		return rv.Schemaname + "." + rv.Relname
	}
	return rv.Relname
}
